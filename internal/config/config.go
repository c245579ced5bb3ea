package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/viper"
)

const (
	envPrefix                 = "PUBIDS"
	defaultHTTPAddress        = "0.0.0.0:8080"
	defaultDatabaseDriver     = DriverSQLite
	defaultDatabasePath       = "pubids.db"
	defaultLogLevel           = "info"
	defaultIssuer             = "pubids-auth"
	defaultAudience           = "pubids-api"
	defaultTokenTTLMinutes    = 60
	defaultAllowedOrigin      = "*"
	defaultContextCacheSize   = 128
	defaultContextCacheTTL    = 60
	defaultEventBufferSize    = 64
	defaultKafkaTopic         = "pubids.doi-events"
	defaultRegistrationAgency = AgencyFile
	defaultExportDir          = "exports"
	defaultAgencyMaxElapsed   = 30
)

// Supported database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Supported registration agencies.
const (
	AgencyFile = "file"
	AgencyHTTP = "http"
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress        string
	DatabaseDriver     string
	DatabasePath       string
	DatabaseDSN        string
	LogLevel           string
	SigningSecret      string
	TokenIssuer        string
	TokenAudience      string
	TokenTTL           time.Duration
	AllowedOrigins     []string
	ContextCacheSize   int
	ContextCacheTTL    time.Duration
	LegacyOffset       bool
	EventBufferSize    int
	KafkaBrokers       []string
	KafkaTopic         string
	RegistrationAgency string
	ExportDir          string
	AgencyEndpoint     string
	AgencyUsername     string
	AgencyPassword     string
	AgencyMaxElapsed   time.Duration
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.path", defaultDatabasePath)
	configViper.SetDefault("database.dsn", "")
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.audience", defaultAudience)
	configViper.SetDefault("auth.token_ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("cors.allowed_origins", []string{defaultAllowedOrigin})
	configViper.SetDefault("contexts.cache_size", defaultContextCacheSize)
	configViper.SetDefault("contexts.cache_ttl_seconds", defaultContextCacheTTL)
	configViper.SetDefault("dois.legacy_offset", false)
	configViper.SetDefault("events.buffer_size", defaultEventBufferSize)
	configViper.SetDefault("kafka.brokers", []string{})
	configViper.SetDefault("kafka.topic", defaultKafkaTopic)
	configViper.SetDefault("registration.agency", defaultRegistrationAgency)
	configViper.SetDefault("registration.export_dir", defaultExportDir)
	configViper.SetDefault("registration.endpoint", "")
	configViper.SetDefault("registration.username", "")
	configViper.SetDefault("registration.password", "")
	configViper.SetDefault("registration.max_elapsed_seconds", defaultAgencyMaxElapsed)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		DatabaseDriver:     strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabasePath:       configViper.GetString("database.path"),
		DatabaseDSN:        configViper.GetString("database.dsn"),
		LogLevel:           configViper.GetString("log.level"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenIssuer:        configViper.GetString("auth.issuer"),
		TokenAudience:      configViper.GetString("auth.audience"),
		TokenTTL:           time.Duration(configViper.GetInt("auth.token_ttl_minutes")) * time.Minute,
		AllowedOrigins:     splitList(configViper.GetStringSlice("cors.allowed_origins")),
		ContextCacheSize:   configViper.GetInt("contexts.cache_size"),
		ContextCacheTTL:    time.Duration(configViper.GetInt("contexts.cache_ttl_seconds")) * time.Second,
		LegacyOffset:       configViper.GetBool("dois.legacy_offset"),
		EventBufferSize:    configViper.GetInt("events.buffer_size"),
		KafkaBrokers:       splitList(configViper.GetStringSlice("kafka.brokers")),
		KafkaTopic:         configViper.GetString("kafka.topic"),
		RegistrationAgency: strings.ToLower(strings.TrimSpace(configViper.GetString("registration.agency"))),
		ExportDir:          configViper.GetString("registration.export_dir"),
		AgencyEndpoint:     configViper.GetString("registration.endpoint"),
		AgencyUsername:     configViper.GetString("registration.username"),
		AgencyPassword:     configViper.GetString("registration.password"),
		AgencyMaxElapsed:   time.Duration(configViper.GetInt("registration.max_elapsed_seconds")) * time.Second,
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	var result *multierror.Error
	if strings.TrimSpace(c.SigningSecret) == "" {
		result = multierror.Append(result, fmt.Errorf("auth.signing_secret is required"))
	}
	if c.TokenTTL <= 0 {
		result = multierror.Append(result, fmt.Errorf("auth.token_ttl_minutes must be positive"))
	}
	switch c.DatabaseDriver {
	case DriverSQLite:
		if strings.TrimSpace(c.DatabasePath) == "" {
			result = multierror.Append(result, fmt.Errorf("database.path is required"))
		}
	case DriverPostgres:
		if strings.TrimSpace(c.DatabaseDSN) == "" {
			result = multierror.Append(result, fmt.Errorf("database.dsn is required for the postgres driver"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("database.driver %q is not supported", c.DatabaseDriver))
	}
	if c.EventBufferSize <= 0 {
		result = multierror.Append(result, fmt.Errorf("events.buffer_size must be positive"))
	}
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		result = multierror.Append(result, fmt.Errorf("kafka.topic is required when kafka.brokers is set"))
	}
	switch c.RegistrationAgency {
	case AgencyFile:
		if strings.TrimSpace(c.ExportDir) == "" {
			result = multierror.Append(result, fmt.Errorf("registration.export_dir is required"))
		}
	case AgencyHTTP:
		if strings.TrimSpace(c.AgencyEndpoint) == "" {
			result = multierror.Append(result, fmt.Errorf("registration.endpoint is required for the http agency"))
		}
	default:
		result = multierror.Append(result, fmt.Errorf("registration.agency %q is not supported", c.RegistrationAgency))
	}
	return result.ErrorOrNil()
}

// splitList flattens comma separated env values ("a,b") into separate entries.
func splitList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
