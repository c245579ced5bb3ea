package contexts

import (
	"strings"
)

// Setting names exposed to DOI consumers.
const (
	SettingEnableDois          = "enableDois"
	SettingEnabledDoiTypes     = "enabledDoiTypes"
	SettingDoiPrefix           = "doiPrefix"
	SettingUseDefaultDoiSuffix = "useDefaultDoiSuffix"
	SettingCustomDoiSuffixType = "customDoiSuffixType"
	SettingDoiVersioning       = "doiVersioning"
	SettingRegistrationAgency  = "registrationAgency"
)

// Context is a tenant (one journal or press) owning DOIs and navigation menus.
type Context struct {
	ID                  int64  `gorm:"column:context_id;primaryKey;autoIncrement"`
	Path                string `gorm:"column:path;size:32;not null;uniqueIndex"`
	Name                string `gorm:"column:name;size:255;not null;default:''"`
	PrimaryLocale       string `gorm:"column:primary_locale;size:14;not null"`
	SupportedLocales    string `gorm:"column:supported_locales;size:255;not null;default:''"`
	EnableDois          bool   `gorm:"column:enable_dois;not null;default:false"`
	DoiPrefix           string `gorm:"column:doi_prefix;size:32;not null;default:''"`
	EnabledDoiTypes     string `gorm:"column:enabled_doi_types;size:255;not null;default:''"`
	UseDefaultDoiSuffix bool   `gorm:"column:use_default_doi_suffix;not null;default:false"`
	CustomDoiSuffixType string `gorm:"column:custom_doi_suffix_type;size:32;not null;default:''"`
	DoiVersioning       bool   `gorm:"column:doi_versioning;not null;default:false"`
	RegistrationAgency  string `gorm:"column:registration_agency;size:64;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Context) TableName() string {
	return "contexts"
}

// Locales returns the supported form locales, always including the primary locale.
func (c Context) Locales() []string {
	locales := splitCSV(c.SupportedLocales)
	for _, locale := range locales {
		if locale == c.PrimaryLocale {
			return locales
		}
	}
	if c.PrimaryLocale == "" {
		return locales
	}
	return append([]string{c.PrimaryLocale}, locales...)
}

// DoiTypes returns the publication types that receive DOIs.
func (c Context) DoiTypes() []string {
	return splitCSV(c.EnabledDoiTypes)
}

// Setting returns the named DOI setting, or nil when the name is unknown.
func (c Context) Setting(name string) any {
	switch name {
	case SettingEnableDois:
		return c.EnableDois
	case SettingEnabledDoiTypes:
		return c.DoiTypes()
	case SettingDoiPrefix:
		return c.DoiPrefix
	case SettingUseDefaultDoiSuffix:
		return c.UseDefaultDoiSuffix
	case SettingCustomDoiSuffixType:
		return c.CustomDoiSuffixType
	case SettingDoiVersioning:
		return c.DoiVersioning
	case SettingRegistrationAgency:
		return c.RegistrationAgency
	default:
		return nil
	}
}

// JoinCSV is the inverse of the comma separated list columns.
func JoinCSV(values []string) string {
	return strings.Join(values, ",")
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
