package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/apidocs"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/config"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/contexts"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/database"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/suffix"
)

func skipConfig(*cobra.Command, []string) error {
	return nil
}

func newMigrateCommand() *cobra.Command {
	var steps int
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := database.Open(appConfig, logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	}

	down := &cobra.Command{
		Use:   "down",
		Short: "Revert PostgreSQL schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			if appConfig.DatabaseDriver != config.DriverPostgres {
				return fmt.Errorf("schema rollback requires the %s driver", config.DriverPostgres)
			}
			return database.RollbackSchema(appConfig.DatabaseDSN, steps, logger)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to revert")
	cmd.AddCommand(down)
	return cmd
}

func newAPIDocsCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:               "apidocs",
		Short:             "Print or write the OpenAPI document",
		PersistentPreRunE: skipConfig,
		RunE: func(cmd *cobra.Command, args []string) error {
			document, err := apidocs.JSON(cmd.Context())
			if err != nil {
				return err
			}
			if output == "" {
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(document))
				return err
			}
			return afero.WriteFile(afero.NewOsFs(), output, document, 0o644)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "Write the document to this file instead of stdout")
	return cmd
}

type tokenPayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
}

func newTokenCommand() *cobra.Command {
	var (
		subject   string
		siteAdmin bool
		grants    []string
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue an access token",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			roles, err := parseGrants(grants)
			if err != nil {
				return err
			}
			issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
				SigningSecret: []byte(appConfig.SigningSecret),
				Issuer:        appConfig.TokenIssuer,
				Audience:      appConfig.TokenAudience,
				TokenTTL:      appConfig.TokenTTL,
			})
			if err != nil {
				return err
			}
			token, expiresIn, err := issuer.Issue(cmd.Context(), auth.Principal{Subject: subject, SiteAdmin: siteAdmin, Roles: roles})
			if err != nil {
				return err
			}
			encoder := json.NewEncoder(cmd.OutOrStdout())
			return encoder.Encode(tokenPayload{AccessToken: token, ExpiresIn: expiresIn, TokenType: "Bearer"})
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "Token subject")
	cmd.Flags().BoolVar(&siteAdmin, "site-admin", false, "Grant site administrator access")
	cmd.Flags().StringSliceVar(&grants, "role", nil, "Role grant as contextPath:role, repeatable")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}

// parseGrants turns "journal:manager" grants into a roles map.
func parseGrants(grants []string) (map[string][]auth.Role, error) {
	roles := make(map[string][]auth.Role, len(grants))
	for _, grant := range grants {
		contextPath, role, found := strings.Cut(strings.TrimSpace(grant), ":")
		if !found || contextPath == "" || role == "" {
			return nil, fmt.Errorf("role grant %q must look like contextPath:role", grant)
		}
		switch auth.Role(role) {
		case auth.RoleManager, auth.RoleSubEditor, auth.RoleAssistant, auth.RoleReviewer, auth.RoleAuthor:
		default:
			return nil, fmt.Errorf("unknown role %q", role)
		}
		roles[contextPath] = append(roles[contextPath], auth.Role(role))
	}
	return roles, nil
}

func newContextCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context",
		Short: "Manage contexts",
	}

	record := contexts.Context{}
	var locales []string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a context",
		RunE: func(cmd *cobra.Command, args []string) error {
			appConfig, logger, err := loadRuntime()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			db, err := database.Open(appConfig, logger)
			if err != nil {
				return err
			}
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			defer sqlDB.Close()

			store, err := contexts.NewStore(contexts.StoreConfig{Database: db, Logger: logger})
			if err != nil {
				return err
			}
			record.SupportedLocales = contexts.JoinCSV(locales)
			if err := store.Create(cmd.Context(), &record); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "context %s created with id %d\n", record.Path, record.ID)
			return err
		},
	}
	flags := create.Flags()
	flags.StringVar(&record.Path, "path", "", "URL path of the context")
	flags.StringVar(&record.Name, "name", "", "Display name")
	flags.StringVar(&record.PrimaryLocale, "primary-locale", "en", "Primary locale")
	flags.StringSliceVar(&locales, "locales", nil, "Supported locales")
	flags.BoolVar(&record.EnableDois, "enable-dois", false, "Assign DOIs in this context")
	flags.StringVar(&record.DoiPrefix, "doi-prefix", "", "DOI prefix, e.g. 10.1234")
	flags.BoolVar(&record.UseDefaultDoiSuffix, "default-suffix", false, "Mint default suffixes for new DOIs")
	flags.StringVar(&record.RegistrationAgency, "registration-agency", "", "Registration agency name")
	_ = create.MarkFlagRequired("path")
	cmd.AddCommand(create)
	return cmd
}

func newSuffixCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:               "suffix",
		Short:             "Encode and decode default DOI suffixes",
		PersistentPreRunE: skipConfig,
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "encode [number]",
			Short: "Encode a number, or a random one when omitted",
			Args:  cobra.MaximumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var (
					code string
					err  error
				)
				if len(args) == 0 {
					code, err = suffix.Encode()
				} else {
					code, err = suffix.EncodeString(args[0])
				}
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), code)
				return err
			},
		},
		&cobra.Command{
			Use:   "decode <suffix>",
			Short: "Decode a suffix and verify its checksum",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				number, ok := suffix.Decode(args[0])
				if !ok {
					return fmt.Errorf("suffix %q is malformed or fails its checksum", args[0])
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), number)
				return err
			},
		},
	)
	return cmd
}
