package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/apidocs"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/config"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/contexts"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/database"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/dois"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/events"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/navigation"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/registration"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/server"
)

const (
	sessionCookieName = "pubids_session"
	shutdownTimeout   = 10 * time.Second
)

func runServer(ctx context.Context) error {
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

	collectors := metrics.New()
	dispatcher := events.NewDispatcher(events.DispatcherConfig{
		BufferSize: appConfig.EventBufferSize,
		OnDrop:     collectors.CountDrop,
	})
	dispatcher.Handle(events.NewAuditLogger(logger))
	dispatcher.Handle(collectors.CountEvent)

	contextStore, err := contexts.NewStore(contexts.StoreConfig{
		Database:  db,
		CacheSize: appConfig.ContextCacheSize,
		CacheTTL:  appConfig.ContextCacheTTL,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	pagination := dois.PaginationStandard
	if appConfig.LegacyOffset {
		pagination = dois.PaginationLegacy
	}
	dao, err := dois.NewDAO(dois.DAOConfig{Database: db, Pagination: pagination})
	if err != nil {
		return err
	}
	repository, err := dois.NewRepository(dois.RepositoryConfig{
		DAO:      dao,
		Contexts: contextStore,
		Events:   dispatcher,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	agency, err := newAgency(appConfig, logger)
	if err != nil {
		return err
	}
	registrar, err := registration.NewService(registration.ServiceConfig{
		Dois:   repository,
		Agency: agency,
		Events: dispatcher,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	navigationStore, err := navigation.NewStore(navigation.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}

	sessionValidator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        appConfig.TokenIssuer,
		Audience:      appConfig.TokenAudience,
		CookieName:    sessionCookieName,
	})
	if err != nil {
		return err
	}

	openAPI, err := apidocs.JSON(ctx)
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Contexts:         contextStore,
		Dois:             repository,
		Registration:     registrar,
		Navigation:       navigationStore,
		SessionValidator: sessionValidator,
		Metrics:          collectors,
		OpenAPI:          openAPI,
		AllowedOrigins:   appConfig.AllowedOrigins,
		Logger:           logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              appConfig.HTTPAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(signalCtx)
	group.Go(func() error {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	group.Go(func() error {
		<-groupCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	if len(appConfig.KafkaBrokers) > 0 {
		relay, err := events.NewKafkaRelay(events.KafkaRelayConfig{
			Brokers: appConfig.KafkaBrokers,
			Topic:   appConfig.KafkaTopic,
			Logger:  logger,
		})
		if err != nil {
			return err
		}
		stream, unsubscribe := dispatcher.Subscribe(groupCtx)
		group.Go(func() error {
			defer relay.Close()
			defer unsubscribe()
			return relay.Run(groupCtx, stream)
		})
	}

	return group.Wait()
}

func newAgency(appConfig config.AppConfig, logger *zap.Logger) (registration.Agency, error) {
	switch appConfig.RegistrationAgency {
	case config.AgencyHTTP:
		return registration.NewHTTPAgency(registration.HTTPAgencyConfig{
			Endpoint:   appConfig.AgencyEndpoint,
			Username:   appConfig.AgencyUsername,
			Password:   appConfig.AgencyPassword,
			MaxElapsed: appConfig.AgencyMaxElapsed,
			Logger:     logger,
		})
	default:
		return registration.NewFileAgency(registration.FileAgencyConfig{
			Fs:        afero.NewOsFs(),
			Directory: appConfig.ExportDir,
		})
	}
}
