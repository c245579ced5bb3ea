package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/spf13/afero"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/contexts"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/dois"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/metrics"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/navigation"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/registration"
)

const (
	testSigningSecret = "server-test-secret"
	testIssuer        = "pubids-auth"
	testAudience      = "pubids-api"
	jsonContentType   = "application/json"
)

type serverFixture struct {
	handler    http.Handler
	repository *dois.Repository
	navigation *navigation.Store
	exports    afero.Fs
	issuer     *auth.TokenIssuer
	journal    contexts.Context
	press      contexts.Context
}

func newServerFixture(t *testing.T, logger *zap.Logger) *serverFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	if logger == nil {
		logger = zap.NewNop()
	}

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:server_%s?mode=memory&cache=shared", name)), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed to access sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	if err := db.AutoMigrate(
		&contexts.Context{}, &dois.Doi{}, &dois.Setting{},
		&navigation.Menu{}, &navigation.Item{}, &navigation.ItemSetting{}, &navigation.Assignment{},
	); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	contextStore, err := contexts.NewStore(contexts.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build context store: %v", err)
	}
	journal := contexts.Context{Path: "journal", PrimaryLocale: "en", SupportedLocales: "en,fr_CA", EnableDois: true, DoiPrefix: "10.1234", UseDefaultDoiSuffix: true}
	press := contexts.Context{Path: "press", PrimaryLocale: "en", EnableDois: true, DoiPrefix: "10.5678"}
	for _, record := range []*contexts.Context{&journal, &press} {
		if err := contextStore.Create(context.Background(), record); err != nil {
			t.Fatalf("failed to create context: %v", err)
		}
	}

	dao, err := dois.NewDAO(dois.DAOConfig{Database: db})
	if err != nil {
		t.Fatalf("failed to build dao: %v", err)
	}
	repository, err := dois.NewRepository(dois.RepositoryConfig{DAO: dao, Contexts: contextStore, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build repository: %v", err)
	}

	exports := afero.NewMemMapFs()
	agency, err := registration.NewFileAgency(registration.FileAgencyConfig{Fs: exports, Directory: "exports"})
	if err != nil {
		t.Fatalf("failed to build agency: %v", err)
	}
	registrar, err := registration.NewService(registration.ServiceConfig{Dois: repository, Agency: agency, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build registration service: %v", err)
	}

	navigationStore, err := navigation.NewStore(navigation.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		t.Fatalf("failed to build navigation store: %v", err)
	}

	validator, err := auth.NewSessionValidator(auth.SessionValidatorConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		Audience:      testAudience,
	})
	if err != nil {
		t.Fatalf("failed to build session validator: %v", err)
	}
	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(testSigningSecret),
		Issuer:        testIssuer,
		Audience:      testAudience,
	})
	if err != nil {
		t.Fatalf("failed to build token issuer: %v", err)
	}

	handler, err := NewHTTPHandler(Dependencies{
		Contexts:         contextStore,
		Dois:             repository,
		Registration:     registrar,
		Navigation:       navigationStore,
		SessionValidator: validator,
		Metrics:          metrics.New(),
		OpenAPI:          []byte(`{"openapi":"3.0.3"}`),
		Logger:           logger,
	})
	if err != nil {
		t.Fatalf("failed to build handler: %v", err)
	}

	return &serverFixture{
		handler:    handler,
		repository: repository,
		navigation: navigationStore,
		exports:    exports,
		issuer:     issuer,
		journal:    journal,
		press:      press,
	}
}

func (f *serverFixture) token(t *testing.T, principal auth.Principal) string {
	t.Helper()
	token, _, err := f.issuer.Issue(context.Background(), principal)
	if err != nil {
		t.Fatalf("failed to issue token: %v", err)
	}
	return token
}

func (f *serverFixture) managerToken(t *testing.T, contextPath string) string {
	return f.token(t, auth.Principal{Subject: "manager-1", Roles: map[string][]auth.Role{contextPath: {auth.RoleManager}}})
}

func (f *serverFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	request := httptest.NewRequest(method, path, reader)
	request.Header.Set("Content-Type", jsonContentType)
	if token != "" {
		request.Header.Set("Authorization", "Bearer "+token)
	}
	recorder := httptest.NewRecorder()
	f.handler.ServeHTTP(recorder, request)
	return recorder
}

func (f *serverFixture) insert(t *testing.T, contextID int64, value string, status dois.Status) *dois.Doi {
	t.Helper()
	doi := &dois.Doi{ContextID: contextID, Value: value, Status: status}
	id, err := f.repository.Add(context.Background(), doi)
	if err != nil {
		t.Fatalf("failed to insert doi: %v", err)
	}
	stored, err := f.repository.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("failed to reload doi: %v", err)
	}
	return stored
}

func decodeBody[T any](t *testing.T, recorder *httptest.ResponseRecorder) T {
	t.Helper()
	var payload T
	if err := json.Unmarshal(recorder.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response %q: %v", recorder.Body.String(), err)
	}
	return payload
}
