package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/auth"
)

func TestNewHTTPHandlerRequiresDependencies(t *testing.T) {
	if _, err := NewHTTPHandler(Dependencies{}); err != errMissingContextResolver {
		t.Fatalf("expected missing context resolver error, got %v", err)
	}
}

func TestOperationalEndpoints(t *testing.T) {
	fixture := newServerFixture(t, nil)

	health := fixture.do(t, http.MethodGet, "/healthz", "", nil)
	if health.Code != http.StatusOK {
		t.Fatalf("unexpected health status %d", health.Code)
	}

	openAPI := fixture.do(t, http.MethodGet, "/openapi.json", "", nil)
	if openAPI.Code != http.StatusOK || !strings.Contains(openAPI.Body.String(), "3.0.3") {
		t.Fatalf("unexpected openapi response %d %q", openAPI.Code, openAPI.Body.String())
	}

	fixture.do(t, http.MethodGet, "/api/v1/journal/dois", "", nil)
	metricsResponse := fixture.do(t, http.MethodGet, "/metrics", "", nil)
	if !strings.Contains(metricsResponse.Body.String(), `route="/api/v1/:contextPath/dois"`) {
		t.Fatalf("expected route label in metrics output")
	}
}

func TestRequestIDIsEchoedOrGenerated(t *testing.T) {
	fixture := newServerFixture(t, nil)

	request := httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	request.Header.Set(requestIDHeader, "req-123")
	recorder := httptest.NewRecorder()
	fixture.handler.ServeHTTP(recorder, request)
	if recorder.Header().Get(requestIDHeader) != "req-123" {
		t.Fatalf("expected request id to be echoed, got %q", recorder.Header().Get(requestIDHeader))
	}

	generated := fixture.do(t, http.MethodGet, "/healthz", "", nil)
	if generated.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected generated request id")
	}
}

func TestUnknownContextIsNotFound(t *testing.T) {
	fixture := newServerFixture(t, nil)

	response := fixture.do(t, http.MethodGet, "/api/v1/missing/dois", fixture.managerToken(t, "missing"), nil)
	if response.Code != http.StatusNotFound {
		t.Fatalf("unexpected status %d", response.Code)
	}
	if payload := decodeBody[map[string]string](t, response); payload["error"] != "context_not_found" {
		t.Fatalf("unexpected error payload %#v", payload)
	}
}

func TestAuthorizeRequestRejectsMissingToken(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fixture := newServerFixture(t, zap.New(core))

	response := fixture.do(t, http.MethodGet, "/api/v1/journal/dois", "", nil)
	if response.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", response.Code)
	}
	entries := logs.FilterMessage("token validation failed").All()
	if len(entries) != 1 || entries[0].Level != zapcore.InfoLevel {
		t.Fatalf("expected one info entry for missing token, got %#v", entries)
	}
}

func TestAuthorizeRequestLogsInvalidTokenAtWarnLevel(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	fixture := newServerFixture(t, zap.New(core))

	response := fixture.do(t, http.MethodGet, "/api/v1/journal/dois", "not-a-jwt", nil)
	if response.Code != http.StatusUnauthorized {
		t.Fatalf("unexpected status %d", response.Code)
	}
	entries := logs.FilterMessage("token validation failed").All()
	if len(entries) != 1 || entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected one warn entry for invalid token, got %#v", entries)
	}
}

func TestRequireRolesScopesRolesToContext(t *testing.T) {
	fixture := newServerFixture(t, nil)

	pressManager := fixture.managerToken(t, "press")
	if response := fixture.do(t, http.MethodGet, "/api/v1/journal/dois", pressManager, nil); response.Code != http.StatusForbidden {
		t.Fatalf("expected forbidden for role in another context, got %d", response.Code)
	}

	reviewer := fixture.token(t, auth.Principal{Subject: "reviewer-1", Roles: map[string][]auth.Role{"journal": {auth.RoleReviewer}}})
	if response := fixture.do(t, http.MethodGet, "/api/v1/journal/dois", reviewer, nil); response.Code != http.StatusOK {
		t.Fatalf("expected reviewer to list dois, got %d", response.Code)
	}
	if response := fixture.do(t, http.MethodPost, "/api/v1/journal/dois", reviewer, map[string]any{"doi": "10.1234/abc"}); response.Code != http.StatusForbidden {
		t.Fatalf("expected reviewer to be refused creation, got %d", response.Code)
	}

	siteAdmin := fixture.token(t, auth.Principal{Subject: "admin", SiteAdmin: true})
	if response := fixture.do(t, http.MethodGet, "/api/v1/journal/dois", siteAdmin, nil); response.Code != http.StatusOK {
		t.Fatalf("expected site admin to pass, got %d", response.Code)
	}
}
