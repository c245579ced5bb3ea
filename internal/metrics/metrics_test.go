package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/events"
)

func TestMiddlewareLabelsRouteTemplates(t *testing.T) {
	gin.SetMode(gin.TestMode)
	collectors := New()
	router := gin.New()
	router.Use(collectors.Middleware())
	router.GET("/api/v1/:contextPath/dois/:doiId", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})

	for _, path := range []string{"/api/v1/journal/dois/1", "/api/v1/press/dois/2", "/missing"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, http.NoBody))
	}

	assert.Equal(t, 2.0, testutil.ToFloat64(collectors.requestsTotal.WithLabelValues(http.MethodGet, "/api/v1/:contextPath/dois/:doiId", "404")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.requestsTotal.WithLabelValues(http.MethodGet, unmatchedRoute, "404")))
}

func TestEventCounters(t *testing.T) {
	collectors := New()
	collectors.CountEvent(context.Background(), events.Event{Kind: events.KindDoiAdded})
	collectors.CountEvent(context.Background(), events.Event{Kind: events.KindDoiAdded})
	collectors.CountDrop(events.Event{Kind: events.KindDoiDeleted})

	assert.Equal(t, 2.0, testutil.ToFloat64(collectors.eventsTotal.WithLabelValues("doi.added")))
	assert.Equal(t, 1.0, testutil.ToFloat64(collectors.eventsDropped.WithLabelValues("doi.deleted")))
}

func TestHandlerExposesRegistry(t *testing.T) {
	collectors := New()
	collectors.CountEvent(context.Background(), events.Event{Kind: events.KindDoiEdited})

	recorder := httptest.NewRecorder()
	collectors.Handler().ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody))
	require.Equal(t, http.StatusOK, recorder.Code)

	body, err := io.ReadAll(recorder.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `pubids_doi_events_total{kind="doi.edited"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}
