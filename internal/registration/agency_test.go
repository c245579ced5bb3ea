package registration

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPAgencyRetriesServerErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		user, password, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "depositor", user)
		assert.Equal(t, "secret", password)
		assert.Equal(t, "batch-9", r.Header.Get("X-Deposit-Batch"))
		body, _ := io.ReadAll(r.Body)
		assert.Equal(t, "<doi_batch/>", string(body))
		w.Header().Set("Location", "/deposits/batch-9")
		w.WriteHeader(http.StatusCreated)
	}))
	defer server.Close()

	agency, err := NewHTTPAgency(HTTPAgencyConfig{
		Endpoint:        server.URL,
		Username:        "depositor",
		Password:        "secret",
		MaxElapsed:      5 * time.Second,
		InitialInterval: time.Millisecond,
	})
	require.NoError(t, err)

	receipt, err := agency.Submit(context.Background(), "batch-9", []byte("<doi_batch/>"))
	require.NoError(t, err)
	assert.Equal(t, "/deposits/batch-9", receipt.Location)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestHTTPAgencyDoesNotRetryRejections(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("malformed deposit"))
	}))
	defer server.Close()

	agency, err := NewHTTPAgency(HTTPAgencyConfig{Endpoint: server.URL, InitialInterval: time.Millisecond})
	require.NoError(t, err)

	_, err = agency.Submit(context.Background(), "batch-1", []byte("<doi_batch/>"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed deposit")
	assert.Equal(t, int32(1), attempts.Load())
}

func TestNewAgenciesValidateConfig(t *testing.T) {
	_, err := NewHTTPAgency(HTTPAgencyConfig{})
	assert.Error(t, err)
	_, err = NewFileAgency(FileAgencyConfig{})
	assert.Error(t, err)
}
