package registration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

const defaultMaxElapsed = 30 * time.Second

// Receipt describes where an agency accepted a deposit.
type Receipt struct {
	Location string
}

// Agency accepts deposit documents.
type Agency interface {
	Name() string
	Submit(ctx context.Context, batchID string, document []byte) (Receipt, error)
}

// FileAgencyConfig configures a FileAgency.
type FileAgencyConfig struct {
	Fs        afero.Fs
	Directory string
}

// FileAgency writes deposits into a directory for an external uploader.
type FileAgency struct {
	fs        afero.Fs
	directory string
}

// NewFileAgency constructs a FileAgency. A nil Fs uses the OS filesystem.
func NewFileAgency(cfg FileAgencyConfig) (*FileAgency, error) {
	if cfg.Directory == "" {
		return nil, errors.New("registration: export directory is required")
	}
	fs := cfg.Fs
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &FileAgency{fs: fs, directory: cfg.Directory}, nil
}

// Name identifies the agency.
func (a *FileAgency) Name() string {
	return "file"
}

// Submit writes document to <directory>/<batchID>.xml.
func (a *FileAgency) Submit(_ context.Context, batchID string, document []byte) (Receipt, error) {
	if err := a.fs.MkdirAll(a.directory, 0o755); err != nil {
		return Receipt{}, fmt.Errorf("registration: create export directory: %w", err)
	}
	location := filepath.Join(a.directory, batchID+".xml")
	if err := afero.WriteFile(a.fs, location, document, 0o644); err != nil {
		return Receipt{}, fmt.Errorf("registration: write deposit: %w", err)
	}
	return Receipt{Location: location}, nil
}

// HTTPAgencyConfig configures an HTTPAgency.
type HTTPAgencyConfig struct {
	Endpoint   string
	Username   string
	Password   string
	Client     *http.Client
	MaxElapsed time.Duration
	// InitialInterval overrides the first retry delay.
	InitialInterval time.Duration
	Logger          *zap.Logger
}

// HTTPAgency posts deposits to a remote endpoint, retrying transient failures
// with exponential backoff.
type HTTPAgency struct {
	endpoint        string
	username        string
	password        string
	client          *http.Client
	maxElapsed      time.Duration
	initialInterval time.Duration
	logger          *zap.Logger
}

// NewHTTPAgency constructs an HTTPAgency.
func NewHTTPAgency(cfg HTTPAgencyConfig) (*HTTPAgency, error) {
	if cfg.Endpoint == "" {
		return nil, errors.New("registration: agency endpoint is required")
	}
	client := cfg.Client
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	maxElapsed := cfg.MaxElapsed
	if maxElapsed <= 0 {
		maxElapsed = defaultMaxElapsed
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPAgency{
		endpoint:        cfg.Endpoint,
		username:        cfg.Username,
		password:        cfg.Password,
		client:          client,
		maxElapsed:      maxElapsed,
		initialInterval: cfg.InitialInterval,
		logger:          logger,
	}, nil
}

// Name identifies the agency.
func (a *HTTPAgency) Name() string {
	return "http"
}

// Submit posts document. 5xx responses and transport errors are retried until
// MaxElapsed; 4xx responses fail immediately.
func (a *HTTPAgency) Submit(ctx context.Context, batchID string, document []byte) (Receipt, error) {
	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = a.maxElapsed
	if a.initialInterval > 0 {
		policy.InitialInterval = a.initialInterval
	}

	var location string
	attempt := 0
	operation := func() error {
		attempt++
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, bytes.NewReader(document))
		if err != nil {
			return backoff.Permanent(err)
		}
		request.Header.Set("Content-Type", "application/xml")
		request.Header.Set("X-Deposit-Batch", batchID)
		if a.username != "" {
			request.SetBasicAuth(a.username, a.password)
		}

		response, err := a.client.Do(request)
		if err != nil {
			a.logger.Warn("agency request failed", zap.String("batch_id", batchID), zap.Int("attempt", attempt), zap.Error(err))
			return err
		}
		defer response.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(response.Body, 4096))

		switch {
		case response.StatusCode >= http.StatusInternalServerError:
			a.logger.Warn("agency unavailable", zap.String("batch_id", batchID), zap.Int("attempt", attempt), zap.Int("status", response.StatusCode))
			return fmt.Errorf("registration: agency returned %d", response.StatusCode)
		case response.StatusCode >= http.StatusBadRequest:
			return backoff.Permanent(fmt.Errorf("registration: agency rejected deposit (%d): %s", response.StatusCode, bytes.TrimSpace(body)))
		}
		location = response.Header.Get("Location")
		return nil
	}

	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return Receipt{}, err
	}
	if location == "" {
		location = a.endpoint
	}
	return Receipt{Location: location}, nil
}
