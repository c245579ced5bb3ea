package contexts

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates that no context matches the lookup.
	ErrNotFound = errors.New("contexts: context not found")
	// ErrInvalidContext indicates that a context is missing required fields.
	ErrInvalidContext = errors.New("contexts: invalid context")

	errMissingDatabase = errors.New("contexts: database handle is required")
)

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Database  *gorm.DB
	CacheSize int
	CacheTTL  time.Duration
	Logger    *zap.Logger
}

// Store resolves contexts by id or path. Lookups are cached for CacheTTL when
// CacheSize is positive.
type Store struct {
	db     *gorm.DB
	cache  *expirable.LRU[string, Context]
	logger *zap.Logger
}

// NewStore constructs a Store.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Database == nil {
		return nil, errMissingDatabase
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	store := &Store{db: cfg.Database, logger: logger}
	if cfg.CacheSize > 0 {
		store.cache = expirable.NewLRU[string, Context](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return store, nil
}

// Get returns the context with the given id.
func (s *Store) Get(ctx context.Context, id int64) (Context, error) {
	return s.lookup(ctx, idKey(id), "context_id = ?", id)
}

// GetByPath returns the context mounted at path.
func (s *Store) GetByPath(ctx context.Context, path string) (Context, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Context{}, ErrNotFound
	}
	return s.lookup(ctx, pathKey(path), "path = ?", path)
}

// Exists reports whether a context with the given id exists.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	_, err := s.Get(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Create persists a new context and assigns its id.
func (s *Store) Create(ctx context.Context, record *Context) error {
	if record == nil {
		return fmt.Errorf("%w: nil context", ErrInvalidContext)
	}
	record.Path = strings.TrimSpace(record.Path)
	if record.Path == "" {
		return fmt.Errorf("%w: path is required", ErrInvalidContext)
	}
	if strings.TrimSpace(record.PrimaryLocale) == "" {
		return fmt.Errorf("%w: primary locale is required", ErrInvalidContext)
	}
	if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
		s.logger.Error("context insert failed", zap.String("path", record.Path), zap.Error(err))
		return err
	}
	s.logger.Info("context created", zap.Int64("context_id", record.ID), zap.String("path", record.Path))
	return nil
}

func (s *Store) lookup(ctx context.Context, cacheKey, query string, arg any) (Context, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(cacheKey); ok {
			return cached, nil
		}
	}

	var record Context
	err := s.db.WithContext(ctx).Where(query, arg).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Context{}, ErrNotFound
	}
	if err != nil {
		s.logger.Error("context lookup failed", zap.String("key", cacheKey), zap.Error(err))
		return Context{}, err
	}

	if s.cache != nil {
		s.cache.Add(idKey(record.ID), record)
		s.cache.Add(pathKey(record.Path), record)
	}
	return record, nil
}

func idKey(id int64) string {
	return "id:" + strconv.FormatInt(id, 10)
}

func pathKey(path string) string {
	return "path:" + path
}
