package dois

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/contexts"
	"github.com/MarcoPoloResearchLab/pubids/backend/internal/events"
)

type fixture struct {
	db         *gorm.DB
	dao        *DAO
	repository *Repository
	contexts   *contexts.Store
	recorder   *eventRecorder
	journal    contexts.Context
	press      contexts.Context
}

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) Publish(_ context.Context, event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) kinds() []events.Kind {
	r.mu.Lock()
	defer r.mu.Unlock()
	kinds := make([]events.Kind, 0, len(r.events))
	for _, event := range r.events {
		kinds = append(kinds, event.Kind)
	}
	return kinds
}

func (r *eventRecorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(&contexts.Context{}, &Doi{}, &Setting{}))
	return db
}

func newFixture(t *testing.T, daoConfig DAOConfig) *fixture {
	t.Helper()
	db := openTestDatabase(t)
	daoConfig.Database = db
	dao, err := NewDAO(daoConfig)
	require.NoError(t, err)

	store, err := contexts.NewStore(contexts.StoreConfig{Database: db})
	require.NoError(t, err)

	journal := contexts.Context{Path: "journal", PrimaryLocale: "en", SupportedLocales: "en,fr_CA", EnableDois: true, DoiPrefix: "10.1234", UseDefaultDoiSuffix: true}
	require.NoError(t, store.Create(context.Background(), &journal))
	press := contexts.Context{Path: "press", PrimaryLocale: "en", DoiPrefix: "10.5678"}
	require.NoError(t, store.Create(context.Background(), &press))

	recorder := &eventRecorder{}
	repository, err := NewRepository(RepositoryConfig{DAO: dao, Contexts: store, Events: recorder})
	require.NoError(t, err)

	return &fixture{db: db, dao: dao, repository: repository, contexts: store, recorder: recorder, journal: journal, press: press}
}

func (f *fixture) insert(t *testing.T, contextID int64, value string, status Status) *Doi {
	t.Helper()
	doi := &Doi{ContextID: contextID, Value: value, Status: status}
	_, err := f.dao.Insert(context.Background(), doi)
	require.NoError(t, err)
	return doi
}

func (f *fixture) insertMany(t *testing.T, contextID int64, count int) []int64 {
	t.Helper()
	ids := make([]int64, 0, count)
	for index := 0; index < count; index++ {
		doi := f.insert(t, contextID, fmt.Sprintf("10.1234/item-%03d", index), StatusUnregistered)
		ids = append(ids, doi.ID)
	}
	return ids
}

func collect(t *testing.T, seq func(func(*Doi, error) bool)) []int64 {
	t.Helper()
	ids := []int64{}
	for doi, err := range seq {
		require.NoError(t, err)
		ids = append(ids, doi.ID)
	}
	return ids
}
