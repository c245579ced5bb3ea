package contexts

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestDatabase(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Context{}))
	return db
}

func TestStoreCreateAndResolve(t *testing.T) {
	db := openTestDatabase(t)
	store, err := NewStore(StoreConfig{Database: db, CacheSize: 8, CacheTTL: time.Minute})
	require.NoError(t, err)

	journal := &Context{Path: "jpk", Name: "Journal of Public Knowledge", PrimaryLocale: "en", SupportedLocales: "en,fr_CA", EnableDois: true, DoiPrefix: "10.1234"}
	require.NoError(t, store.Create(context.Background(), journal))
	require.NotZero(t, journal.ID)

	byPath, err := store.GetByPath(context.Background(), "jpk")
	require.NoError(t, err)
	assert.Equal(t, journal.ID, byPath.ID)
	assert.Equal(t, "10.1234", byPath.DoiPrefix)

	exists, err := store.Exists(context.Background(), journal.ID)
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(context.Background(), journal.ID+100)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStoreServesCachedLookups(t *testing.T) {
	db := openTestDatabase(t)
	store, err := NewStore(StoreConfig{Database: db, CacheSize: 8, CacheTTL: time.Minute})
	require.NoError(t, err)
	journal := &Context{Path: "cached", PrimaryLocale: "en"}
	require.NoError(t, store.Create(context.Background(), journal))
	_, err = store.Get(context.Background(), journal.ID)
	require.NoError(t, err)

	require.NoError(t, db.Exec("DELETE FROM contexts").Error)
	_, err = store.GetByPath(context.Background(), "cached")
	assert.NoError(t, err, "lookup by path should be served from cache")

	uncached, err := NewStore(StoreConfig{Database: db})
	require.NoError(t, err)
	_, err = uncached.Get(context.Background(), journal.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreCreateRequiresPathAndLocale(t *testing.T) {
	store, err := NewStore(StoreConfig{Database: openTestDatabase(t)})
	require.NoError(t, err)

	assert.ErrorIs(t, store.Create(context.Background(), &Context{PrimaryLocale: "en"}), ErrInvalidContext)
	assert.ErrorIs(t, store.Create(context.Background(), &Context{Path: "x"}), ErrInvalidContext)
}

func TestContextLocalesIncludePrimary(t *testing.T) {
	journal := Context{PrimaryLocale: "en", SupportedLocales: "fr_CA, de"}

	locales := journal.Locales()
	require.Len(t, locales, 3)
	assert.Equal(t, "en", locales[0])
	assert.Equal(t, false, journal.Setting(SettingEnableDois))
	assert.Nil(t, journal.Setting("unknown"))
}
