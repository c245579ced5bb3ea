package navigation

import (
	"context"
	"fmt"
	"strings"
	"testing"

	sqlite "github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&Menu{}, &Item{}, &ItemSetting{}, &Assignment{}))
	store, err := NewStore(StoreConfig{Database: db})
	require.NoError(t, err)
	return store
}

func mustCreateItem(t *testing.T, store *Store, item Item, settings map[string]map[string]string) Item {
	t.Helper()
	require.NoError(t, store.CreateItem(context.Background(), &item, settings))
	return item
}

func mustAssign(t *testing.T, store *Store, assignment Assignment) {
	t.Helper()
	require.NoError(t, store.Assign(context.Background(), &assignment))
}

func TestPublicMenuAssemblesTree(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	menu := Menu{ContextID: 1, AreaName: "primary", Title: "Primary"}
	require.NoError(t, store.CreateMenu(ctx, &menu))

	about := mustCreateItem(t, store, Item{ContextID: 1, Path: "about", Type: "NMI_TYPE_ABOUT"}, map[string]map[string]string{
		SettingTitle: {"en": "About", "fr_CA": "À propos"},
	})
	archive := mustCreateItem(t, store, Item{ContextID: 1, Type: "NMI_TYPE_ARCHIVES"}, map[string]map[string]string{
		SettingTitleLocaleKey: {"": "navigation.archives"},
	})
	remote := mustCreateItem(t, store, Item{ContextID: 1, Type: "NMI_TYPE_REMOTE_URL"}, map[string]map[string]string{
		SettingTitle:     {"en": "Publisher"},
		SettingRemoteURL: {"en": "https://example.org"},
	})
	team := mustCreateItem(t, store, Item{ContextID: 1, Path: "about/team"}, map[string]map[string]string{
		SettingTitle: {"en": "Team"},
	})
	grandchild := mustCreateItem(t, store, Item{ContextID: 1, Path: "about/team/alumni"}, nil)

	mustAssign(t, store, Assignment{MenuID: menu.ID, ItemID: archive.ID, Sequence: 2})
	mustAssign(t, store, Assignment{MenuID: menu.ID, ItemID: team.ID, ParentID: about.ID, Sequence: 1})
	mustAssign(t, store, Assignment{MenuID: menu.ID, ItemID: remote.ID, ParentID: about.ID, Sequence: 0})
	mustAssign(t, store, Assignment{MenuID: menu.ID, ItemID: about.ID, Sequence: 1})
	mustAssign(t, store, Assignment{MenuID: menu.ID, ItemID: grandchild.ID, ParentID: team.ID, Sequence: 0})
	mustAssign(t, store, Assignment{MenuID: menu.ID, ItemID: 9999, Sequence: 0})

	public, err := store.Public(ctx, menu.ID, 1, "en")
	require.NoError(t, err)
	assert.Equal(t, "Primary", public.Title)
	assert.Equal(t, "primary", public.AreaName)
	assert.Equal(t, int64(1), public.ContextID)
	require.Len(t, public.Items, 2)

	first := public.Items[0]
	assert.Equal(t, about.ID, first.ID)
	assert.Equal(t, "About", first.Title)
	assert.Equal(t, "about", first.Path)
	require.Len(t, first.Children, 2)
	assert.Equal(t, remote.ID, first.Children[0].ID)
	assert.Equal(t, team.ID, first.Children[1].ID)
	assert.Equal(t, "https://example.org", first.Children[0].Path, "remote items fall back to their url")
	assert.Empty(t, first.Children[1].Children, "nested children are dropped")

	second := public.Items[1]
	assert.Equal(t, archive.ID, second.ID)
	assert.Equal(t, "navigation.archives", second.Title, "title falls back to the locale key")
}

func TestPublicMenuIsScopedToContext(t *testing.T) {
	store := openTestStore(t)
	menu := Menu{ContextID: 1, Title: "Footer"}
	require.NoError(t, store.CreateMenu(context.Background(), &menu))

	_, err := store.Public(context.Background(), menu.ID, 2, "en")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Public(context.Background(), menu.ID+1, 1, "en")
	assert.ErrorIs(t, err, ErrNotFound)

	empty, err := store.Public(context.Background(), menu.ID, 1, "en")
	require.NoError(t, err)
	assert.NotNil(t, empty.Items)
	assert.Empty(t, empty.Items)
}
