package navigation

import (
	"context"
	"errors"
	"sort"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

var (
	// ErrNotFound indicates that the menu does not exist in the context.
	ErrNotFound = errors.New("navigation: menu not found")

	errMissingDatabase = errors.New("navigation: database handle is required")
)

// StoreConfig describes the dependencies of a Store.
type StoreConfig struct {
	Database *gorm.DB
	Logger   *zap.Logger
}

// Store reads and writes navigation menus.
type Store struct {
	db     *gorm.DB
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
	return &Store{db: cfg.Database, logger: logger}, nil
}

// GetMenu returns the menu with id when it belongs to contextID.
func (s *Store) GetMenu(ctx context.Context, id, contextID int64) (Menu, error) {
	var menu Menu
	err := s.db.WithContext(ctx).Where("navigation_menu_id = ? AND context_id = ?", id, contextID).Take(&menu).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Menu{}, ErrNotFound
	}
	return menu, err
}

// Public returns the menu with its formatted items in locale.
func (s *Store) Public(ctx context.Context, id, contextID int64, locale string) (PublicMenu, error) {
	menu, err := s.GetMenu(ctx, id, contextID)
	if err != nil {
		return PublicMenu{}, err
	}
	items, err := s.FormatItems(ctx, menu.ID, locale)
	if err != nil {
		return PublicMenu{}, err
	}
	return PublicMenu{ID: menu.ID, Title: menu.Title, AreaName: menu.AreaName, ContextID: menu.ContextID, Items: items}, nil
}

// FormatItems returns the top level items of a menu sorted by sequence, each
// with its direct children sorted by sequence. Assignments whose item is
// missing are skipped, as are children of children.
func (s *Store) FormatItems(ctx context.Context, menuID int64, locale string) ([]FormattedItem, error) {
	var assignments []Assignment
	if err := s.db.WithContext(ctx).
		Where("navigation_menu_id = ?", menuID).
		Order("navigation_menu_item_assignment_id ASC").
		Find(&assignments).Error; err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		return []FormattedItem{}, nil
	}

	items, settings, err := s.loadItems(ctx, assignments)
	if err != nil {
		return nil, err
	}

	topLevel := []FormattedItem{}
	children := make(map[int64][]FormattedItem)
	for _, assignment := range assignments {
		item, ok := items[assignment.ItemID]
		if !ok {
			s.logger.Debug("navigation assignment without item",
				zap.Int64("menu_id", menuID),
				zap.Int64("item_id", assignment.ItemID))
			continue
		}
		values := settings[item.ID]
		title := values.localized(SettingTitle, locale)
		if title == "" {
			title = values.first(SettingTitleLocaleKey)
		}
		path := item.Path
		if path == "" {
			path = values.localized(SettingRemoteURL, locale)
		}
		formatted := FormattedItem{
			ID:       item.ID,
			Title:    title,
			Path:     path,
			Type:     item.Type,
			Sequence: assignment.Sequence,
			Children: []FormattedItem{},
		}
		if assignment.ParentID != 0 {
			children[assignment.ParentID] = append(children[assignment.ParentID], formatted)
			continue
		}
		topLevel = append(topLevel, formatted)
	}

	for index := range topLevel {
		if nested, ok := children[topLevel[index].ID]; ok {
			sortBySequence(nested)
			topLevel[index].Children = nested
		}
	}
	sortBySequence(topLevel)
	return topLevel, nil
}

// CreateMenu persists a new menu.
func (s *Store) CreateMenu(ctx context.Context, menu *Menu) error {
	return s.db.WithContext(ctx).Create(menu).Error
}

// CreateItem persists a new item with its settings, keyed by name then locale.
func (s *Store) CreateItem(ctx context.Context, item *Item, settings map[string]map[string]string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(item).Error; err != nil {
			return err
		}
		rows := make([]ItemSetting, 0, len(settings))
		for name, values := range settings {
			for locale, value := range values {
				stored := value
				rows = append(rows, ItemSetting{ItemID: item.ID, Locale: locale, Name: name, Value: &stored})
			}
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.Create(&rows).Error
	})
}

// Assign places an item in a menu.
func (s *Store) Assign(ctx context.Context, assignment *Assignment) error {
	return s.db.WithContext(ctx).Create(assignment).Error
}

type itemSettings map[string]map[string]string

func (v itemSettings) localized(name, locale string) string {
	return v[name][locale]
}

// first returns the value of name in the empty locale, or in any locale when
// the value is localized.
func (v itemSettings) first(name string) string {
	values := v[name]
	if value := values[""]; value != "" {
		return value
	}
	locales := make([]string, 0, len(values))
	for locale := range values {
		locales = append(locales, locale)
	}
	sort.Strings(locales)
	for _, locale := range locales {
		if values[locale] != "" {
			return values[locale]
		}
	}
	return ""
}

func (s *Store) loadItems(ctx context.Context, assignments []Assignment) (map[int64]Item, map[int64]itemSettings, error) {
	ids := make([]int64, 0, len(assignments))
	for _, assignment := range assignments {
		ids = append(ids, assignment.ItemID)
	}

	var rows []Item
	if err := s.db.WithContext(ctx).Where("navigation_menu_item_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	items := make(map[int64]Item, len(rows))
	for _, row := range rows {
		items[row.ID] = row
	}

	var settingRows []ItemSetting
	if err := s.db.WithContext(ctx).Where("navigation_menu_item_id IN ?", ids).Find(&settingRows).Error; err != nil {
		return nil, nil, err
	}
	settings := make(map[int64]itemSettings, len(items))
	for _, row := range settingRows {
		if settings[row.ItemID] == nil {
			settings[row.ItemID] = make(itemSettings)
		}
		if settings[row.ItemID][row.Name] == nil {
			settings[row.ItemID][row.Name] = make(map[string]string)
		}
		if row.Value != nil {
			settings[row.ItemID][row.Name][row.Locale] = *row.Value
		}
	}
	return items, settings, nil
}

func sortBySequence(items []FormattedItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Sequence < items[j].Sequence
	})
}
