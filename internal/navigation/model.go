// Package navigation serves the public view of a context's navigation menus.
package navigation

// Menu is a navigation menu shown in one area of a context's site.
type Menu struct {
	ID        int64  `gorm:"column:navigation_menu_id;primaryKey;autoIncrement"`
	ContextID int64  `gorm:"column:context_id;not null;index"`
	AreaName  string `gorm:"column:area_name;size:255;not null;default:''"`
	Title     string `gorm:"column:title;size:255;not null"`
}

// TableName provides the explicit table binding for GORM.
func (Menu) TableName() string {
	return "navigation_menus"
}

// Item is a link that can be assigned to menus.
type Item struct {
	ID        int64  `gorm:"column:navigation_menu_item_id;primaryKey;autoIncrement"`
	ContextID int64  `gorm:"column:context_id;not null;index"`
	Path      string `gorm:"column:path;size:255;not null;default:''"`
	Type      string `gorm:"column:type;size:255;not null;default:''"`
}

// TableName provides the explicit table binding for GORM.
func (Item) TableName() string {
	return "navigation_menu_items"
}

// ItemSetting is one localized value of an item.
type ItemSetting struct {
	ItemID int64   `gorm:"column:navigation_menu_item_id;primaryKey;autoIncrement:false;index"`
	Locale string  `gorm:"column:locale;size:14;primaryKey"`
	Name   string  `gorm:"column:setting_name;size:255;primaryKey"`
	Value  *string `gorm:"column:setting_value;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (ItemSetting) TableName() string {
	return "navigation_menu_item_settings"
}

// Assignment places an item in a menu, optionally below a parent item.
type Assignment struct {
	ID       int64 `gorm:"column:navigation_menu_item_assignment_id;primaryKey;autoIncrement"`
	MenuID   int64 `gorm:"column:navigation_menu_id;not null;index"`
	ItemID   int64 `gorm:"column:navigation_menu_item_id;not null"`
	ParentID int64 `gorm:"column:parent_id;not null;default:0"`
	Sequence int   `gorm:"column:seq;not null;default:0"`
}

// TableName provides the explicit table binding for GORM.
func (Assignment) TableName() string {
	return "navigation_menu_item_assignments"
}

// Setting names read from item settings.
const (
	SettingTitle          = "title"
	SettingTitleLocaleKey = "titleLocaleKey"
	SettingRemoteURL      = "remoteUrl"
)

// FormattedItem is the public view of an assigned item.
type FormattedItem struct {
	ID       int64           `json:"id"`
	Title    string          `json:"title"`
	Path     string          `json:"path"`
	Type     string          `json:"type"`
	Sequence int             `json:"sequence"`
	Children []FormattedItem `json:"children"`
}

// PublicMenu is the public view of a menu.
type PublicMenu struct {
	ID        int64           `json:"id"`
	Title     string          `json:"title"`
	AreaName  string          `json:"area_name"`
	ContextID int64           `json:"context_id"`
	Items     []FormattedItem `json:"items"`
}
