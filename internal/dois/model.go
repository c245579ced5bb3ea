// Package dois stores persistent identifiers and their localized settings.
package dois

import (
	"encoding/json"
	"maps"

	"github.com/MarcoPoloResearchLab/pubids/backend/internal/events"
)

// Status is the registration state of a DOI. No transition graph is enforced.
type Status int

const (
	StatusUnregistered Status = 1
	StatusSubmitted    Status = 2
	StatusRegistered   Status = 3
	StatusError        Status = 4
	StatusStale        Status = 5
)

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	return s >= StatusUnregistered && s <= StatusStale
}

func (s Status) String() string {
	switch s {
	case StatusUnregistered:
		return "UNREGISTERED"
	case StatusSubmitted:
		return "SUBMITTED"
	case StatusRegistered:
		return "REGISTERED"
	case StatusError:
		return "ERROR"
	case StatusStale:
		return "STALE"
	default:
		return "UNKNOWN"
	}
}

// SettingRegistrationError holds the last agency failure for a DOI.
const SettingRegistrationError = "registrationError"

// LocalizedValue maps a locale to a value. The empty locale holds
// non-localized values.
type LocalizedValue map[string]string

// Settings holds the free-form sidecar values of a DOI keyed by setting name.
type Settings map[string]LocalizedValue

// Doi is a persistent identifier owned by one context.
type Doi struct {
	ID        int64    `gorm:"column:doi_id;primaryKey;autoIncrement"`
	ContextID int64    `gorm:"column:context_id;not null;index"`
	Value     string   `gorm:"column:doi;size:255;not null"`
	Status    Status   `gorm:"column:status;type:smallint;not null;default:1"`
	Settings  Settings `gorm:"-"`
}

// TableName provides the explicit table binding for GORM.
func (Doi) TableName() string {
	return "dois"
}

// Setting is one row of the doi_settings sidecar table.
type Setting struct {
	DoiID  int64   `gorm:"column:doi_id;primaryKey;autoIncrement:false;index"`
	Locale string  `gorm:"column:locale;size:14;primaryKey"`
	Name   string  `gorm:"column:setting_name;size:255;primaryKey"`
	Value  *string `gorm:"column:setting_value;type:text"`
}

// TableName provides the explicit table binding for GORM.
func (Setting) TableName() string {
	return "doi_settings"
}

// Clone returns a deep copy of d.
func (d *Doi) Clone() *Doi {
	clone := *d
	if d.Settings != nil {
		clone.Settings = make(Settings, len(d.Settings))
		for name, value := range d.Settings {
			clone.Settings[name] = maps.Clone(value)
		}
	}
	return &clone
}

// SetSetting stores a non-localized setting value.
func (d *Doi) SetSetting(name, value string) {
	if d.Settings == nil {
		d.Settings = make(Settings)
	}
	d.Settings[name] = LocalizedValue{"": value}
}

// Setting returns the value of name for locale.
func (d *Doi) Setting(name, locale string) (string, bool) {
	value, ok := d.Settings[name][locale]
	return value, ok
}

// Snapshot returns the event view of d.
func (d *Doi) Snapshot() *events.DoiSnapshot {
	if d == nil {
		return nil
	}
	return &events.DoiSnapshot{ID: d.ID, ContextID: d.ContextID, Value: d.Value, Status: int(d.Status)}
}

// Map returns the serialized form: core fields plus one key per setting. A
// setting holding only the empty locale is flattened to its string.
func (d Doi) Map() map[string]any {
	out := map[string]any{
		PropID:        d.ID,
		PropContextID: d.ContextID,
		PropValue:     d.Value,
		PropStatus:    int(d.Status),
	}
	for name, value := range d.Settings {
		if _, reserved := out[name]; reserved {
			continue
		}
		if plain, ok := value[""]; ok && len(value) == 1 {
			out[name] = plain
			continue
		}
		out[name] = maps.Clone(value)
	}
	return out
}

// MarshalJSON encodes the serialized form.
func (d Doi) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Map())
}
