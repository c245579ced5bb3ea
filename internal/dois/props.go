package dois

import (
	"fmt"
	"maps"
	"slices"

	"github.com/iancoleman/strcase"
	"github.com/mitchellh/mapstructure"
)

// Core prop names. Every other prop is a setting.
const (
	PropID        = "id"
	PropContextID = "contextId"
	PropValue     = "doi"
	PropStatus    = "status"
)

type coreFields struct {
	ID        int64  `mapstructure:"id"`
	ContextID int64  `mapstructure:"contextId"`
	Value     string `mapstructure:"doi"`
	Status    Status `mapstructure:"status"`
}

// NewFromProps builds an unsaved DOI from a props bag.
func NewFromProps(props map[string]any) (*Doi, error) {
	doi := &Doi{}
	if err := merge(doi, props); err != nil {
		return nil, err
	}
	return doi, nil
}

// merge applies props onto target. Core fields are replaced when present,
// settings are replaced as whole localized values and removed when nil. The
// id is never changed.
func merge(target *Doi, props map[string]any) error {
	core, settings := splitProps(props)

	fields := coreFields{ID: target.ID, ContextID: target.ContextID, Value: target.Value, Status: target.Status}
	if err := decodeCore(core, &fields); err != nil {
		return err
	}
	target.ContextID = fields.ContextID
	target.Value = fields.Value
	target.Status = fields.Status

	for name, raw := range settings {
		value, err := settingValue(raw)
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidProps, name, err)
		}
		if value == nil {
			delete(target.Settings, name)
			continue
		}
		if target.Settings == nil {
			target.Settings = make(Settings)
		}
		target.Settings[name] = value
	}
	return nil
}

// canonicalProp maps snake case spellings of core props ("context_id") onto
// their canonical names. Setting names are returned unchanged.
func canonicalProp(key string) string {
	if candidate := strcase.ToLowerCamel(key); isCoreProp(candidate) {
		return candidate
	}
	return key
}

// NormalizeProps returns a copy of props with every core prop under its
// canonical name. When a core prop is sent under several spellings the
// canonical spelling wins, then the first alias in sorted order.
func NormalizeProps(props map[string]any) map[string]any {
	normalized := make(map[string]any, len(props))
	for _, key := range slices.Sorted(maps.Keys(props)) {
		name := canonicalProp(key)
		if name != key {
			if _, canonical := props[name]; canonical {
				continue
			}
			if _, taken := normalized[name]; taken {
				continue
			}
		}
		normalized[name] = props[key]
	}
	return normalized
}

func isCoreProp(name string) bool {
	switch name {
	case PropID, PropContextID, PropValue, PropStatus:
		return true
	}
	return false
}

func splitProps(props map[string]any) (map[string]any, map[string]any) {
	core := make(map[string]any, 4)
	settings := make(map[string]any)
	for key, value := range NormalizeProps(props) {
		if isCoreProp(key) {
			core[key] = value
			continue
		}
		settings[key] = value
	}
	return core, settings
}

func decodeCore(core map[string]any, fields *coreFields) error {
	if len(core) == 0 {
		return nil
	}
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           fields,
	})
	if err != nil {
		return err
	}
	if err := decoder.Decode(core); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidProps, err)
	}
	return nil
}

// settingValue converts a raw prop into a localized value. Scalars become
// non-localized values, maps are read as locale to value.
func settingValue(raw any) (LocalizedValue, error) {
	switch typed := raw.(type) {
	case nil:
		return nil, nil
	case LocalizedValue:
		return typed, nil
	case map[string]string, map[string]any:
		var value LocalizedValue
		if err := mapstructure.WeakDecode(typed, &value); err != nil {
			return nil, err
		}
		return value, nil
	default:
		var text string
		if err := mapstructure.WeakDecode(typed, &text); err != nil {
			return nil, err
		}
		return LocalizedValue{"": text}, nil
	}
}
