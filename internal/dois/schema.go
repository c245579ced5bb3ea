package dois

import (
	"context"
	"fmt"
	"regexp"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/mitchellh/mapstructure"
	"go.uber.org/zap"
)

const maxValueLength = 255

var doiPattern = regexp.MustCompile(`^10\.[0-9]{4,9}/\S+$`)

// MsgContextNotFound is reported against contextId when the DOI names a
// context that does not exist.
const MsgContextNotFound = "The context does not exist."

// Validation messages not produced by ozzo-validation.
const (
	msgContextUnverified = "The context could not be verified."
	msgNotInteger        = "must be an integer"
	msgNotString         = "must be a string"
	msgInvalidDoi        = "must be a valid DOI"
	msgInvalidSetting    = "must be a string or a map of locale to string"
)

// FieldErrors maps a prop name to its validation messages. An empty map means
// the props are valid.
type FieldErrors map[string][]string

func (e FieldErrors) add(field, message string) {
	e[field] = append(e[field], message)
}

func (e FieldErrors) addErr(field string, err error) {
	if err != nil {
		e.add(field, err.Error())
	}
}

// Validate checks props for a new DOI, or for changes to existing when it is
// not nil. Required props already held by existing may be omitted. Map valued
// settings may only use allowedLocales, or primaryLocale when none are given.
func (r *Repository) Validate(ctx context.Context, existing *Doi, props map[string]any, allowedLocales []string, primaryLocale string) FieldErrors {
	errs := FieldErrors{}
	core, settings := splitProps(props)

	requireProp := func(name string, held bool) {
		if held {
			return
		}
		if raw, ok := core[name]; !ok || raw == nil {
			errs.addErr(name, validation.Validate(nil, validation.Required))
		}
	}
	requireProp(PropContextID, existing != nil && existing.ContextID != 0)
	requireProp(PropValue, existing != nil && existing.Value != "")

	if raw, ok := core[PropContextID]; ok && raw != nil {
		r.validateContextID(ctx, errs, raw)
	}
	if raw, ok := core[PropValue]; ok && raw != nil {
		value, isString := raw.(string)
		if !isString {
			errs.add(PropValue, msgNotString)
		} else {
			errs.addErr(PropValue, validation.Validate(value,
				validation.Required,
				validation.RuneLength(1, maxValueLength),
				validation.Match(doiPattern).Error(msgInvalidDoi),
			))
		}
	}
	if raw, ok := core[PropStatus]; ok && raw != nil {
		var status int
		if err := mapstructure.WeakDecode(raw, &status); err != nil {
			errs.add(PropStatus, msgNotInteger)
		} else {
			errs.addErr(PropStatus, validation.Validate(status,
				validation.Required,
				validation.Min(int(StatusUnregistered)),
				validation.Max(int(StatusStale)),
			))
		}
	}

	locales := allowedLocales
	if len(locales) == 0 && primaryLocale != "" {
		locales = []string{primaryLocale}
	}
	allowed := make([]any, 0, len(locales))
	for _, locale := range locales {
		allowed = append(allowed, locale)
	}
	for name, raw := range settings {
		if _, err := settingValue(raw); err != nil {
			errs.add(name, msgInvalidSetting)
			continue
		}
		for _, locale := range settingLocales(raw) {
			if err := validation.Validate(locale, validation.In(allowed...)); err != nil {
				errs.add(name, fmt.Sprintf("locale %q is not supported", locale))
			}
		}
	}
	return errs
}

func (r *Repository) validateContextID(ctx context.Context, errs FieldErrors, raw any) {
	var contextID int64
	if err := mapstructure.WeakDecode(raw, &contextID); err != nil {
		errs.add(PropContextID, msgNotInteger)
		return
	}
	if err := validation.Validate(contextID, validation.Required, validation.Min(int64(1))); err != nil {
		errs.addErr(PropContextID, err)
		return
	}
	exists, err := r.contexts.Exists(ctx, contextID)
	if err != nil {
		r.logError("dois.validate", "context_lookup_failed", err, zap.Int64("context_id", contextID))
		errs.add(PropContextID, msgContextUnverified)
		return
	}
	if !exists {
		errs.add(PropContextID, MsgContextNotFound)
	}
}

// settingLocales returns the locale keys of a map valued setting.
func settingLocales(raw any) []string {
	var locales []string
	switch typed := raw.(type) {
	case LocalizedValue:
		for locale := range typed {
			locales = append(locales, locale)
		}
	case map[string]string:
		for locale := range typed {
			locales = append(locales, locale)
		}
	case map[string]any:
		for locale := range typed {
			locales = append(locales, locale)
		}
	}
	sort.Strings(locales)
	return locales
}
