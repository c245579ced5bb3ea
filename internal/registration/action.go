// Package registration hands DOIs to a registration agency.
package registration

import (
	"errors"
	"fmt"
)

// Action is a bulk operation requested for a set of DOIs.
type Action string

const (
	// ActionDeposit submits the DOIs to the configured agency.
	ActionDeposit Action = "deposit"
	// ActionExport returns the deposit document without submitting it.
	ActionExport Action = "export"
	// ActionMarkRegistered sets the DOIs to registered without contacting the agency.
	ActionMarkRegistered Action = "markRegistered"
)

var (
	// ErrInvalidAction indicates an unknown bulk action.
	ErrInvalidAction = errors.New("registration: invalid action")
	// ErrEmptyPayload indicates that no DOI of the current context was included.
	ErrEmptyPayload = errors.New("registration: no items included")
)

// ParseAction validates a raw action name.
func ParseAction(raw string) (Action, error) {
	switch action := Action(raw); action {
	case ActionDeposit, ActionExport, ActionMarkRegistered:
		return action, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAction, raw)
	}
}
