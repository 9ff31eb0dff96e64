package services

import (
	"errors"
	"fmt"

	"github.com/telcoops/casedesk/db"
)

var (
	ErrCaseNotFound         = errors.New("case not found")
	ErrInvalidTransition    = errors.New("invalid status transition")
	ErrTerminalStatus       = errors.New("case is in a terminal status")
	ErrDuplicateFingerprint = errors.New("open case with this fingerprint already exists")
	ErrRuleNotFound         = errors.New("rule assignment not found")
	ErrEmptyAssignment      = errors.New("assignment must name at least one user or team")
	ErrInvalidSeverity      = errors.New("invalid severity")
)

// Case lifecycle events
const (
	EventAssign      = "assign"
	EventAcknowledge = "acknowledge"
	EventResolve     = "resolve"
	EventReopen      = "reopen"
	EventClose       = "close"
	EventCancel      = "cancel"
)

// transitions maps current status -> event -> next status. Anything not in
// this table is rejected. Resolve is legal from every non-terminal status;
// reopen only from resolved. Cancel from cancelled is the only blocked
// cancel.
var transitions = map[string]map[string]string{
	db.CaseStatusOpen: {
		EventAssign:  db.CaseStatusAssigned,
		EventResolve: db.CaseStatusResolved,
		EventCancel:  db.CaseStatusCancelled,
	},
	db.CaseStatusAssigned: {
		EventAssign:      db.CaseStatusAssigned, // reassignment
		EventAcknowledge: db.CaseStatusInProgress,
		EventResolve:     db.CaseStatusResolved,
		EventCancel:      db.CaseStatusCancelled,
	},
	db.CaseStatusInProgress: {
		EventAssign:      db.CaseStatusInProgress, // reassignment keeps progress
		EventAcknowledge: db.CaseStatusInProgress,
		EventResolve:     db.CaseStatusResolved,
		EventClose:       db.CaseStatusClosed,
		EventCancel:      db.CaseStatusCancelled,
	},
	db.CaseStatusResolved: {
		EventReopen: db.CaseStatusInProgress,
		EventClose:  db.CaseStatusClosed,
		EventCancel: db.CaseStatusCancelled,
	},
	db.CaseStatusClosed: {
		EventCancel: db.CaseStatusCancelled,
	},
	db.CaseStatusCancelled: {},
}

// NextStatus returns the status a case moves to when event fires in the
// given status, or ErrInvalidTransition.
func NextStatus(current, event string) (string, error) {
	events, ok := transitions[current]
	if !ok {
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, current)
	}
	next, ok := events[event]
	if !ok {
		if current == db.CaseStatusCancelled {
			return "", fmt.Errorf("%w: cancelled", ErrTerminalStatus)
		}
		return "", fmt.Errorf("%w: cannot %s a %s case", ErrInvalidTransition, event, current)
	}
	return next, nil
}

// CanTransition reports whether event is legal in the given status.
func CanTransition(current, event string) bool {
	_, err := NextStatus(current, event)
	return err == nil
}
