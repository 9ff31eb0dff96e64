package services

import (
	"errors"
	"testing"

	"github.com/telcoops/casedesk/db"
)

func TestNextStatus(t *testing.T) {
	tests := []struct {
		name    string
		current string
		event   string
		want    string
		wantErr error
	}{
		{"assign open", db.CaseStatusOpen, EventAssign, db.CaseStatusAssigned, nil},
		{"reassign assigned", db.CaseStatusAssigned, EventAssign, db.CaseStatusAssigned, nil},
		{"acknowledge assigned", db.CaseStatusAssigned, EventAcknowledge, db.CaseStatusInProgress, nil},
		{"acknowledge in progress", db.CaseStatusInProgress, EventAcknowledge, db.CaseStatusInProgress, nil},
		{"reassign in progress keeps status", db.CaseStatusInProgress, EventAssign, db.CaseStatusInProgress, nil},
		{"resolve open", db.CaseStatusOpen, EventResolve, db.CaseStatusResolved, nil},
		{"resolve assigned", db.CaseStatusAssigned, EventResolve, db.CaseStatusResolved, nil},
		{"resolve in progress", db.CaseStatusInProgress, EventResolve, db.CaseStatusResolved, nil},
		{"close resolved", db.CaseStatusResolved, EventClose, db.CaseStatusClosed, nil},
		{"close in progress", db.CaseStatusInProgress, EventClose, db.CaseStatusClosed, nil},
		{"reopen resolved", db.CaseStatusResolved, EventReopen, db.CaseStatusInProgress, nil},
		{"cancel open", db.CaseStatusOpen, EventCancel, db.CaseStatusCancelled, nil},
		{"cancel closed", db.CaseStatusClosed, EventCancel, db.CaseStatusCancelled, nil},

		{"close open rejected", db.CaseStatusOpen, EventClose, "", ErrInvalidTransition},
		{"close assigned rejected", db.CaseStatusAssigned, EventClose, "", ErrInvalidTransition},
		{"reopen open rejected", db.CaseStatusOpen, EventReopen, "", ErrInvalidTransition},
		{"reopen closed rejected", db.CaseStatusClosed, EventReopen, "", ErrInvalidTransition},
		{"resolve resolved rejected", db.CaseStatusResolved, EventResolve, "", ErrInvalidTransition},
		{"acknowledge open rejected", db.CaseStatusOpen, EventAcknowledge, "", ErrInvalidTransition},
		{"assign resolved rejected", db.CaseStatusResolved, EventAssign, "", ErrInvalidTransition},
		{"cancelled is terminal", db.CaseStatusCancelled, EventReopen, "", ErrTerminalStatus},
		{"cancel cancelled rejected", db.CaseStatusCancelled, EventCancel, "", ErrTerminalStatus},
		{"unknown status", "weird", EventAssign, "", ErrInvalidTransition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NextStatus(tt.current, tt.event)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NextStatus(%q, %q) err = %v, want %v", tt.current, tt.event, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("NextStatus(%q, %q) unexpected error: %v", tt.current, tt.event, err)
			}
			if got != tt.want {
				t.Errorf("NextStatus(%q, %q) = %q, want %q", tt.current, tt.event, got, tt.want)
			}
		})
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransition(db.CaseStatusOpen, EventAssign) {
		t.Error("open should accept assign")
	}
	if CanTransition(db.CaseStatusOpen, EventClose) {
		t.Error("open should reject close")
	}
	if CanTransition(db.CaseStatusCancelled, EventCancel) {
		t.Error("cancelled should reject everything")
	}
}
