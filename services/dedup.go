package services

import (
	"context"
	"database/sql"
	"time"

	"github.com/telcoops/casedesk/db"
)

// DedupService answers "is there already an open case for this alert?".
// The partial unique index on cases(alert_fingerprint) is the hard guard
// against races; this lookup is the fast path.
type DedupService struct {
	PG     *sql.DB
	Window time.Duration
}

func NewDedupService(pg *sql.DB, windowMinutes int) *DedupService {
	return &DedupService{PG: pg, Window: time.Duration(windowMinutes) * time.Minute}
}

// FindOpenCase returns the non-terminal case holding fingerprint, or nil
// when none exists. A still-open case absorbs the alert regardless of age
// (the unique index allows no second open case); WithinWindow tells the
// caller whether the re-fire is recent, which shapes the activity record.
func (s *DedupService) FindOpenCase(ctx context.Context, fingerprint string) (*db.Case, error) {
	if fingerprint == "" {
		return nil, nil
	}

	row := s.PG.QueryRowContext(ctx, `
		SELECT id, case_number, status, severity, alert_count, created_at, updated_at
		FROM cases
		WHERE alert_fingerprint = $1
		  AND status NOT IN ('resolved', 'closed', 'cancelled')
		LIMIT 1`, fingerprint)

	var c db.Case
	err := row.Scan(&c.ID, &c.CaseNumber, &c.Status, &c.Severity, &c.AlertCount, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	c.AlertFingerprint = fingerprint
	return &c, nil
}

// WithinWindow reports whether an alert at occurredAt falls inside the
// dedup window of the case's creation.
func (s *DedupService) WithinWindow(c *db.Case, occurredAt time.Time) bool {
	if c == nil {
		return false
	}
	return occurredAt.Sub(c.CreatedAt) <= s.Window
}
