package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/telcoops/casedesk/db"
)

var caseTestColumns = []string{
	"id", "case_number", "title", "description", "status", "severity", "category", "source",
	"grafana_alert_uid", "alert_fingerprint", "alert_count", "value", "threshold", "labels",
	"sla_deadline", "sla_breached", "resolution", "resolution_time_minutes",
	"created_at", "updated_at", "assigned_at", "resolved_at", "closed_at",
}

func expectGetCase(mock sqlmock.Sqlmock, id int64, status string) {
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT(.|\s)+FROM cases WHERE id =`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows(caseTestColumns).AddRow(
			id, "CASE-2026-00001", "BTS down", "", status, db.SeverityHigh, "ran", "webhook",
			"rule-1", "fp-1", 1, nil, nil, []byte(`{}`),
			nil, false, "", nil,
			now.Add(-time.Hour), now, nil, nil, nil,
		))
	mock.ExpectQuery(`SELECT user_id, team_id FROM case_assignees`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"user_id", "team_id"}))
}

func newCaseService(t *testing.T) (*CaseService, sqlmock.Sqlmock, func()) {
	mockDB, mock, err := sqlmock.New()
	assert.NoError(t, err)
	svc := NewCaseService(mockDB, NewHistoryService(mockDB), nil)
	return svc, mock, func() { mockDB.Close() }
}

func TestGetCase_NotFound(t *testing.T) {
	svc, mock, done := newCaseService(t)
	defer done()

	mock.ExpectQuery(`SELECT(.|\s)+FROM cases WHERE id =`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(caseTestColumns))

	_, err := svc.GetCase(context.Background(), 99)
	assert.True(t, errors.Is(err, ErrCaseNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseCase_FromOpenRejected(t *testing.T) {
	svc, mock, done := newCaseService(t)
	defer done()

	expectGetCase(mock, 1, db.CaseStatusOpen)

	_, err := svc.CloseCase(context.Background(), 1, "duplicate", 7)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveCase_FromOpen(t *testing.T) {
	svc, mock, done := newCaseService(t)
	defer done()

	expectGetCase(mock, 1, db.CaseStatusOpen)

	mock.ExpectExec(`UPDATE cases`).
		WithArgs(db.CaseStatusResolved, "false alarm", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO case_activity`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c, err := svc.ResolveCase(context.Background(), 1, &db.ResolveCaseRequest{Resolution: "false alarm"}, 7)
	assert.NoError(t, err)
	assert.Equal(t, db.CaseStatusResolved, c.Status)
	assert.NotNil(t, c.ResolvedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReopenCase_FromClosedRejected(t *testing.T) {
	svc, mock, done := newCaseService(t)
	defer done()

	expectGetCase(mock, 1, db.CaseStatusClosed)

	_, err := svc.ReopenCase(context.Background(), 1, "alert refired", 7)
	assert.True(t, errors.Is(err, ErrInvalidTransition))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAcknowledgeCase_FromInProgress(t *testing.T) {
	svc, mock, done := newCaseService(t)
	defer done()

	expectGetCase(mock, 1, db.CaseStatusInProgress)

	mock.ExpectExec(`UPDATE cases`).
		WithArgs(db.CaseStatusInProgress, sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO case_activity`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c, err := svc.AcknowledgeCase(context.Background(), 1, "still digging", 7)
	assert.NoError(t, err)
	assert.Equal(t, db.CaseStatusInProgress, c.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCancelCase_FromCancelledRejected(t *testing.T) {
	svc, mock, done := newCaseService(t)
	defer done()

	expectGetCase(mock, 1, db.CaseStatusCancelled)

	_, err := svc.CancelCase(context.Background(), 1, "noise", 7)
	assert.True(t, errors.Is(err, ErrTerminalStatus))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCloseCase_FromInProgressStampsResolution(t *testing.T) {
	svc, mock, done := newCaseService(t)
	defer done()

	expectGetCase(mock, 1, db.CaseStatusInProgress)

	mock.ExpectExec(`UPDATE cases`).
		WithArgs(db.CaseStatusClosed, sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO case_activity`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c, err := svc.CloseCase(context.Background(), 1, "verified", 7)
	assert.NoError(t, err)
	assert.Equal(t, db.CaseStatusClosed, c.Status)
	assert.NotNil(t, c.ClosedAt)
	// Closing from in_progress must still yield a resolution timestamp.
	assert.NotNil(t, c.ResolvedAt)
	assert.NotNil(t, c.ResolutionTimeMinutes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestResolveCase_FromInProgress(t *testing.T) {
	svc, mock, done := newCaseService(t)
	defer done()

	expectGetCase(mock, 1, db.CaseStatusInProgress)

	mock.ExpectExec(`UPDATE cases`).
		WithArgs(db.CaseStatusResolved, "replaced faulty card", sqlmock.AnyArg(), sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO case_activity`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c, err := svc.ResolveCase(context.Background(), 1, &db.ResolveCaseRequest{Resolution: "replaced faulty card"}, 7)
	assert.NoError(t, err)
	assert.Equal(t, db.CaseStatusResolved, c.Status)
	assert.NotNil(t, c.ResolvedAt)
	assert.NotNil(t, c.ResolutionTimeMinutes)
	assert.True(t, *c.ResolutionTimeMinutes >= 59, "an hour-old case should record about an hour")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReopenCase_ClearsResolutionFields(t *testing.T) {
	svc, mock, done := newCaseService(t)
	defer done()

	expectGetCase(mock, 1, db.CaseStatusResolved)

	mock.ExpectExec(`UPDATE cases`).
		WithArgs(db.CaseStatusInProgress, sqlmock.AnyArg(), int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO case_activity`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	c, err := svc.ReopenCase(context.Background(), 1, "alert refired", 7)
	assert.NoError(t, err)
	assert.Equal(t, db.CaseStatusInProgress, c.Status)
	assert.Nil(t, c.ResolvedAt)
	assert.Nil(t, c.ClosedAt)
	assert.Nil(t, c.ResolutionTimeMinutes)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRefireActivityData(t *testing.T) {
	at := time.Now().UTC()

	recent := refireActivityData(at, true)
	assert.Equal(t, at, recent["occurred_at"])
	assert.NotContains(t, recent, "outside_dedup_window")

	stale := refireActivityData(at, false)
	assert.Equal(t, true, stale["outside_dedup_window"])
}

func TestAssignCase_EmptyAssignmentRejected(t *testing.T) {
	svc, _, done := newCaseService(t)
	defer done()

	_, err := svc.AssignCase(context.Background(), 1, &db.AssignCaseRequest{}, 7)
	assert.True(t, errors.Is(err, ErrEmptyAssignment))
}
