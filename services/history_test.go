package services

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"

	"github.com/telcoops/casedesk/db"
)

func TestHistoryRecord_SnapshotsWorkload(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer mockDB.Close()

	svc := NewHistoryService(mockDB)

	fromUser := int64(4)
	toUser := int64(7)
	toTeam := int64(3)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM cases c`).
		WithArgs(fromUser).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(5))
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM cases c`).
		WithArgs(toUser).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	mock.ExpectQuery(`INSERT INTO assignment_history`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(11))

	tx, err := mockDB.Begin()
	assert.NoError(t, err)

	h := &db.AssignmentHistory{
		CaseID:     1,
		FromUserID: &fromUser,
		ToUserID:   &toUser,
		ToTeamID:   &toTeam,
		Reason:     db.AssignReasonEscalation,
		ActorID:    9,
	}
	err = svc.Record(context.Background(), tx, h)
	assert.NoError(t, err)
	assert.Equal(t, int64(11), h.ID)
	assert.NotNil(t, h.FromOpenCases)
	assert.Equal(t, 5, *h.FromOpenCases)
	assert.NotNil(t, h.ToOpenCases)
	assert.Equal(t, 2, *h.ToOpenCases)
	assert.False(t, h.AssignedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryRecord_SnapshotFailureDegradesToNull(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer mockDB.Close()

	svc := NewHistoryService(mockDB)

	toUser := int64(7)
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM cases c`).
		WithArgs(toUser).
		WillReturnError(fmt.Errorf("timeout"))

	mock.ExpectQuery(`INSERT INTO assignment_history`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(12))

	tx, err := mockDB.Begin()
	assert.NoError(t, err)

	h := &db.AssignmentHistory{
		CaseID:   1,
		ToUserID: &toUser,
		Reason:   db.AssignReasonInitial,
		ActorID:  db.SystemActorGrafana,
	}
	// A failed snapshot must not fail the assignment.
	err = svc.Record(context.Background(), tx, h)
	assert.NoError(t, err)
	assert.Nil(t, h.ToOpenCases)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHistoryListByCase(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer mockDB.Close()

	svc := NewHistoryService(mockDB)

	toUser := int64(7)
	cols := []string{
		"id", "case_id", "from_user_id", "from_team_id", "to_user_id", "to_team_id",
		"reason", "actor_id", "notes", "from_open_cases", "to_open_cases", "assigned_at",
		"to_user_name", "from_user_name", "actor_name",
	}
	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT h.id, h.case_id`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(cols).
			AddRow(10, 1, nil, nil, toUser, nil, db.AssignReasonInitial, db.SystemActorGrafana, "", nil, 2, now.Add(-time.Hour), "On-call NOC", "", "Grafana Webhook").
			AddRow(11, 1, toUser, nil, nil, 3, db.AssignReasonEscalation, 9, "tier 2", 4, nil, now, "", "On-call NOC", "Duty Manager"))

	history, err := svc.ListByCase(context.Background(), 1)
	assert.NoError(t, err)
	assert.Len(t, history, 2)
	assert.True(t, history[0].IsInitialAssignment())
	assert.False(t, history[1].IsInitialAssignment())
	assert.Equal(t, db.AssignReasonEscalation, history[1].Reason)
	assert.NoError(t, mock.ExpectationsWereMet())
}
