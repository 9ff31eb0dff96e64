package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

var ruleColumns = []string{
	"id", "rule_uid", "rule_name", "user_ids", "team_ids",
	"default_severity", "default_category", "is_active", "created_at", "updated_at",
}

func TestGetByRuleUID_Found(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer mockDB.Close()

	svc := NewRuleAssignmentService(mockDB)

	now := time.Now().UTC()
	mock.ExpectQuery(`SELECT id, rule_uid, rule_name`).
		WithArgs("bts-down-01").
		WillReturnRows(sqlmock.NewRows(ruleColumns).AddRow(
			1, "bts-down-01", "BTS Down", []byte("{7}"), []byte("{3}"),
			"high", "ran", true, now, now))

	rule, err := svc.GetByRuleUID(context.Background(), "bts-down-01")
	assert.NoError(t, err)
	assert.NotNil(t, rule)
	assert.Equal(t, []int64{7}, rule.UserIDs)
	assert.Equal(t, []int64{3}, rule.TeamIDs)
	assert.Equal(t, "high", rule.DefaultSeverity)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByRuleUID_MissIsNotAnError(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer mockDB.Close()

	svc := NewRuleAssignmentService(mockDB)

	mock.ExpectQuery(`SELECT id, rule_uid, rule_name`).
		WithArgs("unmapped-rule").
		WillReturnRows(sqlmock.NewRows(ruleColumns))

	rule, err := svc.GetByRuleUID(context.Background(), "unmapped-rule")
	assert.NoError(t, err)
	assert.Nil(t, rule)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByRuleUID_EmptyUID(t *testing.T) {
	mockDB, _, err := sqlmock.New()
	assert.NoError(t, err)
	defer mockDB.Close()

	svc := NewRuleAssignmentService(mockDB)

	rule, err := svc.GetByRuleUID(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, rule)
}

func TestRuleAssignmentGet_NotFound(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer mockDB.Close()

	svc := NewRuleAssignmentService(mockDB)

	mock.ExpectQuery(`SELECT id, rule_uid, rule_name`).
		WithArgs(int64(99)).
		WillReturnRows(sqlmock.NewRows(ruleColumns))

	_, err = svc.Get(context.Background(), 99)
	assert.True(t, errors.Is(err, ErrRuleNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
