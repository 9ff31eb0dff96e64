package services

import (
	"context"
	"database/sql"

	"github.com/lib/pq"

	"github.com/telcoops/casedesk/db"
)

// RuleAssignmentService manages the routing table from alert-rule uids to
// responsible users/teams.
type RuleAssignmentService struct {
	PG *sql.DB
}

func NewRuleAssignmentService(pg *sql.DB) *RuleAssignmentService {
	return &RuleAssignmentService{PG: pg}
}

// GetByRuleUID returns the active assignment for a rule uid. A miss is not
// an error; the pipeline creates unassigned cases for unmapped rules.
func (s *RuleAssignmentService) GetByRuleUID(ctx context.Context, ruleUID string) (*db.RuleAssignment, error) {
	if ruleUID == "" {
		return nil, nil
	}

	row := s.PG.QueryRowContext(ctx, `
		SELECT id, rule_uid, rule_name, user_ids, team_ids,
		       default_severity, default_category, is_active, created_at, updated_at
		FROM rule_assignments
		WHERE rule_uid = $1 AND is_active = TRUE`, ruleUID)

	ra, err := scanRuleAssignment(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ra, nil
}

func (s *RuleAssignmentService) Get(ctx context.Context, id int64) (*db.RuleAssignment, error) {
	row := s.PG.QueryRowContext(ctx, `
		SELECT id, rule_uid, rule_name, user_ids, team_ids,
		       default_severity, default_category, is_active, created_at, updated_at
		FROM rule_assignments
		WHERE id = $1`, id)

	ra, err := scanRuleAssignment(row)
	if err == sql.ErrNoRows {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return ra, nil
}

func (s *RuleAssignmentService) List(ctx context.Context) ([]db.RuleAssignment, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT id, rule_uid, rule_name, user_ids, team_ids,
		       default_severity, default_category, is_active, created_at, updated_at
		FROM rule_assignments
		ORDER BY rule_uid ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []db.RuleAssignment
	for rows.Next() {
		ra, err := scanRuleAssignment(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *ra)
	}
	return list, rows.Err()
}

func (s *RuleAssignmentService) Create(ctx context.Context, req *db.CreateRuleAssignmentRequest, actorID int64) (*db.RuleAssignment, error) {
	ra := &db.RuleAssignment{
		RuleUID:         req.RuleUID,
		RuleName:        req.RuleName,
		UserIDs:         req.UserIDs,
		TeamIDs:         req.TeamIDs,
		DefaultSeverity: req.DefaultSeverity,
		DefaultCategory: req.DefaultCategory,
		IsActive:        true,
		CreatedBy:       actorID,
	}
	if ra.DefaultSeverity != "" && !db.ValidSeverity(ra.DefaultSeverity) {
		return nil, ErrInvalidSeverity
	}

	err := s.PG.QueryRowContext(ctx, `
		INSERT INTO rule_assignments
			(rule_uid, rule_name, user_ids, team_ids, default_severity, default_category, is_active, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, TRUE, $7)
		RETURNING id, created_at, updated_at`,
		ra.RuleUID, ra.RuleName, pq.Array(ra.UserIDs), pq.Array(ra.TeamIDs),
		ra.DefaultSeverity, ra.DefaultCategory, ra.CreatedBy,
	).Scan(&ra.ID, &ra.CreatedAt, &ra.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return ra, nil
}

func (s *RuleAssignmentService) Update(ctx context.Context, id int64, req *db.UpdateRuleAssignmentRequest) (*db.RuleAssignment, error) {
	ra, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if req.RuleName != nil {
		ra.RuleName = *req.RuleName
	}
	if req.UserIDs != nil {
		ra.UserIDs = req.UserIDs
	}
	if req.TeamIDs != nil {
		ra.TeamIDs = req.TeamIDs
	}
	if req.DefaultSeverity != nil {
		if *req.DefaultSeverity != "" && !db.ValidSeverity(*req.DefaultSeverity) {
			return nil, ErrInvalidSeverity
		}
		ra.DefaultSeverity = *req.DefaultSeverity
	}
	if req.DefaultCategory != nil {
		ra.DefaultCategory = *req.DefaultCategory
	}
	if req.IsActive != nil {
		ra.IsActive = *req.IsActive
	}

	err = s.PG.QueryRowContext(ctx, `
		UPDATE rule_assignments
		SET rule_name = $1, user_ids = $2, team_ids = $3,
		    default_severity = $4, default_category = $5, is_active = $6, updated_at = NOW()
		WHERE id = $7
		RETURNING updated_at`,
		ra.RuleName, pq.Array(ra.UserIDs), pq.Array(ra.TeamIDs),
		ra.DefaultSeverity, ra.DefaultCategory, ra.IsActive, id,
	).Scan(&ra.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrRuleNotFound
	}
	if err != nil {
		return nil, err
	}
	return ra, nil
}

func (s *RuleAssignmentService) Delete(ctx context.Context, id int64) error {
	res, err := s.PG.ExecContext(ctx, `DELETE FROM rule_assignments WHERE id = $1`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRuleNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRuleAssignment(row rowScanner) (*db.RuleAssignment, error) {
	var ra db.RuleAssignment
	var userIDs, teamIDs pq.Int64Array
	err := row.Scan(
		&ra.ID, &ra.RuleUID, &ra.RuleName, &userIDs, &teamIDs,
		&ra.DefaultSeverity, &ra.DefaultCategory, &ra.IsActive, &ra.CreatedAt, &ra.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	ra.UserIDs = userIDs
	ra.TeamIDs = teamIDs
	return &ra, nil
}
