package services

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/telcoops/casedesk/db"
)

// HistoryService appends and reads the assignment audit ledger. Rows are
// written once and never touched again.
type HistoryService struct {
	PG *sql.DB
}

func NewHistoryService(pg *sql.DB) *HistoryService {
	return &HistoryService{PG: pg}
}

// openCasesForUser counts the user's current non-terminal cases. Used for
// the workload snapshot columns.
func (s *HistoryService) openCasesForUser(ctx context.Context, userID int64) (*int, error) {
	var n int
	err := s.PG.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cases c
		JOIN case_assignees a ON a.case_id = c.id
		WHERE a.user_id = $1 AND c.status NOT IN ('resolved', 'closed', 'cancelled')`,
		userID).Scan(&n)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// Record appends one ledger row inside the caller's transaction. Snapshot
// failures degrade to NULL counts; only the ledger insert itself can fail
// the assignment.
func (s *HistoryService) Record(ctx context.Context, tx *sql.Tx, h *db.AssignmentHistory) error {
	if h.FromUserID != nil {
		if n, err := s.openCasesForUser(ctx, *h.FromUserID); err == nil {
			h.FromOpenCases = n
		} else {
			log.Printf("WARNING: workload snapshot for user %d failed: %v", *h.FromUserID, err)
		}
	}
	if h.ToUserID != nil {
		if n, err := s.openCasesForUser(ctx, *h.ToUserID); err == nil {
			h.ToOpenCases = n
		} else {
			log.Printf("WARNING: workload snapshot for user %d failed: %v", *h.ToUserID, err)
		}
	}

	if h.AssignedAt.IsZero() {
		h.AssignedAt = time.Now().UTC()
	}

	return tx.QueryRowContext(ctx, `
		INSERT INTO assignment_history
			(case_id, from_user_id, from_team_id, to_user_id, to_team_id,
			 reason, actor_id, notes, from_open_cases, to_open_cases, assigned_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING id`,
		h.CaseID, h.FromUserID, h.FromTeamID, h.ToUserID, h.ToTeamID,
		h.Reason, h.ActorID, h.Notes, h.FromOpenCases, h.ToOpenCases, h.AssignedAt,
	).Scan(&h.ID)
}

// ListByCase returns the ledger for a case, oldest first, with display
// names joined in.
func (s *HistoryService) ListByCase(ctx context.Context, caseID int64) ([]db.AssignmentHistory, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT h.id, h.case_id, h.from_user_id, h.from_team_id, h.to_user_id, h.to_team_id,
		       h.reason, h.actor_id, h.notes, h.from_open_cases, h.to_open_cases, h.assigned_at,
		       COALESCE(tu.name, ''), COALESCE(fu.name, ''), COALESCE(au.name, '')
		FROM assignment_history h
		LEFT JOIN users tu ON tu.id = h.to_user_id
		LEFT JOIN users fu ON fu.id = h.from_user_id
		LEFT JOIN users au ON au.id = h.actor_id
		WHERE h.case_id = $1
		ORDER BY h.assigned_at ASC, h.id ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var history []db.AssignmentHistory
	for rows.Next() {
		var h db.AssignmentHistory
		if err := rows.Scan(
			&h.ID, &h.CaseID, &h.FromUserID, &h.FromTeamID, &h.ToUserID, &h.ToTeamID,
			&h.Reason, &h.ActorID, &h.Notes, &h.FromOpenCases, &h.ToOpenCases, &h.AssignedAt,
			&h.ToUserName, &h.FromUserName, &h.ActorName,
		); err != nil {
			return nil, err
		}
		history = append(history, h)
	}
	return history, rows.Err()
}
