package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/telcoops/casedesk/db"
	"github.com/telcoops/casedesk/internal/config"
)

// CaseService owns the case lifecycle: creation, assignment, status
// transitions and the activity feed. Every mutating call takes the acting
// user explicitly; there is no ambient identity.
type CaseService struct {
	PG      *sql.DB
	History *HistoryService
	Notify  NotificationSender
}

func NewCaseService(pg *sql.DB, history *HistoryService, notify NotificationSender) *CaseService {
	return &CaseService{PG: pg, History: history, Notify: notify}
}

const caseColumns = `
	id, case_number, title, description, status, severity, category, source,
	grafana_alert_uid, alert_fingerprint, alert_count, value, threshold, labels,
	sla_deadline, sla_breached, resolution, resolution_time_minutes,
	created_at, updated_at, assigned_at, resolved_at, closed_at`

func scanCase(row rowScanner) (*db.Case, error) {
	var c db.Case
	var labels []byte
	err := row.Scan(
		&c.ID, &c.CaseNumber, &c.Title, &c.Description, &c.Status, &c.Severity, &c.Category, &c.Source,
		&c.GrafanaAlertUID, &c.AlertFingerprint, &c.AlertCount, &c.Value, &c.Threshold, &labels,
		&c.SLADeadline, &c.SLABreached, &c.Resolution, &c.ResolutionTimeMinutes,
		&c.CreatedAt, &c.UpdatedAt, &c.AssignedAt, &c.ResolvedAt, &c.ClosedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(labels) > 0 {
		if err := json.Unmarshal(labels, &c.Labels); err != nil {
			log.Printf("WARNING: case %d has unreadable labels: %v", c.ID, err)
		}
	}
	return &c, nil
}

// GetCase loads one case with its current assignees.
func (s *CaseService) GetCase(ctx context.Context, id int64) (*db.Case, error) {
	row := s.PG.QueryRowContext(ctx, `SELECT`+caseColumns+` FROM cases WHERE id = $1`, id)
	c, err := scanCase(row)
	if err == sql.ErrNoRows {
		return nil, ErrCaseNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := s.loadAssignees(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CaseService) loadAssignees(ctx context.Context, c *db.Case) error {
	rows, err := s.PG.QueryContext(ctx,
		`SELECT user_id, team_id FROM case_assignees WHERE case_id = $1`, c.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	c.Assignment = db.Assignment{}
	for rows.Next() {
		var userID, teamID *int64
		if err := rows.Scan(&userID, &teamID); err != nil {
			return err
		}
		if userID != nil {
			c.Assignment.UserIDs = append(c.Assignment.UserIDs, *userID)
		}
		if teamID != nil {
			c.Assignment.TeamIDs = append(c.Assignment.TeamIDs, *teamID)
		}
	}
	return rows.Err()
}

// CaseFilters narrows ListCases.
type CaseFilters struct {
	Status   string
	Severity string
	Category string
	UserID   *int64
	RuleUID  string
	Limit    int
	Offset   int
}

func (s *CaseService) ListCases(ctx context.Context, f CaseFilters) ([]db.Case, error) {
	query := `SELECT` + caseColumns + ` FROM cases WHERE 1=1`
	args := []interface{}{}
	idx := 1

	if f.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, db.NormalizeStatus(f.Status))
		idx++
	}
	if f.Severity != "" {
		query += fmt.Sprintf(" AND severity = $%d", idx)
		args = append(args, f.Severity)
		idx++
	}
	if f.Category != "" {
		query += fmt.Sprintf(" AND category = $%d", idx)
		args = append(args, f.Category)
		idx++
	}
	if f.RuleUID != "" {
		query += fmt.Sprintf(" AND grafana_alert_uid = $%d", idx)
		args = append(args, f.RuleUID)
		idx++
	}
	if f.UserID != nil {
		query += fmt.Sprintf(" AND id IN (SELECT case_id FROM case_assignees WHERE user_id = $%d)", idx)
		args = append(args, *f.UserID)
		idx++
	}

	query += " ORDER BY created_at DESC"
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	query += fmt.Sprintf(" LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.PG.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cases []db.Case
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, err
		}
		cases = append(cases, *c)
	}
	return cases, rows.Err()
}

// nextCaseNumber allocates CASE-<year>-<seq> from the per-year counter.
func (s *CaseService) nextCaseNumber(ctx context.Context, tx *sql.Tx, now time.Time) (string, error) {
	var seq int64
	err := tx.QueryRowContext(ctx, `
		INSERT INTO case_counters (year, seq) VALUES ($1, 1)
		ON CONFLICT (year) DO UPDATE SET seq = case_counters.seq + 1
		RETURNING seq`, now.Year()).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("CASE-%d-%05d", now.Year(), seq), nil
}

func slaDeadline(severity string, from time.Time) time.Time {
	var hours int
	switch severity {
	case db.SeverityCritical:
		hours = config.App.SLA.CriticalHours
	case db.SeverityHigh:
		hours = config.App.SLA.HighHours
	case db.SeverityMedium:
		hours = config.App.SLA.MediumHours
	default:
		hours = config.App.SLA.LowHours
	}
	return from.Add(time.Duration(hours) * time.Hour)
}

// CreateCase inserts a new case. A unique violation on the open-fingerprint
// index is surfaced as ErrDuplicateFingerprint so the ingestion pipeline
// can fold into the surviving case.
func (s *CaseService) CreateCase(ctx context.Context, c *db.Case, actorID int64) (*db.Case, error) {
	if c.Title == "" {
		return nil, fmt.Errorf("title is required")
	}
	if c.Severity == "" {
		c.Severity = db.SeverityMedium
	}
	if !db.ValidSeverity(c.Severity) {
		return nil, ErrInvalidSeverity
	}
	if c.Source == "" {
		c.Source = "manual"
	}
	if c.AlertCount == 0 {
		c.AlertCount = 1
	}
	now := time.Now().UTC()
	c.Status = db.CaseStatusOpen
	deadline := slaDeadline(c.Severity, now)
	c.SLADeadline = &deadline
	c.CreatedBy = actorID

	labels, err := json.Marshal(c.Labels)
	if err != nil {
		return nil, err
	}
	if c.Labels == nil {
		labels = []byte("{}")
	}

	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	c.CaseNumber, err = s.nextCaseNumber(ctx, tx, now)
	if err != nil {
		return nil, err
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO cases
			(case_number, title, description, status, severity, category, source,
			 grafana_alert_uid, alert_fingerprint, alert_count, value, threshold, labels,
			 sla_deadline, created_at, updated_at, created_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $15, $16)
		RETURNING id`,
		c.CaseNumber, c.Title, c.Description, c.Status, c.Severity, c.Category, c.Source,
		c.GrafanaAlertUID, c.AlertFingerprint, c.AlertCount, c.Value, c.Threshold, labels,
		c.SLADeadline, now, actorID,
	).Scan(&c.ID)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrDuplicateFingerprint
		}
		return nil, err
	}
	c.CreatedAt = now
	c.UpdatedAt = now

	if err := s.appendActivityTx(ctx, tx, c.ID, db.ActivityCaseCreated,
		map[string]interface{}{"case_number": c.CaseNumber, "severity": c.Severity}, &actorID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	log.Printf("INFO: created case %s (id=%d, severity=%s, source=%s)", c.CaseNumber, c.ID, c.Severity, c.Source)
	return c, nil
}

// refireActivityData builds the activity payload for a folded re-fire.
// Re-fires outside the dedup window are flagged so a long-lived open case
// accumulating stale alerts stands out in the feed.
func refireActivityData(occurredAt time.Time, withinWindow bool) map[string]interface{} {
	data := map[string]interface{}{"occurred_at": occurredAt}
	if !withinWindow {
		data["outside_dedup_window"] = true
	}
	return data
}

// RecordRefire folds a repeat alert into an existing open case: bumps the
// alert count, refreshes the evaluation values and leaves an activity row.
func (s *CaseService) RecordRefire(ctx context.Context, caseID int64, value, threshold *float64, occurredAt time.Time, withinWindow bool) error {
	res, err := s.PG.ExecContext(ctx, `
		UPDATE cases
		SET alert_count = alert_count + 1,
		    value = COALESCE($1, value),
		    threshold = COALESCE($2, threshold),
		    updated_at = $3
		WHERE id = $4 AND status NOT IN ('resolved', 'closed', 'cancelled')`,
		value, threshold, occurredAt, caseID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrCaseNotFound
	}

	actor := db.SystemActorGrafana
	return s.appendActivity(ctx, caseID, db.ActivityAlertRefired,
		refireActivityData(occurredAt, withinWindow), &actor)
}

// AssignCase replaces the case's assignees, records one ledger row and
// notifies the new owners. Legal on open, assigned and in_progress cases;
// assignment from open moves the case to assigned.
func (s *CaseService) AssignCase(ctx context.Context, caseID int64, req *db.AssignCaseRequest, actorID int64) (*db.Case, error) {
	if len(req.UserIDs) == 0 && len(req.TeamIDs) == 0 {
		return nil, ErrEmptyAssignment
	}
	reason := req.Reason
	if reason == "" {
		reason = db.AssignReasonManual
	}

	c, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	next, err := NextStatus(c.Status, EventAssign)
	if err != nil {
		return nil, err
	}

	prev := c.Assignment
	now := time.Now().UTC()

	tx, err := s.PG.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE cases
		SET status = $1, assigned_at = COALESCE(assigned_at, $2), updated_at = $2
		WHERE id = $3 AND status IN ('open', 'assigned', 'in_progress')`,
		next, now, caseID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrInvalidTransition
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM case_assignees WHERE case_id = $1`, caseID); err != nil {
		return nil, err
	}
	for _, userID := range req.UserIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO case_assignees (case_id, user_id) VALUES ($1, $2)`, caseID, userID); err != nil {
			return nil, err
		}
	}
	for _, teamID := range req.TeamIDs {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO case_assignees (case_id, team_id) VALUES ($1, $2)`, caseID, teamID); err != nil {
			return nil, err
		}
	}

	h := &db.AssignmentHistory{
		CaseID:  caseID,
		Reason:  reason,
		ActorID: actorID,
		Notes:   req.Note,
	}
	if len(prev.UserIDs) > 0 {
		h.FromUserID = &prev.UserIDs[0]
	}
	if len(prev.TeamIDs) > 0 {
		h.FromTeamID = &prev.TeamIDs[0]
	}
	if len(req.UserIDs) > 0 {
		h.ToUserID = &req.UserIDs[0]
	}
	if len(req.TeamIDs) > 0 {
		h.ToTeamID = &req.TeamIDs[0]
	}
	if err := s.History.Record(ctx, tx, h); err != nil {
		return nil, err
	}

	if err := s.appendActivityTx(ctx, tx, caseID, db.ActivityCaseAssigned,
		map[string]interface{}{"user_ids": req.UserIDs, "team_ids": req.TeamIDs, "reason": reason}, &actorID); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	c.Status = next
	c.Assignment = db.Assignment{UserIDs: req.UserIDs, TeamIDs: req.TeamIDs}
	c.UpdatedAt = now
	if c.AssignedAt == nil {
		c.AssignedAt = &now
	}

	s.sendNotification(&db.Notification{
		CaseID:   caseID,
		Kind:     NotifyCaseAssigned,
		Priority: c.Severity,
		UserIDs:  req.UserIDs,
		TeamIDs:  req.TeamIDs,
	})

	log.Printf("INFO: assigned case %d to users=%v teams=%v (reason=%s)", caseID, req.UserIDs, req.TeamIDs, reason)
	return c, nil
}

// AcknowledgeCase moves an assigned or in-progress case to in_progress.
func (s *CaseService) AcknowledgeCase(ctx context.Context, caseID int64, note string, actorID int64) (*db.Case, error) {
	return s.transition(ctx, caseID, EventAcknowledge, db.ActivityCaseAcked,
		map[string]interface{}{"note": note}, actorID,
		`UPDATE cases SET status = $1, updated_at = $2 WHERE id = $3 AND status IN ('assigned', 'in_progress')`)
}

// ResolveCase marks a non-terminal case resolved and stamps the resolution
// time.
func (s *CaseService) ResolveCase(ctx context.Context, caseID int64, req *db.ResolveCaseRequest, actorID int64) (*db.Case, error) {
	c, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	next, err := NextStatus(c.Status, EventResolve)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	minutes := int64(now.Sub(c.CreatedAt).Minutes())

	res, err := s.PG.ExecContext(ctx, `
		UPDATE cases
		SET status = $1, resolution = $2, resolved_at = $3,
		    resolution_time_minutes = $4, updated_at = $3
		WHERE id = $5 AND status IN ('open', 'assigned', 'in_progress')`,
		next, req.Resolution, now, minutes, caseID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrInvalidTransition
	}

	if err := s.appendActivity(ctx, caseID, db.ActivityCaseResolved,
		map[string]interface{}{"resolution": req.Resolution, "note": req.Note}, &actorID); err != nil {
		log.Printf("WARNING: activity append failed for case %d: %v", caseID, err)
	}

	c.Status = next
	c.Resolution = req.Resolution
	c.ResolvedAt = &now
	c.ResolutionTimeMinutes = &minutes
	c.UpdatedAt = now

	s.sendNotification(&db.Notification{
		CaseID:   caseID,
		Kind:     NotifyCaseResolved,
		Priority: c.Severity,
		UserIDs:  c.Assignment.UserIDs,
		TeamIDs:  c.Assignment.TeamIDs,
	})

	log.Printf("INFO: resolved case %d after %d minutes", caseID, minutes)
	return c, nil
}

// AutoResolve handles a recovery notification from the alert source.
// Cases nobody started working (open, assigned) resolve automatically;
// in_progress cases only get an activity note, the working engineer
// decides when they are done.
func (s *CaseService) AutoResolve(ctx context.Context, caseID int64, resolvedAt time.Time) (*db.Case, error) {
	c, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	actor := db.SystemActorGrafana

	if c.Status == db.CaseStatusInProgress {
		if err := s.appendActivity(ctx, caseID, db.ActivityCaseResolved,
			map[string]interface{}{"auto": false, "note": "alert recovered, case stays in progress"}, &actor); err != nil {
			log.Printf("WARNING: activity append failed for case %d: %v", caseID, err)
		}
		log.Printf("INFO: alert recovered for in-progress case %d, leaving status unchanged", caseID)
		return c, nil
	}

	minutes := int64(resolvedAt.Sub(c.CreatedAt).Minutes())
	res, err := s.PG.ExecContext(ctx, `
		UPDATE cases
		SET status = 'resolved', resolution = 'auto-resolved: alert recovered',
		    resolved_at = $1, resolution_time_minutes = $2, updated_at = $1
		WHERE id = $3 AND status IN ('open', 'assigned')`,
		resolvedAt, minutes, caseID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// Status moved under us; re-read and report as-is.
		return s.GetCase(ctx, caseID)
	}

	if err := s.appendActivity(ctx, caseID, db.ActivityCaseResolved,
		map[string]interface{}{"auto": true}, &actor); err != nil {
		log.Printf("WARNING: activity append failed for case %d: %v", caseID, err)
	}

	c.Status = db.CaseStatusResolved
	c.Resolution = "auto-resolved: alert recovered"
	c.ResolvedAt = &resolvedAt
	c.ResolutionTimeMinutes = &minutes
	c.UpdatedAt = resolvedAt

	s.sendNotification(&db.Notification{
		CaseID:   caseID,
		Kind:     NotifyCaseResolved,
		Priority: c.Severity,
		UserIDs:  c.Assignment.UserIDs,
		TeamIDs:  c.Assignment.TeamIDs,
	})

	log.Printf("INFO: auto-resolved case %d on alert recovery", caseID)
	return c, nil
}

// ReopenCase pushes a resolved case back to in_progress and clears the
// resolution timestamps. Closed cases stay closed.
func (s *CaseService) ReopenCase(ctx context.Context, caseID int64, reason string, actorID int64) (*db.Case, error) {
	c, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	next, err := NextStatus(c.Status, EventReopen)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.PG.ExecContext(ctx, `
		UPDATE cases
		SET status = $1, resolved_at = NULL, closed_at = NULL,
		    resolution_time_minutes = NULL, updated_at = $2
		WHERE id = $3 AND status = 'resolved'`,
		next, now, caseID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrInvalidTransition
	}

	if err := s.appendActivity(ctx, caseID, db.ActivityCaseReopened,
		map[string]interface{}{"reason": reason}, &actorID); err != nil {
		log.Printf("WARNING: activity append failed for case %d: %v", caseID, err)
	}

	c.Status = next
	c.ResolvedAt = nil
	c.ClosedAt = nil
	c.ResolutionTimeMinutes = nil
	c.UpdatedAt = now
	log.Printf("INFO: reopened case %d (reason=%s)", caseID, reason)
	return c, nil
}

// CloseCase closes a resolved or in_progress case. Closing straight from
// in_progress also stamps resolved_at so closed cases always carry a
// resolution time.
func (s *CaseService) CloseCase(ctx context.Context, caseID int64, reason string, actorID int64) (*db.Case, error) {
	c, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	next, err := NextStatus(c.Status, EventClose)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	minutes := int64(now.Sub(c.CreatedAt).Minutes())

	res, err := s.PG.ExecContext(ctx, `
		UPDATE cases
		SET status = $1, closed_at = $2,
		    resolved_at = COALESCE(resolved_at, $2),
		    resolution_time_minutes = COALESCE(resolution_time_minutes, $3),
		    updated_at = $2
		WHERE id = $4 AND status IN ('resolved', 'in_progress')`,
		next, now, minutes, caseID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrInvalidTransition
	}

	if err := s.appendActivity(ctx, caseID, db.ActivityCaseClosed,
		map[string]interface{}{"reason": reason}, &actorID); err != nil {
		log.Printf("WARNING: activity append failed for case %d: %v", caseID, err)
	}

	c.Status = next
	c.ClosedAt = &now
	if c.ResolvedAt == nil {
		c.ResolvedAt = &now
		c.ResolutionTimeMinutes = &minutes
	}
	c.UpdatedAt = now
	log.Printf("INFO: closed case %d", caseID)
	return c, nil
}

// CancelCase cancels a case from any non-cancelled status.
func (s *CaseService) CancelCase(ctx context.Context, caseID int64, reason string, actorID int64) (*db.Case, error) {
	c, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	next, err := NextStatus(c.Status, EventCancel)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.PG.ExecContext(ctx, `
		UPDATE cases SET status = $1, updated_at = $2
		WHERE id = $3 AND status <> 'cancelled'`, next, now, caseID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrTerminalStatus
	}

	if err := s.appendActivity(ctx, caseID, db.ActivityCaseCancelled,
		map[string]interface{}{"reason": reason}, &actorID); err != nil {
		log.Printf("WARNING: activity append failed for case %d: %v", caseID, err)
	}

	c.Status = next
	c.UpdatedAt = now
	log.Printf("INFO: cancelled case %d (reason=%s)", caseID, reason)
	return c, nil
}

// transition handles the single-guarded-UPDATE transitions.
func (s *CaseService) transition(ctx context.Context, caseID int64, event, activityType string,
	data map[string]interface{}, actorID int64, query string) (*db.Case, error) {

	c, err := s.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	next, err := NextStatus(c.Status, event)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := s.PG.ExecContext(ctx, query, next, now, caseID)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrInvalidTransition
	}

	if err := s.appendActivity(ctx, caseID, activityType, data, &actorID); err != nil {
		log.Printf("WARNING: activity append failed for case %d: %v", caseID, err)
	}

	c.Status = next
	c.UpdatedAt = now
	return c, nil
}

// AddComment stores a human comment on a case.
func (s *CaseService) AddComment(ctx context.Context, caseID int64, body string, authorID int64) (*db.CaseComment, error) {
	if _, err := s.GetCase(ctx, caseID); err != nil {
		return nil, err
	}

	comment := &db.CaseComment{CaseID: caseID, AuthorID: authorID, Body: body}
	err := s.PG.QueryRowContext(ctx, `
		INSERT INTO case_comments (case_id, author_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`, caseID, authorID, body,
	).Scan(&comment.ID, &comment.CreatedAt)
	if err != nil {
		return nil, err
	}
	return comment, nil
}

func (s *CaseService) GetComments(ctx context.Context, caseID int64) ([]db.CaseComment, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT cc.id, cc.case_id, cc.author_id, cc.body, cc.created_at, COALESCE(u.name, '')
		FROM case_comments cc
		LEFT JOIN users u ON u.id = cc.author_id
		WHERE cc.case_id = $1
		ORDER BY cc.created_at ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []db.CaseComment
	for rows.Next() {
		var cm db.CaseComment
		if err := rows.Scan(&cm.ID, &cm.CaseID, &cm.AuthorID, &cm.Body, &cm.CreatedAt, &cm.AuthorName); err != nil {
			return nil, err
		}
		comments = append(comments, cm)
	}
	return comments, rows.Err()
}

func (s *CaseService) GetActivity(ctx context.Context, caseID int64) ([]db.CaseActivity, error) {
	rows, err := s.PG.QueryContext(ctx, `
		SELECT a.id, a.case_id, a.type, a.data, a.actor_id, a.created_at, COALESCE(u.name, '')
		FROM case_activity a
		LEFT JOIN users u ON u.id = a.actor_id
		WHERE a.case_id = $1
		ORDER BY a.created_at ASC`, caseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var activity []db.CaseActivity
	for rows.Next() {
		var a db.CaseActivity
		var data []byte
		if err := rows.Scan(&a.ID, &a.CaseID, &a.Type, &data, &a.ActorID, &a.CreatedAt, &a.ActorName); err != nil {
			return nil, err
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &a.Data); err != nil {
				log.Printf("WARNING: activity %s has unreadable data: %v", a.ID, err)
			}
		}
		activity = append(activity, a)
	}
	return activity, rows.Err()
}

// GetStats returns case counts by status and severity.
func (s *CaseService) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := map[string]interface{}{}

	byStatus := map[string]int{}
	rows, err := s.PG.QueryContext(ctx, `SELECT status, COUNT(*) FROM cases GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		byStatus[status] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	stats["by_status"] = byStatus

	bySeverity := map[string]int{}
	sevRows, err := s.PG.QueryContext(ctx, `
		SELECT severity, COUNT(*) FROM cases
		WHERE status NOT IN ('resolved', 'closed', 'cancelled')
		GROUP BY severity`)
	if err != nil {
		return nil, err
	}
	defer sevRows.Close()
	for sevRows.Next() {
		var severity string
		var n int
		if err := sevRows.Scan(&severity, &n); err != nil {
			return nil, err
		}
		bySeverity[severity] = n
	}
	if err := sevRows.Err(); err != nil {
		return nil, err
	}
	stats["open_by_severity"] = bySeverity

	var breached int
	if err := s.PG.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM cases
		WHERE sla_breached = TRUE AND status NOT IN ('resolved', 'closed', 'cancelled')`).Scan(&breached); err != nil {
		return nil, err
	}
	stats["sla_breached_open"] = breached

	return stats, nil
}

func (s *CaseService) appendActivity(ctx context.Context, caseID int64, activityType string,
	data map[string]interface{}, actorID *int64) error {

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = s.PG.ExecContext(ctx, `
		INSERT INTO case_activity (id, case_id, type, data, actor_id)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), caseID, activityType, payload, actorID)
	return err
}

func (s *CaseService) appendActivityTx(ctx context.Context, tx *sql.Tx, caseID int64, activityType string,
	data map[string]interface{}, actorID *int64) error {

	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO case_activity (id, case_id, type, data, actor_id)
		VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), caseID, activityType, payload, actorID)
	return err
}

func (s *CaseService) sendNotification(n *db.Notification) {
	if s.Notify == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Notify.Send(ctx, n); err != nil {
			log.Printf("ERROR: notification send failed for case %d: %v", n.CaseID, err)
		}
	}()
}
