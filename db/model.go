package db

import "time"

// ===========================
// CASE MODELS
// ===========================

// Case statuses
const (
	CaseStatusOpen       = "open"
	CaseStatusAssigned   = "assigned"
	CaseStatusInProgress = "in_progress"
	CaseStatusResolved   = "resolved"
	CaseStatusClosed     = "closed"
	CaseStatusCancelled  = "cancelled"
)

// Case severities (canonical representation; numeric priority is derived)
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// Assignment reasons recorded in the history ledger
const (
	AssignReasonInitial         = "initial"
	AssignReasonManual          = "manual"
	AssignReasonWorkloadBalance = "workload_balance"
	AssignReasonEscalation      = "escalation"
	AssignReasonShiftChange     = "shift_change"
	AssignReasonUnavailable     = "unavailable"
	AssignReasonAutoAssign      = "auto_assign"
	AssignReasonTeamRotation    = "team_rotation"
)

// Case activity types
const (
	ActivityCaseCreated   = "created"
	ActivityCaseAssigned  = "assigned"
	ActivityCaseAcked     = "acknowledged"
	ActivityCaseResolved  = "resolved"
	ActivityCaseReopened  = "reopened"
	ActivityCaseClosed    = "closed"
	ActivityCaseCancelled = "cancelled"
	ActivityAlertRefired  = "alert_refired"
	ActivitySLABreached   = "sla_breached"
)

// statusAliases maps frontend-specific statuses onto the canonical set.
// This is the single mapping table; handlers must not switch on raw input.
var statusAliases = map[string]string{
	"pending_customer": CaseStatusInProgress,
	"acknowledged":     CaseStatusInProgress,
	"done":             CaseStatusResolved,
	"canceled":         CaseStatusCancelled,
}

// NormalizeStatus maps a client-supplied status onto the canonical status
// set. Unknown values are returned unchanged so validation can reject them.
func NormalizeStatus(status string) string {
	if canonical, ok := statusAliases[status]; ok {
		return canonical
	}
	return status
}

// ValidStatus reports whether s is one of the canonical case statuses.
func ValidStatus(s string) bool {
	switch s {
	case CaseStatusOpen, CaseStatusAssigned, CaseStatusInProgress,
		CaseStatusResolved, CaseStatusClosed, CaseStatusCancelled:
		return true
	}
	return false
}

// ValidSeverity reports whether s is one of the canonical severities.
func ValidSeverity(s string) bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return true
	}
	return false
}

// PriorityForSeverity converts the canonical severity to the numeric
// priority projection used by some clients (1=critical .. 4=low).
// Priority is display-only and never persisted.
func PriorityForSeverity(severity string) int {
	switch severity {
	case SeverityCritical:
		return 1
	case SeverityHigh:
		return 2
	case SeverityMedium:
		return 3
	case SeverityLow:
		return 4
	default:
		return 3
	}
}

// SeverityForPriority is the inverse projection, for clients that still
// send numeric priorities.
func SeverityForPriority(priority int) string {
	switch priority {
	case 1:
		return SeverityCritical
	case 2:
		return SeverityHigh
	case 3:
		return SeverityMedium
	case 4:
		return SeverityLow
	default:
		return SeverityMedium
	}
}

// Assignment holds the ordered sets of assigned users and teams.
// Stored in the case_assignees join table, not as a JSON column.
type Assignment struct {
	UserIDs []int64 `json:"user_ids"`
	TeamIDs []int64 `json:"team_ids"`
}

// IsEmpty reports whether the case has no assignee at all.
func (a Assignment) IsEmpty() bool {
	return len(a.UserIDs) == 0 && len(a.TeamIDs) == 0
}

// Case is the central entity: one tracked operations case, usually spawned
// from a Grafana alert webhook.
type Case struct {
	ID          int64  `json:"id"`
	CaseNumber  string `json:"case_number"` // CASE-<year>-<5-digit-seq>
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status"`
	Severity    string `json:"severity"`
	Category    string `json:"category,omitempty"`
	Source      string `json:"source"` // webhook, manual

	// External correlation (dedup key)
	GrafanaAlertUID  string `json:"grafana_alert_uid,omitempty"` // alert-rule external id
	AlertFingerprint string `json:"alert_fingerprint,omitempty"`
	AlertCount       int    `json:"alert_count"`

	// Alert evaluation context, tolerant of absence
	Value     *float64 `json:"value,omitempty"`
	Threshold *float64 `json:"threshold,omitempty"`

	Labels map[string]interface{} `json:"labels,omitempty"`

	Assignment Assignment `json:"assignment"`

	// SLA
	SLADeadline *time.Time `json:"sla_deadline,omitempty"`
	SLABreached bool       `json:"sla_breached"`

	Resolution            string `json:"resolution,omitempty"`
	ResolutionTimeMinutes *int64 `json:"resolution_time_minutes,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	AssignedAt *time.Time `json:"assigned_at,omitempty"`
	ResolvedAt *time.Time `json:"resolved_at,omitempty"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`

	CreatedBy int64 `json:"created_by,omitempty"`
}

// Priority returns the derived numeric priority for display.
func (c *Case) Priority() int {
	return PriorityForSeverity(c.Severity)
}

// CaseResponse includes display names for API responses
type CaseResponse struct {
	Case
	AssigneeNames  []string       `json:"assignee_names,omitempty"`
	TeamNames      []string       `json:"team_names,omitempty"`
	RecentActivity []CaseActivity `json:"recent_activity,omitempty"`
}

// AssignmentHistory is one immutable row of the assignment audit ledger.
// Rows are appended once per assignment event and never mutated.
type AssignmentHistory struct {
	ID     int64 `json:"id"`
	CaseID int64 `json:"case_id"`

	FromUserID *int64 `json:"from_user_id,omitempty"`
	FromTeamID *int64 `json:"from_team_id,omitempty"`
	ToUserID   *int64 `json:"to_user_id,omitempty"`
	ToTeamID   *int64 `json:"to_team_id,omitempty"`

	Reason  string `json:"reason"`
	ActorID int64  `json:"actor_id"`
	Notes   string `json:"notes,omitempty"`

	// Open-case-count snapshots at record time, for workload analytics.
	// NULL when the snapshot could not be computed.
	FromOpenCases *int `json:"from_open_cases,omitempty"`
	ToOpenCases   *int `json:"to_open_cases,omitempty"`

	AssignedAt time.Time `json:"assigned_at"`

	// Display info (populated via JOINs)
	ToUserName   string `json:"to_user_name,omitempty"`
	FromUserName string `json:"from_user_name,omitempty"`
	ActorName    string `json:"actor_name,omitempty"`
}

// IsInitialAssignment reports whether this row records the very first
// assignment of its case (no previous owner of any kind).
func (h *AssignmentHistory) IsInitialAssignment() bool {
	return h.FromUserID == nil && h.FromTeamID == nil
}

// RuleAssignment maps one external alert-rule uid to the users/teams
// responsible for cases it spawns, plus default severity and category.
type RuleAssignment struct {
	ID       int64  `json:"id"`
	RuleUID  string `json:"rule_uid"`
	RuleName string `json:"rule_name,omitempty"`

	UserIDs []int64 `json:"user_ids"`
	TeamIDs []int64 `json:"team_ids"`

	DefaultSeverity string `json:"default_severity,omitempty"`
	DefaultCategory string `json:"default_category,omitempty"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	CreatedBy int64     `json:"created_by,omitempty"`
}

// CaseComment is a human-authored note on a case
type CaseComment struct {
	ID        int64     `json:"id"`
	CaseID    int64     `json:"case_id"`
	AuthorID  int64     `json:"author_id"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`

	AuthorName string `json:"author_name,omitempty"`
}

// CaseActivity is a system-written event on a case (status changes,
// re-fires, SLA breaches). Append-only.
type CaseActivity struct {
	ID        string                 `json:"id"` // uuid
	CaseID    int64                  `json:"case_id"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data,omitempty"`
	ActorID   *int64                 `json:"actor_id,omitempty"`
	CreatedAt time.Time              `json:"created_at"`

	ActorName string `json:"actor_name,omitempty"`
}

// Notification is a persisted notification intent. Delivery (email, push,
// websocket) is handled by external systems reading this table.
type Notification struct {
	ID          string     `json:"id"` // uuid
	CaseID      int64      `json:"case_id"`
	Kind        string     `json:"kind"` // case_assigned, case_resolved, alert_refired
	Priority    string     `json:"priority"`
	UserIDs     []int64    `json:"user_ids,omitempty"`
	TeamIDs     []int64    `json:"team_ids,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// APIKey authenticates webhook senders. Only the bcrypt hash is stored.
type APIKey struct {
	ID         int64      `json:"id"`
	Name       string     `json:"name"`
	KeyHash    string     `json:"-"`
	IsActive   bool       `json:"is_active"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// ===========================
// REQUEST / RESPONSE DTOs
// ===========================

type CreateCaseRequest struct {
	Title       string                 `json:"title" binding:"required"`
	Description string                 `json:"description"`
	Severity    string                 `json:"severity"`
	Category    string                 `json:"category"`
	Labels      map[string]interface{} `json:"labels"`
}

type AssignCaseRequest struct {
	UserIDs []int64 `json:"user_ids"`
	TeamIDs []int64 `json:"team_ids"`
	Reason  string  `json:"reason"`
	Note    string  `json:"note"`
}

type AcknowledgeCaseRequest struct {
	Note string `json:"note"`
}

type ResolveCaseRequest struct {
	Resolution string `json:"resolution"`
	Note       string `json:"note"`
}

type ReopenCaseRequest struct {
	Reason string `json:"reason"`
}

type CloseCaseRequest struct {
	Reason string `json:"reason"`
}

type CancelCaseRequest struct {
	Reason string `json:"reason"`
}

type AddCommentRequest struct {
	Body string `json:"body" binding:"required"`
}

type CreateRuleAssignmentRequest struct {
	RuleUID         string  `json:"rule_uid" binding:"required"`
	RuleName        string  `json:"rule_name"`
	UserIDs         []int64 `json:"user_ids"`
	TeamIDs         []int64 `json:"team_ids"`
	DefaultSeverity string  `json:"default_severity"`
	DefaultCategory string  `json:"default_category"`
}

type UpdateRuleAssignmentRequest struct {
	RuleName        *string `json:"rule_name,omitempty"`
	UserIDs         []int64 `json:"user_ids,omitempty"`
	TeamIDs         []int64 `json:"team_ids,omitempty"`
	DefaultSeverity *string `json:"default_severity,omitempty"`
	DefaultCategory *string `json:"default_category,omitempty"`
	IsActive        *bool   `json:"is_active,omitempty"`
}

// WebhookResponse is the envelope returned to webhook senders.
type WebhookResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
	Cases   []Case `json:"cases,omitempty"`
	Count   int    `json:"count"`
}
