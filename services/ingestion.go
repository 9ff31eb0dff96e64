package services

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/telcoops/casedesk/db"
)

// AlertEvent is one normalized alert extracted from a webhook envelope.
type AlertEvent struct {
	RuleUID     string
	RuleName    string
	Fingerprint string
	Status      string // firing, resolved
	Severity    string
	Summary     string
	Description string
	Category    string
	Labels      map[string]interface{}
	Value       *float64
	Threshold   *float64
	OccurredAt  time.Time
	EndedAt     *time.Time
}

// IngestionService runs the webhook-to-case pipeline: dedup check, rule
// assignment lookup, case creation or fold-in, auto-assignment, and
// auto-resolution for recovered alerts.
type IngestionService struct {
	Cases *CaseService
	Dedup *DedupService
	Rules *RuleAssignmentService
}

func NewIngestionService(cases *CaseService, dedup *DedupService, rules *RuleAssignmentService) *IngestionService {
	return &IngestionService{Cases: cases, Dedup: dedup, Rules: rules}
}

// ProcessAlerts routes each alert by its status. One bad alert never sinks
// the batch; failures are logged and the rest continue.
func (s *IngestionService) ProcessAlerts(ctx context.Context, alerts []AlertEvent) ([]db.Case, int, error) {
	var touched []db.Case
	failures := 0

	for i := range alerts {
		alert := &alerts[i]
		var c *db.Case
		var err error

		switch alert.Status {
		case "resolved":
			c, err = s.ProcessResolved(ctx, alert)
		default:
			c, err = s.ProcessFiring(ctx, alert)
		}
		if err != nil {
			failures++
			log.Printf("ERROR: alert processing failed (rule=%s fingerprint=%s): %v",
				alert.RuleUID, alert.Fingerprint, err)
			continue
		}
		if c != nil {
			touched = append(touched, *c)
		}
	}

	return touched, failures, nil
}

// ProcessFiring handles a firing alert: fold into the open case for its
// fingerprint when one exists, otherwise create a new case and auto-assign
// it from the rule's routing entry.
func (s *IngestionService) ProcessFiring(ctx context.Context, alert *AlertEvent) (*db.Case, error) {
	if alert.OccurredAt.IsZero() {
		alert.OccurredAt = time.Now().UTC()
	}

	existing, err := s.Dedup.FindOpenCase(ctx, alert.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing != nil {
		withinWindow := s.Dedup.WithinWindow(existing, alert.OccurredAt)
		if !withinWindow {
			log.Printf("INFO: alert refire outside dedup window folds into still-open case %s", existing.CaseNumber)
		}
		if err := s.Cases.RecordRefire(ctx, existing.ID, alert.Value, alert.Threshold, alert.OccurredAt, withinWindow); err != nil {
			return nil, fmt.Errorf("record refire: %w", err)
		}
		return s.Cases.GetCase(ctx, existing.ID)
	}

	rule, err := s.Rules.GetByRuleUID(ctx, alert.RuleUID)
	if err != nil {
		return nil, fmt.Errorf("rule lookup: %w", err)
	}

	severity := alert.Severity
	category := alert.Category
	if rule != nil {
		if severity == "" && rule.DefaultSeverity != "" {
			severity = rule.DefaultSeverity
		}
		if category == "" {
			category = rule.DefaultCategory
		}
	}

	title := alert.Summary
	if title == "" {
		title = alert.RuleName
	}
	if title == "" {
		title = fmt.Sprintf("Alert %s", alert.Fingerprint)
	}

	c := &db.Case{
		Title:            title,
		Description:      alert.Description,
		Severity:         severity,
		Category:         category,
		Source:           "webhook",
		GrafanaAlertUID:  alert.RuleUID,
		AlertFingerprint: alert.Fingerprint,
		Labels:           alert.Labels,
		Value:            alert.Value,
		Threshold:        alert.Threshold,
	}

	created, err := s.Cases.CreateCase(ctx, c, db.SystemActorGrafana)
	if err == ErrDuplicateFingerprint {
		// Lost the insert race; the winner holds the case. Fold in.
		survivor, derr := s.Dedup.FindOpenCase(ctx, alert.Fingerprint)
		if derr != nil {
			return nil, fmt.Errorf("fingerprint conflict recovery: %w", derr)
		}
		if survivor == nil {
			return nil, fmt.Errorf("fingerprint conflict for %s but winning case already left open state", alert.Fingerprint)
		}
		withinWindow := s.Dedup.WithinWindow(survivor, alert.OccurredAt)
		if rerr := s.Cases.RecordRefire(ctx, survivor.ID, alert.Value, alert.Threshold, alert.OccurredAt, withinWindow); rerr != nil {
			return nil, fmt.Errorf("record refire after conflict: %w", rerr)
		}
		return s.Cases.GetCase(ctx, survivor.ID)
	}
	if err != nil {
		return nil, fmt.Errorf("create case: %w", err)
	}

	if rule != nil && (len(rule.UserIDs) > 0 || len(rule.TeamIDs) > 0) {
		assigned, err := s.Cases.AssignCase(ctx, created.ID, &db.AssignCaseRequest{
			UserIDs: rule.UserIDs,
			TeamIDs: rule.TeamIDs,
			Reason:  db.AssignReasonInitial,
			Note:    fmt.Sprintf("auto-assigned from rule %s", rule.RuleUID),
		}, db.SystemActorGrafana)
		if err != nil {
			// Case exists either way; leave it unassigned rather than fail.
			log.Printf("WARNING: auto-assign failed for case %d: %v", created.ID, err)
			return created, nil
		}
		return assigned, nil
	}

	log.Printf("INFO: no routing entry for rule %q, case %s left unassigned", alert.RuleUID, created.CaseNumber)
	return created, nil
}

// ProcessResolved handles a recovery notification. Cases in open or
// assigned auto-resolve; in_progress cases get an activity note instead,
// since a human is already working them. No matching open case is a no-op.
func (s *IngestionService) ProcessResolved(ctx context.Context, alert *AlertEvent) (*db.Case, error) {
	existing, err := s.Dedup.FindOpenCase(ctx, alert.Fingerprint)
	if err != nil {
		return nil, fmt.Errorf("dedup lookup: %w", err)
	}
	if existing == nil {
		log.Printf("DEBUG: recovery for fingerprint %s matched no open case, ignoring", alert.Fingerprint)
		return nil, nil
	}

	resolvedAt := time.Now().UTC()
	if alert.EndedAt != nil && !alert.EndedAt.IsZero() {
		resolvedAt = *alert.EndedAt
	}

	return s.Cases.AutoResolve(ctx, existing.ID, resolvedAt)
}
