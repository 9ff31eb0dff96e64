package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"

	"github.com/telcoops/casedesk/db"
	"github.com/telcoops/casedesk/services"
)

func TestNormalizeAlert(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		checkFields func(t *testing.T, event services.AlertEvent)
	}{
		{
			name: "full firing alert",
			payload: `{
				"status": "firing",
				"labels": {
					"alertname": "BTSDown",
					"rule_uid": "bts-down-01",
					"severity": "critical",
					"instance": "bts-hanoi-042",
					"job": "ran-monitor",
					"category": "ran"
				},
				"annotations": {
					"summary": "BTS bts-hanoi-042 unreachable",
					"description": "No heartbeat for 5 minutes",
					"threshold": "300"
				},
				"startsAt": "2026-08-30T10:00:00Z",
				"fingerprint": "abc123",
				"values": {"B": 412}
			}`,
			checkFields: func(t *testing.T, event services.AlertEvent) {
				if event.RuleUID != "bts-down-01" {
					t.Errorf("rule uid = %q", event.RuleUID)
				}
				if event.Fingerprint != "abc123" {
					t.Errorf("fingerprint = %q", event.Fingerprint)
				}
				if event.Severity != db.SeverityCritical {
					t.Errorf("severity = %q", event.Severity)
				}
				if event.Summary != "BTS bts-hanoi-042 unreachable" {
					t.Errorf("summary = %q", event.Summary)
				}
				if event.Value == nil || *event.Value != 412 {
					t.Errorf("value = %v", event.Value)
				}
				if event.Threshold == nil || *event.Threshold != 300 {
					t.Errorf("threshold = %v", event.Threshold)
				}
				if event.Category != "ran" {
					t.Errorf("category = %q", event.Category)
				}
			},
		},
		{
			name: "missing fingerprint synthesized from labels",
			payload: `{
				"status": "firing",
				"labels": {
					"alertname": "HighLatency",
					"instance": "core-01",
					"job": "latency-probe"
				},
				"annotations": {}
			}`,
			checkFields: func(t *testing.T, event services.AlertEvent) {
				if event.Fingerprint != "HighLatency-core-01-latency-probe" {
					t.Errorf("fingerprint = %q", event.Fingerprint)
				}
			},
		},
		{
			name: "legacy rule uid label",
			payload: `{
				"status": "firing",
				"labels": {"__alert_rule_uid__": "legacy-uid-9", "severity": "warning"},
				"annotations": {}
			}`,
			checkFields: func(t *testing.T, event services.AlertEvent) {
				if event.RuleUID != "legacy-uid-9" {
					t.Errorf("rule uid = %q", event.RuleUID)
				}
				if event.Severity != db.SeverityMedium {
					t.Errorf("severity = %q", event.Severity)
				}
			},
		},
		{
			name: "unparseable threshold dropped",
			payload: `{
				"status": "firing",
				"labels": {"severity": "info"},
				"annotations": {"threshold": "n/a"}
			}`,
			checkFields: func(t *testing.T, event services.AlertEvent) {
				if event.Threshold != nil {
					t.Errorf("threshold = %v, want nil", event.Threshold)
				}
				if event.Severity != db.SeverityLow {
					t.Errorf("severity = %q", event.Severity)
				}
			},
		},
		{
			name: "unknown severity defaults to medium",
			payload: `{
				"status": "firing",
				"labels": {"severity": "page"},
				"annotations": {}
			}`,
			checkFields: func(t *testing.T, event services.AlertEvent) {
				if event.Severity != db.SeverityMedium {
					t.Errorf("severity = %q", event.Severity)
				}
			},
		},
		{
			name: "resolved alert carries end time",
			payload: `{
				"status": "resolved",
				"labels": {"alertname": "BTSDown"},
				"annotations": {},
				"startsAt": "2026-08-30T10:00:00Z",
				"endsAt": "2026-08-30T10:45:00Z",
				"fingerprint": "abc123"
			}`,
			checkFields: func(t *testing.T, event services.AlertEvent) {
				if event.Status != "resolved" {
					t.Errorf("status = %q", event.Status)
				}
				if event.EndedAt == nil {
					t.Fatal("ended at is nil")
				}
				want := time.Date(2026, 8, 30, 10, 45, 0, 0, time.UTC)
				if !event.EndedAt.Equal(want) {
					t.Errorf("ended at = %v", event.EndedAt)
				}
			},
		},
		{
			name: "firing alert zero endsAt has no end time",
			payload: `{
				"status": "firing",
				"labels": {},
				"annotations": {},
				"endsAt": "0001-01-01T00:00:00Z"
			}`,
			checkFields: func(t *testing.T, event services.AlertEvent) {
				if event.EndedAt != nil {
					t.Errorf("ended at = %v, want nil", event.EndedAt)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var alert GrafanaAlert
			if err := json.Unmarshal([]byte(tt.payload), &alert); err != nil {
				t.Fatalf("unmarshal: %v", err)
			}
			tt.checkFields(t, normalizeAlert(&alert))
		})
	}
}

func TestGrafanaResolved_SkipsFiringAlerts(t *testing.T) {
	mockDB, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer mockDB.Close()

	cases := services.NewCaseService(mockDB, services.NewHistoryService(mockDB), nil)
	ingestion := services.NewIngestionService(cases, services.NewDedupService(mockDB, 5), services.NewRuleAssignmentService(mockDB))
	h := NewWebhookHandler(ingestion)

	// Only the resolved alert's fingerprint may reach the dedup lookup;
	// the firing alert on this route is skipped entirely.
	mock.ExpectQuery(`SELECT id, case_number, status, severity, alert_count, created_at, updated_at`).
		WithArgs("fp-resolved").
		WillReturnRows(sqlmock.NewRows(
			[]string{"id", "case_number", "status", "severity", "alert_count", "created_at", "updated_at"}))

	router := gin.New()
	router.POST("/webhooks/grafana/resolved", h.GrafanaResolved)

	payload := `{
		"receiver": "casedesk",
		"status": "resolved",
		"alerts": [
			{"status": "firing", "labels": {"alertname": "A"}, "annotations": {}, "fingerprint": "fp-firing"},
			{"status": "resolved", "labels": {"alertname": "B"}, "annotations": {}, "fingerprint": "fp-resolved"}
		]
	}`

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("POST", "/webhooks/grafana/resolved", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	var resp db.WebhookResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Count != 0 {
		t.Errorf("count = %d, want 0", resp.Count)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}

func TestGrafanaWebhookEnvelope(t *testing.T) {
	payload := `{
		"receiver": "casedesk",
		"status": "firing",
		"orgId": 1,
		"alerts": [
			{"status": "firing", "labels": {"alertname": "A"}, "annotations": {}},
			{"status": "resolved", "labels": {"alertname": "B"}, "annotations": {}}
		],
		"groupLabels": {"alertname": "A"},
		"commonLabels": {},
		"title": "[FIRING:1]"
	}`

	var webhook GrafanaWebhook
	if err := json.Unmarshal([]byte(payload), &webhook); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(webhook.Alerts) != 2 {
		t.Fatalf("alerts = %d, want 2", len(webhook.Alerts))
	}
	if webhook.Alerts[0].Status != "firing" || webhook.Alerts[1].Status != "resolved" {
		t.Errorf("statuses = %q, %q", webhook.Alerts[0].Status, webhook.Alerts[1].Status)
	}
}
