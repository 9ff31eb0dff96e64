package handlers

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/telcoops/casedesk/db"
	"github.com/telcoops/casedesk/services"
)

// GrafanaWebhook is the unified alerting webhook envelope Grafana posts.
type GrafanaWebhook struct {
	Receiver          string            `json:"receiver"`
	Status            string            `json:"status"`
	OrgID             int64             `json:"orgId"`
	Alerts            []GrafanaAlert    `json:"alerts"`
	GroupLabels       map[string]string `json:"groupLabels"`
	CommonLabels      map[string]string `json:"commonLabels"`
	CommonAnnotations map[string]string `json:"commonAnnotations"`
	ExternalURL       string            `json:"externalURL"`
	GroupKey          string            `json:"groupKey"`
	Title             string            `json:"title"`
	State             string            `json:"state"`
	Message           string            `json:"message"`
}

// GrafanaAlert is a single alert inside the envelope.
type GrafanaAlert struct {
	Status       string             `json:"status"`
	Labels       map[string]string  `json:"labels"`
	Annotations  map[string]string  `json:"annotations"`
	StartsAt     time.Time          `json:"startsAt"`
	EndsAt       time.Time          `json:"endsAt"`
	GeneratorURL string             `json:"generatorURL"`
	Fingerprint  string             `json:"fingerprint"`
	Values       map[string]float64 `json:"values"`
	DashboardURL string             `json:"dashboardURL"`
	PanelURL     string             `json:"panelURL"`
	SilenceURL   string             `json:"silenceURL"`
}

// ruleUID digs the alert-rule uid out of the labels. Grafana versions
// disagree on the label name.
func (a *GrafanaAlert) ruleUID() string {
	for _, key := range []string{"rule_uid", "__alert_rule_uid__", "ruleId"} {
		if v, ok := a.Labels[key]; ok && v != "" {
			return v
		}
	}
	return ""
}

// fingerprint returns Grafana's fingerprint, or a synthetic one built from
// the identity labels when it is missing.
func (a *GrafanaAlert) fingerprint() string {
	if a.Fingerprint != "" {
		return a.Fingerprint
	}
	return fmt.Sprintf("%s-%s-%s", a.Labels["alertname"], a.Labels["instance"], a.Labels["job"])
}

// mapSeverity folds Grafana severity labels into the canonical set.
func mapSeverity(raw string) string {
	switch strings.ToLower(raw) {
	case "critical", "disaster":
		return db.SeverityCritical
	case "high", "error", "major":
		return db.SeverityHigh
	case "warning", "medium", "warn":
		return db.SeverityMedium
	case "low", "info", "minor":
		return db.SeverityLow
	case "":
		return "" // let the rule assignment default decide
	default:
		return db.SeverityMedium
	}
}

// alertValue pulls the evaluated metric value. Grafana puts the reduce
// expression result under "B" in the common setup; fall back to any value.
func (a *GrafanaAlert) alertValue() *float64 {
	if v, ok := a.Values["B"]; ok {
		return &v
	}
	for k := range a.Values {
		v := a.Values[k]
		return &v
	}
	if raw, ok := a.Annotations["value"]; ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64); err == nil {
			return &v
		}
	}
	return nil
}

// alertThreshold parses the threshold annotation when present. Unparseable
// values are dropped, not errors.
func (a *GrafanaAlert) alertThreshold() *float64 {
	raw, ok := a.Annotations["threshold"]
	if !ok {
		return nil
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return nil
	}
	return &v
}

// normalizeAlert converts one Grafana alert into the pipeline's event.
func normalizeAlert(a *GrafanaAlert) services.AlertEvent {
	labels := make(map[string]interface{}, len(a.Labels))
	for k, v := range a.Labels {
		labels[k] = v
	}

	event := services.AlertEvent{
		RuleUID:     a.ruleUID(),
		RuleName:    a.Labels["alertname"],
		Fingerprint: a.fingerprint(),
		Status:      a.Status,
		Severity:    mapSeverity(a.Labels["severity"]),
		Summary:     a.Annotations["summary"],
		Description: a.Annotations["description"],
		Category:    a.Labels["category"],
		Labels:      labels,
		Value:       a.alertValue(),
		Threshold:   a.alertThreshold(),
		OccurredAt:  a.StartsAt,
	}
	if event.Summary == "" {
		event.Summary = a.Annotations["title"]
	}
	if !a.EndsAt.IsZero() && a.EndsAt.Year() > 1970 {
		ended := a.EndsAt
		event.EndedAt = &ended
	}
	return event
}
