package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/bi-agent/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRefreshFailureRate AlertType = "refresh_failure_rate"
	AlertStaleSnapshot      AlertType = "stale_snapshot"
	AlertUnlinkedOrders     AlertType = "unlinked_work_orders"
)

// minFinished is the number of finished refreshes needed before the
// failure rate is judged.
const minFinished = 3

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds
// and sends alerts via webhook when thresholds are breached.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// A zero threshold disables its check.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	finished := snap.RefreshComplete + snap.RefreshFailed
	if a.cfg.FailureRateThreshold > 0 && finished >= minFinished && snap.RefreshFailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertRefreshFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Refresh failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished in last %dh)",
				snap.RefreshFailRate*100, a.cfg.FailureRateThreshold*100,
				snap.RefreshFailed, finished, snap.LookbackHours,
			),
			Details: map[string]any{
				"failure_rate": snap.RefreshFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RefreshFailed,
				"finished":     finished,
				"last_error":   snap.LastError,
			},
			Timestamp: now,
		})
	}

	maxAge := time.Duration(a.cfg.MaxSnapshotAgeMins) * time.Minute
	if maxAge > 0 && (!snap.SnapshotLoaded || snap.SnapshotAge > maxAge) {
		msg := "No snapshot loaded; answers are unavailable"
		if snap.SnapshotLoaded {
			msg = fmt.Sprintf("Snapshot is %s old, older than %s", snap.SnapshotAge.Round(time.Minute), maxAge)
		}
		alerts = append(alerts, Alert{
			Type:     AlertStaleSnapshot,
			Severity: "high",
			Message:  msg,
			Details: map[string]any{
				"snapshot_loaded": snap.SnapshotLoaded,
				"age_minutes":     int(snap.SnapshotAge.Minutes()),
				"max_age_minutes": a.cfg.MaxSnapshotAgeMins,
			},
			Timestamp: now,
		})
	}

	if a.cfg.UnlinkedRateThreshold > 0 && snap.UnlinkedRate > a.cfg.UnlinkedRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertUnlinkedOrders,
			Severity: "medium",
			Message: fmt.Sprintf(
				"%.1f%% of work orders (%d of %d) link to no deal, above %.1f%%",
				snap.UnlinkedRate*100, snap.UnlinkedOrders, snap.ExecutionRecords, a.cfg.UnlinkedRateThreshold*100,
			),
			Details: map[string]any{
				"unlinked":  snap.UnlinkedOrders,
				"total":     snap.ExecutionRecords,
				"threshold": a.cfg.UnlinkedRateThreshold,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
