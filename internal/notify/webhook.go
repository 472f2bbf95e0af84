// Package notify posts replay summaries to an HTTP webhook.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"tradeledger/internal/ledger"
	"tradeledger/internal/models"
)

// NotificationType represents the type of notification.
type NotificationType string

const (
	// NotificationSummary reports a complete replay.
	NotificationSummary NotificationType = "summary"
	// NotificationAlert reports a replay that skipped fills.
	NotificationAlert NotificationType = "alert"
)

// Notification represents a notification message.
type Notification struct {
	Type      NotificationType
	Title     string
	Message   string
	Data      map[string]interface{}
	Timestamp time.Time
}

// WebhookNotifier sends notifications via HTTP webhook.
type WebhookNotifier struct {
	url    string
	client *http.Client
	now    func() time.Time
}

// NewWebhookNotifier creates a notifier posting to url.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: timeout},
		now:    time.Now,
	}
}

// Send sends a notification via webhook.
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	payload := map[string]interface{}{
		"type":      n.Type,
		"title":     n.Title,
		"message":   n.Message,
		"data":      n.Data,
		"timestamp": n.Timestamp.Format(time.RFC3339),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshaling webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tradeledger/1.0")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// Report posts the latest valuation of a replay.
func (w *WebhookNotifier) Report(ctx context.Context, portfolioID string, res *ledger.Result) error {
	return w.Send(ctx, Summarize(portfolioID, res, w.now()))
}

// Summarize builds the notification for a finished replay. Amounts are
// decimal strings so receivers get them exactly.
func Summarize(portfolioID string, res *ledger.Result, now time.Time) Notification {
	n := Notification{
		Type:      NotificationSummary,
		Title:     "Portfolio " + portfolioID + " replayed",
		Timestamp: now,
		Data: map[string]interface{}{
			"portfolio": portfolioID,
			"complete":  res.Complete,
			"skipped":   len(res.Skipped),
			"cash":      res.FinalCash.String(),
		},
	}

	last, ok := res.Last()
	if !ok {
		n.Message = portfolioID + ": no valuation yet"
		return n
	}
	ret := last.TotalValue.Sub(res.InitialCash)
	if res.InitialCash.IsPositive() {
		ret = ret.Div(res.InitialCash)
	}
	n.Data["date"] = models.FormatDay(last.Date)
	n.Data["total_value"] = last.TotalValue.String()
	n.Data["market_value"] = last.MarketValue.String()
	n.Data["realized_pnl"] = last.RealizedPnL.String()
	n.Data["unrealized_pnl"] = last.UnrealizedPnL.String()
	n.Message = fmt.Sprintf("%s: total value %s on %s (%s%% since start)",
		portfolioID, last.TotalValue.StringFixed(2), models.FormatDay(last.Date), ret.Shift(2).StringFixed(2))

	if !res.Complete {
		n.Type = NotificationAlert
		n.Message += fmt.Sprintf(", %d orders not filled", len(res.Skipped))
	}
	return n
}
