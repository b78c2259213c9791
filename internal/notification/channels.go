package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// Notification is a rendered message handed to channel senders.
type Notification struct {
	AlertID    uuid.UUID `json:"alert_id"`
	CustomerID string    `json:"customer_id"`
	TemplateID string    `json:"template_id"`
	Subject    string    `json:"subject"`
	Body       string    `json:"body"`
	Priority   string    `json:"priority"`
	Timestamp  time.Time `json:"timestamp"`
}

// Sender delivers a rendered notification over one channel. Senders
// report success or failure independently; the engine isolates failures
// so one channel never blocks another.
type Sender interface {
	Send(ctx context.Context, n Notification) error
	Channel() Channel
}

// DashboardSender keeps a bounded in-memory feed of recent notifications
// for the back-office dashboard collaborator to poll.
type DashboardSender struct {
	mu     sync.Mutex
	feed   []Notification
	maxLen int
}

// NewDashboardSender creates a dashboard sender retaining up to maxLen
// notifications.
func NewDashboardSender(maxLen int) *DashboardSender {
	if maxLen <= 0 {
		maxLen = 500
	}
	return &DashboardSender{maxLen: maxLen}
}

// Send appends the notification to the feed, evicting the oldest entry
// once full.
func (d *DashboardSender) Send(ctx context.Context, n Notification) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.feed = append(d.feed, n)
	if len(d.feed) > d.maxLen {
		d.feed = d.feed[len(d.feed)-d.maxLen:]
	}
	return nil
}

// Recent returns up to limit notifications, newest first.
func (d *DashboardSender) Recent(limit int) []Notification {
	d.mu.Lock()
	defer d.mu.Unlock()

	if limit <= 0 || limit > len(d.feed) {
		limit = len(d.feed)
	}
	out := make([]Notification, 0, limit)
	for i := len(d.feed) - 1; i >= len(d.feed)-limit; i-- {
		out = append(out, d.feed[i])
	}
	return out
}

// Channel returns the channel type
func (d *DashboardSender) Channel() Channel { return ChannelDashboard }

// LogSender is a placeholder delivery for channels whose concrete
// mechanism lives outside this core (email, sms, push). It records the
// would-be delivery in the structured log.
type LogSender struct {
	channel Channel
	logger  *zap.Logger
}

// NewLogSender creates a log-backed sender for the given channel.
func NewLogSender(channel Channel, logger *zap.Logger) *LogSender {
	return &LogSender{channel: channel, logger: logger}
}

// Send logs the notification that would be delivered.
func (l *LogSender) Send(ctx context.Context, n Notification) error {
	l.logger.Info("Notification would be sent",
		zap.String("channel", string(l.channel)),
		zap.String("alert_id", n.AlertID.String()),
		zap.String("customer_id", n.CustomerID),
		zap.String("subject", n.Subject),
		zap.String("priority", n.Priority))
	return nil
}

// Channel returns the channel type
func (l *LogSender) Channel() Channel { return l.channel }

// WebhookSender posts notifications to an HTTP endpoint with retries.
type WebhookSender struct {
	URL        string
	Method     string
	Headers    map[string]string
	Timeout    time.Duration
	RetryCount int
	logger     *zap.Logger
}

// NewWebhookSender creates a webhook sender.
func NewWebhookSender(url string, headers map[string]string, timeout time.Duration, logger *zap.Logger) *WebhookSender {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &WebhookSender{
		URL:        url,
		Method:     http.MethodPost,
		Headers:    headers,
		Timeout:    timeout,
		RetryCount: 3,
		logger:     logger,
	}
}

// Send posts the notification as JSON, retrying with linear backoff.
func (w *WebhookSender) Send(ctx context.Context, n Notification) error {
	payload, err := json.Marshal(n)
	if err != nil {
		return errors.Wrap(err, "failed to marshal notification payload")
	}

	var lastErr error
	for i := 0; i <= w.RetryCount; i++ {
		if err := w.post(ctx, payload); err != nil {
			lastErr = err
			w.logger.Warn("Webhook send failed, retrying",
				zap.Int("attempt", i+1),
				zap.Error(err))

			if i < w.RetryCount {
				select {
				case <-time.After(time.Duration(i+1) * time.Second):
					continue
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		} else {
			return nil
		}
	}

	return errors.Wrap(lastErr, "webhook send failed after retries")
}

func (w *WebhookSender) post(ctx context.Context, payload []byte) error {
	client := &http.Client{Timeout: w.Timeout}

	req, err := http.NewRequestWithContext(ctx, w.Method, w.URL, bytes.NewBuffer(payload))
	if err != nil {
		return errors.Wrap(err, "failed to create webhook request")
	}

	req.Header.Set("Content-Type", "application/json")
	for key, value := range w.Headers {
		req.Header.Set(key, value)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send webhook request")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	return nil
}

// Channel returns the channel type
func (w *WebhookSender) Channel() Channel { return ChannelWebhook }
