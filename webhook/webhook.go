// Package webhook delivers signed completion events to caller-supplied URLs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/avast/retry-go/v4"
)

// Event types.
const (
	EventOptimizationCompleted = "optimization.completed"
	EventBatchCompleted        = "batch.completed"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>" when a secret is
// configured.
const SignatureHeader = "X-Promptopt-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// NewEvent stamps an event with the current time.
func NewEvent(typ, id string, data any) *Event {
	return &Event{Type: typ, ID: id, Timestamp: time.Now().Unix(), Data: data}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Notifier sends events with retries.
type Notifier struct {
	Secret   string
	Client   *http.Client
	Attempts uint          // default: 4
	Delay    time.Duration // first retry delay, doubled per attempt. Default: 1s.

	wg sync.WaitGroup
}

// NewNotifier returns a Notifier with a 10s per-request timeout.
func NewNotifier(secret string) *Notifier {
	return &Notifier{
		Secret:   secret,
		Client:   &http.Client{Timeout: 10 * time.Second},
		Attempts: 4,
		Delay:    time.Second,
	}
}

// Deliver sends event once.
func (n *Notifier) Deliver(ctx context.Context, url string, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Promptopt-Webhook/1.0")
	if n.Secret != "" {
		req.Header.Set(SignatureHeader, "sha256="+Sign(n.Secret, body))
	}

	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// DeliverWithRetry sends event, retrying with exponential backoff.
func (n *Notifier) DeliverWithRetry(ctx context.Context, url string, event *Event) error {
	attempts := n.Attempts
	if attempts == 0 {
		attempts = 4
	}
	delay := n.Delay
	if delay <= 0 {
		delay = time.Second
	}

	err := retry.Do(
		func() error { return n.Deliver(ctx, url, event) },
		retry.Context(ctx),
		retry.Attempts(attempts),
		retry.Delay(delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			slog.Warn("webhook delivery failed",
				"url", url,
				"event", event.Type,
				"id", event.ID,
				"attempt", attempt+1,
				"error", err,
			)
		}),
	)
	if err != nil {
		slog.Error("webhook delivery exhausted all retries",
			"url", url,
			"event", event.Type,
			"id", event.ID,
		)
		return err
	}
	slog.Info("webhook delivered", "url", url, "event", event.Type, "id", event.ID)
	return nil
}

// DeliverAsync sends event in the background. Use Wait to block until
// pending deliveries finish.
func (n *Notifier) DeliverAsync(url string, event *Event) {
	n.wg.Add(1)
	go func() {
		defer n.wg.Done()
		_ = n.DeliverWithRetry(context.Background(), url, event)
	}()
}

// Wait blocks until all asynchronous deliveries have finished.
func (n *Notifier) Wait() {
	n.wg.Wait()
}
