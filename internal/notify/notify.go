// Package notify delivers scanner actions and scanner-down events.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"restack-guard/internal/model"
	"restack-guard/pkg/uid"
)

// Event types sent to the webhook.
const (
	EventAction      = "action"
	EventScannerDown = "scanner_down"
)

// Event is the webhook payload.
type Event struct {
	ID        string        `json:"id"`
	Type      string        `json:"type"`
	Timestamp time.Time     `json:"timestamp"`
	Action    *model.Action `json:"action,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

// LogNotifier writes every event to the process log.
type LogNotifier struct{}

// Notify logs one action.
func (LogNotifier) Notify(ctx context.Context, a model.Action) error {
	switch a.Type {
	case model.ActionCancelled:
		log.Printf("[Notify] CANCELLED PO %s (subdept %d, truck %s, carrier %q): %s restacks vs %d pallets, checkout %s voided",
			a.PONumber, a.SubDept, a.TruckID, a.Carrier, a.RestacksUpstacks.String(), a.PalletsIn, a.DriverWalletCheckoutID)
	default:
		log.Printf("[Notify] OVER PO %s (subdept %d, truck %s, carrier %q): %s restacks vs %d pallets, no wallet checkout to void",
			a.PONumber, a.SubDept, a.TruckID, a.Carrier, a.RestacksUpstacks.String(), a.PalletsIn)
	}
	return nil
}

// NotifyDown logs a scanner halt.
func (LogNotifier) NotifyDown(ctx context.Context, reason string) error {
	log.Printf("[Notify] Scanner down: %s", reason)
	return nil
}

// WebhookNotifier POSTs events as JSON. Any non-2xx reply is an error.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{url: url, client: &http.Client{Timeout: timeout}}
}

// Notify posts one action.
func (n *WebhookNotifier) Notify(ctx context.Context, a model.Action) error {
	return n.post(ctx, Event{
		ID:        uid.New(),
		Type:      EventAction,
		Timestamp: time.Now().UTC(),
		Action:    &a,
	})
}

// NotifyDown posts a scanner-down event.
func (n *WebhookNotifier) NotifyDown(ctx context.Context, reason string) error {
	return n.post(ctx, Event{
		ID:        uid.New(),
		Type:      EventScannerDown,
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	})
}

func (n *WebhookNotifier) post(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", ev.Type, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("post %s event: %w", ev.Type, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d for %s event", resp.StatusCode, ev.Type)
	}
	return nil
}

// Notifier is what Multi fans out to.
type Notifier interface {
	Notify(ctx context.Context, a model.Action) error
	NotifyDown(ctx context.Context, reason string) error
}

// Multi delivers to every notifier and joins their errors.
type Multi []Notifier

// Notify delivers one action to all notifiers.
func (m Multi) Notify(ctx context.Context, a model.Action) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyDown delivers a scanner-down event to all notifiers.
func (m Multi) NotifyDown(ctx context.Context, reason string) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyDown(ctx, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
