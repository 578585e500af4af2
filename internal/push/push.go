// ABOUTME: Web Push badge delivery for members with no open session
// ABOUTME: Sends VAPID-signed badge payloads and prunes dead subscriptions

package push

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/hearthlabs/hearth/internal/store"
	"github.com/hearthlabs/hearth/internal/unread"
)

// badgePayload is what the service worker receives. The client updates the
// app badge from Count without showing a notification.
type badgePayload struct {
	Type  string `json:"type"`
	Count int    `json:"count"`
}

// SubscriptionStore defines what the sender needs from storage.
type SubscriptionStore interface {
	ListPushSubscriptions(ctx context.Context, memberID string) ([]*store.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, endpoint string) error
}

// WebPush delivers badge counts over the Web Push protocol. Delivery is
// best effort: failures are logged, never surfaced to callers, and
// endpoints that are gone get pruned.
type WebPush struct {
	store       SubscriptionStore
	logger      *slog.Logger
	options     webpush.Options
	sendTimeout time.Duration
}

var (
	_ unread.Badge = (*WebPush)(nil)
	_ unread.Badge = (*LogSink)(nil)
)

// Config holds the VAPID material for signing push messages.
type Config struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string // contact mailto: or https: URL required by push services
}

// NewWebPush creates a Web Push badge sender. Pass nil logger for default.
func NewWebPush(st SubscriptionStore, cfg Config, logger *slog.Logger) *WebPush {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebPush{
		store:  st,
		logger: logger.With("component", "push"),
		options: webpush.Options{
			Subscriber:      cfg.Subscriber,
			VAPIDPublicKey:  cfg.VAPIDPublicKey,
			VAPIDPrivateKey: cfg.VAPIDPrivateKey,
			TTL:             60,
		},
		sendTimeout: 10 * time.Second,
	}
}

// Notify pushes the badge count to every subscription the member has
// registered. Runs in the caller's goroutine; counter callers invoke it
// from their own timer goroutine already.
func (w *WebPush) Notify(viewerID string, count int) {
	ctx, cancel := context.WithTimeout(context.Background(), w.sendTimeout)
	defer cancel()

	subs, err := w.store.ListPushSubscriptions(ctx, viewerID)
	if err != nil {
		w.logger.Warn("listing push subscriptions failed", "member_id", viewerID, "error", err)
		return
	}
	if len(subs) == 0 {
		return
	}

	payload, err := json.Marshal(badgePayload{Type: "badge", Count: count})
	if err != nil {
		w.logger.Error("marshaling badge payload failed", "error", err)
		return
	}

	for _, sub := range subs {
		if err := w.send(ctx, sub, payload); err != nil {
			w.logger.Warn("push delivery failed",
				"member_id", viewerID,
				"endpoint", sub.Endpoint,
				"error", err)
		}
	}
}

func (w *WebPush) send(ctx context.Context, sub *store.PushSubscription, payload []byte) error {
	resp, err := webpush.SendNotification(payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &w.options)
	if err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	defer resp.Body.Close()

	// 404/410 means the browser dropped the subscription.
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		if err := w.store.DeletePushSubscription(ctx, sub.Endpoint); err != nil {
			w.logger.Warn("pruning dead subscription failed", "endpoint", sub.Endpoint, "error", err)
		} else {
			w.logger.Info("pruned dead subscription", "endpoint", sub.Endpoint)
		}
		return nil
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}
	return nil
}

// GenerateVAPIDKeys returns a fresh private/public VAPID key pair for
// operator setup.
func GenerateVAPIDKeys() (privateKey, publicKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generating VAPID keys: %w", err)
	}
	return privateKey, publicKey, nil
}

// LogSink is a Badge implementation that only logs. Used when push is not
// configured and in tests.
type LogSink struct {
	logger *slog.Logger
}

// NewLogSink creates a logging badge sink. Pass nil logger for default.
func NewLogSink(logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "push")}
}

// Notify logs the badge update.
func (l *LogSink) Notify(viewerID string, count int) {
	l.logger.Debug("badge update", "member_id", viewerID, "count", count)
}
