// Package notify is the fire-and-forget notification gateway. Delivery
// failures are logged and never surface to the workflow that triggered them.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	KindMFAReminder            = "mfa_reminder"
	KindExpiryRequestSubmitted = "expiry_request_submitted"
	KindExpiryRequestReviewed  = "expiry_request_reviewed"
	KindIncomePendingReview    = "income_pending_review"
	KindIncomeReviewed         = "income_reviewed"
)

// Message is one notification. A nil RecipientID addresses the tenant's admins.
type Message struct {
	Kind        string         `json:"kind"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	TenantSlug  string         `json:"tenant"`
	RecipientID *uuid.UUID     `json:"recipient_id,omitempty"`
	TargetID    uuid.UUID      `json:"target_id"`
	Data        map[string]any `json:"data,omitempty"`
	SentAt      time.Time      `json:"sent_at"`
}

// Notifier delivers messages without blocking the caller on failure.
type Notifier interface {
	Notify(ctx context.Context, msg Message)
}

// Publisher is the subset of *nats.Conn used for delivery.
type Publisher interface {
	Publish(subj string, data []byte) error
}

// NATSNotifier publishes each message as JSON on
// <prefix>.notify.<tenant>.<kind>.
type NATSNotifier struct {
	pub    Publisher
	prefix string
}

func NewNATSNotifier(pub Publisher, prefix string) *NATSNotifier {
	return &NATSNotifier{pub: pub, prefix: prefix}
}

// Connect dials NATS and returns a notifier plus a close func.
func Connect(url, prefix string) (*NATSNotifier, func(), error) {
	nc, err := nats.Connect(url,
		nats.Name("fleetledger"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				slog.Warn("nats disconnected", "error", err)
			}
		}),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("nats connect: %w", err)
	}
	slog.Info("nats connected", "url", url)
	return NewNATSNotifier(nc, prefix), nc.Close, nil
}

func (n *NATSNotifier) Subject(msg Message) string {
	return fmt.Sprintf("%s.notify.%s.%s", n.prefix, msg.TenantSlug, msg.Kind)
}

func (n *NATSNotifier) Notify(ctx context.Context, msg Message) {
	if msg.SentAt.IsZero() {
		msg.SentAt = time.Now().UTC()
	}
	data, err := json.Marshal(msg)
	if err != nil {
		slog.Error("encode notification", "kind", msg.Kind, "error", err)
		return
	}
	subject := n.Subject(msg)
	if err := n.pub.Publish(subject, data); err != nil {
		slog.Warn("notification not delivered", "subject", subject, "error", err)
	}
}

// LogNotifier writes notifications to the log. Used when NATS is not configured.
type LogNotifier struct{}

func (LogNotifier) Notify(ctx context.Context, msg Message) {
	slog.InfoContext(ctx, "notification",
		"kind", msg.Kind, "tenant", msg.TenantSlug, "target", msg.TargetID, "recipient", msg.RecipientID)
}
