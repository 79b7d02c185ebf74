package notification

import (
	"context"
	"log/slog"
	"sync"
)

const (
	// KindContractStarted is sent when a stake is placed.
	KindContractStarted = "contract_started"
	// KindContractSettled is sent when an expired contract is evaluated.
	KindContractSettled = "contract_settled"
	// KindStreakReset is sent after a restart or forfeit cascade.
	KindStreakReset = "streak_reset"
	// KindLevelUp is sent when an update raised the account level.
	KindLevelUp = "level_up"
	// KindBadgeUnlocked is sent when reconciliation moves the account to a new tier.
	KindBadgeUnlocked = "badge_unlocked"
)

// Message describes a notification payload.
type Message struct {
	Kind        string
	Destination string
	Body        string
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the structured logger.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(_ context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	n.logger.Info("notification", "kind", message.Kind, "account_id", message.Destination, "body", message.Body)
	return nil
}

// Discard drops every message.
type Discard struct{}

// Send implements Notifier.
func (Discard) Send(context.Context, Message) error { return nil }

// Recorder keeps every message it receives. Used by tests.
type Recorder struct {
	mu       sync.Mutex
	Messages []Message
}

// Send implements Notifier.
func (r *Recorder) Send(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Messages = append(r.Messages, msg)
	return nil
}

// Kinds lists the recorded message kinds in order.
func (r *Recorder) Kinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.Messages))
	for _, m := range r.Messages {
		out = append(out, m.Kind)
	}
	return out
}
