// Package notify delivers operator alerts to one or more channels (Telegram,
// Discord, console). Delivery is asynchronous so the trading loop never waits
// on a webhook.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, title, message string) error
	Name() string
}

type alert struct {
	title    string
	message  string
	severity domain.Severity
}

// Notifier implements domain.Alerter. Alerts below minSeverity are dropped;
// the rest are queued and fanned out to every sender by Run.
type Notifier struct {
	senders     []Sender
	minSeverity domain.Severity
	queue       chan alert
	timeout     time.Duration
	logger      *slog.Logger

	mu     sync.Mutex
	closed bool
}

// NewNotifier creates a Notifier with a queue of the given size.
func NewNotifier(senders []Sender, minSeverity domain.Severity, queueSize int, logger *slog.Logger) *Notifier {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &Notifier{
		senders:     senders,
		minSeverity: minSeverity,
		queue:       make(chan alert, queueSize),
		timeout:     15 * time.Second,
		logger:      logger.With(slog.String("component", "notifier")),
	}
}

// Notify queues message for delivery. It never blocks: when the queue is full
// the alert is logged and dropped.
func (n *Notifier) Notify(ctx context.Context, message string, severity domain.Severity) {
	n.enqueue(ctx, alert{title: title(severity), message: message, severity: severity})
}

// NotifyTitled queues an alert with an explicit title.
func (n *Notifier) NotifyTitled(ctx context.Context, title, message string, severity domain.Severity) {
	n.enqueue(ctx, alert{title: title, message: message, severity: severity})
}

func (n *Notifier) enqueue(ctx context.Context, a alert) {
	if a.severity < n.minSeverity || len(n.senders) == 0 {
		return
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	select {
	case n.queue <- a:
	default:
		n.logger.WarnContext(ctx, "alert queue full, dropping",
			slog.String("severity", a.severity.String()),
			slog.String("title", a.title),
		)
	}
}

// Run delivers queued alerts until ctx is cancelled, then drains what is
// already queued.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case a := <-n.queue:
			_ = n.dispatch(ctx, a.title, a.message)
		case <-ctx.Done():
			n.mu.Lock()
			n.closed = true
			n.mu.Unlock()
			drainCtx := context.WithoutCancel(ctx)
			for {
				select {
				case a := <-n.queue:
					_ = n.dispatch(drainCtx, a.title, a.message)
				default:
					return nil
				}
			}
		}
	}
}

// dispatch sends to every sender. One failing sender does not stop the rest.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	var errs []error
	for _, s := range n.senders {
		sctx, cancel := context.WithTimeout(ctx, n.timeout)
		err := s.Send(sctx, title, message)
		cancel()
		if err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	return errors.Join(errs...)
}

func title(s domain.Severity) string {
	switch s {
	case domain.SeverityCritical:
		return "crossarb CRITICAL"
	case domain.SeverityWarning:
		return "crossarb warning"
	default:
		return "crossarb"
	}
}

var _ domain.Alerter = (*Notifier)(nil)
