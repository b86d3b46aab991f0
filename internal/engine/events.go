package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/crossarb/internal/config"
	"github.com/alanyoungcy/crossarb/internal/domain"
)

// Bus channels.
const (
	EventsChannel = "crossarb:events"
	ConfigChannel = "crossarb:config"
	streamPrefix  = "crossarb:stream:"
)

const (
	eventOpportunity = "opportunity"
	eventTrade       = "trade"
	eventBreaker     = "breaker"
)

type envelope struct {
	Type string    `json:"type"`
	At   time.Time `json:"at"`
	Data any       `json:"data"`
}

// publish sends v on the events channel and appends it to the stream for its
// kind. Bus failures never affect the cycle.
func (e *Engine) publish(ctx context.Context, kind string, v any) {
	if e.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(envelope{Type: kind, At: e.now(), Data: v})
	if err != nil {
		e.logger.WarnContext(ctx, "encode event failed", slog.String("type", kind), slog.String("error", err.Error()))
		return
	}
	if err := e.deps.Bus.Publish(ctx, EventsChannel, payload); err != nil {
		e.logger.DebugContext(ctx, "publish event failed", slog.String("type", kind), slog.String("error", err.Error()))
	}
	if err := e.deps.Bus.StreamAppend(ctx, streamPrefix+kind, payload); err != nil {
		e.logger.DebugContext(ctx, "stream append failed", slog.String("type", kind), slog.String("error", err.Error()))
	}
}

// WatchOverrides applies JSON parameter overrides published on
// ConfigChannel until ctx is cancelled. Each accepted override takes effect
// at the start of the next cycle.
func WatchOverrides(ctx context.Context, bus domain.EventBus, live *config.Live, logger *slog.Logger) error {
	log := logger.With(slog.String("component", "config_watcher"))
	ch, err := bus.Subscribe(ctx, ConfigChannel)
	if err != nil {
		return err
	}
	log.InfoContext(ctx, "watching for parameter overrides", slog.String("channel", ConfigChannel))
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			p, err := live.Apply(msg)
			if err != nil {
				log.WarnContext(ctx, "override rejected", slog.String("error", err.Error()))
				continue
			}
			log.InfoContext(ctx, "override applied",
				slog.Float64("threshold_spread", p.Trading.ThresholdSpread),
				slog.Bool("auto_execute", p.Trading.AutoExecute),
			)
		}
	}
}
