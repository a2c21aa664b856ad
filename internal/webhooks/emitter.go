package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/mbd888/sift/internal/analysis"
)

var (
	webhookEmitTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sift",
		Subsystem: "webhook",
		Name:      "emit_total",
		Help:      "Total webhook emit attempts by event type.",
	}, []string{"event_type"})

	webhookEmitErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "sift",
		Subsystem: "webhook",
		Name:      "emit_errors_total",
		Help:      "Total webhook emit failures by event type.",
	}, []string{"event_type"})
)

func init() {
	prometheus.MustRegister(webhookEmitTotal, webhookEmitErrors)
}

// Emitter adapts a Dispatcher to the analysis event fanout.
// All methods are fire-and-forget: errors are logged but never returned.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

// EmitDetection notifies subscribers about a flagged analysis. The
// context here only covers the subscription lookup; deliveries already
// handed to the dispatcher run on their own clocks and are never cut
// short by this method returning.
func (e *Emitter) EmitDetection(res *analysis.Result) {
	if e == nil || e.d == nil {
		return
	}

	types := detectionEventTypes(res)
	if len(types) == 0 {
		return
	}
	for _, eventType := range types {
		webhookEmitTotal.WithLabelValues(string(eventType)).Inc()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := e.d.DispatchDetection(ctx, res); err != nil {
		for _, eventType := range types {
			webhookEmitErrors.WithLabelValues(string(eventType)).Inc()
		}
		e.logger.Warn("webhook emit failed", "analysis", res.ID, "error", err)
	}
}
