package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/order"
)

// Publisher hands events to the notification transport.
type Publisher interface {
	Publish(ctx context.Context, events ...Event) error
}

// Notifier is what order workflows call. Implementations must not block the
// caller on delivery.
type Notifier interface {
	Notify(ctx context.Context, kind Kind, o *order.Order)
}

// DispatcherConfig configures a Dispatcher.
type DispatcherConfig struct {
	// Timeout bounds a single publish. Defaults to 10s.
	Timeout time.Duration
	Meter   metric.Meter
}

// Dispatcher publishes notifications in the background. A failed publish is
// logged and counted; it is never retried and never reported to the caller.
type Dispatcher struct {
	pub     Publisher
	lg      *zap.Logger
	timeout time.Duration
	now     func() time.Time
	newID   func() string

	mu       sync.Mutex
	closed   bool
	wg       sync.WaitGroup
	failures atomic.Int64

	sent   metric.Int64Counter
	failed metric.Int64Counter
}

var _ Notifier = (*Dispatcher)(nil)

// NewDispatcher creates a Dispatcher.
func NewDispatcher(pub Publisher, lg *zap.Logger, cfg DispatcherConfig) (*Dispatcher, error) {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	meter := cfg.Meter
	if meter == nil {
		meter = noop.NewMeterProvider().Meter("notify")
	}
	sent, err := meter.Int64Counter("notifications.sent",
		metric.WithDescription("Notification events published"))
	if err != nil {
		return nil, errors.Wrap(err, "create sent counter")
	}
	failed, err := meter.Int64Counter("notifications.failed",
		metric.WithDescription("Notification events that could not be published"))
	if err != nil {
		return nil, errors.Wrap(err, "create failed counter")
	}
	return &Dispatcher{
		pub:     pub,
		lg:      lg,
		timeout: cfg.Timeout,
		now:     time.Now,
		newID:   func() string { return uuid.New().String() },
		sent:    sent,
		failed:  failed,
	}, nil
}

// Notify builds the events for kind and publishes them in a goroutine that
// outlives ctx cancellation. It returns immediately.
func (d *Dispatcher) Notify(ctx context.Context, kind Kind, o *order.Order) {
	events := Events(kind, o, d.now(), d.newID)
	if len(events) == 0 {
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.lg.Warn("Notification dropped after close",
			zap.String("kind", string(kind)),
			zap.String("order_id", o.ID),
		)
		return
	}
	d.wg.Add(1)
	d.mu.Unlock()

	go func() {
		defer d.wg.Done()

		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
		defer cancel()

		attrs := metric.WithAttributes(attribute.String("kind", string(kind)))
		if err := d.pub.Publish(ctx, events...); err != nil {
			d.failures.Add(int64(len(events)))
			d.failed.Add(ctx, int64(len(events)), attrs)
			d.lg.Error("Publish notification",
				zap.Error(err),
				zap.String("kind", string(kind)),
				zap.String("order_id", o.ID),
			)
			return
		}
		d.sent.Add(ctx, int64(len(events)), attrs)
	}()
}

// Failures returns the number of events that could not be published.
func (d *Dispatcher) Failures() int64 {
	return d.failures.Load()
}

// Close stops accepting notifications and waits for in-flight publishes.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
	d.wg.Wait()
}
