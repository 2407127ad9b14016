// Package notifier delivers notification events read from the message bus.
package notifier

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/notify"
	"github.com/SG-Fashion/sgfashion/internal/messaging"
)

// Delivery is a rendered notification ready for a provider.
type Delivery struct {
	EventID   string
	Channel   notify.Channel
	Recipient string
	// Subject is empty for SMS.
	Subject string
	Body    string
}

// Sink hands a delivery to an SMS or email provider.
type Sink interface {
	Send(ctx context.Context, d Delivery) error
}

// Config configures a Notifier.
type Config struct {
	// TrackURL is the storefront order page prefix used in SMS bodies.
	TrackURL string
	Meter    metric.Meter
}

// Notifier renders events and passes them to a sink.
type Notifier struct {
	sink     Sink
	trackURL string

	delivered metric.Int64Counter
	dropped   metric.Int64Counter
}

// New creates a Notifier.
func New(sink Sink, cfg Config) (*Notifier, error) {
	n := &Notifier{sink: sink, trackURL: cfg.TrackURL}
	if cfg.Meter == nil {
		return n, nil
	}
	var err error
	if n.delivered, err = cfg.Meter.Int64Counter("notifier.delivered",
		metric.WithDescription("Notifications handed to a provider"),
	); err != nil {
		return nil, errors.Wrap(err, "delivered counter")
	}
	if n.dropped, err = cfg.Meter.Int64Counter("notifier.dropped",
		metric.WithDescription("Messages that could not be decoded or rendered"),
	); err != nil {
		return nil, errors.Wrap(err, "dropped counter")
	}
	return n, nil
}

// Render turns an event into a delivery.
func (n *Notifier) Render(e notify.Event) (Delivery, error) {
	d := Delivery{EventID: e.ID, Channel: e.Channel, Recipient: e.Recipient}
	if d.Recipient == "" {
		return Delivery{}, errors.Errorf("event %s has no recipient", e.ID)
	}
	switch e.Channel {
	case notify.ChannelSMS:
		d.Body = notify.Message(e, n.trackURL)
	case notify.ChannelEmail:
		d.Subject, d.Body = notify.Email(e)
	default:
		return Delivery{}, errors.Errorf("unknown channel %q", e.Channel)
	}
	return d, nil
}

// Handle is a messaging.Handler. Malformed messages are logged and skipped so
// they do not block the partition; sink failures are returned so the message
// is redelivered.
func (n *Notifier) Handle(ctx context.Context, payload []byte) error {
	lg := zctx.From(ctx)

	e, err := messaging.DecodeEvent(payload)
	if err != nil {
		n.count(ctx, n.dropped)
		lg.Warn("Dropping malformed notification", zap.Error(err))
		return nil
	}
	lg = lg.With(
		zap.String("event_id", e.ID),
		zap.String("order_id", e.OrderID),
		zap.String("kind", string(e.Kind)),
	)

	d, err := n.Render(e)
	if err != nil {
		n.count(ctx, n.dropped)
		lg.Warn("Dropping unrenderable notification", zap.Error(err))
		return nil
	}
	if err := n.sink.Send(ctx, d); err != nil {
		return errors.Wrapf(err, "send %s %s", d.Channel, e.ID)
	}
	n.count(ctx, n.delivered)
	lg.Debug("Notification delivered", zap.String("channel", string(d.Channel)))
	return nil
}

func (n *Notifier) count(ctx context.Context, c metric.Int64Counter) {
	if c != nil {
		c.Add(ctx, 1)
	}
}

// LogSink writes deliveries to the log. It stands in for real providers.
type LogSink struct {
	lg *zap.Logger
}

var _ Sink = (*LogSink)(nil)

func NewLogSink(lg *zap.Logger) *LogSink {
	return &LogSink{lg: lg}
}

func (s *LogSink) Send(_ context.Context, d Delivery) error {
	s.lg.Info("Notification",
		zap.String("event_id", d.EventID),
		zap.String("channel", string(d.Channel)),
		zap.String("recipient", d.Recipient),
		zap.String("subject", d.Subject),
		zap.String("body", d.Body),
	)
	return nil
}
