// Command notifier consumes order notification events and delivers them.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/messaging"
	"github.com/SG-Fashion/sgfashion/internal/notifier"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		n, err := notifier.New(notifier.NewLogSink(lg.Named("sink")), notifier.Config{
			TrackURL: cfg.TrackURL,
			Meter:    m.MeterProvider().Meter("shop-notifier"),
		})
		if err != nil {
			return errors.Wrap(err, "create notifier")
		}

		consumer := messaging.NewConsumer(cfg.Brokers, cfg.Topic, cfg.GroupID)
		defer func() {
			if err := consumer.Close(); err != nil {
				lg.Warn("Consumer close", zap.Error(err))
			}
		}()

		lg.Info("Consuming",
			zap.Strings("brokers", cfg.Brokers),
			zap.String("topic", cfg.Topic),
			zap.String("group", cfg.GroupID),
		)
		err = consumer.Consume(zctx.Base(ctx, lg), n.Handle)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
}
