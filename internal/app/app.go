package app

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/auth"
	"github.com/SG-Fashion/sgfashion/internal/domain/cart"
	"github.com/SG-Fashion/sgfashion/internal/domain/checkout"
	"github.com/SG-Fashion/sgfashion/internal/domain/coupon"
	"github.com/SG-Fashion/sgfashion/internal/domain/notify"
	"github.com/SG-Fashion/sgfashion/internal/domain/order"
	"github.com/SG-Fashion/sgfashion/internal/domain/payment"
	"github.com/SG-Fashion/sgfashion/internal/handler"
	"github.com/SG-Fashion/sgfashion/internal/messaging"
	"github.com/SG-Fashion/sgfashion/internal/payment/razorpay"
	"github.com/SG-Fashion/sgfashion/internal/payment/stripe"
	"github.com/SG-Fashion/sgfashion/internal/repository"
	"github.com/SG-Fashion/sgfashion/pkg/health"
	"github.com/SG-Fashion/sgfashion/pkg/httpmiddleware"
)

const serviceName = "shop-api"

// server is the wired HTTP service and the resources it owns.
type server struct {
	http   *http.Server
	health *health.Health
	// closers run in reverse order on close.
	closers []func()
}

func (s *server) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// Run creates all dependencies, starts the HTTP server, and handles graceful
// shutdown.
func Run(ctx context.Context, lg *zap.Logger, m *app.Telemetry, cfg *Config) error {
	lg.Info("Initializing", zap.String("addr", cfg.Addr))

	srv, err := newServer(ctx, lg, m.TracerProvider(), m.MeterProvider(), cfg)
	if err != nil {
		return err
	}
	defer srv.close()

	srv.health.Start(ctx, 10*time.Second)
	srv.health.SetReady(true)

	// Graceful shutdown: wait for context cancellation, drain, then stop.
	shutdownDone := make(chan struct{})
	go func() {
		<-ctx.Done()
		srv.health.SetReady(false)
		lg.Info("Readiness set to false, draining", zap.Duration("delay", cfg.Graceful.ReadinessDelay))
		time.Sleep(cfg.Graceful.ReadinessDelay)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Graceful.ShutdownTimeout)
		defer cancel()

		lg.Info("Shutting down server", zap.Duration("timeout", cfg.Graceful.ShutdownTimeout))
		if err := srv.http.Shutdown(shutdownCtx); err != nil {
			lg.Error("Server shutdown error", zap.Error(err))
		}
		srv.health.Stop()
		close(shutdownDone)
	}()

	lg.Info("Server listening", zap.String("addr", cfg.Addr))
	if err := srv.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return errors.Wrap(err, "server")
	}
	<-shutdownDone
	return nil
}

// newServer connects the stores and wires every component into an
// http.Server. It is the single wiring point for the application. The caller
// starts health checks and owns srv.close.
func newServer(ctx context.Context, lg *zap.Logger, tp trace.TracerProvider, mp metric.MeterProvider, cfg *Config) (_ *server, rerr error) {
	deliveryCharge, err := cfg.DeliveryCharge()
	if err != nil {
		return nil, err
	}

	srv := &server{health: health.New()}
	defer func() {
		if rerr != nil {
			srv.close()
		}
	}()

	// PostgreSQL pool + migrations.
	pool, err := repository.NewPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "create db pool")
	}
	srv.closers = append(srv.closers, pool.Close)

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}

	// MongoDB holds carts.
	mongoClient, err := repository.ConnectMongo(ctx, cfg.MongoURI)
	if err != nil {
		return nil, errors.Wrap(err, "connect mongo")
	}
	srv.closers = append(srv.closers, func() {
		if err := mongoClient.Disconnect(context.WithoutCancel(ctx)); err != nil {
			lg.Warn("Mongo disconnect", zap.Error(err))
		}
	})

	// Kafka notification producer.
	producer := messaging.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	srv.closers = append(srv.closers, func() {
		if err := producer.Close(); err != nil {
			lg.Warn("Kafka producer close", zap.Error(err))
		}
	})

	// Health checks.
	srv.health.Register(health.Readiness, "postgres", health.PingCheck(pool), health.Timeout(5*time.Second))
	srv.health.Register(health.Readiness, "mongo", func(ctx context.Context) error {
		return mongoClient.Ping(ctx, nil)
	}, health.Timeout(5*time.Second))
	srv.health.Register(health.Readiness, "kafka", kafkaCheck(cfg.Kafka.Brokers),
		health.Timeout(5*time.Second),
		health.Thresholds(3, 1),
	)
	srv.health.Register(health.Liveness, "goroutines", health.GoroutineCountCheck(10000), health.Timeout(time.Second))

	// Repositories.
	productRepo := repository.NewProductRepository(pool)
	couponRepo := repository.NewCouponRepository(pool)
	orderRepo := repository.NewOrderRepository(pool)
	apikeyRepo := repository.NewAPIKeyRepository(pool)
	cartStore := repository.NewCartStore(mongoClient.Database(cfg.MongoDatabase))

	// Payment methods. Gateways without credentials stay disabled.
	methods := &payment.Methods{}
	if cfg.Stripe.SecretKey != "" {
		client, err := stripe.New(cfg.Stripe.SecretKey, lg.Named("stripe"))
		if err != nil {
			return nil, errors.Wrap(err, "create stripe client")
		}
		hosted, err := payment.NewHosted(client, payment.HostedConfig{
			Currency:       cfg.Checkout.Currency,
			DeliveryCharge: deliveryCharge,
			ReturnURL:      cfg.Checkout.ReturnURL,
		})
		if err != nil {
			return nil, errors.Wrap(err, "create hosted checkout")
		}
		methods.Hosted = hosted
	}
	if cfg.Razorpay.KeyID != "" {
		client, err := razorpay.New(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret, lg.Named("razorpay"))
		if err != nil {
			return nil, errors.Wrap(err, "create razorpay client")
		}
		methods.Gateway = payment.NewGateway(client, cfg.Checkout.Currency)
	}
	lg.Info("Payment methods",
		zap.Bool(string(order.MethodHosted), methods.Hosted != nil),
		zap.Bool(string(order.MethodGateway), methods.Gateway != nil),
	)

	meter := mp.Meter(serviceName)
	dispatcher, err := notify.NewDispatcher(producer, lg.Named("notify"), notify.DispatcherConfig{
		Timeout: cfg.Kafka.PublishTimeout,
		Meter:   meter,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create notifier")
	}
	// Registered after the producer so it drains first.
	srv.closers = append(srv.closers, dispatcher.Close)

	// Domain services.
	carts := cart.NewService(cartStore)
	checkoutSvc, err := checkout.NewService(checkout.Config{DeliveryCharge: deliveryCharge}, checkout.Deps{
		Orders:   order.NewStore(orderRepo),
		Catalog:  productRepo,
		Coupons:  coupon.NewEvaluator(couponRepo, productRepo),
		Carts:    carts,
		Methods:  methods,
		Notifier: dispatcher,
		Logger:   lg.Named("checkout"),
		Meter:    meter,
		Tracer:   tp.Tracer(serviceName),
	})
	if err != nil {
		return nil, errors.Wrap(err, "create checkout service")
	}

	// HTTP handlers.
	h, err := handler.NewHandler(
		handler.Config{AdminListLimit: cfg.AdminListLimit},
		checkoutSvc,
		carts,
		auth.NewTokens([]byte(cfg.JWTSecret)),
		auth.NewKeyAuthenticator(apikeyRepo, []byte(cfg.APIKeyPepper)),
	)
	if err != nil {
		return nil, errors.Wrap(err, "create handler")
	}

	// Route-aware middlewares run inside the router so chi has matched the
	// pattern by the time they log or label.
	api := h.Routes(
		httpmiddleware.Instrument(serviceName, tp, mp),
		httpmiddleware.LogRequests(),
	)

	mux := chi.NewRouter()
	mux.Get("/livez", srv.health.LiveEndpoint)
	mux.Get("/readyz", srv.health.ReadyEndpoint)
	mux.Mount("/", api)

	srv.http = &http.Server{
		ReadHeaderTimeout: time.Second,
		ReadTimeout:       5 * time.Second,
		// Gateway calls run inside the request.
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20,
		Addr:           cfg.Addr,
		Handler: httpmiddleware.Wrap(mux,
			httpmiddleware.Recovery(),
			httpmiddleware.CORS(httpmiddleware.CORSConfig{
				AllowOrigins:     cfg.CORS.Origins,
				AllowHeaders:     []string{"Content-Type", "Authorization", "token", "api_key", httpmiddleware.RequestIDHeader},
				ExposeHeaders:    []string{httpmiddleware.RequestIDHeader},
				AllowCredentials: cfg.CORS.AllowCredentials,
				MaxAge:           86400,
			}),
			httpmiddleware.RateLimit(ctx, httpmiddleware.RateLimitConfig{
				Max:    cfg.RateLimit.Max,
				Window: cfg.RateLimit.Window,
			}),
			httpmiddleware.RequestID(),
			httpmiddleware.InjectLogger(lg),
		),
	}
	return srv, nil
}

// kafkaCheck passes when any broker accepts a connection.
func kafkaCheck(brokers []string) health.CheckFunc {
	checks := make([]health.CheckFunc, 0, len(brokers))
	for _, broker := range brokers {
		checks = append(checks, func(ctx context.Context) error {
			conn, err := kafka.DialContext(ctx, "tcp", broker)
			if err != nil {
				return errors.Wrapf(err, "dial %s", broker)
			}
			return conn.Close()
		})
	}
	return health.AnyCheck(checks...)
}
