package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/SG-Fashion/sgfashion/internal/domain/payment"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (SHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr           string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL    string `usage:"PostgreSQL connection URL (SHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MongoURI       string `usage:"MongoDB connection URI for carts (SHOP_MONGO_URI or MONGODB_URI)" flag:"mongo-uri"`
	MongoDatabase  string `default:"shop" usage:"MongoDB database holding the carts collection" flag:"mongo-database"`
	APIKeyPepper   string `usage:"HMAC pepper for admin API key hashing" flag:"api-key-pepper"`
	JWTSecret      string `usage:"HS256 secret user tokens are signed with" flag:"jwt-secret"`
	AdminListLimit int    `default:"500" usage:"Maximum orders returned by the admin listing, 0 for no cap" flag:"admin-list-limit"`
	Checkout       CheckoutConfig
	Stripe         StripeConfig
	Razorpay       RazorpayConfig
	Kafka          KafkaConfig
	RateLimit      RateLimitConfig
	CORS           CORSConfig
	Graceful       GracefulConfig
}

// CheckoutConfig holds pricing and redirect settings.
type CheckoutConfig struct {
	Currency       string `default:"inr" usage:"ISO currency code sent to the gateways"`
	DeliveryCharge string `default:"10" usage:"Flat delivery charge added to every order" flag:"delivery-charge"`
	ReturnURL      string `default:"http://localhost:5173/verify" usage:"Storefront page hosted checkout returns to" flag:"return-url"`
}

// StripeConfig enables hosted checkout when SecretKey is set.
type StripeConfig struct {
	SecretKey string `usage:"Stripe secret key; hosted checkout is disabled when empty" flag:"stripe-secret-key"`
}

// RazorpayConfig enables the gateway checkout when both keys are set.
type RazorpayConfig struct {
	KeyID     string `usage:"Razorpay key id" flag:"razorpay-key-id"`
	KeySecret string `usage:"Razorpay key secret" flag:"razorpay-key-secret"`
}

// KafkaConfig locates the notification topic.
type KafkaConfig struct {
	Brokers        []string      `default:"localhost:9092" usage:"Kafka bootstrap brokers"`
	Topic          string        `default:"order-notifications" usage:"Topic notification events are published to"`
	PublishTimeout time.Duration `default:"10s" usage:"Upper bound for a single notification publish" flag:"publish-timeout"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SHOP",
		Files:     []string{"config.yaml", "/etc/shop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's SHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.MongoURI == "" {
		c.MongoURI = os.Getenv("MONGODB_URI")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set SHOP_DATABASE_URL or DATABASE_URL")
	case c.MongoURI == "":
		return errors.New("mongo URI is required: set SHOP_MONGO_URI or MONGODB_URI")
	case c.JWTSecret == "":
		return errors.New("jwt secret is required: set SHOP_JWT_SECRET")
	case len(c.Kafka.Brokers) == 0:
		return errors.New("at least one kafka broker is required")
	case (c.Razorpay.KeyID == "") != (c.Razorpay.KeySecret == ""):
		return errors.New("razorpay key id and secret must be set together")
	}
	if _, err := c.DeliveryCharge(); err != nil {
		return err
	}
	if _, err := payment.ParseReturnURL(c.Checkout.ReturnURL); err != nil {
		return errors.Wrap(err, "checkout return url")
	}
	return nil
}

// DeliveryCharge parses the configured flat delivery charge.
func (c *Config) DeliveryCharge() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Checkout.DeliveryCharge)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse delivery charge")
	}
	if d.IsNegative() {
		return decimal.Zero, errors.Errorf("delivery charge %s must not be negative", d)
	}
	return d, nil
}
