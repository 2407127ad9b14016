// Command seed-db loads catalog products, starter coupons and an admin API key.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/SG-Fashion/sgfashion/internal/domain/auth"
	"github.com/SG-Fashion/sgfashion/internal/domain/coupon"
	"github.com/SG-Fashion/sgfashion/internal/domain/product"
	"github.com/SG-Fashion/sgfashion/internal/repository"
)

type productJSON struct {
	ID      string          `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Sizes   []string        `json:"sizes"`
	InStock bool            `json:"inStock"`
}

func main() {
	var (
		databaseURL  string
		productsFile string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&productsFile, "products-file", "db/seed/products.json", "path to products JSON file")
	flag.StringVar(&apiKey, "api-key", "", "admin API key to seed (or SHOP_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or SHOP_API_KEY_PEPPER env)")
	flag.Parse()

	lg, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = lg.Sync() }()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		lg.Fatal("database URL is required: set --database-url or DATABASE_URL")
	}
	if apiKey == "" {
		apiKey = os.Getenv("SHOP_SEED_API_KEY")
	}
	if apiKey == "" {
		lg.Fatal("API key is required: set --api-key or SHOP_SEED_API_KEY")
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("SHOP_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, lg, databaseURL, productsFile, apiKey, apiKeyPepper); err != nil {
		lg.Error("Seed failed", zap.Error(err))
		os.Exit(1)
	}
	lg.Info("Seed completed")
}

func run(ctx context.Context, lg *zap.Logger, databaseURL, productsFile, apiKey, pepper string) error {
	lg.Info("Connecting to database")

	pool, err := repository.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := repository.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedProducts(ctx, lg, repository.NewProductRepository(pool), productsFile); err != nil {
		return errors.Wrap(err, "seed products")
	}
	if err := seedCoupons(ctx, lg, repository.NewCouponRepository(pool)); err != nil {
		return errors.Wrap(err, "seed coupons")
	}
	if err := seedAPIKey(ctx, lg, repository.NewAPIKeyRepository(pool), apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}
	return nil
}

func seedProducts(ctx context.Context, lg *zap.Logger, repo *repository.ProductRepository, productsFile string) error {
	data, err := os.ReadFile(productsFile)
	if err != nil {
		return errors.Wrap(err, "read products file")
	}

	var products []productJSON
	if err := json.Unmarshal(data, &products); err != nil {
		return errors.Wrap(err, "parse products JSON")
	}

	for _, p := range products {
		if err := repo.Upsert(ctx, product.Product{
			ID:      p.ID,
			Name:    p.Name,
			Price:   p.Price,
			Sizes:   p.Sizes,
			InStock: p.InStock,
		}); err != nil {
			return err
		}
		lg.Info("Upserted product", zap.String("id", p.ID), zap.String("name", p.Name))
	}
	return nil
}

func starterCoupons(now time.Time) []coupon.Coupon {
	return []coupon.Coupon{
		{
			ID:            "coupon-welcome10",
			Code:          "WELCOME10",
			IsActive:      true,
			MinPurchase:   decimal.NewFromInt(499),
			Type:          coupon.TypeDiscount,
			DiscountType:  coupon.DiscountPercent,
			DiscountValue: decimal.NewFromInt(10),
		},
		{
			ID:            "coupon-flat200",
			Code:          "FLAT200",
			IsActive:      true,
			ExpiryDate:    now.AddDate(0, 3, 0),
			MinPurchase:   decimal.NewFromInt(1999),
			Type:          coupon.TypeDiscount,
			DiscountType:  coupon.DiscountFlat,
			DiscountValue: decimal.NewFromInt(200),
		},
		{
			ID:               "coupon-freetote",
			Code:             "FREETOTE",
			IsActive:         true,
			MinPurchase:      decimal.NewFromInt(2999),
			Type:             coupon.TypeFreebie,
			FreebieProductID: "prod-canvas-tote",
		},
	}
}

func seedCoupons(ctx context.Context, lg *zap.Logger, repo *repository.CouponRepository) error {
	coupons := starterCoupons(time.Now())
	if err := repo.UpsertBatch(ctx, coupons); err != nil {
		return err
	}
	for _, c := range coupons {
		lg.Info("Upserted coupon", zap.String("code", c.Code), zap.String("type", string(c.Type)))
	}
	return nil
}

func seedAPIKey(ctx context.Context, lg *zap.Logger, repo *repository.APIKeyRepository, apiKey, pepper string) error {
	info := auth.APIKeyInfo{
		ID:      "default-admin",
		KeyHash: auth.HashAPIKey([]byte(pepper), apiKey),
		Name:    "Default admin key",
		Scopes:  []string{"*"},
	}
	if err := repo.Insert(ctx, info); err != nil {
		return err
	}
	lg.Info("Seeded API key", zap.String("id", info.ID), zap.String("name", info.Name))
	return nil
}
