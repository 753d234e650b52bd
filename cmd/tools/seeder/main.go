package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/desawali/storefront-api/internal/config"
	"github.com/desawali/storefront-api/internal/obs"
	"github.com/desawali/storefront-api/internal/order"
	"github.com/desawali/storefront-api/internal/payment"
)

// Seeds pending orders so the payment flow can be exercised against a local database.
func main() {
	count := flag.Int("count", 3, "number of orders to create")
	amount := flag.Int64("amount", 49900, "order total in paise")
	prefix := flag.String("prefix", "DEMO", "order id prefix")
	user := flag.String("user", "", "optional user id")
	flag.Parse()

	logger := obs.NewLogger("console", "info").With().Str("component", "seeder").Logger()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("load config")
	}
	if cfg.DatabaseURL == "" {
		logger.Fatal().Msg("DATABASE_URL is not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	defer pool.Close()

	store := order.NewStore(pool)
	stamp := time.Now().Unix()
	for i := 1; i <= *count; i++ {
		id := fmt.Sprintf("%s-%d-%d", *prefix, stamp, i)
		if !payment.ValidOrderID(id) {
			logger.Fatal().Str("order_id", id).Msg("prefix produces an invalid order id")
		}
		if err := store.Create(ctx, order.Order{ID: id, TotalAmount: *amount}, *user); err != nil {
			logger.Fatal().Err(err).Str("order_id", id).Msg("create order")
		}
		logger.Info().Str("order_id", id).Int64("amount", *amount).Msg("order_seeded")
	}
}
