// Command seed-db loads a development catalog, discounts, claims, cart lines
// and API keys into the database.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/xenking/storefront/internal/domain/auth"
	"github.com/xenking/storefront/internal/handler"
	"github.com/xenking/storefront/internal/storage/postgres"
)

type catalog struct {
	Products []struct {
		ID              int64           `json:"id"`
		Name            string          `json:"name"`
		Price           decimal.Decimal `json:"price"`
		Stock           int             `json:"stock"`
		DiscountPercent decimal.Decimal `json:"discount_percent"`
		// Images lists image urls; the first one is the default.
		Images []string `json:"images"`
	} `json:"products"`
	Discounts []struct {
		Code              string           `json:"code"`
		Percent           decimal.Decimal  `json:"percent"`
		ReleaseDate       time.Time        `json:"release_date"`
		ExpirationDate    time.Time        `json:"expiration_date"`
		MaxUsers          *int             `json:"max_users"`
		MinimumOrderValue *decimal.Decimal `json:"minimum_order_value"`
	} `json:"discounts"`
	Claims []struct {
		UserID int64  `json:"user_id"`
		Code   string `json:"code"`
	} `json:"claims"`
	Cart []struct {
		UserID    int64 `json:"user_id"`
		ProductID int64 `json:"product_id"`
		Quantity  int   `json:"quantity"`
	} `json:"cart"`
}

const (
	upsertProductSQL = `
INSERT INTO products (id, name, price, stock, discount_percent)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET name = EXCLUDED.name, price = EXCLUDED.price, stock = EXCLUDED.stock,
    discount_percent = EXCLUDED.discount_percent`

	syncProductSeqSQL = `SELECT setval(pg_get_serial_sequence('products', 'id'), (SELECT max(id) FROM products))`

	insertImageSQL = `INSERT INTO product_images (product_id, image_url, is_default) VALUES ($1, $2, $3)`

	upsertDiscountSQL = `
INSERT INTO discounts (code, discount_percent, release_date, expiration_date, max_users, minimum_order_value)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (code) DO UPDATE
SET discount_percent = EXCLUDED.discount_percent, release_date = EXCLUDED.release_date,
    expiration_date = EXCLUDED.expiration_date, max_users = EXCLUDED.max_users,
    minimum_order_value = EXCLUDED.minimum_order_value`

	insertClaimSQL = `
INSERT INTO user_discounts (user_id, discount_id)
SELECT $1, id FROM discounts WHERE code = $2
ON CONFLICT (user_id, discount_id) DO NOTHING`

	upsertCartSQL = `
INSERT INTO cart_items (user_id, product_id, quantity) VALUES ($1, $2, $3)
ON CONFLICT (user_id, product_id) DO UPDATE SET quantity = EXCLUDED.quantity`
)

type keySpec struct {
	id, name, key string
	userID        int64
	role          auth.Role
}

func main() {
	var (
		databaseURL  string
		catalogFile  string
		apiKey       string
		adminAPIKey  string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&catalogFile, "catalog-file", "db/seed/catalog.json", "path to the catalog JSON file")
	flag.StringVar(&apiKey, "api-key", "", "customer API key for user 1 (or STOREFRONT_SEED_API_KEY env)")
	flag.StringVar(&adminAPIKey, "admin-api-key", "", "optional admin API key (or STOREFRONT_SEED_ADMIN_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or STOREFRONT_API_KEY_PEPPER env)")
	flag.Parse()

	databaseURL = orEnv(databaseURL, "DATABASE_URL")
	apiKey = orEnv(apiKey, "STOREFRONT_SEED_API_KEY")
	adminAPIKey = orEnv(adminAPIKey, "STOREFRONT_SEED_ADMIN_API_KEY")
	apiKeyPepper = orEnv(apiKeyPepper, "STOREFRONT_API_KEY_PEPPER")

	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or STOREFRONT_SEED_API_KEY")
		os.Exit(1)
	}

	keys := []keySpec{{id: "customer", name: "Default customer key", key: apiKey, userID: 1, role: auth.RoleCustomer}}
	if adminAPIKey != "" {
		keys = append(keys, keySpec{id: "admin", name: "Default admin key", key: adminAPIKey, userID: 1000, role: auth.RoleAdmin})
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, catalogFile, keys, []byte(apiKeyPepper)); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func orEnv(v, env string) string {
	if v != "" {
		return v
	}
	return os.Getenv(env)
}

func run(ctx context.Context, databaseURL, catalogFile string, keys []keySpec, pepper []byte) error {
	slog.Info("reading catalog file", slog.String("path", catalogFile))

	data, err := os.ReadFile(catalogFile)
	if err != nil {
		return errors.Wrap(err, "read catalog file")
	}
	var c catalog
	if err := json.Unmarshal(data, &c); err != nil {
		return errors.Wrap(err, "parse catalog JSON")
	}

	slog.Info("running migrations")
	if err := postgres.RunMigrations(databaseURL); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	if err := pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		return seedCatalog(ctx, tx, &c)
	}); err != nil {
		return err
	}
	return seedAPIKeys(ctx, pool, keys, pepper)
}

func seedCatalog(ctx context.Context, tx pgx.Tx, c *catalog) error {
	slog.Info("upserting products", slog.Int("count", len(c.Products)))
	for _, p := range c.Products {
		if _, err := tx.Exec(ctx, upsertProductSQL, p.ID, p.Name, p.Price, p.Stock, p.DiscountPercent); err != nil {
			return errors.Wrapf(err, "upsert product %d", p.ID)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM product_images WHERE product_id = $1`, p.ID); err != nil {
			return errors.Wrapf(err, "clear images of product %d", p.ID)
		}
		for i, url := range p.Images {
			if _, err := tx.Exec(ctx, insertImageSQL, p.ID, url, i == 0); err != nil {
				return errors.Wrapf(err, "insert image of product %d", p.ID)
			}
		}
	}
	if len(c.Products) > 0 {
		if _, err := tx.Exec(ctx, syncProductSeqSQL); err != nil {
			return errors.Wrap(err, "sync product id sequence")
		}
	}

	slog.Info("upserting discounts", slog.Int("count", len(c.Discounts)))
	for _, d := range c.Discounts {
		if _, err := tx.Exec(ctx, upsertDiscountSQL,
			d.Code, d.Percent, d.ReleaseDate, d.ExpirationDate, d.MaxUsers, d.MinimumOrderValue,
		); err != nil {
			return errors.Wrapf(err, "upsert discount %s", d.Code)
		}
	}

	for _, cl := range c.Claims {
		tag, err := tx.Exec(ctx, insertClaimSQL, cl.UserID, cl.Code)
		if err != nil {
			return errors.Wrapf(err, "claim %s for user %d", cl.Code, cl.UserID)
		}
		slog.Info("claim", slog.Int64("user_id", cl.UserID), slog.String("code", cl.Code), slog.Int64("inserted", tag.RowsAffected()))
	}

	for _, it := range c.Cart {
		if _, err := tx.Exec(ctx, upsertCartSQL, it.UserID, it.ProductID, it.Quantity); err != nil {
			return errors.Wrapf(err, "cart line %d for user %d", it.ProductID, it.UserID)
		}
	}
	slog.Info("upserted cart lines", slog.Int("count", len(c.Cart)))
	return nil
}

func seedAPIKeys(ctx context.Context, pool *pgxpool.Pool, keys []keySpec, pepper []byte) error {
	repo := postgres.NewAPIKeyRepository(pool)
	for _, k := range keys {
		if err := repo.Upsert(ctx, auth.APIKeyInfo{
			ID:      k.id,
			KeyHash: handler.HashKey(pepper, k.key),
			Name:    k.name,
			UserID:  k.userID,
			Role:    k.role,
		}); err != nil {
			return err
		}
		slog.Info("upserted API key", slog.String("id", k.id), slog.String("role", string(k.role)))
	}
	return nil
}
