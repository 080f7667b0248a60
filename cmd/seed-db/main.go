// Command seed-db loads a starter menu, a few discount codes, and a staff
// API key into the database. Safe to re-run: everything is upserted.
package main

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"flag"
	"log/slog"
	"os"
	"os/signal"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/streetfare/orderline/internal/storage/postgres"
)

const (
	upsertMenuItemSQL = `INSERT INTO menu_items
			(id, name, price, category_id, is_active, stock_tracked, current_stock, low_stock_threshold)
		VALUES ($1, $2, $3, $4, TRUE, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			price = EXCLUDED.price,
			category_id = EXCLUDED.category_id,
			is_active = TRUE,
			stock_tracked = EXCLUDED.stock_tracked,
			current_stock = EXCLUDED.current_stock,
			low_stock_threshold = EXCLUDED.low_stock_threshold`

	upsertOptionSQL = `INSERT INTO customization_options (id, group_id, name, additional_price)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			group_id = EXCLUDED.group_id,
			name = EXCLUDED.name,
			additional_price = EXCLUDED.additional_price`

	upsertDiscountSQL = `INSERT INTO discount_codes
			(code, discount_type, discount_value, description, usage_limit, per_user_limit, minimum_spend, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'active')
		ON CONFLICT (code) DO UPDATE SET
			discount_type = EXCLUDED.discount_type,
			discount_value = EXCLUDED.discount_value,
			description = EXCLUDED.description,
			usage_limit = EXCLUDED.usage_limit,
			per_user_limit = EXCLUDED.per_user_limit,
			minimum_spend = EXCLUDED.minimum_spend,
			status = 'active'`

	upsertAPIKeySQL = `INSERT INTO api_keys (id, key_hash, name, scopes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			key_hash = EXCLUDED.key_hash,
			name = EXCLUDED.name,
			scopes = EXCLUDED.scopes`
)

type menuItemJSON struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Price             decimal.Decimal `json:"price"`
	CategoryID        string          `json:"category_id"`
	StockTracked      bool            `json:"stock_tracked"`
	CurrentStock      int             `json:"current_stock"`
	LowStockThreshold int             `json:"low_stock_threshold"`
}

type optionJSON struct {
	ID              string          `json:"id"`
	GroupID         string          `json:"group_id"`
	Name            string          `json:"name"`
	AdditionalPrice decimal.Decimal `json:"additional_price"`
}

type menuJSON struct {
	Items   []menuItemJSON `json:"items"`
	Options []optionJSON   `json:"options"`
}

func main() {
	var (
		databaseURL  string
		menuFile     string
		apiKey       string
		apiKeyPepper string
	)

	flag.StringVar(&databaseURL, "database-url", "", "PostgreSQL connection URL (or DATABASE_URL env)")
	flag.StringVar(&menuFile, "menu-file", "db/seed/menu.json", "path to menu JSON file")
	flag.StringVar(&apiKey, "api-key", "", "staff API key to seed (or ORDERLINE_SEED_API_KEY env)")
	flag.StringVar(&apiKeyPepper, "api-key-pepper", "", "HMAC pepper for API key hashing (or ORDERLINE_API_KEY_PEPPER env)")
	flag.Parse()

	if databaseURL == "" {
		databaseURL = os.Getenv("DATABASE_URL")
	}
	if databaseURL == "" {
		slog.Error("database URL is required: set --database-url or DATABASE_URL")
		os.Exit(1)
	}
	if apiKey == "" {
		apiKey = os.Getenv("ORDERLINE_SEED_API_KEY")
	}
	if apiKey == "" {
		slog.Error("API key is required: set --api-key or ORDERLINE_SEED_API_KEY")
		os.Exit(1)
	}
	if apiKeyPepper == "" {
		apiKeyPepper = os.Getenv("ORDERLINE_API_KEY_PEPPER")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if err := run(ctx, databaseURL, menuFile, apiKey, apiKeyPepper); err != nil {
		slog.Error("seed failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	slog.Info("seed completed successfully")
}

func run(ctx context.Context, databaseURL, menuFile, apiKey, pepper string) error {
	slog.Info("connecting to database")

	pool, err := postgres.NewPool(ctx, databaseURL)
	if err != nil {
		return errors.Wrap(err, "connect to database")
	}
	defer pool.Close()

	slog.Info("running migrations")

	if err := postgres.RunMigrations(ctx, pool); err != nil {
		return errors.Wrap(err, "run migrations")
	}

	if err := seedMenu(ctx, pool, menuFile); err != nil {
		return errors.Wrap(err, "seed menu")
	}

	if err := seedDiscounts(ctx, pool); err != nil {
		return errors.Wrap(err, "seed discount codes")
	}

	if err := seedAPIKey(ctx, pool, apiKey, pepper); err != nil {
		return errors.Wrap(err, "seed api key")
	}

	return nil
}

func seedMenu(ctx context.Context, pool *pgxpool.Pool, menuFile string) error {
	slog.Info("reading menu file", slog.String("path", menuFile))

	data, err := os.ReadFile(menuFile)
	if err != nil {
		return errors.Wrap(err, "read menu file")
	}

	var menu menuJSON
	if err := json.Unmarshal(data, &menu); err != nil {
		return errors.Wrap(err, "parse menu JSON")
	}

	slog.Info("upserting menu items", slog.Int("count", len(menu.Items)))

	for _, item := range menu.Items {
		if _, err := pool.Exec(ctx, upsertMenuItemSQL,
			item.ID, item.Name, item.Price, item.CategoryID,
			item.StockTracked, item.CurrentStock, item.LowStockThreshold,
		); err != nil {
			return errors.Wrapf(err, "upsert menu item %s", item.ID)
		}
	}

	slog.Info("upserting customization options", slog.Int("count", len(menu.Options)))

	for _, opt := range menu.Options {
		if _, err := pool.Exec(ctx, upsertOptionSQL,
			opt.ID, opt.GroupID, opt.Name, opt.AdditionalPrice,
		); err != nil {
			return errors.Wrapf(err, "upsert option %s", opt.ID)
		}
	}

	return nil
}

func seedDiscounts(ctx context.Context, pool *pgxpool.Pool) error {
	slog.Info("seeding starter discount codes")

	type seedCode struct {
		code         string
		discountType string
		value        string
		description  string
		usageLimit   int
		perUserLimit int
		minimumSpend string
	}

	codes := []seedCode{
		{
			code:         "SAVE10",
			discountType: "percentage",
			value:        "10",
			description:  "10% off orders over the minimum spend",
			minimumSpend: "20",
		},
		{
			code:         "WELCOME5",
			discountType: "fixed",
			value:        "5",
			description:  "5 off your first order",
			perUserLimit: 1,
			minimumSpend: "0",
		},
		{
			code:         "LUNCHDEAL",
			discountType: "percentage",
			value:        "15",
			description:  "Lunch rush: 15% off",
			usageLimit:   500,
			minimumSpend: "0",
		},
	}

	for _, c := range codes {
		value, err := decimal.NewFromString(c.value)
		if err != nil {
			return errors.Wrapf(err, "parse value for %s", c.code)
		}
		minSpend, err := decimal.NewFromString(c.minimumSpend)
		if err != nil {
			return errors.Wrapf(err, "parse minimum spend for %s", c.code)
		}

		if _, err := pool.Exec(ctx, upsertDiscountSQL,
			c.code, c.discountType, value, c.description,
			c.usageLimit, c.perUserLimit, minSpend,
		); err != nil {
			return errors.Wrapf(err, "upsert discount code %s", c.code)
		}

		slog.Info("upserted discount code", slog.String("code", c.code), slog.String("description", c.description))
	}

	return nil
}

func seedAPIKey(ctx context.Context, pool *pgxpool.Pool, apiKey, pepper string) error {
	slog.Info("seeding staff API key")

	mac := hmac.New(sha256.New, []byte(pepper))
	mac.Write([]byte(apiKey))
	keyHash := hex.EncodeToString(mac.Sum(nil))

	if _, err := pool.Exec(ctx, upsertAPIKeySQL,
		"default", keyHash, "Default staff key", []string{"queue:read", "status:write"},
	); err != nil {
		return errors.Wrap(err, "upsert staff API key")
	}

	slog.Info("upserted API key", slog.String("id", "default"), slog.String("name", "Default staff key"))

	return nil
}
