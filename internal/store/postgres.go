package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/db"
	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection. These
// are the ledger hot path: one lookup and one conditional write per chain
// price fact per ingestion cycle.
var preparedStatements = map[string]string{
	"get_open_regular":  `SELECT id, product_id, chain_id, price_bgn, price_eur, valid_from, valid_to, discount FROM price_records WHERE product_id = $1 AND chain_id = $2 AND discount = 0 AND valid_to IS NULL`,
	"insert_price":      `INSERT INTO price_records (product_id, chain_id, price_bgn, price_eur, valid_from, valid_to, discount) VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
	"close_price":       `UPDATE price_records SET valid_to = $1 WHERE id = $2`,
	"get_chain_by_name": `SELECT id, public_id, name, catalog_url FROM chains WHERE name = $1`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Used by tests with pgxmock.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS chains (
	id          BIGSERIAL PRIMARY KEY,
	public_id   TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL UNIQUE,
	catalog_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS categories (
	id   BIGSERIAL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS products (
	id          BIGSERIAL PRIMARY KEY,
	public_id   TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	brand       TEXT NOT NULL DEFAULT '',
	category_id BIGINT NOT NULL REFERENCES categories(id),
	barcode     TEXT,
	image_url   TEXT,
	unit        TEXT,
	UNIQUE (name, brand, category_id)
);

CREATE TABLE IF NOT EXISTS price_records (
	id         BIGSERIAL PRIMARY KEY,
	product_id BIGINT NOT NULL REFERENCES products(id),
	chain_id   BIGINT NOT NULL REFERENCES chains(id),
	price_bgn  NUMERIC(12,2) NOT NULL,
	price_eur  NUMERIC(12,2) NOT NULL,
	valid_from TIMESTAMPTZ NOT NULL,
	valid_to   TIMESTAMPTZ,
	discount   INTEGER NOT NULL DEFAULT 0
);

-- Guards the single-open-regular-record invariant against concurrent
-- ingestions of the same (product, chain).
CREATE UNIQUE INDEX IF NOT EXISTS uniq_open_regular
	ON price_records(product_id, chain_id)
	WHERE discount = 0 AND valid_to IS NULL;

CREATE INDEX IF NOT EXISTS idx_price_records_product_chain ON price_records(product_id, chain_id);
CREATE INDEX IF NOT EXISTS idx_price_records_validity ON price_records(valid_from, valid_to);

CREATE TABLE IF NOT EXISTS carts (
	id      BIGSERIAL PRIMARY KEY,
	user_id BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS cart_items (
	id         BIGSERIAL PRIMARY KEY,
	cart_id    BIGINT NOT NULL REFERENCES carts(id),
	product_id BIGINT NOT NULL REFERENCES products(id),
	quantity   INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_cart_items_cart_id ON cart_items(cart_id);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateChain(ctx context.Context, chain model.StoreChain) (*model.StoreChain, error) {
	chain.PublicID = uuid.New().String()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO chains (public_id, name, catalog_url) VALUES ($1, $2, $3) RETURNING id`,
		chain.PublicID, chain.Name, chain.CatalogURL,
	).Scan(&chain.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert chain %s", chain.Name)
	}
	return &chain, nil
}

func (s *PostgresStore) GetChainByName(ctx context.Context, name string) (*model.StoreChain, error) {
	var c model.StoreChain
	err := s.pool.QueryRow(ctx,
		`SELECT id, public_id, name, catalog_url FROM chains WHERE name = $1`,
		name,
	).Scan(&c.ID, &c.PublicID, &c.Name, &c.CatalogURL)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get chain %s", name)
	}
	return &c, nil
}

func (s *PostgresStore) ListChains(ctx context.Context) ([]model.StoreChain, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, public_id, name, catalog_url FROM chains ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list chains")
	}
	defer rows.Close()

	var chains []model.StoreChain
	for rows.Next() {
		var c model.StoreChain
		if err := rows.Scan(&c.ID, &c.PublicID, &c.Name, &c.CatalogURL); err != nil {
			return nil, eris.Wrap(err, "postgres: scan chain")
		}
		chains = append(chains, c)
	}
	return chains, eris.Wrap(rows.Err(), "postgres: list chains iterate")
}

// SeedChains bulk-loads the chain registry via COPY. Existing names are not
// deduplicated here; seeding targets an empty registry.
func (s *PostgresStore) SeedChains(ctx context.Context, chains []model.StoreChain) (int64, error) {
	rows := make([][]any, 0, len(chains))
	for _, c := range chains {
		rows = append(rows, []any{uuid.New().String(), c.Name, c.CatalogURL})
	}
	return db.CopyFrom(ctx, s.pool, "chains", []string{"public_id", "name", "catalog_url"}, rows)
}

func (s *PostgresStore) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	var c model.Category
	err := s.pool.QueryRow(ctx,
		`SELECT id, name FROM categories WHERE name = $1`,
		name,
	).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get category %s", name)
	}
	return &c, nil
}

func (s *PostgresStore) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	c := model.Category{Name: name}
	// ON CONFLICT guards two resolvers racing on first sighting.
	err := s.pool.QueryRow(ctx,
		`INSERT INTO categories (name) VALUES ($1)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id`,
		name,
	).Scan(&c.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert category %s", name)
	}
	return &c, nil
}

func (s *PostgresStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list categories")
	}
	defer rows.Close()

	var cats []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, eris.Wrap(err, "postgres: scan category")
		}
		cats = append(cats, c)
	}
	return cats, eris.Wrap(rows.Err(), "postgres: list categories iterate")
}

func (s *PostgresStore) GetProduct(ctx context.Context, name, brand string, categoryID int64) (*model.Product, error) {
	var p model.Product
	var barcode, imageURL, unit *string
	err := s.pool.QueryRow(ctx,
		`SELECT id, public_id, name, brand, category_id, barcode, image_url, unit
		 FROM products WHERE name = $1 AND brand = $2 AND category_id = $3`,
		name, brand, categoryID,
	).Scan(&p.ID, &p.PublicID, &p.Name, &p.Brand, &p.CategoryID, &barcode, &imageURL, &unit)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get product %s", name)
	}
	if barcode != nil {
		p.Barcode = *barcode
	}
	if imageURL != nil {
		p.ImageURL = *imageURL
	}
	if unit != nil {
		p.Unit = *unit
	}
	return &p, nil
}

func (s *PostgresStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	p.PublicID = uuid.New().String()
	err := s.pool.QueryRow(ctx,
		`INSERT INTO products (public_id, name, brand, category_id, barcode, image_url, unit)
		 VALUES ($1, $2, $3, $4, NULLIF($5, ''), NULLIF($6, ''), NULLIF($7, ''))
		 RETURNING id`,
		p.PublicID, p.Name, p.Brand, p.CategoryID, p.Barcode, p.ImageURL, p.Unit,
	).Scan(&p.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert product %s", p.Name)
	}
	return &p, nil
}

func (s *PostgresStore) GetOpenRegularPrice(ctx context.Context, productID, chainID int64) (*model.PriceRecord, error) {
	var r model.PriceRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, product_id, chain_id, price_bgn, price_eur, valid_from, valid_to, discount
		 FROM price_records
		 WHERE product_id = $1 AND chain_id = $2 AND discount = 0 AND valid_to IS NULL`,
		productID, chainID,
	).Scan(&r.ID, &r.ProductID, &r.ChainID, &r.PriceBGN, &r.PriceEUR, &r.ValidFrom, &r.ValidTo, &r.Discount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get open regular price for product %d", productID)
	}
	return &r, nil
}

// FindPromoPrice looks up a promotional record matching the candidate
// exactly. This is the idempotency check for re-scraped promotions.
func (s *PostgresStore) FindPromoPrice(ctx context.Context, rec model.PriceRecord) (*model.PriceRecord, error) {
	var r model.PriceRecord
	err := s.pool.QueryRow(ctx,
		`SELECT id, product_id, chain_id, price_bgn, price_eur, valid_from, valid_to, discount
		 FROM price_records
		 WHERE product_id = $1 AND chain_id = $2 AND price_bgn = $3 AND price_eur = $4
		   AND valid_to IS NOT DISTINCT FROM $5 AND discount = $6`,
		rec.ProductID, rec.ChainID, rec.PriceBGN, rec.PriceEUR, rec.ValidTo, rec.Discount,
	).Scan(&r.ID, &r.ProductID, &r.ChainID, &r.PriceBGN, &r.PriceEUR, &r.ValidFrom, &r.ValidTo, &r.Discount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: find promo price for product %d", rec.ProductID)
	}
	return &r, nil
}

func (s *PostgresStore) InsertPrice(ctx context.Context, rec model.PriceRecord) (*model.PriceRecord, error) {
	err := s.pool.QueryRow(ctx,
		`INSERT INTO price_records (product_id, chain_id, price_bgn, price_eur, valid_from, valid_to, discount)
		 VALUES ($1, $2, $3, $4, $5, $6, $7) RETURNING id`,
		rec.ProductID, rec.ChainID, rec.PriceBGN, rec.PriceEUR, rec.ValidFrom, rec.ValidTo, rec.Discount,
	).Scan(&rec.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert price for product %d", rec.ProductID)
	}
	return &rec, nil
}

func (s *PostgresStore) ClosePrice(ctx context.Context, id int64, validTo time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE price_records SET valid_to = $1 WHERE id = $2`,
		validTo, id,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: close price %d", id)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) ListValidPrices(ctx context.Context, productIDs []int64, at time.Time) ([]model.PriceRecord, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, chain_id, price_bgn, price_eur, valid_from, valid_to, discount
		 FROM price_records
		 WHERE product_id = ANY($1) AND valid_from <= $2 AND (valid_to IS NULL OR valid_to >= $2)
		 ORDER BY product_id, chain_id, discount`,
		productIDs, at,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list valid prices")
	}
	defer rows.Close()

	return scanPriceRows(rows)
}

func (s *PostgresStore) ListPriceHistory(ctx context.Context, productID, chainID int64) ([]model.PriceRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, product_id, chain_id, price_bgn, price_eur, valid_from, valid_to, discount
		 FROM price_records
		 WHERE product_id = $1 AND chain_id = $2
		 ORDER BY valid_from, id`,
		productID, chainID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list price history")
	}
	defer rows.Close()

	return scanPriceRows(rows)
}

func scanPriceRows(rows pgx.Rows) ([]model.PriceRecord, error) {
	var records []model.PriceRecord
	for rows.Next() {
		var r model.PriceRecord
		if err := rows.Scan(&r.ID, &r.ProductID, &r.ChainID, &r.PriceBGN, &r.PriceEUR, &r.ValidFrom, &r.ValidTo, &r.Discount); err != nil {
			return nil, eris.Wrap(err, "postgres: scan price record")
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: price rows iterate")
}

func (s *PostgresStore) GetCart(ctx context.Context, cartID int64) (*model.Cart, error) {
	var cart model.Cart
	err := s.pool.QueryRow(ctx,
		`SELECT id, user_id FROM carts WHERE id = $1`,
		cartID,
	).Scan(&cart.ID, &cart.UserID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "postgres: get cart %d", cartID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity,
		        p.id, p.public_id, p.name, p.brand, p.category_id
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = $1
		 ORDER BY ci.id`,
		cartID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get cart items %d", cartID)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.CartItem
		var p model.Product
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity,
			&p.ID, &p.PublicID, &p.Name, &p.Brand, &p.CategoryID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cart item")
		}
		item.Product = &p
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "postgres: cart items iterate")
	}
	return &cart, nil
}
