package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/AtanasChobanov/PromoMania-sub001/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It exists for local
// development and the schedule loop on a laptop; production runs Postgres.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS chains (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	public_id   TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL UNIQUE,
	catalog_url TEXT NOT NULL DEFAULT ''
);

CREATE TABLE IF NOT EXISTS categories (
	id   INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS products (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	public_id   TEXT NOT NULL UNIQUE,
	name        TEXT NOT NULL,
	brand       TEXT NOT NULL DEFAULT '',
	category_id INTEGER NOT NULL REFERENCES categories(id),
	barcode     TEXT,
	image_url   TEXT,
	unit        TEXT,
	UNIQUE (name, brand, category_id)
);

CREATE TABLE IF NOT EXISTS price_records (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	product_id INTEGER NOT NULL REFERENCES products(id),
	chain_id   INTEGER NOT NULL REFERENCES chains(id),
	price_bgn  REAL NOT NULL,
	price_eur  REAL NOT NULL,
	valid_from DATETIME NOT NULL,
	valid_to   DATETIME,
	discount   INTEGER NOT NULL DEFAULT 0
);

CREATE UNIQUE INDEX IF NOT EXISTS uniq_open_regular
	ON price_records(product_id, chain_id)
	WHERE discount = 0 AND valid_to IS NULL;

CREATE INDEX IF NOT EXISTS idx_price_records_product_chain ON price_records(product_id, chain_id);

CREATE TABLE IF NOT EXISTS carts (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS cart_items (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	cart_id    INTEGER NOT NULL REFERENCES carts(id),
	product_id INTEGER NOT NULL REFERENCES products(id),
	quantity   INTEGER NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_cart_items_cart_id ON cart_items(cart_id);
`

func (s *SQLiteStore) Ping(ctx context.Context) error {
	return eris.Wrap(s.db.PingContext(ctx), "sqlite: ping")
}

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateChain(ctx context.Context, chain model.StoreChain) (*model.StoreChain, error) {
	chain.PublicID = uuid.New().String()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chains (public_id, name, catalog_url) VALUES (?, ?, ?)`,
		chain.PublicID, chain.Name, chain.CatalogURL,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert chain %s", chain.Name)
	}
	chain.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: chain last insert id")
	}
	return &chain, nil
}

func (s *SQLiteStore) GetChainByName(ctx context.Context, name string) (*model.StoreChain, error) {
	var c model.StoreChain
	err := s.db.QueryRowContext(ctx,
		`SELECT id, public_id, name, catalog_url FROM chains WHERE name = ?`,
		name,
	).Scan(&c.ID, &c.PublicID, &c.Name, &c.CatalogURL)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get chain %s", name)
	}
	return &c, nil
}

func (s *SQLiteStore) ListChains(ctx context.Context) ([]model.StoreChain, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, public_id, name, catalog_url FROM chains ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list chains")
	}
	defer rows.Close()

	var chains []model.StoreChain
	for rows.Next() {
		var c model.StoreChain
		if err := rows.Scan(&c.ID, &c.PublicID, &c.Name, &c.CatalogURL); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan chain")
		}
		chains = append(chains, c)
	}
	return chains, eris.Wrap(rows.Err(), "sqlite: list chains iterate")
}

func (s *SQLiteStore) SeedChains(ctx context.Context, chains []model.StoreChain) (int64, error) {
	var n int64
	for _, c := range chains {
		if _, err := s.CreateChain(ctx, c); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func (s *SQLiteStore) GetCategoryByName(ctx context.Context, name string) (*model.Category, error) {
	var c model.Category
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name FROM categories WHERE name = ?`,
		name,
	).Scan(&c.ID, &c.Name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get category %s", name)
	}
	return &c, nil
}

func (s *SQLiteStore) CreateCategory(ctx context.Context, name string) (*model.Category, error) {
	c := model.Category{Name: name}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO categories (name) VALUES (?)
		 ON CONFLICT (name) DO UPDATE SET name = excluded.name
		 RETURNING id`,
		name,
	).Scan(&c.ID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert category %s", name)
	}
	return &c, nil
}

func (s *SQLiteStore) ListCategories(ctx context.Context) ([]model.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM categories ORDER BY name`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list categories")
	}
	defer rows.Close()

	var cats []model.Category
	for rows.Next() {
		var c model.Category
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan category")
		}
		cats = append(cats, c)
	}
	return cats, eris.Wrap(rows.Err(), "sqlite: list categories iterate")
}

func (s *SQLiteStore) GetProduct(ctx context.Context, name, brand string, categoryID int64) (*model.Product, error) {
	var p model.Product
	var barcode, imageURL, unit sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT id, public_id, name, brand, category_id, barcode, image_url, unit
		 FROM products WHERE name = ? AND brand = ? AND category_id = ?`,
		name, brand, categoryID,
	).Scan(&p.ID, &p.PublicID, &p.Name, &p.Brand, &p.CategoryID, &barcode, &imageURL, &unit)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get product %s", name)
	}
	p.Barcode = barcode.String
	p.ImageURL = imageURL.String
	p.Unit = unit.String
	return &p, nil
}

func (s *SQLiteStore) CreateProduct(ctx context.Context, p model.Product) (*model.Product, error) {
	p.PublicID = uuid.New().String()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO products (public_id, name, brand, category_id, barcode, image_url, unit)
		 VALUES (?, ?, ?, ?, NULLIF(?, ''), NULLIF(?, ''), NULLIF(?, ''))`,
		p.PublicID, p.Name, p.Brand, p.CategoryID, p.Barcode, p.ImageURL, p.Unit,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert product %s", p.Name)
	}
	p.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: product last insert id")
	}
	return &p, nil
}

func (s *SQLiteStore) GetOpenRegularPrice(ctx context.Context, productID, chainID int64) (*model.PriceRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, product_id, chain_id, price_bgn, price_eur, valid_from, valid_to, discount
		 FROM price_records
		 WHERE product_id = ? AND chain_id = ? AND discount = 0 AND valid_to IS NULL`,
		productID, chainID,
	)
	rec, err := scanPriceRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get open regular price for product %d", productID)
	}
	return rec, nil
}

func (s *SQLiteStore) FindPromoPrice(ctx context.Context, rec model.PriceRecord) (*model.PriceRecord, error) {
	query := `SELECT id, product_id, chain_id, price_bgn, price_eur, valid_from, valid_to, discount
	          FROM price_records
	          WHERE product_id = ? AND chain_id = ? AND price_bgn = ? AND price_eur = ? AND discount = ?`
	args := []any{rec.ProductID, rec.ChainID, rec.PriceBGN, rec.PriceEUR, rec.Discount}
	if rec.ValidTo == nil {
		query += ` AND valid_to IS NULL`
	} else {
		query += ` AND valid_to = ?`
		args = append(args, *rec.ValidTo)
	}

	row := s.db.QueryRowContext(ctx, query, args...)
	found, err := scanPriceRow(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: find promo price for product %d", rec.ProductID)
	}
	return found, nil
}

func (s *SQLiteStore) InsertPrice(ctx context.Context, rec model.PriceRecord) (*model.PriceRecord, error) {
	var validTo any
	if rec.ValidTo != nil {
		validTo = *rec.ValidTo
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO price_records (product_id, chain_id, price_bgn, price_eur, valid_from, valid_to, discount)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.ProductID, rec.ChainID, rec.PriceBGN, rec.PriceEUR, rec.ValidFrom, validTo, rec.Discount,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert price for product %d", rec.ProductID)
	}
	rec.ID, err = res.LastInsertId()
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: price last insert id")
	}
	return &rec, nil
}

func (s *SQLiteStore) ClosePrice(ctx context.Context, id int64, validTo time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE price_records SET valid_to = ? WHERE id = ?`,
		validTo, id,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: close price %d", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: close price rows affected")
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) ListValidPrices(ctx context.Context, productIDs []int64, at time.Time) ([]model.PriceRecord, error) {
	if len(productIDs) == 0 {
		return nil, nil
	}

	query := `SELECT id, product_id, chain_id, price_bgn, price_eur, valid_from, valid_to, discount
	          FROM price_records
	          WHERE valid_from <= ? AND (valid_to IS NULL OR valid_to >= ?) AND product_id IN (`
	args := []any{at, at}
	for i, id := range productIDs {
		if i > 0 {
			query += ","
		}
		query += "?"
		args = append(args, id)
	}
	query += `) ORDER BY product_id, chain_id, discount`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list valid prices")
	}
	defer rows.Close()

	var records []model.PriceRecord
	for rows.Next() {
		rec, err := scanPriceRow(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price record")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: valid prices iterate")
}

func (s *SQLiteStore) ListPriceHistory(ctx context.Context, productID, chainID int64) ([]model.PriceRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, product_id, chain_id, price_bgn, price_eur, valid_from, valid_to, discount
		 FROM price_records
		 WHERE product_id = ? AND chain_id = ?
		 ORDER BY valid_from, id`,
		productID, chainID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list price history")
	}
	defer rows.Close()

	var records []model.PriceRecord
	for rows.Next() {
		rec, err := scanPriceRow(rows.Scan)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan price record")
		}
		records = append(records, *rec)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: price history iterate")
}

// scanPriceRow scans a price record from either a *sql.Row or *sql.Rows scan
// function, mapping the nullable valid_to.
func scanPriceRow(scan func(dest ...any) error) (*model.PriceRecord, error) {
	var r model.PriceRecord
	var validTo sql.NullTime
	if err := scan(&r.ID, &r.ProductID, &r.ChainID, &r.PriceBGN, &r.PriceEUR, &r.ValidFrom, &validTo, &r.Discount); err != nil {
		return nil, err
	}
	if validTo.Valid {
		t := validTo.Time
		r.ValidTo = &t
	}
	return &r, nil
}

func (s *SQLiteStore) GetCart(ctx context.Context, cartID int64) (*model.Cart, error) {
	var cart model.Cart
	err := s.db.QueryRowContext(ctx,
		`SELECT id, user_id FROM carts WHERE id = ?`,
		cartID,
	).Scan(&cart.ID, &cart.UserID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, eris.Wrapf(err, "sqlite: get cart %d", cartID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT ci.id, ci.cart_id, ci.product_id, ci.quantity,
		        p.id, p.public_id, p.name, p.brand, p.category_id
		 FROM cart_items ci
		 JOIN products p ON p.id = ci.product_id
		 WHERE ci.cart_id = ?
		 ORDER BY ci.id`,
		cartID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get cart items %d", cartID)
	}
	defer rows.Close()

	for rows.Next() {
		var item model.CartItem
		var p model.Product
		if err := rows.Scan(&item.ID, &item.CartID, &item.ProductID, &item.Quantity,
			&p.ID, &p.PublicID, &p.Name, &p.Brand, &p.CategoryID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan cart item")
		}
		item.Product = &p
		cart.Items = append(cart.Items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, eris.Wrap(err, "sqlite: cart items iterate")
	}
	return &cart, nil
}
