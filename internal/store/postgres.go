package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/marche-app/marche/internal/catalog"
	"github.com/marche-app/marche/internal/platform/db"
	"github.com/marche-app/marche/internal/topproducts"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS categories (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	slug TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	image TEXT NOT NULL DEFAULT '',
	parent_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS brands (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	sku TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	price NUMERIC(12,2) NOT NULL DEFAULT 0,
	original_price NUMERIC(12,2) NOT NULL DEFAULT 0,
	stock BIGINT NOT NULL DEFAULT 0,
	rating DOUBLE PRECISION NOT NULL DEFAULT 0,
	category_id TEXT NOT NULL DEFAULT '',
	brand_id TEXT NOT NULL DEFAULT '',
	vendor_id TEXT NOT NULL DEFAULT '',
	images JSONB NOT NULL DEFAULT '[]',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS users (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL DEFAULT '',
	email TEXT NOT NULL DEFAULT '',
	business_name TEXT
);
CREATE TABLE IF NOT EXISTS orders (
	id TEXT PRIMARY KEY,
	user_id TEXT NOT NULL DEFAULT '',
	items JSONB,
	total NUMERIC(12,2) NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at);
`

// Postgres is the pgx-backed store.
type Postgres struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to dsn and ensures the schema.
func OpenPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	pool, err := db.New(ctx, dsn, db.PoolOptions{MaxConns: 10, ApplicationName: "marche"})
	if err != nil {
		return nil, err
	}
	s := NewPostgres(pool)
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: postgres schema: %w", err)
	}
	return s, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

func (s *Postgres) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Postgres) Close() error {
	s.pool.Close()
	return nil
}

func (s *Postgres) Products(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, title, sku, description, price::float8, original_price::float8, stock, rating,
		category_id, brand_id, vendor_id, images, created_at, updated_at FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list products: %w", err)
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		var p catalog.Product
		var images []byte
		if err := rows.Scan(&p.ID, &p.Name, &p.Title, &p.SKU, &p.Description, &p.Price, &p.OriginalPrice, &p.Stock, &p.Rating,
			&p.CategoryID, &p.BrandID, &p.VendorID, &images, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("store: scan product: %w", err)
		}
		if err := decodeImages(images, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Postgres) Categories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, slug, description, image, parent_id, created_at, updated_at FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list categories: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Category, error) {
		var c catalog.Category
		err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.Image, &c.ParentID, &c.CreatedAt, &c.UpdatedAt)
		return c, err
	})
}

func (s *Postgres) Brands(ctx context.Context) ([]catalog.Brand, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name FROM brands ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list brands: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (catalog.Brand, error) {
		var b catalog.Brand
		err := row.Scan(&b.ID, &b.Name)
		return b, err
	})
}

func (s *Postgres) Orders(ctx context.Context) ([]topproducts.Order, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, user_id, items, total::float8, created_at FROM orders ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (topproducts.Order, error) {
		var o topproducts.Order
		var items []byte
		err := row.Scan(&o.ID, &o.UserID, &items, &o.Total, &o.CreatedAt)
		o.Items = json.RawMessage(items)
		return o, err
	})
}

func (s *Postgres) Users(ctx context.Context) ([]topproducts.User, error) {
	rows, err := s.pool.Query(ctx, `SELECT id, name, email, business_name FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (topproducts.User, error) {
		var u topproducts.User
		var business *string
		err := row.Scan(&u.ID, &u.Name, &u.Email, &business)
		u.MerchantProfile = merchantProfile(business)
		return u, err
	})
}

func (s *Postgres) UpsertCategory(ctx context.Context, c catalog.Category) error {
	created, updated := timestamps(c.CreatedAt, c.UpdatedAt)
	_, err := s.pool.Exec(ctx, `INSERT INTO categories (id, name, slug, description, image, parent_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, slug = EXCLUDED.slug, description = EXCLUDED.description,
			image = EXCLUDED.image, parent_id = EXCLUDED.parent_id, updated_at = EXCLUDED.updated_at`,
		c.ID, c.Name, c.Slug, c.Description, c.Image, c.ParentID, created, updated)
	if err != nil {
		return fmt.Errorf("store: upsert category %s: %w", c.ID, err)
	}
	return nil
}

func (s *Postgres) UpsertBrand(ctx context.Context, b catalog.Brand) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO brands (id, name) VALUES ($1, $2)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name`, b.ID, b.Name)
	if err != nil {
		return fmt.Errorf("store: upsert brand %s: %w", b.ID, err)
	}
	return nil
}

func (s *Postgres) UpsertProduct(ctx context.Context, p catalog.Product) error {
	images, err := encodeImages(p.Images)
	if err != nil {
		return err
	}
	created, updated := timestamps(p.CreatedAt, p.UpdatedAt)
	_, err = s.pool.Exec(ctx, `INSERT INTO products (id, name, title, sku, description, price, original_price, stock, rating,
			category_id, brand_id, vendor_id, images, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, title = EXCLUDED.title, sku = EXCLUDED.sku,
			description = EXCLUDED.description, price = EXCLUDED.price, original_price = EXCLUDED.original_price,
			stock = EXCLUDED.stock, rating = EXCLUDED.rating, category_id = EXCLUDED.category_id,
			brand_id = EXCLUDED.brand_id, vendor_id = EXCLUDED.vendor_id, images = EXCLUDED.images,
			updated_at = EXCLUDED.updated_at`,
		p.ID, p.Name, p.Title, p.SKU, p.Description, p.Price, p.OriginalPrice, p.Stock, p.Rating,
		p.CategoryID, p.BrandID, p.VendorID, images, created, updated)
	if err != nil {
		return fmt.Errorf("store: upsert product %s: %w", p.ID, err)
	}
	return nil
}

func (s *Postgres) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM products WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete product %s: %w", id, err)
	}
	return nil
}

func (s *Postgres) DeleteCategory(ctx context.Context, id string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM categories WHERE id = $1`, id); err != nil {
		return fmt.Errorf("store: delete category %s: %w", id, err)
	}
	return nil
}

func (s *Postgres) UpsertUser(ctx context.Context, u topproducts.User) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO users (id, name, email, business_name) VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, email = EXCLUDED.email, business_name = EXCLUDED.business_name`,
		u.ID, u.Name, u.Email, businessName(u))
	if err != nil {
		return fmt.Errorf("store: upsert user %s: %w", u.ID, err)
	}
	return nil
}

func (s *Postgres) InsertOrder(ctx context.Context, o topproducts.Order) error {
	created, _ := timestamps(o.CreatedAt, o.CreatedAt)
	return db.WithTx(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO orders (id, user_id, items, total, created_at) VALUES ($1, $2, $3, $4, $5)`,
			o.ID, o.UserID, orderItems(o.Items), o.Total, created)
		if err != nil {
			return fmt.Errorf("store: insert order %s: %w", o.ID, err)
		}
		return nil
	})
}
