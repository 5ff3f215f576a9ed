package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "modernc.org/sqlite"

	"github.com/marche-app/marche/internal/catalog"
	"github.com/marche-app/marche/internal/topproducts"
)

// dialect captures the differences between the database/sql backends.
type dialect struct {
	name    string
	schema  []string
	upsert  func(table string, cols []string) string
	timeArg func(time.Time) any
}

var sqliteDialect = dialect{
	name: DriverSQLite,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id TEXT PRIMARY KEY, name TEXT NOT NULL, slug TEXT NOT NULL DEFAULT '', description TEXT NOT NULL DEFAULT '',
			image TEXT NOT NULL DEFAULT '', parent_id TEXT NOT NULL DEFAULT '', created_at TEXT NOT NULL, updated_at TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS brands (id TEXT PRIMARY KEY, name TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS products (
			id TEXT PRIMARY KEY, name TEXT NOT NULL, title TEXT NOT NULL DEFAULT '', sku TEXT NOT NULL DEFAULT '',
			description TEXT NOT NULL DEFAULT '', price REAL NOT NULL DEFAULT 0, original_price REAL NOT NULL DEFAULT 0,
			stock INTEGER NOT NULL DEFAULT 0, rating REAL NOT NULL DEFAULT 0, category_id TEXT NOT NULL DEFAULT '',
			brand_id TEXT NOT NULL DEFAULT '', vendor_id TEXT NOT NULL DEFAULT '', images TEXT NOT NULL DEFAULT '[]',
			created_at TEXT NOT NULL, updated_at TEXT NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS users (id TEXT PRIMARY KEY, name TEXT NOT NULL DEFAULT '', email TEXT NOT NULL DEFAULT '', business_name TEXT)`,
		`CREATE TABLE IF NOT EXISTS orders (id TEXT PRIMARY KEY, user_id TEXT NOT NULL DEFAULT '', items TEXT, total REAL NOT NULL DEFAULT 0, created_at TEXT NOT NULL)`,
		`CREATE INDEX IF NOT EXISTS idx_orders_created_at ON orders(created_at)`,
	},
	upsert: func(table string, cols []string) string {
		sets := make([]string, 0, len(cols)-1)
		for _, col := range cols[1:] {
			if col == "created_at" {
				continue
			}
			sets = append(sets, col+" = excluded."+col)
		}
		return insertPrefix(table, cols) + " ON CONFLICT(" + cols[0] + ") DO UPDATE SET " + strings.Join(sets, ", ")
	},
	timeArg: func(t time.Time) any { return textTime(t) },
}

var mysqlDialect = dialect{
	name: DriverMySQL,
	schema: []string{
		`CREATE TABLE IF NOT EXISTS categories (
			id VARCHAR(64) PRIMARY KEY, name VARCHAR(255) NOT NULL, slug VARCHAR(255) NOT NULL DEFAULT '', description TEXT,
			image VARCHAR(1024) NOT NULL DEFAULT '', parent_id VARCHAR(64) NOT NULL DEFAULT '',
			created_at DATETIME(6) NOT NULL, updated_at DATETIME(6) NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS brands (id VARCHAR(64) PRIMARY KEY, name VARCHAR(255) NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS products (
			id VARCHAR(64) PRIMARY KEY, name VARCHAR(255) NOT NULL, title VARCHAR(255) NOT NULL DEFAULT '',
			sku VARCHAR(128) NOT NULL DEFAULT '', description TEXT, price DOUBLE NOT NULL DEFAULT 0,
			original_price DOUBLE NOT NULL DEFAULT 0, stock BIGINT NOT NULL DEFAULT 0, rating DOUBLE NOT NULL DEFAULT 0,
			category_id VARCHAR(64) NOT NULL DEFAULT '', brand_id VARCHAR(64) NOT NULL DEFAULT '',
			vendor_id VARCHAR(64) NOT NULL DEFAULT '', images TEXT,
			created_at DATETIME(6) NOT NULL, updated_at DATETIME(6) NOT NULL)`,
		`CREATE TABLE IF NOT EXISTS users (id VARCHAR(64) PRIMARY KEY, name VARCHAR(255) NOT NULL DEFAULT '',
			email VARCHAR(255) NOT NULL DEFAULT '', business_name VARCHAR(255) NULL)`,
		`CREATE TABLE IF NOT EXISTS orders (id VARCHAR(64) PRIMARY KEY, user_id VARCHAR(64) NOT NULL DEFAULT '', items LONGTEXT,
			total DOUBLE NOT NULL DEFAULT 0, created_at DATETIME(6) NOT NULL, INDEX idx_orders_created_at (created_at))`,
	},
	upsert: func(table string, cols []string) string {
		sets := make([]string, 0, len(cols)-1)
		for _, col := range cols[1:] {
			if col == "created_at" {
				continue
			}
			sets = append(sets, col+" = VALUES("+col+")")
		}
		return insertPrefix(table, cols) + " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
	},
	timeArg: func(t time.Time) any { return t.UTC() },
}

func insertPrefix(table string, cols []string) string {
	marks := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	return "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" + marks + ")"
}

// SQL is the database/sql store used for SQLite and MySQL.
type SQL struct {
	db *sql.DB
	d  dialect
}

// OpenSQLite opens (or creates) the database at path. An empty path or
// ":memory:" opens a private in-memory database.
func OpenSQLite(ctx context.Context, path string) (*SQL, error) {
	dsn := ":memory:"
	if path != "" && path != ":memory:" {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)"
	}
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}
	// one writer, and an in-memory database lives on a single connection
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)
	return openSQL(ctx, conn, sqliteDialect)
}

// OpenMySQL connects to a MySQL server using a go-sql-driver DSN.
func OpenMySQL(ctx context.Context, dsn string) (*SQL, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: parse mysql dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.Loc = time.UTC
	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("store: mysql connector: %w", err)
	}
	conn := sql.OpenDB(connector)
	conn.SetMaxOpenConns(10)
	conn.SetConnMaxLifetime(5 * time.Minute)
	return openSQL(ctx, conn, mysqlDialect)
}

func openSQL(ctx context.Context, conn *sql.DB, d dialect) (*SQL, error) {
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("store: ping %s: %w", d.name, err)
	}
	for _, stmt := range d.schema {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("store: %s schema: %w", d.name, err)
		}
	}
	return &SQL{db: conn, d: d}, nil
}

func (s *SQL) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQL) Close() error {
	return s.db.Close()
}

func (s *SQL) Products(ctx context.Context) ([]catalog.Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, title, sku, COALESCE(description, ''), price, original_price, stock, rating,
		category_id, brand_id, vendor_id, COALESCE(images, '[]'), created_at, updated_at FROM products ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list products: %w", err)
	}
	defer rows.Close()

	var out []catalog.Product
	for rows.Next() {
		var p catalog.Product
		var images string
		var created, updated sqlTime
		if err := rows.Scan(&p.ID, &p.Name, &p.Title, &p.SKU, &p.Description, &p.Price, &p.OriginalPrice, &p.Stock, &p.Rating,
			&p.CategoryID, &p.BrandID, &p.VendorID, &images, &created, &updated); err != nil {
			return nil, fmt.Errorf("store: scan product: %w", err)
		}
		if err := decodeImages([]byte(images), &p); err != nil {
			return nil, err
		}
		p.CreatedAt, p.UpdatedAt = created.Time, updated.Time
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *SQL) Categories(ctx context.Context) ([]catalog.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, slug, COALESCE(description, ''), image, parent_id, created_at, updated_at
		FROM categories ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list categories: %w", err)
	}
	defer rows.Close()

	var out []catalog.Category
	for rows.Next() {
		var c catalog.Category
		var created, updated sqlTime
		if err := rows.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &c.Image, &c.ParentID, &created, &updated); err != nil {
			return nil, fmt.Errorf("store: scan category: %w", err)
		}
		c.CreatedAt, c.UpdatedAt = created.Time, updated.Time
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQL) Brands(ctx context.Context) ([]catalog.Brand, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM brands ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list brands: %w", err)
	}
	defer rows.Close()

	var out []catalog.Brand
	for rows.Next() {
		var b catalog.Brand
		if err := rows.Scan(&b.ID, &b.Name); err != nil {
			return nil, fmt.Errorf("store: scan brand: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *SQL) Orders(ctx context.Context) ([]topproducts.Order, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, user_id, items, total, created_at FROM orders ORDER BY created_at, id`)
	if err != nil {
		return nil, fmt.Errorf("store: list orders: %w", err)
	}
	defer rows.Close()

	var out []topproducts.Order
	for rows.Next() {
		var o topproducts.Order
		var items sql.NullString
		var created sqlTime
		if err := rows.Scan(&o.ID, &o.UserID, &items, &o.Total, &created); err != nil {
			return nil, fmt.Errorf("store: scan order: %w", err)
		}
		if items.Valid {
			o.Items = json.RawMessage(items.String)
		}
		o.CreatedAt = created.Time
		out = append(out, o)
	}
	return out, rows.Err()
}

func (s *SQL) Users(ctx context.Context) ([]topproducts.User, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, email, business_name FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	defer rows.Close()

	var out []topproducts.User
	for rows.Next() {
		var u topproducts.User
		var business sql.NullString
		if err := rows.Scan(&u.ID, &u.Name, &u.Email, &business); err != nil {
			return nil, fmt.Errorf("store: scan user: %w", err)
		}
		if business.Valid {
			u.MerchantProfile = merchantProfile(&business.String)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (s *SQL) UpsertCategory(ctx context.Context, c catalog.Category) error {
	created, updated := timestamps(c.CreatedAt, c.UpdatedAt)
	query := s.d.upsert("categories", []string{"id", "name", "slug", "description", "image", "parent_id", "created_at", "updated_at"})
	if _, err := s.db.ExecContext(ctx, query, c.ID, c.Name, c.Slug, c.Description, c.Image, c.ParentID,
		s.d.timeArg(created), s.d.timeArg(updated)); err != nil {
		return fmt.Errorf("store: upsert category %s: %w", c.ID, err)
	}
	return nil
}

func (s *SQL) UpsertBrand(ctx context.Context, b catalog.Brand) error {
	query := s.d.upsert("brands", []string{"id", "name"})
	if _, err := s.db.ExecContext(ctx, query, b.ID, b.Name); err != nil {
		return fmt.Errorf("store: upsert brand %s: %w", b.ID, err)
	}
	return nil
}

func (s *SQL) UpsertProduct(ctx context.Context, p catalog.Product) error {
	images, err := encodeImages(p.Images)
	if err != nil {
		return err
	}
	created, updated := timestamps(p.CreatedAt, p.UpdatedAt)
	query := s.d.upsert("products", []string{"id", "name", "title", "sku", "description", "price", "original_price", "stock",
		"rating", "category_id", "brand_id", "vendor_id", "images", "created_at", "updated_at"})
	if _, err := s.db.ExecContext(ctx, query, p.ID, p.Name, p.Title, p.SKU, p.Description, p.Price, p.OriginalPrice, p.Stock,
		p.Rating, p.CategoryID, p.BrandID, p.VendorID, string(images), s.d.timeArg(created), s.d.timeArg(updated)); err != nil {
		return fmt.Errorf("store: upsert product %s: %w", p.ID, err)
	}
	return nil
}

func (s *SQL) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete product %s: %w", id, err)
	}
	return nil
}

func (s *SQL) DeleteCategory(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM categories WHERE id = ?`, id); err != nil {
		return fmt.Errorf("store: delete category %s: %w", id, err)
	}
	return nil
}

func (s *SQL) UpsertUser(ctx context.Context, u topproducts.User) error {
	query := s.d.upsert("users", []string{"id", "name", "email", "business_name"})
	if _, err := s.db.ExecContext(ctx, query, u.ID, u.Name, u.Email, businessName(u)); err != nil {
		return fmt.Errorf("store: upsert user %s: %w", u.ID, err)
	}
	return nil
}

func (s *SQL) InsertOrder(ctx context.Context, o topproducts.Order) error {
	created, _ := timestamps(o.CreatedAt, o.CreatedAt)
	var items any
	if raw := orderItems(o.Items); raw != nil {
		items = string(raw)
	}
	if _, err := s.db.ExecContext(ctx, `INSERT INTO orders (id, user_id, items, total, created_at) VALUES (?, ?, ?, ?, ?)`,
		o.ID, o.UserID, items, o.Total, s.d.timeArg(created)); err != nil {
		return fmt.Errorf("store: insert order %s: %w", o.ID, err)
	}
	return nil
}
