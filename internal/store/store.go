// Package store persists the marketplace catalog, users and orders and serves
// them to search sync and reporting. Postgres, MySQL and SQLite backends are
// selected by driver name.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/marche-app/marche/internal/catalog"
	"github.com/marche-app/marche/internal/topproducts"
)

// Drivers understood by Open.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverSQLite   = "sqlite"
)

// ErrUnknownDriver is returned for an unsupported driver name.
var ErrUnknownDriver = errors.New("store: unknown driver")

// Writer upserts catalog and sales records.
type Writer interface {
	UpsertCategory(ctx context.Context, c catalog.Category) error
	UpsertBrand(ctx context.Context, b catalog.Brand) error
	UpsertProduct(ctx context.Context, p catalog.Product) error
	DeleteProduct(ctx context.Context, id string) error
	DeleteCategory(ctx context.Context, id string) error
	UpsertUser(ctx context.Context, u topproducts.User) error
	InsertOrder(ctx context.Context, o topproducts.Order) error
}

// Store is implemented by every backend.
type Store interface {
	catalog.Source
	topproducts.Dataset
	Writer
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and addresses a backend.
type Config struct {
	Driver      string
	PostgresDSN string
	MySQLDSN    string
	SQLitePath  string
}

// Open connects to the configured backend and ensures its schema exists.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case DriverPostgres:
		return OpenPostgres(ctx, cfg.PostgresDSN)
	case DriverMySQL:
		return OpenMySQL(ctx, cfg.MySQLDSN)
	case DriverSQLite, "":
		return OpenSQLite(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
	}
}
