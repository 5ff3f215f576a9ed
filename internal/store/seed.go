package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/marche-app/marche/internal/catalog"
	"github.com/marche-app/marche/internal/topproducts"
)

// Fixture is a JSON document of records to load into a store.
type Fixture struct {
	Categories []catalog.Category  `json:"categories"`
	Brands     []catalog.Brand     `json:"brands"`
	Products   []catalog.Product   `json:"products"`
	Users      []topproducts.User  `json:"users"`
	Orders     []topproducts.Order `json:"orders"`
}

// LoadFixture reads a fixture file.
func LoadFixture(path string) (Fixture, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Fixture{}, fmt.Errorf("store: read fixture: %w", err)
	}
	var fx Fixture
	if err := json.Unmarshal(raw, &fx); err != nil {
		return Fixture{}, fmt.Errorf("store: decode fixture: %w", err)
	}
	return fx, nil
}

// Seed writes every record of fx. Records are upserted so seeding twice is
// harmless, except for orders which must be new.
func Seed(ctx context.Context, w Writer, fx Fixture) error {
	for _, c := range fx.Categories {
		if err := w.UpsertCategory(ctx, c); err != nil {
			return err
		}
	}
	for _, b := range fx.Brands {
		if err := w.UpsertBrand(ctx, b); err != nil {
			return err
		}
	}
	for _, p := range fx.Products {
		if err := w.UpsertProduct(ctx, p); err != nil {
			return err
		}
	}
	for _, u := range fx.Users {
		if err := w.UpsertUser(ctx, u); err != nil {
			return err
		}
	}
	for _, o := range fx.Orders {
		if err := w.InsertOrder(ctx, o); err != nil {
			return err
		}
	}
	return nil
}
