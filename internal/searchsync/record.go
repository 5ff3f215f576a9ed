package searchsync

import (
	"context"
	"fmt"

	"github.com/marche-app/marche/internal/catalog"
)

// CatalogWriter persists catalog changes.
type CatalogWriter interface {
	UpsertProduct(ctx context.Context, p catalog.Product) error
	DeleteProduct(ctx context.Context, id string) error
	UpsertCategory(ctx context.Context, c catalog.Category) error
	DeleteCategory(ctx context.Context, id string) error
}

// RecordFunc stores an accepted event before it is handed to the notifier.
type RecordFunc func(ctx context.Context, ev Event) error

// WriterRecorder records events into w.
func WriterRecorder(w CatalogWriter) RecordFunc {
	return func(ctx context.Context, ev Event) error {
		if err := ev.Validate(); err != nil {
			return err
		}
		var err error
		switch {
		case ev.Entity == EntityProduct && ev.Action == ActionDelete:
			err = w.DeleteProduct(ctx, ev.TargetID())
		case ev.Entity == EntityProduct:
			err = w.UpsertProduct(ctx, *ev.Product)
		case ev.Action == ActionDelete:
			err = w.DeleteCategory(ctx, ev.TargetID())
		default:
			err = w.UpsertCategory(ctx, *ev.Category)
		}
		if err != nil {
			return fmt.Errorf("searchsync: record %s %s %s: %w", ev.Entity, ev.Action, ev.TargetID(), err)
		}
		return nil
	}
}
