package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/marche-app/marche/internal/store"
)

// SeedOptions defines the flags of the seed command.
type SeedOptions struct {
	Path   string
	Stdout io.Writer
	Stderr io.Writer
}

// SeedCommand loads a fixture file into w and returns the exit code.
func SeedCommand(ctx context.Context, w store.Writer, opts SeedOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.Path == "" {
		_, _ = fmt.Fprintln(opts.Stderr, "seed: -file is required")
		return 2
	}
	fx, err := store.LoadFixture(opts.Path)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "seed: %v\n", err)
		return 1
	}
	if err := store.Seed(ctx, w, fx); err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "seed: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(opts.Stdout, "seeded %d categories, %d brands, %d products, %d users, %d orders\n",
		len(fx.Categories), len(fx.Brands), len(fx.Products), len(fx.Users), len(fx.Orders))
	return 0
}
