package topproducts

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/marche-app/marche/internal/catalog"
)

// Dataset provides the collections the ranking is computed from.
type Dataset interface {
	Orders(ctx context.Context) ([]Order, error)
	Products(ctx context.Context) ([]catalog.Product, error)
	Users(ctx context.Context) ([]User, error)
}

// Service loads the dataset and ranks it.
type Service struct {
	data         Dataset
	calc         *Calculator
	defaultLimit int
}

// NewService constructs the service. A nil calculator uses a fresh one.
func NewService(data Dataset, calc *Calculator, defaultLimit int) *Service {
	if calc == nil {
		calc = NewCalculator()
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	return &Service{data: data, calc: calc, defaultLimit: defaultLimit}
}

// TopProducts returns the best selling products.
func (s *Service) TopProducts(ctx context.Context, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = s.defaultLimit
	}
	var (
		orders   []Order
		products []catalog.Product
		users    []User
	)
	group, gctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		var err error
		orders, err = s.data.Orders(gctx)
		if err != nil {
			return fmt.Errorf("topproducts: load orders: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		products, err = s.data.Products(gctx)
		if err != nil {
			return fmt.Errorf("topproducts: load products: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		var err error
		users, err = s.data.Users(gctx)
		if err != nil {
			return fmt.Errorf("topproducts: load users: %w", err)
		}
		return nil
	})
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return s.calc.Calculate(orders, products, users, limit), nil
}

// ClearCache drops memoised rankings.
func (s *Service) ClearCache() {
	s.calc.ClearCache()
}

// CacheStats reports memoised rankings.
func (s *Service) CacheStats() CacheStats {
	return s.calc.CacheStats()
}
