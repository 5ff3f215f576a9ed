package catalog

import (
	"context"
	"sort"
	"sync"
)

// MemorySource is an in-process Source used for seeding and tests.
type MemorySource struct {
	mu         sync.RWMutex
	products   map[string]Product
	categories map[string]Category
	brands     map[string]Brand
}

// NewMemorySource returns an empty MemorySource.
func NewMemorySource() *MemorySource {
	return &MemorySource{
		products:   map[string]Product{},
		categories: map[string]Category{},
		brands:     map[string]Brand{},
	}
}

func (m *MemorySource) PutProduct(p Product) {
	m.mu.Lock()
	m.products[p.ID] = p
	m.mu.Unlock()
}

func (m *MemorySource) PutCategory(c Category) {
	m.mu.Lock()
	m.categories[c.ID] = c
	m.mu.Unlock()
}

func (m *MemorySource) PutBrand(b Brand) {
	m.mu.Lock()
	m.brands[b.ID] = b
	m.mu.Unlock()
}

func (m *MemorySource) DeleteProduct(id string) {
	m.mu.Lock()
	delete(m.products, id)
	m.mu.Unlock()
}

func (m *MemorySource) DeleteCategory(id string) {
	m.mu.Lock()
	delete(m.categories, id)
	m.mu.Unlock()
}

// Products returns every product ordered by id.
func (m *MemorySource) Products(ctx context.Context) ([]Product, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Product, 0, len(m.products))
	for _, p := range m.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Categories returns every category ordered by id.
func (m *MemorySource) Categories(ctx context.Context) ([]Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Category, 0, len(m.categories))
	for _, c := range m.categories {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Brands returns every brand ordered by id.
func (m *MemorySource) Brands(ctx context.Context) ([]Brand, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Brand, 0, len(m.brands))
	for _, b := range m.brands {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
