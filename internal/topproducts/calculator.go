package topproducts

import (
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/marche-app/marche/internal/catalog"
)

const (
	// DefaultLimit is the ranking size used when the caller passes none.
	DefaultLimit = 5
	// DefaultTTL is how long a computed ranking is reused.
	DefaultTTL = 5 * time.Minute

	unknownMerchant = "Inconnu"
	vendorPrefix    = "Vendeur "
)

type cacheEntry struct {
	ranking    []TopProduct
	computedAt time.Time
}

// Calculator computes top-product rankings and memoises them per input
// fingerprint. It is safe for concurrent use.
type Calculator struct {
	ttl   time.Duration
	clock func() time.Time
	parse ItemParser

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// Option customises a Calculator.
type Option func(*Calculator)

// WithTTL overrides the cache lifetime.
func WithTTL(ttl time.Duration) Option {
	return func(c *Calculator) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock overrides the time source.
func WithClock(clock func() time.Time) Option {
	return func(c *Calculator) {
		if clock != nil {
			c.clock = clock
		}
	}
}

// WithParser overrides the order item parser.
func WithParser(parse ItemParser) Option {
	return func(c *Calculator) {
		if parse != nil {
			c.parse = parse
		}
	}
}

// NewCalculator builds a calculator with an empty cache.
func NewCalculator(opts ...Option) *Calculator {
	c := &Calculator{
		ttl:     DefaultTTL,
		clock:   time.Now,
		parse:   ParseItems,
		entries: map[string]cacheEntry{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Calculate returns the best selling products, at most limit of them. A
// fresh cached ranking for the same inputs is reused without re-parsing.
func (c *Calculator) Calculate(orders []Order, products []catalog.Product, users []User, limit int) []TopProduct {
	if limit <= 0 {
		limit = DefaultLimit
	}
	if len(orders) == 0 || len(products) == 0 {
		return []TopProduct{}
	}

	key := fingerprint(orders, products, users)
	now := c.clock()

	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[key]; ok && now.Sub(entry.computedAt) < c.ttl {
		return truncate(entry.ranking, limit)
	}
	c.sweep(now)

	ranking := c.rank(orders, products, users)
	c.entries[key] = cacheEntry{ranking: ranking, computedAt: now}
	return truncate(ranking, limit)
}

// ClearCache drops every memoised ranking.
func (c *Calculator) ClearCache() {
	c.mu.Lock()
	c.entries = map[string]cacheEntry{}
	c.mu.Unlock()
}

// CacheStats reports the memoised fingerprints.
func (c *Calculator) CacheStats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	keys := make([]string, 0, len(c.entries))
	for key := range c.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return CacheStats{Entries: len(keys), Keys: keys}
}

func (c *Calculator) sweep(now time.Time) {
	for key, entry := range c.entries {
		if now.Sub(entry.computedAt) >= c.ttl {
			delete(c.entries, key)
		}
	}
}

func (c *Calculator) rank(orders []Order, products []catalog.Product, users []User) []TopProduct {
	productIdx := make(map[string]catalog.Product, len(products))
	for _, p := range products {
		productIdx[p.ID] = p
	}
	userIdx := make(map[string]User, len(users))
	for _, u := range users {
		userIdx[u.ID] = u
	}

	totals := map[string]*TopProduct{}
	for _, order := range orders {
		items, err := c.parse(order.Items)
		if err != nil {
			continue
		}
		for _, item := range items {
			product, ok := productIdx[item.ProduitID]
			if !ok {
				continue
			}
			row, ok := totals[product.ID]
			if !ok {
				row = &TopProduct{
					ID:           product.ID,
					Name:         product.Name,
					MerchantName: merchantName(product.VendorID, userIdx),
				}
				totals[product.ID] = row
			}
			price := product.Price
			if item.Price != nil && *item.Price != 0 {
				price = *item.Price
			}
			row.TotalSold += item.Quantity
			row.Revenue += price * item.Quantity
		}
	}

	ranking := make([]TopProduct, 0, len(totals))
	for _, row := range totals {
		ranking = append(ranking, *row)
	}
	sort.Slice(ranking, func(i, j int) bool {
		a, b := ranking[i], ranking[j]
		if a.TotalSold != b.TotalSold {
			return a.TotalSold > b.TotalSold
		}
		if a.Revenue != b.Revenue {
			return a.Revenue > b.Revenue
		}
		return a.ID < b.ID
	})
	for i := range ranking {
		ranking[i].Revenue = math.Round(ranking[i].Revenue*100) / 100
	}
	return ranking
}

func merchantName(vendorID string, users map[string]User) string {
	if vendor, ok := users[vendorID]; ok && vendor.MerchantProfile != nil && vendor.MerchantProfile.BusinessName != "" {
		return vendor.MerchantProfile.BusinessName
	}
	if vendorID == "" {
		return unknownMerchant
	}
	runes := []rune(vendorID)
	if len(runes) > 4 {
		runes = runes[len(runes)-4:]
	}
	return vendorPrefix + string(runes)
}

// fingerprint identifies the inputs by size and boundary ids only. Inputs
// differing solely in their interior can share a fingerprint.
func fingerprint(orders []Order, products []catalog.Product, users []User) string {
	firstOrder, lastOrder := "", ""
	if len(orders) > 0 {
		firstOrder, lastOrder = orders[0].ID, orders[len(orders)-1].ID
	}
	firstProduct := ""
	if len(products) > 0 {
		firstProduct = products[0].ID
	}
	firstUser := ""
	if len(users) > 0 {
		firstUser = users[0].ID
	}
	return fmt.Sprintf("o:%d:%s:%s|p:%d:%s|u:%d:%s",
		len(orders), firstOrder, lastOrder, len(products), firstProduct, len(users), firstUser)
}

func truncate(ranking []TopProduct, limit int) []TopProduct {
	if limit > len(ranking) {
		limit = len(ranking)
	}
	out := make([]TopProduct, limit)
	copy(out, ranking[:limit])
	return out
}

var defaultCalculator = NewCalculator()

// Calculate ranks with the process-wide calculator.
func Calculate(orders []Order, products []catalog.Product, users []User, limit int) []TopProduct {
	return defaultCalculator.Calculate(orders, products, users, limit)
}

// ClearCache empties the process-wide calculator cache.
func ClearCache() {
	defaultCalculator.ClearCache()
}

// Stats reports the process-wide calculator cache.
func Stats() CacheStats {
	return defaultCalculator.CacheStats()
}
