package topproducts

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marche-app/marche/internal/catalog"
)

func price(v float64) *float64 { return &v }

type parseSpy struct {
	calls int
}

func (s *parseSpy) parse(raw json.RawMessage) ([]OrderItem, error) {
	s.calls++
	return ParseItems(raw)
}

func fixture() ([]Order, []catalog.Product, []User) {
	products := []catalog.Product{
		{ID: "p1", Name: "Sac cabas", Price: 10, VendorID: "u-vendor-1"},
		{ID: "p2", Name: "Mocassin", Price: 40, VendorID: "vnd-00009876"},
		{ID: "p3", Name: "Foulard", Price: 15},
		{ID: "p4", Name: "Ceinture", Price: 20, VendorID: "u-vendor-1"},
	}
	users := []User{
		{ID: "u-buyer", Name: "Alice"},
		{ID: "u-vendor-1", Name: "Bob", MerchantProfile: &MerchantProfile{BusinessName: "Atelier Nord"}},
	}
	orders := []Order{
		{ID: "o1", Items: ItemsFromSlice([]OrderItem{{ProduitID: "p1", Quantity: 2, Price: price(10)}, {ProduitID: "p2", Quantity: 1}})},
		{ID: "o2", Items: ItemsFromString(`[{"produitId":"p1","quantity":3},{"produitId":"p3","quantity":1,"price":0}]`)},
		{ID: "o3", Items: json.RawMessage(`{"produitId":"p2"}`)},
		{ID: "o4", Items: ItemsFromSlice([]OrderItem{{ProduitID: "ghost", Quantity: 9}, {ProduitID: "p4", Quantity: 1, Price: price(25)}})},
	}
	return orders, products, users
}

func TestCalculateRanksAcrossItemEncodings(t *testing.T) {
	orders, products, users := fixture()
	calc := NewCalculator()

	got := calc.Calculate(orders, products, users, 10)
	require.Len(t, got, 4)

	assert.Equal(t, TopProduct{ID: "p1", Name: "Sac cabas", TotalSold: 5, Revenue: 50, MerchantName: "Atelier Nord"}, got[0])
	// p2, p3 and p4 each sold one unit: revenue breaks the tie
	assert.Equal(t, "p2", got[1].ID)
	assert.Equal(t, 40.0, got[1].Revenue)
	assert.Equal(t, "Vendeur 9876", got[1].MerchantName)
	assert.Equal(t, "p4", got[2].ID)
	assert.Equal(t, 25.0, got[2].Revenue)
	assert.Equal(t, "p3", got[3].ID)
	assert.Equal(t, 15.0, got[3].Revenue, "zero item price falls back to the product price")
	assert.Equal(t, "Inconnu", got[3].MerchantName)
}

func TestCalculateDefaultLimitAndEmptyInputs(t *testing.T) {
	calc := NewCalculator()
	_, products, users := fixture()

	require.Empty(t, calc.Calculate(nil, products, users, 5))
	require.Empty(t, calc.Calculate([]Order{{ID: "o1"}}, nil, users, 5))
	require.Zero(t, calc.CacheStats().Entries)

	var orders []Order
	for i := 0; i < 8; i++ {
		orders = append(orders, Order{ID: string(rune('a' + i)), Items: ItemsFromSlice([]OrderItem{{ProduitID: "p1", Quantity: 1}})})
	}
	many := make([]catalog.Product, 0, 7)
	for i := 0; i < 7; i++ {
		id := string(rune('A' + i))
		many = append(many, catalog.Product{ID: id, Price: 1})
		orders = append(orders, Order{ID: "x" + id, Items: ItemsFromSlice([]OrderItem{{ProduitID: id, Quantity: float64(i + 1)}})})
	}
	require.Len(t, calc.Calculate(orders, many, users, 0), DefaultLimit)
}

func TestCalculateUnitsSoldOutrankRevenue(t *testing.T) {
	products := []catalog.Product{{ID: "A", Price: 10}, {ID: "B", Price: 15}, {ID: "C", Price: 2.5}}
	orders := []Order{
		{ID: "o1", Items: ItemsFromSlice([]OrderItem{{ProduitID: "A", Quantity: 10}})},
		{ID: "o2", Items: ItemsFromSlice([]OrderItem{{ProduitID: "B", Quantity: 10}})},
		{ID: "o3", Items: ItemsFromSlice([]OrderItem{{ProduitID: "C", Quantity: 20}})},
	}

	got := NewCalculator().Calculate(orders, products, nil, 5)
	require.Len(t, got, 3)
	assert.Equal(t, []string{"C", "B", "A"}, []string{got[0].ID, got[1].ID, got[2].ID})
	assert.Equal(t, 50.0, got[0].Revenue)
	assert.Equal(t, 150.0, got[1].Revenue)
	assert.Equal(t, 100.0, got[2].Revenue)
}

func TestCalculateTieBreaksByID(t *testing.T) {
	products := []catalog.Product{{ID: "b", Price: 5}, {ID: "a", Price: 5}}
	orders := []Order{{ID: "o1", Items: ItemsFromSlice([]OrderItem{{ProduitID: "b", Quantity: 1}, {ProduitID: "a", Quantity: 1}})}}

	got := NewCalculator().Calculate(orders, products, nil, 5)
	require.Len(t, got, 2)
	require.Equal(t, "a", got[0].ID)
	require.Equal(t, "b", got[1].ID)
}

func TestCalculateCacheHitSkipsParsing(t *testing.T) {
	orders, products, users := fixture()
	spy := &parseSpy{}
	calc := NewCalculator(WithParser(spy.parse))

	first := calc.Calculate(orders, products, users, 1)
	require.Len(t, first, 1)
	require.Equal(t, len(orders), spy.calls)

	larger := calc.Calculate(orders, products, users, 3)
	require.Len(t, larger, 3)
	require.Equal(t, first[0], larger[0])
	require.Equal(t, len(orders), spy.calls, "cached ranking must be reused for a larger limit")

	stats := calc.CacheStats()
	require.Equal(t, 1, stats.Entries)
	require.Equal(t, []string{"o:4:o1:o4|p:4:p1|u:2:u-buyer"}, stats.Keys)
}

func TestCalculateReturnsCopies(t *testing.T) {
	orders, products, users := fixture()
	calc := NewCalculator()

	got := calc.Calculate(orders, products, users, 2)
	got[0].Name = "mutated"
	again := calc.Calculate(orders, products, users, 2)
	require.Equal(t, "Sac cabas", again[0].Name)
}

func TestCalculateExpiresAfterTTL(t *testing.T) {
	orders, products, users := fixture()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	spy := &parseSpy{}
	calc := NewCalculator(WithParser(spy.parse), WithClock(func() time.Time { return now }))

	calc.Calculate(orders, products, users, 5)
	now = now.Add(4*time.Minute + 59*time.Second)
	calc.Calculate(orders, products, users, 5)
	require.Equal(t, len(orders), spy.calls)

	now = now.Add(time.Second)
	calc.Calculate(orders, products, users, 5)
	require.Equal(t, 2*len(orders), spy.calls)
	require.Equal(t, 1, calc.CacheStats().Entries)
}

func TestCalculateSweepsExpiredEntries(t *testing.T) {
	orders, products, users := fixture()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	calc := NewCalculator(WithTTL(time.Minute), WithClock(func() time.Time { return now }))

	calc.Calculate(orders, products, users, 5)
	calc.Calculate(orders[:2], products, users, 5)
	require.Equal(t, 2, calc.CacheStats().Entries)

	now = now.Add(2 * time.Minute)
	calc.Calculate(orders[:3], products, users, 5)
	require.Equal(t, 1, calc.CacheStats().Entries)

	calc.ClearCache()
	require.Zero(t, calc.CacheStats().Entries)
}

func TestPackageLevelCalculator(t *testing.T) {
	orders, products, users := fixture()
	ClearCache()
	t.Cleanup(ClearCache)

	got := Calculate(orders, products, users, 0)
	require.Len(t, got, 4)
	require.Equal(t, 1, Stats().Entries)
}
