// Package topproducts ranks catalog products by units sold across orders and
// memoises the ranking for a short window.
package topproducts

import (
	"encoding/json"
	"time"
)

// Order is a placed order. Items holds either a JSON array of OrderItem or a
// JSON string containing that array, as stored by older clients.
type Order struct {
	ID        string          `json:"id"`
	UserID    string          `json:"userId,omitempty"`
	Items     json.RawMessage `json:"items"`
	Total     float64         `json:"total"`
	CreatedAt time.Time       `json:"createdAt"`
}

// OrderItem is one line of an order.
type OrderItem struct {
	ProduitID string   `json:"produitId"`
	Quantity  float64  `json:"quantity"`
	Price     *float64 `json:"price,omitempty"`
}

// MerchantProfile carries the public shop identity of a vendor.
type MerchantProfile struct {
	BusinessName string `json:"businessName"`
}

// User is a marketplace account; vendors carry a merchant profile.
type User struct {
	ID              string           `json:"id"`
	Name            string           `json:"name"`
	Email           string           `json:"email,omitempty"`
	MerchantProfile *MerchantProfile `json:"merchantProfile,omitempty"`
}

// TopProduct is one row of the ranking.
type TopProduct struct {
	ID           string  `json:"id"`
	Name         string  `json:"name"`
	TotalSold    float64 `json:"totalSold"`
	Revenue      float64 `json:"revenue"`
	MerchantName string  `json:"merchantName"`
}

// CacheStats describes the memoised rankings.
type CacheStats struct {
	Entries int      `json:"entries"`
	Keys    []string `json:"keys"`
}

// ItemsFromSlice encodes items as a JSON array.
func ItemsFromSlice(items []OrderItem) json.RawMessage {
	raw, _ := json.Marshal(items)
	return raw
}

// ItemsFromString wraps a JSON-encoded item list as a JSON string value.
func ItemsFromString(encoded string) json.RawMessage {
	raw, _ := json.Marshal(encoded)
	return raw
}
