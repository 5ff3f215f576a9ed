// Package catalog holds the product catalog entities and the read-side
// contracts used by search synchronisation and reporting.
package catalog

import (
	"context"
	"time"
)

// Product is a catalog item. Relations are held by identifier only.
type Product struct {
	ID            string    `json:"id" validate:"required"`
	Name          string    `json:"name"`
	Title         string    `json:"title,omitempty"`
	SKU           string    `json:"sku,omitempty"`
	Description   string    `json:"description,omitempty"`
	Price         float64   `json:"price" validate:"gte=0"`
	OriginalPrice float64   `json:"originalPrice,omitempty" validate:"gte=0"`
	Stock         int64     `json:"stock"`
	Rating        float64   `json:"rating,omitempty"`
	CategoryID    string    `json:"categoryId,omitempty"`
	BrandID       string    `json:"brandId,omitempty"`
	VendorID      string    `json:"vendorId,omitempty"`
	Images        []string  `json:"images,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Category groups products.
type Category struct {
	ID          string    `json:"id" validate:"required"`
	Name        string    `json:"name" validate:"required"`
	Slug        string    `json:"slug,omitempty"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	ParentID    string    `json:"parentId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Brand is a product manufacturer label.
type Brand struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Source exposes the authoritative catalog collections.
type Source interface {
	Products(ctx context.Context) ([]Product, error)
	Categories(ctx context.Context) ([]Category, error)
	Brands(ctx context.Context) ([]Brand, error)
}
