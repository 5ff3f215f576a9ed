package searchsync

import (
	"time"

	"github.com/marche-app/marche/internal/catalog"
)

// ProductDocument is the flattened product projection stored in the index.
// CategoryName and BrandName are omitted when they cannot be resolved.
type ProductDocument struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Title         string    `json:"title,omitempty"`
	SKU           string    `json:"sku,omitempty"`
	Description   string    `json:"description,omitempty"`
	Price         float64   `json:"price"`
	OriginalPrice float64   `json:"originalPrice,omitempty"`
	Stock         int64     `json:"stock"`
	Rating        float64   `json:"rating,omitempty"`
	CategoryID    string    `json:"categoryId,omitempty"`
	CategoryName  string    `json:"categoryName,omitempty"`
	BrandID       string    `json:"brandId,omitempty"`
	BrandName     string    `json:"brandName,omitempty"`
	VendorID      string    `json:"vendorId,omitempty"`
	Images        []string  `json:"images"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CategoryDocument is the category projection stored in the index.
type CategoryDocument struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug,omitempty"`
	Description string    `json:"description,omitempty"`
	Image       string    `json:"image,omitempty"`
	ParentID    string    `json:"parentId,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// BuildProductDocument projects p using the resolved names.
func BuildProductDocument(p catalog.Product, names catalog.Names) ProductDocument {
	images := make([]string, len(p.Images))
	copy(images, p.Images)
	doc := ProductDocument{
		ID:            p.ID,
		Name:          p.Name,
		Title:         p.Title,
		SKU:           p.SKU,
		Description:   p.Description,
		Price:         p.Price,
		OriginalPrice: p.OriginalPrice,
		Stock:         p.Stock,
		Rating:        p.Rating,
		CategoryID:    p.CategoryID,
		BrandID:       p.BrandID,
		VendorID:      p.VendorID,
		Images:        images,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if name, ok := names.Category(p.CategoryID); ok {
		doc.CategoryName = name
	}
	if name, ok := names.Brand(p.BrandID); ok {
		doc.BrandName = name
	}
	return doc
}

// BuildCategoryDocument projects c.
func BuildCategoryDocument(c catalog.Category) CategoryDocument {
	return CategoryDocument{
		ID:          c.ID,
		Name:        c.Name,
		Slug:        c.Slug,
		Description: c.Description,
		Image:       c.Image,
		ParentID:    c.ParentID,
		CreatedAt:   c.CreatedAt,
		UpdatedAt:   c.UpdatedAt,
	}
}
