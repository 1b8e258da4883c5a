package catalog

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("product not found")

type Status string

const (
	StatusDraft      Status = "draft"
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusOutOfStock Status = "out_of_stock"
)

// Size is one selectable size under a color, with its own stock count and
// an optional surcharge on top of the product price.
type Size struct {
	Size            string  `json:"size"`
	Stock           int     `json:"stock"`
	PriceAdjustment float64 `json:"price_adjustment,omitempty"`
}

type Color struct {
	Name      string   `json:"name"`
	ColorCode string   `json:"color_code,omitempty"`
	Images    []string `json:"images,omitempty"`
	Sizes     []Size   `json:"sizes,omitempty"`
}

// Variant is an explicitly priced color/size combination. When a variant
// exists for a requested pair it wins over the product-level price.
type Variant struct {
	SKU       string  `json:"sku"`
	Color     string  `json:"color,omitempty"`
	Size      string  `json:"size,omitempty"`
	Stock     int     `json:"stock"`
	Price     float64 `json:"price"`
	SalePrice float64 `json:"sale_price,omitempty"`
}

type Product struct {
	ID           string    `json:"id"`
	Slug         string    `json:"slug"`
	Name         string    `json:"name"`
	Description  string    `json:"description,omitempty"`
	BoutiqueID   string    `json:"boutique_id"`
	BoutiqueName string    `json:"boutique_name"`
	Category     string    `json:"category,omitempty"`
	BasePrice    float64   `json:"base_price"`
	SalePrice    float64   `json:"sale_price,omitempty"` // 0 = not on sale
	Currency     string    `json:"currency"`
	MainImage    string    `json:"main_image,omitempty"`
	Variants     []Variant `json:"variants,omitempty"`
	Colors       []Color   `json:"colors,omitempty"`
	TotalStock   int       `json:"total_stock"`
	SalesCount   int       `json:"sales_count"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CurrentPrice is the product-level selling price: the sale price when one
// is set and actually lower than the base price.
func (p *Product) CurrentPrice() float64 {
	if p.SalePrice > 0 && p.SalePrice < p.BasePrice {
		return p.SalePrice
	}
	return p.BasePrice
}

func (p *Product) OnSale() bool {
	return p.SalePrice > 0 && p.SalePrice < p.BasePrice
}

func (p *Product) InStock() bool { return p.TotalStock > 0 }
