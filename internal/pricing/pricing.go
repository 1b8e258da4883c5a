// Package pricing derives authoritative prices for order lines and cart
// previews. Everything here is a pure function of its inputs: callers must
// never assume any persistent state is read or written.
package pricing

import "github.com/modadz/marketplace/internal/catalog"

// Delivery method names recognized by ShippingCost. Kept as strings so the
// package stays independent of the order model.
const (
	DeliveryExpress     = "express"
	DeliveryPickupPoint = "pickup_point"
)

type Config struct {
	TaxRate          float64 // VAT, fraction of subtotal
	ShippingBase     float64 // flat rate below the free-shipping threshold
	FreeShippingOver float64 // subtotal at or above which shipping is free
	ExpressFactor    float64
	PickupFactor     float64
}

// DefaultConfig carries the production rates: 19% VAT (Algeria), 500 DZD
// base shipping, free shipping from 5000 DZD.
func DefaultConfig() Config {
	return Config{
		TaxRate:          0.19,
		ShippingBase:     500,
		FreeShippingOver: 5000,
		ExpressFactor:    1.5,
		PickupFactor:     0.8,
	}
}

// UnitPrice resolves the current unit price for the requested color/size
// pair. The fallback chain is total: an explicitly priced variant wins,
// then the product price plus any size surcharge, then the plain product
// price. A missing variant is not an error.
func UnitPrice(p *catalog.Product, color, size string) float64 {
	for _, v := range p.Variants {
		if v.Color == color && v.Size == size {
			if v.SalePrice > 0 {
				return v.SalePrice
			}
			return v.Price
		}
	}
	if color != "" && size != "" {
		for _, c := range p.Colors {
			if c.Name != color {
				continue
			}
			for _, s := range c.Sizes {
				if s.Size == size {
					return p.CurrentPrice() + s.PriceAdjustment
				}
			}
		}
	}
	return p.CurrentPrice()
}

// ShippingCost is a flat rate scaled by delivery method, waived above the
// free-shipping threshold.
func (c Config) ShippingCost(subtotal float64, deliveryMethod string) float64 {
	if subtotal >= c.FreeShippingOver {
		return 0
	}
	cost := c.ShippingBase
	switch deliveryMethod {
	case DeliveryExpress:
		cost *= c.ExpressFactor
	case DeliveryPickupPoint:
		cost *= c.PickupFactor
	}
	return cost
}

func (c Config) Tax(subtotal float64) float64 {
	return subtotal * c.TaxRate
}
