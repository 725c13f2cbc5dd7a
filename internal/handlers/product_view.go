package handlers

import (
	"math"

	"storefront/internal/models"
)

// variantView adds the sale badge data the storefront shows next to a
// variant price.
type variantView struct {
	models.Variant
	OnSale          bool    `json:"onSale"`
	DiscountPercent float64 `json:"discountPercent"`
}

type productView struct {
	models.Product
	Variants []variantView `json:"variants"`
}

func isVariantOnSale(price models.VariantPrice) bool {
	return price.SellingPrice > 0 && price.SellingPrice < price.MRP
}

// discountPercent is the whole-number saving of the selling price against
// mrp.
func discountPercent(price models.VariantPrice) float64 {
	if !isVariantOnSale(price) {
		return 0
	}
	return math.Round((price.MRP - price.SellingPrice) / price.MRP * 100)
}

func newProductView(p *models.Product) productView {
	view := productView{Product: *p, Variants: make([]variantView, 0, len(p.Variants))}
	for _, v := range p.Variants {
		view.Variants = append(view.Variants, variantView{
			Variant:         v,
			OnSale:          isVariantOnSale(v.Price),
			DiscountPercent: discountPercent(v.Price),
		})
	}
	return view
}

func newProductViews(products []models.Product) []productView {
	views := make([]productView, 0, len(products))
	for i := range products {
		views = append(views, newProductView(&products[i]))
	}
	return views
}
