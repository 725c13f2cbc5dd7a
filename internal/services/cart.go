package services

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/apperr"
	"storefront/internal/models"
)

// CartItem is one requested line. LineTotal, when given, is what the client
// expects to pay for the line.
type CartItem struct {
	ProductID string   `json:"productId"`
	VariantID string   `json:"variantId"`
	Quantity  int      `json:"quantity"`
	LineTotal *float64 `json:"lineTotal,omitempty"`
}

type cartRequest struct {
	productID primitive.ObjectID
	variantID primitive.ObjectID
	quantity  int
	lineTotal *float64
}

// parseCart checks the shape of every line without touching storage.
func parseCart(items []CartItem) ([]cartRequest, error) {
	if len(items) == 0 {
		return nil, apperr.Validation("validation failed", "items are required")
	}
	details := make([]string, 0)
	out := make([]cartRequest, 0, len(items))
	for i, item := range items {
		productID, err := primitive.ObjectIDFromHex(item.ProductID)
		if err != nil {
			details = append(details, fmt.Sprintf("items[%d].productId is invalid", i))
		}
		variantID, err := primitive.ObjectIDFromHex(item.VariantID)
		if err != nil {
			details = append(details, fmt.Sprintf("items[%d].variantId is invalid", i))
		}
		if item.Quantity < 1 {
			details = append(details, fmt.Sprintf("items[%d].quantity must be at least 1", i))
		}
		if item.LineTotal != nil && *item.LineTotal < 0 {
			details = append(details, fmt.Sprintf("items[%d].lineTotal is invalid", i))
		}
		out = append(out, cartRequest{
			productID: productID,
			variantID: variantID,
			quantity:  item.Quantity,
			lineTotal: item.LineTotal,
		})
	}
	if len(details) > 0 {
		return nil, apperr.Validation("validation failed", details...)
	}
	return out, nil
}

// priceCart resolves each line against the catalog, checks stock and computes
// line totals server side. It returns the order items and the cart total.
func priceCart(ctx context.Context, products ProductRepository, lines []cartRequest) ([]models.OrderItem, float64, error) {
	items := make([]models.OrderItem, 0, len(lines))
	total := decimal.Zero

	for _, line := range lines {
		product, err := products.FindByID(ctx, line.productID)
		if err != nil {
			return nil, 0, storeErr(err, apperr.CodeProductNotFound, "product not found: "+line.productID.Hex())
		}
		if !product.Purchasable() {
			return nil, 0, apperr.NotFound(apperr.CodeProductNotFound, "product not found: "+line.productID.Hex())
		}
		variant, ok := product.FindVariant(line.variantID)
		if !ok {
			return nil, 0, apperr.NotFound(apperr.CodeVariantNotFound, "variant not found: "+line.variantID.Hex())
		}
		if variant.Stock < line.quantity {
			return nil, 0, apperr.Business(apperr.CodeInsufficientStock,
				fmt.Sprintf("insufficient stock for %s: available %d, requested %d", product.Title, variant.Stock, line.quantity))
		}

		lineTotal := dec(variant.Price.SellingPrice).Mul(decimal.NewFromInt(int64(line.quantity)))
		computed := roundMoney(lineTotal)
		if line.lineTotal != nil && moneyDiffers(*line.lineTotal, computed) {
			return nil, 0, apperr.New(apperr.KindValidation, apperr.CodeLineTotalMismatch,
				fmt.Sprintf("line total for %s should be %.2f", product.Title, computed))
		}

		total = total.Add(lineTotal)
		items = append(items, models.OrderItem{
			ProductID: product.ID,
			Variant: models.VariantSnapshot{
				VariantID:  variant.ID,
				Title:      product.Title,
				Attributes: variant.Attributes,
				UnitPrice:  variant.Price.SellingPrice,
			},
			Quantity:  line.quantity,
			LineTotal: computed,
		})
	}
	return items, roundMoney(total), nil
}

func couponLines(items []models.OrderItem) []CartLine {
	lines := make([]CartLine, 0, len(items))
	for _, item := range items {
		lines = append(lines, CartLine{ProductID: item.ProductID, Subtotal: item.LineTotal})
	}
	return lines
}
