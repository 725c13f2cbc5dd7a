package services

import (
	"context"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.uber.org/zap"

	"storefront/internal/apperr"
	"storefront/internal/database"
	"storefront/internal/models"
)

const (
	maxPageSize = 100
	statsTop    = 5
)

type VariantInput struct {
	Attributes models.VariantAttributes `json:"attributes"`
	Stock      int                      `json:"stock"`
	Price      models.VariantPrice      `json:"price"`
}

type ProductInput struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Category    string         `json:"category"`
	Label       string         `json:"label"`
	Tags        []string       `json:"tags"`
	Variants    []VariantInput `json:"variants"`
	IsActive    *bool          `json:"isActive"`
}

type ProductUpdate struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Category    *string   `json:"category"`
	Label       *string   `json:"label"`
	Tags        *[]string `json:"tags"`
}

type VariantPriceUpdate struct {
	MRP          *float64 `json:"mrp"`
	SellingPrice *float64 `json:"sellingPrice"`
}

type CatalogService struct {
	products ProductRepository
	log      *zap.Logger
	now      func() time.Time
}

func NewCatalogService(products ProductRepository, log *zap.Logger) *CatalogService {
	return &CatalogService{products: products, log: log.Named("catalog"), now: time.Now}
}

// List returns purchasable products. Inactive products are only included for
// admin listings.
func (s *CatalogService) List(ctx context.Context, q database.ProductQuery) ([]models.Product, Pagination, error) {
	if q.MinPrice != nil && q.MaxPrice != nil && *q.MinPrice > *q.MaxPrice {
		return nil, Pagination{}, apperr.Validation("validation failed", "minPrice must not exceed maxPrice")
	}
	if q.Sort != "" && !oneOf(q.Sort, []string{"price", "-price", "rating", "-rating", "newest"}) {
		return nil, Pagination{}, apperr.Validation("validation failed", "sort is invalid")
	}
	if q.Limit > maxPageSize {
		q.Limit = maxPageSize
	}
	products, total, err := s.products.List(ctx, q)
	if err != nil {
		return nil, Pagination{}, apperr.As(err)
	}
	return products, Pagination{Page: q.Page, Limit: q.Limit, Total: total}, nil
}

// Get returns a product visible to customers.
func (s *CatalogService) Get(ctx context.Context, id primitive.ObjectID) (*models.Product, error) {
	product, err := s.products.FindByID(ctx, id)
	if err != nil {
		return nil, storeErr(err, apperr.CodeProductNotFound, "product not found")
	}
	if !product.Purchasable() {
		return nil, apperr.NotFound(apperr.CodeProductNotFound, "product not found")
	}
	return product, nil
}

func (s *CatalogService) Create(ctx context.Context, in ProductInput) (*models.Product, error) {
	now := s.now()
	product := &models.Product{
		Title:       strings.TrimSpace(in.Title),
		Description: strings.TrimSpace(in.Description),
		Category:    strings.TrimSpace(in.Category),
		Label:       strings.ToLower(strings.TrimSpace(in.Label)),
		Tags:        cleanTags(in.Tags),
		Variants:    make([]models.Variant, 0, len(in.Variants)),
		IsActive:    in.IsActive == nil || *in.IsActive,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	for _, v := range in.Variants {
		product.Variants = append(product.Variants, models.Variant{
			ID:         primitive.NewObjectID(),
			Attributes: v.Attributes,
			Stock:      v.Stock,
			Price:      v.Price,
		})
	}
	if err := validateProduct(product); err != nil {
		return nil, err
	}

	if err := s.products.Insert(ctx, product); err != nil {
		return nil, apperr.As(err)
	}
	s.log.Info("product created", zap.String("productId", product.ID.Hex()), zap.String("title", product.Title))
	return product, nil
}

func (s *CatalogService) Update(ctx context.Context, id primitive.ObjectID, in ProductUpdate) (*models.Product, error) {
	var changes database.ProductChanges
	details := make([]string, 0)
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" || len(title) > 100 {
			details = append(details, "title is invalid")
		}
		changes.Title = &title
	}
	if in.Description != nil {
		description := strings.TrimSpace(*in.Description)
		changes.Description = &description
	}
	if in.Category != nil {
		category := strings.TrimSpace(*in.Category)
		if category == "" {
			details = append(details, "category is required")
		}
		changes.Category = &category
	}
	if in.Label != nil {
		label := strings.ToLower(strings.TrimSpace(*in.Label))
		if label != "" && !oneOf(label, models.ProductLabels) {
			details = append(details, "label is invalid")
		}
		changes.Label = &label
	}
	if in.Tags != nil {
		tags := []string(cleanTags(*in.Tags))
		changes.Tags = &tags
	}
	if len(details) > 0 {
		return nil, apperr.Validation("validation failed", details...)
	}

	product, err := s.products.Update(ctx, id, changes)
	if err != nil {
		return nil, storeErr(err, apperr.CodeProductNotFound, "product not found")
	}
	s.log.Info("product updated", zap.String("productId", id.Hex()))
	return product, nil
}

// Delete soft deletes the product.
func (s *CatalogService) Delete(ctx context.Context, id primitive.ObjectID) error {
	if err := s.products.SoftDelete(ctx, id); err != nil {
		return storeErr(err, apperr.CodeProductNotFound, "product not found")
	}
	s.log.Info("product deleted", zap.String("productId", id.Hex()))
	return nil
}

func (s *CatalogService) SetActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.Product, error) {
	product, err := s.products.SetActive(ctx, id, active)
	if err != nil {
		return nil, storeErr(err, apperr.CodeProductNotFound, "product not found")
	}
	s.log.Info("product status changed", zap.String("productId", id.Hex()), zap.Bool("active", active))
	return product, nil
}

func (s *CatalogService) UpdateVariantStock(ctx context.Context, productID, variantID primitive.ObjectID, stock int) (*models.Product, error) {
	if stock < 0 {
		return nil, apperr.Validation("validation failed", "stock must be zero or greater")
	}
	product, err := s.products.UpdateVariant(ctx, productID, variantID, database.VariantChanges{Stock: &stock})
	if err != nil {
		return nil, storeErr(err, apperr.CodeVariantNotFound, "product or variant not found")
	}
	s.log.Info("variant stock updated",
		zap.String("productId", productID.Hex()),
		zap.String("variantId", variantID.Hex()),
		zap.Int("stock", stock))
	return product, nil
}

// UpdateVariantPrice changes mrp and/or selling price, re-checking that the
// selling price does not exceed mrp after the merge.
func (s *CatalogService) UpdateVariantPrice(ctx context.Context, productID, variantID primitive.ObjectID, in VariantPriceUpdate) (*models.Product, error) {
	if in.MRP == nil && in.SellingPrice == nil {
		return nil, apperr.Validation("validation failed", "mrp or sellingPrice is required")
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return nil, storeErr(err, apperr.CodeProductNotFound, "product not found")
	}
	variant, ok := product.FindVariant(variantID)
	if !ok {
		return nil, apperr.NotFound(apperr.CodeVariantNotFound, "variant not found")
	}

	price := variant.Price
	if in.MRP != nil {
		price.MRP = *in.MRP
	}
	if in.SellingPrice != nil {
		price.SellingPrice = *in.SellingPrice
	}
	if err := validateStruct(price); err != nil {
		return nil, err
	}

	updated, err := s.products.UpdateVariant(ctx, productID, variantID, database.VariantChanges{
		MRP:   &price.MRP,
		Price: &price.SellingPrice,
	})
	if err != nil {
		return nil, storeErr(err, apperr.CodeVariantNotFound, "product or variant not found")
	}
	s.log.Info("variant price updated",
		zap.String("productId", productID.Hex()),
		zap.String("variantId", variantID.Hex()),
		zap.Float64("sellingPrice", price.SellingPrice))
	return updated, nil
}

// Stats summarises the catalog for the admin dashboard.
func (s *CatalogService) Stats(ctx context.Context) (*models.ProductStats, error) {
	stats, err := s.products.Stats(ctx, statsTop)
	if err != nil {
		return nil, apperr.As(err)
	}
	stats.AverageRating = roundMoney(dec(stats.AverageRating))
	if stats.TopSelling == nil {
		stats.TopSelling = []models.Product{}
	}
	if stats.TopRated == nil {
		stats.TopRated = []models.Product{}
	}
	return stats, nil
}

func validateProduct(p *models.Product) error {
	details := make([]string, 0)
	if p.Title == "" {
		details = append(details, "title is required")
	} else if len(p.Title) > 100 {
		details = append(details, "title must be at most 100 characters")
	}
	if p.Description == "" {
		details = append(details, "description is required")
	}
	if p.Category == "" {
		details = append(details, "category is required")
	}
	if p.Label != "" && !oneOf(p.Label, models.ProductLabels) {
		details = append(details, "label is invalid")
	}
	if len(p.Variants) == 0 {
		details = append(details, "variants are required")
	}
	for i := range p.Variants {
		if err := validateStruct(p.Variants[i]); err != nil {
			for _, d := range apperr.As(err).Details {
				details = append(details, "variants: "+d)
			}
		}
	}
	if len(details) > 0 {
		return apperr.Validation("validation failed", details...)
	}
	return nil
}

func cleanTags(tags []string) models.StringList {
	out := make(models.StringList, 0, len(tags))
	seen := map[string]bool{}
	for _, tag := range tags {
		tag = strings.TrimSpace(tag)
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
