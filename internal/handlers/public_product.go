package handlers

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"storefront/internal/database"
	"storefront/internal/models"
	"storefront/internal/services"
)

type Catalog interface {
	List(ctx context.Context, q database.ProductQuery) ([]models.Product, services.Pagination, error)
	Get(ctx context.Context, id primitive.ObjectID) (*models.Product, error)
	Create(ctx context.Context, in services.ProductInput) (*models.Product, error)
	Update(ctx context.Context, id primitive.ObjectID, in services.ProductUpdate) (*models.Product, error)
	Delete(ctx context.Context, id primitive.ObjectID) error
	SetActive(ctx context.Context, id primitive.ObjectID, active bool) (*models.Product, error)
	UpdateVariantStock(ctx context.Context, productID, variantID primitive.ObjectID, stock int) (*models.Product, error)
	UpdateVariantPrice(ctx context.Context, productID, variantID primitive.ObjectID, in services.VariantPriceUpdate) (*models.Product, error)
	Stats(ctx context.Context) (*models.ProductStats, error)
}

// productQuery reads the catalog filters shared by the public and admin
// listings.
func productQuery(c *gin.Context) (database.ProductQuery, error) {
	page, limit, err := parsePaginationParams(c.Query("page"), c.Query("limit"))
	if err != nil {
		return database.ProductQuery{}, err
	}
	minPrice, err := parseFloatParam(c.Query("minPrice"), "minPrice")
	if err != nil {
		return database.ProductQuery{}, err
	}
	maxPrice, err := parseFloatParam(c.Query("maxPrice"), "maxPrice")
	if err != nil {
		return database.ProductQuery{}, err
	}
	return database.ProductQuery{
		Category: strings.TrimSpace(c.Query("category")),
		Label:    strings.ToLower(strings.TrimSpace(c.Query("label"))),
		Search:   strings.TrimSpace(c.Query("search")),
		MinPrice: minPrice,
		MaxPrice: maxPrice,
		Sort:     strings.TrimSpace(c.Query("sort")),
		Page:     page,
		Limit:    limit,
	}, nil
}

func GetProducts(catalog Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /products"
		defer handlePanic(c, route)

		q, err := productQuery(c)
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		products, pagination, err := catalog.List(ctx, q)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", gin.H{"products": newProductViews(products), "pagination": pagination})
	}
}

func GetProduct(catalog Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /products/:productId"
		defer handlePanic(c, route)

		id, err := paramID(c, "productId")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		product, err := catalog.Get(ctx, id)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "", newProductView(product))
	}
}
