package handlers

import (
	"github.com/gin-gonic/gin"

	"storefront/internal/services"
)

type productStatusRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

type variantStockRequest struct {
	Stock *int `json:"stock" binding:"required"`
}

// AdminGetProducts lists the catalog including deactivated products.
func AdminGetProducts(catalog Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/products"
		defer handlePanic(c, route)

		q, err := productQuery(c)
		if err != nil {
			respondError(c, route, err)
			return
		}
		q.IncludeInactive = true

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

// GetProductStats returns catalog totals with the top selling and top rated
// products.
func GetProductStats(catalog Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "GET /admin/products/stats"
		defer handlePanic(c, route)

		ctx, cancel := requestContext(c)
		defer cancel()

		stats, err := catalog.Stats(ctx)
		if err != nil {
			respondError(c, route, err)
			return
		}
		general := gin.H{
			"totalProducts":  stats.TotalProducts,
			"activeProducts": stats.ActiveProducts,
			"totalSales":     stats.TotalSales,
			"totalReviews":   stats.TotalReviews,
			"averageRating":  stats.AverageRating,
		}
		respondOK(c, "", gin.H{
			"generalStats": general,
			"topSelling":   newProductViews(stats.TopSelling),
			"topRated":     newProductViews(stats.TopRated),
		})
	}
}

func CreateProduct(catalog Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "POST /admin/products"
		defer handlePanic(c, route)

		var req services.ProductInput
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		product, err := catalog.Create(ctx, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondCreated(c, "product created", newProductView(product))
	}
}

func UpdateProduct(catalog Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PUT /admin/products/:productId"
		defer handlePanic(c, route)

		id, err := paramID(c, "productId")
		if err != nil {
			respondError(c, route, err)
			return
		}
		var req services.ProductUpdate
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		product, err := catalog.Update(ctx, id, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "product updated", newProductView(product))
	}
}

func DeleteProduct(catalog Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "DELETE /admin/products/:productId"
		defer handlePanic(c, route)

		id, err := paramID(c, "productId")
		if err != nil {
			respondError(c, route, err)
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		if err := catalog.Delete(ctx, id); err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "product deleted", nil)
	}
}

func UpdateProductStatus(catalog Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /admin/products/:productId/status"
		defer handlePanic(c, route)

		id, err := paramID(c, "productId")
		if err != nil {
			respondError(c, route, err)
			return
		}
		var req productStatusRequest
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		product, err := catalog.SetActive(ctx, id, *req.IsActive)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "product status updated", newProductView(product))
	}
}

func UpdateVariantStock(catalog Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /admin/products/:productId/variants/:variantId/stock"
		defer handlePanic(c, route)

		productID, err := paramID(c, "productId")
		if err != nil {
			respondError(c, route, err)
			return
		}
		variantID, err := paramID(c, "variantId")
		if err != nil {
			respondError(c, route, err)
			return
		}
		var req variantStockRequest
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		product, err := catalog.UpdateVariantStock(ctx, productID, variantID, *req.Stock)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "stock updated", newProductView(product))
	}
}

func UpdateVariantPrice(catalog Catalog) gin.HandlerFunc {
	return func(c *gin.Context) {
		const route = "PATCH /admin/products/:productId/variants/:variantId/price"
		defer handlePanic(c, route)

		productID, err := paramID(c, "productId")
		if err != nil {
			respondError(c, route, err)
			return
		}
		variantID, err := paramID(c, "variantId")
		if err != nil {
			respondError(c, route, err)
			return
		}
		var req services.VariantPriceUpdate
		if !bindJSON(c, route, &req) {
			return
		}

		ctx, cancel := requestContext(c)
		defer cancel()

		product, err := catalog.UpdateVariantPrice(ctx, productID, variantID, req)
		if err != nil {
			respondError(c, route, err)
			return
		}
		respondOK(c, "price updated", newProductView(product))
	}
}
