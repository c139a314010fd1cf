package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/shop-api/internal/core/domain"
	"github.com/rl1809/shop-api/internal/core/service"
)

// Pointer fields tell a missing value apart from a zero value.
type CreateProductHTTPRequest struct {
	ProductName   *string  `json:"productName"`
	Category      *string  `json:"category"`
	Price         *float64 `json:"price"`
	StockQuantity *int     `json:"stockQuantity"`
}

type UpdateProductHTTPRequest struct {
	ProductID   string          `json:"productId"`
	UpdatedData json.RawMessage `json:"updatedData"`
}

type productResponse struct {
	Message string          `json:"message"`
	Product *domain.Product `json:"product"`
}

type totalStockResponse struct {
	Message    string `json:"message"`
	TotalStock int64  `json:"totalStock"`
}

func (h *HTTPHandler) GetProducts(c *gin.Context) {
	result, err := h.products.Query(c.Request.Context(), service.ProductQuery{
		TotalStock: c.Query("totalStock") == "true",
		ProductID:  c.Query("productId"),
	})
	if err != nil {
		h.fail(c, err, "Error in fetching product")
		return
	}

	switch {
	case result.TotalStock != nil:
		c.JSON(http.StatusOK, totalStockResponse{
			Message:    "Total stock quantity calculated successfully",
			TotalStock: *result.TotalStock,
		})
	case result.Product != nil:
		c.JSON(http.StatusOK, result.Product)
	default:
		c.JSON(http.StatusOK, result.Products)
	}
}

func (h *HTTPHandler) CreateProduct(c *gin.Context) {
	var req CreateProductHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.ProductName == nil || req.Category == nil || req.Price == nil || req.StockQuantity == nil {
		badRequest(c, "productName, category, price and stockQuantity are required")
		return
	}

	product, err := h.products.CreateProduct(c.Request.Context(), domain.Product{
		ProductName:   *req.ProductName,
		Category:      *req.Category,
		Price:         *req.Price,
		StockQuantity: *req.StockQuantity,
	})
	if err != nil {
		h.fail(c, err, "Error in creating product")
		return
	}
	c.JSON(http.StatusCreated, productResponse{Message: "Product created successfully", Product: product})
}

func (h *HTTPHandler) UpdateProduct(c *gin.Context) {
	var req UpdateProductHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.ProductID == "" || !hasValue(req.UpdatedData) {
		badRequest(c, "productId and updatedData are required")
		return
	}

	var patch domain.ProductPatch
	if err := decodeStrict(req.UpdatedData, &patch); err != nil {
		badRequest(c, "updatedData may only contain productName, category, price and stockQuantity")
		return
	}

	product, err := h.products.UpdateProduct(c.Request.Context(), req.ProductID, patch)
	if err != nil {
		h.fail(c, err, "Error in updating product")
		return
	}
	c.JSON(http.StatusOK, productResponse{Message: "Product updated successfully", Product: product})
}

func (h *HTTPHandler) DeleteProduct(c *gin.Context) {
	product, err := h.products.DeleteProduct(c.Request.Context(), c.Query("productId"))
	if err != nil {
		h.fail(c, err, "Error in deleting product")
		return
	}
	c.JSON(http.StatusOK, productResponse{Message: "Product deleted successfully", Product: product})
}
