package handler

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/shop-api/internal/core/domain"
	"github.com/rl1809/shop-api/internal/core/service"
)

const idempotencyKeyHeader = "Idempotency-Key"

type PlaceOrderHTTPRequest struct {
	User           string `json:"user"`
	ProductOrdered string `json:"productOrdered"`
	OrderQuantity  int    `json:"orderQuantity"`
}

type UpdateOrderHTTPRequest struct {
	OrderID     string          `json:"orderId"`
	UpdatedData json.RawMessage `json:"updatedData"`
}

type orderResponse struct {
	Message string `json:"message"`
	Order   any    `json:"order"`
}

type ordersResponse struct {
	Message string                `json:"message"`
	Orders  []domain.OrderDetails `json:"orders"`
}

type buyersResponse struct {
	Message string        `json:"message"`
	Product string        `json:"product"`
	Users   []domain.User `json:"users"`
}

func (h *HTTPHandler) GetOrders(c *gin.Context) {
	result, err := h.orders.QueryOrders(c.Request.Context(), service.OrderQuery{
		OrderID:     c.Query("orderId"),
		Recent:      c.Query("recent") == "true",
		UserID:      c.Query("userId"),
		ProductName: c.Query("product"),
	})
	if err != nil {
		h.fail(c, err, "Error in fetching order")
		return
	}

	switch result.Kind {
	case service.OrderQueryByID:
		c.JSON(http.StatusOK, orderResponse{Message: "Order details", Order: result.Order})
	case service.OrderQueryRecent:
		c.JSON(http.StatusOK, ordersResponse{Message: "Recent orders", Orders: result.Orders})
	case service.OrderQueryByUser:
		c.JSON(http.StatusOK, ordersResponse{Message: "User's orders", Orders: result.Orders})
	case service.OrderQueryBuyers:
		c.JSON(http.StatusOK, buyersResponse{
			Message: "Users who bought the product",
			Product: result.ProductName,
			Users:   result.Users,
		})
	default:
		c.JSON(http.StatusOK, ordersResponse{Message: "All orders", Orders: result.Orders})
	}
}

func (h *HTTPHandler) PlaceOrder(c *gin.Context) {
	var req PlaceOrderHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}

	order, err := h.orders.PlaceOrder(c.Request.Context(), service.PlaceOrderRequest{
		UserID:         req.User,
		ProductID:      req.ProductOrdered,
		Quantity:       req.OrderQuantity,
		IdempotencyKey: c.GetHeader(idempotencyKeyHeader),
	})
	if err != nil {
		h.fail(c, err, "Error in creating order")
		return
	}
	c.JSON(http.StatusCreated, orderResponse{Message: "Order created successfully", Order: order})
}

func (h *HTTPHandler) UpdateOrder(c *gin.Context) {
	var req UpdateOrderHTTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	if req.OrderID == "" || !hasValue(req.UpdatedData) {
		badRequest(c, "orderId and updatedData are required")
		return
	}

	var patch domain.OrderPatch
	if err := decodeStrict(req.UpdatedData, &patch); err != nil {
		badRequest(c, "updatedData may only contain orderQuantity and orderDate")
		return
	}

	order, err := h.orders.UpdateOrder(c.Request.Context(), req.OrderID, patch)
	if err != nil {
		h.fail(c, err, "Error in updating order")
		return
	}
	c.JSON(http.StatusOK, orderResponse{Message: "Order updated successfully", Order: order})
}
