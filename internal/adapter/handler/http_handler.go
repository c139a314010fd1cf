package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/rl1809/shop-api/internal/core/domain"
	"github.com/rl1809/shop-api/internal/core/service"
)

type HTTPHandler struct {
	users    *service.UserService
	products *service.ProductService
	orders   *service.OrderService
	logger   *slog.Logger
}

type messageResponse struct {
	Message string `json:"message"`
}

func NewHTTPHandler(
	users *service.UserService,
	products *service.ProductService,
	orders *service.OrderService,
	logger *slog.Logger,
) *HTTPHandler {
	return &HTTPHandler{
		users:    users,
		products: products,
		orders:   orders,
		logger:   logger,
	}
}

type RouterOptions struct {
	RequestTimeout time.Duration
	// AllowedOrigins enables CORS when non-empty.
	AllowedOrigins []string
}

// NewRouter builds the gin engine serving the REST API. Every request runs
// under opts.RequestTimeout.
func NewRouter(h *HTTPHandler, opts RouterOptions) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestID(), requestLogger(h.logger))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(allowOrigins(opts.AllowedOrigins))
	}
	r.Use(timeout(opts.RequestTimeout))

	r.GET("/health", h.HealthCheck)

	api := r.Group("/api")
	{
		api.GET("/users", h.GetUsers)
		api.POST("/users", h.CreateUser)
		api.PATCH("/users", h.RenameUser)
		api.DELETE("/users", h.DeleteUser)

		api.GET("/products", h.GetProducts)
		api.POST("/products", h.CreateProduct)
		api.PATCH("/products", h.UpdateProduct)
		api.DELETE("/products", h.DeleteProduct)

		api.GET("/orders", h.GetOrders)
		api.POST("/orders", h.PlaceOrder)
		api.PATCH("/orders", h.UpdateOrder)
	}

	return r
}

func (h *HTTPHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// fail writes err as a JSON error. Errors without a known kind become a 500
// carrying internalMessage only.
func (h *HTTPHandler) fail(c *gin.Context, err error, internalMessage string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error(internalMessage,
			"request_id", c.GetString(requestIDKey),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		writeError(c, status, internalMessage)
		return
	}
	writeError(c, status, domain.Message(err, internalMessage))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidInput), errors.Is(err, domain.ErrInsufficientStock):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrDuplicateRequest):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func badRequest(c *gin.Context, message string) {
	writeError(c, http.StatusBadRequest, message)
}

// writeError ends the request with the {"message": ...} envelope every error
// response shares.
func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, messageResponse{Message: message})
}

// hasValue reports whether a raw JSON field was sent with a non-null value.
func hasValue(raw json.RawMessage) bool {
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// decodeStrict decodes raw into v, rejecting fields v does not declare.
func decodeStrict(raw json.RawMessage, v any) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
