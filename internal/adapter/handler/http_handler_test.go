package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/shop-api/internal/adapter/storage"
	"github.com/rl1809/shop-api/internal/core/domain"
	"github.com/rl1809/shop-api/internal/core/service"
)

func (a *testApp) do(t *testing.T, method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func messageOf(t *testing.T, w *httptest.ResponseRecorder) string {
	return decode[messageResponse](t, w).Message
}

func TestHealthCheck_EchoesRequestID(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/health", nil, requestIDHeader, "req-42")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get(requestIDHeader))

	w = app.do(t, http.MethodGet, "/health", nil)
	assert.NotEmpty(t, w.Header().Get(requestIDHeader))
}

func TestFail_WritesMessageEnvelopeAndAborts(t *testing.T) {
	h := NewHTTPHandler(nil, nil, nil, discardLogger())

	tests := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{name: "domain error", err: domain.NewError(domain.ErrNotFound, "Order not found"), status: http.StatusNotFound, message: "Order not found"},
		{name: "conflict", err: domain.NewError(domain.ErrConflict, "Duplicate order request"), status: http.StatusConflict, message: "Duplicate order request"},
		{name: "internal error", err: errors.New("connection reset by peer"), status: http.StatusInternalServerError, message: "Failed to fetch orders"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/api/orders", nil)

			h.fail(c, tt.err, "Failed to fetch orders")

			assert.True(t, c.IsAborted())
			assert.Equal(t, tt.status, w.Code)
			want, err := json.Marshal(map[string]string{"message": tt.message})
			require.NoError(t, err)
			assert.JSONEq(t, string(want), w.Body.String())
		})
	}
}

func TestUsersAPI(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/users", CreateUserHTTPRequest{Name: "alice", Email: "alice@example.com", PhoneNumber: "0123456789"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[userResponse](t, w)
	assert.Equal(t, "User is created", created.Message)
	require.NotNil(t, created.User)

	w = app.do(t, http.MethodPost, "/api/users", CreateUserHTTPRequest{Name: "bob", Email: "bob@example.com", PhoneNumber: "123"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please enter a valid 10-digit phone number", messageOf(t, w))

	w = app.do(t, http.MethodPost, "/api/users", CreateUserHTTPRequest{Name: "alice", Email: "other@example.com", PhoneNumber: "1112223333"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = app.do(t, http.MethodGet, "/api/users", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []domain.User{*created.User}, decode[[]domain.User](t, w))

	w = app.do(t, http.MethodGet, "/api/users?userId="+created.User.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, *created.User, decode[domain.User](t, w))

	w = app.do(t, http.MethodGet, "/api/users?userId=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Invalid userId", messageOf(t, w))

	w = app.do(t, http.MethodPatch, "/api/users", RenameUserHTTPRequest{UserID: created.User.ID, NewUsername: "alicia"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alicia", decode[userResponse](t, w).User.Name)

	w = app.do(t, http.MethodPatch, "/api/users", RenameUserHTTPRequest{UserID: created.User.ID})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "userId or new username are required", messageOf(t, w))

	w = app.do(t, http.MethodDelete, "/api/users?userId="+created.User.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "User is deleted successfully", messageOf(t, w))

	w = app.do(t, http.MethodGet, "/api/users?userId="+created.User.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "User not found", messageOf(t, w))

	w = app.do(t, http.MethodDelete, "/api/users", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "userId is required", messageOf(t, w))
}

func TestUsersAPI_MalformedBody(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/users", `{"name":`)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid request body", messageOf(t, w))
}

func TestProductsAPI(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodPost, "/api/products", `{"productName":"widget","category":"tools","price":2.5,"stockQuantity":4}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode[productResponse](t, w)
	assert.Equal(t, "Product created successfully", created.Message)
	require.NotNil(t, created.Product)

	w = app.do(t, http.MethodPost, "/api/products", `{"productName":"gadget","category":"tools","price":1}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "productName, category, price and stockQuantity are required", messageOf(t, w))

	// A zero stock is a value, not a missing field.
	w = app.do(t, http.MethodPost, "/api/products", `{"productName":"gadget","category":"tools","price":1,"stockQuantity":0}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, http.MethodGet, "/api/products?totalStock=true&productId="+created.Product.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	total := decode[totalStockResponse](t, w)
	assert.Equal(t, "Total stock quantity calculated successfully", total.Message)
	assert.Equal(t, int64(4), total.TotalStock)

	w = app.do(t, http.MethodGet, "/api/products?productId="+created.Product.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, *created.Product, decode[domain.Product](t, w))

	w = app.do(t, http.MethodGet, "/api/products", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]domain.Product](t, w), 2)

	w = app.do(t, http.MethodPatch, "/api/products", `{"productId":"`+created.Product.ID+`","updatedData":{"price":3.75}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	updated := decode[productResponse](t, w)
	assert.Equal(t, "Product updated successfully", updated.Message)
	assert.Equal(t, 3.75, updated.Product.Price)
	assert.Equal(t, 4, updated.Product.StockQuantity)

	w = app.do(t, http.MethodPatch, "/api/products", `{"productId":"`+created.Product.ID+`","updatedData":{"_id":"x"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "updatedData may only contain productName, category, price and stockQuantity", messageOf(t, w))

	w = app.do(t, http.MethodPatch, "/api/products", `{"productId":"`+created.Product.ID+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "productId and updatedData are required", messageOf(t, w))

	w = app.do(t, http.MethodDelete, "/api/products?productId="+created.Product.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Product deleted successfully", messageOf(t, w))

	w = app.do(t, http.MethodDelete, "/api/products?productId="+created.Product.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Product not found or delete failed", messageOf(t, w))
}

func TestProductsAPI_StoreFailureIsOpaque(t *testing.T) {
	store := storage.NewMemoryAdapter()
	h := NewHTTPHandler(nil, service.NewProductService(brokenStore{store}, store), nil, discardLogger())
	app := &testApp{store: store, router: NewRouter(h, RouterOptions{RequestTimeout: time.Second})}

	w := app.do(t, http.MethodGet, "/api/products?totalStock=true", nil)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Error in fetching product", messageOf(t, w))
	assert.NotContains(t, w.Body.String(), "connection reset")
}

func TestOrdersAPI_Lifecycle(t *testing.T) {
	app := newTestApp(t)
	u := app.user(t, "alice", "0123456789")
	p := app.product(t, "widget", 10)

	w := app.do(t, http.MethodPost, "/api/orders", PlaceOrderHTTPRequest{User: u.ID, ProductOrdered: p.ID, OrderQuantity: 4})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	placed := decode[struct {
		Message string       `json:"message"`
		Order   domain.Order `json:"order"`
	}](t, w)
	assert.Equal(t, "Order created successfully", placed.Message)
	assert.Equal(t, 6, app.stock(t, p.ID))

	w = app.do(t, http.MethodPatch, "/api/orders", `{"orderId":"`+placed.Order.ID+`","updatedData":{"orderQuantity":7}}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "Order updated successfully", messageOf(t, w))
	assert.Equal(t, 3, app.stock(t, p.ID))

	w = app.do(t, http.MethodPatch, "/api/orders", `{"orderId":"`+placed.Order.ID+`","updatedData":{"orderQuantity":2}}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 8, app.stock(t, p.ID))

	w = app.do(t, http.MethodPatch, "/api/orders", `{"orderId":"`+placed.Order.ID+`","updatedData":{"productOrdered":"x"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "updatedData may only contain orderQuantity and orderDate", messageOf(t, w))

	w = app.do(t, http.MethodPatch, "/api/orders", `{"orderId":"`+placed.Order.ID+`","updatedData":{"orderQuantity":20}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Insufficient stock for adjustment", messageOf(t, w))

	w = app.do(t, http.MethodGet, "/api/orders?orderId="+placed.Order.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	details := decode[struct {
		Message string              `json:"message"`
		Order   domain.OrderDetails `json:"order"`
	}](t, w)
	assert.Equal(t, "Order details", details.Message)
	assert.Equal(t, u, details.Order.User)
	assert.Equal(t, 2, details.Order.OrderQuantity)

	w = app.do(t, http.MethodGet, "/api/orders?userId="+u.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	byUser := decode[ordersResponse](t, w)
	assert.Equal(t, "User's orders", byUser.Message)
	assert.Len(t, byUser.Orders, 1)

	w = app.do(t, http.MethodGet, "/api/orders?product=widget", nil)
	require.Equal(t, http.StatusOK, w.Code)
	buyers := decode[buyersResponse](t, w)
	assert.Equal(t, "widget", buyers.Product)
	assert.Equal(t, []domain.User{*u}, buyers.Users)

	w = app.do(t, http.MethodGet, "/api/orders?recent=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Recent orders", messageOf(t, w))

	w = app.do(t, http.MethodDelete, "/api/products?productId="+p.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Product has existing orders and cannot be deleted", messageOf(t, w))

	w = app.do(t, http.MethodDelete, "/api/users?userId="+u.ID, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestOrdersAPI_PlaceOrderErrors(t *testing.T) {
	app := newTestApp(t)
	u := app.user(t, "alice", "0123456789")
	p := app.product(t, "widget", 2)

	tests := []struct {
		name       string
		body       any
		wantStatus int
		wantMsg    string
	}{
		{name: "insufficient stock", body: PlaceOrderHTTPRequest{User: u.ID, ProductOrdered: p.ID, OrderQuantity: 5}, wantStatus: http.StatusBadRequest, wantMsg: "Insufficient stock"},
		{name: "missing quantity", body: PlaceOrderHTTPRequest{User: u.ID, ProductOrdered: p.ID}, wantStatus: http.StatusBadRequest, wantMsg: "All fields are required"},
		{name: "unknown user", body: PlaceOrderHTTPRequest{User: p.ID, ProductOrdered: p.ID, OrderQuantity: 1}, wantStatus: http.StatusNotFound, wantMsg: "User not found"},
		{name: "malformed product", body: PlaceOrderHTTPRequest{User: u.ID, ProductOrdered: "widget", OrderQuantity: 1}, wantStatus: http.StatusBadRequest, wantMsg: "Invalid productOrdered"},
		{name: "string quantity", body: `{"user":"` + u.ID + `","productOrdered":"` + p.ID + `","orderQuantity":"1"}`, wantStatus: http.StatusBadRequest, wantMsg: "invalid request body"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(t, http.MethodPost, "/api/orders", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Equal(t, tt.wantMsg, messageOf(t, w))
		})
	}
	assert.Equal(t, 2, app.stock(t, p.ID))

	w := app.do(t, http.MethodGet, "/api/orders", nil)
	require.Equal(t, http.StatusOK, w.Code)
	all := decode[ordersResponse](t, w)
	assert.Equal(t, "All orders", all.Message)
	assert.Empty(t, all.Orders)
}

func TestOrdersAPI_IdempotencyKey(t *testing.T) {
	app := newTestApp(t)
	u := app.user(t, "alice", "0123456789")
	p := app.product(t, "widget", 5)
	body := PlaceOrderHTTPRequest{User: u.ID, ProductOrdered: p.ID, OrderQuantity: 1}

	w := app.do(t, http.MethodPost, "/api/orders", body, idempotencyKeyHeader, "checkout-1")
	require.Equal(t, http.StatusCreated, w.Code)

	w = app.do(t, http.MethodPost, "/api/orders", body, idempotencyKeyHeader, "checkout-1")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Duplicate order request", messageOf(t, w))

	w = app.do(t, http.MethodPost, "/api/orders", body, idempotencyKeyHeader, "checkout-2")
	require.Equal(t, http.StatusCreated, w.Code)

	assert.Equal(t, 3, app.stock(t, p.ID))
}

func TestOrdersAPI_NoRecentOrders(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/api/orders?recent=true", nil)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "No orders placed in the last 7 days", messageOf(t, w))
}

func TestRouter_CORSPreflight(t *testing.T) {
	h := NewHTTPHandler(nil, nil, nil, discardLogger())
	app := &testApp{router: NewRouter(h, RouterOptions{
		RequestTimeout: time.Second,
		AllowedOrigins: []string{"https://shop.example.com"},
	})}

	w := app.do(t, http.MethodOptions, "/api/orders", nil,
		"Origin", "https://shop.example.com",
		"Access-Control-Request-Method", http.MethodPost,
	)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "https://shop.example.com", w.Header().Get("Access-Control-Allow-Origin"))

	w = app.do(t, http.MethodOptions, "/api/orders", nil,
		"Origin", "https://evil.example.com",
		"Access-Control-Request-Method", http.MethodPost,
	)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
