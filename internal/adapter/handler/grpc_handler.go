package handler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/rl1809/shop-api/internal/core/domain"
	"github.com/rl1809/shop-api/internal/core/service"
)

type GRPCHandler struct {
	orderService *service.OrderService
	logger       *slog.Logger
}

func NewGRPCHandler(orderService *service.OrderService, logger *slog.Logger) *GRPCHandler {
	return &GRPCHandler{orderService: orderService, logger: logger}
}

func (h *GRPCHandler) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*OrderReply, error) {
	order, err := h.orderService.PlaceOrder(ctx, service.PlaceOrderRequest{
		UserID:         req.User,
		ProductID:      req.ProductOrdered,
		Quantity:       req.OrderQuantity,
		IdempotencyKey: req.IdempotencyKey,
	})
	if err != nil {
		return nil, h.toStatus(err, "Error in creating order")
	}
	return &OrderReply{Order: order}, nil
}

func (h *GRPCHandler) UpdateOrder(ctx context.Context, req *UpdateOrderRequest) (*OrderReply, error) {
	order, err := h.orderService.UpdateOrder(ctx, req.OrderID, domain.OrderPatch{
		OrderQuantity: req.OrderQuantity,
		OrderDate:     req.OrderDate,
	})
	if err != nil {
		return nil, h.toStatus(err, "Error in updating order")
	}
	return &OrderReply{Order: order}, nil
}

func (h *GRPCHandler) GetOrder(ctx context.Context, req *GetOrderRequest) (*OrderDetailsReply, error) {
	if req.OrderID == "" {
		return nil, status.Error(codes.InvalidArgument, "orderId is required")
	}

	order, err := h.orderService.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, h.toStatus(err, "Error in fetching order")
	}
	return &OrderDetailsReply{Order: order}, nil
}

func (h *GRPCHandler) toStatus(err error, internalMessage string) error {
	var code codes.Code
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		code = codes.InvalidArgument
	case errors.Is(err, domain.ErrNotFound):
		code = codes.NotFound
	case errors.Is(err, domain.ErrInsufficientStock):
		code = codes.FailedPrecondition
	case errors.Is(err, domain.ErrDuplicateRequest):
		code = codes.AlreadyExists
	case errors.Is(err, domain.ErrConflict):
		code = codes.Aborted
	default:
		h.logger.Error(internalMessage, "error", err)
		return status.Error(codes.Internal, internalMessage)
	}
	return status.Error(code, domain.Message(err, internalMessage))
}

// UnaryLogger logs every unary call with its status code and latency.
func UnaryLogger(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		logger.Info("grpc request",
			"method", info.FullMethod,
			"code", status.Code(err).String(),
			"latency", time.Since(start),
		)
		return resp, err
	}
}
