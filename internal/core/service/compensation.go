package service

import (
	"context"
	"time"

	"github.com/rl1809/shop-api/internal/core/domain"
)

// rollback releases reserved stock inline. When that fails the release is
// handed to the compensation workers.
func (s *OrderService) rollback(ctx context.Context, job domain.StockCompensation) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
	defer cancel()

	job.Attempts++
	if _, err := s.ledger.ReleaseStock(ctx, job.ProductID, job.Quantity); err != nil {
		s.logger.Error("stock rollback failed, queueing compensation",
			"product_id", job.ProductID, "quantity", job.Quantity, "reason", job.Reason, "error", err)
		s.enqueueCompensation(job)
		return
	}
	s.logger.Info("rolled back stock", "product_id", job.ProductID, "quantity", job.Quantity, "reason", job.Reason)
}

func (s *OrderService) enqueueCompensation(job domain.StockCompensation) {
	s.queueMu.RLock()
	defer s.queueMu.RUnlock()

	if s.queueClosed {
		s.logger.Error("CRITICAL compensation queue closed, stock not restored",
			"product_id", job.ProductID, "quantity", job.Quantity, "reason", job.Reason)
		return
	}
	select {
	case s.compensations <- job:
	default:
		s.logger.Error("CRITICAL compensation queue full, stock not restored",
			"product_id", job.ProductID, "quantity", job.Quantity, "reason", job.Reason)
	}
}

// Compensations exposes the pending stock releases.
func (s *OrderService) Compensations() <-chan domain.StockCompensation {
	return s.compensations
}

// RunCompensator drains the compensation queue until it is closed, retrying
// each release with a linear backoff. Cancelling ctx abandons in-flight retries.
func (s *OrderService) RunCompensator(ctx context.Context, id int) {
	for job := range s.compensations {
		s.compensate(ctx, id, job)
	}
}

func (s *OrderService) compensate(ctx context.Context, id int, job domain.StockCompensation) {
	for job.Attempts < s.maxAttempts {
		select {
		case <-ctx.Done():
			s.logger.Error("CRITICAL compensation abandoned",
				"worker", id, "product_id", job.ProductID, "quantity", job.Quantity, "error", ctx.Err())
			return
		case <-time.After(s.backoff * time.Duration(job.Attempts)):
		}

		job.Attempts++
		attemptCtx, cancel := context.WithTimeout(ctx, rollbackTimeout)
		_, err := s.ledger.ReleaseStock(attemptCtx, job.ProductID, job.Quantity)
		cancel()

		if err == nil {
			s.logger.Info("compensation applied",
				"worker", id, "product_id", job.ProductID, "quantity", job.Quantity, "attempts", job.Attempts)
			return
		}
		if isDomainError(err) {
			// Product deleted or quantity invalid: retrying cannot help.
			s.logger.Error("CRITICAL compensation rejected",
				"worker", id, "product_id", job.ProductID, "quantity", job.Quantity, "error", err)
			return
		}
		s.logger.Warn("compensation attempt failed",
			"worker", id, "product_id", job.ProductID, "attempt", job.Attempts, "error", err)
	}

	s.logger.Error("CRITICAL compensation exhausted retries",
		"worker", id, "product_id", job.ProductID, "quantity", job.Quantity, "reason", job.Reason)
}

// Close stops accepting compensations and lets the workers drain what is
// queued. Releases that fail after Close are logged and dropped. Close is safe
// to call more than once.
func (s *OrderService) Close() {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()

	if s.queueClosed {
		return
	}
	s.queueClosed = true
	close(s.compensations)
}
