// Package inventory adjusts stock in response to committed order lines.
//
// The reactor runs inside the order-creation transaction: each OrderItem is
// handed to OnOrderItemCreated exactly once, right after the order rows are
// written. A line that cannot be covered by available stock fails the whole
// transaction, so stock never goes negative and nothing is oversold.
package inventory

import (
	"context"
	"errors"
	"fmt"

	ordermodel "go-storefront/apps/order/model"
	"go-storefront/pkg/metrics"
	"go-storefront/pkg/store"

	"go.uber.org/zap"
)

// StockError 某一行库存不足
type StockError struct {
	VariantID string
	Requested int
	Err       error
}

func (e *StockError) Error() string {
	return fmt.Sprintf("variant %s: cannot take %d units: %v", e.VariantID, e.Requested, e.Err)
}

func (e *StockError) Unwrap() error { return e.Err }

type Reactor struct {
	log     *zap.Logger
	metrics *metrics.Metrics
}

func New(log *zap.Logger, m *metrics.Metrics) *Reactor {
	return &Reactor{log: log.Named("inventory"), metrics: m}
}

// OnOrderItemCreated 对新写入的订单明细扣减库存，tx 必须是下单事务
func (r *Reactor) OnOrderItemCreated(ctx context.Context, tx store.Store, item ordermodel.OrderItem) error {
	if item.Quantity <= 0 {
		return fmt.Errorf("order item %s: non-positive quantity %d", item.ID, item.Quantity)
	}
	if err := tx.DecrementStock(ctx, item.VariantID, item.Quantity); err != nil {
		if errors.Is(err, store.ErrInsufficientStock) {
			r.metrics.StockConflict(item.VariantID)
			r.log.Info("stock conflict",
				zap.String("variant_id", item.VariantID),
				zap.Int("requested", item.Quantity))
			return &StockError{VariantID: item.VariantID, Requested: item.Quantity, Err: err}
		}
		return err
	}

	inv, err := tx.GetInventory(ctx, item.VariantID)
	if err != nil {
		return err
	}
	if inv.BelowThreshold() {
		r.log.Warn("stock below reorder threshold",
			zap.String("variant_id", inv.VariantID),
			zap.Int("available", inv.Available()),
			zap.Int("threshold", inv.ReorderThreshold))
	}
	return nil
}

// Restock 取消订单时归还库存
func (r *Reactor) Restock(ctx context.Context, tx store.Store, item ordermodel.OrderItem) error {
	if err := tx.IncrementStock(ctx, item.VariantID, item.Quantity); err != nil {
		return fmt.Errorf("restock variant %s: %w", item.VariantID, err)
	}
	return nil
}
