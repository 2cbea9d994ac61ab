package service

import (
	"context"
	"errors"

	"go-storefront/apps/order/model"
	"go-storefront/pkg/dbtype"
	"go-storefront/pkg/queue"
	"go-storefront/pkg/store"

	"go.uber.org/zap"
)

// ConfirmationHandler 消费 order_confirmation 消息
// 同一订单只发一次通知：先占用去重键，再以消息键作为通知的唯一引用
func (s *Service) ConfirmationHandler(dedupe queue.Deduper) queue.Handler {
	return func(ctx context.Context, msg queue.Message) (err error) {
		if msg.Type != queue.OrderConfirmation {
			s.log.Warn("unknown message type", zap.String("type", msg.Type))
			return nil
		}
		key := msg.Key()

		// 1. 去重
		claimed, err := dedupe.Claim(ctx, key)
		if err != nil {
			return err
		}
		if !claimed {
			s.metrics.Confirmation("duplicate")
			s.log.Debug("confirmation already handled", zap.String("order_id", msg.OrderID))
			return nil
		}
		defer func() {
			if err == nil {
				return
			}
			if rerr := dedupe.Release(context.WithoutCancel(ctx), key); rerr != nil {
				s.log.Error("release dedupe key failed", zap.String("key", key), zap.Error(rerr))
			}
		}()

		// 2. 查订单，已不存在的订单丢弃
		o, err := s.store.GetOrder(ctx, msg.OrderID)
		if errors.Is(err, store.ErrNotFound) {
			s.metrics.Confirmation("missing")
			s.log.Warn("confirmation for unknown order", zap.String("order_id", msg.OrderID))
			return nil
		}
		if err != nil {
			return err
		}

		// 3. 记录确认并写通知
		s.log.Info("order confirmation",
			zap.String("order_id", o.ID),
			zap.String("order_number", o.OrderNumber),
			zap.String("account_id", o.AccountID),
			zap.String("total", o.TotalAmount.StringFixed(2)))

		now := s.now()
		n := &model.Notification{
			AccountID: o.AccountID,
			Type:      model.NotificationOrderConfirmation,
			Reference: key,
			Payload: dbtype.Map{
				"order_number": o.OrderNumber,
				"total_amount": o.TotalAmount.StringFixed(2),
				"currency":     o.Currency,
			},
			SentAt:    &now,
			CreatedAt: now,
		}
		if err := s.store.CreateNotification(ctx, n); err != nil && !errors.Is(err, store.ErrDuplicate) {
			s.metrics.Confirmation("error")
			return err
		}
		s.metrics.Confirmation("sent")
		return nil
	}
}
