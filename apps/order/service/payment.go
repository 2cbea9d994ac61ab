package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go-storefront/apps/order/model"
	"go-storefront/pkg/apperr"
	"go-storefront/pkg/audit"
	"go-storefront/pkg/authz"
	"go-storefront/pkg/payment"
	"go-storefront/pkg/store"
	"go-storefront/pkg/tracer"
	"go-storefront/pkg/validation"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// PayResult 发起支付成功后返回给调用方
type PayResult struct {
	Payment    *model.Payment `json:"payment"`
	PaymentURL string         `json:"payment_url"`
}

// Pay 对待支付订单发起一次支付尝试
// 渠道失败或超时记录一条 failed 支付，订单状态不变
func (s *Service) Pay(ctx context.Context, actor authz.Actor, id string) (_ *PayResult, err error) {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "order.pay", attribute.String("order_id", id))
	defer func() {
		tracer.End(span, err)
		s.metrics.ObserveOperation("order.pay", start, err)
	}()

	// 1. 所有者或管理员，其他人看到的是 404
	o, err := s.load(ctx, actor, id, authz.ActionPay)
	if err != nil {
		return nil, err
	}
	if o.Status != model.StatusPending {
		return nil, apperr.Conflict("Only pending orders can be paid.")
	}
	if !payment.Supports(s.provider, o.Currency) {
		return nil, apperr.Conflict(fmt.Sprintf("Orders in %s cannot be paid with %s.", o.Currency, s.provider.Name()))
	}

	// 2. 调用渠道，带超时
	pctx, cancel := context.WithTimeout(ctx, s.opts.PaymentTimeout)
	res, callErr := s.provider.CreatePayment(pctx, o.OrderNumber, o.TotalAmount)
	cancel()

	attempt := &model.Payment{
		OrderID:     o.ID,
		Provider:    s.provider.Name(),
		Amount:      o.TotalAmount,
		AttemptedAt: s.now(),
	}

	// 3. 失败：落一条 failed 记录后返回上游错误
	if callErr != nil {
		appErr := providerError(callErr)
		attempt.Status = model.PaymentFailed
		attempt.FailureReason = appErr.Message
		if err := s.store.CreatePayment(ctx, attempt); err != nil {
			return nil, err
		}
		s.metrics.PaymentAttempt(string(model.PaymentFailed))
		s.recordAttempt(ctx, actor, attempt)
		s.log.Warn("payment initiation failed",
			zap.String("order_id", o.ID),
			zap.String("payment_id", attempt.ID),
			zap.Error(callErr))
		return nil, appErr
	}

	// 4. 成功：落一条 pending 记录
	attempt.Status = model.PaymentPending
	attempt.ProviderPaymentID = res.ProviderPaymentID
	attempt.PaymentURL = res.PaymentURL
	if err := s.store.CreatePayment(ctx, attempt); err != nil {
		return nil, err
	}
	s.metrics.PaymentAttempt(string(model.PaymentPending))
	s.recordAttempt(ctx, actor, attempt)
	s.log.Info("payment initiated",
		zap.String("order_id", o.ID),
		zap.String("payment_id", attempt.ID),
		zap.String("provider_payment_id", attempt.ProviderPaymentID))
	return &PayResult{Payment: attempt, PaymentURL: attempt.PaymentURL}, nil
}

// providerError 渠道拒绝请求返回 400，不可用或超时返回 502
func providerError(err error) *apperr.Error {
	if payment.IsTimeout(err) {
		return apperr.Upstream(http.StatusBadGateway, "Payment provider timed out. Please try again.", err)
	}
	var perr *payment.Error
	if errors.As(err, &perr) {
		if perr.Rejected {
			return apperr.Upstream(http.StatusBadRequest, "Payment provider rejected the request: "+perr.Message, err)
		}
		return apperr.Upstream(http.StatusBadGateway, "Payment provider is unavailable: "+perr.Message, err)
	}
	return apperr.Upstream(http.StatusBadGateway, "Payment provider is unavailable.", err)
}

func (s *Service) recordAttempt(ctx context.Context, actor authz.Actor, p *model.Payment) {
	s.audit.Record(ctx, audit.Entry{
		Service:  auditService,
		Action:   audit.ActionPaymentAttempt,
		EntityID: p.OrderID,
		ActorID:  actor.AccountID,
		Data: map[string]any{
			"payment_id": p.ID,
			"provider":   p.Provider,
			"status":     string(p.Status),
			"amount":     p.Amount.StringFixed(2),
		},
	})
}

// ListPayments 按尝试时间倒序
func (s *Service) ListPayments(ctx context.Context, actor authz.Actor, orderID string) ([]model.Payment, error) {
	if _, err := s.load(ctx, actor, orderID, authz.ActionRead); err != nil {
		return nil, err
	}
	return s.store.ListPayments(ctx, orderID)
}

// LatestPayment 最近一次支付尝试
func (s *Service) LatestPayment(ctx context.Context, actor authz.Actor, orderID string) (*model.Payment, error) {
	payments, err := s.ListPayments(ctx, actor, orderID)
	if err != nil {
		return nil, err
	}
	if len(payments) == 0 {
		return nil, apperr.NotFound()
	}
	return &payments[0], nil
}

// 渠道回调结果
const (
	ConfirmSuccess = "success"
	ConfirmFailed  = "failed"
)

type ConfirmInput struct {
	ProviderPaymentID string `json:"provider_payment_id"`
	Status            string `json:"status"`
	Reason            string `json:"reason"`
}

// ConfirmPayment 处理渠道回调，重复回调直接返回当前记录
// 成功时订单 pending -> paid，订单已不是 pending 时只记日志
func (s *Service) ConfirmPayment(ctx context.Context, in ConfirmInput) (*model.Payment, error) {
	errs := validation.Errors{}
	errs.Required("provider_payment_id", in.ProviderPaymentID)
	if in.Status != ConfirmSuccess && in.Status != ConfirmFailed {
		errs.Add("status", "Must be success or failed.")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	p, err := s.store.GetPaymentByProviderID(ctx, in.ProviderPaymentID)
	if err != nil {
		return nil, err
	}
	if p.Status != model.PaymentPending {
		return p, nil
	}

	now := s.now()
	err = s.store.Transaction(ctx, func(tx store.Store) error {
		if in.Status == ConfirmFailed {
			p.Status = model.PaymentFailed
			p.FailureReason = in.Reason
			return tx.UpdatePayment(ctx, p, model.PaymentPending)
		}
		p.Status = model.PaymentSucceeded
		p.ConfirmedAt = &now
		if err := tx.UpdatePayment(ctx, p, model.PaymentPending); err != nil {
			return err
		}
		err := tx.UpdateOrderStatus(ctx, p.OrderID, model.StatusPending, model.StatusPaid)
		if errors.Is(err, store.ErrStaleState) {
			s.log.Warn("payment confirmed for an order that is no longer pending",
				zap.String("order_id", p.OrderID),
				zap.String("payment_id", p.ID))
			return nil
		}
		return err
	})
	if errors.Is(err, store.ErrStaleState) {
		// 并发回调已先一步处理了这条支付
		s.log.Info("payment already handled by a concurrent callback",
			zap.String("payment_id", p.ID))
		return s.store.GetPaymentByProviderID(ctx, in.ProviderPaymentID)
	}
	if err != nil {
		return nil, err
	}

	s.metrics.PaymentAttempt(string(p.Status))
	s.audit.Record(ctx, audit.Entry{
		Service:  auditService,
		Action:   audit.ActionPaymentConfirm,
		EntityID: p.OrderID,
		Data: map[string]any{
			"payment_id": p.ID,
			"status":     string(p.Status),
		},
	})
	s.log.Info("payment confirmed",
		zap.String("order_id", p.OrderID),
		zap.String("payment_id", p.ID),
		zap.String("status", string(p.Status)))
	return p, nil
}
