// Package payment talks to the external payment provider.
package payment

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Result 渠道创建支付后的返回
type Result struct {
	ProviderPaymentID string
	PaymentURL        string
}

// Provider 支付渠道
type Provider interface {
	Name() string
	CreatePayment(ctx context.Context, orderRef string, amount decimal.Decimal) (*Result, error)
}

// SingleCurrency 只收一种币种的渠道
type SingleCurrency interface {
	Currency() string
}

// Supports 渠道能否收取该币种，未声明币种的渠道都接受
func Supports(p Provider, currency string) bool {
	sc, ok := p.(SingleCurrency)
	return !ok || strings.EqualFold(sc.Currency(), currency)
}

// Error 渠道调用失败
// Rejected 为 true 表示渠道拒绝了请求本身(4xx)，否则是渠道不可用或超时
type Error struct {
	Provider string
	Message  string
	Rejected bool
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// IsTimeout 调用是否因超时或取消结束
func IsTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled)
}

// Demo 本地演示渠道，不发起网络请求
type Demo struct {
	CheckoutBase string
}

func (Demo) Name() string { return "demo" }

func (d Demo) CreatePayment(ctx context.Context, orderRef string, amount decimal.Decimal) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, &Error{Provider: d.Name(), Message: "payment provider timed out", Err: err}
	}
	if orderRef == "" || !amount.IsPositive() {
		return nil, &Error{Provider: d.Name(), Message: "order reference and a positive amount are required", Rejected: true}
	}
	base := d.CheckoutBase
	if base == "" {
		base = "https://checkout.chapa.example/pay/"
	}
	id := uuid.NewString()
	return &Result{ProviderPaymentID: id, PaymentURL: base + id}, nil
}
