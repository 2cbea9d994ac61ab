package model

import (
	"errors"
	"fmt"
	"time"

	"go-storefront/pkg/validation"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status 订单状态
type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusFulfilled Status = "fulfilled"
	StatusShipped   Status = "shipped"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// 允许的状态流转
var transitions = map[Status][]Status{
	StatusPending:   {StatusPaid, StatusCancelled, StatusFailed},
	StatusPaid:      {StatusFulfilled, StatusShipped, StatusCancelled, StatusFailed},
	StatusFulfilled: {StatusShipped, StatusCompleted},
	StatusShipped:   {StatusCompleted},
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusFulfilled, StatusShipped, StatusCompleted, StatusCancelled, StatusFailed:
		return true
	}
	return false
}

func (s Status) CanTransition(to Status) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal 没有后续状态
func (s Status) Terminal() bool {
	return len(transitions[s]) == 0
}

var ErrTotalMismatch = errors.New("order total does not match its items")

// Order 订单主表，TotalAmount 与 OrderNumber 创建后不再修改
type Order struct {
	ID                string          `gorm:"type:char(36);primaryKey" json:"id"`
	OrderNumber       string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"order_number"`
	AccountID         string          `gorm:"type:char(36);index;not null" json:"account_id"`
	TotalAmount       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_amount"`
	Currency          string          `gorm:"type:char(3);not null" json:"currency"`
	Status            Status          `gorm:"type:varchar(20);index;not null" json:"status"`
	ShippingAddressID *string         `gorm:"type:char(36)" json:"shipping_address_id"`
	BillingAddressID  *string         `gorm:"type:char(36)" json:"billing_address_id"`
	PlacedAt          time.Time       `gorm:"index" json:"placed_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
	Items             []OrderItem     `gorm:"foreignKey:OrderID" json:"items"`
}

func (Order) TableName() string {
	return "orders"
}

// OrderItem 订单明细，单价为下单时快照
type OrderItem struct {
	ID          string          `gorm:"type:char(36);primaryKey" json:"id"`
	OrderID     string          `gorm:"type:char(36);index;not null" json:"order_id"`
	VariantID   string          `gorm:"type:char(36);index;not null" json:"variant_id"`
	ProductName string          `gorm:"type:varchar(255)" json:"product_name"`
	SKU         string          `gorm:"column:sku;type:varchar(100)" json:"sku"`
	Quantity    int             `gorm:"not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price"`
	TotalPrice  decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"total_price"`
	CreatedAt   time.Time       `json:"created_at"`
}

func (OrderItem) TableName() string {
	return "order_items"
}

// Line 下单时已定价的一行
type Line struct {
	VariantID   string
	ProductName string
	SKU         string
	Quantity    int
	UnitPrice   decimal.Decimal
}

// Addresses 可选的收货/账单地址
type Addresses struct {
	Shipping *string
	Billing  *string
}

// NewOrder 根据已定价的行构建订单，计算行小计与订单总额
func NewOrder(accountID, number, currency string, lines []Line, addr Addresses, now time.Time) (*Order, error) {
	errs := validation.Errors{}
	errs.Required("account_id", accountID)
	errs.Required("order_number", number)
	if len(lines) == 0 {
		errs.Add("items", "An order needs at least one item.")
	}
	for i, l := range lines {
		field := fmt.Sprintf("items[%d]", i)
		switch {
		case l.VariantID == "":
			errs.Add(field, "variant_id is required.")
		case l.Quantity <= 0:
			errs.Add(field, "quantity must be greater than 0.")
		case l.UnitPrice.IsNegative():
			errs.Add(field, "unit price must not be negative.")
		}
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	o := &Order{
		ID:                uuid.NewString(),
		OrderNumber:       number,
		AccountID:         accountID,
		Currency:          currency,
		Status:            StatusPending,
		ShippingAddressID: addr.Shipping,
		BillingAddressID:  addr.Billing,
		PlacedAt:          now,
		UpdatedAt:         now,
	}
	total := decimal.Zero
	for _, l := range lines {
		item := OrderItem{
			ID:          uuid.NewString(),
			OrderID:     o.ID,
			VariantID:   l.VariantID,
			ProductName: l.ProductName,
			SKU:         l.SKU,
			Quantity:    l.Quantity,
			UnitPrice:   l.UnitPrice,
			TotalPrice:  l.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity))),
			CreatedAt:   now,
		}
		total = total.Add(item.TotalPrice)
		o.Items = append(o.Items, item)
	}
	o.TotalAmount = total
	return o, nil
}

// VerifyTotals 行小计 = 单价 × 数量，总额 = 行小计之和
func (o *Order) VerifyTotals() error {
	sum := decimal.Zero
	for _, item := range o.Items {
		if !item.TotalPrice.Equal(item.UnitPrice.Mul(decimal.NewFromInt(int64(item.Quantity)))) {
			return fmt.Errorf("%w: item %s", ErrTotalMismatch, item.ID)
		}
		sum = sum.Add(item.TotalPrice)
	}
	if !sum.Equal(o.TotalAmount) {
		return ErrTotalMismatch
	}
	return nil
}

// PaymentStatus 支付记录状态
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentSucceeded PaymentStatus = "succeeded"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment 一次支付尝试，一个订单可以有多条
type Payment struct {
	ID                string          `gorm:"type:char(36);primaryKey" json:"id"`
	OrderID           string          `gorm:"type:char(36);index;not null" json:"order_id"`
	Provider          string          `gorm:"type:varchar(50);not null" json:"payment_provider"`
	ProviderPaymentID string          `gorm:"type:varchar(255);index" json:"provider_payment_id"`
	PaymentURL        string          `gorm:"type:varchar(1024)" json:"payment_url,omitempty"`
	Amount            decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Status            PaymentStatus   `gorm:"type:varchar(20);not null" json:"status"`
	FailureReason     string          `gorm:"type:varchar(512)" json:"failure_reason,omitempty"`
	AttemptedAt       time.Time       `gorm:"index" json:"attempted_at"`
	ConfirmedAt       *time.Time      `json:"confirmed_at"`
}

func (Payment) TableName() string {
	return "payments"
}
