package model

import (
	"time"

	"go-storefront/pkg/dbtype"

	"github.com/shopspring/decimal"
)

// Coupon 优惠券
type Coupon struct {
	ID              string          `gorm:"type:char(36);primaryKey" json:"id"`
	Code            string          `gorm:"type:varchar(50);uniqueIndex;not null" json:"code"`
	DiscountPercent decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"discount_percent"`
	ValidFrom       time.Time       `json:"valid_from"`
	ValidTo         time.Time       `json:"valid_to"`
	IsActive        bool            `gorm:"not null" json:"is_active"`
}

func (Coupon) TableName() string {
	return "coupons"
}

// Shipment 物流信息
type Shipment struct {
	ID             string     `gorm:"type:char(36);primaryKey" json:"id"`
	OrderID        string     `gorm:"type:char(36);index;not null" json:"order_id"`
	Carrier        string     `gorm:"type:varchar(100)" json:"carrier"`
	TrackingNumber string     `gorm:"type:varchar(100)" json:"tracking_number"`
	Status         string     `gorm:"type:varchar(50)" json:"status"`
	ShippedAt      *time.Time `json:"shipped_at"`
	DeliveredAt    *time.Time `json:"delivered_at"`
}

func (Shipment) TableName() string {
	return "shipments"
}

// 通知类型
const NotificationOrderConfirmation = "order_confirmation"

// Notification 站内通知，Reference 唯一，用于消费端幂等
type Notification struct {
	ID        string     `gorm:"type:char(36);primaryKey" json:"id"`
	AccountID string     `gorm:"type:char(36);index;not null" json:"account_id"`
	Type      string     `gorm:"type:varchar(50);not null" json:"type"`
	Reference string     `gorm:"type:varchar(128);uniqueIndex;not null" json:"reference"`
	Payload   dbtype.Map `gorm:"type:json" json:"payload"`
	SentAt    *time.Time `json:"sent_at"`
	IsRead    bool       `gorm:"not null" json:"is_read"`
	CreatedAt time.Time  `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
