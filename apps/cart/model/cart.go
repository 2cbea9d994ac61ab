package model

import (
	"time"

	"go-storefront/pkg/validation"

	"github.com/shopspring/decimal"
)

// Cart 购物车，AccountID 为空时为匿名购物车，用 SessionID 识别
type Cart struct {
	ID        string     `gorm:"type:char(36);primaryKey" json:"id"`
	AccountID string     `gorm:"type:varchar(36);index" json:"account_id,omitempty"`
	SessionID string     `gorm:"type:varchar(128);index" json:"session_id,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	Items     []CartItem `gorm:"foreignKey:CartID" json:"items"`
}

func (Cart) TableName() string {
	return "carts"
}

func (c *Cart) IsAnonymous() bool {
	return c.AccountID == ""
}

func (c *Cart) Validate() error {
	errs := validation.Errors{}
	if c.AccountID == "" && c.SessionID == "" {
		errs.Add("session_id", "An anonymous cart requires a session.")
	}
	return errs.Err()
}

// Total 按加入时的快照价计算
func (c *Cart) Total() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.LineTotal())
	}
	return total
}

// FindItem 按规格查找已有条目
func (c *Cart) FindItem(variantID string) *CartItem {
	for i := range c.Items {
		if c.Items[i].VariantID == variantID {
			return &c.Items[i]
		}
	}
	return nil
}

// CartItem 购物车条目，PriceAtAdded 为加入时的价格快照
type CartItem struct {
	ID           string          `gorm:"type:char(36);primaryKey" json:"id"`
	CartID       string          `gorm:"type:char(36);index;not null" json:"cart_id"`
	VariantID    string          `gorm:"type:char(36);index;not null" json:"variant_id"`
	Quantity     int             `gorm:"not null" json:"quantity"`
	PriceAtAdded decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price_at_added"`
	CreatedAt    time.Time       `json:"created_at"`
}

func (CartItem) TableName() string {
	return "cart_items"
}

func (i *CartItem) LineTotal() decimal.Decimal {
	return i.PriceAtAdded.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

func (i *CartItem) Validate() error {
	errs := validation.Errors{}
	errs.Required("variant_id", i.VariantID)
	if i.Quantity <= 0 {
		errs.Add("quantity", "Ensure this value is greater than 0.")
	}
	if i.PriceAtAdded.IsNegative() {
		errs.Add("price_at_added", "Ensure this value is greater than or equal to 0.")
	}
	return errs.Err()
}
