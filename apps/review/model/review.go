package model

import (
	"time"

	"go-storefront/pkg/validation"
)

// Review 商品评价，同一账号对同一商品只能评价一次
type Review struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	ProductID string    `gorm:"type:char(36);uniqueIndex:uni_product_account;not null" json:"product_id"`
	AccountID string    `gorm:"type:char(36);uniqueIndex:uni_product_account;not null" json:"account_id"`
	Rating    int       `gorm:"type:tinyint;not null" json:"rating"`
	Comment   string    `gorm:"type:text" json:"comment"`
	CreatedAt time.Time `json:"created_at"`
}

func (Review) TableName() string {
	return "reviews"
}

func (r *Review) Validate() error {
	errs := validation.Errors{}
	errs.Required("product_id", r.ProductID)
	if r.Rating < 1 || r.Rating > 5 {
		errs.Add("rating", "Rating must be between 1 and 5.")
	}
	return errs.Err()
}
