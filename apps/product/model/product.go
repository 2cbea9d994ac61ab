package model

import (
	"errors"
	"time"

	"go-storefront/pkg/dbtype"
	"go-storefront/pkg/validation"

	"github.com/shopspring/decimal"
)

// ErrCategoryCycle 父分类链路上出现了自身
var ErrCategoryCycle = errors.New("category parent would create a cycle")

// Vendor 商家，OwnerID 关联到账号
type Vendor struct {
	ID           string    `gorm:"type:char(36);primaryKey" json:"id"`
	Name         string    `gorm:"type:varchar(255);not null" json:"name"`
	Slug         string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	OwnerID      string    `gorm:"type:char(36);index;not null" json:"owner_id"`
	ContactEmail string    `gorm:"type:varchar(254)" json:"contact_email"`
	CreatedAt    time.Time `json:"created_at"`
}

func (Vendor) TableName() string {
	return "vendors"
}

func (v *Vendor) Validate() error {
	errs := validation.Errors{}
	errs.Required("name", v.Name)
	errs.Slug("slug", v.Slug)
	errs.Required("owner_id", v.OwnerID)
	return errs.Err()
}

// Category 商品分类，ParentID 为空表示根节点
type Category struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(255);not null" json:"name"`
	Slug      string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	ParentID  *string   `gorm:"type:char(36);index" json:"parent_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (Category) TableName() string {
	return "categories"
}

func (c *Category) Validate() error {
	errs := validation.Errors{}
	errs.Required("name", c.Name)
	errs.Slug("slug", c.Slug)
	if c.ParentID != nil && *c.ParentID == c.ID {
		errs.Add("parent_id", "A category cannot be its own parent.")
	}
	return errs.Err()
}

// CheckParent 沿父链向上查找，确认把 categoryID 挂到 parentID 下不会成环
// parentOf 返回某个分类的父 ID
func CheckParent(categoryID string, parentID *string, parentOf func(id string) (*string, error)) error {
	seen := map[string]bool{}
	for cur := parentID; cur != nil; {
		if *cur == categoryID {
			return ErrCategoryCycle
		}
		if seen[*cur] {
			// 已存在的环，不在本次修改范围内
			return ErrCategoryCycle
		}
		seen[*cur] = true
		next, err := parentOf(*cur)
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}

// Product 商品 SPU
type Product struct {
	ID          string          `gorm:"type:char(36);primaryKey" json:"id"`
	VendorID    *string         `gorm:"type:char(36);index" json:"vendor_id"`
	CategoryID  *string         `gorm:"type:char(36);index" json:"category_id"`
	Name        string          `gorm:"type:varchar(255);not null" json:"name"`
	Slug        string          `gorm:"type:varchar(255);uniqueIndex;not null" json:"slug"`
	SKU         *string         `gorm:"column:sku;type:varchar(100);uniqueIndex" json:"sku"`
	Description string          `gorm:"type:text" json:"description"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price"`
	Currency    string          `gorm:"type:char(3);not null" json:"currency"`
	IsActive    bool            `gorm:"not null" json:"is_active"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	Variants    []Variant       `gorm:"foreignKey:ProductID" json:"variants"`
}

func (Product) TableName() string {
	return "products"
}

// Validate 校验商品及其所有规格
func (p *Product) Validate() error {
	errs := validation.Errors{}
	errs.Required("name", p.Name)
	errs.Slug("slug", p.Slug)
	if p.SKU != nil && *p.SKU == "" {
		errs.Add("sku", "This field may not be blank.")
	}
	validatePrice(errs, "price", p.Price)
	if len(p.Currency) != 3 {
		errs.Add("currency", "Use a three-letter ISO currency code.")
	}
	for i := range p.Variants {
		if err := p.Variants[i].Validate(); err != nil {
			errs.Add("variants", err.Error())
		}
	}
	return errs.Err()
}

// Purchasable 上架且至少有一个规格
func (p *Product) Purchasable() bool {
	return p.IsActive && len(p.Variants) > 0
}

// Variant 商品规格 SKU，价格为空时沿用商品价格
type Variant struct {
	ID         string           `gorm:"type:char(36);primaryKey" json:"id"`
	ProductID  string           `gorm:"type:char(36);index;not null" json:"product_id"`
	SKU        string           `gorm:"column:sku;type:varchar(100);uniqueIndex;not null" json:"sku"`
	Attributes dbtype.StringMap `gorm:"type:json" json:"attributes"`
	Price      *decimal.Decimal `gorm:"type:decimal(12,2)" json:"price"`
	CreatedAt  time.Time        `json:"created_at"`
	Inventory  *Inventory       `gorm:"foreignKey:VariantID" json:"inventory,omitempty"`
}

func (Variant) TableName() string {
	return "variants"
}

func (v *Variant) Validate() error {
	errs := validation.Errors{}
	errs.Required("sku", v.SKU)
	if v.Price != nil {
		validatePrice(errs, "price", *v.Price)
	}
	if v.Inventory != nil {
		if err := v.Inventory.Validate(); err != nil {
			errs.Add("inventory", err.Error())
		}
	}
	return errs.Err()
}

// EffectivePrice 规格价优先，否则取商品价
func (v *Variant) EffectivePrice(p *Product) decimal.Decimal {
	if v.Price != nil {
		return *v.Price
	}
	return p.Price
}

// Inventory 库存，Reserved 为商家锁定的数量，可售 = Quantity - Reserved
type Inventory struct {
	VariantID        string    `gorm:"type:char(36);primaryKey" json:"variant_id"`
	Quantity         int       `gorm:"not null" json:"quantity"`
	Reserved         int       `gorm:"not null" json:"reserved"`
	ReorderThreshold int       `gorm:"not null" json:"reorder_threshold"`
	UpdatedAt        time.Time `json:"updated_at"`
}

func (Inventory) TableName() string {
	return "inventories"
}

func (i *Inventory) Available() int {
	return i.Quantity - i.Reserved
}

// BelowThreshold 可售数量是否已到补货线
func (i *Inventory) BelowThreshold() bool {
	return i.Available() <= i.ReorderThreshold
}

func (i *Inventory) Validate() error {
	errs := validation.Errors{}
	if i.Quantity < 0 {
		errs.Add("quantity", "Ensure this value is greater than or equal to 0.")
	}
	if i.Reserved < 0 {
		errs.Add("reserved", "Ensure this value is greater than or equal to 0.")
	} else if i.Reserved > i.Quantity {
		errs.Add("reserved", "Reserved cannot exceed quantity.")
	}
	if i.ReorderThreshold < 0 {
		errs.Add("reorder_threshold", "Ensure this value is greater than or equal to 0.")
	}
	return errs.Err()
}

var maxPrice = decimal.RequireFromString("9999999999.99")

func validatePrice(errs validation.Errors, field string, price decimal.Decimal) {
	switch {
	case price.IsNegative():
		errs.Add(field, "Ensure this value is greater than or equal to 0.")
	case price.GreaterThan(maxPrice):
		errs.Add(field, "Ensure that there are no more than 12 digits in total.")
	case price.Exponent() < -2 && !price.Equal(price.Round(2)):
		errs.Add(field, "Ensure that there are no more than 2 decimal places.")
	}
}
