package model

import (
	"net/mail"
	"strings"
	"time"

	"go-storefront/pkg/validation"
)

// 内置角色
const (
	RoleAdmin    = "admin"
	RoleVendor   = "vendor"
	RoleCustomer = "customer"
)

// KnownRole 是否为系统内置角色
func KnownRole(name string) bool {
	switch name {
	case RoleAdmin, RoleVendor, RoleCustomer:
		return true
	}
	return false
}

// Account 账号，只做软停用，不物理删除
type Account struct {
	ID           string    `gorm:"type:char(36);primaryKey" json:"id"`
	Email        string    `gorm:"type:varchar(254);uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"type:varchar(255);not null" json:"-"`
	FullName     string    `gorm:"type:varchar(255)" json:"full_name"`
	Phone        string    `gorm:"type:varchar(32)" json:"phone"`
	IsStaff      bool      `gorm:"not null" json:"is_staff"`
	IsActive     bool      `gorm:"not null" json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (Account) TableName() string {
	return "accounts"
}

// NormalizeEmail 邮箱统一小写
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func (a *Account) Validate() error {
	errs := validation.Errors{}
	if a.Email == "" {
		errs.Add("email", "This field is required.")
	} else if addr, err := mail.ParseAddress(a.Email); err != nil || addr.Address != a.Email {
		errs.Add("email", "Enter a valid email address.")
	}
	if a.PasswordHash == "" {
		errs.Add("password", "This field is required.")
	}
	if len(a.Phone) > 32 {
		errs.Add("phone", "Ensure this field has no more than 32 characters.")
	}
	return errs.Err()
}

// Role 角色
type Role struct {
	Name        string `gorm:"type:varchar(50);primaryKey" json:"name"`
	Description string `gorm:"type:varchar(255)" json:"description"`
}

func (Role) TableName() string {
	return "roles"
}

// UserRole 账号与角色的关联，(account_id, role_name) 唯一
type UserRole struct {
	ID        string    `gorm:"type:char(36);primaryKey" json:"id"`
	AccountID string    `gorm:"type:char(36);not null;uniqueIndex:idx_account_role" json:"account_id"`
	RoleName  string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_account_role" json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

// Address 收货/账单地址
type Address struct {
	ID            string    `gorm:"type:char(36);primaryKey" json:"id"`
	AccountID     string    `gorm:"type:char(36);index;not null" json:"account_id"`
	Label         string    `gorm:"type:varchar(50)" json:"label"`
	RecipientName string    `gorm:"type:varchar(255);not null" json:"recipient_name"`
	Street        string    `gorm:"type:varchar(255);not null" json:"street"`
	City          string    `gorm:"type:varchar(100);not null" json:"city"`
	State         string    `gorm:"type:varchar(100)" json:"state"`
	PostalCode    string    `gorm:"type:varchar(20)" json:"postal_code"`
	Country       string    `gorm:"type:varchar(100);not null" json:"country"`
	IsDefault     bool      `gorm:"not null" json:"is_default"`
	CreatedAt     time.Time `json:"created_at"`
}

func (Address) TableName() string {
	return "addresses"
}

func (a *Address) Validate() error {
	errs := validation.Errors{}
	errs.Required("recipient_name", a.RecipientName)
	errs.Required("street", a.Street)
	errs.Required("city", a.City)
	errs.Required("country", a.Country)
	return errs.Err()
}
