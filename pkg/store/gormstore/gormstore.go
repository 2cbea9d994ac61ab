// Package gormstore implements store.Store on MySQL through gorm.
package gormstore

import (
	"context"
	"errors"
	"fmt"

	cartmodel "go-storefront/apps/cart/model"
	ordermodel "go-storefront/apps/order/model"
	productmodel "go-storefront/apps/product/model"
	reviewmodel "go-storefront/apps/review/model"
	usermodel "go-storefront/apps/user/model"
	"go-storefront/pkg/store"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Store struct {
	db *gorm.DB
}

var _ store.Store = (*Store)(nil)

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Models 需要建表的实体，显式列出
func Models() []any {
	return []any{
		&usermodel.Account{},
		&usermodel.Role{},
		&usermodel.UserRole{},
		&usermodel.Address{},
		&productmodel.Vendor{},
		&productmodel.Category{},
		&productmodel.Product{},
		&productmodel.Variant{},
		&productmodel.Inventory{},
		&reviewmodel.Review{},
		&cartmodel.Cart{},
		&cartmodel.CartItem{},
		&ordermodel.Order{},
		&ordermodel.OrderItem{},
		&ordermodel.Payment{},
		&ordermodel.Coupon{},
		&ordermodel.Shipment{},
		&ordermodel.Notification{},
	}
}

// AutoMigrate 建表并写入内置角色
func (s *Store) AutoMigrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	roles := []usermodel.Role{
		{Name: usermodel.RoleAdmin, Description: "Full administrative access"},
		{Name: usermodel.RoleVendor, Description: "Manages products of owned vendors"},
		{Name: usermodel.RoleCustomer, Description: "Default shopper role"},
	}
	return db.Clauses(clause.OnConflict{DoNothing: true}).Create(&roles).Error
}

// translate 把 gorm 错误转换成 store 哨兵错误
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return fmt.Errorf("%w: %v", store.ErrReferenced, err)
	}
	return err
}

func ensureID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (s *Store) Transaction(ctx context.Context, fn func(tx store.Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// ---- accounts ----

func (s *Store) CreateAccount(ctx context.Context, a *usermodel.Account) error {
	ensureID(&a.ID)
	return translate(s.db.WithContext(ctx).Create(a).Error)
}

func (s *Store) GetAccount(ctx context.Context, id string) (*usermodel.Account, error) {
	var a usermodel.Account
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *Store) GetAccountByEmail(ctx context.Context, email string) (*usermodel.Account, error) {
	var a usermodel.Account
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&a).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *usermodel.Account) error {
	res := s.db.WithContext(ctx).Model(a).Select("email", "password_hash", "full_name", "phone", "is_staff", "is_active").Updates(a)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return s.exists(ctx, &usermodel.Account{}, "id = ?", a.ID)
	}
	return nil
}

func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&usermodel.Account{}).Count(&n).Error
	return n, translate(err)
}

func (s *Store) AddRole(ctx context.Context, r *usermodel.UserRole) error {
	ensureID(&r.ID)
	return translate(s.db.WithContext(ctx).Create(r).Error)
}

func (s *Store) ListRoles(ctx context.Context, accountID string) ([]string, error) {
	var roles []string
	err := s.db.WithContext(ctx).Model(&usermodel.UserRole{}).
		Where("account_id = ?", accountID).Order("role_name").Pluck("role_name", &roles).Error
	return roles, translate(err)
}

func (s *Store) CreateAddress(ctx context.Context, a *usermodel.Address) error {
	ensureID(&a.ID)
	return translate(s.db.WithContext(ctx).Create(a).Error)
}

func (s *Store) GetAddress(ctx context.Context, id string) (*usermodel.Address, error) {
	var a usermodel.Address
	if err := s.db.WithContext(ctx).First(&a, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &a, nil
}

func (s *Store) ListAddresses(ctx context.Context, accountID string) ([]usermodel.Address, error) {
	var out []usermodel.Address
	err := s.db.WithContext(ctx).Where("account_id = ?", accountID).Order("created_at").Find(&out).Error
	return out, translate(err)
}

func (s *Store) ClearDefaultAddress(ctx context.Context, accountID string) error {
	return translate(s.db.WithContext(ctx).Model(&usermodel.Address{}).
		Where("account_id = ? AND is_default = ?", accountID, true).
		Update("is_default", false).Error)
}

func (s *Store) SetDefaultAddress(ctx context.Context, accountID, addressID string) error {
	res := s.db.WithContext(ctx).Model(&usermodel.Address{}).
		Where("id = ? AND account_id = ?", addressID, accountID).
		Update("is_default", true)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return s.exists(ctx, &usermodel.Address{}, "id = ? AND account_id = ?", addressID, accountID)
	}
	return nil
}

// exists RowsAffected 为 0 时区分记录不存在和值未变化
func (s *Store) exists(ctx context.Context, model any, query string, args ...any) error {
	var n int64
	if err := s.db.WithContext(ctx).Model(model).Where(query, args...).Count(&n).Error; err != nil {
		return translate(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}
