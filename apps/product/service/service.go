// Package service implements the catalog: products with their variants and
// stock, categories, vendors and reviews.
package service

import (
	"context"
	"errors"
	"time"

	"go-storefront/apps/product/model"
	usermodel "go-storefront/apps/user/model"
	"go-storefront/pkg/apperr"
	"go-storefront/pkg/authz"
	"go-storefront/pkg/store"
	"go-storefront/pkg/validation"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// 分页参数
const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

type Service struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

func New(s store.Store, log *zap.Logger) *Service {
	return &Service{store: s, log: log.Named("catalog"), now: time.Now}
}

type VariantInput struct {
	SKU              string            `json:"sku"`
	Attributes       map[string]string `json:"attributes"`
	Price            *decimal.Decimal  `json:"price"`
	Quantity         int               `json:"quantity"`
	ReorderThreshold int               `json:"reorder_threshold"`
}

type ProductInput struct {
	VendorID    *string         `json:"vendor_id"`
	CategoryID  *string         `json:"category_id"`
	Name        string          `json:"name"`
	Slug        string          `json:"slug"`
	SKU         *string         `json:"sku"`
	Description string          `json:"description"`
	Price       decimal.Decimal `json:"price"`
	Currency    string          `json:"currency"`
	IsActive    *bool           `json:"is_active"`
	Variants    []VariantInput  `json:"variants"`
}

// ProductPatch 只更新非空字段；CategoryID 传空串表示移出分类
type ProductPatch struct {
	VendorID    *string          `json:"vendor_id"`
	CategoryID  *string          `json:"category_id"`
	Name        *string          `json:"name"`
	Slug        *string          `json:"slug"`
	SKU         *string          `json:"sku"`
	Description *string          `json:"description"`
	Price       *decimal.Decimal `json:"price"`
	Currency    *string          `json:"currency"`
	IsActive    *bool            `json:"is_active"`
}

// ProductQuery 列表筛选，Page 从 1 开始
type ProductQuery struct {
	CategoryID string
	VendorID   string
	IsActive   *bool
	Search     string
	Ordering   string
	Page       int
	PageSize   int
}

func productResource(p *model.Product) authz.Resource {
	r := authz.Resource{Kind: authz.KindProduct}
	if p.VendorID != nil {
		r.VendorID = *p.VendorID
	}
	return r
}

// resolveVendor 确定新商品归属的商家
// 未指定时：商家账号只拥有一个店铺则自动使用，管理员可以不挂商家
func (s *Service) resolveVendor(ctx context.Context, actor authz.Actor, vendorID *string) (*string, error) {
	if vendorID != nil && *vendorID != "" {
		if _, err := s.store.GetVendor(ctx, *vendorID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return nil, apperr.Validation("", validation.Errors{"vendor_id": "Invalid vendor."})
			}
			return nil, err
		}
		if !actor.IsAdmin() && !actor.OwnsVendor(*vendorID) {
			return nil, apperr.Forbidden(authz.ReasonVendorOwner)
		}
		return vendorID, nil
	}
	if actor.IsAdmin() {
		return nil, nil
	}
	if len(actor.VendorIDs) == 1 {
		id := actor.VendorIDs[0]
		return &id, nil
	}
	return nil, apperr.Validation("", validation.Errors{"vendor_id": "This field is required."})
}

func (s *Service) checkCategory(ctx context.Context, categoryID *string) error {
	if categoryID == nil {
		return nil
	}
	if _, err := s.store.GetCategory(ctx, *categoryID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return apperr.Validation("", validation.Errors{"category_id": "Invalid category."})
		}
		return err
	}
	return nil
}

func (s *Service) buildVariant(in VariantInput, now time.Time) model.Variant {
	return model.Variant{
		SKU:        in.SKU,
		Attributes: in.Attributes,
		Price:      in.Price,
		CreatedAt:  now,
		Inventory: &model.Inventory{
			Quantity:         in.Quantity,
			ReorderThreshold: in.ReorderThreshold,
			UpdatedAt:        now,
		},
	}
}

// CreateProduct 创建商品；未给规格时生成一个默认规格
func (s *Service) CreateProduct(ctx context.Context, actor authz.Actor, in ProductInput) (*model.Product, error) {
	// 1. 类级别权限
	if err := authz.CheckClass(actor, authz.KindProduct, authz.ActionCreate).Err(); err != nil {
		return nil, err
	}
	// 2. 商家与分类
	vendorID, err := s.resolveVendor(ctx, actor, in.VendorID)
	if err != nil {
		return nil, err
	}
	if err := s.checkCategory(ctx, in.CategoryID); err != nil {
		return nil, err
	}

	// 3. 组装商品和规格
	now := s.now()
	p := &model.Product{
		VendorID:    vendorID,
		CategoryID:  in.CategoryID,
		Name:        in.Name,
		Slug:        in.Slug,
		SKU:         in.SKU,
		Description: in.Description,
		Price:       in.Price,
		Currency:    in.Currency,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.IsActive != nil {
		p.IsActive = *in.IsActive
	}
	variants := in.Variants
	if len(variants) == 0 {
		sku := in.Slug
		if in.SKU != nil && *in.SKU != "" {
			sku = *in.SKU
		}
		variants = []VariantInput{{SKU: sku}}
	}
	for _, v := range variants {
		p.Variants = append(p.Variants, s.buildVariant(v, now))
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	// 4. 写入
	if err := s.store.CreateProduct(ctx, p); err != nil {
		return nil, err
	}
	s.log.Info("product created",
		zap.String("product_id", p.ID),
		zap.String("by", actor.AccountID))
	return s.store.GetProduct(ctx, p.ID)
}

func (s *Service) GetProduct(ctx context.Context, actor authz.Actor, id string) (*model.Product, error) {
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(actor, productResource(p), authz.ActionRead); err != nil {
		return nil, err
	}
	return p, nil
}

// ListProducts 返回当前页和总数
func (s *Service) ListProducts(ctx context.Context, q ProductQuery) ([]model.Product, int64, error) {
	if q.Ordering != "" && !store.ProductOrderings[q.Ordering] {
		return nil, 0, apperr.Validation("", validation.Errors{"ordering": "Invalid ordering field."})
	}
	page, size := NormalizePage(q.Page, q.PageSize)
	return s.store.ListProducts(ctx, store.ProductFilter{
		CategoryID: q.CategoryID,
		VendorID:   q.VendorID,
		IsActive:   q.IsActive,
		Search:     q.Search,
		Ordering:   q.Ordering,
		Offset:     (page - 1) * size,
		Limit:      size,
	})
}

// NormalizePage 页码从 1 开始，每页默认 10 条，最多 100 条
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func (s *Service) loadWritable(ctx context.Context, actor authz.Actor, id string, action authz.Action) (*model.Product, error) {
	if err := authz.CheckClass(actor, authz.KindProduct, action).Err(); err != nil {
		return nil, err
	}
	p, err := s.store.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CheckObject(actor, productResource(p), action).Err(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, actor authz.Actor, id string, patch ProductPatch) (*model.Product, error) {
	p, err := s.loadWritable(ctx, actor, id, authz.ActionUpdate)
	if err != nil {
		return nil, err
	}

	if patch.VendorID != nil {
		vendorID, err := s.resolveVendor(ctx, actor, patch.VendorID)
		if err != nil {
			return nil, err
		}
		p.VendorID = vendorID
	}
	if patch.CategoryID != nil {
		if *patch.CategoryID == "" {
			p.CategoryID = nil
		} else {
			if err := s.checkCategory(ctx, patch.CategoryID); err != nil {
				return nil, err
			}
			p.CategoryID = patch.CategoryID
		}
	}
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Slug != nil {
		p.Slug = *patch.Slug
	}
	if patch.SKU != nil {
		p.SKU = patch.SKU
	}
	if patch.Description != nil {
		p.Description = *patch.Description
	}
	if patch.Price != nil {
		p.Price = *patch.Price
	}
	if patch.Currency != nil {
		p.Currency = *patch.Currency
	}
	if patch.IsActive != nil {
		p.IsActive = *patch.IsActive
	}
	p.UpdatedAt = s.now()
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}
	return s.store.GetProduct(ctx, p.ID)
}

// DeleteProduct 已被订单引用的商品不能删除
func (s *Service) DeleteProduct(ctx context.Context, actor authz.Actor, id string) error {
	if _, err := s.loadWritable(ctx, actor, id, authz.ActionDelete); err != nil {
		return err
	}
	if err := s.store.DeleteProduct(ctx, id); err != nil {
		if errors.Is(err, store.ErrReferenced) {
			return apperr.Conflict("This product has been ordered and cannot be deleted. Deactivate it instead.")
		}
		return err
	}
	s.log.Info("product deleted", zap.String("product_id", id), zap.String("by", actor.AccountID))
	return nil
}

func (s *Service) AddVariant(ctx context.Context, actor authz.Actor, productID string, in VariantInput) (*model.Variant, error) {
	if _, err := s.loadWritable(ctx, actor, productID, authz.ActionUpdate); err != nil {
		return nil, err
	}
	v := s.buildVariant(in, s.now())
	v.ProductID = productID
	if err := v.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateVariant(ctx, &v); err != nil {
		return nil, err
	}
	return s.store.GetVariant(ctx, v.ID)
}

// StockInput 未给的字段保持原值
type StockInput struct {
	Quantity         *int `json:"quantity"`
	Reserved         *int `json:"reserved"`
	ReorderThreshold *int `json:"reorder_threshold"`
}

// SetStock 商家或管理员直接设置库存
func (s *Service) SetStock(ctx context.Context, actor authz.Actor, variantID string, in StockInput) (*model.Inventory, error) {
	v, err := s.store.GetVariant(ctx, variantID)
	if err != nil {
		return nil, err
	}
	if _, err := s.loadWritable(ctx, actor, v.ProductID, authz.ActionUpdate); err != nil {
		return nil, err
	}

	// 读改写在库存行锁内完成
	inv, err := s.store.UpdateInventory(ctx, variantID, func(inv *model.Inventory) error {
		if in.Quantity != nil {
			inv.Quantity = *in.Quantity
		}
		if in.Reserved != nil {
			inv.Reserved = *in.Reserved
		}
		if in.ReorderThreshold != nil {
			inv.ReorderThreshold = *in.ReorderThreshold
		}
		return inv.Validate()
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("stock set",
		zap.String("variant_id", variantID),
		zap.Int("quantity", inv.Quantity),
		zap.Int("reserved", inv.Reserved))
	return inv, nil
}

// VendorInput 管理员创建商家
type VendorInput struct {
	Name         string `json:"name"`
	Slug         string `json:"slug"`
	OwnerID      string `json:"owner_id"`
	ContactEmail string `json:"contact_email"`
}

// CreateVendor 创建商家并给所有者授予 vendor 角色
func (s *Service) CreateVendor(ctx context.Context, actor authz.Actor, in VendorInput) (*model.Vendor, error) {
	if err := authz.CheckClass(actor, authz.KindVendor, authz.ActionCreate).Err(); err != nil {
		return nil, err
	}
	now := s.now()
	v := &model.Vendor{
		Name:         in.Name,
		Slug:         in.Slug,
		OwnerID:      in.OwnerID,
		ContactEmail: usermodel.NormalizeEmail(in.ContactEmail),
		CreatedAt:    now,
	}
	if err := v.Validate(); err != nil {
		return nil, err
	}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if _, err := tx.GetAccount(ctx, v.OwnerID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return apperr.Validation("", validation.Errors{"owner_id": "Invalid account."})
			}
			return err
		}
		if err := tx.CreateVendor(ctx, v); err != nil {
			return err
		}
		err := tx.AddRole(ctx, &usermodel.UserRole{AccountID: v.OwnerID, RoleName: usermodel.RoleVendor, CreatedAt: now})
		if errors.Is(err, store.ErrDuplicate) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.log.Info("vendor created", zap.String("vendor_id", v.ID), zap.String("owner_id", v.OwnerID))
	return v, nil
}

func (s *Service) ListVendors(ctx context.Context) ([]model.Vendor, error) {
	return s.store.ListVendors(ctx)
}

func (s *Service) GetVendor(ctx context.Context, id string) (*model.Vendor, error) {
	return s.store.GetVendor(ctx, id)
}
