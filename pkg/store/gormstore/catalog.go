package gormstore

import (
	"context"

	cartmodel "go-storefront/apps/cart/model"
	ordermodel "go-storefront/apps/order/model"
	productmodel "go-storefront/apps/product/model"
	reviewmodel "go-storefront/apps/review/model"
	"go-storefront/pkg/store"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (s *Store) CreateVendor(ctx context.Context, v *productmodel.Vendor) error {
	ensureID(&v.ID)
	return translate(s.db.WithContext(ctx).Create(v).Error)
}

func (s *Store) GetVendor(ctx context.Context, id string) (*productmodel.Vendor, error) {
	var v productmodel.Vendor
	if err := s.db.WithContext(ctx).First(&v, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (s *Store) ListVendors(ctx context.Context) ([]productmodel.Vendor, error) {
	var out []productmodel.Vendor
	err := s.db.WithContext(ctx).Order("created_at").Find(&out).Error
	return out, translate(err)
}

func (s *Store) ListVendorIDsByOwner(ctx context.Context, ownerID string) ([]string, error) {
	var ids []string
	err := s.db.WithContext(ctx).Model(&productmodel.Vendor{}).
		Where("owner_id = ?", ownerID).Order("id").Pluck("id", &ids).Error
	return ids, translate(err)
}

func (s *Store) CreateCategory(ctx context.Context, c *productmodel.Category) error {
	ensureID(&c.ID)
	return translate(s.db.WithContext(ctx).Create(c).Error)
}

func (s *Store) GetCategory(ctx context.Context, id string) (*productmodel.Category, error) {
	var c productmodel.Category
	if err := s.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]productmodel.Category, error) {
	var out []productmodel.Category
	err := s.db.WithContext(ctx).Order("created_at").Find(&out).Error
	return out, translate(err)
}

func (s *Store) UpdateCategory(ctx context.Context, c *productmodel.Category) error {
	res := s.db.WithContext(ctx).Model(c).Select("name", "slug", "parent_id").Updates(c)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return s.exists(ctx, &productmodel.Category{}, "id = ?", c.ID)
	}
	return nil
}

func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// 1. 子分类挂到根
		if err := tx.Model(&productmodel.Category{}).Where("parent_id = ?", id).Update("parent_id", nil).Error; err != nil {
			return err
		}
		// 2. 商品解除分类
		if err := tx.Model(&productmodel.Product{}).Where("category_id = ?", id).Update("category_id", nil).Error; err != nil {
			return err
		}
		// 3. 删除分类本身
		res := tx.Where("id = ?", id).Delete(&productmodel.Category{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}))
}

func (s *Store) CreateProduct(ctx context.Context, p *productmodel.Product) error {
	ensureID(&p.ID)
	for i := range p.Variants {
		v := &p.Variants[i]
		ensureID(&v.ID)
		v.ProductID = p.ID
		if v.Inventory == nil {
			v.Inventory = &productmodel.Inventory{}
		}
		v.Inventory.VariantID = v.ID
	}
	// GORM 级联创建：Product -> Variants -> Inventory
	return translate(s.db.WithContext(ctx).Create(p).Error)
}

func (s *Store) withVariants(db *gorm.DB) *gorm.DB {
	return db.Preload("Variants", func(db *gorm.DB) *gorm.DB {
		return db.Order("variants.created_at, variants.id")
	}).Preload("Variants.Inventory")
}

func (s *Store) GetProduct(ctx context.Context, id string) (*productmodel.Product, error) {
	var p productmodel.Product
	if err := s.withVariants(s.db.WithContext(ctx)).First(&p, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

var productOrderClauses = map[string]string{
	"price":       "price ASC",
	"-price":      "price DESC",
	"created_at":  "created_at ASC",
	"-created_at": "created_at DESC",
}

func (s *Store) ListProducts(ctx context.Context, f store.ProductFilter) ([]productmodel.Product, int64, error) {
	query := s.db.WithContext(ctx).Model(&productmodel.Product{})
	if f.CategoryID != "" {
		query = query.Where("category_id = ?", f.CategoryID)
	}
	if f.VendorID != "" {
		query = query.Where("vendor_id = ?", f.VendorID)
	}
	if f.IsActive != nil {
		query = query.Where("is_active = ?", *f.IsActive)
	}
	if f.Search != "" {
		like := "%" + f.Search + "%"
		query = query.Where("name LIKE ? OR slug LIKE ? OR sku LIKE ?", like, like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}

	order, ok := productOrderClauses[f.Ordering]
	if !ok {
		order = productOrderClauses["-created_at"]
	}
	query = query.Order(order).Order("id")
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}

	var products []productmodel.Product
	if err := s.withVariants(query).Find(&products).Error; err != nil {
		return nil, 0, translate(err)
	}
	return products, total, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *productmodel.Product) error {
	res := s.db.WithContext(ctx).Model(p).Omit(clause.Associations).
		Select("vendor_id", "category_id", "name", "slug", "sku", "description", "price", "currency", "is_active", "updated_at").
		Updates(p)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return s.exists(ctx, &productmodel.Product{}, "id = ?", p.ID)
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return translate(s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		variantIDs := tx.Model(&productmodel.Variant{}).Select("id").Where("product_id = ?", id)

		// 1. 已下单的商品不能删除
		var ordered int64
		if err := tx.Model(&ordermodel.OrderItem{}).Where("variant_id IN (?)", variantIDs).Count(&ordered).Error; err != nil {
			return err
		}
		if ordered > 0 {
			return store.ErrReferenced
		}

		// 2. 清理购物车、库存、规格、评价
		if err := tx.Where("variant_id IN (?)", variantIDs).Delete(&cartmodel.CartItem{}).Error; err != nil {
			return err
		}
		if err := tx.Where("variant_id IN (?)", variantIDs).Delete(&productmodel.Inventory{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&productmodel.Variant{}).Error; err != nil {
			return err
		}
		if err := tx.Where("product_id = ?", id).Delete(&reviewmodel.Review{}).Error; err != nil {
			return err
		}

		// 3. 删除商品
		res := tx.Where("id = ?", id).Delete(&productmodel.Product{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	}))
}

func (s *Store) CreateVariant(ctx context.Context, v *productmodel.Variant) error {
	if err := s.exists(ctx, &productmodel.Product{}, "id = ?", v.ProductID); err != nil {
		return err
	}
	ensureID(&v.ID)
	if v.Inventory == nil {
		v.Inventory = &productmodel.Inventory{}
	}
	v.Inventory.VariantID = v.ID
	return translate(s.db.WithContext(ctx).Create(v).Error)
}

func (s *Store) GetVariant(ctx context.Context, id string) (*productmodel.Variant, error) {
	var v productmodel.Variant
	if err := s.db.WithContext(ctx).Preload("Inventory").First(&v, "id = ?", id).Error; err != nil {
		return nil, translate(err)
	}
	return &v, nil
}

func (s *Store) GetInventory(ctx context.Context, variantID string) (*productmodel.Inventory, error) {
	var inv productmodel.Inventory
	if err := s.db.WithContext(ctx).First(&inv, "variant_id = ?", variantID).Error; err != nil {
		return nil, translate(err)
	}
	return &inv, nil
}

// UpdateInventory 加行锁读取后在同一事务内写回
func (s *Store) UpdateInventory(ctx context.Context, variantID string, fn func(inv *productmodel.Inventory) error) (*productmodel.Inventory, error) {
	var current productmodel.Inventory
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&current, "variant_id = ?", variantID).Error; err != nil {
			return err
		}
		if err := fn(&current); err != nil {
			return err
		}
		return tx.Model(&current).
			Select("quantity", "reserved", "reorder_threshold", "updated_at").
			Updates(&current).Error
	})
	if err != nil {
		return nil, translate(err)
	}
	return &current, nil
}

// DecrementStock 单条条件 UPDATE 完成扣减，可售不足时不修改任何行
func (s *Store) DecrementStock(ctx context.Context, variantID string, qty int) error {
	res := s.db.WithContext(ctx).Model(&productmodel.Inventory{}).
		Where("variant_id = ? AND quantity - reserved >= ?", variantID, qty).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", qty))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if err := s.exists(ctx, &productmodel.Inventory{}, "variant_id = ?", variantID); err != nil {
			return err
		}
		return store.ErrInsufficientStock
	}
	return nil
}

func (s *Store) IncrementStock(ctx context.Context, variantID string, qty int) error {
	res := s.db.WithContext(ctx).Model(&productmodel.Inventory{}).
		Where("variant_id = ?", variantID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", qty))
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) CreateReview(ctx context.Context, r *reviewmodel.Review) error {
	if err := s.exists(ctx, &productmodel.Product{}, "id = ?", r.ProductID); err != nil {
		return err
	}
	ensureID(&r.ID)
	return translate(s.db.WithContext(ctx).Create(r).Error)
}

func (s *Store) ListReviews(ctx context.Context, productID string) ([]reviewmodel.Review, error) {
	var out []reviewmodel.Review
	err := s.db.WithContext(ctx).Where("product_id = ?", productID).Order("created_at DESC").Find(&out).Error
	return out, translate(err)
}
