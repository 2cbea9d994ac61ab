package gormstore

import (
	"context"

	cartmodel "go-storefront/apps/cart/model"
	ordermodel "go-storefront/apps/order/model"
	"go-storefront/pkg/store"

	"gorm.io/gorm"
)

// ---- carts ----

func (s *Store) CreateCart(ctx context.Context, c *cartmodel.Cart) error {
	ensureID(&c.ID)
	return translate(s.db.WithContext(ctx).Omit("Items").Create(c).Error)
}

func (s *Store) GetCart(ctx context.Context, id string) (*cartmodel.Cart, error) {
	var c cartmodel.Cart
	err := s.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("cart_items.created_at, cart_items.id")
	}).First(&c, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &c, nil
}

func (s *Store) ListCarts(ctx context.Context, f store.CartFilter) ([]cartmodel.Cart, error) {
	query := s.db.WithContext(ctx).Preload("Items")
	if f.AccountID != "" {
		query = query.Where("account_id = ?", f.AccountID)
	}
	if f.SessionID != "" {
		query = query.Where("session_id = ?", f.SessionID)
	}
	var out []cartmodel.Cart
	err := query.Order("created_at DESC").Find(&out).Error
	return out, translate(err)
}

func (s *Store) AddCartItem(ctx context.Context, item *cartmodel.CartItem) error {
	if err := s.exists(ctx, &cartmodel.Cart{}, "id = ?", item.CartID); err != nil {
		return err
	}
	ensureID(&item.ID)
	return translate(s.db.WithContext(ctx).Create(item).Error)
}

func (s *Store) UpdateCartItem(ctx context.Context, item *cartmodel.CartItem) error {
	res := s.db.WithContext(ctx).Model(&cartmodel.CartItem{}).
		Where("id = ? AND cart_id = ?", item.ID, item.CartID).
		Updates(map[string]any{"quantity": item.Quantity, "price_at_added": item.PriceAtAdded})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return s.exists(ctx, &cartmodel.CartItem{}, "id = ? AND cart_id = ?", item.ID, item.CartID)
	}
	return nil
}

func (s *Store) DeleteCartItem(ctx context.Context, cartID, itemID string) error {
	res := s.db.WithContext(ctx).Where("id = ? AND cart_id = ?", itemID, cartID).Delete(&cartmodel.CartItem{})
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ClearCart(ctx context.Context, cartID string) (int64, error) {
	res := s.db.WithContext(ctx).Where("cart_id = ?", cartID).Delete(&cartmodel.CartItem{})
	if res.Error != nil {
		return 0, translate(res.Error)
	}
	return res.RowsAffected, nil
}

// ---- orders ----

func (s *Store) CreateOrder(ctx context.Context, o *ordermodel.Order) error {
	ensureID(&o.ID)
	for i := range o.Items {
		ensureID(&o.Items[i].ID)
		o.Items[i].OrderID = o.ID
	}
	// 订单与明细一起写入
	return translate(s.db.WithContext(ctx).Create(o).Error)
}

func (s *Store) GetOrder(ctx context.Context, id string) (*ordermodel.Order, error) {
	var o ordermodel.Order
	err := s.db.WithContext(ctx).Preload("Items", func(db *gorm.DB) *gorm.DB {
		return db.Order("order_items.created_at, order_items.id")
	}).First(&o, "id = ?", id).Error
	if err != nil {
		return nil, translate(err)
	}
	return &o, nil
}

func (s *Store) ListOrders(ctx context.Context, f store.OrderFilter) ([]ordermodel.Order, int64, error) {
	query := s.db.WithContext(ctx).Model(&ordermodel.Order{})
	if f.AccountID != "" {
		query = query.Where("account_id = ?", f.AccountID)
	}
	if f.Status != "" {
		query = query.Where("status = ?", f.Status)
	}
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, translate(err)
	}
	query = query.Order("placed_at DESC").Order("id")
	if f.Offset > 0 {
		query = query.Offset(f.Offset)
	}
	if f.Limit > 0 {
		query = query.Limit(f.Limit)
	}
	var out []ordermodel.Order
	if err := query.Preload("Items").Find(&out).Error; err != nil {
		return nil, 0, translate(err)
	}
	return out, total, nil
}

// UpdateOrderStatus 以 status 作为比较条件，避免并发覆盖
func (s *Store) UpdateOrderStatus(ctx context.Context, id string, from, to ordermodel.Status) error {
	res := s.db.WithContext(ctx).Model(&ordermodel.Order{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if err := s.exists(ctx, &ordermodel.Order{}, "id = ?", id); err != nil {
			return err
		}
		return store.ErrStaleState
	}
	return nil
}

func (s *Store) CreatePayment(ctx context.Context, p *ordermodel.Payment) error {
	if err := s.exists(ctx, &ordermodel.Order{}, "id = ?", p.OrderID); err != nil {
		return err
	}
	ensureID(&p.ID)
	return translate(s.db.WithContext(ctx).Create(p).Error)
}

func (s *Store) GetPaymentByProviderID(ctx context.Context, providerPaymentID string) (*ordermodel.Payment, error) {
	if providerPaymentID == "" {
		return nil, store.ErrNotFound
	}
	var p ordermodel.Payment
	if err := s.db.WithContext(ctx).Where("provider_payment_id = ?", providerPaymentID).First(&p).Error; err != nil {
		return nil, translate(err)
	}
	return &p, nil
}

func (s *Store) ListPayments(ctx context.Context, orderID string) ([]ordermodel.Payment, error) {
	var out []ordermodel.Payment
	err := s.db.WithContext(ctx).Where("order_id = ?", orderID).Order("attempted_at DESC").Find(&out).Error
	return out, translate(err)
}

// UpdatePayment 以 status = from 为条件更新，并发确认时只有一方生效
func (s *Store) UpdatePayment(ctx context.Context, p *ordermodel.Payment, from ordermodel.PaymentStatus) error {
	res := s.db.WithContext(ctx).Model(p).
		Where("status = ?", from).
		Select("status", "provider_payment_id", "payment_url", "failure_reason", "confirmed_at").
		Updates(p)
	if res.Error != nil {
		return translate(res.Error)
	}
	if res.RowsAffected == 0 {
		if err := s.exists(ctx, &ordermodel.Payment{}, "id = ?", p.ID); err != nil {
			return err
		}
		return store.ErrStaleState
	}
	return nil
}

func (s *Store) CreateNotification(ctx context.Context, n *ordermodel.Notification) error {
	ensureID(&n.ID)
	return translate(s.db.WithContext(ctx).Create(n).Error)
}
