// Package service manages shopping carts. Carts belong either to an account
// or to an anonymous session; items carry the price seen when they were added.
package service

import (
	"context"
	"errors"
	"time"

	"go-storefront/apps/cart/model"
	"go-storefront/pkg/apperr"
	"go-storefront/pkg/authz"
	"go-storefront/pkg/store"
	"go-storefront/pkg/validation"

	"go.uber.org/zap"
)

type Service struct {
	store store.Store
	log   *zap.Logger
	now   func() time.Time
}

func New(s store.Store, log *zap.Logger) *Service {
	return &Service{store: s, log: log.Named("cart"), now: time.Now}
}

type ItemInput struct {
	VariantID string `json:"variant_id"`
	Quantity  int    `json:"quantity"`
}

func cartResource(c *model.Cart) authz.Resource {
	return authz.Resource{Kind: authz.KindCart, OwnerID: c.AccountID, SessionID: c.SessionID}
}

// CreateCart 登录用户的购物车归属账号，否则归属会话
func (s *Service) CreateCart(ctx context.Context, actor authz.Actor) (*model.Cart, error) {
	if err := authz.CheckClass(actor, authz.KindCart, authz.ActionCreate).Err(); err != nil {
		return nil, err
	}
	now := s.now()
	c := &model.Cart{CreatedAt: now, UpdatedAt: now}
	if actor.IsAnonymous() {
		c.SessionID = actor.SessionID
	} else {
		c.AccountID = actor.AccountID
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateCart(ctx, c); err != nil {
		return nil, err
	}
	c.Items = []model.CartItem{}
	return c, nil
}

func (s *Service) GetCart(ctx context.Context, actor authz.Actor, id string) (*model.Cart, error) {
	return s.load(ctx, actor, id, authz.ActionRead)
}

func (s *Service) load(ctx context.Context, actor authz.Actor, id string, action authz.Action) (*model.Cart, error) {
	if err := authz.CheckClass(actor, authz.KindCart, action).Err(); err != nil {
		return nil, err
	}
	c, err := s.store.GetCart(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.CheckObject(actor, cartResource(c), action).Err(); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCarts 只返回调用方自己的购物车
func (s *Service) ListCarts(ctx context.Context, actor authz.Actor) ([]model.Cart, error) {
	if err := authz.CheckClass(actor, authz.KindCart, authz.ActionRead).Err(); err != nil {
		return nil, err
	}
	f := store.CartFilter{AccountID: actor.AccountID}
	if actor.IsAnonymous() {
		f = store.CartFilter{SessionID: actor.SessionID}
	}
	return s.store.ListCarts(ctx, f)
}

// AddItem 加入购物车并记录当前价格，同一规格合并数量
func (s *Service) AddItem(ctx context.Context, actor authz.Actor, cartID string, in ItemInput) (*model.Cart, error) {
	// 1. 购物车归属
	c, err := s.load(ctx, actor, cartID, authz.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if in.Quantity <= 0 {
		return nil, apperr.Validation("", validation.Errors{"quantity": "Ensure this value is greater than 0."})
	}

	// 2. 规格必须可售
	v, err := s.store.GetVariant(ctx, in.VariantID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, apperr.Validation("", validation.Errors{"variant_id": "Invalid variant."})
		}
		return nil, err
	}
	p, err := s.store.GetProduct(ctx, v.ProductID)
	if err != nil {
		return nil, err
	}
	if !p.IsActive {
		return nil, apperr.Validation("", validation.Errors{"variant_id": "This product is not available."})
	}

	// 3. 合并或新增
	if existing := c.FindItem(v.ID); existing != nil {
		existing.Quantity += in.Quantity
		if err := s.store.UpdateCartItem(ctx, existing); err != nil {
			return nil, err
		}
	} else {
		item := &model.CartItem{
			CartID:       c.ID,
			VariantID:    v.ID,
			Quantity:     in.Quantity,
			PriceAtAdded: v.EffectivePrice(p),
			CreatedAt:    s.now(),
		}
		if err := item.Validate(); err != nil {
			return nil, err
		}
		if err := s.store.AddCartItem(ctx, item); err != nil {
			return nil, err
		}
	}
	s.log.Debug("cart item added",
		zap.String("cart_id", c.ID),
		zap.String("variant_id", v.ID),
		zap.Int("quantity", in.Quantity))
	return s.store.GetCart(ctx, c.ID)
}

// UpdateItem 设置条目数量，价格快照不变
func (s *Service) UpdateItem(ctx context.Context, actor authz.Actor, cartID, itemID string, quantity int) (*model.Cart, error) {
	c, err := s.load(ctx, actor, cartID, authz.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if quantity <= 0 {
		return nil, apperr.Validation("", validation.Errors{"quantity": "Ensure this value is greater than 0."})
	}
	var item *model.CartItem
	for i := range c.Items {
		if c.Items[i].ID == itemID {
			item = &c.Items[i]
			break
		}
	}
	if item == nil {
		return nil, apperr.NotFound()
	}
	item.Quantity = quantity
	if err := s.store.UpdateCartItem(ctx, item); err != nil {
		return nil, err
	}
	return s.store.GetCart(ctx, c.ID)
}

func (s *Service) RemoveItem(ctx context.Context, actor authz.Actor, cartID, itemID string) (*model.Cart, error) {
	c, err := s.load(ctx, actor, cartID, authz.ActionUpdate)
	if err != nil {
		return nil, err
	}
	if err := s.store.DeleteCartItem(ctx, c.ID, itemID); err != nil {
		return nil, err
	}
	return s.store.GetCart(ctx, c.ID)
}
