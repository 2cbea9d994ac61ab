package service

import (
	"context"
	"errors"

	"go-storefront/apps/product/model"
	reviewmodel "go-storefront/apps/review/model"
	"go-storefront/pkg/apperr"
	"go-storefront/pkg/authz"
	"go-storefront/pkg/store"
	"go-storefront/pkg/validation"

	"go.uber.org/zap"
)

type CategoryInput struct {
	Name     string  `json:"name"`
	Slug     string  `json:"slug"`
	ParentID *string `json:"parent_id"`
}

func (s *Service) CreateCategory(ctx context.Context, actor authz.Actor, in CategoryInput) (*model.Category, error) {
	if err := authz.CheckClass(actor, authz.KindCategory, authz.ActionCreate).Err(); err != nil {
		return nil, err
	}
	c := &model.Category{Name: in.Name, Slug: in.Slug, ParentID: in.ParentID, CreatedAt: s.now()}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, c.ID, c.ParentID); err != nil {
		return nil, err
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCategory(ctx context.Context, id string) (*model.Category, error) {
	return s.store.GetCategory(ctx, id)
}

func (s *Service) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.store.ListCategories(ctx)
}

// UpdateCategory 整体替换名称、slug 和父分类
func (s *Service) UpdateCategory(ctx context.Context, actor authz.Actor, id string, in CategoryInput) (*model.Category, error) {
	if err := authz.CheckClass(actor, authz.KindCategory, authz.ActionUpdate).Err(); err != nil {
		return nil, err
	}
	c, err := s.store.GetCategory(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Name, c.Slug, c.ParentID = in.Name, in.Slug, in.ParentID
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if err := s.checkParent(ctx, c.ID, c.ParentID); err != nil {
		return nil, err
	}
	if err := s.store.UpdateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCategory 子分类上移到根，商品解除分类
func (s *Service) DeleteCategory(ctx context.Context, actor authz.Actor, id string) error {
	if err := authz.CheckClass(actor, authz.KindCategory, authz.ActionDelete).Err(); err != nil {
		return err
	}
	if err := s.store.DeleteCategory(ctx, id); err != nil {
		return err
	}
	s.log.Info("category deleted", zap.String("category_id", id), zap.String("by", actor.AccountID))
	return nil
}

// checkParent 父分类必须存在且不能成环
func (s *Service) checkParent(ctx context.Context, id string, parentID *string) error {
	if parentID == nil {
		return nil
	}
	err := model.CheckParent(id, parentID, func(cur string) (*string, error) {
		c, err := s.store.GetCategory(ctx, cur)
		if err != nil {
			return nil, err
		}
		return c.ParentID, nil
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, model.ErrCategoryCycle):
		return apperr.Validation("", validation.Errors{"parent_id": "A category cannot be nested under its own descendant."})
	case errors.Is(err, store.ErrNotFound):
		return apperr.Validation("", validation.Errors{"parent_id": "Invalid category."})
	}
	return err
}

type ReviewInput struct {
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

// CreateReview 登录用户对商品评价，每个账号每个商品一次
func (s *Service) CreateReview(ctx context.Context, actor authz.Actor, productID string, in ReviewInput) (*reviewmodel.Review, error) {
	if actor.IsAnonymous() {
		return nil, apperr.Unauthorized(authz.ReasonLoginRequired)
	}
	r := &reviewmodel.Review{
		ProductID: productID,
		AccountID: actor.AccountID,
		Rating:    in.Rating,
		Comment:   in.Comment,
		CreatedAt: s.now(),
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if err := s.store.CreateReview(ctx, r); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return nil, apperr.Conflict("You have already reviewed this product.")
		}
		return nil, err
	}
	return r, nil
}

func (s *Service) ListReviews(ctx context.Context, productID string) ([]reviewmodel.Review, error) {
	if _, err := s.store.GetProduct(ctx, productID); err != nil {
		return nil, err
	}
	return s.store.ListReviews(ctx, productID)
}
