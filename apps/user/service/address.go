package service

import (
	"context"

	"go-storefront/apps/user/model"
	"go-storefront/pkg/apperr"
	"go-storefront/pkg/authz"
	"go-storefront/pkg/store"
)

func requireLogin(actor authz.Actor) error {
	if actor.IsAnonymous() {
		return apperr.Unauthorized("")
	}
	return nil
}

// CreateAddress 首个地址自动设为默认；新地址设为默认时清除旧的默认地址
func (s *Service) CreateAddress(ctx context.Context, actor authz.Actor, in model.Address) (*model.Address, error) {
	if err := requireLogin(actor); err != nil {
		return nil, err
	}
	addr := in
	addr.ID = ""
	addr.AccountID = actor.AccountID
	addr.CreatedAt = s.now()
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	err := s.store.Transaction(ctx, func(tx store.Store) error {
		existing, err := tx.ListAddresses(ctx, actor.AccountID)
		if err != nil {
			return err
		}
		if len(existing) == 0 {
			addr.IsDefault = true
		} else if addr.IsDefault {
			if err := tx.ClearDefaultAddress(ctx, actor.AccountID); err != nil {
				return err
			}
		}
		return tx.CreateAddress(ctx, &addr)
	})
	if err != nil {
		return nil, err
	}
	return &addr, nil
}

func (s *Service) ListAddresses(ctx context.Context, actor authz.Actor) ([]model.Address, error) {
	if err := requireLogin(actor); err != nil {
		return nil, err
	}
	return s.store.ListAddresses(ctx, actor.AccountID)
}

// SetDefaultAddress 排他性更新：先清空默认，再设置指定地址
func (s *Service) SetDefaultAddress(ctx context.Context, actor authz.Actor, addressID string) (*model.Address, error) {
	if err := requireLogin(actor); err != nil {
		return nil, err
	}
	err := s.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.ClearDefaultAddress(ctx, actor.AccountID); err != nil {
			return err
		}
		return tx.SetDefaultAddress(ctx, actor.AccountID, addressID)
	})
	if err != nil {
		return nil, err
	}
	return s.store.GetAddress(ctx, addressID)
}

// OwnedAddress 下单时校验地址归属，不属于调用方时按不存在处理
func OwnedAddress(ctx context.Context, st store.AccountStore, accountID, addressID string) error {
	a, err := st.GetAddress(ctx, addressID)
	if err != nil {
		return err
	}
	if a.AccountID != accountID {
		return store.ErrNotFound
	}
	return nil
}
