// Package service implements account registration, token exchange, roles and
// addresses.
package service

import (
	"context"
	"errors"
	"time"

	"go-storefront/apps/user/model"
	"go-storefront/pkg/apperr"
	"go-storefront/pkg/authz"
	"go-storefront/pkg/jwt"
	"go-storefront/pkg/store"
	"go-storefront/pkg/validation"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const minPasswordLength = 8

// 登录失败统一提示，不区分账号不存在和密码错误
const msgBadCredentials = "No active account found with the given credentials."

type Options struct {
	// BcryptCost 为 0 时使用 bcrypt.DefaultCost
	BcryptCost int
}

type Service struct {
	store  store.Store
	tokens *jwt.Manager
	log    *zap.Logger
	cost   int
	now    func() time.Time
}

func New(s store.Store, tokens *jwt.Manager, log *zap.Logger, opts Options) *Service {
	cost := opts.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &Service{store: s, tokens: tokens, log: log.Named("user"), cost: cost, now: time.Now}
}

type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
	Phone    string `json:"phone"`
}

// Profile 账号及其角色
type Profile struct {
	model.Account
	Roles     []string `json:"roles"`
	VendorIDs []string `json:"vendor_ids"`
}

// Register 注册新账号并授予 customer 角色
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Profile, error) {
	errs := validation.Errors{}
	if len(in.Password) < minPasswordLength {
		errs.Add("password", "Ensure this field has at least 8 characters.")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	// 密码加密存储
	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	now := s.now()
	acc := &model.Account{
		Email:        model.NormalizeEmail(in.Email),
		PasswordHash: string(hashed),
		FullName:     in.FullName,
		Phone:        in.Phone,
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := acc.Validate(); err != nil {
		return nil, err
	}

	err = s.store.Transaction(ctx, func(tx store.Store) error {
		if err := tx.CreateAccount(ctx, acc); err != nil {
			return err
		}
		return tx.AddRole(ctx, &model.UserRole{AccountID: acc.ID, RoleName: model.RoleCustomer, CreatedAt: now})
	})
	if errors.Is(err, store.ErrDuplicate) {
		return nil, apperr.Conflict("An account with this email already exists.")
	}
	if err != nil {
		return nil, err
	}

	s.log.Info("account registered", zap.String("account_id", acc.ID))
	return &Profile{Account: *acc, Roles: []string{model.RoleCustomer}, VendorIDs: []string{}}, nil
}

// Login 校验密码并签发 token
func (s *Service) Login(ctx context.Context, email, password string) (*jwt.TokenPair, error) {
	acc, err := s.store.GetAccountByEmail(ctx, model.NormalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.Unauthorized(msgBadCredentials)
	}
	if err != nil {
		return nil, err
	}
	// 密码比对 (数据库里的 Hash vs 输入的明文)
	if bcrypt.CompareHashAndPassword([]byte(acc.PasswordHash), []byte(password)) != nil || !acc.IsActive {
		return nil, apperr.Unauthorized(msgBadCredentials)
	}

	pair, err := s.tokens.Issue(acc.ID, acc.Email)
	if err != nil {
		return nil, apperr.Internal(err)
	}
	return pair, nil
}

// Refresh 用 refresh token 换取新的 access token
func (s *Service) Refresh(ctx context.Context, refreshToken string) (string, error) {
	claims, err := s.tokens.ParseRefresh(refreshToken)
	if err != nil {
		return "", apperr.Unauthorized("Token is invalid or expired.")
	}
	acc, err := s.store.GetAccount(ctx, claims.AccountID)
	if err != nil || !acc.IsActive {
		return "", apperr.Unauthorized("Token is invalid or expired.")
	}
	access, err := s.tokens.IssueAccess(acc.ID, acc.Email)
	if err != nil {
		return "", apperr.Internal(err)
	}
	return access, nil
}

// Actor 解析 access token 得到调用方，token 为空时返回匿名调用方
func (s *Service) Actor(ctx context.Context, accessToken, sessionID string) (authz.Actor, error) {
	if accessToken == "" {
		return authz.Anonymous(sessionID), nil
	}
	claims, err := s.tokens.ParseAccess(accessToken)
	if err != nil {
		return authz.Actor{}, apperr.Unauthorized("Given token not valid for any token type.")
	}
	p, err := s.profile(ctx, claims.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		return authz.Actor{}, apperr.Unauthorized("User not found.")
	}
	if err != nil {
		return authz.Actor{}, err
	}
	if !p.IsActive {
		return authz.Actor{}, apperr.Unauthorized("User is inactive.")
	}
	return authz.Actor{
		AccountID: p.ID,
		Email:     p.Email,
		Roles:     p.Roles,
		IsStaff:   p.IsStaff,
		VendorIDs: p.VendorIDs,
		SessionID: sessionID,
	}, nil
}

// Me 当前账号信息
func (s *Service) Me(ctx context.Context, actor authz.Actor) (*Profile, error) {
	if actor.IsAnonymous() {
		return nil, apperr.Unauthorized("")
	}
	return s.profile(ctx, actor.AccountID)
}

func (s *Service) profile(ctx context.Context, accountID string) (*Profile, error) {
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	roles, err := s.store.ListRoles(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	vendorIDs, err := s.store.ListVendorIDsByOwner(ctx, acc.ID)
	if err != nil {
		return nil, err
	}
	if roles == nil {
		roles = []string{}
	}
	if vendorIDs == nil {
		vendorIDs = []string{}
	}
	return &Profile{Account: *acc, Roles: roles, VendorIDs: vendorIDs}, nil
}

// AssignRole 管理员授予角色，重复授予视为成功
func (s *Service) AssignRole(ctx context.Context, actor authz.Actor, accountID, role string) (*Profile, error) {
	if err := authz.CheckClass(actor, authz.KindAccount, authz.ActionUpdate).Err(); err != nil {
		return nil, err
	}
	if !model.KnownRole(role) {
		return nil, apperr.Validation("", validation.Errors{"role": "Unknown role."})
	}
	if _, err := s.store.GetAccount(ctx, accountID); err != nil {
		return nil, err
	}
	err := s.store.AddRole(ctx, &model.UserRole{AccountID: accountID, RoleName: role, CreatedAt: s.now()})
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return nil, err
	}
	s.log.Info("role assigned",
		zap.String("account_id", accountID),
		zap.String("role", role),
		zap.String("by", actor.AccountID))
	return s.profile(ctx, accountID)
}

// SetActive 停用或恢复账号，不做物理删除
func (s *Service) SetActive(ctx context.Context, actor authz.Actor, accountID string, active bool) (*Profile, error) {
	if err := authz.CheckClass(actor, authz.KindAccount, authz.ActionUpdate).Err(); err != nil {
		return nil, err
	}
	if accountID == actor.AccountID && !active {
		return nil, apperr.Conflict("You cannot deactivate your own account.")
	}
	acc, err := s.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	acc.IsActive = active
	acc.UpdatedAt = s.now()
	if err := s.store.UpdateAccount(ctx, acc); err != nil {
		return nil, err
	}
	return s.profile(ctx, accountID)
}

// EnsureAdmin 启动时保证存在一个管理员账号
func (s *Service) EnsureAdmin(ctx context.Context, email, password string) error {
	email = model.NormalizeEmail(email)
	acc, err := s.store.GetAccountByEmail(ctx, email)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if _, err := s.Register(ctx, RegisterInput{Email: email, Password: password, FullName: "Administrator"}); err != nil {
			return err
		}
		if acc, err = s.store.GetAccountByEmail(ctx, email); err != nil {
			return err
		}
	case err != nil:
		return err
	}

	if !acc.IsStaff {
		acc.IsStaff = true
		acc.UpdatedAt = s.now()
		if err := s.store.UpdateAccount(ctx, acc); err != nil {
			return err
		}
	}
	err = s.store.AddRole(ctx, &model.UserRole{AccountID: acc.ID, RoleName: model.RoleAdmin, CreatedAt: s.now()})
	if err != nil && !errors.Is(err, store.ErrDuplicate) {
		return err
	}
	s.log.Info("bootstrap admin ready", zap.String("account_id", acc.ID))
	return nil
}
