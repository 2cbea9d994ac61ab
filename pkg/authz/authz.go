// Package authz decides whether an actor may perform an action on a resource.
//
// Checks run in two phases. CheckClass gates the action on a resource kind
// before anything is loaded; CheckObject gates access to one concrete record.
// A failed object check on a cart or an order reports NotFound so callers
// cannot tell another account's record from a missing one.
package authz

import (
	"slices"

	"go-storefront/apps/user/model"
	"go-storefront/pkg/apperr"
)

// Actor 当前请求的调用方
type Actor struct {
	AccountID string
	Email     string
	Roles     []string
	IsStaff   bool
	VendorIDs []string
	SessionID string
}

// Anonymous 未登录调用方，可携带会话 ID
func Anonymous(sessionID string) Actor {
	return Actor{SessionID: sessionID}
}

func (a Actor) IsAnonymous() bool {
	return a.AccountID == ""
}

func (a Actor) HasRole(role string) bool {
	return slices.Contains(a.Roles, role)
}

func (a Actor) IsAdmin() bool {
	return !a.IsAnonymous() && (a.IsStaff || a.HasRole(model.RoleAdmin))
}

func (a Actor) IsVendor() bool {
	return !a.IsAnonymous() && a.HasRole(model.RoleVendor)
}

func (a Actor) OwnsVendor(vendorID string) bool {
	return vendorID != "" && slices.Contains(a.VendorIDs, vendorID)
}

type Kind string

const (
	KindProduct  Kind = "product"
	KindCategory Kind = "category"
	KindVendor   Kind = "vendor"
	KindCart     Kind = "cart"
	KindOrder    Kind = "order"
	KindAccount  Kind = "account"
)

type Action string

const (
	ActionRead   Action = "read"
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
	ActionPay    Action = "pay"
)

func (a Action) write() bool {
	return a != ActionRead
}

// Resource 对象级检查所需的归属信息
type Resource struct {
	Kind      Kind
	OwnerID   string
	SessionID string
	VendorID  string
}

type Outcome int

const (
	Allow Outcome = iota
	DenyUnauthenticated
	DenyForbidden
	DenyNotFound
)

// Decision 判定结果，拒绝时 Reason 给出原因
type Decision struct {
	Allowed bool
	Outcome Outcome
	Reason  string
}

const (
	ReasonLoginRequired  = "Authentication credentials were not provided."
	ReasonCatalogWrite   = "Only vendors can edit products. Read-only access for others."
	ReasonVendorOwner    = "Only vendors are allowed to perform this action."
	ReasonAdminOnly      = "Only administrators are allowed to perform this action."
	ReasonNoSessionOrID  = "A session or an authenticated account is required."
	ReasonHiddenResource = "Not found."
)

func allow() Decision { return Decision{Allowed: true, Outcome: Allow} }

func deny(o Outcome, reason string) Decision {
	return Decision{Outcome: o, Reason: reason}
}

// Err 把拒绝结果转换为 apperr，允许时返回 nil
func (d Decision) Err() error {
	switch d.Outcome {
	case Allow:
		return nil
	case DenyUnauthenticated:
		return apperr.Unauthorized(d.Reason)
	case DenyNotFound:
		return apperr.NotFound()
	default:
		return apperr.Forbidden(d.Reason)
	}
}

// CheckClass 类级别检查：调用方能否对这一类资源执行该操作
func CheckClass(a Actor, kind Kind, action Action) Decision {
	switch kind {
	case KindProduct, KindCategory:
		if !action.write() {
			return allow()
		}
		if a.IsAnonymous() {
			return deny(DenyUnauthenticated, ReasonLoginRequired)
		}
		if a.IsAdmin() || a.IsVendor() {
			return allow()
		}
		return deny(DenyForbidden, ReasonCatalogWrite)

	case KindVendor:
		if !action.write() {
			return allow()
		}
		if a.IsAnonymous() {
			return deny(DenyUnauthenticated, ReasonLoginRequired)
		}
		if a.IsAdmin() {
			return allow()
		}
		return deny(DenyForbidden, ReasonAdminOnly)

	case KindCart:
		// 匿名购物车靠会话识别
		if a.IsAnonymous() && a.SessionID == "" {
			return deny(DenyUnauthenticated, ReasonNoSessionOrID)
		}
		return allow()

	case KindOrder:
		if a.IsAnonymous() {
			return deny(DenyUnauthenticated, ReasonLoginRequired)
		}
		return allow()

	case KindAccount:
		if a.IsAnonymous() {
			return deny(DenyUnauthenticated, ReasonLoginRequired)
		}
		if a.IsAdmin() {
			return allow()
		}
		return deny(DenyForbidden, ReasonAdminOnly)
	}
	return deny(DenyForbidden, "")
}

// CheckObject 对象级检查：调用方能否访问这一条记录
// 管理员跳过所有对象级检查
func CheckObject(a Actor, r Resource, action Action) Decision {
	if a.IsAdmin() {
		return allow()
	}
	switch r.Kind {
	case KindProduct:
		if !action.write() {
			return allow()
		}
		if a.OwnsVendor(r.VendorID) {
			return allow()
		}
		return deny(DenyForbidden, ReasonVendorOwner)

	case KindCategory, KindVendor:
		return allow()

	case KindCart:
		if r.OwnerID != "" {
			if a.AccountID == r.OwnerID {
				return allow()
			}
			return deny(DenyNotFound, ReasonHiddenResource)
		}
		if r.SessionID != "" && a.SessionID == r.SessionID {
			return allow()
		}
		return deny(DenyNotFound, ReasonHiddenResource)

	case KindOrder:
		if !a.IsAnonymous() && a.AccountID == r.OwnerID {
			return allow()
		}
		return deny(DenyNotFound, ReasonHiddenResource)
	}
	return deny(DenyForbidden, "")
}

// Authorize 依次执行类级别和对象级检查
func Authorize(a Actor, r Resource, action Action) error {
	if err := CheckClass(a, r.Kind, action).Err(); err != nil {
		return err
	}
	return CheckObject(a, r, action).Err()
}
