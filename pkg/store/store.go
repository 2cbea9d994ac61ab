// Package store defines the persistence contract shared by the MySQL and
// in-memory backends.
package store

import (
	"context"
	"errors"

	cartmodel "go-storefront/apps/cart/model"
	ordermodel "go-storefront/apps/order/model"
	productmodel "go-storefront/apps/product/model"
	reviewmodel "go-storefront/apps/review/model"
	usermodel "go-storefront/apps/user/model"
)

var (
	ErrNotFound          = errors.New("store: record not found")
	ErrDuplicate         = errors.New("store: duplicate key")
	ErrInsufficientStock = errors.New("store: insufficient stock")
	ErrStaleState        = errors.New("store: state changed concurrently")
	ErrReferenced        = errors.New("store: record is still referenced")
)

// 商品列表排序字段
var ProductOrderings = map[string]bool{
	"price": true, "-price": true, "created_at": true, "-created_at": true,
}

type ProductFilter struct {
	CategoryID string
	VendorID   string
	IsActive   *bool
	// Search 对 name/slug/sku 做包含匹配
	Search   string
	Ordering string
	Offset   int
	Limit    int
}

type OrderFilter struct {
	AccountID string
	Status    ordermodel.Status
	Offset    int
	Limit     int
}

type CartFilter struct {
	AccountID string
	SessionID string
}

// Store 持久化接口，Transaction 内的 tx 与 Store 用法一致
type Store interface {
	Transaction(ctx context.Context, fn func(tx Store) error) error

	AccountStore
	CatalogStore
	CartStore
	OrderStore
}

type AccountStore interface {
	CreateAccount(ctx context.Context, a *usermodel.Account) error
	GetAccount(ctx context.Context, id string) (*usermodel.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*usermodel.Account, error)
	UpdateAccount(ctx context.Context, a *usermodel.Account) error
	CountAccounts(ctx context.Context) (int64, error)

	// AddRole 重复分配返回 ErrDuplicate
	AddRole(ctx context.Context, r *usermodel.UserRole) error
	ListRoles(ctx context.Context, accountID string) ([]string, error)

	CreateAddress(ctx context.Context, a *usermodel.Address) error
	GetAddress(ctx context.Context, id string) (*usermodel.Address, error)
	ListAddresses(ctx context.Context, accountID string) ([]usermodel.Address, error)
	ClearDefaultAddress(ctx context.Context, accountID string) error
	// SetDefaultAddress 地址不属于该账号时返回 ErrNotFound
	SetDefaultAddress(ctx context.Context, accountID, addressID string) error
}

type CatalogStore interface {
	CreateVendor(ctx context.Context, v *productmodel.Vendor) error
	GetVendor(ctx context.Context, id string) (*productmodel.Vendor, error)
	ListVendors(ctx context.Context) ([]productmodel.Vendor, error)
	ListVendorIDsByOwner(ctx context.Context, ownerID string) ([]string, error)

	CreateCategory(ctx context.Context, c *productmodel.Category) error
	GetCategory(ctx context.Context, id string) (*productmodel.Category, error)
	ListCategories(ctx context.Context) ([]productmodel.Category, error)
	UpdateCategory(ctx context.Context, c *productmodel.Category) error
	// DeleteCategory 子分类与商品的分类引用置空
	DeleteCategory(ctx context.Context, id string) error

	// CreateProduct 连同规格和库存一起写入
	CreateProduct(ctx context.Context, p *productmodel.Product) error
	GetProduct(ctx context.Context, id string) (*productmodel.Product, error)
	ListProducts(ctx context.Context, f ProductFilter) ([]productmodel.Product, int64, error)
	// UpdateProduct 只更新商品自身字段
	UpdateProduct(ctx context.Context, p *productmodel.Product) error
	// DeleteProduct 已被订单引用时返回 ErrReferenced
	DeleteProduct(ctx context.Context, id string) error

	CreateVariant(ctx context.Context, v *productmodel.Variant) error
	GetVariant(ctx context.Context, id string) (*productmodel.Variant, error)
	GetInventory(ctx context.Context, variantID string) (*productmodel.Inventory, error)
	// UpdateInventory 在行锁内读取库存并交给 fn 修改，fn 返回错误时不写回
	UpdateInventory(ctx context.Context, variantID string, fn func(inv *productmodel.Inventory) error) (*productmodel.Inventory, error)
	// DecrementStock 可售数量足够时原子扣减，否则返回 ErrInsufficientStock
	DecrementStock(ctx context.Context, variantID string, qty int) error
	IncrementStock(ctx context.Context, variantID string, qty int) error

	CreateReview(ctx context.Context, r *reviewmodel.Review) error
	ListReviews(ctx context.Context, productID string) ([]reviewmodel.Review, error)
}

type CartStore interface {
	CreateCart(ctx context.Context, c *cartmodel.Cart) error
	GetCart(ctx context.Context, id string) (*cartmodel.Cart, error)
	ListCarts(ctx context.Context, f CartFilter) ([]cartmodel.Cart, error)
	AddCartItem(ctx context.Context, item *cartmodel.CartItem) error
	UpdateCartItem(ctx context.Context, item *cartmodel.CartItem) error
	DeleteCartItem(ctx context.Context, cartID, itemID string) error
	// ClearCart 返回删除的明细条数
	ClearCart(ctx context.Context, cartID string) (int64, error)
}

type OrderStore interface {
	// CreateOrder 连同明细写入，订单号重复返回 ErrDuplicate
	CreateOrder(ctx context.Context, o *ordermodel.Order) error
	GetOrder(ctx context.Context, id string) (*ordermodel.Order, error)
	ListOrders(ctx context.Context, f OrderFilter) ([]ordermodel.Order, int64, error)
	// UpdateOrderStatus 仅当当前状态为 from 时更新，否则返回 ErrStaleState
	UpdateOrderStatus(ctx context.Context, id string, from, to ordermodel.Status) error

	CreatePayment(ctx context.Context, p *ordermodel.Payment) error
	GetPaymentByProviderID(ctx context.Context, providerPaymentID string) (*ordermodel.Payment, error)
	// ListPayments 按尝试时间倒序
	ListPayments(ctx context.Context, orderID string) ([]ordermodel.Payment, error)
	// UpdatePayment 仅当支付记录当前状态为 from 时写入，否则返回 ErrStaleState
	UpdatePayment(ctx context.Context, p *ordermodel.Payment, from ordermodel.PaymentStatus) error

	// CreateNotification Reference 重复返回 ErrDuplicate
	CreateNotification(ctx context.Context, n *ordermodel.Notification) error
}
