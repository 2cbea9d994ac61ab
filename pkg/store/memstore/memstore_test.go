package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	cartmodel "go-storefront/apps/cart/model"
	ordermodel "go-storefront/apps/order/model"
	productmodel "go-storefront/apps/product/model"
	usermodel "go-storefront/apps/user/model"
	"go-storefront/pkg/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedProduct(t *testing.T, s *Store, slug string, qty int) *productmodel.Product {
	t.Helper()
	p := &productmodel.Product{
		Name:     slug,
		Slug:     slug,
		Price:    decimal.RequireFromString("10.00"),
		Currency: "USD",
		IsActive: true,
		Variants: []productmodel.Variant{{SKU: slug + "-v", Inventory: &productmodel.Inventory{Quantity: qty}}},
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p
}

func TestCreateProductAssignsInventory(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := &productmodel.Product{Name: "A", Slug: "a", Currency: "USD", Variants: []productmodel.Variant{{SKU: "a-1"}}}
	require.NoError(t, s.CreateProduct(ctx, p))

	got, err := s.GetProduct(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, got.Variants, 1)
	require.NotNil(t, got.Variants[0].Inventory)
	assert.Equal(t, got.Variants[0].ID, got.Variants[0].Inventory.VariantID)
	assert.Equal(t, 0, got.Variants[0].Inventory.Quantity)
}

func TestUniqueConstraints(t *testing.T) {
	s := New()
	ctx := context.Background()
	seedProduct(t, s, "shirt", 1)

	dup := &productmodel.Product{Name: "B", Slug: "shirt", Currency: "USD"}
	assert.ErrorIs(t, s.CreateProduct(ctx, dup), store.ErrDuplicate)

	sameVariantSKU := &productmodel.Product{Name: "C", Slug: "c", Currency: "USD", Variants: []productmodel.Variant{{SKU: "shirt-v"}}}
	assert.ErrorIs(t, s.CreateProduct(ctx, sameVariantSKU), store.ErrDuplicate)

	require.NoError(t, s.CreateAccount(ctx, &usermodel.Account{Email: "a@example.com"}))
	assert.ErrorIs(t, s.CreateAccount(ctx, &usermodel.Account{Email: "a@example.com"}), store.ErrDuplicate)

	acc, err := s.GetAccountByEmail(ctx, "a@example.com")
	require.NoError(t, err)
	require.NoError(t, s.AddRole(ctx, &usermodel.UserRole{AccountID: acc.ID, RoleName: "vendor"}))
	assert.ErrorIs(t, s.AddRole(ctx, &usermodel.UserRole{AccountID: acc.ID, RoleName: "vendor"}), store.ErrDuplicate)
}

func TestDecrementStockIsConditional(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProduct(t, s, "mug", 5)
	vid := p.Variants[0].ID

	require.NoError(t, s.DecrementStock(ctx, vid, 2))
	assert.ErrorIs(t, s.DecrementStock(ctx, vid, 4), store.ErrInsufficientStock)

	inv, err := s.GetInventory(ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, 3, inv.Quantity)

	// 锁定数量不可售
	_, err = s.UpdateInventory(ctx, vid, func(inv *productmodel.Inventory) error {
		inv.Reserved = 2
		return nil
	})
	require.NoError(t, err)
	assert.ErrorIs(t, s.DecrementStock(ctx, vid, 2), store.ErrInsufficientStock)
	require.NoError(t, s.DecrementStock(ctx, vid, 1))

	assert.ErrorIs(t, s.DecrementStock(ctx, "missing", 1), store.ErrNotFound)
}

func TestTransactionRollsBack(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProduct(t, s, "cap", 1)
	vid := p.Variants[0].ID

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx store.Store) error {
		o := &ordermodel.Order{OrderNumber: "ORD-X", AccountID: "u1", Status: ordermodel.StatusPending,
			Items: []ordermodel.OrderItem{{VariantID: vid, Quantity: 1}}}
		require.NoError(t, tx.CreateOrder(ctx, o))
		require.NoError(t, tx.DecrementStock(ctx, vid, 1))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	inv, err := s.GetInventory(ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, 1, inv.Quantity)
	orders, total, err := s.ListOrders(ctx, store.OrderFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, orders)
}

func TestConcurrentDecrementsNeverOversell(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProduct(t, s, "lamp", 10)
	vid := p.Variants[0].ID

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sold     int
		rejected int
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.Transaction(ctx, func(tx store.Store) error {
				return tx.DecrementStock(ctx, vid, 3)
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				sold += 3
			} else {
				assert.ErrorIs(t, err, store.ErrInsufficientStock)
				rejected++
			}
		}()
	}
	wg.Wait()

	inv, err := s.GetInventory(ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, 9, sold)
	assert.Equal(t, 37, rejected)
	assert.Equal(t, 1, inv.Quantity)
	assert.GreaterOrEqual(t, inv.Quantity, 0)
}

func TestUpdateInventoryInterleavesWithDecrements(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProduct(t, s, "kettle", 100)
	vid := p.Variants[0].ID

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.DecrementStock(ctx, vid, 1))
		}()
		go func() {
			defer wg.Done()
			_, err := s.UpdateInventory(ctx, vid, func(inv *productmodel.Inventory) error {
				inv.ReorderThreshold++
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	inv, err := s.GetInventory(ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, 80, inv.Quantity)
	assert.Equal(t, 20, inv.ReorderThreshold)
}

func TestUpdateInventoryCallbackErrorLeavesRow(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProduct(t, s, "tray", 4)
	vid := p.Variants[0].ID

	boom := errors.New("boom")
	_, err := s.UpdateInventory(ctx, vid, func(inv *productmodel.Inventory) error {
		inv.Quantity = 99
		return boom
	})
	assert.ErrorIs(t, err, boom)

	inv, err := s.GetInventory(ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, 4, inv.Quantity)

	_, err = s.UpdateInventory(ctx, "missing", func(*productmodel.Inventory) error { return nil })
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestClearCartReportsDeletedItems(t *testing.T) {
	s := New()
	ctx := context.Background()
	c := &cartmodel.Cart{AccountID: "u1"}
	require.NoError(t, s.CreateCart(ctx, c))
	require.NoError(t, s.AddCartItem(ctx, &cartmodel.CartItem{CartID: c.ID, VariantID: "v1", Quantity: 1}))
	require.NoError(t, s.AddCartItem(ctx, &cartmodel.CartItem{CartID: c.ID, VariantID: "v2", Quantity: 2}))

	n, err := s.ClearCart(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.ClearCart(ctx, c.ID)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpdatePaymentCompareAndSet(t *testing.T) {
	s := New()
	ctx := context.Background()
	o := &ordermodel.Order{OrderNumber: "ORD-P", AccountID: "u1", Status: ordermodel.StatusPending}
	require.NoError(t, s.CreateOrder(ctx, o))
	p := &ordermodel.Payment{OrderID: o.ID, Status: ordermodel.PaymentPending, ProviderPaymentID: "prov-p"}
	require.NoError(t, s.CreatePayment(ctx, p))

	won := *p
	won.Status = ordermodel.PaymentSucceeded
	require.NoError(t, s.UpdatePayment(ctx, &won, ordermodel.PaymentPending))

	lost := *p
	lost.Status = ordermodel.PaymentFailed
	assert.ErrorIs(t, s.UpdatePayment(ctx, &lost, ordermodel.PaymentPending), store.ErrStaleState)

	got, err := s.GetPaymentByProviderID(ctx, "prov-p")
	require.NoError(t, err)
	assert.Equal(t, ordermodel.PaymentSucceeded, got.Status)

	ghost := &ordermodel.Payment{ID: "nope", Status: ordermodel.PaymentFailed}
	assert.ErrorIs(t, s.UpdatePayment(ctx, ghost, ordermodel.PaymentPending), store.ErrNotFound)
}

func TestUpdateOrderStatusCompareAndSet(t *testing.T) {
	s := New()
	ctx := context.Background()
	o := &ordermodel.Order{OrderNumber: "ORD-1", AccountID: "u1", Status: ordermodel.StatusPending}
	require.NoError(t, s.CreateOrder(ctx, o))
	assert.ErrorIs(t, s.CreateOrder(ctx, &ordermodel.Order{OrderNumber: "ORD-1"}), store.ErrDuplicate)

	require.NoError(t, s.UpdateOrderStatus(ctx, o.ID, ordermodel.StatusPending, ordermodel.StatusPaid))
	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, o.ID, ordermodel.StatusPending, ordermodel.StatusCancelled), store.ErrStaleState)
	assert.ErrorIs(t, s.UpdateOrderStatus(ctx, "nope", ordermodel.StatusPending, ordermodel.StatusPaid), store.ErrNotFound)
}

func TestPaymentsNewestFirst(t *testing.T) {
	s := New()
	ctx := context.Background()
	o := &ordermodel.Order{OrderNumber: "ORD-2", AccountID: "u1", Status: ordermodel.StatusPending}
	require.NoError(t, s.CreateOrder(ctx, o))

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	first := &ordermodel.Payment{OrderID: o.ID, Status: ordermodel.PaymentFailed, AttemptedAt: base}
	second := &ordermodel.Payment{OrderID: o.ID, Status: ordermodel.PaymentPending, ProviderPaymentID: "prov-2", AttemptedAt: base.Add(time.Second)}
	require.NoError(t, s.CreatePayment(ctx, first))
	require.NoError(t, s.CreatePayment(ctx, second))

	payments, err := s.ListPayments(ctx, o.ID)
	require.NoError(t, err)
	require.Len(t, payments, 2)
	assert.Equal(t, second.ID, payments[0].ID)

	got, err := s.GetPaymentByProviderID(ctx, "prov-2")
	require.NoError(t, err)
	assert.Equal(t, second.ID, got.ID)
	_, err = s.GetPaymentByProviderID(ctx, "")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestDeleteProductReferencedByOrder(t *testing.T) {
	s := New()
	ctx := context.Background()
	p := seedProduct(t, s, "bag", 3)
	require.NoError(t, s.CreateOrder(ctx, &ordermodel.Order{OrderNumber: "ORD-3", AccountID: "u1",
		Items: []ordermodel.OrderItem{{VariantID: p.Variants[0].ID, Quantity: 1}}}))

	assert.ErrorIs(t, s.DeleteProduct(ctx, p.ID), store.ErrReferenced)

	free := seedProduct(t, s, "belt", 1)
	cart := &cartmodel.Cart{AccountID: "u1"}
	require.NoError(t, s.CreateCart(ctx, cart))
	require.NoError(t, s.AddCartItem(ctx, &cartmodel.CartItem{CartID: cart.ID, VariantID: free.Variants[0].ID, Quantity: 1}))
	require.NoError(t, s.DeleteProduct(ctx, free.ID))

	got, err := s.GetCart(ctx, cart.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Items)
	_, err = s.GetVariant(ctx, free.Variants[0].ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestListProductsFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	cheap := seedProduct(t, s, "cheap-tee", 1)
	cheap.Price = decimal.RequireFromString("5.00")
	require.NoError(t, s.UpdateProduct(ctx, cheap))
	seedProduct(t, s, "fancy-tee", 1)
	hidden := seedProduct(t, s, "old-hat", 1)
	hidden.IsActive = false
	require.NoError(t, s.UpdateProduct(ctx, hidden))

	active := true
	got, total, err := s.ListProducts(ctx, store.ProductFilter{IsActive: &active, Search: "tee", Ordering: "price"})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	require.Len(t, got, 2)
	assert.Equal(t, "cheap-tee", got[0].Slug)

	got, total, err = s.ListProducts(ctx, store.ProductFilter{Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, got, 1)
}

func TestDeleteCategoryDetachesChildren(t *testing.T) {
	s := New()
	ctx := context.Background()
	root := &productmodel.Category{Name: "Root", Slug: "root"}
	require.NoError(t, s.CreateCategory(ctx, root))
	child := &productmodel.Category{Name: "Child", Slug: "child", ParentID: &root.ID}
	require.NoError(t, s.CreateCategory(ctx, child))

	require.NoError(t, s.DeleteCategory(ctx, root.ID))
	got, err := s.GetCategory(ctx, child.ID)
	require.NoError(t, err)
	assert.Nil(t, got.ParentID)
}
