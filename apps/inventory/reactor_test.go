package inventory

import (
	"context"
	"testing"

	ordermodel "go-storefront/apps/order/model"
	productmodel "go-storefront/apps/product/model"
	"go-storefront/pkg/store"
	"go-storefront/pkg/store/memstore"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func seedVariant(t *testing.T, s *memstore.Store, qty, threshold int) string {
	t.Helper()
	p := &productmodel.Product{
		Name: "Kettle", Slug: "kettle", Currency: "USD", Price: decimal.RequireFromString("20.00"),
		Variants: []productmodel.Variant{{SKU: "kettle-1", Inventory: &productmodel.Inventory{Quantity: qty, ReorderThreshold: threshold}}},
	}
	require.NoError(t, s.CreateProduct(context.Background(), p))
	return p.Variants[0].ID
}

func TestOnOrderItemCreated(t *testing.T) {
	ctx := context.Background()

	t.Run("decrements by item quantity", func(t *testing.T) {
		s := memstore.New()
		vid := seedVariant(t, s, 5, 0)
		r := New(zap.NewNop(), nil)

		require.NoError(t, r.OnOrderItemCreated(ctx, s, ordermodel.OrderItem{ID: "i1", VariantID: vid, Quantity: 2}))
		inv, err := s.GetInventory(ctx, vid)
		require.NoError(t, err)
		assert.Equal(t, 3, inv.Quantity)
	})

	t.Run("insufficient stock leaves row untouched", func(t *testing.T) {
		s := memstore.New()
		vid := seedVariant(t, s, 1, 0)
		r := New(zap.NewNop(), nil)

		err := r.OnOrderItemCreated(ctx, s, ordermodel.OrderItem{ID: "i1", VariantID: vid, Quantity: 2})
		var stockErr *StockError
		require.ErrorAs(t, err, &stockErr)
		assert.Equal(t, vid, stockErr.VariantID)
		assert.ErrorIs(t, err, store.ErrInsufficientStock)

		inv, err := s.GetInventory(ctx, vid)
		require.NoError(t, err)
		assert.Equal(t, 1, inv.Quantity)
	})

	t.Run("unknown variant", func(t *testing.T) {
		r := New(zap.NewNop(), nil)
		err := r.OnOrderItemCreated(ctx, memstore.New(), ordermodel.OrderItem{ID: "i1", VariantID: "ghost", Quantity: 1})
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("warns at reorder threshold", func(t *testing.T) {
		s := memstore.New()
		vid := seedVariant(t, s, 5, 2)
		core, logs := observer.New(zapcore.WarnLevel)
		r := New(zap.New(core), nil)

		require.NoError(t, r.OnOrderItemCreated(ctx, s, ordermodel.OrderItem{ID: "i1", VariantID: vid, Quantity: 3}))
		assert.Equal(t, 1, logs.FilterMessage("stock below reorder threshold").Len())
	})
}

func TestRestock(t *testing.T) {
	ctx := context.Background()
	s := memstore.New()
	vid := seedVariant(t, s, 2, 0)
	r := New(zap.NewNop(), nil)

	item := ordermodel.OrderItem{ID: "i1", VariantID: vid, Quantity: 2}
	require.NoError(t, r.OnOrderItemCreated(ctx, s, item))
	require.NoError(t, r.Restock(ctx, s, item))

	inv, err := s.GetInventory(ctx, vid)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.Quantity)
}
