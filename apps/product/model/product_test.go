package model

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go-storefront/pkg/dbtype"
	"go-storefront/pkg/validation"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func decPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestProductJSONRoundTripKeepsDecimalPrecision(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	in := Product{
		ID:        "p-1",
		VendorID:  strPtr("v-1"),
		Name:      "Linen shirt",
		Slug:      "linen-shirt",
		SKU:       strPtr("LS-001"),
		Price:     decimal.RequireFromString("19.99"),
		Currency:  "USD",
		IsActive:  true,
		CreatedAt: created,
		UpdatedAt: created,
		Variants: []Variant{
			{
				ID:         "var-1",
				ProductID:  "p-1",
				SKU:        "LS-001-M",
				Attributes: dbtype.StringMap{"size": "M"},
				Price:      decPtr("0.10"),
				Inventory:  &Inventory{VariantID: "var-1", Quantity: 5},
			},
			{ID: "var-2", ProductID: "p-1", SKU: "LS-001-L", Price: decPtr("123456789.07")},
		},
	}

	raw, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"price":"19.99"`)

	var out Product
	require.NoError(t, json.Unmarshal(raw, &out))

	assert.True(t, in.Price.Equal(out.Price))
	assert.Equal(t, "19.99", out.Price.StringFixed(2))
	assert.Equal(t, in.Slug, out.Slug)
	assert.Equal(t, *in.SKU, *out.SKU)
	assert.Equal(t, *in.VendorID, *out.VendorID)
	assert.Nil(t, out.CategoryID)
	assert.True(t, in.CreatedAt.Equal(out.CreatedAt))
	require.Len(t, out.Variants, 2)
	assert.Equal(t, "0.1", out.Variants[0].Price.String())
	assert.Equal(t, "123456789.07", out.Variants[1].Price.String())
	assert.Equal(t, dbtype.StringMap{"size": "M"}, out.Variants[0].Attributes)
	assert.Equal(t, 5, out.Variants[0].Inventory.Quantity)
}

func TestEffectivePrice(t *testing.T) {
	p := &Product{Price: decimal.RequireFromString("10.00")}

	plain := Variant{}
	assert.Equal(t, "10", plain.EffectivePrice(p).String())

	override := Variant{Price: decPtr("7.25")}
	assert.Equal(t, "7.25", override.EffectivePrice(p).String())
}

func TestInventoryValidate(t *testing.T) {
	tests := []struct {
		name  string
		inv   Inventory
		field string
	}{
		{"ok", Inventory{Quantity: 5, Reserved: 2}, ""},
		{"negative quantity", Inventory{Quantity: -1}, "quantity"},
		{"reserved above quantity", Inventory{Quantity: 1, Reserved: 2}, "reserved"},
		{"negative reserved", Inventory{Quantity: 1, Reserved: -1}, "reserved"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.inv.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var errs validation.Errors
			require.True(t, errors.As(err, &errs))
			assert.Contains(t, errs, tt.field)
		})
	}
}

func TestInventoryAvailability(t *testing.T) {
	inv := Inventory{Quantity: 10, Reserved: 4, ReorderThreshold: 6}
	assert.Equal(t, 6, inv.Available())
	assert.True(t, inv.BelowThreshold())

	inv.Quantity = 20
	assert.False(t, inv.BelowThreshold())
}

func TestProductValidate(t *testing.T) {
	p := Product{Name: "Shirt", Slug: "Bad Slug", Price: decimal.RequireFromString("-1"), Currency: "US"}
	err := p.Validate()
	var errs validation.Errors
	require.True(t, errors.As(err, &errs))
	assert.Contains(t, errs, "slug")
	assert.Contains(t, errs, "price")
	assert.Contains(t, errs, "currency")

	p = Product{Name: "Shirt", Slug: "shirt", Price: decimal.RequireFromString("1.999"), Currency: "USD"}
	require.Error(t, p.Validate())

	p.Price = decimal.RequireFromString("1.90")
	assert.NoError(t, p.Validate())
}

func TestCheckParent(t *testing.T) {
	// root <- a <- b
	parents := map[string]*string{
		"root": nil,
		"a":    strPtr("root"),
		"b":    strPtr("a"),
	}
	parentOf := func(id string) (*string, error) { return parents[id], nil }

	assert.NoError(t, CheckParent("c", strPtr("b"), parentOf))
	assert.NoError(t, CheckParent("b", nil, parentOf))
	assert.ErrorIs(t, CheckParent("root", strPtr("b"), parentOf), ErrCategoryCycle)
	assert.ErrorIs(t, CheckParent("a", strPtr("a"), parentOf), ErrCategoryCycle)
}
