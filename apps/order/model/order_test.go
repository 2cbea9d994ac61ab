package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewOrderComputesTotals(t *testing.T) {
	now := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	lines := []Line{
		{VariantID: "v1", Quantity: 2, UnitPrice: decimal.RequireFromString("19.99")},
		{VariantID: "v2", Quantity: 3, UnitPrice: decimal.RequireFromString("0.10")},
	}

	o, err := NewOrder("u1", "ORD-1", "USD", lines, Addresses{}, now)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	require.Len(t, o.Items, 2)
	assert.Equal(t, "39.98", o.Items[0].TotalPrice.String())
	assert.Equal(t, "0.3", o.Items[1].TotalPrice.String())
	assert.Equal(t, "40.28", o.TotalAmount.String())
	for _, item := range o.Items {
		assert.Equal(t, o.ID, item.OrderID)
		assert.NotEmpty(t, item.ID)
	}
	assert.NoError(t, o.VerifyTotals())
}

func TestNewOrderRejectsBadLines(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name  string
		lines []Line
	}{
		{"empty", nil},
		{"zero quantity", []Line{{VariantID: "v1", Quantity: 0, UnitPrice: decimal.NewFromInt(1)}}},
		{"negative price", []Line{{VariantID: "v1", Quantity: 1, UnitPrice: decimal.NewFromInt(-1)}}},
		{"missing variant", []Line{{Quantity: 1, UnitPrice: decimal.NewFromInt(1)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewOrder("u1", "ORD-1", "USD", tt.lines, Addresses{}, now)
			assert.Error(t, err)
		})
	}
}

func TestVerifyTotalsDetectsTampering(t *testing.T) {
	o, err := NewOrder("u1", "ORD-1", "USD", []Line{{VariantID: "v1", Quantity: 2, UnitPrice: decimal.NewFromInt(5)}}, Addresses{}, time.Now())
	require.NoError(t, err)

	o.TotalAmount = decimal.NewFromInt(11)
	assert.ErrorIs(t, o.VerifyTotals(), ErrTotalMismatch)

	o.TotalAmount = decimal.NewFromInt(10)
	o.Items[0].TotalPrice = decimal.NewFromInt(9)
	assert.ErrorIs(t, o.VerifyTotals(), ErrTotalMismatch)
}

func TestStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to Status
		ok       bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusFailed, true},
		{StatusPending, StatusShipped, false},
		{StatusPaid, StatusFulfilled, true},
		{StatusPaid, StatusShipped, true},
		{StatusPaid, StatusCancelled, true},
		{StatusFulfilled, StatusCompleted, true},
		{StatusShipped, StatusCompleted, true},
		{StatusShipped, StatusCancelled, false},
		{StatusCompleted, StatusPending, false},
		{StatusCancelled, StatusPaid, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.ok, tt.from.CanTransition(tt.to))
		})
	}

	assert.True(t, StatusCompleted.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, Status("refunded").Valid())
}
