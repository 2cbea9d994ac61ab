package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestMemorySinkHistoryNewestFirst(t *testing.T) {
	s := NewMemorySink()
	ctx := context.Background()
	s.Record(ctx, Entry{Action: ActionOrderCreated, EntityID: "o1", Data: bson.M{"total": "10.00"}})
	s.Record(ctx, Entry{Action: ActionPaymentAttempt, EntityID: "o1"})
	s.Record(ctx, Entry{Action: ActionOrderCreated, EntityID: "o2"})

	got, err := s.History(ctx, "o1", 0)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ActionPaymentAttempt, got[0].Action)
	assert.False(t, got[1].CreatedAt.IsZero())

	got, err = s.History(ctx, "o1", 1)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}
