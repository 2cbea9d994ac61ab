// Package audit records order and payment events for later inspection.
package audit

import (
	"context"
	"slices"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

// Entry 一条审计记录
type Entry struct {
	ID        string    `bson:"_id,omitempty" json:"id,omitempty"`
	Service   string    `bson:"service" json:"service"`
	Action    string    `bson:"action" json:"action"`
	EntityID  string    `bson:"entity_id" json:"entity_id"`
	ActorID   string    `bson:"actor_id" json:"actor_id,omitempty"`
	Data      bson.M    `bson:"data" json:"data"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}

// 审计动作
const (
	ActionOrderCreated   = "order_created"
	ActionOrderStatus    = "order_status_changed"
	ActionPaymentAttempt = "payment_attempted"
	ActionPaymentConfirm = "payment_confirmed"
)

// Sink 写入不能阻塞调用方，失败只记日志
type Sink interface {
	Record(ctx context.Context, e Entry)
	History(ctx context.Context, entityID string, limit int64) ([]Entry, error)
}

// MemorySink 进程内实现，开发模式和测试使用
type MemorySink struct {
	mu      sync.Mutex
	entries []Entry
}

func NewMemorySink() *MemorySink {
	return &MemorySink{}
}

func (m *MemorySink) Record(_ context.Context, e Entry) {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
}

// History 按时间倒序
func (m *MemorySink) History(_ context.Context, entityID string, limit int64) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range slices.Backward(m.entries) {
		if e.EntityID != entityID {
			continue
		}
		out = append(out, e)
		if limit > 0 && int64(len(out)) >= limit {
			break
		}
	}
	return out, nil
}
