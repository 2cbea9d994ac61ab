// Package queue carries order confirmation messages from the gateway to the
// notifier. Delivery is at least once; handlers must be idempotent on the
// order id.
package queue

import (
	"context"
	"errors"
	"time"
)

// 消息类型
const OrderConfirmation = "order_confirmation"

var ErrQueueFull = errors.New("queue: buffer full")

// Message 下单确认消息
type Message struct {
	Type        string    `json:"type"`
	OrderID     string    `json:"order_id"`
	OrderNumber string    `json:"order_number,omitempty"`
	EnqueuedAt  time.Time `json:"enqueued_at"`
}

// Key 消费端幂等键
func (m Message) Key() string {
	return m.Type + ":" + m.OrderID
}

type Publisher interface {
	Publish(ctx context.Context, msg Message) error
}

// Handler 返回错误时消息会被重新投递
type Handler func(ctx context.Context, msg Message) error
