package queue

import (
	"context"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// LocalQueue 进程内队列，未配置 RabbitMQ 时使用
type LocalQueue struct {
	ch        chan Message
	handler   Handler
	log       *zap.Logger
	retries   int
	started   atomic.Bool
	startOnce sync.Once
	stopOnce  sync.Once
	done      chan struct{}
}

func NewLocalQueue(size int, h Handler, log *zap.Logger) *LocalQueue {
	if size <= 0 {
		size = 256
	}
	return &LocalQueue{
		ch:      make(chan Message, size),
		handler: h,
		log:     log.Named("local-queue"),
		retries: 3,
		done:    make(chan struct{}),
	}
}

// Publish 不阻塞，缓冲满时返回 ErrQueueFull
func (q *LocalQueue) Publish(ctx context.Context, msg Message) error {
	if msg.EnqueuedAt.IsZero() {
		msg.EnqueuedAt = time.Now()
	}
	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return ErrQueueFull
	}
}

// Start 启动单个消费协程
func (q *LocalQueue) Start(ctx context.Context) {
	q.startOnce.Do(func() {
		q.started.Store(true)
		go q.loop(context.WithoutCancel(ctx))
	})
}

// Close 处理完已入队的消息后返回
func (q *LocalQueue) Close() {
	q.stopOnce.Do(func() {
		close(q.ch)
	})
	if q.started.Load() {
		<-q.done
	}
}

func (q *LocalQueue) loop(ctx context.Context) {
	defer close(q.done)
	for msg := range q.ch {
		for attempt := 1; attempt <= q.retries; attempt++ {
			err := q.handle(ctx, msg)
			if err == nil {
				break
			}
			q.log.Warn("handle message failed",
				zap.String("type", msg.Type),
				zap.String("order_id", msg.OrderID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
	}
}

func (q *LocalQueue) handle(ctx context.Context, msg Message) (err error) {
	defer func() {
		if r := recover(); r != nil {
			q.log.Error("message handler panic",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
			err = nil
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return q.handler(ctx, msg)
}
