package notify

import (
	"context"
	"sync"

	xerrors "Senna-Wallet/internal/errors"
)

// MemoryQueue 使用 channel 模拟事件队列，用于单机部署与测试。
type MemoryQueue struct {
	ch     chan TxEvent
	mu     sync.Mutex
	closed bool
}

// NewMemoryQueue 创建内存队列。
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 64
	}
	return &MemoryQueue{ch: make(chan TxEvent, size)}
}

var _ Queue = (*MemoryQueue)(nil)

// Publish 将事件投递到队列。
func (q *MemoryQueue) Publish(ctx context.Context, event TxEvent) error {
	q.mu.Lock()
	closed := q.closed
	q.mu.Unlock()
	if closed {
		return xerrors.New(xerrors.CodeStorageFailure, "事件队列已关闭")
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case q.ch <- event:
		return nil
	}
}

// Consume 消费队列中的事件，直到 ctx 取消或队列关闭。
func (q *MemoryQueue) Consume(ctx context.Context, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-q.ch:
			if !ok {
				return nil
			}
			_ = handler(ctx, event)
		}
	}
}

// Close 关闭内存队列。
func (q *MemoryQueue) Close() error {
	q.mu.Lock()
	if !q.closed {
		close(q.ch)
		q.closed = true
	}
	q.mu.Unlock()
	return nil
}
