package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryTransferLog 是进程内的审计日志实现，用于开发与测试。
type MemoryTransferLog struct {
	mu      sync.RWMutex
	records []TransferRecord
	now     func() time.Time
}

// NewMemoryTransferLog 构建内存审计日志。
func NewMemoryTransferLog() *MemoryTransferLog {
	return &MemoryTransferLog{now: time.Now}
}

var _ TransferLog = (*MemoryTransferLog)(nil)

// Record 追加一条记录。
func (l *MemoryTransferLog) Record(_ context.Context, record TransferRecord) error {
	now := l.now()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	l.mu.Lock()
	l.records = append(l.records, record)
	l.mu.Unlock()
	return nil
}

// UpdateStatus 按哈希更新状态，未命中时静默成功。
func (l *MemoryTransferLog) UpdateStatus(_ context.Context, hash string, status TransferStatus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range l.records {
		if l.records[i].Hash == hash {
			l.records[i].Status = status
			l.records[i].UpdatedAt = l.now()
		}
	}
	return nil
}

// ListBySession 按会话倒序返回最近的记录。
func (l *MemoryTransferLog) ListBySession(_ context.Context, sessionID string, limit int) ([]TransferRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]TransferRecord, 0, limit)
	for i := len(l.records) - 1; i >= 0; i-- {
		if l.records[i].SessionID != sessionID {
			continue
		}
		out = append(out, l.records[i])
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// Close 实现 TransferLog 接口。
func (l *MemoryTransferLog) Close() error { return nil }
