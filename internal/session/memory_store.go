package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	xerrors "Senna-Wallet/internal/errors"
)

// entry 把会话和它的专属互斥锁绑定在一起。
// 对单个会话的读改写序列在 entry 锁内完成，不同会话互不阻塞。
type entry struct {
	mu      sync.Mutex
	session *Session
}

// MemoryStore 是基于内存的会话存储，进程重启即丢失。
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]*entry
	ttl     time.Duration
	now     func() time.Time
}

// MemoryStoreOption 定义可选配置。
type MemoryStoreOption func(*MemoryStore)

// WithTTL 设置会话空闲过期时长。
func WithTTL(ttl time.Duration) MemoryStoreOption {
	return func(s *MemoryStore) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

// WithClock 注入时钟，便于测试控制时间。
func WithClock(now func() time.Time) MemoryStoreOption {
	return func(s *MemoryStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewMemoryStore 构建内存会话存储。
func NewMemoryStore(opts ...MemoryStoreOption) *MemoryStore {
	s := &MemoryStore{
		entries: make(map[string]*entry),
		ttl:     DefaultTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

var _ Store = (*MemoryStore)(nil)

// Create 新建会话并返回副本。
func (s *MemoryStore) Create(walletAddress string) (*Session, error) {
	now := s.now()
	sess := &Session{
		ID:             uuid.NewString(),
		WalletAddress:  walletAddress,
		CreatedAt:      now,
		LastActivityAt: now,
	}

	s.mu.Lock()
	s.entries[sess.ID] = &entry{session: sess}
	s.mu.Unlock()

	return sess.clone(), nil
}

// Get 返回会话副本。过期的会话当场删除并返回过期错误。
func (s *MemoryStore) Get(id string) (*Session, error) {
	s.mu.RLock()
	ent, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "会话不存在",
			xerrors.WithMetadata(map[string]string{"session_id": id}))
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	if ent.session.Expired(s.now(), s.ttl) {
		s.remove(id)
		return nil, xerrors.New(xerrors.CodeSessionExpired, "会话已过期",
			xerrors.WithMetadata(map[string]string{"session_id": id}))
	}
	return ent.session.clone(), nil
}

// Mutate 在会话级锁内应用 fn。fn 成功后刷新活跃时间并返回新副本。
func (s *MemoryStore) Mutate(id string, fn func(*Session) error) (*Session, error) {
	s.mu.RLock()
	ent, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, xerrors.New(xerrors.CodeNotFound, "会话不存在",
			xerrors.WithMetadata(map[string]string{"session_id": id}))
	}

	ent.mu.Lock()
	defer ent.mu.Unlock()

	now := s.now()
	if ent.session.Expired(now, s.ttl) {
		s.remove(id)
		return nil, xerrors.New(xerrors.CodeSessionExpired, "会话已过期",
			xerrors.WithMetadata(map[string]string{"session_id": id}))
	}

	working := ent.session.clone()
	if err := fn(working); err != nil {
		return nil, err
	}
	working.LastActivityAt = now
	ent.session = working

	return working.clone(), nil
}

// Delete 删除会话。
func (s *MemoryStore) Delete(id string) error {
	s.remove(id)
	return nil
}

// Sweep 清理 now 时刻已过期的会话。
// 全局锁下只做条目快照，过期判定与删除都在会话锁内进行，
// 不和进行中的 Mutate 产生未同步的读写。
func (s *MemoryStore) Sweep(now time.Time) int {
	s.mu.RLock()
	snapshot := make(map[string]*entry, len(s.entries))
	for id, ent := range s.entries {
		snapshot[id] = ent
	}
	s.mu.RUnlock()

	removed := 0
	for id, ent := range snapshot {
		ent.mu.Lock()
		if ent.session.Expired(now, s.ttl) {
			s.remove(id)
			removed++
		}
		ent.mu.Unlock()
	}
	return removed
}

// Len 返回当前存活会话数。
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

func (s *MemoryStore) remove(id string) {
	s.mu.Lock()
	delete(s.entries, id)
	s.mu.Unlock()
}
