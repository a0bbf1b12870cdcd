package session

import (
	"time"

	"Senna-Wallet/internal/intent"
)

// maxHistoryEntries 限制单个会话保留的对话条数，防止长会话无界增长。
const maxHistoryEntries = 20

// DefaultTTL 是会话的默认空闲过期时长。
const DefaultTTL = time.Hour

// HistoryEntry 记录会话中的一轮发言。
type HistoryEntry struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Option 是一条待用户选择的候选操作。
// 用户回复序号时，控制器以 Message 作为等效输入重新处理。
type Option struct {
	Label   string `json:"label"`
	Message string `json:"message"`
}

// PendingAction 是等待用户确认的敏感操作快照。
// 任意时刻一个会话至多存在一个待确认操作。
type PendingAction struct {
	ID        string        `json:"id"`
	Intent    intent.Intent `json:"intent"`
	CreatedAt time.Time     `json:"created_at"`
}

// Session 是一次对话的全部可变状态。
// Store 的实现对外只交付副本，调用方的修改必须经由 Mutate 写回。
type Session struct {
	ID             string         `json:"id"`
	WalletAddress  string         `json:"wallet_address"`
	CreatedAt      time.Time      `json:"created_at"`
	LastActivityAt time.Time      `json:"last_activity_at"`
	History        []HistoryEntry `json:"history"`
	Pending        *PendingAction `json:"pending,omitempty"`
	PendingOptions []Option       `json:"pending_options,omitempty"`
}

// AppendHistory 追加一轮发言并裁剪到上限。
func (s *Session) AppendHistory(role, content string, at time.Time) {
	s.History = append(s.History, HistoryEntry{Role: role, Content: content, Timestamp: at})
	if len(s.History) > maxHistoryEntries {
		s.History = s.History[len(s.History)-maxHistoryEntries:]
	}
}

// SetPending 写入待确认操作，同时清空候选列表。
func (s *Session) SetPending(action *PendingAction) {
	s.Pending = action
	s.PendingOptions = nil
}

// ClearPending 清空待确认操作与候选列表。
func (s *Session) ClearPending() {
	s.Pending = nil
	s.PendingOptions = nil
}

// Expired 判断会话在 now 时刻是否已超过空闲时长。
func (s *Session) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(s.LastActivityAt) > ttl
}

// clone 返回会话的深副本。
func (s *Session) clone() *Session {
	copied := *s
	copied.History = append([]HistoryEntry(nil), s.History...)
	copied.PendingOptions = append([]Option(nil), s.PendingOptions...)
	if s.Pending != nil {
		pending := *s.Pending
		copied.Pending = &pending
	}
	return &copied
}

// Store 定义会话的存取契约。
// Mutate 在持有会话级锁的前提下应用变更，确认与取消的
// "至多一次" 语义依赖这一点。
type Store interface {
	// Create 新建会话并返回副本。
	Create(walletAddress string) (*Session, error)
	// Get 返回会话副本；不存在或已过期时返回带码错误。
	Get(id string) (*Session, error)
	// Mutate 在会话级锁内应用 fn 并刷新活跃时间。
	// fn 返回错误时变更被丢弃。
	Mutate(id string, fn func(*Session) error) (*Session, error)
	// Delete 删除会话，不存在时静默成功。
	Delete(id string) error
	// Sweep 删除 now 时刻已过期的会话并返回删除数量。
	Sweep(now time.Time) int
	// Len 返回当前存活会话数。
	Len() int
}
