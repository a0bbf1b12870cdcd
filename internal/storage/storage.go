// Package storage 定义转账审计日志的抽象。对话历史只生存在内存会话里，
// 但产生链上副作用的转账需要可追溯的落盘记录。
package storage

import (
	"context"
	"time"
)

// TransferStatus 是审计记录的状态。
type TransferStatus string

const (
	// TransferStatusSubmitted 表示交易已签名广播。
	TransferStatusSubmitted TransferStatus = "submitted"
	// TransferStatusConfirmed 表示链上回执成功。
	TransferStatusConfirmed TransferStatus = "confirmed"
	// TransferStatusFailed 表示链上回执失败。
	TransferStatusFailed TransferStatus = "failed"
	// TransferStatusCancelled 表示用户在确认前取消。
	TransferStatusCancelled TransferStatus = "cancelled"
)

// TransferRecord 是一条转账审计记录。
type TransferRecord struct {
	ID        string         `json:"id"`
	SessionID string         `json:"session_id"`
	Hash      string         `json:"hash"`
	FromAddr  string         `json:"from_addr"`
	ToAddr    string         `json:"to_addr"`
	Amount    string         `json:"amount"`
	Symbol    string         `json:"symbol"`
	Status    TransferStatus `json:"status"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// TransferLog 定义审计日志的存取契约。
type TransferLog interface {
	// Record 追加一条审计记录。
	Record(ctx context.Context, record TransferRecord) error
	// UpdateStatus 按交易哈希更新状态。
	UpdateStatus(ctx context.Context, hash string, status TransferStatus) error
	// ListBySession 按会话倒序返回最近的记录。
	ListBySession(ctx context.Context, sessionID string, limit int) ([]TransferRecord, error)
	// Close 释放底层资源。
	Close() error
}
