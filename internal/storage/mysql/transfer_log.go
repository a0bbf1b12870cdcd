package mysql

import (
	"context"
	"database/sql"
	"time"

	xerrors "Senna-Wallet/internal/errors"
	"Senna-Wallet/internal/storage"
)

// TransferLog 是基于 MySQL 的转账审计日志实现。
type TransferLog struct {
	db *sql.DB
}

// NewTransferLog 建立连接并执行待应用的迁移。
func NewTransferLog(ctx context.Context, cfg Config) (*TransferLog, error) {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return nil, err
	}

	log := &TransferLog{db: db}
	if err := log.runMigrations(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return log, nil
}

var _ storage.TransferLog = (*TransferLog)(nil)

// Record 追加一条审计记录。
func (l *TransferLog) Record(ctx context.Context, record storage.TransferRecord) error {
	now := time.Now()
	createdAt := record.CreatedAt
	if createdAt.IsZero() {
		createdAt = now
	}

	_, err := l.db.ExecContext(ctx, `INSERT INTO transfers
        (id, session_id, tx_hash, from_addr, to_addr, amount, symbol, status, created_at, updated_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID, record.SessionID, record.Hash, record.FromAddr, record.ToAddr,
		record.Amount, record.Symbol, string(record.Status), createdAt.Unix(), now.Unix())
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "写入转账记录失败")
	}
	return nil
}

// UpdateStatus 按交易哈希更新状态。
func (l *TransferLog) UpdateStatus(ctx context.Context, hash string, status storage.TransferStatus) error {
	_, err := l.db.ExecContext(ctx, `UPDATE transfers SET status = ?, updated_at = ? WHERE tx_hash = ?`,
		string(status), time.Now().Unix(), hash)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新转账状态失败")
	}
	return nil
}

// ListBySession 按会话倒序返回最近的记录。
func (l *TransferLog) ListBySession(ctx context.Context, sessionID string, limit int) ([]storage.TransferRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := l.db.QueryContext(ctx, `SELECT id, session_id, tx_hash, from_addr, to_addr,
        amount, symbol, status, created_at, updated_at
        FROM transfers WHERE session_id = ? ORDER BY created_at DESC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "查询转账记录失败")
	}
	defer rows.Close()

	var records []storage.TransferRecord
	for rows.Next() {
		var (
			record               storage.TransferRecord
			status               string
			createdAt, updatedAt int64
		)
		if err := rows.Scan(&record.ID, &record.SessionID, &record.Hash, &record.FromAddr,
			&record.ToAddr, &record.Amount, &record.Symbol, &status, &createdAt, &updatedAt); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析转账记录失败")
		}
		record.Status = storage.TransferStatus(status)
		record.CreatedAt = time.Unix(createdAt, 0)
		record.UpdatedAt = time.Unix(updatedAt, 0)
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历转账记录失败")
	}
	return records, nil
}

// Close 关闭数据库连接。
func (l *TransferLog) Close() error {
	return l.db.Close()
}
