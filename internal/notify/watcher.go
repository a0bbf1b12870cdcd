package notify

import (
	"context"
	"log/slog"
	"time"

	xerrors "Senna-Wallet/internal/errors"
	"Senna-Wallet/internal/observability/alerting"
	"Senna-Wallet/internal/storage"
	"Senna-Wallet/internal/wallet"
	"Senna-Wallet/pkg/logger"
)

// 轮询节奏的默认值。
const (
	defaultPollInterval = 10 * time.Second
	defaultMaxAttempts  = 30
)

// Watcher 消费交易事件并轮询链上回执，把终态写回审计日志。
// 交易失败或追踪超时会触发告警。
type Watcher struct {
	consumer Consumer
	wallet   wallet.Client
	audit    storage.TransferLog
	alerts   alerting.Dispatcher
	interval time.Duration
	attempts int
	log      *slog.Logger
}

// WatcherOption 定义可选配置。
type WatcherOption func(*Watcher)

// WithPollInterval 设置回执轮询间隔。
func WithPollInterval(interval time.Duration) WatcherOption {
	return func(w *Watcher) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithMaxAttempts 设置单笔交易的最大轮询次数。
func WithMaxAttempts(attempts int) WatcherOption {
	return func(w *Watcher) {
		if attempts > 0 {
			w.attempts = attempts
		}
	}
}

// WithAuditLog 注入审计日志。
func WithAuditLog(audit storage.TransferLog) WatcherOption {
	return func(w *Watcher) { w.audit = audit }
}

// WithAlerts 注入告警分发器。
func WithAlerts(alerts alerting.Dispatcher) WatcherOption {
	return func(w *Watcher) { w.alerts = alerts }
}

// NewWatcher 构建交易追踪器。
func NewWatcher(consumer Consumer, walletClient wallet.Client, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		consumer: consumer,
		wallet:   walletClient,
		interval: defaultPollInterval,
		attempts: defaultMaxAttempts,
		log:      logger.Named("tx-watcher"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(w)
		}
	}
	return w
}

// Run 阻塞消费事件，直到 ctx 取消。
func (w *Watcher) Run(ctx context.Context) error {
	w.log.Info("交易追踪器已启动",
		slog.Duration("interval", w.interval),
		slog.Int("max_attempts", w.attempts),
	)
	return w.consumer.Consume(ctx, w.track)
}

// track 轮询单笔交易直至终态或尝试次数耗尽。
func (w *Watcher) track(ctx context.Context, event TxEvent) error {
	for attempt := 1; attempt <= w.attempts; attempt++ {
		status, err := w.wallet.TransactionStatus(ctx, event.Hash)
		if err != nil && xerrors.CodeOf(err) != xerrors.CodeNotFound {
			w.log.Warn("查询交易回执失败",
				slog.String("hash", event.Hash),
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		}

		if err == nil && status.State != wallet.TxStatePending {
			w.finish(ctx, event, status)
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.interval):
		}
	}

	w.log.Warn("交易追踪超时", slog.String("hash", event.Hash))
	w.alert(ctx, event, xerrors.CodeTimeout, "交易长时间未到达终态")
	return nil
}

// finish 记录终态，失败的交易触发告警。
func (w *Watcher) finish(ctx context.Context, event TxEvent, status wallet.TxStatus) {
	final := storage.TransferStatusConfirmed
	if status.State == wallet.TxStateFailed {
		final = storage.TransferStatusFailed
	}

	w.log.Info("交易到达终态",
		slog.String("hash", event.Hash),
		slog.String("state", string(status.State)),
		slog.Uint64("block_number", status.BlockNumber),
	)
	logger.Audit().Info("交易状态已更新",
		slog.String("session_id", event.SessionID),
		slog.String("hash", event.Hash),
		slog.String("status", string(final)),
	)

	if w.audit != nil {
		if err := w.audit.UpdateStatus(ctx, event.Hash, final); err != nil {
			w.log.Warn("更新审计记录失败", slog.String("hash", event.Hash), slog.Any("error", err))
		}
	}
	if final == storage.TransferStatusFailed {
		w.alert(ctx, event, xerrors.CodeCollaboratorFailure, "交易在链上执行失败")
	}
}

func (w *Watcher) alert(ctx context.Context, event TxEvent, code xerrors.Code, message string) {
	if w.alerts == nil {
		return
	}
	err := w.alerts.Notify(ctx, alerting.Event{
		Code:      code,
		Message:   message,
		Severity:  xerrors.AttributesOf(code).Severity,
		SessionID: event.SessionID,
		TxHash:    event.Hash,
		Metadata: map[string]string{
			"to":     event.To,
			"amount": event.Amount,
			"symbol": event.Symbol,
		},
		OccurredAt: time.Now(),
	})
	if err != nil {
		w.log.Warn("发送告警失败", slog.Any("error", err))
	}
}
