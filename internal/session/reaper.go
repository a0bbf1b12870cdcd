package session

import (
	"context"
	"log/slog"
	"time"

	"Senna-Wallet/pkg/logger"
)

// DefaultSweepInterval 是后台清理的默认周期。
const DefaultSweepInterval = 30 * time.Minute

// Reaper 周期性清理过期会话。
type Reaper struct {
	store    Store
	interval time.Duration
	log      *slog.Logger
}

// NewReaper 构建清理器，interval 非正时使用默认周期。
func NewReaper(store Store, interval time.Duration) *Reaper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Reaper{
		store:    store,
		interval: interval,
		log:      logger.Named("session-reaper"),
	}
}

// Run 阻塞运行清理循环，直到 ctx 取消。
func (r *Reaper) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("会话清理器已启动", slog.Duration("interval", r.interval))
	for {
		select {
		case <-ctx.Done():
			r.log.Info("会话清理器已停止")
			return
		case now := <-ticker.C:
			if removed := r.store.Sweep(now); removed > 0 {
				r.log.Info("清理过期会话",
					slog.Int("removed", removed),
					slog.Int("remaining", r.store.Len()),
				)
			}
		}
	}
}
