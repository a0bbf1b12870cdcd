package price

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote 是一个代币的行情摘要。
type Quote struct {
	Symbol      string          `json:"symbol"`
	USD         decimal.Decimal `json:"usd"`
	IDR         decimal.Decimal `json:"idr"`
	Change24h   decimal.Decimal `json:"change_24h"`
	Volume24h   decimal.Decimal `json:"volume_24h"`
	MarketCap   decimal.Decimal `json:"market_cap"`
	ATH         decimal.Decimal `json:"ath"`
	Source      string          `json:"source"`
	LastUpdated time.Time       `json:"last_updated"`
}

// Service 定义行情查询的契约。
// 实现必须在上游不可用时给出降级数据而非失败，
// 对话层依赖这一点保证回复总能生成。
type Service interface {
	// Quote 返回指定代币的行情。
	Quote(ctx context.Context, symbol string) (Quote, error)
}

// Cache 是行情缓存的最小抽象，驱动可以是内存或 Redis。
type Cache interface {
	// Get 返回缓存值，未命中时 ok 为 false。
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	// Set 写入缓存并设定过期时长。
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
