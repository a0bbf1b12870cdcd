package coingecko

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	xerrors "Senna-Wallet/internal/errors"
	"Senna-Wallet/internal/price"
	"Senna-Wallet/internal/tokens"
	"Senna-Wallet/pkg/logger"
)

// 默认的接口地址与缓存时长。
const (
	defaultBaseURL  = "https://api.coingecko.com/api/v3"
	defaultTimeout  = 10 * time.Second
	defaultCacheTTL = 5 * time.Minute
)

// 上游不可用时的参考价格，单位 USD。
var fallbackUSD = map[string]decimal.Decimal{
	"SOMI": decimal.NewFromFloat(0.25),
	"STT":  decimal.NewFromFloat(0.15),
	"ETH":  decimal.NewFromInt(3500),
	"BTC":  decimal.NewFromInt(65000),
}

// fallbackUSDToIDR 是降级时使用的固定汇率。
var fallbackUSDToIDR = decimal.NewFromInt(15800)

// Config 描述行情客户端的可选配置。
type Config struct {
	BaseURL  string
	APIKey   string
	Timeout  time.Duration
	CacheTTL time.Duration
}

// Client 通过 CoinGecko 提供行情，带缓存与固定参考价降级。
type Client struct {
	baseURL  string
	apiKey   string
	cacheTTL time.Duration
	http     *http.Client
	cache    price.Cache
	registry *tokens.Registry
	log      *slog.Logger
	now      func() time.Time
}

// NewClient 构建行情客户端。cache 为 nil 时使用进程内缓存。
func NewClient(cfg Config, registry *tokens.Registry, cache price.Cache) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cache == nil {
		cache = price.NewMemoryCache()
	}
	if registry == nil {
		registry = tokens.Default()
	}

	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:   cfg.APIKey,
		cacheTTL: cfg.CacheTTL,
		http:     &http.Client{Timeout: cfg.Timeout},
		cache:    cache,
		registry: registry,
		log:      logger.Named("coingecko"),
		now:      time.Now,
	}
}

var _ price.Service = (*Client)(nil)

// Quote 返回代币行情。顺序：缓存 -> 上游 -> 固定参考价。
func (c *Client) Quote(ctx context.Context, symbol string) (price.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return price.Quote{}, xerrors.New(xerrors.CodeInvalidArgument, "代币符号不能为空")
	}

	if raw, ok, err := c.cache.Get(ctx, symbol); err == nil && ok {
		var cached price.Quote
		if err := json.Unmarshal(raw, &cached); err == nil {
			return cached, nil
		}
	}

	quote, err := c.fetch(ctx, symbol)
	if err != nil {
		c.log.Warn("行情接口不可用，使用固定参考价",
			slog.String("symbol", symbol),
			slog.Any("error", err),
		)
		return c.fallback(symbol)
	}

	if raw, err := json.Marshal(quote); err == nil {
		if err := c.cache.Set(ctx, symbol, raw, c.cacheTTL); err != nil {
			c.log.Warn("写入行情缓存失败", slog.Any("error", err))
		}
	}
	return quote, nil
}

// marketData 对应 coins/{id} 响应中我们关心的字段。
type marketData struct {
	MarketData struct {
		CurrentPrice struct {
			USD float64 `json:"usd"`
			IDR float64 `json:"idr"`
		} `json:"current_price"`
		PriceChange24h float64 `json:"price_change_percentage_24h"`
		TotalVolume    struct {
			USD float64 `json:"usd"`
		} `json:"total_volume"`
		MarketCap struct {
			USD float64 `json:"usd"`
		} `json:"market_cap"`
		ATH struct {
			USD float64 `json:"usd"`
		} `json:"ath"`
	} `json:"market_data"`
}

func (c *Client) fetch(ctx context.Context, symbol string) (price.Quote, error) {
	id, ok := c.registry.CoinGeckoID(symbol)
	if !ok || id == "" {
		return price.Quote{}, xerrors.New(xerrors.CodeNotFound, "代币未配置行情来源",
			xerrors.WithMetadata(map[string]string{"symbol": symbol}))
	}

	url := fmt.Sprintf("%s/coins/%s?localization=false&tickers=false&community_data=false&developer_data=false", c.baseURL, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return price.Quote{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "构造行情请求失败")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-cg-demo-api-key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return price.Quote{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "请求行情接口失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return price.Quote{}, xerrors.New(xerrors.CodeCollaboratorFailure,
			fmt.Sprintf("行情接口返回 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var data marketData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return price.Quote{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "解析行情响应失败")
	}

	md := data.MarketData
	return price.Quote{
		Symbol:      symbol,
		USD:         decimal.NewFromFloat(md.CurrentPrice.USD),
		IDR:         decimal.NewFromFloat(md.CurrentPrice.IDR),
		Change24h:   decimal.NewFromFloat(md.PriceChange24h),
		Volume24h:   decimal.NewFromFloat(md.TotalVolume.USD),
		MarketCap:   decimal.NewFromFloat(md.MarketCap.USD),
		ATH:         decimal.NewFromFloat(md.ATH.USD),
		Source:      "coingecko",
		LastUpdated: c.now(),
	}, nil
}

// fallback 返回固定参考价，未收录的代币仍然报错。
func (c *Client) fallback(symbol string) (price.Quote, error) {
	usd, ok := fallbackUSD[symbol]
	if !ok {
		return price.Quote{}, xerrors.New(xerrors.CodeCollaboratorFailure, "行情不可用且无参考价格",
			xerrors.WithMetadata(map[string]string{"symbol": symbol}))
	}
	return price.Quote{
		Symbol:      symbol,
		USD:         usd,
		IDR:         usd.Mul(fallbackUSDToIDR),
		Source:      "fallback",
		LastUpdated: c.now(),
	}, nil
}
