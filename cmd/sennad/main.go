package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"Senna-Wallet/internal/api"
	"Senna-Wallet/internal/chat"
	"Senna-Wallet/internal/config"
	"Senna-Wallet/internal/intent"
	"Senna-Wallet/internal/llm"
	"Senna-Wallet/internal/llm/openai"
	"Senna-Wallet/internal/notify"
	"Senna-Wallet/internal/observability/alerting"
	"Senna-Wallet/internal/price"
	"Senna-Wallet/internal/price/coingecko"
	"Senna-Wallet/internal/session"
	"Senna-Wallet/internal/storage"
	"Senna-Wallet/internal/storage/mysql"
	"Senna-Wallet/internal/tokens"
	"Senna-Wallet/internal/wallet/provider"
	"Senna-Wallet/pkg/logger"
)

// placeholderKeys 是模板配置里常见的占位密钥，视同未配置。
var placeholderKeys = map[string]struct{}{
	"your_groq_api_key_here":     {},
	"your_deepseek_api_key_here": {},
	"changeme":                   {},
}

// main 是 Senna 守护进程的入口。
func main() {
	// .env 缺失不视为错误，生产环境通常直接注入环境变量。
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("sennad 运行失败: %v", err)
	}
}

func run(ctx context.Context) error {
	configPath := os.Getenv("SENNA_CONFIG")
	if configPath == "" {
		configPath = filepath.Join("configs", "senna.json")
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if err := logger.Init(cfg.Logging); err != nil {
		return err
	}
	defer logger.Sync()

	// 代币注册表：优先加载配置目录下的 tokens.json。
	registry := tokens.Default()
	tokensPath := filepath.Join(filepath.Dir(configPath), "tokens.json")
	if loaded, err := tokens.Load(tokensPath); err == nil {
		registry = loaded
	} else if !errors.Is(err, os.ErrNotExist) {
		logger.L().Warn("加载代币配置失败，使用内置列表", slog.Any("error", err))
	}

	// 链客户端注册表。
	registryClients, err := provider.NewRegistry(ctx, provider.Config{
		ChainConfig:  cfg.Chain.Definitions,
		DefaultChain: cfg.Chain.DefaultChain,
		PrivateKey:   os.Getenv(cfg.Chain.PrivateKeyEnv),
	})
	if err != nil {
		return err
	}
	defer registryClients.Close()

	walletClient, err := registryClients.DefaultClient()
	if err != nil {
		return err
	}

	// 行情服务。
	priceCache, err := createPriceCache(ctx, cfg.Price.Cache)
	if err != nil {
		return err
	}
	priceService := coingecko.NewClient(coingecko.Config{
		BaseURL:  cfg.Price.BaseURL,
		APIKey:   os.Getenv(cfg.Price.APIKeyEnv),
		CacheTTL: cfg.Price.CacheTTL(),
	}, registry, priceCache)

	// 意图解析：模型客户端缺失时完全依赖规则匹配。
	matcher := intent.NewMatcher(registry, "SOMI")
	resolver := intent.NewResolver(createLLMClient(cfg.LLM), matcher,
		intent.WithProviderTimeout(cfg.LLM.Timeout()))
	if !resolver.ProviderConfigured() {
		logger.L().Warn("未配置模型密钥，意图解析仅使用规则匹配")
	}

	// 会话存储与清理器。
	store := session.NewMemoryStore(session.WithTTL(cfg.Session.TTL()))
	reaper := session.NewReaper(store, cfg.Session.SweepInterval())
	go reaper.Run(ctx)

	// 转账审计日志。
	auditLog, err := createTransferLog(ctx, cfg.Audit)
	if err != nil {
		return err
	}
	defer auditLog.Close()

	// 交易事件队列与追踪器。
	queue, err := createQueue(cfg.Notify)
	if err != nil {
		return err
	}
	defer queue.Close()

	alerts := alerting.NewFanout(&alerting.LogNotifier{})
	watcher := notify.NewWatcher(queue, walletClient,
		notify.WithPollInterval(cfg.Notify.PollInterval()),
		notify.WithMaxAttempts(cfg.Notify.MaxAttempts),
		notify.WithAuditLog(auditLog),
		notify.WithAlerts(alerts),
	)
	go func() {
		if err := watcher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.L().Error("交易追踪器退出", slog.Any("error", err))
		}
	}()

	// 对话控制器与 API 服务。
	executor := chat.NewExecutor(walletClient, priceService, registry)
	controller := chat.NewController(store, resolver, executor,
		chat.WithNotifier(queue),
		chat.WithTransferLog(auditLog),
	)

	server := api.NewServer(cfg.Server.Address, controller, walletClient, auditLog)
	logger.L().Info("sennad 已启动", slog.String("address", cfg.Server.Address))
	return server.Start(ctx)
}

// createLLMClient 构建模型客户端，密钥缺失或为占位值时返回 nil。
func createLLMClient(cfg config.LLMConfig) llm.Client {
	apiKey := strings.TrimSpace(os.Getenv(cfg.APIKeyEnv))
	if apiKey == "" {
		return nil
	}
	if _, ok := placeholderKeys[strings.ToLower(apiKey)]; ok {
		return nil
	}

	client, err := openai.NewClient(openai.Config{
		APIKey:      apiKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		Timeout:     cfg.Timeout(),
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temp,
	})
	if err != nil {
		logger.L().Warn("初始化模型客户端失败，意图解析仅使用规则匹配", slog.Any("error", err))
		return nil
	}
	return client
}

func createPriceCache(ctx context.Context, cfg config.CacheConfig) (price.Cache, error) {
	switch cfg.Driver {
	case "", "memory":
		return price.NewMemoryCache(), nil
	case "redis":
		return price.NewRedisCache(ctx, cfg.Address, cfg.Password, cfg.DB)
	default:
		return nil, errors.New("不支持的行情缓存驱动: " + cfg.Driver)
	}
}

func createTransferLog(ctx context.Context, cfg config.AuditConfig) (storage.TransferLog, error) {
	switch cfg.Driver {
	case "", "memory":
		return storage.NewMemoryTransferLog(), nil
	case "mysql":
		return mysql.NewTransferLog(ctx, mysql.Config{DSN: cfg.DSN})
	default:
		return nil, errors.New("不支持的审计日志驱动: " + cfg.Driver)
	}
}

func createQueue(cfg config.NotifyConfig) (notify.Queue, error) {
	switch cfg.Driver {
	case "", "memory":
		return notify.NewMemoryQueue(1024), nil
	case "redis":
		return notify.NewRedisQueue(notify.RedisQueueConfig{
			Address:  cfg.Address,
			Password: cfg.Password,
			DB:       cfg.DB,
			Queue:    cfg.Queue,
		})
	case "rabbitmq":
		return notify.NewRabbitMQQueue(notify.RabbitMQConfig{
			URL:     cfg.URL,
			Queue:   cfg.Queue,
			Durable: true,
		})
	default:
		return nil, errors.New("不支持的事件队列驱动: " + cfg.Driver)
	}
}
