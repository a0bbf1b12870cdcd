package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"Senna-Wallet/pkg/logger"
)

// Config 描述 Senna 在启动阶段需要加载的核心配置。
type Config struct {
	Server  ServerConfig  `json:"server"`
	LLM     LLMConfig     `json:"llm"`
	Chain   ChainConfig   `json:"chain"`
	Price   PriceConfig   `json:"price"`
	Session SessionConfig `json:"session"`
	Notify  NotifyConfig  `json:"notify"`
	Audit   AuditConfig   `json:"audit"`
	Logging logger.Config `json:"logging"`
}

// ServerConfig 控制 API 服务的监听地址等参数。
type ServerConfig struct {
	Address string `json:"address"`
}

// LLMConfig 配置大模型解析服务。密钥通过环境变量间接引用，
// 配置文件里只写变量名。
type LLMConfig struct {
	Provider  string  `json:"provider"`
	APIKeyEnv string  `json:"api_key_env"`
	BaseURL   string  `json:"base_url"`
	Model     string  `json:"model"`
	TimeoutMS int     `json:"timeout_ms"`
	MaxTokens int     `json:"max_tokens"`
	Temp      float64 `json:"temperature"`
}

// Timeout 返回模型调用超时时长。
func (c LLMConfig) Timeout() time.Duration {
	if c.TimeoutMS <= 0 {
		return 0
	}
	return time.Duration(c.TimeoutMS) * time.Millisecond
}

// ChainConfig 描述链接入配置。
type ChainConfig struct {
	// Definitions 是 chains.yaml 的路径。
	Definitions string `json:"definitions"`
	// DefaultChain 是默认链名。
	DefaultChain string `json:"default_chain"`
	// PrivateKeyEnv 是签名私钥的环境变量名。
	PrivateKeyEnv string `json:"private_key_env"`
}

// PriceConfig 配置行情服务。
type PriceConfig struct {
	APIKeyEnv string      `json:"api_key_env"`
	BaseURL   string      `json:"base_url"`
	CacheTTLS int         `json:"cache_ttl_seconds"`
	Cache     CacheConfig `json:"cache"`
}

// CacheTTL 返回行情缓存时长。
func (c PriceConfig) CacheTTL() time.Duration {
	if c.CacheTTLS <= 0 {
		return 0
	}
	return time.Duration(c.CacheTTLS) * time.Second
}

// CacheConfig 选择行情缓存驱动。
type CacheConfig struct {
	Driver   string `json:"driver"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// SessionConfig 配置会话生命周期。
type SessionConfig struct {
	TTLMinutes   int `json:"ttl_minutes"`
	SweepMinutes int `json:"sweep_minutes"`
}

// TTL 返回会话空闲过期时长。
func (c SessionConfig) TTL() time.Duration {
	if c.TTLMinutes <= 0 {
		return 0
	}
	return time.Duration(c.TTLMinutes) * time.Minute
}

// SweepInterval 返回清理周期。
func (c SessionConfig) SweepInterval() time.Duration {
	if c.SweepMinutes <= 0 {
		return 0
	}
	return time.Duration(c.SweepMinutes) * time.Minute
}

// NotifyConfig 配置交易事件队列与追踪。
type NotifyConfig struct {
	Driver       string `json:"driver"`
	Queue        string `json:"queue"`
	Address      string `json:"address"`
	Password     string `json:"password"`
	DB           int    `json:"db"`
	URL          string `json:"url"`
	PollSeconds  int    `json:"poll_seconds"`
	MaxAttempts  int    `json:"max_attempts"`
	SlackChannel string `json:"slack_channel"`
}

// PollInterval 返回回执轮询间隔。
func (c NotifyConfig) PollInterval() time.Duration {
	if c.PollSeconds <= 0 {
		return 0
	}
	return time.Duration(c.PollSeconds) * time.Second
}

// AuditConfig 配置转账审计日志存储。
type AuditConfig struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
}

// Load 负责解析指定路径的 JSON 配置文件。
func Load(path string) (*Config, error) {
	if path == "" {
		return nil, errors.New("配置文件路径为空")
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("打开配置文件失败: %w", err)
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	cfg.applyDefaults(filepath.Dir(path))

	return &cfg, nil
}

// applyDefaults 在用户未填写部分字段时设置合理的默认值。
func (c *Config) applyDefaults(baseDir string) {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}

	if c.LLM.Provider == "" {
		c.LLM.Provider = "groq"
	}
	if c.LLM.APIKeyEnv == "" {
		c.LLM.APIKeyEnv = "GROQ_API_KEY"
	}

	if c.Chain.Definitions == "" {
		c.Chain.Definitions = filepath.Join(baseDir, "chains.yaml")
	} else if !filepath.IsAbs(c.Chain.Definitions) {
		c.Chain.Definitions = filepath.Join(baseDir, c.Chain.Definitions)
	}
	if c.Chain.PrivateKeyEnv == "" {
		c.Chain.PrivateKeyEnv = "WALLET_PRIVATE_KEY"
	}

	if c.Price.Cache.Driver == "" {
		c.Price.Cache.Driver = "memory"
	}

	if c.Session.TTLMinutes <= 0 {
		c.Session.TTLMinutes = 60
	}
	if c.Session.SweepMinutes <= 0 {
		c.Session.SweepMinutes = 30
	}

	if c.Notify.Driver == "" {
		c.Notify.Driver = "memory"
	}

	if c.Audit.Driver == "" {
		c.Audit.Driver = "memory"
	}
}
