package intent

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	xerrors "Senna-Wallet/internal/errors"
	"Senna-Wallet/internal/llm"
	"Senna-Wallet/pkg/logger"
)

// defaultConfidence 是模型响应缺失 confidence 时的默认值。
const defaultConfidence = 0.8

// defaultResolveTimeout 限制单次模型调用的最长等待时间。
const defaultResolveTimeout = 30 * time.Second

// Context 携带解析时可用的会话背景，用于丰富模型提示词。
type Context struct {
	WalletAddress string
	Balance       string
	MarketSummary string
}

// Resolver 负责把自由文本转换成封闭集合内的单个意图。
// 模型路径失败时无条件回退到规则匹配器，解析永远有结果。
type Resolver struct {
	client  llm.Client
	matcher *Matcher
	timeout time.Duration
	log     *slog.Logger
}

// ResolverOption 定义可选配置。
type ResolverOption func(*Resolver)

// WithProviderTimeout 设置模型调用的超时时间。
func WithProviderTimeout(timeout time.Duration) ResolverOption {
	return func(r *Resolver) {
		if timeout > 0 {
			r.timeout = timeout
		}
	}
}

// NewResolver 构建解析器。client 可以为 nil，表示未配置模型服务。
func NewResolver(client llm.Client, matcher *Matcher, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		client:  client,
		matcher: matcher,
		timeout: defaultResolveTimeout,
		log:     logger.Named("resolver"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.matcher == nil {
		r.matcher = NewMatcher(nil, "")
	}
	return r
}

// ProviderConfigured 报告是否存在可用的模型客户端。
func (r *Resolver) ProviderConfigured() bool {
	return r.client != nil
}

// Resolve 解析一条用户消息。单次有界流程：
// 模型调用 -> 响应解析 -> 归一化，任何一步失败都回退到规则匹配，
// 不存在递归的重解析路径。
func (r *Resolver) Resolve(ctx context.Context, message string, rctx Context) Intent {
	if r.client == nil {
		return r.matcher.Classify(message)
	}

	callCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	raw, err := r.client.Complete(callCtx, llm.Request{
		System: systemPrompt,
		User:   buildUserPrompt(message, rctx),
	})
	if err != nil {
		r.log.Warn("模型解析失败，回退到规则匹配",
			slog.Any("error", err),
			slog.String("code", string(xerrors.CodeProviderUnavailable)),
		)
		return r.matcher.Classify(message)
	}

	parsed, err := parseProviderResponse(raw)
	if err != nil {
		r.log.Warn("模型响应不符合约定格式，回退到规则匹配",
			slog.Any("error", err),
			slog.String("code", string(xerrors.CodeMalformedProviderResponse)),
		)
		return r.matcher.Classify(message)
	}
	return normalize(parsed)
}

// providerResponse 是模型响应约定的线格式。
type providerResponse struct {
	Intent               string         `json:"intent"`
	Parameters           map[string]any `json:"parameters"`
	Confidence           *float64       `json:"confidence"`
	ResponseMessage      string         `json:"response_message"`
	RequiresConfirmation *bool          `json:"requires_confirmation"`
}

// parseProviderResponse 从模型输出中截取 JSON 并反序列化。
// 模型偶尔会在 JSON 前后附带说明文字，因此按首末花括号截取。
func parseProviderResponse(raw string) (*providerResponse, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start < 0 || end <= start {
		return nil, xerrors.New(xerrors.CodeMalformedProviderResponse, "响应中找不到 JSON 对象")
	}

	var parsed providerResponse
	if err := json.Unmarshal([]byte(raw[start:end+1]), &parsed); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeMalformedProviderResponse, err, "响应 JSON 反序列化失败")
	}
	return &parsed, nil
}

// normalize 将线格式补齐为归一化的 Intent。
// 缺失 intent 时按 help 处理；集合外的名称映射为 unknown，
// 交给执行器的 help 处理器收尾，绝不重新进入解析流程。
func normalize(parsed *providerResponse) Intent {
	out := Intent{Confidence: defaultConfidence}

	if strings.TrimSpace(parsed.Intent) == "" {
		out.Name = NameHelp
	} else {
		out.Name = ParseName(parsed.Intent)
	}

	out.Params = coerceParams(parsed.Parameters)

	if parsed.Confidence != nil && *parsed.Confidence > 0 && *parsed.Confidence <= 1 {
		out.Confidence = *parsed.Confidence
	}

	out.ResponseMessage = strings.TrimSpace(parsed.ResponseMessage)
	if out.ResponseMessage == "" {
		out.ResponseMessage = "Let me take care of that for you."
	}

	if parsed.RequiresConfirmation != nil {
		out.RequiresConfirmation = *parsed.RequiresConfirmation
	} else {
		out.RequiresConfirmation = out.Name == NameSendTransaction
	}
	return out
}

// coerceParams 宽容地解析参数映射：金额可能是数字也可能是字符串。
func coerceParams(raw map[string]any) Params {
	var params Params
	if len(raw) == 0 {
		return params
	}

	switch v := raw["amount"].(type) {
	case float64:
		amount := decimal.NewFromFloat(v)
		params.Amount = &amount
	case string:
		if amount, err := decimal.NewFromString(strings.TrimSpace(v)); err == nil {
			params.Amount = &amount
		}
	}

	if symbol, ok := raw["symbol"].(string); ok {
		params.Symbol = strings.ToUpper(strings.TrimSpace(symbol))
	}
	if addr, ok := raw["to_address"].(string); ok {
		params.ToAddress = strings.TrimSpace(addr)
	}
	if hash, ok := raw["tx_hash"].(string); ok {
		params.TxHash = strings.TrimSpace(hash)
	}
	return params
}

// systemPrompt 固定枚举封闭意图集合与响应契约。
const systemPrompt = "" +
	"You are Senna, an AI wallet assistant for the Somnia blockchain. " +
	"Parse the user message and answer with ONLY a compact JSON object:\n" +
	`{"intent": "...", "parameters": {"amount": 0, "symbol": "STT", "to_address": "0x...", "tx_hash": "0x..."}, ` +
	`"confidence": 0.9, "response_message": "friendly reply", "requires_confirmation": false}` + "\n" +
	"Allowed intents: get_balance, send_transaction, create_wallet, get_price, " +
	"gas_price, transaction_status, help. Omit parameters you cannot extract. " +
	"Set requires_confirmation to true for send_transaction."

// buildUserPrompt 拼装用户提示词，附带已知的会话背景。
func buildUserPrompt(message string, rctx Context) string {
	var builder strings.Builder
	builder.WriteString("User message: \"")
	builder.WriteString(strings.TrimSpace(message))
	builder.WriteString("\"\n")

	if rctx.WalletAddress != "" {
		builder.WriteString("Current wallet address: " + rctx.WalletAddress + "\n")
	}
	if rctx.Balance != "" {
		builder.WriteString("Current balance: " + rctx.Balance + "\n")
	}
	if rctx.MarketSummary != "" {
		builder.WriteString("Market snapshot: " + rctx.MarketSummary + "\n")
	}

	builder.WriteString("\nExtract the intent and parameters. Focus on amounts, " +
		"token symbols, wallet addresses (0x... format) and transaction hashes. " +
		"Return only valid JSON.")
	return builder.String()
}
