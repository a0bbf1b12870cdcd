package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"Senna-Wallet/internal/llm"
)

const (
	defaultBaseURL   = "https://api.groq.com/openai/v1"
	defaultModelName = "llama3-8b-8192"
	defaultTimeout   = 30 * time.Second
)

// Config 描述调用兼容 OpenAI Chat Completions 协议的服务所需的信息。
// Groq 与 DeepSeek 均使用该协议，只是 BaseURL 与模型名不同。
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int
}

// Client 通过 HTTP 调用补全服务。
type Client struct {
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// NewClient 根据配置创建客户端。
func NewClient(cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, &llm.ProviderError{Kind: llm.FailureUnconfigured, Message: "未提供 API Key"}
	}

	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = defaultModelName
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	temperature := cfg.Temperature
	if temperature <= 0 {
		temperature = 0.1
	}

	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 500
	}

	return &Client{
		apiKey:      apiKey,
		baseURL:     baseURL,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// Complete 调用 chat/completions 接口并返回模型的原始文本。
// 响应内容不做任何结构化解析，格式校验由调用方负责。
func (c *Client) Complete(ctx context.Context, req llm.Request) (string, error) {
	payload, err := c.buildPayload(req)
	if err != nil {
		return "", err
	}

	endpoint := c.baseURL + "/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", &llm.ProviderError{Kind: llm.FailureNetwork, Message: "构建补全请求失败", Cause: err}
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		kind := llm.FailureNetwork
		message := "请求补全服务失败"
		if errors.Is(err, context.DeadlineExceeded) {
			kind = llm.FailureTimeout
			message = "补全服务响应超时"
		}
		return "", &llm.ProviderError{Kind: kind, Message: message, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", &llm.ProviderError{
			Kind:    llm.FailureHTTP,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("补全服务返回错误状态 %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}

	var decoded struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", &llm.ProviderError{Kind: llm.FailureNetwork, Message: "解析补全响应失败", Cause: err}
	}
	if len(decoded.Choices) == 0 {
		return "", &llm.ProviderError{Kind: llm.FailureNetwork, Message: "补全响应中没有有效的 choices"}
	}

	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return "", &llm.ProviderError{Kind: llm.FailureNetwork, Message: "补全响应内容为空"}
	}
	return content, nil
}

func (c *Client) buildPayload(req llm.Request) ([]byte, error) {
	type message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}

	messages := []message{
		{Role: "system", Content: req.System},
		{Role: "user", Content: req.User},
	}

	body := map[string]any{
		"model":       c.model,
		"messages":    messages,
		"temperature": c.temperature,
		"max_tokens":  c.maxTokens,
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, &llm.ProviderError{Kind: llm.FailureNetwork, Message: "序列化补全请求失败", Cause: err}
	}
	return encoded, nil
}
