package llm

import "context"

// Request 描述一次发送给大模型的补全请求。
type Request struct {
	System string
	User   string
}

// Client 定义了调用自然语言补全服务的统一接口。
// 实现只负责返回模型的原始文本，解析交给调用方。
type Client interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// FailureKind 区分补全调用的失败类别。
type FailureKind string

const (
	FailureUnconfigured FailureKind = "unconfigured"
	FailureTimeout      FailureKind = "timeout"
	FailureHTTP         FailureKind = "http"
	FailureNetwork      FailureKind = "network"
)

// ProviderError 是补全调用失败时返回的统一错误类型。
type ProviderError struct {
	Kind    FailureKind
	Status  int
	Message string
	Cause   error
}

// Error 实现 error 接口。
func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return "llm: " + e.Message + ": " + e.Cause.Error()
	}
	return "llm: " + e.Message
}

// Unwrap 实现 errors.Unwrap。
func (e *ProviderError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}
