package errors

import (
	stdErrors "errors"
	"fmt"
	"sync"
)

// Code 表示系统内的统一错误码。
type Code string

// Severity 描述错误的严重程度，用于告警和审计。
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

// Attributes 为错误码提供默认行为。
type Attributes struct {
	Message   string
	Severity  Severity
	Retryable bool
	Alert     bool
}

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeInvalidArgument       Code = "INVALID_ARGUMENT"
	CodeNotFound              Code = "NOT_FOUND"
	CodeInitializationFailure Code = "INITIALIZATION_FAILURE"
	CodeStorageFailure        Code = "STORAGE_FAILURE"
	CodeTimeout               Code = "TIMEOUT"

	// 会话与意图解析相关的错误码。
	CodeProviderUnavailable       Code = "PROVIDER_UNAVAILABLE"
	CodeMalformedProviderResponse Code = "MALFORMED_PROVIDER_RESPONSE"
	CodeUnknownIntent             Code = "UNKNOWN_INTENT"
	CodeMissingParameters         Code = "MISSING_PARAMETERS"
	CodeInvalidAddress            Code = "INVALID_ADDRESS"
	CodeInsufficientBalance       Code = "INSUFFICIENT_BALANCE"
	CodeSessionExpired            Code = "SESSION_EXPIRED"
	CodeCollaboratorFailure       Code = "COLLABORATOR_FAILURE"
	CodeNoPendingAction           Code = "NO_PENDING_ACTION"
)

var (
	registryMu sync.RWMutex
	registry   = map[Code]Attributes{
		CodeUnknown: {
			Message:   "unknown error",
			Severity:  SeverityCritical,
			Retryable: false,
			Alert:     true,
		},
		CodeInvalidArgument: {
			Message:   "invalid argument",
			Severity:  SeverityInfo,
			Retryable: false,
			Alert:     false,
		},
		CodeNotFound: {
			Message:   "resource not found",
			Severity:  SeverityInfo,
			Retryable: false,
			Alert:     false,
		},
		CodeInitializationFailure: {
			Message:   "service not initialized",
			Severity:  SeverityWarning,
			Retryable: true,
			Alert:     true,
		},
		CodeStorageFailure: {
			Message:   "storage failure",
			Severity:  SeverityCritical,
			Retryable: true,
			Alert:     true,
		},
		CodeTimeout: {
			Message:   "operation timed out",
			Severity:  SeverityWarning,
			Retryable: true,
			Alert:     true,
		},
		CodeProviderUnavailable: {
			Message:   "language model provider unavailable",
			Severity:  SeverityInfo,
			Retryable: true,
			Alert:     false,
		},
		CodeMalformedProviderResponse: {
			Message:   "malformed provider response",
			Severity:  SeverityInfo,
			Retryable: false,
			Alert:     false,
		},
		CodeUnknownIntent: {
			Message:   "unknown intent",
			Severity:  SeverityInfo,
			Retryable: false,
			Alert:     false,
		},
		CodeMissingParameters: {
			Message:   "missing required parameters",
			Severity:  SeverityInfo,
			Retryable: false,
			Alert:     false,
		},
		CodeInvalidAddress: {
			Message:   "invalid wallet address",
			Severity:  SeverityInfo,
			Retryable: false,
			Alert:     false,
		},
		CodeInsufficientBalance: {
			Message:   "insufficient balance",
			Severity:  SeverityInfo,
			Retryable: false,
			Alert:     false,
		},
		CodeSessionExpired: {
			Message:   "session expired",
			Severity:  SeverityInfo,
			Retryable: false,
			Alert:     false,
		},
		CodeCollaboratorFailure: {
			Message:   "collaborator call failed",
			Severity:  SeverityWarning,
			Retryable: true,
			Alert:     true,
		},
		CodeNoPendingAction: {
			Message:   "no pending action to confirm",
			Severity:  SeverityInfo,
			Retryable: false,
			Alert:     false,
		},
	}
)

// Register 允许业务模块在初始化阶段注册新的错误码描述。
func Register(code Code, attr Attributes) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[code] = attr
}

// AttributesOf 返回错误码对应的属性。若未注册则返回 UNKNOWN 的属性。
func AttributesOf(code Code) Attributes {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if attr, ok := registry[code]; ok {
		return attr
	}
	return registry[CodeUnknown]
}

// Error 是系统内统一的错误类型。
type Error struct {
	code     Code
	message  string
	cause    error
	metadata map[string]string
	severity *Severity
	alert    *bool
}

// Option 定义可选配置。
type Option func(*Error)

// WithMetadata 附加额外信息，多次调用时合并。
func WithMetadata(metadata map[string]string) Option {
	return func(e *Error) {
		if len(metadata) == 0 {
			return
		}
		if e.metadata == nil {
			e.metadata = make(map[string]string, len(metadata))
		}
		for k, v := range metadata {
			e.metadata[k] = v
		}
	}
}

// WithAlert 指定错误是否需要告警。
func WithAlert(alert bool) Option {
	return func(e *Error) {
		e.alert = &alert
	}
}

// WithSeverity 覆盖默认严重程度。
func WithSeverity(sev Severity) Option {
	return func(e *Error) {
		e.severity = &sev
	}
}

// New 创建一个新的错误实例。
func New(code Code, message string, opts ...Option) *Error {
	if message == "" {
		message = AttributesOf(code).Message
	}
	e := &Error{code: code, message: message}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

// Wrap 在已有错误外包裹统一错误类型。
func Wrap(code Code, cause error, message string, opts ...Option) *Error {
	e := New(code, message, opts...)
	e.cause = cause
	return e
}

// Error 实现 error 接口。
func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.code, e.message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.code, e.message)
}

// Unwrap 实现 errors.Unwrap。
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.cause
}

// Is 允许通过 errors.Is 判断是否相同错误码。
func (e *Error) Is(target error) bool {
	if e == nil || target == nil {
		return false
	}
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.code == t.code
}

// Code 返回错误码。
func (e *Error) Code() Code {
	if e == nil {
		return CodeUnknown
	}
	return e.code
}

// Message 返回错误信息。
func (e *Error) Message() string {
	if e == nil {
		return ""
	}
	return e.message
}

// Metadata 返回附加信息。
func (e *Error) Metadata() map[string]string {
	if e == nil || len(e.metadata) == 0 {
		return nil
	}
	clone := make(map[string]string, len(e.metadata))
	for k, v := range e.metadata {
		clone[k] = v
	}
	return clone
}

// ShouldAlert 判断是否需要告警。
func (e *Error) ShouldAlert() bool {
	if e == nil {
		return false
	}
	if e.alert != nil {
		return *e.alert
	}
	return AttributesOf(e.code).Alert
}

// Severity 返回错误严重程度。
func (e *Error) Severity() Severity {
	if e == nil {
		return SeverityInfo
	}
	if e.severity != nil {
		return *e.severity
	}
	return AttributesOf(e.code).Severity
}

// From 尝试从 error 中解析统一错误类型。
func From(err error) (*Error, bool) {
	if err == nil {
		return nil, false
	}
	var target *Error
	if stdErrors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// CodeOf 返回错误对应的错误码。
func CodeOf(err error) Code {
	if e, ok := From(err); ok {
		return e.Code()
	}
	return CodeUnknown
}

// ShouldAlert 判断任意 error 是否需要触发告警。
func ShouldAlert(err error) bool {
	if e, ok := From(err); ok {
		return e.ShouldAlert()
	}
	return false
}

// SeverityOf 返回任意 error 的严重程度。
func SeverityOf(err error) Severity {
	if e, ok := From(err); ok {
		return e.Severity()
	}
	return AttributesOf(CodeUnknown).Severity
}
