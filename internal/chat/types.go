package chat

import (
	"Senna-Wallet/internal/session"
	"Senna-Wallet/internal/wallet"
)

// Request 是一轮对话的输入。
type Request struct {
	// SessionID 为空时开启新会话。
	SessionID string `json:"session_id,omitempty"`
	// Message 是用户的自由文本输入。
	Message string `json:"message"`
	// WalletAddress 可选，作为会话的默认查询地址。
	WalletAddress string `json:"wallet_address,omitempty"`
	// ConfirmAction 显式确认或取消待执行操作，
	// 与消息里的 confirm/cancel 关键词等效。
	ConfirmAction *bool `json:"confirm_action,omitempty"`
	// SelectedOption 按 1 起始的序号选择候选操作。
	SelectedOption *int `json:"selected_option,omitempty"`
}

// Response 是一轮对话的输出。任何输入都会产出一个 Response，
// 失败以 Success=false 表达而非错误返回。
type Response struct {
	SessionID string `json:"session_id"`
	// Response 是面向用户的回复文本。
	Response string `json:"response"`
	// Action 标注本轮执行的操作名，纯寒暄时为空。
	Action  string `json:"action,omitempty"`
	Success bool   `json:"success"`
	// RequiresConfirmation 为 true 时存在待确认操作，
	// 用户下一条消息可以是 confirm 或 cancel。
	RequiresConfirmation bool `json:"requires_confirmation,omitempty"`
	// Data 是操作相关的结构化数据（余额、行情、gas 等）。
	Data map[string]any `json:"data,omitempty"`
	// TransactionData 只在转账预览与回执中出现。
	TransactionData map[string]any `json:"transaction_data,omitempty"`
	// ExplorerURL 指向区块浏览器中的交易或地址页面。
	ExplorerURL string `json:"explorer_url,omitempty"`
	// Options 是待用户按序号选择的候选操作。
	Options []string `json:"options,omitempty"`
	// SuggestedActions 是引导性的后续输入示例。
	SuggestedActions []string `json:"suggested_actions,omitempty"`
}

// ActionResult 是执行器单次处理的结果，由控制器转换为 Response。
type ActionResult struct {
	Message              string
	Action               string
	Success              bool
	RequiresConfirmation bool
	Data                 map[string]any
	TransactionData      map[string]any
	ExplorerURL          string
	Options              []session.Option
	SuggestedActions     []string
	// Receipt 只在转账确认成功后出现，供审计与通知使用。
	Receipt *wallet.TransferReceipt
}
