package intent

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Name 表示封闭集合内的意图名称。
type Name string

const (
	NameGetBalance        Name = "get_balance"
	NameSendTransaction   Name = "send_transaction"
	NameCreateWallet      Name = "create_wallet"
	NameGetPrice          Name = "get_price"
	NameGasPrice          Name = "gas_price"
	NameTransactionStatus Name = "transaction_status"
	NameHelp              Name = "help"
	NameUnknown           Name = "unknown"
)

// knownNames 是解析结果允许出现的全部意图。
var knownNames = map[Name]struct{}{
	NameGetBalance:        {},
	NameSendTransaction:   {},
	NameCreateWallet:      {},
	NameGetPrice:          {},
	NameGasPrice:          {},
	NameTransactionStatus: {},
	NameHelp:              {},
	NameUnknown:           {},
}

// ParseName 将任意字符串映射到封闭意图集合。
// 集合之外的名称一律归为 unknown，避免解析结果扩散。
func ParseName(raw string) Name {
	name := Name(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := knownNames[name]; ok {
		return name
	}
	return NameUnknown
}

// Params 承载从用户消息中提取的结构化参数。
type Params struct {
	Amount    *decimal.Decimal `json:"amount,omitempty"`
	Symbol    string           `json:"symbol,omitempty"`
	ToAddress string           `json:"to_address,omitempty"`
	TxHash    string           `json:"tx_hash,omitempty"`
}

// Empty 判断是否没有提取到任何参数。
func (p Params) Empty() bool {
	return p.Amount == nil && p.Symbol == "" && p.ToAddress == "" && p.TxHash == ""
}

// Intent 是一次意图解析的完整结果，每轮对话都会重新生成。
type Intent struct {
	Name                 Name    `json:"intent"`
	Params               Params  `json:"parameters"`
	Confidence           float64 `json:"confidence"`
	RequiresConfirmation bool    `json:"requires_confirmation"`
	ResponseMessage      string  `json:"response_message"`
}
