package wallet

import (
	"context"
	"math/big"

	"github.com/shopspring/decimal"
)

// GasTier 是 gas 价格档位的名称。
type GasTier string

const (
	GasTierSlow    GasTier = "slow"
	GasTierCurrent GasTier = "current"
	GasTierFast    GasTier = "fast"
	GasTierRapid   GasTier = "rapid"
)

// ChainSnapshot 汇总链的基础元信息，用于健康检查与展示。
type ChainSnapshot struct {
	Name        string `json:"name"`
	ChainID     string `json:"chain_id"`
	BlockNumber string `json:"block_number"`
	Symbol      string `json:"symbol"`
}

// Balance 是一次余额查询的结果。
type Balance struct {
	Address string          `json:"address"`
	Wei     *big.Int        `json:"-"`
	Amount  decimal.Decimal `json:"amount"`
	Symbol  string          `json:"symbol"`
}

// GasQuote 按档位给出当前 gas 价格，单位 gwei。
type GasQuote struct {
	Slow    decimal.Decimal `json:"slow"`
	Current decimal.Decimal `json:"current"`
	Fast    decimal.Decimal `json:"fast"`
	Rapid   decimal.Decimal `json:"rapid"`
	Symbol  string          `json:"symbol"`
}

// Tier 返回指定档位的价格，未知档位退回 current。
func (q GasQuote) Tier(tier GasTier) decimal.Decimal {
	switch tier {
	case GasTierSlow:
		return q.Slow
	case GasTierFast:
		return q.Fast
	case GasTierRapid:
		return q.Rapid
	default:
		return q.Current
	}
}

// CostEstimate 是一笔转账的费用预估。
type CostEstimate struct {
	GasLimit    uint64          `json:"gas_limit"`
	GasPriceWei *big.Int        `json:"-"`
	GasPrice    decimal.Decimal `json:"gas_price_gwei"`
	Fee         decimal.Decimal `json:"fee"`
	Total       decimal.Decimal `json:"total"`
	Symbol      string          `json:"symbol"`
}

// TransferRequest 描述一笔原生币转账。
type TransferRequest struct {
	To     string
	Amount decimal.Decimal
	Symbol string
	// GasTier 为空时使用 current 档位。
	GasTier GasTier
}

// TransferReceipt 是转账广播成功后的回执。
type TransferReceipt struct {
	Hash        string          `json:"hash"`
	From        string          `json:"from"`
	To          string          `json:"to"`
	Amount      decimal.Decimal `json:"amount"`
	Symbol      string          `json:"symbol"`
	GasLimit    uint64          `json:"gas_limit"`
	ExplorerURL string          `json:"explorer_url"`
}

// TxState 是交易的终态判定。
type TxState string

const (
	TxStatePending TxState = "pending"
	TxStateSuccess TxState = "success"
	TxStateFailed  TxState = "failed"
)

// TxStatus 是一次交易状态查询的结果。
type TxStatus struct {
	Hash        string  `json:"hash"`
	State       TxState `json:"state"`
	BlockNumber uint64  `json:"block_number,omitempty"`
	GasUsed     uint64  `json:"gas_used,omitempty"`
	ExplorerURL string  `json:"explorer_url"`
}

// NewWallet 是新创建钱包的敏感信息。
// 私钥只在创建响应中出现一次，调用方负责妥善保管。
type NewWallet struct {
	Address    string `json:"address"`
	PrivateKey string `json:"private_key"`
}

// Client 定义上层与具体链实现交互的统一契约。
type Client interface {
	// FetchChainSnapshot 拉取链的基础元信息。
	FetchChainSnapshot(ctx context.Context) (ChainSnapshot, error)
	// GetBalance 查询地址的原生币余额。
	GetBalance(ctx context.Context, address string) (Balance, error)
	// GasPrice 返回按档位划分的当前 gas 价格。
	GasPrice(ctx context.Context) (GasQuote, error)
	// EstimateCost 预估一笔转账的费用。
	EstimateCost(ctx context.Context, req TransferRequest) (CostEstimate, error)
	// Transfer 签名并广播一笔原生币转账。
	Transfer(ctx context.Context, req TransferRequest) (TransferReceipt, error)
	// TransactionStatus 查询交易回执状态。
	TransactionStatus(ctx context.Context, hash string) (TxStatus, error)
	// CreateWallet 生成一个新的密钥对。
	CreateWallet(ctx context.Context) (NewWallet, error)
	// SignerAddress 返回签名账户地址，未配置签名密钥时为空。
	SignerAddress() string
	// ExplorerTxURL 拼装交易的区块浏览器链接。
	ExplorerTxURL(hash string) string
	// ExplorerAddressURL 拼装地址的区块浏览器链接。
	ExplorerAddressURL(address string) string
	// Close 释放底层网络连接。
	Close()
}
