package chat

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	xerrors "Senna-Wallet/internal/errors"
	"Senna-Wallet/internal/intent"
	"Senna-Wallet/internal/price"
	"Senna-Wallet/internal/session"
	"Senna-Wallet/internal/tokens"
	"Senna-Wallet/internal/wallet"
	"Senna-Wallet/pkg/logger"
)

// Env 携带执行时的会话环境。
type Env struct {
	// WalletAddress 是会话绑定的默认查询地址，可为空。
	WalletAddress string
}

type handlerFunc func(ctx context.Context, it intent.Intent, env Env) ActionResult

// Executor 把归一化意图映射到具体的链上或行情操作。
// 分发表在构建时固定，未登记的意图落到 help 处理器。
type Executor struct {
	wallet   wallet.Client
	price    price.Service
	registry *tokens.Registry
	log      *slog.Logger
	handlers map[intent.Name]handlerFunc
}

// NewExecutor 构建执行器。
func NewExecutor(walletClient wallet.Client, priceService price.Service, registry *tokens.Registry) *Executor {
	if registry == nil {
		registry = tokens.Default()
	}
	e := &Executor{
		wallet:   walletClient,
		price:    priceService,
		registry: registry,
		log:      logger.Named("executor"),
	}
	e.handlers = map[intent.Name]handlerFunc{
		intent.NameGetBalance:        e.handleGetBalance,
		intent.NameSendTransaction:   e.handleSendPreview,
		intent.NameCreateWallet:      e.handleCreateWallet,
		intent.NameGetPrice:          e.handleGetPrice,
		intent.NameGasPrice:          e.handleGasPrice,
		intent.NameTransactionStatus: e.handleTransactionStatus,
		intent.NameHelp:              e.handleHelp,
		intent.NameUnknown:           e.handleHelp,
	}
	return e
}

// Dispatch 执行一个意图。执行器从不返回错误：
// 协作方失败折叠为 Success=false 的结果，回复永远能生成。
func (e *Executor) Dispatch(ctx context.Context, it intent.Intent, env Env) ActionResult {
	handler, ok := e.handlers[it.Name]
	if !ok {
		handler = e.handleHelp
	}

	result := handler(ctx, it, env)
	if result.Action == "" {
		result.Action = string(it.Name)
	}
	return result
}

// handleGetBalance 查询余额。优先使用消息中的地址，
// 其次是会话绑定地址，最后落到服务端签名账户。
func (e *Executor) handleGetBalance(ctx context.Context, it intent.Intent, env Env) ActionResult {
	address := it.Params.ToAddress
	if address == "" {
		address = env.WalletAddress
	}
	if address == "" && e.wallet != nil {
		address = e.wallet.SignerAddress()
	}
	if address == "" {
		return ActionResult{
			Message: "Which wallet should I check? Paste the address (0x...) and I'll look it up.",
			Success: true,
		}
	}

	balance, err := e.wallet.GetBalance(ctx, address)
	if err != nil {
		return e.failure(err, "I couldn't fetch that balance right now. Please try again in a moment.")
	}

	return ActionResult{
		Message: fmt.Sprintf("💰 The balance of %s is %s %s.",
			shortAddress(balance.Address), balance.Amount.Round(6), balance.Symbol),
		Success: true,
		Data: map[string]any{
			"address":      balance.Address,
			"balance":      balance.Amount.String(),
			"symbol":       balance.Symbol,
			"explorer_url": e.wallet.ExplorerAddressURL(balance.Address),
		},
		ExplorerURL: e.wallet.ExplorerAddressURL(balance.Address),
		SuggestedActions: []string{
			fmt.Sprintf("Send 0.1 %s to a friend", balance.Symbol),
			fmt.Sprintf("What's the %s price?", balance.Symbol),
		},
	}
}

// handleSendPreview 构建转账预览。参数不全时要求补充而不进入确认，
// 参数齐备时给出费用预估并等待用户确认。
func (e *Executor) handleSendPreview(ctx context.Context, it intent.Intent, _ Env) ActionResult {
	missing := make([]string, 0, 2)
	if it.Params.Amount == nil {
		missing = append(missing, "the amount")
	}
	if it.Params.ToAddress == "" {
		missing = append(missing, "the recipient address (0x...)")
	}
	if len(missing) > 0 {
		return ActionResult{
			Message: fmt.Sprintf("I can do that, but I still need %s. For example: \"send 0.5 %s to 0xAbC...\"",
				strings.Join(missing, " and "), e.nativeSymbol()),
			Success: true,
		}
	}

	symbol := it.Params.Symbol
	if symbol == "" {
		symbol = e.nativeSymbol()
	}
	req := wallet.TransferRequest{
		To:     it.Params.ToAddress,
		Amount: *it.Params.Amount,
		Symbol: symbol,
	}

	estimate, err := e.wallet.EstimateCost(ctx, req)
	if err != nil {
		return e.failure(err, "I couldn't estimate the network fee for that transfer. Please try again.")
	}

	return ActionResult{
		Message: fmt.Sprintf(
			"📝 Transfer preview:\n• Send: %s %s\n• To: %s\n• Network fee: ~%s %s\n• Total: %s %s\n\nReply \"confirm\" to send it or \"cancel\" to abort.",
			req.Amount, symbol, shortAddress(req.To),
			estimate.Fee.Round(8), estimate.Symbol,
			estimate.Total.Round(8), estimate.Symbol,
		),
		Success:              true,
		RequiresConfirmation: true,
		TransactionData: map[string]any{
			"to":        req.To,
			"amount":    req.Amount.String(),
			"symbol":    symbol,
			"gas_limit": estimate.GasLimit,
			"fee":       estimate.Fee.String(),
			"total":     estimate.Total.String(),
		},
		Options: []session.Option{
			{Label: "✅ Confirm", Message: "confirm"},
			{Label: "❌ Cancel", Message: "cancel"},
		},
	}
}

// ConfirmTransfer 执行已确认的转账。只会被控制器在确认路径调用。
func (e *Executor) ConfirmTransfer(ctx context.Context, it intent.Intent) ActionResult {
	if it.Params.Amount == nil || it.Params.ToAddress == "" {
		return ActionResult{
			Action:  string(intent.NameSendTransaction),
			Message: "Something went wrong with the pending transfer, so I didn't send anything. Please start over.",
			Success: false,
		}
	}

	symbol := it.Params.Symbol
	if symbol == "" {
		symbol = e.nativeSymbol()
	}
	receipt, err := e.wallet.Transfer(ctx, wallet.TransferRequest{
		To:     it.Params.ToAddress,
		Amount: *it.Params.Amount,
		Symbol: symbol,
	})
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeInsufficientBalance {
			return ActionResult{
				Action:  string(intent.NameSendTransaction),
				Message: "❌ The wallet balance can't cover the amount plus network fee, so nothing was sent.",
				Success: false,
			}
		}
		result := e.failure(err, "❌ The transfer failed and nothing was sent. Please try again later.")
		result.Action = string(intent.NameSendTransaction)
		return result
	}

	return ActionResult{
		Action: string(intent.NameSendTransaction),
		Message: fmt.Sprintf("✅ Sent %s %s to %s!\nTransaction: %s",
			receipt.Amount, receipt.Symbol, shortAddress(receipt.To), receipt.ExplorerURL),
		Success: true,
		TransactionData: map[string]any{
			"transaction_hash": receipt.Hash,
			"from":             receipt.From,
			"to":               receipt.To,
			"amount":           receipt.Amount.String(),
			"symbol":           receipt.Symbol,
			"explorer_url":     receipt.ExplorerURL,
		},
		ExplorerURL:      receipt.ExplorerURL,
		SuggestedActions: []string{"Check my balance", "Check transaction status " + receipt.Hash},
		Receipt:          &receipt,
	}
}

// handleCreateWallet 生成新钱包。创建是幂等安全的，从不要求确认。
func (e *Executor) handleCreateWallet(ctx context.Context, _ intent.Intent, _ Env) ActionResult {
	created, err := e.wallet.CreateWallet(ctx)
	if err != nil {
		return e.failure(err, "I couldn't create a wallet right now. Please try again.")
	}

	return ActionResult{
		Message: fmt.Sprintf(
			"🎉 Your new wallet is ready!\n• Address: %s\n• Private key: %s\n\n⚠️ Save the private key somewhere safe — I won't show it again.",
			created.Address, created.PrivateKey),
		Success: true,
		Data: map[string]any{
			"address":      created.Address,
			"private_key":  created.PrivateKey,
			"explorer_url": e.wallet.ExplorerAddressURL(created.Address),
		},
		ExplorerURL:      e.wallet.ExplorerAddressURL(created.Address),
		SuggestedActions: []string{"Check balance " + created.Address},
	}
}

// handleGetPrice 查询行情。
func (e *Executor) handleGetPrice(ctx context.Context, it intent.Intent, _ Env) ActionResult {
	symbol := it.Params.Symbol
	if symbol == "" {
		symbol = "SOMI"
	}

	quote, err := e.price.Quote(ctx, symbol)
	if err != nil {
		return e.failure(err, fmt.Sprintf("I couldn't get the %s price right now. Please try again.", symbol))
	}

	trend := "📈"
	if quote.Change24h.IsNegative() {
		trend = "📉"
	}
	message := fmt.Sprintf("%s %s is trading at %s (Rp %s)",
		trend, quote.Symbol, formatUSD(quote.USD), quote.IDR.Round(0))
	if !quote.Change24h.IsZero() {
		message += fmt.Sprintf(", %s%% in the last 24h", quote.Change24h.Round(2))
	}
	if quote.Source == "fallback" {
		message += " (reference price, live feed unavailable)"
	}
	message += "."

	return ActionResult{
		Message: message,
		Success: true,
		Data: map[string]any{
			"symbol":     quote.Symbol,
			"usd":        quote.USD.String(),
			"idr":        quote.IDR.String(),
			"change_24h": quote.Change24h.String(),
			"market_cap": quote.MarketCap.String(),
			"source":     quote.Source,
		},
	}
}

// handleGasPrice 查询 gas 档位。
func (e *Executor) handleGasPrice(ctx context.Context, _ intent.Intent, _ Env) ActionResult {
	quote, err := e.wallet.GasPrice(ctx)
	if err != nil {
		return e.failure(err, "I couldn't read the network gas price right now. Please try again.")
	}

	return ActionResult{
		Message: fmt.Sprintf(
			"⛽ Current gas prices (gwei):\n• Slow: %s\n• Standard: %s\n• Fast: %s\n• Rapid: %s",
			quote.Slow.Round(3), quote.Current.Round(3), quote.Fast.Round(3), quote.Rapid.Round(3)),
		Success: true,
		Data: map[string]any{
			"slow":    quote.Slow.String(),
			"current": quote.Current.String(),
			"fast":    quote.Fast.String(),
			"rapid":   quote.Rapid.String(),
			"unit":    "gwei",
		},
	}
}

// handleTransactionStatus 查询交易状态。
func (e *Executor) handleTransactionStatus(ctx context.Context, it intent.Intent, _ Env) ActionResult {
	if it.Params.TxHash == "" {
		return ActionResult{
			Message: "Paste the transaction hash (0x... with 64 hex characters) and I'll check it.",
			Success: true,
		}
	}

	status, err := e.wallet.TransactionStatus(ctx, it.Params.TxHash)
	if err != nil {
		if xerrors.CodeOf(err) == xerrors.CodeNotFound {
			return ActionResult{
				Message: "I couldn't find that transaction on the network. Double-check the hash and try again.",
				Success: false,
			}
		}
		return e.failure(err, "I couldn't check that transaction right now. Please try again.")
	}

	var message string
	switch status.State {
	case wallet.TxStateSuccess:
		message = fmt.Sprintf("✅ Transaction confirmed in block %d.\n%s", status.BlockNumber, status.ExplorerURL)
	case wallet.TxStateFailed:
		message = fmt.Sprintf("❌ Transaction failed on-chain.\n%s", status.ExplorerURL)
	default:
		message = fmt.Sprintf("⏳ Transaction is still pending. Check again shortly.\n%s", status.ExplorerURL)
	}

	return ActionResult{
		Message: message,
		Success: true,
		Data: map[string]any{
			"hash":         status.Hash,
			"state":        string(status.State),
			"block_number": status.BlockNumber,
			"gas_used":     status.GasUsed,
			"explorer_url": status.ExplorerURL,
		},
		ExplorerURL: status.ExplorerURL,
	}
}

// handleHelp 返回能力说明，也是 unknown 意图的兜底出口。
func (e *Executor) handleHelp(_ context.Context, it intent.Intent, _ Env) ActionResult {
	symbol := e.nativeSymbol()
	message := it.ResponseMessage
	if message == "" || it.Name == intent.NameHelp {
		if message == "" {
			message = "Hi! I'm Senna, your wallet assistant."
		}
		message += fmt.Sprintf("\n\nHere's what I can do:\n"+
			"• Check a balance — \"check my balance\"\n"+
			"• Send tokens — \"send 0.5 %s to 0x...\"\n"+
			"• Create a wallet — \"create a new wallet\"\n"+
			"• Token prices — \"what's the %s price?\"\n"+
			"• Gas prices — \"how much is gas?\"\n"+
			"• Transaction status — \"check tx 0x...\"", symbol, symbol)
	}

	return ActionResult{
		Action:  string(intent.NameHelp),
		Message: message,
		Success: true,
		SuggestedActions: []string{
			"Check my balance",
			fmt.Sprintf("What's the %s price?", symbol),
			"Create a new wallet",
		},
	}
}

// failure 把协作方错误折叠为失败结果并记录日志。
func (e *Executor) failure(err error, message string) ActionResult {
	e.log.Error("操作执行失败",
		slog.String("code", string(xerrors.CodeOf(err))),
		slog.Any("error", err),
	)
	return ActionResult{Message: message, Success: false}
}

func (e *Executor) nativeSymbol() string {
	return e.registry.NativeSymbol()
}

// shortAddress 缩写地址便于展示，非地址形态原样返回。
func shortAddress(address string) string {
	if len(address) < 12 || !strings.HasPrefix(address, "0x") {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

// formatUSD 按金额大小选择小数位数。
func formatUSD(usd decimal.Decimal) string {
	if usd.LessThan(decimal.NewFromInt(1)) {
		return "$" + usd.Round(4).String()
	}
	return "$" + usd.Round(2).String()
}
