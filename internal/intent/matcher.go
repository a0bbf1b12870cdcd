package intent

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"Senna-Wallet/internal/tokens"
)

// addressPattern 匹配带 0x 前缀的 40 位十六进制地址。
// 不带前缀的裸地址不做识别，这是有意的取舍而非疏漏。
var addressPattern = regexp.MustCompile(`0x[0-9a-fA-F]{40}`)

// txHashPattern 匹配 32 字节的交易哈希。
var txHashPattern = regexp.MustCompile(`0x[0-9a-fA-F]{64}`)

// rule 将一个意图与触发短语及固定置信度绑定。
type rule struct {
	name       Name
	phrases    []string
	confidence float64
}

// Matcher 是确定性的规则匹配器，作为大模型不可用时的兜底。
// 规则表有序，排在前面的意图在短语重叠时优先。
type Matcher struct {
	rules         []rule
	registry      *tokens.Registry
	amountPattern *regexp.Regexp
	defaultSymbol string
}

// NewMatcher 构建匹配器。defaultSymbol 用于价格查询未指明代币时兜底。
func NewMatcher(registry *tokens.Registry, defaultSymbol string) *Matcher {
	if registry == nil {
		registry = tokens.Default()
	}
	defaultSymbol = strings.ToUpper(strings.TrimSpace(defaultSymbol))
	if defaultSymbol == "" {
		defaultSymbol = "SOMI"
	}

	symbols := registry.Symbols()
	escaped := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		escaped = append(escaped, regexp.QuoteMeta(symbol))
	}
	amountPattern := regexp.MustCompile(
		fmt.Sprintf(`(?i)(\d+(?:\.\d+)?)\s*(%s)\b`, strings.Join(escaped, "|")),
	)

	return &Matcher{
		// 余额短语排在价格短语之前，gas 短语排在通用 price 之前，
		// 顺序即优先级。
		rules: []rule{
			{
				name:       NameGetBalance,
				phrases:    []string{"saldo", "balance", "cek saldo", "berapa saldo", "my balance", "check balance", "how much do i have"},
				confidence: 0.8,
			},
			{
				name:       NameSendTransaction,
				phrases:    []string{"kirim", "send", "transfer", "berikan", "kasih", "to 0x"},
				confidence: 0.7,
			},
			{
				name:       NameCreateWallet,
				phrases:    []string{"buat wallet", "buat dompet", "wallet baru", "dompet baru", "create wallet", "new wallet"},
				confidence: 0.9,
			},
			{
				name:       NameTransactionStatus,
				phrases:    []string{"status transaksi", "transaction status", "tx status", "sudah terkirim"},
				confidence: 0.8,
			},
			{
				name:       NameGasPrice,
				phrases:    []string{"gas price", "gas fee", "biaya gas", "gwei", "harga gas"},
				confidence: 0.8,
			},
			{
				name:       NameGetPrice,
				phrases:    []string{"harga", "price", "nilai", "berapa harga", "kurs", "current price", "what's the price"},
				confidence: 0.8,
			},
			{
				name:       NameHelp,
				phrases:    []string{"bantuan", "help", "tolong", "cara pakai", "what can you do", "how to use"},
				confidence: 0.9,
			},
		},
		registry:      registry,
		amountPattern: amountPattern,
		defaultSymbol: defaultSymbol,
	}
}

// Classify 对输入文本做意图分类与参数提取，永不失败。
// 同一输入永远得到同一结果。
func (m *Matcher) Classify(text string) Intent {
	lowered := strings.ToLower(text)
	for _, r := range m.rules {
		for _, phrase := range r.phrases {
			if strings.Contains(lowered, phrase) {
				return m.buildIntent(r, text)
			}
		}
	}

	return Intent{
		Name:            NameHelp,
		Confidence:      0.5,
		ResponseMessage: "I'm not sure what you want to do. Here's how I can help:",
	}
}

func (m *Matcher) buildIntent(r rule, text string) Intent {
	out := Intent{Name: r.name, Confidence: r.confidence}

	switch r.name {
	case NameSendTransaction:
		out.Params = m.extractSendParams(text)
		if out.Params.Amount == nil && out.Params.ToAddress == "" {
			out.Confidence = 0.3
		}
		out.RequiresConfirmation = true
		if out.Params.Amount != nil && out.Params.ToAddress != "" {
			out.ResponseMessage = fmt.Sprintf("I'll help you send %s %s to %s.",
				out.Params.Amount.String(), out.Params.Symbol, out.Params.ToAddress)
		} else {
			out.ResponseMessage = "Please specify both amount and recipient address. Example: 'Send 10 STT to 0x...'"
		}
	case NameGetBalance:
		if addr := addressPattern.FindString(text); addr != "" {
			out.Params.ToAddress = addr
		}
		out.ResponseMessage = "I'll check your balance for you."
	case NameGetPrice:
		out.Params.Symbol = m.extractSymbol(text)
		out.ResponseMessage = fmt.Sprintf("I'll check the current %s price for you.", out.Params.Symbol)
	case NameGasPrice:
		out.ResponseMessage = "I'll fetch the current gas prices for you."
	case NameTransactionStatus:
		out.Params.TxHash = txHashPattern.FindString(text)
		out.ResponseMessage = "I'll look up that transaction for you."
	case NameCreateWallet:
		out.ResponseMessage = "I'll create a new wallet for you."
	default:
		out.ResponseMessage = "Here's how I can help you:"
	}
	return out
}

// extractSendParams 提取转账金额、代币符号与目标地址。
// 消息中出现多组金额时只取第一组。
func (m *Matcher) extractSendParams(text string) Params {
	var params Params

	if match := m.amountPattern.FindStringSubmatch(text); match != nil {
		if amount, err := decimal.NewFromString(match[1]); err == nil {
			params.Amount = &amount
			params.Symbol = strings.ToUpper(match[2])
		}
	}
	params.ToAddress = addressPattern.FindString(text)
	return params
}

// extractSymbol 在文本中寻找已登记的代币符号，找不到则使用默认值。
func (m *Matcher) extractSymbol(text string) string {
	lowered := strings.ToLower(text)
	for _, symbol := range m.registry.Symbols() {
		if containsWord(lowered, strings.ToLower(symbol)) {
			return symbol
		}
	}
	return m.defaultSymbol
}

// containsWord 判断 haystack 中是否存在独立出现的 needle，
// 避免 "eth" 命中 "ethereum address" 之类的误判交给调用方兜底。
func containsWord(haystack, needle string) bool {
	idx := 0
	for {
		pos := strings.Index(haystack[idx:], needle)
		if pos < 0 {
			return false
		}
		start := idx + pos
		end := start + len(needle)
		startOK := start == 0 || !isWordChar(haystack[start-1])
		endOK := end == len(haystack) || !isWordChar(haystack[end])
		if startOK && endOK {
			return true
		}
		idx = start + 1
		if idx >= len(haystack) {
			return false
		}
	}
}

func isWordChar(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9'
}
