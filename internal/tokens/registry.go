package tokens

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// Token 描述一种受支持的代币。
type Token struct {
	Symbol      string `json:"symbol"`
	Name        string `json:"name"`
	CoinGeckoID string `json:"coingecko_id"`
	Decimals    int    `json:"decimals"`
	Address     string `json:"address"`
	Native      bool   `json:"native"`
}

// Registry 维护封闭的代币集合，供意图解析与价格查询使用。
type Registry struct {
	bySymbol map[string]Token
	ordered  []string
	native   string
}

// NewRegistry 根据给定的代币列表构建注册表。
func NewRegistry(items []Token) *Registry {
	r := &Registry{bySymbol: make(map[string]Token, len(items))}
	for _, item := range items {
		symbol := strings.ToUpper(strings.TrimSpace(item.Symbol))
		if symbol == "" {
			continue
		}
		if _, exists := r.bySymbol[symbol]; exists {
			continue
		}
		item.Symbol = symbol
		r.bySymbol[symbol] = item
		r.ordered = append(r.ordered, symbol)
		if item.Native && r.native == "" {
			r.native = symbol
		}
	}
	sort.Strings(r.ordered)
	return r
}

// Load 从 JSON 文件加载代币定义。
func Load(path string) (*Registry, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取代币配置失败: %w", err)
	}
	var items []Token
	if err := json.Unmarshal(content, &items); err != nil {
		return nil, fmt.Errorf("解析代币配置失败: %w", err)
	}
	if len(items) == 0 {
		return nil, fmt.Errorf("代币配置为空: %s", path)
	}
	return NewRegistry(items), nil
}

// Default 返回内置的代币集合，覆盖 Somnia 测试网的常用资产。
func Default() *Registry {
	return NewRegistry([]Token{
		{Symbol: "STT", Name: "Somnia Test Token", Decimals: 18, Native: true},
		{Symbol: "SOMI", Name: "Somnia", CoinGeckoID: "somnia", Decimals: 18, Address: "0xc3DfbBc01Ed164F5f5b4E6B1501B20FfC9B3a49a"},
		{Symbol: "ETH", Name: "Ethereum", CoinGeckoID: "ethereum", Decimals: 18},
		{Symbol: "BTC", Name: "Bitcoin", CoinGeckoID: "bitcoin", Decimals: 8},
	})
}

// Lookup 返回符号对应的代币定义。
func (r *Registry) Lookup(symbol string) (Token, bool) {
	token, ok := r.bySymbol[strings.ToUpper(strings.TrimSpace(symbol))]
	return token, ok
}

// Symbols 返回全部受支持的符号，按字典序排列。
func (r *Registry) Symbols() []string {
	out := make([]string, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// NativeSymbol 返回链上原生代币的符号。
func (r *Registry) NativeSymbol() string {
	if r.native == "" {
		return "STT"
	}
	return r.native
}

// CoinGeckoID 返回符号对应的 CoinGecko 标识。
// 符号未登记时 ok 为 false；已登记但无行情来源时标识为空串。
func (r *Registry) CoinGeckoID(symbol string) (string, bool) {
	token, ok := r.Lookup(symbol)
	return token.CoinGeckoID, ok
}
