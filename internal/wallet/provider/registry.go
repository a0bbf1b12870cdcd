package provider

import (
	"context"
	"sort"
	"strings"

	"Senna-Wallet/internal/wallet"
	"Senna-Wallet/internal/wallet/ethereum"

	xerrors "Senna-Wallet/internal/errors"
)

// Config 描述注册表的构建参数。
type Config struct {
	// ChainConfig 是 chains.yaml 的路径。
	ChainConfig string
	// DefaultChain 是默认链名，为空时按名称排序取第一个。
	DefaultChain string
	// PrivateKey 是签名账户私钥，应用到所有链客户端。
	PrivateKey string
}

// Registry 按链名管理一组链客户端。
type Registry struct {
	defaultChain string
	clients      map[string]wallet.Client
}

// NewRegistry 加载链定义并实例化各链的客户端。
func NewRegistry(ctx context.Context, cfg Config) (*Registry, error) {
	defs, err := wallet.LoadChainDefinitions(cfg.ChainConfig)
	if err != nil {
		return nil, err
	}

	clients := make(map[string]wallet.Client)
	for name, chain := range defs.Chains {
		chainType := strings.ToLower(strings.TrimSpace(chain.Type))
		if chainType == "" {
			chainType = "evm"
		}
		switch chainType {
		case "evm":
			client, err := ethereum.NewClient(ctx, ethereum.Config{
				Name:        name,
				RPCURL:      chain.RPCURL,
				ChainID:     chain.ChainID,
				Symbol:      chain.Symbol,
				ExplorerURL: chain.ExplorerURL,
				PrivateKey:  cfg.PrivateKey,
			})
			if err != nil {
				return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "初始化链 "+name+" 失败")
			}
			clients[name] = client
		default:
			return nil, xerrors.New(xerrors.CodeInitializationFailure,
				"链 "+name+" 使用了不支持的类型 "+chain.Type)
		}
	}

	if len(clients) == 0 {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置任何链的 RPC 端点")
	}

	defaultChain := strings.TrimSpace(cfg.DefaultChain)
	if defaultChain == "" {
		names := make([]string, 0, len(clients))
		for name := range clients {
			names = append(names, name)
		}
		sort.Strings(names)
		defaultChain = names[0]
	}
	if _, ok := clients[defaultChain]; !ok {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "默认链 "+defaultChain+" 未在配置中找到")
	}

	return &Registry{defaultChain: defaultChain, clients: clients}, nil
}

// DefaultClient 返回配置为默认链的客户端。
func (r *Registry) DefaultClient() (wallet.Client, error) {
	if r == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未初始化的链客户端注册表")
	}
	client, ok := r.clients[r.defaultChain]
	if !ok {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "默认链 "+r.defaultChain+" 未在注册表中")
	}
	return client, nil
}

// Client 按名称返回链客户端。
func (r *Registry) Client(name string) (wallet.Client, bool) {
	if r == nil {
		return nil, false
	}
	client, ok := r.clients[name]
	return client, ok
}

// Chains 返回已注册的链名列表。
func (r *Registry) Chains() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.clients))
	for name := range r.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close 释放注册表管理的全部客户端。
func (r *Registry) Close() {
	if r == nil {
		return
	}
	for name, client := range r.clients {
		if client != nil {
			client.Close()
		}
		delete(r.clients, name)
	}
}
