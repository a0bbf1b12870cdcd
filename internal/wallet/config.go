package wallet

import (
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	xerrors "Senna-Wallet/internal/errors"
)

// ChainDefinitions 对应 configs/chains.yaml 的结构。
type ChainDefinitions struct {
	Chains map[string]ChainDefinition `yaml:"chains"`
}

// ChainDefinition 描述单条链的接入参数。
type ChainDefinition struct {
	Type        string `yaml:"type"`
	RPCURL      string `yaml:"rpc_url"`
	WSURL       string `yaml:"ws_url"`
	ChainID     int64  `yaml:"chain_id"`
	Symbol      string `yaml:"symbol"`
	ExplorerURL string `yaml:"explorer_url"`
	Description string `yaml:"description"`
}

// LoadChainDefinitions 解析链定义 YAML 文件。
func LoadChainDefinitions(path string) (ChainDefinitions, error) {
	if strings.TrimSpace(path) == "" {
		return ChainDefinitions{Chains: map[string]ChainDefinition{}}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return ChainDefinitions{}, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "读取链配置失败")
	}

	var defs ChainDefinitions
	if err := yaml.Unmarshal(content, &defs); err != nil {
		return ChainDefinitions{}, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析链配置失败")
	}
	if defs.Chains == nil {
		defs.Chains = map[string]ChainDefinition{}
	}
	return defs, nil
}
