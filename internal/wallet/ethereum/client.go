package ethereum

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"Senna-Wallet/internal/wallet"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"

	xerrors "Senna-Wallet/internal/errors"
)

// 原生币与 gas 的精度常量。
const (
	nativeDecimals = 18
	gweiDecimals   = 9
	transferGas    = 21000
)

// 余额与 gas 价格的本地缓存时长。
const (
	balanceCacheTTL = 30 * time.Second
	gasCacheTTL     = 60 * time.Second
)

// gas 档位相对于节点建议价格的百分比。
const (
	slowPercent  = 80
	fastPercent  = 120
	rapidPercent = 150
)

// Config 描述构建 EVM 兼容钱包客户端所需的参数。
type Config struct {
	Name        string
	RPCURL      string
	ChainID     int64
	Symbol      string
	ExplorerURL string
	// PrivateKey 是签名账户的十六进制私钥，可为空（只读模式）。
	PrivateKey string
}

type cachedBalance struct {
	wei *big.Int
	at  time.Time
}

type cachedGasPrice struct {
	wei *big.Int
	at  time.Time
}

// Client 是 wallet.Client 在 EVM 兼容链上的实现。
type Client struct {
	name        string
	symbol      string
	explorerURL string
	chainID     *big.Int
	rpcClient   *gethrpc.Client
	eth         *ethclient.Client
	backend     backend

	signerKey  *ecdsa.PrivateKey
	signerAddr common.Address

	now func() time.Time

	mu       sync.Mutex
	balances map[common.Address]cachedBalance
	gasPrice *cachedGasPrice
}

// backend 抽象出 ethclient 中用到的方法子集，
// 测试可以在没有节点的情况下注入桩实现。
type backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	BlockNumber(ctx context.Context) (uint64, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, call gethcore.CallMsg) (uint64, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *coretypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*coretypes.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*coretypes.Transaction, bool, error)
}

// NewClient 连接配置的 RPC 端点并返回可用的客户端。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	rpcURL := strings.TrimSpace(cfg.RPCURL)
	if rpcURL == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置链的 RPC 地址")
	}

	rpcClient, err := gethrpc.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "连接链节点失败")
	}
	eth := ethclient.NewClient(rpcClient)

	client := &Client{
		name:        cfg.Name,
		symbol:      strings.ToUpper(strings.TrimSpace(cfg.Symbol)),
		explorerURL: strings.TrimRight(strings.TrimSpace(cfg.ExplorerURL), "/"),
		rpcClient:   rpcClient,
		eth:         eth,
		backend:     eth,
		now:         time.Now,
		balances:    make(map[common.Address]cachedBalance),
	}
	if cfg.ChainID > 0 {
		client.chainID = big.NewInt(cfg.ChainID)
	}

	if key := strings.TrimSpace(cfg.PrivateKey); key != "" {
		signerKey, err := crypto.HexToECDSA(strings.TrimPrefix(key, "0x"))
		if err != nil {
			rpcClient.Close()
			return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "解析签名私钥失败")
		}
		client.signerKey = signerKey
		client.signerAddr = crypto.PubkeyToAddress(signerKey.PublicKey)
	}

	return client, nil
}

// NewStubClient wires a stub backend for testing purposes.
func NewStubClient(name string, chainID *big.Int, stub backend) *Client {
	return &Client{
		name:     name,
		symbol:   "STT",
		chainID:  new(big.Int).Set(chainID),
		backend:  stub,
		now:      time.Now,
		balances: make(map[common.Address]cachedBalance),
	}
}

var _ wallet.Client = (*Client)(nil)

// Close releases network connections held by the client.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.eth != nil {
		c.eth.Close()
		c.eth = nil
	}
	if c.rpcClient != nil {
		c.rpcClient.Close()
		c.rpcClient = nil
	}
	c.backend = nil
}

// FetchChainSnapshot gathers lightweight metadata from the chain.
func (c *Client) FetchChainSnapshot(ctx context.Context) (wallet.ChainSnapshot, error) {
	if c == nil || c.backend == nil {
		return wallet.ChainSnapshot{}, xerrors.New(xerrors.CodeInitializationFailure, "未初始化的链客户端")
	}

	chainID := c.chainID
	if chainID == nil {
		fetched, err := c.backend.ChainID(ctx)
		if err != nil {
			return wallet.ChainSnapshot{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "获取链 ID 失败")
		}
		chainID = fetched
	}
	blockNumber, err := c.backend.BlockNumber(ctx)
	if err != nil {
		return wallet.ChainSnapshot{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "获取最新区块高度失败")
	}

	return wallet.ChainSnapshot{
		Name:        c.name,
		ChainID:     chainID.String(),
		BlockNumber: fmt.Sprintf("%d", blockNumber),
		Symbol:      c.symbol,
	}, nil
}

// GetBalance 查询地址余额，命中本地缓存时不访问节点。
func (c *Client) GetBalance(ctx context.Context, address string) (wallet.Balance, error) {
	if !common.IsHexAddress(address) {
		return wallet.Balance{}, xerrors.New(xerrors.CodeInvalidAddress, "地址格式不合法",
			xerrors.WithMetadata(map[string]string{"address": address}))
	}
	addr := common.HexToAddress(address)

	wei, err := c.balanceAt(ctx, addr)
	if err != nil {
		return wallet.Balance{}, err
	}

	return wallet.Balance{
		Address: addr.Hex(),
		Wei:     wei,
		Amount:  decimal.NewFromBigInt(wei, -nativeDecimals),
		Symbol:  c.symbol,
	}, nil
}

func (c *Client) balanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	now := c.now()

	c.mu.Lock()
	if cached, ok := c.balances[addr]; ok && now.Sub(cached.at) < balanceCacheTTL {
		wei := new(big.Int).Set(cached.wei)
		c.mu.Unlock()
		return wei, nil
	}
	c.mu.Unlock()

	wei, err := c.backend.BalanceAt(ctx, addr, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "查询余额失败")
	}

	c.mu.Lock()
	c.balances[addr] = cachedBalance{wei: new(big.Int).Set(wei), at: now}
	c.mu.Unlock()

	return wei, nil
}

// GasPrice 返回按档位划分的 gas 价格，底层建议价缓存 60 秒。
func (c *Client) GasPrice(ctx context.Context) (wallet.GasQuote, error) {
	wei, err := c.suggestGasPrice(ctx)
	if err != nil {
		return wallet.GasQuote{}, err
	}

	current := decimal.NewFromBigInt(wei, -gweiDecimals)
	return wallet.GasQuote{
		Slow:    tierPrice(current, slowPercent),
		Current: current,
		Fast:    tierPrice(current, fastPercent),
		Rapid:   tierPrice(current, rapidPercent),
		Symbol:  c.symbol,
	}, nil
}

func tierPrice(current decimal.Decimal, percent int64) decimal.Decimal {
	return current.Mul(decimal.NewFromInt(percent)).Div(decimal.NewFromInt(100))
}

func (c *Client) suggestGasPrice(ctx context.Context) (*big.Int, error) {
	now := c.now()

	c.mu.Lock()
	if c.gasPrice != nil && now.Sub(c.gasPrice.at) < gasCacheTTL {
		wei := new(big.Int).Set(c.gasPrice.wei)
		c.mu.Unlock()
		return wei, nil
	}
	c.mu.Unlock()

	wei, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "获取 gas 价格失败")
	}

	c.mu.Lock()
	c.gasPrice = &cachedGasPrice{wei: new(big.Int).Set(wei), at: now}
	c.mu.Unlock()

	return wei, nil
}

// EstimateCost 预估一笔转账的 gas 上限与总费用。
func (c *Client) EstimateCost(ctx context.Context, req wallet.TransferRequest) (wallet.CostEstimate, error) {
	if !common.IsHexAddress(req.To) {
		return wallet.CostEstimate{}, xerrors.New(xerrors.CodeInvalidAddress, "收款地址格式不合法",
			xerrors.WithMetadata(map[string]string{"address": req.To}))
	}

	gasPriceWei, err := c.suggestGasPrice(ctx)
	if err != nil {
		return wallet.CostEstimate{}, err
	}
	gasPriceWei = applyTier(gasPriceWei, req.GasTier)

	to := common.HexToAddress(req.To)
	value := amountToWei(req.Amount)
	gasLimit, err := c.backend.EstimateGas(ctx, gethcore.CallMsg{
		From:  c.signerAddr,
		To:    &to,
		Value: value,
	})
	if err != nil {
		// 节点拒绝估算时退回原生转账的固定 gas。
		gasLimit = transferGas
	}

	feeWei := new(big.Int).Mul(gasPriceWei, new(big.Int).SetUint64(gasLimit))
	fee := decimal.NewFromBigInt(feeWei, -nativeDecimals)

	return wallet.CostEstimate{
		GasLimit:    gasLimit,
		GasPriceWei: gasPriceWei,
		GasPrice:    decimal.NewFromBigInt(gasPriceWei, -gweiDecimals),
		Fee:         fee,
		Total:       req.Amount.Add(fee),
		Symbol:      c.symbol,
	}, nil
}

// Transfer 签名并广播一笔原生币转账。
// 广播前复查余额，金额加费用超出余额时拒绝。
func (c *Client) Transfer(ctx context.Context, req wallet.TransferRequest) (wallet.TransferReceipt, error) {
	if c.signerKey == nil {
		return wallet.TransferReceipt{}, xerrors.New(xerrors.CodeInitializationFailure, "未配置签名私钥，无法发起转账")
	}
	if !common.IsHexAddress(req.To) {
		return wallet.TransferReceipt{}, xerrors.New(xerrors.CodeInvalidAddress, "收款地址格式不合法",
			xerrors.WithMetadata(map[string]string{"address": req.To}))
	}
	if !req.Amount.IsPositive() {
		return wallet.TransferReceipt{}, xerrors.New(xerrors.CodeInvalidArgument, "转账金额必须为正数")
	}

	estimate, err := c.EstimateCost(ctx, req)
	if err != nil {
		return wallet.TransferReceipt{}, err
	}

	balanceWei, err := c.backend.BalanceAt(ctx, c.signerAddr, nil)
	if err != nil {
		return wallet.TransferReceipt{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "查询余额失败")
	}
	value := amountToWei(req.Amount)
	totalWei := new(big.Int).Add(value, new(big.Int).Mul(estimate.GasPriceWei, new(big.Int).SetUint64(estimate.GasLimit)))
	if balanceWei.Cmp(totalWei) < 0 {
		return wallet.TransferReceipt{}, xerrors.New(xerrors.CodeInsufficientBalance, "余额不足以支付金额与手续费",
			xerrors.WithMetadata(map[string]string{
				"balance":  decimal.NewFromBigInt(balanceWei, -nativeDecimals).String(),
				"required": decimal.NewFromBigInt(totalWei, -nativeDecimals).String(),
			}))
	}

	nonce, err := c.backend.PendingNonceAt(ctx, c.signerAddr)
	if err != nil {
		return wallet.TransferReceipt{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "查询交易计数失败")
	}

	chainID := c.chainID
	if chainID == nil {
		chainID, err = c.backend.ChainID(ctx)
		if err != nil {
			return wallet.TransferReceipt{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "获取链 ID 失败")
		}
	}

	to := common.HexToAddress(req.To)
	tx := coretypes.NewTransaction(nonce, to, value, estimate.GasLimit, estimate.GasPriceWei, nil)
	signed, err := coretypes.SignTx(tx, coretypes.LatestSignerForChainID(chainID), c.signerKey)
	if err != nil {
		return wallet.TransferReceipt{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "签名交易失败")
	}

	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return wallet.TransferReceipt{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "广播交易失败")
	}

	// 广播后作废本地余额缓存，下一次查询回源。
	c.mu.Lock()
	delete(c.balances, c.signerAddr)
	c.mu.Unlock()

	hash := signed.Hash().Hex()
	return wallet.TransferReceipt{
		Hash:        hash,
		From:        c.signerAddr.Hex(),
		To:          to.Hex(),
		Amount:      req.Amount,
		Symbol:      c.symbol,
		GasLimit:    estimate.GasLimit,
		ExplorerURL: c.ExplorerTxURL(hash),
	}, nil
}

// TransactionStatus 查询交易回执。尚未上链的交易报告 pending。
func (c *Client) TransactionStatus(ctx context.Context, hash string) (wallet.TxStatus, error) {
	trimmed := strings.TrimSpace(hash)
	if !strings.HasPrefix(trimmed, "0x") || len(trimmed) != 66 {
		return wallet.TxStatus{}, xerrors.New(xerrors.CodeInvalidArgument, "交易哈希格式不合法",
			xerrors.WithMetadata(map[string]string{"hash": hash}))
	}
	txHash := common.HexToHash(trimmed)

	receipt, err := c.backend.TransactionReceipt(ctx, txHash)
	if err != nil {
		if errors.Is(err, gethcore.NotFound) {
			if _, pending, txErr := c.backend.TransactionByHash(ctx, txHash); txErr == nil && pending {
				return wallet.TxStatus{
					Hash:        txHash.Hex(),
					State:       wallet.TxStatePending,
					ExplorerURL: c.ExplorerTxURL(txHash.Hex()),
				}, nil
			}
			return wallet.TxStatus{}, xerrors.New(xerrors.CodeNotFound, "交易不存在",
				xerrors.WithMetadata(map[string]string{"hash": trimmed}))
		}
		return wallet.TxStatus{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "查询交易回执失败")
	}

	state := wallet.TxStateFailed
	if receipt.Status == coretypes.ReceiptStatusSuccessful {
		state = wallet.TxStateSuccess
	}
	return wallet.TxStatus{
		Hash:        txHash.Hex(),
		State:       state,
		BlockNumber: receipt.BlockNumber.Uint64(),
		GasUsed:     receipt.GasUsed,
		ExplorerURL: c.ExplorerTxURL(txHash.Hex()),
	}, nil
}

// CreateWallet 生成新的密钥对。密钥不落盘，只出现在返回值中。
func (c *Client) CreateWallet(_ context.Context) (wallet.NewWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return wallet.NewWallet{}, xerrors.Wrap(xerrors.CodeCollaboratorFailure, err, "生成密钥对失败")
	}
	return wallet.NewWallet{
		Address:    crypto.PubkeyToAddress(key.PublicKey).Hex(),
		PrivateKey: "0x" + hex.EncodeToString(crypto.FromECDSA(key)),
	}, nil
}

// SignerAddress 返回签名账户地址。
func (c *Client) SignerAddress() string {
	if c == nil || c.signerKey == nil {
		return ""
	}
	return c.signerAddr.Hex()
}

// ExplorerTxURL 拼装交易的区块浏览器链接。
func (c *Client) ExplorerTxURL(hash string) string {
	if c.explorerURL == "" {
		return ""
	}
	return c.explorerURL + "/tx/" + hash
}

// ExplorerAddressURL 拼装地址的区块浏览器链接。
func (c *Client) ExplorerAddressURL(address string) string {
	if c.explorerURL == "" {
		return ""
	}
	return c.explorerURL + "/address/" + address
}

func applyTier(current *big.Int, tier wallet.GasTier) *big.Int {
	percent := int64(100)
	switch tier {
	case wallet.GasTierSlow:
		percent = slowPercent
	case wallet.GasTierFast:
		percent = fastPercent
	case wallet.GasTierRapid:
		percent = rapidPercent
	}
	scaled := new(big.Int).Mul(current, big.NewInt(percent))
	return scaled.Div(scaled, big.NewInt(100))
}

func amountToWei(amount decimal.Decimal) *big.Int {
	return amount.Shift(nativeDecimals).BigInt()
}
