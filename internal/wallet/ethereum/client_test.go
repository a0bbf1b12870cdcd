package ethereum

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	gethcore "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	coretypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"

	xerrors "Senna-Wallet/internal/errors"
	"Senna-Wallet/internal/wallet"
)

const (
	stubAddress = "0x1111111111111111111111111111111111111111"
	stubHash    = "0xab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12"
)

// gwei 以 wei 为单位构造 gwei 数量。
func gwei(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), big.NewInt(1_000_000_000))
}

// ether 以 wei 为单位构造整数个原生币。
func ether(n int64) *big.Int {
	wei, _ := new(big.Int).SetString("1000000000000000000", 10)
	return new(big.Int).Mul(big.NewInt(n), wei)
}

type stubBackend struct {
	balance      *big.Int
	balanceCalls int
	gasPrice     *big.Int
	gasCalls     int
	estimateGas  uint64
	estimateErr  error
	nonce        uint64
	sendErr      error
	sent         []*coretypes.Transaction
	receipt      *coretypes.Receipt
	receiptErr   error
	pendingTx    bool
}

var _ backend = (*stubBackend)(nil)

func (b *stubBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(50312), nil
}

func (b *stubBackend) BlockNumber(context.Context) (uint64, error) { return 1234, nil }

func (b *stubBackend) BalanceAt(context.Context, common.Address, *big.Int) (*big.Int, error) {
	b.balanceCalls++
	return new(big.Int).Set(b.balance), nil
}

func (b *stubBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	b.gasCalls++
	return new(big.Int).Set(b.gasPrice), nil
}

func (b *stubBackend) EstimateGas(context.Context, gethcore.CallMsg) (uint64, error) {
	if b.estimateErr != nil {
		return 0, b.estimateErr
	}
	if b.estimateGas > 0 {
		return b.estimateGas, nil
	}
	return transferGas, nil
}

func (b *stubBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return b.nonce, nil
}

func (b *stubBackend) SendTransaction(_ context.Context, tx *coretypes.Transaction) error {
	if b.sendErr != nil {
		return b.sendErr
	}
	b.sent = append(b.sent, tx)
	return nil
}

func (b *stubBackend) TransactionReceipt(context.Context, common.Hash) (*coretypes.Receipt, error) {
	if b.receiptErr != nil {
		return nil, b.receiptErr
	}
	return b.receipt, nil
}

func (b *stubBackend) TransactionByHash(context.Context, common.Hash) (*coretypes.Transaction, bool, error) {
	return nil, b.pendingTx, nil
}

func newClientWithSigner(t *testing.T, stub *stubBackend) *Client {
	t.Helper()
	client := NewStubClient("somnia-testnet", big.NewInt(50312), stub)

	key, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generate signer key: %v", err)
	}
	client.signerKey = key
	client.signerAddr = crypto.PubkeyToAddress(key.PublicKey)
	return client
}

func TestGetBalanceRejectsMalformedAddress(t *testing.T) {
	client := NewStubClient("somnia-testnet", big.NewInt(50312), &stubBackend{})

	_, err := client.GetBalance(context.Background(), "nope")
	if xerrors.CodeOf(err) != xerrors.CodeInvalidAddress {
		t.Fatalf("expected CodeInvalidAddress, got %v", err)
	}
}

func TestGetBalanceConvertsWeiAndCaches(t *testing.T) {
	stub := &stubBackend{balance: ether(3)}
	client := NewStubClient("somnia-testnet", big.NewInt(50312), stub)

	current := time.Now()
	client.now = func() time.Time { return current }

	balance, err := client.GetBalance(context.Background(), stubAddress)
	if err != nil {
		t.Fatalf("GetBalance failed: %v", err)
	}
	if balance.Amount.String() != "3" || balance.Symbol != "STT" {
		t.Fatalf("unexpected balance: %+v", balance)
	}

	// 缓存期内不回源。
	if _, err := client.GetBalance(context.Background(), stubAddress); err != nil {
		t.Fatalf("cached GetBalance failed: %v", err)
	}
	if stub.balanceCalls != 1 {
		t.Fatalf("expected a single backend call, got %d", stub.balanceCalls)
	}

	// 缓存过期后回源。
	current = current.Add(balanceCacheTTL + time.Second)
	if _, err := client.GetBalance(context.Background(), stubAddress); err != nil {
		t.Fatalf("GetBalance after expiry failed: %v", err)
	}
	if stub.balanceCalls != 2 {
		t.Fatalf("expected cache refresh, got %d calls", stub.balanceCalls)
	}
}

func TestGasPriceTiers(t *testing.T) {
	stub := &stubBackend{gasPrice: gwei(10)}
	client := NewStubClient("somnia-testnet", big.NewInt(50312), stub)

	quote, err := client.GasPrice(context.Background())
	if err != nil {
		t.Fatalf("GasPrice failed: %v", err)
	}
	if quote.Slow.String() != "8" || quote.Current.String() != "10" ||
		quote.Fast.String() != "12" || quote.Rapid.String() != "15" {
		t.Fatalf("unexpected tiers: %+v", quote)
	}
	if got := quote.Tier(wallet.GasTierRapid); got.String() != "15" {
		t.Fatalf("unexpected rapid tier: %s", got)
	}
}

func TestEstimateCostFallsBackToFixedGas(t *testing.T) {
	stub := &stubBackend{gasPrice: gwei(10), estimateErr: errors.New("execution reverted")}
	client := NewStubClient("somnia-testnet", big.NewInt(50312), stub)

	estimate, err := client.EstimateCost(context.Background(), wallet.TransferRequest{
		To:     stubAddress,
		Amount: decimal.NewFromInt(1),
	})
	if err != nil {
		t.Fatalf("EstimateCost failed: %v", err)
	}
	if estimate.GasLimit != transferGas {
		t.Fatalf("expected fallback gas limit %d, got %d", transferGas, estimate.GasLimit)
	}
	// 21000 gas * 10 gwei = 0.00021 STT
	if estimate.Fee.String() != "0.00021" {
		t.Fatalf("unexpected fee: %s", estimate.Fee)
	}
	if estimate.Total.String() != "1.00021" {
		t.Fatalf("unexpected total: %s", estimate.Total)
	}
}

func TestTransferRequiresSignerKey(t *testing.T) {
	client := NewStubClient("somnia-testnet", big.NewInt(50312), &stubBackend{})

	_, err := client.Transfer(context.Background(), wallet.TransferRequest{
		To:     stubAddress,
		Amount: decimal.NewFromInt(1),
	})
	if xerrors.CodeOf(err) != xerrors.CodeInitializationFailure {
		t.Fatalf("expected CodeInitializationFailure, got %v", err)
	}
}

func TestTransferRejectsNonPositiveAmount(t *testing.T) {
	client := newClientWithSigner(t, &stubBackend{balance: ether(1), gasPrice: gwei(10)})

	_, err := client.Transfer(context.Background(), wallet.TransferRequest{
		To:     stubAddress,
		Amount: decimal.Zero,
	})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected CodeInvalidArgument, got %v", err)
	}
}

func TestTransferRejectsInsufficientBalance(t *testing.T) {
	stub := &stubBackend{balance: gwei(1), gasPrice: gwei(10)}
	client := newClientWithSigner(t, stub)

	_, err := client.Transfer(context.Background(), wallet.TransferRequest{
		To:     stubAddress,
		Amount: decimal.NewFromInt(1),
	})
	if xerrors.CodeOf(err) != xerrors.CodeInsufficientBalance {
		t.Fatalf("expected CodeInsufficientBalance, got %v", err)
	}
	if len(stub.sent) != 0 {
		t.Fatal("nothing should be broadcast")
	}
}

func TestTransferSignsAndBroadcasts(t *testing.T) {
	stub := &stubBackend{balance: ether(5), gasPrice: gwei(10), nonce: 7}
	client := newClientWithSigner(t, stub)

	receipt, err := client.Transfer(context.Background(), wallet.TransferRequest{
		To:     stubAddress,
		Amount: decimal.NewFromFloat(1.5),
	})
	if err != nil {
		t.Fatalf("Transfer failed: %v", err)
	}
	if len(stub.sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(stub.sent))
	}

	sent := stub.sent[0]
	if sent.Nonce() != 7 {
		t.Fatalf("unexpected nonce %d", sent.Nonce())
	}
	if sent.To().Hex() != common.HexToAddress(stubAddress).Hex() {
		t.Fatalf("unexpected recipient %s", sent.To().Hex())
	}
	if receipt.Hash != sent.Hash().Hex() {
		t.Fatalf("receipt hash mismatch: %s vs %s", receipt.Hash, sent.Hash().Hex())
	}
	if receipt.From != client.signerAddr.Hex() || !receipt.Amount.Equal(decimal.NewFromFloat(1.5)) {
		t.Fatalf("unexpected receipt: %+v", receipt)
	}
}

func TestTransactionStatusValidatesHash(t *testing.T) {
	client := NewStubClient("somnia-testnet", big.NewInt(50312), &stubBackend{})

	_, err := client.TransactionStatus(context.Background(), "0x123")
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected CodeInvalidArgument, got %v", err)
	}
}

func TestTransactionStatusReportsPending(t *testing.T) {
	stub := &stubBackend{receiptErr: gethcore.NotFound, pendingTx: true}
	client := NewStubClient("somnia-testnet", big.NewInt(50312), stub)

	status, err := client.TransactionStatus(context.Background(), stubHash)
	if err != nil {
		t.Fatalf("TransactionStatus failed: %v", err)
	}
	if status.State != wallet.TxStatePending {
		t.Fatalf("expected pending, got %s", status.State)
	}
}

func TestTransactionStatusUnknownHash(t *testing.T) {
	stub := &stubBackend{receiptErr: gethcore.NotFound}
	client := NewStubClient("somnia-testnet", big.NewInt(50312), stub)

	_, err := client.TransactionStatus(context.Background(), stubHash)
	if xerrors.CodeOf(err) != xerrors.CodeNotFound {
		t.Fatalf("expected CodeNotFound, got %v", err)
	}
}

func TestTransactionStatusMinedStates(t *testing.T) {
	stub := &stubBackend{receipt: &coretypes.Receipt{
		Status:      coretypes.ReceiptStatusSuccessful,
		BlockNumber: big.NewInt(99),
		GasUsed:     transferGas,
	}}
	client := NewStubClient("somnia-testnet", big.NewInt(50312), stub)

	status, err := client.TransactionStatus(context.Background(), stubHash)
	if err != nil {
		t.Fatalf("TransactionStatus failed: %v", err)
	}
	if status.State != wallet.TxStateSuccess || status.BlockNumber != 99 {
		t.Fatalf("unexpected status: %+v", status)
	}

	stub.receipt.Status = coretypes.ReceiptStatusFailed
	status, err = client.TransactionStatus(context.Background(), stubHash)
	if err != nil {
		t.Fatalf("TransactionStatus failed: %v", err)
	}
	if status.State != wallet.TxStateFailed {
		t.Fatalf("expected failed, got %s", status.State)
	}
}

func TestCreateWalletProducesUsableKeyPair(t *testing.T) {
	client := NewStubClient("somnia-testnet", big.NewInt(50312), &stubBackend{})

	created, err := client.CreateWallet(context.Background())
	if err != nil {
		t.Fatalf("CreateWallet failed: %v", err)
	}
	if !common.IsHexAddress(created.Address) {
		t.Fatalf("invalid address %q", created.Address)
	}

	key, err := crypto.HexToECDSA(created.PrivateKey[2:])
	if err != nil {
		t.Fatalf("private key must be parseable: %v", err)
	}
	if crypto.PubkeyToAddress(key.PublicKey).Hex() != created.Address {
		t.Fatal("private key does not match the address")
	}
}
