package chat

import (
	"context"
	"sync"

	"github.com/shopspring/decimal"

	"Senna-Wallet/internal/notify"
	"Senna-Wallet/internal/price"
	"Senna-Wallet/internal/wallet"
)

const (
	testExplorer = "https://shannon-explorer.somnia.network"
	testAddress  = "0x1111111111111111111111111111111111111111"
	testSigner   = "0x2222222222222222222222222222222222222222"
	testTxHash   = "0xab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12ab12"
)

// stubWallet 以固定数据实现钱包客户端，记录所有转账调用。
type stubWallet struct {
	mu        sync.Mutex
	signer    string
	balance   decimal.Decimal
	transfers []wallet.TransferRequest

	balanceErr  error
	transferErr error
	statusErr   error
	status      wallet.TxStatus
}

var _ wallet.Client = (*stubWallet)(nil)

func newStubWallet() *stubWallet {
	return &stubWallet{
		signer:  testSigner,
		balance: decimal.NewFromInt(100),
	}
}

func (w *stubWallet) FetchChainSnapshot(context.Context) (wallet.ChainSnapshot, error) {
	return wallet.ChainSnapshot{Name: "somnia-testnet", ChainID: "50312", BlockNumber: "12345", Symbol: "STT"}, nil
}

func (w *stubWallet) GetBalance(_ context.Context, address string) (wallet.Balance, error) {
	if w.balanceErr != nil {
		return wallet.Balance{}, w.balanceErr
	}
	return wallet.Balance{Address: address, Amount: w.balance, Symbol: "STT"}, nil
}

func (w *stubWallet) GasPrice(context.Context) (wallet.GasQuote, error) {
	return wallet.GasQuote{
		Slow:    decimal.NewFromFloat(8),
		Current: decimal.NewFromFloat(10),
		Fast:    decimal.NewFromFloat(12),
		Rapid:   decimal.NewFromFloat(15),
		Symbol:  "STT",
	}, nil
}

func (w *stubWallet) EstimateCost(_ context.Context, req wallet.TransferRequest) (wallet.CostEstimate, error) {
	fee := decimal.NewFromFloat(0.00021)
	return wallet.CostEstimate{
		GasLimit: 21000,
		GasPrice: decimal.NewFromFloat(10),
		Fee:      fee,
		Total:    req.Amount.Add(fee),
		Symbol:   "STT",
	}, nil
}

func (w *stubWallet) Transfer(_ context.Context, req wallet.TransferRequest) (wallet.TransferReceipt, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.transferErr != nil {
		return wallet.TransferReceipt{}, w.transferErr
	}
	w.transfers = append(w.transfers, req)
	return wallet.TransferReceipt{
		Hash:        testTxHash,
		From:        w.signer,
		To:          req.To,
		Amount:      req.Amount,
		Symbol:      req.Symbol,
		GasLimit:    21000,
		ExplorerURL: testExplorer + "/tx/" + testTxHash,
	}, nil
}

func (w *stubWallet) transferCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.transfers)
}

func (w *stubWallet) TransactionStatus(_ context.Context, hash string) (wallet.TxStatus, error) {
	if w.statusErr != nil {
		return wallet.TxStatus{}, w.statusErr
	}
	status := w.status
	if status.Hash == "" {
		status = wallet.TxStatus{Hash: hash, State: wallet.TxStateSuccess, BlockNumber: 42}
	}
	status.ExplorerURL = testExplorer + "/tx/" + hash
	return status, nil
}

func (w *stubWallet) CreateWallet(context.Context) (wallet.NewWallet, error) {
	return wallet.NewWallet{
		Address:    "0x3333333333333333333333333333333333333333",
		PrivateKey: "0xdeadbeef",
	}, nil
}

func (w *stubWallet) SignerAddress() string { return w.signer }

func (w *stubWallet) ExplorerTxURL(hash string) string { return testExplorer + "/tx/" + hash }

func (w *stubWallet) ExplorerAddressURL(address string) string {
	return testExplorer + "/address/" + address
}

func (w *stubWallet) Close() {}

// stubPrice 返回固定行情。
type stubPrice struct {
	quote price.Quote
	err   error
}

var _ price.Service = (*stubPrice)(nil)

func (p *stubPrice) Quote(_ context.Context, symbol string) (price.Quote, error) {
	if p.err != nil {
		return price.Quote{}, p.err
	}
	quote := p.quote
	if quote.Symbol == "" {
		quote.Symbol = symbol
	}
	return quote, nil
}

// stubProducer 记录发布过的交易事件。
type stubProducer struct {
	mu     sync.Mutex
	events []notify.TxEvent
}

var _ notify.Producer = (*stubProducer)(nil)

func (p *stubProducer) Publish(_ context.Context, event notify.TxEvent) error {
	p.mu.Lock()
	p.events = append(p.events, event)
	p.mu.Unlock()
	return nil
}

func (p *stubProducer) Close() error { return nil }

func (p *stubProducer) published() []notify.TxEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]notify.TxEvent(nil), p.events...)
}
