package notify

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	xerrors "Senna-Wallet/internal/errors"
	"Senna-Wallet/internal/observability/alerting"
	"Senna-Wallet/internal/storage"
	"Senna-Wallet/internal/wallet"
)

const watchHash = "0xcd34cd34cd34cd34cd34cd34cd34cd34cd34cd34cd34cd34cd34cd34cd34cd34"

// pollingWallet 在前 pendingRounds 次查询返回 pending，之后返回 finalState。
type pollingWallet struct {
	calls         atomic.Int64
	pendingRounds int64
	finalState    wallet.TxState
}

var _ wallet.Client = (*pollingWallet)(nil)

func (w *pollingWallet) TransactionStatus(_ context.Context, hash string) (wallet.TxStatus, error) {
	call := w.calls.Add(1)
	if call <= w.pendingRounds {
		return wallet.TxStatus{Hash: hash, State: wallet.TxStatePending}, nil
	}
	return wallet.TxStatus{Hash: hash, State: w.finalState, BlockNumber: 77}, nil
}

func (w *pollingWallet) FetchChainSnapshot(context.Context) (wallet.ChainSnapshot, error) {
	return wallet.ChainSnapshot{}, nil
}

func (w *pollingWallet) GetBalance(context.Context, string) (wallet.Balance, error) {
	return wallet.Balance{}, nil
}

func (w *pollingWallet) GasPrice(context.Context) (wallet.GasQuote, error) {
	return wallet.GasQuote{}, nil
}

func (w *pollingWallet) EstimateCost(context.Context, wallet.TransferRequest) (wallet.CostEstimate, error) {
	return wallet.CostEstimate{}, nil
}

func (w *pollingWallet) Transfer(context.Context, wallet.TransferRequest) (wallet.TransferReceipt, error) {
	return wallet.TransferReceipt{}, nil
}

func (w *pollingWallet) CreateWallet(context.Context) (wallet.NewWallet, error) {
	return wallet.NewWallet{}, nil
}

func (w *pollingWallet) SignerAddress() string              { return "" }
func (w *pollingWallet) ExplorerTxURL(hash string) string   { return "https://example.test/tx/" + hash }
func (w *pollingWallet) ExplorerAddressURL(a string) string { return "https://example.test/address/" + a }
func (w *pollingWallet) Close()                             {}

// captureDispatcher 收集告警事件并在首个事件时发信号。
type captureDispatcher struct {
	mu     sync.Mutex
	events []alerting.Event
	fired  chan struct{}
	once   sync.Once
}

func newCaptureDispatcher() *captureDispatcher {
	return &captureDispatcher{fired: make(chan struct{})}
}

func (d *captureDispatcher) Notify(_ context.Context, event alerting.Event) error {
	d.mu.Lock()
	d.events = append(d.events, event)
	d.mu.Unlock()
	d.once.Do(func() { close(d.fired) })
	return nil
}

func (d *captureDispatcher) captured() []alerting.Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]alerting.Event(nil), d.events...)
}

func waitFor(t *testing.T, timeout time.Duration, check func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if check() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}

func submittedEvent() TxEvent {
	return TxEvent{
		ID:          "evt-1",
		Hash:        watchHash,
		From:        "0xfrom",
		To:          "0xto",
		Amount:      decimal.NewFromFloat(1.5).String(),
		Symbol:      "STT",
		SessionID:   "sess-1",
		SubmittedAt: time.Now(),
	}
}

func TestWatcherConfirmsSubmittedTransfer(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	audit := storage.NewMemoryTransferLog()
	if err := audit.Record(ctx, storage.TransferRecord{
		ID: "rec-1", SessionID: "sess-1", Hash: watchHash, Status: storage.TransferStatusSubmitted,
	}); err != nil {
		t.Fatalf("Record failed: %v", err)
	}

	queue := NewMemoryQueue(4)
	walletStub := &pollingWallet{pendingRounds: 2, finalState: wallet.TxStateSuccess}
	watcher := NewWatcher(queue, walletStub,
		WithPollInterval(time.Millisecond),
		WithMaxAttempts(10),
		WithAuditLog(audit),
	)
	go func() { _ = watcher.Run(ctx) }()

	if err := queue.Publish(ctx, submittedEvent()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	waitFor(t, 2*time.Second, func() bool {
		records, err := audit.ListBySession(ctx, "sess-1", 1)
		return err == nil && len(records) == 1 && records[0].Status == storage.TransferStatusConfirmed
	})
	if walletStub.calls.Load() != 3 {
		t.Fatalf("expected 3 status polls, got %d", walletStub.calls.Load())
	}
}

func TestWatcherAlertsOnFailedTransaction(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	audit := storage.NewMemoryTransferLog()
	_ = audit.Record(ctx, storage.TransferRecord{
		ID: "rec-1", SessionID: "sess-1", Hash: watchHash, Status: storage.TransferStatusSubmitted,
	})

	queue := NewMemoryQueue(4)
	alerts := newCaptureDispatcher()
	watcher := NewWatcher(queue, &pollingWallet{finalState: wallet.TxStateFailed},
		WithPollInterval(time.Millisecond),
		WithAuditLog(audit),
		WithAlerts(alerts),
	)
	go func() { _ = watcher.Run(ctx) }()

	if err := queue.Publish(ctx, submittedEvent()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-alerts.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected an alert for the failed transaction")
	}

	events := alerts.captured()
	if events[0].Code != xerrors.CodeCollaboratorFailure || events[0].TxHash != watchHash {
		t.Fatalf("unexpected alert: %+v", events[0])
	}

	waitFor(t, 2*time.Second, func() bool {
		records, err := audit.ListBySession(ctx, "sess-1", 1)
		return err == nil && len(records) == 1 && records[0].Status == storage.TransferStatusFailed
	})
}

func TestWatcherAlertsOnTrackingTimeout(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	queue := NewMemoryQueue(4)
	alerts := newCaptureDispatcher()
	// 永远 pending，两次尝试后放弃。
	watcher := NewWatcher(queue, &pollingWallet{pendingRounds: 1 << 30},
		WithPollInterval(time.Millisecond),
		WithMaxAttempts(2),
		WithAlerts(alerts),
	)
	go func() { _ = watcher.Run(ctx) }()

	if err := queue.Publish(ctx, submittedEvent()); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}

	select {
	case <-alerts.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a timeout alert")
	}
	if events := alerts.captured(); events[0].Code != xerrors.CodeTimeout {
		t.Fatalf("unexpected alert code: %+v", events[0])
	}
}
