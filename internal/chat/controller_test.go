package chat

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	xerrors "Senna-Wallet/internal/errors"
	"Senna-Wallet/internal/intent"
	"Senna-Wallet/internal/price"
	"Senna-Wallet/internal/session"
	"Senna-Wallet/internal/storage"
	"Senna-Wallet/internal/tokens"
)

type fixture struct {
	controller *Controller
	store      *session.MemoryStore
	wallet     *stubWallet
	audit      *storage.MemoryTransferLog
	producer   *stubProducer
}

func newFixture(priceService price.Service) *fixture {
	if priceService == nil {
		priceService = &stubPrice{}
	}

	walletStub := newStubWallet()
	store := session.NewMemoryStore()
	audit := storage.NewMemoryTransferLog()
	producer := &stubProducer{}

	registry := tokens.Default()
	resolver := intent.NewResolver(nil, intent.NewMatcher(registry, "SOMI"))
	executor := NewExecutor(walletStub, priceService, registry)
	controller := NewController(store, resolver, executor,
		WithNotifier(producer),
		WithTransferLog(audit),
	)

	return &fixture{
		controller: controller,
		store:      store,
		wallet:     walletStub,
		audit:      audit,
		producer:   producer,
	}
}

func (f *fixture) handle(t *testing.T, sessionID, message string) Response {
	t.Helper()
	return f.controller.Handle(context.Background(), Request{SessionID: sessionID, Message: message})
}

func TestBalanceQuery(t *testing.T) {
	f := newFixture(nil)

	resp := f.handle(t, "", "check my balance "+testAddress)
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.Action != string(intent.NameGetBalance) {
		t.Fatalf("expected get_balance action, got %q", resp.Action)
	}
	if resp.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if resp.Data["balance"] != "100" {
		t.Fatalf("unexpected balance data: %+v", resp.Data)
	}
	if !strings.Contains(resp.Response, "STT") {
		t.Fatalf("reply must mention the symbol: %q", resp.Response)
	}
}

func TestSendPreviewThenConfirm(t *testing.T) {
	f := newFixture(nil)

	preview := f.handle(t, "", "send 2.5 STT to "+testAddress)
	if !preview.RequiresConfirmation {
		t.Fatalf("expected confirmation request, got %+v", preview)
	}
	if len(preview.Options) != 2 || !strings.HasPrefix(preview.Options[0], "1. ") {
		t.Fatalf("expected numbered confirm/cancel options, got %v", preview.Options)
	}
	if f.wallet.transferCount() != 0 {
		t.Fatal("preview must not transfer anything")
	}

	confirmed := f.handle(t, preview.SessionID, "confirm")
	if !confirmed.Success {
		t.Fatalf("confirm failed: %+v", confirmed)
	}
	if f.wallet.transferCount() != 1 {
		t.Fatalf("expected exactly one transfer, got %d", f.wallet.transferCount())
	}
	sent := f.wallet.transfers[0]
	if !sent.Amount.Equal(decimal.RequireFromString("2.5")) || sent.To != testAddress {
		t.Fatalf("unexpected transfer: %+v", sent)
	}
	if confirmed.TransactionData["transaction_hash"] != testTxHash {
		t.Fatalf("expected receipt hash in response, got %+v", confirmed.TransactionData)
	}

	records, err := f.audit.ListBySession(context.Background(), preview.SessionID, 10)
	if err != nil {
		t.Fatalf("ListBySession failed: %v", err)
	}
	if len(records) != 1 || records[0].Status != storage.TransferStatusSubmitted {
		t.Fatalf("expected one submitted audit record, got %+v", records)
	}

	events := f.producer.published()
	if len(events) != 1 || events[0].Hash != testTxHash {
		t.Fatalf("expected one published tx event, got %+v", events)
	}
}

func TestSecondConfirmFindsNothingPending(t *testing.T) {
	f := newFixture(nil)

	preview := f.handle(t, "", "send 1 STT to "+testAddress)
	first := f.handle(t, preview.SessionID, "confirm")
	if !first.Success {
		t.Fatalf("first confirm failed: %+v", first)
	}

	second := f.handle(t, preview.SessionID, "confirm")
	if second.Action != "clarify" {
		t.Fatalf("expected clarify action, got %q", second.Action)
	}
	if !strings.Contains(second.Response, "nothing waiting") {
		t.Fatalf("unexpected reply: %q", second.Response)
	}
	if f.wallet.transferCount() != 1 {
		t.Fatalf("second confirm must not transfer again, got %d", f.wallet.transferCount())
	}
}

func TestConcurrentConfirmsExecuteOnce(t *testing.T) {
	f := newFixture(nil)
	preview := f.handle(t, "", "send 1 STT to "+testAddress)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.handle(t, preview.SessionID, "confirm")
		}()
	}
	wg.Wait()

	if f.wallet.transferCount() != 1 {
		t.Fatalf("expected exactly one transfer under concurrent confirms, got %d", f.wallet.transferCount())
	}
}

func TestCancelDiscardsPendingTransfer(t *testing.T) {
	f := newFixture(nil)

	preview := f.handle(t, "", "kirim 3 STT ke "+testAddress)
	if !preview.RequiresConfirmation {
		t.Fatalf("expected confirmation request, got %+v", preview)
	}

	cancelled := f.handle(t, preview.SessionID, "batal")
	if !cancelled.Success || cancelled.Action != "cancel" {
		t.Fatalf("unexpected cancel response: %+v", cancelled)
	}
	if f.wallet.transferCount() != 0 {
		t.Fatal("cancel must not transfer")
	}

	records, _ := f.audit.ListBySession(context.Background(), preview.SessionID, 10)
	if len(records) != 1 || records[0].Status != storage.TransferStatusCancelled {
		t.Fatalf("expected one cancelled audit record, got %+v", records)
	}

	again := f.handle(t, preview.SessionID, "confirm")
	if again.Action != "clarify" {
		t.Fatalf("confirm after cancel must find nothing, got %+v", again)
	}
}

func TestPriceQueryAnnotatesFallbackSource(t *testing.T) {
	f := newFixture(&stubPrice{quote: price.Quote{
		Symbol:    "SOMI",
		USD:       decimal.NewFromFloat(0.25),
		IDR:       decimal.NewFromInt(3950),
		Change24h: decimal.NewFromFloat(-1.2),
		Source:    "fallback",
	}})

	resp := f.handle(t, "", "berapa harga somi sekarang?")
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if !strings.Contains(resp.Response, "reference price") {
		t.Fatalf("fallback source must be annotated: %q", resp.Response)
	}
	if resp.Data["source"] != "fallback" {
		t.Fatalf("unexpected source data: %+v", resp.Data)
	}
}

func TestSendMissingParamsAsksForClarification(t *testing.T) {
	f := newFixture(nil)

	resp := f.handle(t, "", "I want to send some tokens")
	if !resp.Success {
		t.Fatalf("clarification must still be a success: %+v", resp)
	}
	if resp.RequiresConfirmation {
		t.Fatal("incomplete send must not request confirmation")
	}
	if !strings.Contains(resp.Response, "the amount") {
		t.Fatalf("expected a prompt for missing fields: %q", resp.Response)
	}
	if f.wallet.transferCount() != 0 {
		t.Fatal("no transfer expected")
	}

	sess, err := f.store.Get(resp.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sess.Pending != nil {
		t.Fatal("clarification must not leave a pending action")
	}
}

func TestUnknownSessionStartsFreshOne(t *testing.T) {
	f := newFixture(nil)

	resp := f.handle(t, "no-such-session", "help")
	if !resp.Success {
		t.Fatalf("expected success, got %+v", resp)
	}
	if resp.SessionID == "" || resp.SessionID == "no-such-session" {
		t.Fatalf("expected a fresh session id, got %q", resp.SessionID)
	}
}

func TestNumericReplySelectsPendingOption(t *testing.T) {
	f := newFixture(nil)

	preview := f.handle(t, "", "send 0.5 STT to "+testAddress)
	if !preview.RequiresConfirmation {
		t.Fatalf("expected confirmation request, got %+v", preview)
	}

	// 选项 1 是确认，序号输入应展开为等效消息。
	confirmed := f.handle(t, preview.SessionID, "1")
	if !confirmed.Success {
		t.Fatalf("option selection failed: %+v", confirmed)
	}
	if f.wallet.transferCount() != 1 {
		t.Fatalf("expected one transfer, got %d", f.wallet.transferCount())
	}
}

func TestConfirmWithInsufficientBalanceClearsPending(t *testing.T) {
	f := newFixture(nil)
	f.wallet.transferErr = xerrors.New(xerrors.CodeInsufficientBalance, "余额不足")

	preview := f.handle(t, "", "send 1000 STT to "+testAddress)
	confirmed := f.handle(t, preview.SessionID, "confirm")
	if confirmed.Success {
		t.Fatalf("expected failure, got %+v", confirmed)
	}
	if !strings.Contains(confirmed.Response, "balance") {
		t.Fatalf("expected balance explanation: %q", confirmed.Response)
	}

	again := f.handle(t, preview.SessionID, "confirm")
	if again.Action != "clarify" {
		t.Fatalf("failed confirm must still clear pending, got %+v", again)
	}
}

func TestEmptyMessageGreets(t *testing.T) {
	f := newFixture(nil)

	resp := f.handle(t, "", "   ")
	if !resp.Success || resp.SessionID == "" {
		t.Fatalf("unexpected greeting response: %+v", resp)
	}
	if !strings.Contains(resp.Response, "help") {
		t.Fatalf("greeting should point at help: %q", resp.Response)
	}
}

func TestConversationHistoryRecorded(t *testing.T) {
	f := newFixture(nil)

	resp := f.handle(t, "", "what can you do")
	sess, err := f.store.Get(resp.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(sess.History) != 2 {
		t.Fatalf("expected user and assistant entries, got %d", len(sess.History))
	}
	if sess.History[0].Role != "user" || sess.History[1].Role != "assistant" {
		t.Fatalf("unexpected roles: %+v", sess.History)
	}
}

func TestExplicitConfirmFlagExecutesTransfer(t *testing.T) {
	f := newFixture(nil)

	preview := f.handle(t, "", "send 2 STT to "+testAddress)
	if !preview.RequiresConfirmation {
		t.Fatalf("expected confirmation request, got %+v", preview)
	}

	yes := true
	confirmed := f.controller.Handle(context.Background(), Request{
		SessionID:     preview.SessionID,
		ConfirmAction: &yes,
	})
	if !confirmed.Success {
		t.Fatalf("confirm failed: %+v", confirmed)
	}
	if f.wallet.transferCount() != 1 {
		t.Fatalf("expected exactly one transfer, got %d", f.wallet.transferCount())
	}
	if confirmed.ExplorerURL == "" || !strings.Contains(confirmed.ExplorerURL, testTxHash) {
		t.Fatalf("expected explorer link to the transaction, got %q", confirmed.ExplorerURL)
	}
}

func TestExplicitCancelFlagDiscardsPending(t *testing.T) {
	f := newFixture(nil)

	preview := f.handle(t, "", "send 2 STT to "+testAddress)
	no := false
	cancelled := f.controller.Handle(context.Background(), Request{
		SessionID:     preview.SessionID,
		ConfirmAction: &no,
	})
	if cancelled.Action != "cancel" {
		t.Fatalf("expected cancel action, got %+v", cancelled)
	}
	if f.wallet.transferCount() != 0 {
		t.Fatalf("cancel must not transfer, got %d", f.wallet.transferCount())
	}
}

func TestSelectedOptionFieldPicksPendingOption(t *testing.T) {
	f := newFixture(nil)

	preview := f.handle(t, "", "send 2 STT to "+testAddress)
	first := 1
	confirmed := f.controller.Handle(context.Background(), Request{
		SessionID:      preview.SessionID,
		SelectedOption: &first,
	})
	if !confirmed.Success {
		t.Fatalf("selecting the confirm option failed: %+v", confirmed)
	}
	if f.wallet.transferCount() != 1 {
		t.Fatalf("expected exactly one transfer, got %d", f.wallet.transferCount())
	}
}

func TestSelectedOptionOutOfRangeAsksAgain(t *testing.T) {
	f := newFixture(nil)

	preview := f.handle(t, "", "send 2 STT to "+testAddress)
	ninth := 9
	resp := f.controller.Handle(context.Background(), Request{
		SessionID:      preview.SessionID,
		SelectedOption: &ninth,
	})
	if resp.Action != "clarify" {
		t.Fatalf("expected clarify, got %+v", resp)
	}
	if f.wallet.transferCount() != 0 {
		t.Fatalf("out-of-range selection must not transfer, got %d", f.wallet.transferCount())
	}
}

func TestPreviewStoresPendingWithoutOptionList(t *testing.T) {
	f := newFixture(nil)

	preview := f.handle(t, "", "send 2.5 STT to "+testAddress)
	if !preview.RequiresConfirmation {
		t.Fatalf("expected confirmation request, got %+v", preview)
	}
	if len(preview.Options) != 2 {
		t.Fatalf("reply should still offer confirm/cancel shortcuts, got %v", preview.Options)
	}

	sess, err := f.store.Get(preview.SessionID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if sess.Pending == nil {
		t.Fatal("expected a pending action after the preview")
	}
	if len(sess.PendingOptions) != 0 {
		t.Fatalf("pending action and option list must not coexist, got %v", sess.PendingOptions)
	}

	cancelled := f.handle(t, preview.SessionID, "2")
	if cancelled.Action != "cancel" {
		t.Fatalf("expected the second shortcut to cancel, got %+v", cancelled)
	}
	if f.wallet.transferCount() != 0 {
		t.Fatalf("cancel must not transfer, got %d", f.wallet.transferCount())
	}
}
