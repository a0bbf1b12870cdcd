package chat

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	xerrors "Senna-Wallet/internal/errors"
	"Senna-Wallet/internal/intent"
	"Senna-Wallet/internal/notify"
	"Senna-Wallet/internal/session"
	"Senna-Wallet/internal/storage"
	"Senna-Wallet/pkg/logger"
)

// 确认与取消的关键词，覆盖英语与印尼语的常见说法。
var (
	confirmWords = map[string]struct{}{
		"confirm": {}, "yes": {}, "y": {}, "ok": {}, "okay": {}, "sure": {},
		"ya": {}, "iya": {}, "oke": {}, "lanjut": {}, "gas": {}, "kirim": {},
	}
	cancelWords = map[string]struct{}{
		"cancel": {}, "no": {}, "n": {}, "stop": {}, "abort": {},
		"batal": {}, "tidak": {}, "jangan": {}, "gajadi": {},
	}
)

// Controller 驱动一轮完整对话：装载会话、识别确认/取消/选择、
// 解析意图、执行操作、回写会话状态。任何输入都产出一个 Response。
type Controller struct {
	store    session.Store
	resolver *intent.Resolver
	executor *Executor
	notifier notify.Producer
	audit    storage.TransferLog
	log      *slog.Logger
	now      func() time.Time
}

// ControllerOption 定义可选依赖。
type ControllerOption func(*Controller)

// WithNotifier 注入交易事件生产者。
func WithNotifier(producer notify.Producer) ControllerOption {
	return func(c *Controller) { c.notifier = producer }
}

// WithTransferLog 注入转账审计日志。
func WithTransferLog(log storage.TransferLog) ControllerOption {
	return func(c *Controller) { c.audit = log }
}

// WithClock 注入时钟，便于测试控制时间。
func WithClock(now func() time.Time) ControllerOption {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController 构建对话控制器。
func NewController(store session.Store, resolver *intent.Resolver, executor *Executor, opts ...ControllerOption) *Controller {
	c := &Controller{
		store:    store,
		resolver: resolver,
		executor: executor,
		log:      logger.Named("controller"),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Handle 处理一轮对话。
func (c *Controller) Handle(ctx context.Context, req Request) Response {
	message := strings.TrimSpace(req.Message)
	if message == "" && req.ConfirmAction == nil && req.SelectedOption == nil {
		sess, err := c.loadOrCreate(req)
		if err != nil {
			return c.internalFailure("", err)
		}
		return Response{
			SessionID: sess.ID,
			Response:  "Say something and I'll do my best to help! Try \"help\" to see what I can do.",
			Success:   true,
		}
	}

	sess, err := c.loadOrCreate(req)
	if err != nil {
		return c.internalFailure(req.SessionID, err)
	}

	// 显式的确认标志优先于文本关键词。
	if req.ConfirmAction != nil {
		if *req.ConfirmAction {
			return c.handleConfirm(ctx, sess.ID, message)
		}
		return c.handleCancel(ctx, sess.ID, message)
	}

	// 序号选择：把候选项展开为等效输入后继续正常流程。
	if req.SelectedOption != nil {
		expanded, ok := c.optionMessage(sess, *req.SelectedOption)
		if !ok {
			return Response{
				SessionID: sess.ID,
				Response:  "That option isn't on the list. Pick one of the numbers I showed you, or just tell me what you'd like to do.",
				Action:    "clarify",
				Success:   true,
			}
		}
		message = expanded
	} else if expanded, ok := c.expandOption(sess, message); ok {
		message = expanded
	}

	lowered := strings.ToLower(message)
	if _, ok := confirmWords[lowered]; ok {
		return c.handleConfirm(ctx, sess.ID, message)
	}
	if _, ok := cancelWords[lowered]; ok {
		return c.handleCancel(ctx, sess.ID, message)
	}

	return c.handleMessage(ctx, sess, message)
}

// loadOrCreate 装载会话。会话缺失或已过期时静默开启新会话。
func (c *Controller) loadOrCreate(req Request) (*session.Session, error) {
	if req.SessionID != "" {
		sess, err := c.store.Get(req.SessionID)
		if err == nil {
			return sess, nil
		}
		code := xerrors.CodeOf(err)
		if code != xerrors.CodeNotFound && code != xerrors.CodeSessionExpired {
			return nil, err
		}
		c.log.Info("会话已失效，开启新会话",
			slog.String("session_id", req.SessionID),
			slog.String("code", string(code)),
		)
	}
	return c.store.Create(req.WalletAddress)
}

// expandOption 把数字输入映射到会话暂存的候选项。
func (c *Controller) expandOption(sess *session.Session, message string) (string, bool) {
	index, err := strconv.Atoi(strings.TrimSpace(message))
	if err != nil {
		return "", false
	}
	return c.optionMessage(sess, index)
}

func (c *Controller) optionMessage(sess *session.Session, index int) (string, bool) {
	// 存在待确认操作时，序号固定映射到确认与取消。
	if sess.Pending != nil {
		switch index {
		case 1:
			return "confirm", true
		case 2:
			return "cancel", true
		}
		return "", false
	}
	if index < 1 || index > len(sess.PendingOptions) {
		return "", false
	}
	return sess.PendingOptions[index-1].Message, true
}

// handleMessage 是正常的解析执行路径。
// 解析与执行不持有会话锁，完成后一次性写回状态。
func (c *Controller) handleMessage(ctx context.Context, sess *session.Session, message string) Response {
	resolved := c.resolver.Resolve(ctx, message, intent.Context{
		WalletAddress: sess.WalletAddress,
	})

	c.log.Info("意图已解析",
		slog.String("session_id", sess.ID),
		slog.String("intent", string(resolved.Name)),
		slog.Float64("confidence", resolved.Confidence),
	)

	result := c.executor.Dispatch(ctx, resolved, Env{WalletAddress: sess.WalletAddress})

	now := c.now()
	updated, err := c.store.Mutate(sess.ID, func(s *session.Session) error {
		s.AppendHistory("user", message, now)
		s.AppendHistory("assistant", result.Message, now)
		if result.RequiresConfirmation {
			// 新的待确认操作覆盖旧的，会话里至多存在一个。
			// 确认/取消的快捷项只随回复下发，不落入会话状态，
			// 保证待确认操作与候选列表至多存在其一。
			s.SetPending(&session.PendingAction{
				ID:        uuid.NewString(),
				Intent:    resolved,
				CreatedAt: now,
			})
		} else if len(result.Options) > 0 {
			s.Pending = nil
			s.PendingOptions = result.Options
		} else {
			s.ClearPending()
		}
		return nil
	})
	if err != nil {
		// 执行期间会话过期属于可恢复情形，回复仍然交付。
		c.log.Warn("回写会话失败", slog.String("session_id", sess.ID), slog.Any("error", err))
		updated = sess
	}

	return c.toResponse(updated.ID, result)
}

// handleConfirm 执行待确认操作。
// 取出并清空 pending 在会话锁内完成，并发的确认只有一个能拿到，
// 因此同一操作至多执行一次。
func (c *Controller) handleConfirm(ctx context.Context, sessionID, message string) Response {
	pending, resp := c.takePending(sessionID, message)
	if pending == nil {
		return resp
	}

	result := c.executor.ConfirmTransfer(ctx, pending.Intent)
	c.appendAssistant(sessionID, result.Message)

	if result.Receipt != nil {
		c.recordTransfer(ctx, sessionID, result)
	} else if !result.Success {
		c.auditTransfer(sessionID, pending, storage.TransferStatusFailed, "")
	}

	return c.toResponse(sessionID, result)
}

// handleCancel 丢弃待确认操作。
func (c *Controller) handleCancel(ctx context.Context, sessionID, message string) Response {
	pending, resp := c.takePending(sessionID, message)
	if pending == nil {
		return resp
	}

	reply := "Okay, I've cancelled it. Nothing was sent."
	c.appendAssistant(sessionID, reply)
	c.auditTransfer(sessionID, pending, storage.TransferStatusCancelled, "")
	if c.audit != nil {
		record := transferRecordFrom(sessionID, pending, storage.TransferStatusCancelled, "")
		if err := c.audit.Record(ctx, record); err != nil {
			c.log.Warn("写入审计记录失败", slog.Any("error", err))
		}
	}

	return Response{
		SessionID: sessionID,
		Response:  reply,
		Action:    "cancel",
		Success:   true,
	}
}

// takePending 原子地取出并清空待确认操作。
// 没有待确认操作时返回引导性回复。
func (c *Controller) takePending(sessionID, message string) (*session.PendingAction, Response) {
	var pending *session.PendingAction
	_, err := c.store.Mutate(sessionID, func(s *session.Session) error {
		pending = s.Pending
		s.ClearPending()
		s.AppendHistory("user", message, c.now())
		return nil
	})
	if err != nil {
		return nil, c.internalFailure(sessionID, err)
	}
	if pending == nil {
		return nil, Response{
			SessionID: sessionID,
			Response:  "There's nothing waiting for confirmation right now. Tell me what you'd like to do!",
			Action:    "clarify",
			Success:   true,
		}
	}
	return pending, Response{}
}

// appendAssistant 把助手回复补进会话历史，失败只记日志。
// 确认路径的用户消息已在 takePending 里写入。
func (c *Controller) appendAssistant(sessionID, reply string) {
	now := c.now()
	_, err := c.store.Mutate(sessionID, func(s *session.Session) error {
		s.AppendHistory("assistant", reply, now)
		return nil
	})
	if err != nil {
		c.log.Warn("回写会话历史失败", slog.String("session_id", sessionID), slog.Any("error", err))
	}
}

// recordTransfer 在转账广播成功后写审计日志并发布交易事件。
func (c *Controller) recordTransfer(ctx context.Context, sessionID string, result ActionResult) {
	receipt := result.Receipt

	logger.Audit().Info("转账已广播",
		slog.String("session_id", sessionID),
		slog.String("hash", receipt.Hash),
		slog.String("from", receipt.From),
		slog.String("to", receipt.To),
		slog.String("amount", receipt.Amount.String()),
		slog.String("symbol", receipt.Symbol),
	)

	if c.audit != nil {
		record := storage.TransferRecord{
			ID:        uuid.NewString(),
			SessionID: sessionID,
			Hash:      receipt.Hash,
			FromAddr:  receipt.From,
			ToAddr:    receipt.To,
			Amount:    receipt.Amount.String(),
			Symbol:    receipt.Symbol,
			Status:    storage.TransferStatusSubmitted,
			CreatedAt: c.now(),
		}
		if err := c.audit.Record(ctx, record); err != nil {
			c.log.Warn("写入审计记录失败", slog.Any("error", err))
		}
	}

	if c.notifier != nil {
		event := notify.TxEvent{
			ID:          uuid.NewString(),
			Hash:        receipt.Hash,
			From:        receipt.From,
			To:          receipt.To,
			Amount:      receipt.Amount.String(),
			Symbol:      receipt.Symbol,
			SessionID:   sessionID,
			SubmittedAt: c.now(),
		}
		if err := c.notifier.Publish(ctx, event); err != nil {
			c.log.Warn("发布交易事件失败", slog.Any("error", err))
		}
	}
}

// auditTransfer 为取消或失败的待确认转账留痕。
func (c *Controller) auditTransfer(sessionID string, pending *session.PendingAction, status storage.TransferStatus, hash string) {
	params := pending.Intent.Params
	amount := ""
	if params.Amount != nil {
		amount = params.Amount.String()
	}
	logger.Audit().Info("待确认转账已结束",
		slog.String("session_id", sessionID),
		slog.String("status", string(status)),
		slog.String("to", params.ToAddress),
		slog.String("amount", amount),
		slog.String("symbol", params.Symbol),
		slog.String("hash", hash),
	)
}

func transferRecordFrom(sessionID string, pending *session.PendingAction, status storage.TransferStatus, hash string) storage.TransferRecord {
	params := pending.Intent.Params
	amount := ""
	if params.Amount != nil {
		amount = params.Amount.String()
	}
	return storage.TransferRecord{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		Hash:      hash,
		ToAddr:    params.ToAddress,
		Amount:    amount,
		Symbol:    params.Symbol,
		Status:    status,
	}
}

func (c *Controller) toResponse(sessionID string, result ActionResult) Response {
	options := make([]string, 0, len(result.Options))
	for i, option := range result.Options {
		options = append(options, strconv.Itoa(i+1)+". "+option.Label)
	}
	return Response{
		SessionID:            sessionID,
		Response:             result.Message,
		Action:               result.Action,
		Success:              result.Success,
		RequiresConfirmation: result.RequiresConfirmation,
		Data:                 result.Data,
		TransactionData:      result.TransactionData,
		ExplorerURL:          result.ExplorerURL,
		Options:              options,
		SuggestedActions:     result.SuggestedActions,
	}
}

// internalFailure 把存储层错误折叠为兜底回复。
func (c *Controller) internalFailure(sessionID string, err error) Response {
	c.log.Error("会话存储访问失败",
		slog.String("session_id", sessionID),
		slog.String("code", string(xerrors.CodeOf(err))),
		slog.Any("error", err),
	)
	return Response{
		SessionID: sessionID,
		Response:  "Something went wrong on my side. Please try again in a moment.",
		Success:   false,
	}
}
