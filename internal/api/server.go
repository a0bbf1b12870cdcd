package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"Senna-Wallet/internal/chat"
	"Senna-Wallet/internal/observability/metrics"
	"Senna-Wallet/internal/storage"
	"Senna-Wallet/internal/wallet"
)

// Server 负责暴露 REST 接口，供外部客户端驱动对话与钱包操作。
type Server struct {
	addr       string
	controller *chat.Controller
	wallet     wallet.Client
	audit      storage.TransferLog
}

// NewServer 构造 API 服务实例。audit 可以为 nil。
func NewServer(addr string, controller *chat.Controller, walletClient wallet.Client, audit storage.TransferLog) *Server {
	return &Server{addr: addr, controller: controller, wallet: walletClient, audit: audit}
}

// routes 组装全部路由。
func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/chat", instrument("chat", s.handleChat))
	mux.HandleFunc("POST /api/v1/wallets", instrument("wallets", s.handleCreateWallet))
	mux.HandleFunc("GET /api/v1/balance/{address}", instrument("balance", s.handleBalance))
	mux.HandleFunc("GET /api/v1/gas", instrument("gas", s.handleGas))
	mux.HandleFunc("GET /api/v1/transactions/{hash}", instrument("transactions", s.handleTransaction))
	mux.HandleFunc("GET /api/v1/sessions/{id}/transfers", instrument("transfers", s.handleSessionTransfers))
	mux.HandleFunc("GET /healthz", instrument("healthz", s.handleHealth))
	mux.Handle("GET /metrics", metrics.Handler())
	return mux
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, s.routes()),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 启动服务器并监听关闭信号。
	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chat.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}

	resp := s.controller.Handle(r.Context(), req)
	if resp.Action != "" {
		metrics.ObserveIntent(resp.Action, resp.Success)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	created, err := s.wallet.CreateWallet(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"address":      created.Address,
		"private_key":  created.PrivateKey,
		"explorer_url": s.wallet.ExplorerAddressURL(created.Address),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.wallet.GetBalance(r.Context(), r.PathValue("address"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":      balance.Address,
		"balance":      balance.Amount.String(),
		"symbol":       balance.Symbol,
		"explorer_url": s.wallet.ExplorerAddressURL(balance.Address),
	})
}

func (s *Server) handleGas(w http.ResponseWriter, r *http.Request) {
	quote, err := s.wallet.GasPrice(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request) {
	status, err := s.wallet.TransactionStatus(r.Context(), r.PathValue("hash"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleSessionTransfers(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		http.Error(w, "审计日志未启用", http.StatusNotFound)
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	records, err := s.audit.ListBySession(r.Context(), r.PathValue("id"), limit)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"transfers": records})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snapshot, err := s.wallet.FetchChainSnapshot(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "degraded",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"chain":  snapshot,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// statusRecorder 捕获响应码供指标采集。
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument 为处理器附加请求指标采集。
func instrument(name string, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		handler(recorder, r)
		metrics.ObserveHTTPRequest(name, r.Method, recorder.status, time.Since(start))
	}
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
