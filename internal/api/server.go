package api

import (
	"encoding/json"
	"log"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/richtan/ETHDenver2026-sub001/internal/agent"
	"github.com/richtan/ETHDenver2026-sub001/internal/chain"
	"github.com/richtan/ETHDenver2026-sub001/internal/observability"
	"github.com/richtan/ETHDenver2026-sub001/pkg/agentapi"
)

// Server exposes the agent's read-only surface: health, metrics, the
// two bounded feeds, the cost ledger and per-job snapshots. It never
// writes; every mutation flows through the event subscription.
type Server struct {
	orch   *agent.Orchestrator
	reader chain.Reader
	auth   *authorizer
}

func NewServer(orch *agent.Orchestrator, reader chain.Reader) *Server {
	return &Server{
		orch:   orch,
		reader: reader,
		auth:   newAuthorizerFromEnv(),
	}
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/v1/metrics", s.handleMetrics)
	mux.HandleFunc("/v1/metrics/prometheus", s.handleMetricsPrometheus)
	mux.HandleFunc("/v1/actions", s.handleActions)
	mux.HandleFunc("/v1/transactions", s.handleTransactions)
	mux.HandleFunc("/v1/costs", s.handleCosts)
	mux.HandleFunc("/v1/jobs/", s.handleJobByID)
	return withTracing(withLogging(mux))
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.auth.allow(w, r) {
		return
	}
	writeJSON(w, http.StatusOK, observability.Default.Snapshot())
}

func (s *Server) handleMetricsPrometheus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.auth.allow(w, r) {
		return
	}
	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(observability.Default.RenderPrometheus()))
}

func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.auth.allow(w, r) {
		return
	}
	actions := s.orch.Actions()
	out := make([]agentapi.ActionRecord, 0, len(actions))
	for _, a := range actions {
		out = append(out, actionRecord(a))
	}
	writeJSON(w, http.StatusOK, agentapi.ActionsResponse{Total: len(out), Actions: out})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.auth.allow(w, r) {
		return
	}
	txs := s.orch.Transactions()
	out := make([]agentapi.TransactionRecord, 0, len(txs))
	for _, tx := range txs {
		out = append(out, agentapi.TransactionRecord{
			Action:    tx.Action,
			TxRef:     tx.TxRef,
			AmountWei: weiString(tx.Amount),
			At:        tx.At.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, agentapi.TransactionsResponse{Total: len(out), Transactions: out})
}

func (s *Server) handleCosts(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.auth.allow(w, r) {
		return
	}
	m := s.orch.Metrics()
	entries := s.orch.CostEntries()
	out := make([]agentapi.CostEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, agentapi.CostEntry{
			ID:           e.ID,
			Type:         string(e.Type),
			AmountUSD:    e.AmountUSD,
			Detail:       e.Detail,
			Reimbursed:   e.Reimbursed,
			ReimbursedTx: e.ReimbursedTx,
			CreatedAt:    e.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, agentapi.CostsResponse{
		TotalRevenueUSD:        m.TotalRevenueUSD,
		TotalCostUSD:           m.TotalCostUSD,
		NetUSD:                 m.NetUSD,
		UnreimbursedComputeUSD: m.UnreimbursedComputeUSD,
		Entries:                out,
	})
}

func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if !s.auth.allow(w, r) {
		return
	}
	raw := strings.TrimPrefix(r.URL.Path, "/v1/jobs/")
	jobID, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}
	job, ok, err := s.reader.Job(r.Context(), jobID)
	if err != nil {
		writeError(w, http.StatusBadGateway, "job lookup failed")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "job not found")
		return
	}
	resp := agentapi.JobStatusResponse{
		JobID:       job.ID,
		Description: job.Description,
		Status:      job.Status,
		BudgetWei:   weiString(job.Budget),
		SpentWei:    weiString(job.Spent),
		Tasks:       make([]agentapi.TaskStatus, 0, len(job.TaskIDs)),
	}
	for _, tid := range job.TaskIDs {
		task, ok, err := s.reader.Task(r.Context(), tid)
		if err != nil || !ok {
			continue
		}
		ts := agentapi.TaskStatus{
			TaskID:   task.ID,
			Index:    task.Index,
			Status:   task.Status,
			Worker:   task.Worker,
			Reward:   weiString(task.Reward),
			ProofRef: task.ProofRef,
		}
		if !task.Deadline.IsZero() {
			ts.Deadline = task.Deadline.Format(time.RFC3339)
		}
		resp.Tasks = append(resp.Tasks, ts)
	}
	writeJSON(w, http.StatusOK, resp)
}

func weiString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Printf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func withTracing(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := observability.StartSpan(r.Context(), "http.request",
			attribute.String("http.method", r.Method),
			attribute.String("http.path", r.URL.Path),
		)
		defer span.End()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		traceID := span.SpanContext().TraceID().String()
		if traceID != "" {
			sw.Header().Set("X-Trace-ID", traceID)
		}
		next.ServeHTTP(sw, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", sw.status))
	})
}
