package api

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/richtan/ETHDenver2026-sub001/internal/agent"
	"github.com/richtan/ETHDenver2026-sub001/internal/chain"
	"github.com/richtan/ETHDenver2026-sub001/internal/costs"
	"github.com/richtan/ETHDenver2026-sub001/internal/oracle"
	"github.com/richtan/ETHDenver2026-sub001/internal/pricing"
	"github.com/richtan/ETHDenver2026-sub001/pkg/agentapi"
)

type planOracle struct{}

func (planOracle) Decompose(_ context.Context, _ string, _ *big.Int) (oracle.Decomposition, error) {
	return oracle.Decomposition{
		Tasks: []oracle.TaskPlan{
			{Description: "draft", ProofSpec: "link", Reward: big.NewInt(100), MaxRetries: 2},
			{Description: "review", ProofSpec: "link", Reward: big.NewInt(100), MaxRetries: 2},
		},
		CostUSD: 0.01,
	}, nil
}

func (planOracle) Verify(_ context.Context, _ chain.TaskState, _ string) (oracle.Verdict, error) {
	return oracle.Verdict{Approved: true, Confidence: 0.95, CostUSD: 0.01}, nil
}

func newTestServer(t *testing.T) (*chain.MemoryChain, *agent.Orchestrator, *httptest.Server) {
	t.Helper()
	mem := chain.NewMemoryChain()
	orch := agent.New(mem, mem, planOracle{}, pricing.Fixed{USDPerToken: 2000}, costs.NewLedger(), nil)
	srv := httptest.NewServer(NewServer(orch, mem).Handler())
	t.Cleanup(srv.Close)
	return mem, orch, srv
}

func getJSON(t *testing.T, url string, out any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestHealthz(t *testing.T) {
	_, _, srv := newTestServer(t)
	var body map[string]string
	getJSON(t, srv.URL+"/healthz", &body)
	if body["status"] != "ok" {
		t.Fatalf("health: %v", body)
	}
}

func TestActionsFeedServesFlatRecords(t *testing.T) {
	ctx := context.Background()
	mem, orch, srv := newTestServer(t)

	jobID := mem.CreateJob("docs portal", big.NewInt(1000))
	orch.OnJobCreated(ctx, jobID, "docs portal", big.NewInt(1000))

	var body agentapi.ActionsResponse
	getJSON(t, srv.URL+"/v1/actions", &body)
	if body.Total != 4 {
		t.Fatalf("actions: %d, want 4 (received, decomposed, 2 posted)", body.Total)
	}
	// Newest first: last posted task leads.
	first := body.Actions[0]
	if first.Kind != "task_posted" || first.Index == nil || *first.Index != 1 {
		t.Fatalf("first record: %+v", first)
	}
	last := body.Actions[len(body.Actions)-1]
	if last.Kind != "job_received" || last.Description != "docs portal" || last.AmountWei != "1000" {
		t.Fatalf("last record: %+v", last)
	}
}

func TestTransactionsFeed(t *testing.T) {
	ctx := context.Background()
	mem, orch, srv := newTestServer(t)
	jobID := mem.CreateJob("docs portal", big.NewInt(1000))
	orch.OnJobCreated(ctx, jobID, "docs portal", big.NewInt(1000))

	var body agentapi.TransactionsResponse
	getJSON(t, srv.URL+"/v1/transactions", &body)
	if body.Total != 2 {
		t.Fatalf("transactions: %d", body.Total)
	}
	for _, tx := range body.Transactions {
		if tx.TxRef == "" || tx.AmountWei != "100" {
			t.Fatalf("transaction: %+v", tx)
		}
	}
}

func TestJobSnapshot(t *testing.T) {
	ctx := context.Background()
	mem, orch, srv := newTestServer(t)
	jobID := mem.CreateJob("docs portal", big.NewInt(1000))
	orch.OnJobCreated(ctx, jobID, "docs portal", big.NewInt(1000))

	var body agentapi.JobStatusResponse
	getJSON(t, srv.URL+"/v1/jobs/0", &body)
	if body.Status != chain.JobStatusOpen || body.BudgetWei != "1000" {
		t.Fatalf("snapshot: %+v", body)
	}
	if len(body.Tasks) != 2 {
		t.Fatalf("tasks: %d", len(body.Tasks))
	}
	for i, task := range body.Tasks {
		if task.Index != uint64(i) || task.Status != chain.TaskStatusCreated {
			t.Fatalf("task %d: %+v", i, task)
		}
	}

	resp, err := http.Get(srv.URL + "/v1/jobs/99")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing job: status %d", resp.StatusCode)
	}
}

func TestCostsEndpoint(t *testing.T) {
	ctx := context.Background()
	mem, orch, srv := newTestServer(t)
	jobID := mem.CreateJob("docs portal", big.NewInt(1000))
	orch.OnJobCreated(ctx, jobID, "docs portal", big.NewInt(1000))

	var body agentapi.CostsResponse
	getJSON(t, srv.URL+"/v1/costs", &body)
	if body.TotalCostUSD <= 0 {
		t.Fatalf("costs: %+v", body)
	}
	if len(body.Entries) == 0 {
		t.Fatal("no cost entries")
	}
	for _, e := range body.Entries {
		if e.ID == "" || e.Type == "" || e.CreatedAt == "" {
			t.Fatalf("entry: %+v", e)
		}
	}
}

func TestBearerTokenGate(t *testing.T) {
	t.Setenv("AGENT_API_TOKENS", "secret-1, secret-2")
	mem := chain.NewMemoryChain()
	orch := agent.New(mem, mem, planOracle{}, pricing.Fixed{USDPerToken: 2000}, costs.NewLedger(), nil)
	srv := httptest.NewServer(NewServer(orch, mem).Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/v1/actions")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no token: status %d", resp.StatusCode)
	}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/v1/actions", nil)
	req.Header.Set("Authorization", "Bearer secret-2")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("valid token: status %d", resp.StatusCode)
	}

	req.Header.Set("Authorization", "Bearer wrong")
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("bad token: status %d", resp.StatusCode)
	}
}
