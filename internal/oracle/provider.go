package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/richtan/ETHDenver2026-sub001/internal/chain"
)

// ProofFetcher resolves a proof reference into the artifact bytes so
// the oracle judges content, not just a pointer.
type ProofFetcher interface {
	Fetch(ctx context.Context, ref string) ([]byte, error)
}

// HTTPProvider talks to the hosted decision service.
type HTTPProvider struct {
	endpoint string
	apiKey   string
	client   *http.Client
	proofs   ProofFetcher
}

func NewHTTPProvider(endpoint, apiKey string, proofs ProofFetcher) *HTTPProvider {
	return &HTTPProvider{
		endpoint: strings.TrimRight(strings.TrimSpace(endpoint), "/"),
		apiKey:   strings.TrimSpace(apiKey),
		client:   &http.Client{Timeout: 60 * time.Second},
		proofs:   proofs,
	}
}

type decomposeRequest struct {
	RequestID   string `json:"request_id"`
	Description string `json:"description"`
	BudgetWei   string `json:"budget_wei"`
}

type plannedTask struct {
	Description     string  `json:"description"`
	ProofSpec       string  `json:"proof_spec"`
	RewardWei       string  `json:"reward_wei"`
	DeadlineMinutes int     `json:"deadline_minutes"`
	MaxRetries      int     `json:"max_retries"`
}

type decomposeResponse struct {
	Tasks   []plannedTask `json:"tasks"`
	CostUSD float64       `json:"cost_usd"`
}

type verifyRequest struct {
	RequestID   string `json:"request_id"`
	TaskID      uint64 `json:"task_id"`
	Description string `json:"description"`
	ProofSpec   string `json:"proof_spec"`
	ProofRef    string `json:"proof_ref"`
	Proof       string `json:"proof,omitempty"`
}

type verifyResponse struct {
	Approved   bool               `json:"approved"`
	Confidence float64            `json:"confidence"`
	Scores     map[string]float64 `json:"scores"`
	Reasoning  string             `json:"reasoning"`
	Suggestion string             `json:"suggestion"`
	CostUSD    float64            `json:"cost_usd"`
}

func (p *HTTPProvider) Decompose(ctx context.Context, description string, budget *big.Int) (Decomposition, error) {
	var decoded decomposeResponse
	err := p.post(ctx, "/v1/decompose", decomposeRequest{
		RequestID:   uuid.NewString(),
		Description: description,
		BudgetWei:   budget.String(),
	}, &decoded)
	if err != nil {
		return Decomposition{}, err
	}
	now := time.Now().UTC()
	out := Decomposition{CostUSD: decoded.CostUSD, Tasks: make([]TaskPlan, 0, len(decoded.Tasks))}
	for _, t := range decoded.Tasks {
		reward, ok := new(big.Int).SetString(t.RewardWei, 10)
		if !ok {
			return Decomposition{}, fmt.Errorf("unparseable reward %q in task plan", t.RewardWei)
		}
		var deadline time.Time
		if t.DeadlineMinutes > 0 {
			deadline = now.Add(time.Duration(t.DeadlineMinutes) * time.Minute)
		}
		out.Tasks = append(out.Tasks, TaskPlan{
			Description: t.Description,
			ProofSpec:   t.ProofSpec,
			Reward:      reward,
			Deadline:    deadline,
			MaxRetries:  t.MaxRetries,
		})
	}
	return out, nil
}

func (p *HTTPProvider) Verify(ctx context.Context, task chain.TaskState, proofRef string) (Verdict, error) {
	req := verifyRequest{
		RequestID:   uuid.NewString(),
		TaskID:      task.ID,
		Description: task.Description,
		ProofSpec:   task.ProofSpec,
		ProofRef:    proofRef,
	}
	if p.proofs != nil {
		body, err := p.proofs.Fetch(ctx, proofRef)
		if err != nil {
			// Judge by reference alone; an unfetchable artifact is the
			// worker's problem and usually reads as a weak proof.
			log.Printf("oracle: proof artifact fetch failed ref=%s: %v", proofRef, err)
		} else {
			req.Proof = truncate(string(body), 64*1024)
		}
	}
	var decoded verifyResponse
	if err := p.post(ctx, "/v1/verify", req, &decoded); err != nil {
		return Verdict{}, err
	}
	return Verdict{
		Approved:   decoded.Approved,
		Confidence: decoded.Confidence,
		Scores:     decoded.Scores,
		Reasoning:  decoded.Reasoning,
		Suggestion: decoded.Suggestion,
		CostUSD:    decoded.CostUSD,
	}, nil
}

func (p *HTTPProvider) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("decision service returned %s", resp.Status)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
