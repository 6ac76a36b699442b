package oracle

import (
	"context"
	"math/big"
	"strings"
	"time"

	"github.com/richtan/ETHDenver2026-sub001/internal/chain"
)

// Template is a deterministic decomposer for the local profile: three
// fixed phases splitting 80% of the budget, and a keyword check in
// place of real verification. It keeps the full pipeline runnable with
// no hosted decision service.
type Template struct {
	TaskDeadline time.Duration
}

func (t Template) Decompose(_ context.Context, description string, budget *big.Int) (Decomposition, error) {
	if strings.TrimSpace(description) == "" {
		return Decomposition{}, nil
	}
	// 80% committed across three phases leaves a 20% margin.
	committed := new(big.Int).Div(new(big.Int).Mul(budget, big.NewInt(80)), big.NewInt(100))
	share := new(big.Int).Div(committed, big.NewInt(3))
	if share.Sign() <= 0 {
		return Decomposition{}, nil
	}
	var deadline time.Time
	if t.TaskDeadline > 0 {
		deadline = time.Now().UTC().Add(t.TaskDeadline)
	}
	phases := []string{"draft", "implement", "review"}
	tasks := make([]TaskPlan, 0, len(phases))
	for _, phase := range phases {
		tasks = append(tasks, TaskPlan{
			Description: phase + ": " + description,
			ProofSpec:   "link to the finished " + phase + " output",
			Reward:      new(big.Int).Set(share),
			Deadline:    deadline,
			MaxRetries:  2,
		})
	}
	return Decomposition{Tasks: tasks, CostUSD: 0}, nil
}

func (t Template) Verify(_ context.Context, task chain.TaskState, proofRef string) (Verdict, error) {
	if strings.TrimSpace(proofRef) == "" {
		return Verdict{
			Approved:   false,
			Confidence: 1,
			Reasoning:  "empty proof reference",
			Suggestion: "submit a link to the completed work",
		}, nil
	}
	return Verdict{
		Approved:   true,
		Confidence: 0.5,
		Scores:     map[string]float64{"present": 1},
		Reasoning:  "template oracle approves any non-empty proof",
	}, nil
}
