// Package oracle is the decision layer the agent defers judgment to:
// decomposing a funded job into an ordered task plan and verifying
// submitted proofs. The agent never second-guesses a verdict; it only
// enforces the economics around it.
package oracle

import (
	"context"
	"math/big"
	"time"

	"github.com/richtan/ETHDenver2026-sub001/internal/chain"
)

// TaskPlan is one planned task, in posting order.
type TaskPlan struct {
	Description string
	ProofSpec   string
	Reward      *big.Int
	Deadline    time.Time
	MaxRetries  int
}

// Decomposition is a full task plan plus what producing it cost
// off-chain. An empty Tasks slice means the oracle could not decompose
// the job.
type Decomposition struct {
	Tasks   []TaskPlan
	CostUSD float64
}

// Verdict is the oracle's judgment of a submitted proof. Suggestion is
// used verbatim as the on-chain rejection reason.
type Verdict struct {
	Approved   bool
	Confidence float64
	Scores     map[string]float64
	Reasoning  string
	Suggestion string
	CostUSD    float64
}

type Oracle interface {
	Decompose(ctx context.Context, description string, budget *big.Int) (Decomposition, error)
	Verify(ctx context.Context, task chain.TaskState, proofRef string) (Verdict, error)
}

// Spec returns the chain submission payload for a planned task.
func (p TaskPlan) Spec() chain.TaskSpec {
	return chain.TaskSpec{
		Description: p.Description,
		ProofSpec:   p.ProofSpec,
		Reward:      p.Reward,
		Deadline:    p.Deadline,
		MaxRetries:  p.MaxRetries,
	}
}
