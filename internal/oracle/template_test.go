package oracle

import (
	"context"
	"math/big"
	"testing"
)

func TestTemplateDecomposeLeavesMargin(t *testing.T) {
	d, err := Template{}.Decompose(context.Background(), "ship the docs site", big.NewInt(3000))
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(d.Tasks) != 3 {
		t.Fatalf("expected 3 phases, got %d", len(d.Tasks))
	}
	committed := big.NewInt(0)
	for _, task := range d.Tasks {
		committed.Add(committed, task.Reward)
	}
	if committed.Cmp(big.NewInt(3000)) >= 0 {
		t.Fatalf("committed %s must stay under budget", committed)
	}
}

func TestTemplateDecomposeTinyBudget(t *testing.T) {
	d, err := Template{}.Decompose(context.Background(), "anything", big.NewInt(2))
	if err != nil {
		t.Fatalf("decompose: %v", err)
	}
	if len(d.Tasks) != 0 {
		t.Fatalf("expected empty plan for budget too small to split, got %d tasks", len(d.Tasks))
	}
}
