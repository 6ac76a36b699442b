package agent

import (
	"context"
	"log"
	"math/big"

	"github.com/richtan/ETHDenver2026-sub001/internal/chain"
	"github.com/richtan/ETHDenver2026-sub001/internal/costs"
	"github.com/richtan/ETHDenver2026-sub001/internal/observability"
)

// Run consumes the live subscription until ctx ends. Every event is
// dispatched on its own goroutine; the per-job lock inside the
// handlers keeps steps for one job serialized while unrelated jobs
// proceed independently.
func (o *Orchestrator) Run(ctx context.Context) error {
	events, err := o.reader.Subscribe(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			go o.Dispatch(ctx, ev)
		}
	}
}

// Dispatch routes one log entry. Entries produced by the agent's own
// writes (task completed, proof rejected, job completed, job
// cancelled, task expired) are not re-processed: the handler that
// submitted the write already recorded the audit trail.
func (o *Orchestrator) Dispatch(ctx context.Context, ev chain.Event) {
	switch e := ev.(type) {
	case chain.JobCreated:
		countEvent("JobCreated")
		o.OnJobCreated(ctx, e.JobID, e.Description, e.Budget)
	case chain.ProofSubmitted:
		countEvent("ProofSubmitted")
		o.OnProofSubmitted(ctx, e.JobID, e.TaskID, e.ProofRef)
	case chain.TaskAccepted:
		countEvent("TaskAccepted")
		o.actions.Record(TaskAccepted{stamp: stampNow(), JobID: e.JobID, TaskID: e.TaskID, Worker: e.Worker})
	case chain.ServiceSold:
		countEvent("ServiceSold")
		o.onServiceSold(ctx, e)
	default:
	}
}

func (o *Orchestrator) onServiceSold(ctx context.Context, e chain.ServiceSold) {
	o.actions.Record(ServiceSoldAction{stamp: stampNow(), Service: e.Service, Buyer: e.Buyer, Amount: e.Amount})
	amount := e.Amount
	if amount == nil {
		amount = big.NewInt(0)
	}
	usd, err := o.prices.NativeToUSD(ctx, amount)
	if err != nil {
		log.Printf("agent: service sale conversion: %v", err)
		return
	}
	o.costs.Add(costs.ServiceRevenue, usd, "sold "+e.Service)
}

func countEvent(kind string) {
	observability.Default.IncCounter("events_processed_total", map[string]string{"kind": kind}, 1)
}
