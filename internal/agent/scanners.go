package agent

import (
	"context"
	"log"
	"time"

	"github.com/richtan/ETHDenver2026-sub001/internal/chain"
	"github.com/richtan/ETHDenver2026-sub001/internal/observability"
)

// ExpiryScanner walks every task on a timer and expires the overdue
// ones. It is a deliberate full linear scan: task counts are small
// and the scan must not depend on any in-memory index that a restart
// would lose.
type ExpiryScanner struct {
	orch     *Orchestrator
	interval time.Duration

	// now is swappable in tests.
	now func() time.Time
}

func NewExpiryScanner(orch *Orchestrator, interval time.Duration) *ExpiryScanner {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ExpiryScanner{orch: orch, interval: interval, now: time.Now}
}

func (s *ExpiryScanner) Start(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Scan(ctx)
		}
	}
}

// Scan performs one pass. A read failure on one task is logged and
// skipped; the rest of the scan continues and the next tick retries.
func (s *ExpiryScanner) Scan(ctx context.Context) {
	ctx, span := observability.StartSpan(ctx, "agent.expiry_scan")
	defer span.End()

	count, err := s.orch.reader.TaskCount(ctx)
	if err != nil {
		log.Printf("agent: expiry scan: read task count: %v", err)
		return
	}
	now := s.now().UTC()
	expired := 0
	for id := uint64(0); id < count; id++ {
		task, ok, err := s.orch.reader.Task(ctx, id)
		if err != nil {
			log.Printf("agent: expiry scan: read task %d: %v", id, err)
			continue
		}
		if !ok {
			continue
		}
		if task.Status != chain.TaskStatusAccepted && task.Status != chain.TaskStatusPendingVerification {
			continue
		}
		if task.Deadline.IsZero() || !task.Deadline.Before(now) {
			continue
		}
		s.orch.ExpireTask(ctx, task.JobID, task.ID)
		expired++
	}
	observability.Default.IncCounter("expiry_scans_total", nil, 1)
	if expired > 0 {
		observability.Default.IncCounter("tasks_expired_total", nil, float64(expired))
	}
}

// ReimburseScanner settles accumulated off-chain compute spend back
// to the operator account once it crosses the threshold. The
// watermark is only advanced after the transfer confirms, so a failed
// cycle simply tries again next tick (at-least-once, never double).
type ReimburseScanner struct {
	orch         *Orchestrator
	operator     string
	thresholdUSD float64
	interval     time.Duration
	enabled      bool
}

func NewReimburseScanner(orch *Orchestrator, operator string, thresholdUSD float64, interval time.Duration, enabled bool) *ReimburseScanner {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	return &ReimburseScanner{
		orch:         orch,
		operator:     operator,
		thresholdUSD: thresholdUSD,
		interval:     interval,
		enabled:      enabled,
	}
}

func (s *ReimburseScanner) Start(ctx context.Context) {
	if !s.enabled {
		log.Printf("agent: reimbursement disabled for this profile")
		return
	}
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.Scan(ctx)
		}
	}
}

// Scan performs one reimbursement check.
func (s *ReimburseScanner) Scan(ctx context.Context) {
	ctx, span := observability.StartSpan(ctx, "agent.reimburse_scan")
	defer span.End()

	outstanding, entryIDs := s.orch.costs.OutstandingCompute()
	observability.Default.SetGauge("unreimbursed_compute_usd", nil, outstanding)
	if outstanding <= s.thresholdUSD {
		return
	}

	amount, err := s.orch.prices.USDToNative(ctx, outstanding)
	if err != nil {
		log.Printf("agent: reimburse: convert %.4f USD: %v", outstanding, err)
		return
	}
	handle, err := s.orch.writer.Transfer(ctx, s.operator, amount)
	if err != nil {
		log.Printf("agent: reimburse: transfer: %v", err)
		return
	}
	receipt, err := s.orch.writer.Wait(ctx, handle)
	if err != nil {
		log.Printf("agent: reimburse: confirm transfer: %v", err)
		return
	}

	// Only the entries summed above: spend appended while the transfer
	// was in flight has not been paid and must survive for next cycle.
	marked := s.orch.costs.MarkComputeReimbursed(receipt.TxRef, entryIDs)
	s.orch.actions.Record(ComputeReimbursed{stamp: stampNow(), AmountUSD: marked, TxRef: receipt.TxRef})
	s.orch.txs.Record("reimburse compute", receipt.TxRef, amount)
	observability.Default.IncCounter("compute_reimbursed_usd_total", nil, marked)
	log.Printf("agent: reimbursed %.4f USD of compute spend tx=%s", marked, receipt.TxRef)
}
