package agent

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"sync"

	"go.opentelemetry.io/otel/attribute"

	"github.com/richtan/ETHDenver2026-sub001/internal/chain"
	"github.com/richtan/ETHDenver2026-sub001/internal/costs"
	"github.com/richtan/ETHDenver2026-sub001/internal/notify"
	"github.com/richtan/ETHDenver2026-sub001/internal/observability"
	"github.com/richtan/ETHDenver2026-sub001/internal/oracle"
	"github.com/richtan/ETHDenver2026-sub001/internal/pricing"
)

// Orchestrator drives every job and task through its lifecycle. It
// owns no durable state: everything it knows is reconstructible from
// the contract's event log, which is what makes recovery a plain
// replay through the same entry points the live path uses.
//
// Failure policy: a handler failure is logged and absorbed. Nothing
// here retries in place; the next recovery pass or scheduled scan is
// the retry mechanism.
type Orchestrator struct {
	reader chain.Reader
	writer chain.Writer
	oracle oracle.Oracle
	prices pricing.Oracle
	costs  *costs.Ledger
	notify notify.Sink

	actions *ActionLog
	txs     *TransactionLog

	mu         sync.Mutex
	taskCounts map[uint64]int
	jobLocks   map[uint64]*sync.Mutex
}

func New(reader chain.Reader, writer chain.Writer, decider oracle.Oracle, prices pricing.Oracle, ledger *costs.Ledger, sink notify.Sink) *Orchestrator {
	if sink == nil {
		sink = notify.Noop{}
	}
	return &Orchestrator{
		reader:     reader,
		writer:     writer,
		oracle:     decider,
		prices:     prices,
		costs:      ledger,
		notify:     sink,
		actions:    NewActionLog(),
		txs:        NewTransactionLog(),
		taskCounts: make(map[uint64]int),
		jobLocks:   make(map[uint64]*sync.Mutex),
	}
}

// jobLock returns the per-job mutex. Handlers for different jobs run
// concurrently; within one job, steps are serialized.
func (o *Orchestrator) jobLock(jobID uint64) *sync.Mutex {
	o.mu.Lock()
	defer o.mu.Unlock()
	l, ok := o.jobLocks[jobID]
	if !ok {
		l = &sync.Mutex{}
		o.jobLocks[jobID] = l
	}
	return l
}

// SetJobTaskCount pre-seeds the completion-detection cache. Recovery
// calls it while folding TaskAdded entries; calling it again with the
// same value is a no-op.
func (o *Orchestrator) SetJobTaskCount(jobID uint64, count int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.taskCounts[jobID] = count
}

func (o *Orchestrator) jobTaskCount(jobID uint64) (int, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	n, ok := o.taskCounts[jobID]
	return n, ok
}

// dropJobState releases per-job bookkeeping once a job is terminal.
// A late handler for the same job gets a fresh lock, which is safe:
// every write it could attempt fails its on-chain precondition.
func (o *Orchestrator) dropJobState(jobID uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.taskCounts, jobID)
	delete(o.jobLocks, jobID)
}

// Actions returns the bounded audit feed, newest first.
func (o *Orchestrator) Actions() []Action { return o.actions.Snapshot() }

// Transactions returns the bounded write feed, newest first.
func (o *Orchestrator) Transactions() []Transaction { return o.txs.Snapshot() }

// Metrics returns the cost ledger read model.
func (o *Orchestrator) Metrics() costs.Metrics { return o.costs.Snapshot() }

// CostEntries returns every cost ledger line.
func (o *Orchestrator) CostEntries() []costs.Entry { return o.costs.Entries() }

// runJob wraps a handler with the per-job lock, a span and the
// absorb-and-log failure boundary.
func (o *Orchestrator) runJob(ctx context.Context, name string, jobID uint64, fn func(context.Context) error) {
	ctx, span := observability.StartSpan(ctx, "agent."+name,
		attribute.Int64("job.id", int64(jobID)),
	)
	defer span.End()
	l := o.jobLock(jobID)
	l.Lock()
	defer l.Unlock()
	if err := fn(ctx); err != nil {
		log.Printf("agent: %s job=%d: %v", name, jobID, err)
		observability.Default.IncCounter("handler_failures_total", map[string]string{"handler": name}, 1)
	}
}

// OnJobCreated reacts to a newly funded job: announce it, ask the
// oracle for a task plan, enforce the budget margin and post the plan
// in sequence order. Usable from the live subscription and from
// recovery replay alike.
func (o *Orchestrator) OnJobCreated(ctx context.Context, jobID uint64, description string, budget *big.Int) {
	o.runJob(ctx, "on_job_created", jobID, func(ctx context.Context) error {
		return o.handleJobCreated(ctx, jobID, description, budget)
	})
}

func (o *Orchestrator) handleJobCreated(ctx context.Context, jobID uint64, description string, budget *big.Int) error {
	o.actions.Record(JobReceived{stamp: stampNow(), JobID: jobID, Description: description, Budget: budget})
	go o.notify.JobCreated(context.Background(), jobID, description, budget)

	dec, err := o.oracle.Decompose(ctx, description, budget)
	if err != nil {
		return fmt.Errorf("decompose: %w", err)
	}
	if dec.CostUSD > 0 {
		o.costs.Add(costs.ComputeCost, dec.CostUSD, fmt.Sprintf("decompose job %d", jobID))
	}

	committed := big.NewInt(0)
	for _, t := range dec.Tasks {
		committed.Add(committed, t.Reward)
	}
	if len(dec.Tasks) == 0 || committed.Cmp(budget) >= 0 {
		reason := "decomposition produced no tasks"
		if len(dec.Tasks) > 0 {
			reason = fmt.Sprintf("committed rewards %s leave no margin on budget %s", committed, budget)
		}
		log.Printf("agent: job=%d rejected: %s", jobID, reason)
		return o.cancelJob(ctx, jobID, reason)
	}

	margin := new(big.Int).Sub(budget, committed)
	o.actions.Record(JobDecomposed{stamp: stampNow(), JobID: jobID, Tasks: len(dec.Tasks), Margin: margin})

	// Posting order is sequence-index order; completion detection
	// depends on it.
	for i, t := range dec.Tasks {
		handle, err := o.writer.AddTask(ctx, jobID, t.Spec())
		if err != nil {
			return fmt.Errorf("post task %d: %w", i, err)
		}
		receipt, err := o.writer.Wait(ctx, handle)
		if err != nil {
			return fmt.Errorf("confirm task %d: %w", i, err)
		}
		o.actions.Record(TaskPosted{stamp: stampNow(), JobID: jobID, Index: uint64(i), Reward: t.Reward})
		o.txs.Record("post task", receipt.TxRef, t.Reward)
		o.recordGas(ctx, fmt.Sprintf("post task %d of job %d", i, jobID), receipt)
	}
	o.SetJobTaskCount(jobID, len(dec.Tasks))
	return nil
}

// cancelJob makes an economic rejection durable: the cancellation
// lands in the event log, so replay sees a terminal job instead of
// re-attempting the same failing decomposition forever.
func (o *Orchestrator) cancelJob(ctx context.Context, jobID uint64, reason string) error {
	handle, err := o.writer.CancelJob(ctx, jobID, reason)
	if err != nil {
		return fmt.Errorf("cancel job: %w", err)
	}
	receipt, err := o.writer.Wait(ctx, handle)
	if err != nil {
		return fmt.Errorf("confirm cancel: %w", err)
	}
	o.actions.Record(JobCancelledAction{stamp: stampNow(), JobID: jobID, Reason: reason})
	o.txs.Record("cancel job", receipt.TxRef, nil)
	o.recordGas(ctx, fmt.Sprintf("cancel job %d", jobID), receipt)
	o.dropJobState(jobID)
	return nil
}

// OnProofSubmitted reacts to a worker's proof: verify it through the
// oracle, then approve-and-pay or reject on-chain. Approving the task
// with the highest sequence index also completes the job.
func (o *Orchestrator) OnProofSubmitted(ctx context.Context, jobID, taskID uint64, proofRef string) {
	o.runJob(ctx, "on_proof_submitted", jobID, func(ctx context.Context) error {
		return o.handleProofSubmitted(ctx, jobID, taskID, proofRef)
	})
}

func (o *Orchestrator) handleProofSubmitted(ctx context.Context, jobID, taskID uint64, proofRef string) error {
	o.actions.Record(ProofSubmitted{stamp: stampNow(), JobID: jobID, TaskID: taskID, ProofRef: proofRef})

	task, ok, err := o.reader.Task(ctx, taskID)
	if err != nil {
		return fmt.Errorf("read task %d: %w", taskID, err)
	}
	if !ok {
		return fmt.Errorf("task %d not found", taskID)
	}
	if task.Status != chain.TaskStatusPendingVerification {
		// Replay overlap: the proof was already resolved by a live
		// handler or an earlier pass.
		log.Printf("agent: task=%d is %s, skipping verification", taskID, task.Status)
		return nil
	}
	job, ok, err := o.reader.Job(ctx, jobID)
	if err != nil {
		return fmt.Errorf("read job %d: %w", jobID, err)
	}
	if !ok {
		return fmt.Errorf("job %d not found", jobID)
	}

	verdict, err := o.oracle.Verify(ctx, task, proofRef)
	if err != nil {
		return fmt.Errorf("verify task %d: %w", taskID, err)
	}
	if verdict.CostUSD > 0 {
		o.costs.Add(costs.ComputeCost, verdict.CostUSD, fmt.Sprintf("verify task %d", taskID))
	}

	if !verdict.Approved {
		handle, err := o.writer.RejectTask(ctx, taskID, verdict.Suggestion)
		if err != nil {
			return fmt.Errorf("reject task %d: %w", taskID, err)
		}
		receipt, err := o.writer.Wait(ctx, handle)
		if err != nil {
			return fmt.Errorf("confirm reject %d: %w", taskID, err)
		}
		o.actions.Record(ProofRejected{stamp: stampNow(), JobID: jobID, TaskID: taskID, Reason: verdict.Suggestion})
		o.txs.Record("reject proof", receipt.TxRef, nil)
		o.recordGas(ctx, fmt.Sprintf("reject task %d", taskID), receipt)
		return nil
	}

	handle, err := o.writer.ApproveTask(ctx, taskID)
	if err != nil {
		return fmt.Errorf("approve task %d: %w", taskID, err)
	}
	receipt, err := o.writer.Wait(ctx, handle)
	if err != nil {
		return fmt.Errorf("confirm approve %d: %w", taskID, err)
	}
	o.actions.Record(ProofVerified{stamp: stampNow(), JobID: jobID, TaskID: taskID, Confidence: verdict.Confidence})
	o.actions.Record(WorkerPaid{stamp: stampNow(), JobID: jobID, TaskID: taskID, Worker: task.Worker, Reward: task.Reward})
	o.txs.Record("approve proof & pay worker", receipt.TxRef, task.Reward)
	o.recordGas(ctx, fmt.Sprintf("approve task %d", taskID), receipt)
	if usd, err := o.prices.NativeToUSD(ctx, task.Reward); err != nil {
		log.Printf("agent: payout conversion task=%d: %v", taskID, err)
	} else {
		o.costs.Add(costs.WorkerPayout, usd, fmt.Sprintf("task %d reward", taskID))
	}

	count, ok := o.jobTaskCount(jobID)
	if !ok {
		// Task count cache is seeded by decomposition or recovery;
		// fall back to the on-chain task list.
		count = len(job.TaskIDs)
	}
	if int(task.Index) != count-1 {
		o.actions.Record(NextTaskOpened{stamp: stampNow(), JobID: jobID, Index: task.Index + 1})
		return nil
	}

	// Profit from the pre-approval snapshot: spent does not yet
	// include this task's reward.
	profit := new(big.Int).Sub(job.Budget, job.Spent)
	profit.Sub(profit, task.Reward)
	return o.completeJob(ctx, jobID, profit)
}

func (o *Orchestrator) completeJob(ctx context.Context, jobID uint64, profit *big.Int) error {
	handle, err := o.writer.CompleteJob(ctx, jobID)
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	receipt, err := o.writer.Wait(ctx, handle)
	if err != nil {
		return fmt.Errorf("confirm complete: %w", err)
	}
	profitUSD := 0.0
	if usd, err := o.prices.NativeToUSD(ctx, profit); err != nil {
		log.Printf("agent: profit conversion job=%d: %v", jobID, err)
	} else {
		profitUSD = usd
		o.costs.Add(costs.JobProfit, usd, fmt.Sprintf("job %d margin", jobID))
	}
	o.actions.Record(JobCompletedAction{stamp: stampNow(), JobID: jobID, ProfitUSD: profitUSD})
	o.txs.Record("complete job", receipt.TxRef, nil)
	o.recordGas(ctx, fmt.Sprintf("complete job %d", jobID), receipt)
	o.dropJobState(jobID)
	return nil
}

// CompleteJob closes a job whose tasks are all approved but whose
// completion write never landed. Recovery uses it when no proof is
// pending to re-drive through OnProofSubmitted.
func (o *Orchestrator) CompleteJob(ctx context.Context, jobID uint64) {
	o.runJob(ctx, "complete_job", jobID, func(ctx context.Context) error {
		job, ok, err := o.reader.Job(ctx, jobID)
		if err != nil {
			return fmt.Errorf("read job: %w", err)
		}
		if !ok {
			return fmt.Errorf("job %d not found", jobID)
		}
		return o.completeJob(ctx, jobID, new(big.Int).Sub(job.Budget, job.Spent))
	})
}

// ExpireTask submits the expiry write for one overdue task.
func (o *Orchestrator) ExpireTask(ctx context.Context, jobID, taskID uint64) {
	o.runJob(ctx, "expire_task", jobID, func(ctx context.Context) error {
		handle, err := o.writer.ExpireTask(ctx, taskID)
		if err != nil {
			return fmt.Errorf("expire task %d: %w", taskID, err)
		}
		receipt, err := o.writer.Wait(ctx, handle)
		if err != nil {
			return fmt.Errorf("confirm expire %d: %w", taskID, err)
		}
		o.actions.Record(TaskExpiredAction{stamp: stampNow(), JobID: jobID, TaskID: taskID})
		o.txs.Record("expire task", receipt.TxRef, nil)
		o.recordGas(ctx, fmt.Sprintf("expire task %d", taskID), receipt)
		return nil
	})
}

func (o *Orchestrator) recordGas(ctx context.Context, detail string, receipt chain.Receipt) {
	gas := receipt.GasCostOrZero()
	if gas.Sign() == 0 {
		return
	}
	usd, err := o.prices.NativeToUSD(ctx, gas)
	if err != nil {
		log.Printf("agent: gas conversion (%s): %v", detail, err)
		return
	}
	o.costs.Add(costs.GasCost, usd, detail)
}
