package agent

import (
	"context"
	"math/big"
	"testing"

	"github.com/richtan/ETHDenver2026-sub001/internal/chain"
	"github.com/richtan/ETHDenver2026-sub001/internal/costs"
	"github.com/richtan/ETHDenver2026-sub001/internal/pricing"
)

// seedInterruptedRun builds a log as a crashed process would have left
// it: job 1 has three tasks with the first approved, the second
// awaiting verification and the third untouched; job 2 was funded but
// never decomposed.
func seedInterruptedRun(t *testing.T, ctx context.Context, mem *chain.MemoryChain) (job1, job2 uint64) {
	t.Helper()
	job1 = mem.CreateJob("site rebuild", big.NewInt(1000))
	var tids []uint64
	for i := 0; i < 3; i++ {
		handle, err := mem.AddTask(ctx, job1, chain.TaskSpec{
			Description: "phase",
			ProofSpec:   "link",
			Reward:      big.NewInt(100),
			MaxRetries:  2,
		})
		if err != nil {
			t.Fatalf("add task %d: %v", i, err)
		}
		if _, err := mem.Wait(ctx, handle); err != nil {
			t.Fatalf("wait task %d: %v", i, err)
		}
		j, _, _ := mem.Job(ctx, job1)
		tids = j.TaskIDs
	}

	if err := mem.AcceptTask(tids[0], "0xalice"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := mem.SubmitProof(tids[0], "proofs/a.md"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := mem.ApproveTask(ctx, tids[0]); err != nil {
		t.Fatalf("approve: %v", err)
	}

	if err := mem.AcceptTask(tids[1], "0xbob"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if err := mem.SubmitProof(tids[1], "proofs/b.md"); err != nil {
		t.Fatalf("submit: %v", err)
	}

	job2 = mem.CreateJob("data labeling", big.NewInt(500))
	return job1, job2
}

func TestRecoveryPlanFindsInterruptedWork(t *testing.T) {
	ctx := context.Background()
	mem := chain.NewMemoryChain()
	orc := &testOracle{plan: evenPlan(2, 100)}
	o := New(mem, mem, orc, pricing.Fixed{USDPerToken: 2000}, costs.NewLedger(), nil)
	job1, job2 := seedInterruptedRun(t, ctx, mem)

	r := NewReplayer(mem, o, 100)
	report, redrives, err := r.Plan(ctx)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if report.JobsTracked != 2 {
		t.Fatalf("jobs tracked: %d", report.JobsTracked)
	}
	if len(redrives) != 2 {
		t.Fatalf("redrives: %+v", redrives)
	}
	if redrives[0].Kind != RedriveVerify || redrives[0].JobID != job1 || redrives[0].ProofRef != "proofs/b.md" {
		t.Fatalf("first redrive: %+v", redrives[0])
	}
	if redrives[1].Kind != RedriveDecompose || redrives[1].JobID != job2 {
		t.Fatalf("second redrive: %+v", redrives[1])
	}
	// Plan alone performs no writes.
	if n, ok := o.jobTaskCount(job1); !ok || n != 3 {
		t.Fatalf("task count seeding: n=%d ok=%v", n, ok)
	}
}

func TestRecoveryRunResumesAndConverges(t *testing.T) {
	ctx := context.Background()
	mem := chain.NewMemoryChain()
	orc := &testOracle{plan: evenPlan(2, 100)}
	o := New(mem, mem, orc, pricing.Fixed{USDPerToken: 2000}, costs.NewLedger(), nil)
	job1, job2 := seedInterruptedRun(t, ctx, mem)

	r := NewReplayer(mem, o, 100)
	report, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Redriven != 2 {
		t.Fatalf("redriven: %d", report.Redriven)
	}

	// Pending proof on job 1 got verified; task 3 still waits for a
	// worker, so the job stays open.
	j1, _, _ := mem.Job(ctx, job1)
	if j1.Status != chain.JobStatusOpen {
		t.Fatalf("job1 status: %s", j1.Status)
	}
	mid, _, _ := mem.Task(ctx, j1.TaskIDs[1])
	if mid.Status != chain.TaskStatusApproved {
		t.Fatalf("redriven proof not approved: %s", mid.Status)
	}

	// Job 2 got decomposed from scratch.
	j2, _, _ := mem.Job(ctx, job2)
	if len(j2.TaskIDs) != 2 {
		t.Fatalf("job2 tasks: %d", len(j2.TaskIDs))
	}
}

func TestRecoveryCompletesJobWithAllTasksApproved(t *testing.T) {
	ctx := context.Background()
	mem := chain.NewMemoryChain()
	o := New(mem, mem, &testOracle{}, pricing.Fixed{USDPerToken: 2000}, costs.NewLedger(), nil)

	// The crash landed between the last approval and the completion
	// write: every task is approved but the job is still open.
	oneToken := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	reward := new(big.Int).Div(oneToken, big.NewInt(2))
	budget := new(big.Int).Mul(oneToken, big.NewInt(2))
	jobID := mem.CreateJob("almost done", budget)
	for i := 0; i < 2; i++ {
		handle, err := mem.AddTask(ctx, jobID, chain.TaskSpec{
			Description: "phase",
			ProofSpec:   "link",
			Reward:      new(big.Int).Set(reward),
			MaxRetries:  2,
		})
		if err != nil {
			t.Fatalf("add task %d: %v", i, err)
		}
		if _, err := mem.Wait(ctx, handle); err != nil {
			t.Fatalf("wait task %d: %v", i, err)
		}
	}
	j, _, _ := mem.Job(ctx, jobID)
	for _, tid := range j.TaskIDs {
		if err := mem.AcceptTask(tid, "0xalice"); err != nil {
			t.Fatalf("accept %d: %v", tid, err)
		}
		if err := mem.SubmitProof(tid, "proofs/done.md"); err != nil {
			t.Fatalf("submit %d: %v", tid, err)
		}
		if _, err := mem.ApproveTask(ctx, tid); err != nil {
			t.Fatalf("approve %d: %v", tid, err)
		}
	}

	before := mem.WriteCount()
	r := NewReplayer(mem, o, 100)
	report, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Redriven != 1 {
		t.Fatalf("redriven: %d", report.Redriven)
	}
	if got := mem.WriteCount() - before; got != 1 {
		t.Fatalf("expected exactly 1 completion write, got %d", got)
	}

	job, _, _ := mem.Job(ctx, jobID)
	if job.Status != chain.JobStatusCompleted {
		t.Fatalf("job status: %s", job.Status)
	}
	completions := 0
	for _, ev := range mustEvents(t, mem) {
		if _, ok := ev.(chain.JobCompleted); ok {
			completions++
		}
	}
	if completions != 1 {
		t.Fatalf("completions in log: %d", completions)
	}

	// Margin is one token: budget 2 minus two half-token rewards.
	approx(t, o.Metrics().ByType[costs.JobProfit], 2000, "recovered job margin")
}

func TestRecoveryIsIdempotentOnConvergedLog(t *testing.T) {
	ctx := context.Background()
	mem := chain.NewMemoryChain()
	orc := &testOracle{plan: evenPlan(2, 100)}
	o := New(mem, mem, orc, pricing.Fixed{USDPerToken: 2000}, costs.NewLedger(), nil)

	jobID := mem.CreateJob("converged job", big.NewInt(1000))
	o.OnJobCreated(ctx, jobID, "converged job", big.NewInt(1000))
	driveJob(t, ctx, mem, o, jobID)
	job, _, _ := mem.Job(ctx, jobID)
	if job.Status != chain.JobStatusCompleted {
		t.Fatalf("setup: job status %s", job.Status)
	}

	before := mem.WriteCount()
	r := NewReplayer(mem, o, 100)
	report, err := r.Run(ctx)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if report.Redriven != 0 {
		t.Fatalf("converged log must not redrive, got %d", report.Redriven)
	}
	if mem.WriteCount() != before {
		t.Fatalf("replay issued %d new writes", mem.WriteCount()-before)
	}
}

func TestRecoveryFetchesHistoryInChunks(t *testing.T) {
	ctx := context.Background()
	mem := chain.NewMemoryChain()
	// Every write advances the head one block; a span of 3 forces the
	// replayer through multiple range queries.
	mem.SetMaxSpan(3)
	orc := &testOracle{plan: evenPlan(2, 100)}
	o := New(mem, mem, orc, pricing.Fixed{USDPerToken: 2000}, costs.NewLedger(), nil)
	seedInterruptedRun(t, ctx, mem)

	r := NewReplayer(mem, o, 1000)
	report, redrives, err := r.Plan(ctx)
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if report.EventsScanned == 0 {
		t.Fatal("no events scanned")
	}
	if len(redrives) != 2 {
		t.Fatalf("redrives: %+v", redrives)
	}
}
