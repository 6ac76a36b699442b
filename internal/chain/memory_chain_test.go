package chain

import (
	"context"
	"math/big"
	"testing"
	"time"
)

func postTask(t *testing.T, c *MemoryChain, jobID uint64, reward int64) uint64 {
	t.Helper()
	if _, err := c.AddTask(context.Background(), jobID, TaskSpec{
		Description: "step",
		ProofSpec:   "link",
		Reward:      big.NewInt(reward),
		MaxRetries:  1,
	}); err != nil {
		t.Fatalf("add task: %v", err)
	}
	j, _, _ := c.Job(context.Background(), jobID)
	return j.TaskIDs[len(j.TaskIDs)-1]
}

func TestTaskIndicesAreContiguousPerJob(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryChain()
	a := c.CreateJob("job a", big.NewInt(1000))
	b := c.CreateJob("job b", big.NewInt(1000))

	// Interleave so global task ids diverge from per-job indices.
	postTask(t, c, a, 10)
	postTask(t, c, b, 10)
	postTask(t, c, a, 10)
	postTask(t, c, b, 10)
	postTask(t, c, a, 10)

	for _, jobID := range []uint64{a, b} {
		j, _, _ := c.Job(ctx, jobID)
		for want, tid := range j.TaskIDs {
			task, ok, err := c.Task(ctx, tid)
			if err != nil || !ok {
				t.Fatalf("task %d: ok=%v err=%v", tid, ok, err)
			}
			if task.Index != uint64(want) {
				t.Fatalf("job %d task %d: index %d, want %d", jobID, tid, task.Index, want)
			}
			if task.JobID != jobID {
				t.Fatalf("task %d bound to job %d, want %d", tid, task.JobID, jobID)
			}
		}
	}
}

func TestWritePreconditionsFailWithoutStateChange(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryChain()
	jobID := c.CreateJob("job", big.NewInt(100))
	tid := postTask(t, c, jobID, 50)

	before := c.WriteCount()

	// Reward commitment may never reach the budget.
	if _, err := c.AddTask(ctx, jobID, TaskSpec{Description: "too big", ProofSpec: "x", Reward: big.NewInt(50), MaxRetries: 1}); err == nil {
		t.Fatal("over-budget task must be refused")
	}
	// Approving a task that is not pending verification.
	if _, err := c.ApproveTask(ctx, tid); err == nil {
		t.Fatal("approve of created task must be refused")
	}
	// Rejecting a task that is not pending verification.
	if _, err := c.RejectTask(ctx, tid, "nope"); err == nil {
		t.Fatal("reject of created task must be refused")
	}
	// Expiring a task with no deadline.
	if err := c.AcceptTask(tid, "0xworker"); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := c.ExpireTask(ctx, tid); err == nil {
		t.Fatal("expire without a passed deadline must be refused")
	}
	// Completing a job with unresolved tasks.
	if _, err := c.CompleteJob(ctx, jobID); err == nil {
		t.Fatal("complete with open tasks must be refused")
	}

	// Accept is the only successful write above.
	if got := c.WriteCount() - before; got != 1 {
		t.Fatalf("failed submissions changed state: %d writes", got)
	}
	job, _, _ := c.Job(ctx, jobID)
	if job.Status != JobStatusOpen {
		t.Fatalf("job status: %s", job.Status)
	}
}

func TestTransferValidatesDestinationAndAmount(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryChain()
	before := c.WriteCount()

	if _, err := c.Transfer(ctx, "", big.NewInt(10)); err == nil {
		t.Fatal("transfer without a destination must be refused")
	}
	if _, err := c.Transfer(ctx, "0xoperator", big.NewInt(0)); err == nil {
		t.Fatal("zero-amount transfer must be refused")
	}
	if c.WriteCount() != before {
		t.Fatal("refused transfers changed state")
	}

	handle, err := c.Transfer(ctx, "0xoperator", big.NewInt(10))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if _, err := c.Wait(ctx, handle); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if got := c.WriteCount() - before; got != 1 {
		t.Fatalf("writes: %d", got)
	}
}

func TestCancelledJobRefusesFurtherWork(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryChain()
	jobID := c.CreateJob("doomed", big.NewInt(100))
	if _, err := c.CancelJob(ctx, jobID, "no margin"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if _, err := c.AddTask(ctx, jobID, TaskSpec{Description: "late", ProofSpec: "x", Reward: big.NewInt(10), MaxRetries: 1}); err == nil {
		t.Fatal("cancelled job must refuse tasks")
	}
	if _, err := c.CancelJob(ctx, jobID, "again"); err == nil {
		t.Fatal("double cancel must be refused")
	}
}

func TestRetryBudgetBoundsProofResubmission(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryChain()
	jobID := c.CreateJob("job", big.NewInt(1000))
	tid := postTask(t, c, jobID, 100)
	if err := c.AcceptTask(tid, "0xworker"); err != nil {
		t.Fatalf("accept: %v", err)
	}

	if err := c.SubmitProof(tid, "proofs/v1.md"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if _, err := c.RejectTask(ctx, tid, "incomplete"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	// MaxRetries is 1: the first attempt consumed the budget.
	if err := c.SubmitProof(tid, "proofs/v2.md"); err == nil {
		t.Fatal("resubmission past the retry budget must be refused")
	}
}

func TestEventLogOrderedAndRangeBounded(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryChain()
	c.SetMaxSpan(2)
	jobID := c.CreateJob("job", big.NewInt(1000))
	postTask(t, c, jobID, 100)
	postTask(t, c, jobID, 100)

	head, _ := c.Head(ctx)
	if _, err := c.Events(ctx, c.DeployBlock(), head); err == nil {
		t.Fatal("range wider than max span must be refused")
	}

	var all []Event
	for _, r := range ChunkRanges(c.DeployBlock(), head, c.MaxSpan()) {
		events, err := c.Events(ctx, r.From, r.To)
		if err != nil {
			t.Fatalf("events %d-%d: %v", r.From, r.To, err)
		}
		all = append(all, events...)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if _, ok := all[0].(JobCreated); !ok {
		t.Fatalf("first event: %T", all[0])
	}
	last := uint64(0)
	for i, ev := range all {
		if b := ev.EventBlock(); b < last {
			t.Fatalf("event %d out of order: block %d after %d", i, b, last)
		} else {
			last = b
		}
		if ev.EventTime().IsZero() {
			t.Fatalf("event %d missing timestamp", i)
		}
	}
}

func TestSubscribeDeliversCommittedEvents(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryChain()
	events, err := c.Subscribe(ctx)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	c.CreateJob("job", big.NewInt(1000))

	select {
	case ev := <-events:
		created, ok := ev.(JobCreated)
		if !ok {
			t.Fatalf("unexpected event %T", ev)
		}
		if created.Description != "job" {
			t.Fatalf("description: %q", created.Description)
		}
	case <-time.After(time.Second):
		t.Fatal("no event delivered")
	}
}
