package chain

import (
	"context"
	"math/big"
)

// Reader decodes contract state and log entries. Range queries must not
// exceed MaxSpan blocks per call; ChunkRanges produces a compliant
// sequence of sub-ranges.
type Reader interface {
	Head(ctx context.Context) (uint64, error)
	DeployBlock() uint64
	MaxSpan() uint64
	Events(ctx context.Context, from, to uint64) ([]Event, error)
	Job(ctx context.Context, jobID uint64) (JobState, bool, error)
	Task(ctx context.Context, taskID uint64) (TaskState, bool, error)
	TaskCount(ctx context.Context) (uint64, error)
	Subscribe(ctx context.Context) (<-chan Event, error)
}

// Writer submits signed state-changing operations. Every operation
// checks its precondition against current contract state and fails
// harmlessly when the state has already advanced; callers rely on that
// for replay safety. Submissions return immediately with a handle; Wait
// blocks until the transaction finalizes or fails.
type Writer interface {
	AddTask(ctx context.Context, jobID uint64, spec TaskSpec) (TxHandle, error)
	ApproveTask(ctx context.Context, taskID uint64) (TxHandle, error)
	RejectTask(ctx context.Context, taskID uint64, reason string) (TxHandle, error)
	ExpireTask(ctx context.Context, taskID uint64) (TxHandle, error)
	CompleteJob(ctx context.Context, jobID uint64) (TxHandle, error)
	CancelJob(ctx context.Context, jobID uint64, reason string) (TxHandle, error)
	Transfer(ctx context.Context, to string, amount *big.Int) (TxHandle, error)
	Wait(ctx context.Context, handle TxHandle) (Receipt, error)
}
