package agent

import (
	"math/big"
	"sync"
	"time"
)

// ActionKind tags one externally observable lifecycle step.
type ActionKind string

const (
	KindJobReceived       ActionKind = "job_received"
	KindJobDecomposed     ActionKind = "job_decomposed"
	KindTaskPosted        ActionKind = "task_posted"
	KindTaskAccepted      ActionKind = "task_accepted"
	KindProofSubmitted    ActionKind = "proof_submitted"
	KindProofVerified     ActionKind = "proof_verified"
	KindProofRejected     ActionKind = "proof_rejected"
	KindWorkerPaid        ActionKind = "worker_paid"
	KindNextTaskOpened    ActionKind = "next_task_opened"
	KindJobCompleted      ActionKind = "job_completed"
	KindJobCancelled      ActionKind = "job_cancelled"
	KindTaskExpired       ActionKind = "task_expired"
	KindComputeReimbursed ActionKind = "compute_reimbursed"
	KindServiceSold       ActionKind = "service_sold"
)

// Action is one entry of the audit feed. Each kind carries only the
// fields that step produces; mapping to the flat API representation
// happens in the API layer.
type Action interface {
	Kind() ActionKind
	When() time.Time
}

// stamp is embedded by every action variant.
type stamp struct {
	At time.Time
}

func (s stamp) When() time.Time { return s.At }

type JobReceived struct {
	stamp
	JobID       uint64
	Description string
	Budget      *big.Int
}

type JobDecomposed struct {
	stamp
	JobID  uint64
	Tasks  int
	Margin *big.Int
}

// TaskPosted is recorded at submission time; the chain-assigned task
// id only becomes visible in the TaskAdded log entry, so the action
// identifies the task by job and sequence index.
type TaskPosted struct {
	stamp
	JobID  uint64
	Index  uint64
	Reward *big.Int
}

type TaskAccepted struct {
	stamp
	JobID  uint64
	TaskID uint64
	Worker string
}

type ProofSubmitted struct {
	stamp
	JobID    uint64
	TaskID   uint64
	ProofRef string
}

type ProofVerified struct {
	stamp
	JobID      uint64
	TaskID     uint64
	Confidence float64
}

type ProofRejected struct {
	stamp
	JobID  uint64
	TaskID uint64
	Reason string
}

type WorkerPaid struct {
	stamp
	JobID  uint64
	TaskID uint64
	Worker string
	Reward *big.Int
}

type NextTaskOpened struct {
	stamp
	JobID uint64
	Index uint64
}

type JobCompletedAction struct {
	stamp
	JobID     uint64
	ProfitUSD float64
}

type JobCancelledAction struct {
	stamp
	JobID  uint64
	Reason string
}

type TaskExpiredAction struct {
	stamp
	JobID  uint64
	TaskID uint64
}

type ComputeReimbursed struct {
	stamp
	AmountUSD float64
	TxRef     string
}

type ServiceSoldAction struct {
	stamp
	Service string
	Buyer   string
	Amount  *big.Int
}

func (JobReceived) Kind() ActionKind        { return KindJobReceived }
func (JobDecomposed) Kind() ActionKind      { return KindJobDecomposed }
func (TaskPosted) Kind() ActionKind         { return KindTaskPosted }
func (TaskAccepted) Kind() ActionKind       { return KindTaskAccepted }
func (ProofSubmitted) Kind() ActionKind     { return KindProofSubmitted }
func (ProofVerified) Kind() ActionKind      { return KindProofVerified }
func (ProofRejected) Kind() ActionKind      { return KindProofRejected }
func (WorkerPaid) Kind() ActionKind         { return KindWorkerPaid }
func (NextTaskOpened) Kind() ActionKind     { return KindNextTaskOpened }
func (JobCompletedAction) Kind() ActionKind { return KindJobCompleted }
func (JobCancelledAction) Kind() ActionKind { return KindJobCancelled }
func (TaskExpiredAction) Kind() ActionKind  { return KindTaskExpired }
func (ComputeReimbursed) Kind() ActionKind  { return KindComputeReimbursed }
func (ServiceSoldAction) Kind() ActionKind  { return KindServiceSold }

const feedCapacity = 200

// ActionLog is the bounded most-recent-first audit buffer. All
// producers (live handlers, recovery re-drives, both scanners) append
// concurrently; once full, the oldest entry is evicted.
type ActionLog struct {
	mu      sync.Mutex
	entries []Action
	start   int
	count   int
}

func NewActionLog() *ActionLog {
	return &ActionLog{entries: make([]Action, feedCapacity)}
}

func (l *ActionLog) Record(a Action) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := (l.start + l.count) % len(l.entries)
	l.entries[idx] = a
	if l.count < len(l.entries) {
		l.count++
	} else {
		l.start = (l.start + 1) % len(l.entries)
	}
}

// Snapshot returns up to 200 entries, newest first.
func (l *ActionLog) Snapshot() []Action {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Action, 0, l.count)
	for i := l.count - 1; i >= 0; i-- {
		out = append(out, l.entries[(l.start+i)%len(l.entries)])
	}
	return out
}

func stampNow() stamp {
	return stamp{At: time.Now().UTC()}
}
