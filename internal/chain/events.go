package chain

import (
	"math/big"
	"time"
)

// Event is one decoded entry of the contract's append-only log. The
// historical range query and the live subscription deliver the same
// concrete types, so replay and live processing share one vocabulary.
type Event interface {
	EventBlock() uint64
	EventTime() time.Time
}

// Meta carries the fields every log entry has.
type Meta struct {
	Block uint64
	TxRef string
	At    time.Time
}

func (m Meta) EventBlock() uint64   { return m.Block }
func (m Meta) EventTime() time.Time { return m.At }

type JobCreated struct {
	Meta
	JobID       uint64
	Description string
	Budget      *big.Int
}

type TaskAdded struct {
	Meta
	JobID       uint64
	TaskID      uint64
	Index       uint64
	Description string
	ProofSpec   string
	Reward      *big.Int
	Deadline    time.Time
	MaxRetries  int
}

type TaskAccepted struct {
	Meta
	JobID  uint64
	TaskID uint64
	Worker string
}

type ProofSubmitted struct {
	Meta
	JobID    uint64
	TaskID   uint64
	ProofRef string
}

// TaskCompleted records an approved proof and the reward payout in one
// entry; the contract pays the worker inside the approve call.
type TaskCompleted struct {
	Meta
	JobID  uint64
	TaskID uint64
	Worker string
	Reward *big.Int
}

type ProofRejected struct {
	Meta
	JobID  uint64
	TaskID uint64
	Reason string
}

type TaskExpired struct {
	Meta
	JobID  uint64
	TaskID uint64
}

type JobCompleted struct {
	Meta
	JobID uint64
}

type JobCancelled struct {
	Meta
	JobID  uint64
	Reason string
}

type ServiceSold struct {
	Meta
	Service string
	Buyer   string
	Amount  *big.Int
}
