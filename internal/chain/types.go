package chain

import (
	"math/big"
	"time"
)

const (
	JobStatusOpen      = "Open"
	JobStatusCompleted = "Completed"
	JobStatusCancelled = "Cancelled"
)

const (
	TaskStatusCreated             = "Created"
	TaskStatusAccepted            = "Accepted"
	TaskStatusPendingVerification = "PendingVerification"
	TaskStatusApproved            = "Approved"
	TaskStatusRejected            = "Rejected"
	TaskStatusExpired             = "Expired"
)

// JobState is an entity snapshot decoded from the contract.
type JobState struct {
	ID          uint64
	Description string
	Budget      *big.Int
	Spent       *big.Int
	TaskIDs     []uint64
	Status      string
}

// TaskState is an entity snapshot decoded from the contract. Index is
// zero-based within the owning job and never reused. A zero Deadline
// means the task never expires.
type TaskState struct {
	ID          uint64
	JobID       uint64
	Index       uint64
	Description string
	ProofSpec   string
	Reward      *big.Int
	Deadline    time.Time
	MaxRetries  int
	Worker      string
	ProofRef    string
	Status      string
}

// TaskSpec is the payload of an add-task submission.
type TaskSpec struct {
	Description string
	ProofSpec   string
	Reward      *big.Int
	Deadline    time.Time
	MaxRetries  int
}

// TxHandle references a submitted but not necessarily finalized
// transaction.
type TxHandle string

// Receipt is returned once a transaction is finalized.
type Receipt struct {
	TxRef   string
	Block   uint64
	GasCost *big.Int
}

func (r Receipt) GasCostOrZero() *big.Int {
	if r.GasCost == nil {
		return big.NewInt(0)
	}
	return r.GasCost
}

func terminalJobStatus(status string) bool {
	return status == JobStatusCompleted || status == JobStatusCancelled
}
