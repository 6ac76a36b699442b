package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// MemoryChain is a full in-process simulation of the escrow contract:
// an append-only event log plus entity state, with every write checking
// its precondition the way the deployed contract does. It backs the
// local profile and the engine tests.
type MemoryChain struct {
	mu          sync.Mutex
	deployBlock uint64
	head        uint64
	maxSpan     uint64
	gasCost     *big.Int
	nextJobID   uint64
	nextTaskID  uint64
	txSeq       uint64
	writes      int

	jobs     map[uint64]*JobState
	tasks    map[uint64]*TaskState
	attempts map[uint64]int
	log      []Event
	receipts map[TxHandle]Receipt
	subs     []chan Event

	// Now is swappable so deadline behavior can be tested.
	Now func() time.Time
}

func NewMemoryChain() *MemoryChain {
	return &MemoryChain{
		deployBlock: 1,
		head:        1,
		maxSpan:     500,
		gasCost:     big.NewInt(21000),
		jobs:        make(map[uint64]*JobState),
		tasks:       make(map[uint64]*TaskState),
		attempts:    make(map[uint64]int),
		receipts:    make(map[TxHandle]Receipt),
		Now:         time.Now,
	}
}

// SetMaxSpan overrides the range-query limit, mainly to force multiple
// chunks in replay tests.
func (c *MemoryChain) SetMaxSpan(span uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.maxSpan = span
}

// WriteCount reports how many state-changing submissions succeeded.
func (c *MemoryChain) WriteCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes
}

func (c *MemoryChain) Head(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.head, nil
}

func (c *MemoryChain) DeployBlock() uint64 { return 1 }

func (c *MemoryChain) MaxSpan() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.maxSpan
}

func (c *MemoryChain) Events(_ context.Context, from, to uint64) ([]Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if span := c.maxSpan; to >= from && to-from+1 > span {
		return nil, fmt.Errorf("range %d-%d exceeds max span %d", from, to, span)
	}
	out := make([]Event, 0, 16)
	for _, ev := range c.log {
		if b := ev.EventBlock(); b >= from && b <= to {
			out = append(out, ev)
		}
	}
	return out, nil
}

func (c *MemoryChain) Job(_ context.Context, jobID uint64) (JobState, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[jobID]
	if !ok {
		return JobState{}, false, nil
	}
	return copyJob(j), true, nil
}

func (c *MemoryChain) Task(_ context.Context, taskID uint64) (TaskState, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[taskID]
	if !ok {
		return TaskState{}, false, nil
	}
	return copyTask(t), true, nil
}

func (c *MemoryChain) TaskCount(context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nextTaskID, nil
}

func (c *MemoryChain) Subscribe(ctx context.Context) (<-chan Event, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ch := make(chan Event, 256)
	c.subs = append(c.subs, ch)
	return ch, nil
}

// commit advances the head, appends the events under the new block and
// hands back the transaction handle. Caller must hold c.mu.
func (c *MemoryChain) commit(events ...Event) TxHandle {
	c.head++
	c.writes++
	c.txSeq++
	handle := TxHandle(fmt.Sprintf("0x%016x", c.txSeq))
	now := c.Now().UTC()
	for _, ev := range events {
		ev = withMeta(ev, Meta{Block: c.head, TxRef: string(handle), At: now})
		c.log = append(c.log, ev)
		for _, sub := range c.subs {
			select {
			case sub <- ev:
			default:
			}
		}
	}
	c.receipts[handle] = Receipt{TxRef: string(handle), Block: c.head, GasCost: new(big.Int).Set(c.gasCost)}
	return handle
}

func withMeta(ev Event, meta Meta) Event {
	switch e := ev.(type) {
	case JobCreated:
		e.Meta = meta
		return e
	case TaskAdded:
		e.Meta = meta
		return e
	case TaskAccepted:
		e.Meta = meta
		return e
	case ProofSubmitted:
		e.Meta = meta
		return e
	case TaskCompleted:
		e.Meta = meta
		return e
	case ProofRejected:
		e.Meta = meta
		return e
	case TaskExpired:
		e.Meta = meta
		return e
	case JobCompleted:
		e.Meta = meta
		return e
	case JobCancelled:
		e.Meta = meta
		return e
	case ServiceSold:
		e.Meta = meta
		return e
	default:
		return ev
	}
}

// CreateJob plays the role of an external requester funding a new job.
func (c *MemoryChain) CreateJob(description string, budget *big.Int) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	id := c.nextJobID
	c.nextJobID++
	c.jobs[id] = &JobState{
		ID:          id,
		Description: description,
		Budget:      new(big.Int).Set(budget),
		Spent:       big.NewInt(0),
		Status:      JobStatusOpen,
	}
	c.commit(JobCreated{JobID: id, Description: description, Budget: new(big.Int).Set(budget)})
	return id
}

// AcceptTask plays the role of a worker claiming a posted task.
func (c *MemoryChain) AcceptTask(taskID uint64, worker string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %d not found", taskID)
	}
	if t.Status != TaskStatusCreated {
		return fmt.Errorf("task %d not open for acceptance", taskID)
	}
	t.Status = TaskStatusAccepted
	t.Worker = worker
	c.commit(TaskAccepted{JobID: t.JobID, TaskID: taskID, Worker: worker})
	return nil
}

// SubmitProof plays the role of a worker submitting a proof reference.
func (c *MemoryChain) SubmitProof(taskID uint64, proofRef string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[taskID]
	if !ok {
		return fmt.Errorf("task %d not found", taskID)
	}
	if t.Status != TaskStatusAccepted && t.Status != TaskStatusRejected {
		return fmt.Errorf("task %d not awaiting proof", taskID)
	}
	if t.Status == TaskStatusRejected && c.attempts[taskID] >= t.MaxRetries {
		return fmt.Errorf("task %d out of retries", taskID)
	}
	c.attempts[taskID]++
	t.Status = TaskStatusPendingVerification
	t.ProofRef = proofRef
	c.commit(ProofSubmitted{JobID: t.JobID, TaskID: taskID, ProofRef: proofRef})
	return nil
}

// SellService plays the role of the marketplace selling agent capacity.
func (c *MemoryChain) SellService(service, buyer string, amount *big.Int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commit(ServiceSold{Service: service, Buyer: buyer, Amount: new(big.Int).Set(amount)})
}

func (c *MemoryChain) AddTask(_ context.Context, jobID uint64, spec TaskSpec) (TxHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[jobID]
	if !ok {
		return "", fmt.Errorf("job %d not found", jobID)
	}
	if terminalJobStatus(j.Status) {
		return "", fmt.Errorf("job %d is %s", jobID, j.Status)
	}
	committed := big.NewInt(0)
	for _, tid := range j.TaskIDs {
		committed.Add(committed, c.tasks[tid].Reward)
	}
	committed.Add(committed, spec.Reward)
	if committed.Cmp(j.Budget) >= 0 {
		return "", fmt.Errorf("job %d reward commitment %s exceeds budget %s", jobID, committed, j.Budget)
	}
	id := c.nextTaskID
	c.nextTaskID++
	index := uint64(len(j.TaskIDs))
	c.tasks[id] = &TaskState{
		ID:          id,
		JobID:       jobID,
		Index:       index,
		Description: spec.Description,
		ProofSpec:   spec.ProofSpec,
		Reward:      new(big.Int).Set(spec.Reward),
		Deadline:    spec.Deadline,
		MaxRetries:  spec.MaxRetries,
		Status:      TaskStatusCreated,
	}
	j.TaskIDs = append(j.TaskIDs, id)
	handle := c.commit(TaskAdded{
		JobID:       jobID,
		TaskID:      id,
		Index:       index,
		Description: spec.Description,
		ProofSpec:   spec.ProofSpec,
		Reward:      new(big.Int).Set(spec.Reward),
		Deadline:    spec.Deadline,
		MaxRetries:  spec.MaxRetries,
	})
	return handle, nil
}

func (c *MemoryChain) ApproveTask(_ context.Context, taskID uint64) (TxHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[taskID]
	if !ok {
		return "", fmt.Errorf("task %d not found", taskID)
	}
	if t.Status != TaskStatusPendingVerification {
		return "", fmt.Errorf("task %d is %s, not pending verification", taskID, t.Status)
	}
	t.Status = TaskStatusApproved
	j := c.jobs[t.JobID]
	j.Spent = new(big.Int).Add(j.Spent, t.Reward)
	handle := c.commit(TaskCompleted{JobID: t.JobID, TaskID: taskID, Worker: t.Worker, Reward: new(big.Int).Set(t.Reward)})
	return handle, nil
}

func (c *MemoryChain) RejectTask(_ context.Context, taskID uint64, reason string) (TxHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[taskID]
	if !ok {
		return "", fmt.Errorf("task %d not found", taskID)
	}
	if t.Status != TaskStatusPendingVerification {
		return "", fmt.Errorf("task %d is %s, not pending verification", taskID, t.Status)
	}
	t.Status = TaskStatusRejected
	handle := c.commit(ProofRejected{JobID: t.JobID, TaskID: taskID, Reason: reason})
	return handle, nil
}

func (c *MemoryChain) ExpireTask(_ context.Context, taskID uint64) (TxHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.tasks[taskID]
	if !ok {
		return "", fmt.Errorf("task %d not found", taskID)
	}
	if t.Status != TaskStatusAccepted && t.Status != TaskStatusPendingVerification {
		return "", fmt.Errorf("task %d is %s, not expirable", taskID, t.Status)
	}
	if t.Deadline.IsZero() || c.Now().Before(t.Deadline) {
		return "", fmt.Errorf("task %d deadline not passed", taskID)
	}
	t.Status = TaskStatusExpired
	handle := c.commit(TaskExpired{JobID: t.JobID, TaskID: taskID})
	return handle, nil
}

func (c *MemoryChain) CompleteJob(_ context.Context, jobID uint64) (TxHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[jobID]
	if !ok {
		return "", fmt.Errorf("job %d not found", jobID)
	}
	if terminalJobStatus(j.Status) {
		return "", fmt.Errorf("job %d is %s", jobID, j.Status)
	}
	if len(j.TaskIDs) == 0 {
		return "", fmt.Errorf("job %d has no tasks", jobID)
	}
	for _, tid := range j.TaskIDs {
		if c.tasks[tid].Status != TaskStatusApproved {
			return "", fmt.Errorf("job %d task %d not approved", jobID, tid)
		}
	}
	j.Status = JobStatusCompleted
	handle := c.commit(JobCompleted{JobID: jobID})
	return handle, nil
}

func (c *MemoryChain) CancelJob(_ context.Context, jobID uint64, reason string) (TxHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	j, ok := c.jobs[jobID]
	if !ok {
		return "", fmt.Errorf("job %d not found", jobID)
	}
	if terminalJobStatus(j.Status) {
		return "", fmt.Errorf("job %d is %s", jobID, j.Status)
	}
	j.Status = JobStatusCancelled
	handle := c.commit(JobCancelled{JobID: jobID, Reason: reason})
	return handle, nil
}

func (c *MemoryChain) Transfer(_ context.Context, to string, amount *big.Int) (TxHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if to == "" {
		return "", fmt.Errorf("transfer needs a destination address")
	}
	if amount == nil || amount.Sign() <= 0 {
		return "", fmt.Errorf("transfer amount must be positive")
	}
	c.head++
	c.writes++
	c.txSeq++
	handle := TxHandle(fmt.Sprintf("0x%016x", c.txSeq))
	c.receipts[handle] = Receipt{TxRef: string(handle), Block: c.head, GasCost: new(big.Int).Set(c.gasCost)}
	return handle, nil
}

func (c *MemoryChain) Wait(_ context.Context, handle TxHandle) (Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.receipts[handle]
	if !ok {
		return Receipt{}, fmt.Errorf("unknown transaction %s", handle)
	}
	return r, nil
}

func copyJob(j *JobState) JobState {
	out := *j
	out.Budget = new(big.Int).Set(j.Budget)
	out.Spent = new(big.Int).Set(j.Spent)
	out.TaskIDs = append([]uint64(nil), j.TaskIDs...)
	return out
}

func copyTask(t *TaskState) TaskState {
	out := *t
	out.Reward = new(big.Int).Set(t.Reward)
	return out
}
