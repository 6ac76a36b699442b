package chain

import (
	"context"
	"math/big"
	"sync"

	"github.com/richtan/ETHDenver2026-sub001/internal/observability"
)

// SerialWriter funnels every submission from every goroutine through a
// single ordered queue. The agent signs with one account, so two
// in-flight submissions would race on the account nonce; serializing at
// this layer is a correctness requirement, not a throughput choice.
// Wait is pass-through: confirmations are read-only and may overlap.
type SerialWriter struct {
	inner Writer

	mu      sync.Mutex
	reqs    chan writeReq
	started bool
}

type writeReq struct {
	name   string
	ctx    context.Context
	submit func(context.Context) (TxHandle, error)
	reply  chan writeReply
}

type writeReply struct {
	handle TxHandle
	err    error
}

func NewSerialWriter(inner Writer) *SerialWriter {
	return &SerialWriter{
		inner: inner,
		reqs:  make(chan writeReq, 64),
	}
}

// Start runs the queue until ctx is cancelled. Submissions made before
// Start are served once it runs.
func (w *SerialWriter) Start(ctx context.Context) {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return
	}
	w.started = true
	w.mu.Unlock()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case req := <-w.reqs:
				observability.Default.SetGauge("chain_write_queue_depth", nil, float64(len(w.reqs)))
				handle, err := req.submit(req.ctx)
				result := "ok"
				if err != nil {
					result = "error"
				}
				observability.Default.IncCounter("chain_writes_total", map[string]string{"op": req.name, "result": result}, 1)
				req.reply <- writeReply{handle: handle, err: err}
			}
		}
	}()
}

func (w *SerialWriter) do(ctx context.Context, name string, submit func(context.Context) (TxHandle, error)) (TxHandle, error) {
	req := writeReq{name: name, ctx: ctx, submit: submit, reply: make(chan writeReply, 1)}
	select {
	case w.reqs <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	select {
	case r := <-req.reply:
		return r.handle, r.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (w *SerialWriter) AddTask(ctx context.Context, jobID uint64, spec TaskSpec) (TxHandle, error) {
	return w.do(ctx, "add_task", func(c context.Context) (TxHandle, error) {
		return w.inner.AddTask(c, jobID, spec)
	})
}

func (w *SerialWriter) ApproveTask(ctx context.Context, taskID uint64) (TxHandle, error) {
	return w.do(ctx, "approve_task", func(c context.Context) (TxHandle, error) {
		return w.inner.ApproveTask(c, taskID)
	})
}

func (w *SerialWriter) RejectTask(ctx context.Context, taskID uint64, reason string) (TxHandle, error) {
	return w.do(ctx, "reject_task", func(c context.Context) (TxHandle, error) {
		return w.inner.RejectTask(c, taskID, reason)
	})
}

func (w *SerialWriter) ExpireTask(ctx context.Context, taskID uint64) (TxHandle, error) {
	return w.do(ctx, "expire_task", func(c context.Context) (TxHandle, error) {
		return w.inner.ExpireTask(c, taskID)
	})
}

func (w *SerialWriter) CompleteJob(ctx context.Context, jobID uint64) (TxHandle, error) {
	return w.do(ctx, "complete_job", func(c context.Context) (TxHandle, error) {
		return w.inner.CompleteJob(c, jobID)
	})
}

func (w *SerialWriter) CancelJob(ctx context.Context, jobID uint64, reason string) (TxHandle, error) {
	return w.do(ctx, "cancel_job", func(c context.Context) (TxHandle, error) {
		return w.inner.CancelJob(c, jobID, reason)
	})
}

func (w *SerialWriter) Transfer(ctx context.Context, to string, amount *big.Int) (TxHandle, error) {
	return w.do(ctx, "transfer", func(c context.Context) (TxHandle, error) {
		return w.inner.Transfer(c, to, amount)
	})
}

func (w *SerialWriter) Wait(ctx context.Context, handle TxHandle) (Receipt, error) {
	return w.inner.Wait(ctx, handle)
}
