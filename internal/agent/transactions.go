package agent

import (
	"math/big"
	"sync"
	"time"
)

// Transaction is one ledger-writing operation the agent performed.
// Amount is nil for operations that move no funds.
type Transaction struct {
	Action string
	TxRef  string
	Amount *big.Int
	At     time.Time
}

// TransactionLog mirrors ActionLog's bounded newest-first discipline
// on an independent buffer.
type TransactionLog struct {
	mu      sync.Mutex
	entries []Transaction
	start   int
	count   int
}

func NewTransactionLog() *TransactionLog {
	return &TransactionLog{entries: make([]Transaction, feedCapacity)}
}

func (l *TransactionLog) Record(action, txRef string, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := (l.start + l.count) % len(l.entries)
	l.entries[idx] = Transaction{Action: action, TxRef: txRef, Amount: amount, At: time.Now().UTC()}
	if l.count < len(l.entries) {
		l.count++
	} else {
		l.start = (l.start + 1) % len(l.entries)
	}
}

func (l *TransactionLog) Snapshot() []Transaction {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Transaction, 0, l.count)
	for i := l.count - 1; i >= 0; i-- {
		out = append(out, l.entries[(l.start+i)%len(l.entries)])
	}
	return out
}
