package costs

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

type EntryType string

const (
	ComputeCost    EntryType = "compute_cost"
	GasCost        EntryType = "gas_cost"
	WorkerPayout   EntryType = "worker_payout"
	ServiceRevenue EntryType = "service_revenue"
	JobProfit      EntryType = "job_profit"
)

func (t EntryType) Revenue() bool {
	return t == ServiceRevenue || t == JobProfit
}

// Entry is one dollar-denominated cost or revenue line.
type Entry struct {
	ID           string    `json:"id"`
	Type         EntryType `json:"type"`
	AmountUSD    float64   `json:"amount_usd"`
	Detail       string    `json:"detail"`
	Reimbursed   bool      `json:"reimbursed"`
	ReimbursedTx string    `json:"reimbursed_tx,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
}

// Metrics is the read model the API serves.
type Metrics struct {
	TotalCostUSD           float64               `json:"total_cost_usd"`
	TotalRevenueUSD        float64               `json:"total_revenue_usd"`
	NetUSD                 float64               `json:"net_usd"`
	UnreimbursedComputeUSD float64               `json:"unreimbursed_compute_usd"`
	ByType                 map[EntryType]float64 `json:"by_type"`
	Entries                int                   `json:"entries"`
}

// Ledger is the append-only in-process record of spend and revenue.
// Compute-cost entries carry a reimbursement watermark: they stay
// unreimbursed until a transfer succeeds, which is what makes the
// reimbursement scan at-least-once without double payment.
type Ledger struct {
	mu      sync.Mutex
	entries []Entry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make([]Entry, 0, 64)}
}

func (l *Ledger) Add(entryType EntryType, amountUSD float64, detail string) Entry {
	e := Entry{
		ID:        uuid.NewString(),
		Type:      entryType,
		AmountUSD: amountUSD,
		Detail:    detail,
		CreatedAt: time.Now().UTC(),
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, e)
	return e
}

// UnreimbursedCompute sums compute-cost entries not yet paid back.
func (l *Ledger) UnreimbursedCompute() float64 {
	total, _ := l.OutstandingCompute()
	return total
}

// OutstandingCompute returns the unreimbursed compute total together
// with the ids of the entries that make it up, so a caller that pays
// the total can mark exactly the spend it paid and nothing appended
// later.
func (l *Ledger) OutstandingCompute() (float64, []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0.0
	ids := make([]string, 0, len(l.entries))
	for _, e := range l.entries {
		if e.Type == ComputeCost && !e.Reimbursed {
			total += e.AmountUSD
			ids = append(ids, e.ID)
		}
	}
	return total, ids
}

// MarkComputeReimbursed stamps the named compute-cost entries with the
// transfer reference. Call only after the transfer confirmed; entries
// added while the transfer was in flight stay unreimbursed until the
// next cycle pays them.
func (l *Ledger) MarkComputeReimbursed(txRef string, ids []string) float64 {
	paid := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		paid[id] = struct{}{}
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	total := 0.0
	for i := range l.entries {
		e := &l.entries[i]
		if _, ok := paid[e.ID]; !ok {
			continue
		}
		if e.Type != ComputeCost || e.Reimbursed {
			continue
		}
		e.Reimbursed = true
		e.ReimbursedTx = txRef
		total += e.AmountUSD
	}
	return total
}

func (l *Ledger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

func (l *Ledger) Snapshot() Metrics {
	l.mu.Lock()
	defer l.mu.Unlock()
	m := Metrics{ByType: make(map[EntryType]float64), Entries: len(l.entries)}
	for _, e := range l.entries {
		m.ByType[e.Type] += e.AmountUSD
		if e.Type.Revenue() {
			m.TotalRevenueUSD += e.AmountUSD
		} else {
			m.TotalCostUSD += e.AmountUSD
			if e.Type == ComputeCost && !e.Reimbursed {
				m.UnreimbursedComputeUSD += e.AmountUSD
			}
		}
	}
	m.NetUSD = m.TotalRevenueUSD - m.TotalCostUSD
	return m
}
