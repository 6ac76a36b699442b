package agent

import (
	"math/big"
	"testing"
)

func TestActionLogKeepsNewestTwoHundred(t *testing.T) {
	l := NewActionLog()
	for i := 0; i < 250; i++ {
		l.Record(JobReceived{stamp: stampNow(), JobID: uint64(i), Budget: big.NewInt(1)})
	}
	got := l.Snapshot()
	if len(got) != 200 {
		t.Fatalf("expected 200 entries, got %d", len(got))
	}
	// Newest first: job 249 down to job 50.
	for i, a := range got {
		jr, ok := a.(JobReceived)
		if !ok {
			t.Fatalf("entry %d has unexpected type %T", i, a)
		}
		if want := uint64(249 - i); jr.JobID != want {
			t.Fatalf("entry %d: got job %d, want %d", i, jr.JobID, want)
		}
	}
}

func TestTransactionLogIndependentBuffer(t *testing.T) {
	actions := NewActionLog()
	txs := NewTransactionLog()
	actions.Record(JobReceived{stamp: stampNow(), JobID: 1, Budget: big.NewInt(1)})
	txs.Record("post task", "0x01", big.NewInt(5))
	txs.Record("approve proof & pay worker", "0x02", nil)

	if len(actions.Snapshot()) != 1 {
		t.Fatalf("action log polluted: %d entries", len(actions.Snapshot()))
	}
	got := txs.Snapshot()
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
	if got[0].TxRef != "0x02" || got[1].TxRef != "0x01" {
		t.Fatalf("expected newest first, got %q then %q", got[0].TxRef, got[1].TxRef)
	}
	if got[1].Amount == nil || got[1].Amount.Int64() != 5 {
		t.Fatalf("amount lost: %+v", got[1])
	}
}
