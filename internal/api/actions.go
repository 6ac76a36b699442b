package api

import (
	"time"

	"github.com/richtan/ETHDenver2026-sub001/internal/agent"
	"github.com/richtan/ETHDenver2026-sub001/pkg/agentapi"
)

// actionRecord flattens one audit entry into its wire form. The feed
// stores typed variants; the API serves a single record shape with
// kind-specific fields populated.
func actionRecord(a agent.Action) agentapi.ActionRecord {
	rec := agentapi.ActionRecord{
		Kind: string(a.Kind()),
		At:   a.When().Format(time.RFC3339),
	}
	switch v := a.(type) {
	case agent.JobReceived:
		rec.JobID = u64(v.JobID)
		rec.Description = v.Description
		rec.AmountWei = weiString(v.Budget)
	case agent.JobDecomposed:
		rec.JobID = u64(v.JobID)
		rec.Tasks = v.Tasks
		rec.AmountWei = weiString(v.Margin)
	case agent.TaskPosted:
		rec.JobID = u64(v.JobID)
		rec.Index = u64(v.Index)
		rec.AmountWei = weiString(v.Reward)
	case agent.TaskAccepted:
		rec.JobID = u64(v.JobID)
		rec.TaskID = u64(v.TaskID)
		rec.Worker = v.Worker
	case agent.ProofSubmitted:
		rec.JobID = u64(v.JobID)
		rec.TaskID = u64(v.TaskID)
		rec.ProofRef = v.ProofRef
	case agent.ProofVerified:
		rec.JobID = u64(v.JobID)
		rec.TaskID = u64(v.TaskID)
		rec.Confidence = v.Confidence
	case agent.ProofRejected:
		rec.JobID = u64(v.JobID)
		rec.TaskID = u64(v.TaskID)
		rec.Reason = v.Reason
	case agent.WorkerPaid:
		rec.JobID = u64(v.JobID)
		rec.TaskID = u64(v.TaskID)
		rec.Worker = v.Worker
		rec.AmountWei = weiString(v.Reward)
	case agent.NextTaskOpened:
		rec.JobID = u64(v.JobID)
		rec.Index = u64(v.Index)
	case agent.JobCompletedAction:
		rec.JobID = u64(v.JobID)
		rec.AmountUSD = v.ProfitUSD
	case agent.JobCancelledAction:
		rec.JobID = u64(v.JobID)
		rec.Reason = v.Reason
	case agent.TaskExpiredAction:
		rec.JobID = u64(v.JobID)
		rec.TaskID = u64(v.TaskID)
	case agent.ComputeReimbursed:
		rec.AmountUSD = v.AmountUSD
		rec.TxRef = v.TxRef
	case agent.ServiceSoldAction:
		rec.Service = v.Service
		rec.Buyer = v.Buyer
		rec.AmountWei = weiString(v.Amount)
	}
	return rec
}

func u64(v uint64) *uint64 { return &v }
