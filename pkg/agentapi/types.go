package agentapi

// ActionRecord is the flat wire form of one audit feed entry. Fields
// that a given kind does not produce are omitted.
type ActionRecord struct {
	Kind        string  `json:"kind"`
	At          string  `json:"at"`
	JobID       *uint64 `json:"job_id,omitempty"`
	TaskID      *uint64 `json:"task_id,omitempty"`
	Index       *uint64 `json:"index,omitempty"`
	Description string  `json:"description,omitempty"`
	Worker      string  `json:"worker,omitempty"`
	Reason      string  `json:"reason,omitempty"`
	ProofRef    string  `json:"proof_ref,omitempty"`
	Service     string  `json:"service,omitempty"`
	Buyer       string  `json:"buyer,omitempty"`
	TxRef       string  `json:"tx_ref,omitempty"`
	AmountWei   string  `json:"amount_wei,omitempty"`
	AmountUSD   float64 `json:"amount_usd,omitempty"`
	Tasks       int     `json:"tasks,omitempty"`
	Confidence  float64 `json:"confidence,omitempty"`
}

type ActionsResponse struct {
	Total   int            `json:"total"`
	Actions []ActionRecord `json:"actions"`
}

type TransactionRecord struct {
	Action    string `json:"action"`
	TxRef     string `json:"tx_ref"`
	AmountWei string `json:"amount_wei,omitempty"`
	At        string `json:"at"`
}

type TransactionsResponse struct {
	Total        int                 `json:"total"`
	Transactions []TransactionRecord `json:"transactions"`
}

type CostEntry struct {
	ID           string  `json:"id"`
	Type         string  `json:"type"`
	AmountUSD    float64 `json:"amount_usd"`
	Detail       string  `json:"detail,omitempty"`
	Reimbursed   bool    `json:"reimbursed"`
	ReimbursedTx string  `json:"reimbursed_tx,omitempty"`
	CreatedAt    string  `json:"created_at"`
}

type CostsResponse struct {
	TotalRevenueUSD        float64     `json:"total_revenue_usd"`
	TotalCostUSD           float64     `json:"total_cost_usd"`
	NetUSD                 float64     `json:"net_usd"`
	UnreimbursedComputeUSD float64     `json:"unreimbursed_compute_usd"`
	Entries                []CostEntry `json:"entries"`
}

type TaskStatus struct {
	TaskID   uint64 `json:"task_id"`
	Index    uint64 `json:"index"`
	Status   string `json:"status"`
	Worker   string `json:"worker,omitempty"`
	Reward   string `json:"reward_wei"`
	Deadline string `json:"deadline,omitempty"`
	ProofRef string `json:"proof_ref,omitempty"`
}

type JobStatusResponse struct {
	JobID       uint64       `json:"job_id"`
	Description string       `json:"description"`
	Status      string       `json:"status"`
	BudgetWei   string       `json:"budget_wei"`
	SpentWei    string       `json:"spent_wei"`
	Tasks       []TaskStatus `json:"tasks"`
}
