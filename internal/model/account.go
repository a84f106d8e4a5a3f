package model

// AccountSnapshot is the state of one ledger account at the end of a replay.
type AccountSnapshot struct {
	Source           string `json:"source,omitempty"`
	Account          string `json:"account"`
	Collateral       string `json:"collateral"`
	LoanAmount       string `json:"loan_amount"`
	LockedCollateral string `json:"locked_collateral"`
	LoanActive       bool   `json:"loan_active"`
	UpdatedAt        string `json:"updated_at"`
}
