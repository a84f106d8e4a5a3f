package model

import "encoding/json"

// LedgerEvent is the storage representation of a committed ledger event.
// Amounts are base-10 strings; Topics and Data carry the contract-log form.
type LedgerEvent struct {
	Seq              uint64   `json:"seq"`
	Event            string   `json:"event"`
	Account          string   `json:"account"`
	Amount           string   `json:"amount,omitempty"`
	LockedCollateral string   `json:"locked_collateral,omitempty"`
	OldFactor        uint64   `json:"old_factor,omitempty"`
	NewFactor        uint64   `json:"new_factor,omitempty"`
	Topics           []string `json:"topics"`
	Data             string   `json:"data"`
	Source           string   `json:"source,omitempty"`
	Line             uint64   `json:"line,omitempty"`
	RecordedAt       string   `json:"recorded_at"`
}

// MarshalJSON ensures LedgerEvent is encoded with stable field names.
func (e LedgerEvent) MarshalJSON() ([]byte, error) {
	type Alias LedgerEvent
	return json.Marshal(Alias(e))
}

// UnmarshalJSON decodes a LedgerEvent from JSON.
func (e *LedgerEvent) UnmarshalJSON(data []byte) error {
	type Alias LedgerEvent
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = LedgerEvent(a)
	return nil
}
