package model

// Operation is one line of a replay input stream.
//
//	{"op":"deposit","account":"0x..","amount":"100"}
//	{"op":"set_collateral_factor","caller":"0x..","factor":60}
type Operation struct {
	Op      string `json:"op"`
	Account string `json:"account,omitempty"`
	Caller  string `json:"caller,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Factor  uint64 `json:"factor,omitempty"`
}

// OperationError records a rejected or malformed replay operation.
type OperationError struct {
	Source  string `json:"source"`
	Line    uint64 `json:"line"`
	Op      string `json:"op"`
	Account string `json:"account,omitempty"`
	Amount  string `json:"amount,omitempty"`
	Kind    string `json:"kind"`
	Error   string `json:"error"`
}
