package model

// PairMeta captures the immutable token pair of a V2 pair contract.
type PairMeta struct {
	Pair   string    `json:"pair"`
	Token0 TokenMeta `json:"token0"`
	Token1 TokenMeta `json:"token1"`
}

// QuoteRecord is the output of the quote command. Amounts are base units;
// the *Formatted fields use the token decimals when known. ChainID and
// BlockNumber are set when reserves were read over RPC.
type QuoteRecord struct {
	Mode               string    `json:"mode"`
	ChainID            uint64    `json:"chain_id,omitempty"`
	BlockNumber        uint64    `json:"block_number,omitempty"`
	Pair               string    `json:"pair,omitempty"`
	Direction          string    `json:"direction"`
	TokenIn            TokenMeta `json:"token_in"`
	TokenOut           TokenMeta `json:"token_out"`
	ReserveIn          string    `json:"reserve_in"`
	ReserveOut         string    `json:"reserve_out"`
	BlockTimestampLast uint32    `json:"block_timestamp_last,omitempty"`
	AmountIn           string    `json:"amount_in"`
	AmountOut          string    `json:"amount_out"`
	AmountInFormatted  string    `json:"amount_in_formatted,omitempty"`
	AmountOutFormatted string    `json:"amount_out_formatted,omitempty"`
	SlippageBps        uint64    `json:"slippage_bps,omitempty"`
	Limit              string    `json:"limit,omitempty"`
}
