package model

// DepositRow is the slice of a raw deposit row the block summary needs.
type DepositRow struct {
	BlockNumber    uint64
	BlockTimestamp uint64
	Amount         string
}

// MaterializedRow is one per-block aggregate of deposit events.
type MaterializedRow struct {
	BlockNumber    uint64 `json:"block_number"`
	BlockTimestamp uint64 `json:"block_timestamp"`
	EventCount     uint64 `json:"event_count"`
	TotalDeposited string `json:"total_deposited"`
}
