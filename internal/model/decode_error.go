package model

import "fmt"

// DecodeError records a log that could not be turned into an event record.
type DecodeError struct {
	Stream      Stream `json:"stream"`
	BlockNumber uint64 `json:"block_number"`
	TxHash      string `json:"tx_hash"`
	LogIndex    uint64 `json:"log_index"`
	Address     string `json:"address"`
	Topic0      string `json:"topic0"`
	Err         error  `json:"-"`
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s log %s:%d at block %d: %v", e.Stream, e.TxHash, e.LogIndex, e.BlockNumber, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}
