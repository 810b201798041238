package model

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestStakedDepositEventJSONStringAmounts(t *testing.T) {
	payload := StakedDepositEvent{
		TxHash:      "0xdef456",
		LogIndex:    3,
		BlockNumber: 11185311,
		Amount:      "32000000000000000000",
		TxValue:     "32000000000000000000",
	}

	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if _, ok := decoded["amount"].(string); !ok {
		t.Fatalf("amount should be string")
	}
	if _, ok := decoded["tx_value"].(string); !ok {
		t.Fatalf("tx_value should be string")
	}
}

func TestParseStream(t *testing.T) {
	cases := map[string]Stream{
		"pod":      StreamPod,
		" Deposit": StreamDeposit,
	}
	for input, want := range cases {
		got, err := ParseStream(input)
		if err != nil {
			t.Fatalf("parse %q: %v", input, err)
		}
		if got != want {
			t.Fatalf("parse %q: got %s want %s", input, got, want)
		}
	}
	if _, err := ParseStream("swap"); err == nil {
		t.Fatalf("expected error for unknown stream")
	}
}

func TestDecodeErrorUnwrap(t *testing.T) {
	cause := errors.New("short data")
	err := &DecodeError{Stream: StreamDeposit, TxHash: "0xabc", LogIndex: 1, Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("expected unwrap to cause")
	}
}
