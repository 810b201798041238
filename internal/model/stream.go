package model

import (
	"fmt"
	"strings"
)

// Stream identifies one independently scheduled event type.
type Stream string

const (
	StreamPod     Stream = "pod"
	StreamDeposit Stream = "deposit"
)

// Streams lists every indexed stream in a stable order.
func Streams() []Stream {
	return []Stream{StreamPod, StreamDeposit}
}

// ParseStream converts a CLI/config value into a Stream.
func ParseStream(input string) (Stream, error) {
	switch Stream(strings.ToLower(strings.TrimSpace(input))) {
	case StreamPod:
		return StreamPod, nil
	case StreamDeposit:
		return StreamDeposit, nil
	default:
		return "", fmt.Errorf("unknown stream: %q", input)
	}
}

func (s Stream) String() string {
	return string(s)
}
