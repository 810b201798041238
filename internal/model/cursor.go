package model

import "time"

// Cursor is the persisted last indexed block of a stream.
type Cursor struct {
	Stream           Stream    `json:"stream"`
	LastIndexedBlock uint64    `json:"last_indexed_block"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// DeploymentBlockConfig is the static deployment lookup setting of a contract.
type DeploymentBlockConfig struct {
	Name string
	// KnownBlock is a known-good deployment block; zero means unknown.
	KnownBlock uint64
	// FallbackOffset is subtracted from the head when no deployment
	// block can be found; zero disables the fallback.
	FallbackOffset uint64
}
