package model

// PodDeployedEvent is a decoded PodDeployed log.
type PodDeployedEvent struct {
	TxHash          string `json:"tx_hash"`
	LogIndex        uint64 `json:"log_index"`
	BlockNumber     uint64 `json:"block_number"`
	BlockTimestamp  uint64 `json:"block_timestamp"`
	ContractAddress string `json:"contract_address"`
	EigenPod        string `json:"eigen_pod"`
	PodOwner        string `json:"pod_owner"`
}

// StakedDepositEvent is a decoded deposit contract DepositEvent log.
// Amount and TxValue are base-10 wei strings.
type StakedDepositEvent struct {
	TxHash                string `json:"tx_hash"`
	LogIndex              uint64 `json:"log_index"`
	BlockNumber           uint64 `json:"block_number"`
	BlockTimestamp        uint64 `json:"block_timestamp"`
	ContractAddress       string `json:"contract_address"`
	Depositor             string `json:"depositor"`
	Pubkey                string `json:"pubkey"`
	WithdrawalCredentials string `json:"withdrawal_credentials"`
	Amount                string `json:"amount"`
	TxValue               string `json:"tx_value"`
	Signature             string `json:"signature"`
	DepositIndex          uint64 `json:"deposit_index"`
}

// EventKey is the identity of a physical log.
type EventKey struct {
	TxHash   string
	LogIndex uint64
}

func (e PodDeployedEvent) Key() EventKey {
	return EventKey{TxHash: e.TxHash, LogIndex: e.LogIndex}
}

func (e StakedDepositEvent) Key() EventKey {
	return EventKey{TxHash: e.TxHash, LogIndex: e.LogIndex}
}
