package events

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const gweiToWei = 1_000_000_000

// PodDeployed is the payload of a PodDeployed log.
type PodDeployed struct {
	EigenPod common.Address
	PodOwner common.Address
}

// Deposit is the payload of a DepositEvent log.
type Deposit struct {
	Pubkey                []byte
	WithdrawalCredentials []byte
	AmountGwei            uint64
	Signature             []byte
	Index                 uint64
}

// AmountWei converts the gwei amount into wei.
func (d Deposit) AmountWei() *big.Int {
	amount := new(big.Int).SetUint64(d.AmountGwei)
	return amount.Mul(amount, big.NewInt(gweiToWei))
}

// PodDeployedDecoder decodes EigenPodManager PodDeployed logs.
type PodDeployedDecoder struct {
	event abi.Event
}

func NewPodDeployedDecoder() (*PodDeployedDecoder, error) {
	parsed, err := EigenPodManagerABI()
	if err != nil {
		return nil, err
	}
	event, ok := parsed.Events["PodDeployed"]
	if !ok {
		return nil, fmt.Errorf("PodDeployed missing from abi")
	}
	return &PodDeployedDecoder{event: event}, nil
}

// Topic returns the event signature hash.
func (d *PodDeployedDecoder) Topic() common.Hash {
	return d.event.ID
}

func (d *PodDeployedDecoder) Decode(log types.Log) (PodDeployed, error) {
	indexedTopics, err := parseIndexedTopics(d.event, log.Topics)
	if err != nil {
		return PodDeployed{}, err
	}

	var indexed struct {
		EigenPod common.Address
		PodOwner common.Address
	}
	if err := abi.ParseTopics(&indexed, indexedArguments(d.event.Inputs), indexedTopics); err != nil {
		return PodDeployed{}, fmt.Errorf("parse topics: %w", err)
	}

	return PodDeployed{EigenPod: indexed.EigenPod, PodOwner: indexed.PodOwner}, nil
}

// DepositDecoder decodes beacon deposit contract DepositEvent logs.
type DepositDecoder struct {
	event abi.Event
}

func NewDepositDecoder() (*DepositDecoder, error) {
	parsed, err := DepositContractABI()
	if err != nil {
		return nil, err
	}
	event, ok := parsed.Events["DepositEvent"]
	if !ok {
		return nil, fmt.Errorf("DepositEvent missing from abi")
	}
	return &DepositDecoder{event: event}, nil
}

// Topic returns the event signature hash.
func (d *DepositDecoder) Topic() common.Hash {
	return d.event.ID
}

func (d *DepositDecoder) Decode(log types.Log) (Deposit, error) {
	if _, err := parseIndexedTopics(d.event, log.Topics); err != nil {
		return Deposit{}, err
	}

	values, err := d.event.Inputs.NonIndexed().Unpack(log.Data)
	if err != nil {
		return Deposit{}, fmt.Errorf("unpack %s: %w", d.event.Name, err)
	}
	if len(values) != 5 {
		return Deposit{}, fmt.Errorf("unexpected deposit values: %d", len(values))
	}

	fields := make([][]byte, len(values))
	for i, value := range values {
		b, ok := value.([]byte)
		if !ok {
			return Deposit{}, fmt.Errorf("deposit field %d: unexpected type %T", i, value)
		}
		fields[i] = b
	}

	amount, err := littleEndianUint64(fields[2])
	if err != nil {
		return Deposit{}, fmt.Errorf("amount: %w", err)
	}
	index, err := littleEndianUint64(fields[4])
	if err != nil {
		return Deposit{}, fmt.Errorf("index: %w", err)
	}

	return Deposit{
		Pubkey:                fields[0],
		WithdrawalCredentials: fields[1],
		AmountGwei:            amount,
		Signature:             fields[3],
		Index:                 index,
	}, nil
}

func parseIndexedTopics(event abi.Event, topics []common.Hash) ([]common.Hash, error) {
	if len(topics) == 0 {
		return nil, fmt.Errorf("missing topics")
	}
	if topics[0] != event.ID {
		return nil, fmt.Errorf("unexpected topic0 %s for %s", topics[0].Hex(), event.Name)
	}
	indexedCount := len(indexedArguments(event.Inputs))
	if len(topics) != indexedCount+1 {
		return nil, fmt.Errorf("expected %d topics, got %d", indexedCount+1, len(topics))
	}
	return topics[1:], nil
}

func indexedArguments(args abi.Arguments) abi.Arguments {
	indexed := make(abi.Arguments, 0, len(args))
	for _, arg := range args {
		if arg.Indexed {
			indexed = append(indexed, arg)
		}
	}
	return indexed
}

func littleEndianUint64(b []byte) (uint64, error) {
	if len(b) != 8 {
		return 0, fmt.Errorf("expected 8 bytes, got %d", len(b))
	}
	return binary.LittleEndian.Uint64(b), nil
}
