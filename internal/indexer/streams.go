package indexer

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"

	"stakeScope/internal/events"
	"stakeScope/internal/model"
	"stakeScope/internal/storage"
)

// PodStream indexes EigenPodManager PodDeployed logs.
type PodStream struct {
	address    common.Address
	deployment model.DeploymentBlockConfig
	decoder    *events.PodDeployedDecoder
	chain      Chain
	store      storage.PodStore
}

func NewPodStream(address common.Address, deployment model.DeploymentBlockConfig, chainClient Chain, store storage.PodStore) (*PodStream, error) {
	decoder, err := events.NewPodDeployedDecoder()
	if err != nil {
		return nil, err
	}
	return &PodStream{
		address:    address,
		deployment: deployment,
		decoder:    decoder,
		chain:      chainClient,
		store:      store,
	}, nil
}

func (s *PodStream) Name() model.Stream { return model.StreamPod }
func (s *PodStream) Address() common.Address { return s.address }
func (s *PodStream) Topic() common.Hash { return s.decoder.Topic() }
func (s *PodStream) Deployment() model.DeploymentBlockConfig { return s.deployment }

func (s *PodStream) Handle(ctx context.Context, logs []types.Log) (int, error) {
	records := make([]model.PodDeployedEvent, 0, len(logs))
	for _, log := range logs {
		if log.Removed {
			continue
		}
		decoded, err := s.decoder.Decode(log)
		if err != nil {
			return 0, decodeError(model.StreamPod, log, err)
		}
		ts, err := s.chain.BlockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			return 0, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}
		records = append(records, model.PodDeployedEvent{
			TxHash:          log.TxHash.Hex(),
			LogIndex:        uint64(log.Index),
			BlockNumber:     log.BlockNumber,
			BlockTimestamp:  ts,
			ContractAddress: hexAddress(log.Address),
			EigenPod:        hexAddress(decoded.EigenPod),
			PodOwner:        hexAddress(decoded.PodOwner),
		})
	}
	if len(records) == 0 {
		return 0, nil
	}
	inserted, err := s.store.UpsertPodDeployed(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("store pod events: %w", err)
	}
	return inserted, nil
}

// DepositStream indexes beacon deposit contract DepositEvent logs. The
// depositor and value come from the enclosing transaction.
type DepositStream struct {
	address    common.Address
	deployment model.DeploymentBlockConfig
	decoder    *events.DepositDecoder
	chain      Chain
	store      storage.DepositStore
}

func NewDepositStream(address common.Address, deployment model.DeploymentBlockConfig, chainClient Chain, store storage.DepositStore) (*DepositStream, error) {
	decoder, err := events.NewDepositDecoder()
	if err != nil {
		return nil, err
	}
	return &DepositStream{
		address:    address,
		deployment: deployment,
		decoder:    decoder,
		chain:      chainClient,
		store:      store,
	}, nil
}

func (s *DepositStream) Name() model.Stream { return model.StreamDeposit }
func (s *DepositStream) Address() common.Address { return s.address }
func (s *DepositStream) Topic() common.Hash { return s.decoder.Topic() }
func (s *DepositStream) Deployment() model.DeploymentBlockConfig { return s.deployment }

func (s *DepositStream) Handle(ctx context.Context, logs []types.Log) (int, error) {
	records := make([]model.StakedDepositEvent, 0, len(logs))
	txs := make(map[common.Hash]struct {
		from  string
		value string
	})
	for _, log := range logs {
		if log.Removed {
			continue
		}
		decoded, err := s.decoder.Decode(log)
		if err != nil {
			return 0, decodeError(model.StreamDeposit, log, err)
		}
		ts, err := s.chain.BlockTimestamp(ctx, log.BlockNumber)
		if err != nil {
			return 0, fmt.Errorf("block timestamp %d: %w", log.BlockNumber, err)
		}

		tx, ok := txs[log.TxHash]
		if !ok {
			info, err := s.chain.TransactionInfo(ctx, log.TxHash)
			if err != nil {
				return 0, fmt.Errorf("transaction %s: %w", log.TxHash.Hex(), err)
			}
			tx.from, tx.value = hexAddress(info.From), info.Value.String()
			txs[log.TxHash] = tx
		}

		records = append(records, model.StakedDepositEvent{
			TxHash:                log.TxHash.Hex(),
			LogIndex:              uint64(log.Index),
			BlockNumber:           log.BlockNumber,
			BlockTimestamp:        ts,
			ContractAddress:       hexAddress(log.Address),
			Depositor:             tx.from,
			Pubkey:                hexutil.Encode(decoded.Pubkey),
			WithdrawalCredentials: hexutil.Encode(decoded.WithdrawalCredentials),
			Amount:                decoded.AmountWei().String(),
			TxValue:               tx.value,
			Signature:             hexutil.Encode(decoded.Signature),
			DepositIndex:          decoded.Index,
		})
	}
	if len(records) == 0 {
		return 0, nil
	}
	inserted, err := s.store.UpsertStakedDeposits(ctx, records)
	if err != nil {
		return 0, fmt.Errorf("store deposit events: %w", err)
	}
	return inserted, nil
}

func decodeError(stream model.Stream, log types.Log, err error) error {
	topic0 := ""
	if len(log.Topics) > 0 {
		topic0 = log.Topics[0].Hex()
	}
	return &model.DecodeError{
		Stream:      stream,
		BlockNumber: log.BlockNumber,
		TxHash:      log.TxHash.Hex(),
		LogIndex:    uint64(log.Index),
		Address:     hexAddress(log.Address),
		Topic0:      topic0,
		Err:         err,
	}
}

func hexAddress(a common.Address) string {
	return strings.ToLower(a.Hex())
}
