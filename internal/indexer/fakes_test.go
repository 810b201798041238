package indexer

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"stakeScope/internal/chain"
	"stakeScope/internal/model"
)

var errFilter = errors.New("filter failed")

type fakeChain struct {
	mu sync.Mutex

	head uint64
	// code exists at every block >= deployedAt when deployed is set.
	deployed   bool
	deployedAt uint64

	logs        []types.Log
	failFilter  uint64
	txs         map[common.Hash]chain.TxInfo
	codeCalls   int
	headCalls   int
	filterCalls []BlockRange
	onFilter    func(BlockRange)
}

func (f *fakeChain) BlockNumber(ctx context.Context) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headCalls++
	return f.head, nil
}

func (f *fakeChain) CodeAt(ctx context.Context, account common.Address, number uint64) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.codeCalls++
	if f.deployed && number >= f.deployedAt {
		return []byte{0x60, 0x80}, nil
	}
	return nil, nil
}

func (f *fakeChain) BlockTimestamp(ctx context.Context, number uint64) (uint64, error) {
	return 1_700_000_000 + number*12, nil
}

func (f *fakeChain) FilterLogs(ctx context.Context, fromBlock, toBlock uint64, address common.Address, topic0 common.Hash) ([]types.Log, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filterCalls = append(f.filterCalls, BlockRange{From: fromBlock, To: toBlock})
	if f.onFilter != nil {
		f.onFilter(BlockRange{From: fromBlock, To: toBlock})
	}
	if f.failFilter != 0 && fromBlock <= f.failFilter && f.failFilter <= toBlock {
		return nil, errFilter
	}
	var out []types.Log
	for _, log := range f.logs {
		if log.BlockNumber >= fromBlock && log.BlockNumber <= toBlock {
			out = append(out, log)
		}
	}
	return out, nil
}

func (f *fakeChain) TransactionInfo(ctx context.Context, hash common.Hash) (chain.TxInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.txs[hash]
	if !ok {
		return chain.TxInfo{From: common.Address{}, Value: new(big.Int)}, nil
	}
	return info, nil
}

type fakeCursors struct {
	mu      sync.Mutex
	blocks  map[model.Stream]uint64
	history []uint64
}

func newFakeCursors() *fakeCursors {
	return &fakeCursors{blocks: make(map[model.Stream]uint64)}
}

func (f *fakeCursors) LastIndexedBlock(ctx context.Context, stream model.Stream) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.blocks[stream], nil
}

func (f *fakeCursors) AdvanceCursor(ctx context.Context, stream model.Stream, block uint64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if block > f.blocks[stream] {
		f.blocks[stream] = block
	}
	f.history = append(f.history, f.blocks[stream])
	return nil
}

func (f *fakeCursors) Cursors(ctx context.Context) ([]model.Cursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.Cursor
	for stream, block := range f.blocks {
		out = append(out, model.Cursor{Stream: stream, LastIndexedBlock: block})
	}
	return out, nil
}

// recordingStream stores logs by (tx hash, log index).
type recordingStream struct {
	address    common.Address
	deployment model.DeploymentBlockConfig
	rows       map[model.EventKey]uint64
}

func newRecordingStream(known uint64) *recordingStream {
	return &recordingStream{
		address:    common.HexToAddress("0x91E677b07F7AF907ec9a428aafA9fc14a0d3A338"),
		deployment: model.DeploymentBlockConfig{Name: "test", KnownBlock: known},
		rows:       make(map[model.EventKey]uint64),
	}
}

func (s *recordingStream) Name() model.Stream { return model.StreamPod }
func (s *recordingStream) Address() common.Address { return s.address }
func (s *recordingStream) Topic() common.Hash { return common.HexToHash("0x01") }
func (s *recordingStream) Deployment() model.DeploymentBlockConfig { return s.deployment }

func (s *recordingStream) Handle(ctx context.Context, logs []types.Log) (int, error) {
	inserted := 0
	for _, log := range logs {
		key := model.EventKey{TxHash: log.TxHash.Hex(), LogIndex: uint64(log.Index)}
		if _, ok := s.rows[key]; ok {
			continue
		}
		s.rows[key] = log.BlockNumber
		inserted++
	}
	return inserted, nil
}

type fakePodStore struct {
	rows map[model.EventKey]model.PodDeployedEvent
}

func (f *fakePodStore) UpsertPodDeployed(ctx context.Context, events []model.PodDeployedEvent) (int, error) {
	if f.rows == nil {
		f.rows = make(map[model.EventKey]model.PodDeployedEvent)
	}
	inserted := 0
	for _, e := range events {
		if _, ok := f.rows[e.Key()]; ok {
			continue
		}
		f.rows[e.Key()] = e
		inserted++
	}
	return inserted, nil
}

func (f *fakePodStore) PodDeployedInRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.PodDeployedEvent, error) {
	return nil, nil
}

type fakeDepositStore struct {
	rows []model.StakedDepositEvent
}

func (f *fakeDepositStore) UpsertStakedDeposits(ctx context.Context, events []model.StakedDepositEvent) (int, error) {
	f.rows = append(f.rows, events...)
	return len(events), nil
}

func (f *fakeDepositStore) StakedDepositsInRange(ctx context.Context, fromBlock, toBlock uint64) ([]model.StakedDepositEvent, error) {
	return nil, nil
}

func (f *fakeDepositStore) StakedDepositsByPubkey(ctx context.Context, pubkey string) ([]model.StakedDepositEvent, error) {
	return nil, nil
}

func (f *fakeDepositStore) StakedDepositsByWithdrawalCredentials(ctx context.Context, credentials string) ([]model.StakedDepositEvent, error) {
	return nil, nil
}

func (f *fakeDepositStore) ScanDepositRows(ctx context.Context, fn func(model.DepositRow) error) error {
	return nil
}

func logAt(block uint64, tx byte, index uint) types.Log {
	return types.Log{
		BlockNumber: block,
		TxHash:      common.BytesToHash([]byte{tx}),
		Index:       index,
	}
}
