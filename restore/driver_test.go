package restore

import (
	"context"
	"math/big"
	"testing"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/l2ops/staterestore/contracts"
	"github.com/l2ops/staterestore/types"
)

var (
	testFeeAccount = common.HexToAddress("0x0000000000000000000000000000000000000001")
	testNFTCustody = common.HexToAddress("0x0000000000000000000000000000000000000002")
	testRollup     = common.HexToAddress("0x00000000000000000000000000000000000aaa")
	testGov        = common.HexToAddress("0x00000000000000000000000000000000000bbb")
)

// --- fake chain, satisfying both ChainLogSource and TxFetcher -------

type fakeChain struct {
	head          uint64
	logs          []gethtypes.Log
	txByHash      map[common.Hash]*gethtypes.Transaction
	totalVerified uint32
}

func (c *fakeChain) HeadBlockNumber(ctx context.Context) (uint64, error) { return c.head, nil }

func (c *fakeChain) FilterLogs(ctx context.Context, q gethereum.FilterQuery) ([]gethtypes.Log, error) {
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	var out []gethtypes.Log
	for _, l := range c.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func (c *fakeChain) TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error) {
	tx, ok := c.txByHash[hash]
	if !ok {
		return nil, false, gethereum.NotFound
	}
	return tx, false, nil
}

// CallContract only needs to answer getTotalVerifiedBlocks for these
// tests; totalVerified defaults to 0, which is never greater than
// LastCommittedBlock, so it's a no-op unless a test opts in.
func (c *fakeChain) CallContract(ctx context.Context, msg gethereum.CallMsg) ([]byte, error) {
	return contracts.RollupABI.Methods["getTotalVerifiedBlocks"].Outputs.Pack(c.totalVerified)
}

func commitLog(blockNum types.BlockNumber, l1Block uint64, idx uint, txHash common.Hash) gethtypes.Log {
	return gethtypes.Log{
		Address:     testRollup,
		Topics:      []common.Hash{contracts.TopicBlockCommit, common.BigToHash(big.NewInt(int64(blockNum)))},
		BlockNumber: l1Block,
		TxHash:      txHash,
		Index:       idx,
	}
}

func verifiedLog(blockNum types.BlockNumber, l1Block uint64, idx uint, txHash common.Hash) gethtypes.Log {
	return gethtypes.Log{
		Address:     testRollup,
		Topics:      []common.Hash{contracts.TopicBlockVerification, common.BigToHash(big.NewInt(int64(blockNum)))},
		BlockNumber: l1Block,
		TxHash:      txHash,
		Index:       idx,
	}
}

// singleCreateAccountBlock builds one CreateAccount+Noop pubdata block
// (6 total chunks, admissible under both v3 and v4) for blockNum.
func singleCreateAccountBlock(t *testing.T, blockNum uint32, accountID types.AccountID, addr common.Address, contractVersion uint32) contracts.CommittedBlockData {
	t.Helper()
	ops := []types.Op{
		{Kind: types.OpCreateAccount, AccountID: accountID, Address: addr},
		{Kind: types.OpNoop},
	}
	pubdata, err := contracts.EncodeBlockPubdata(contractVersion, ops)
	require.NoError(t, err)
	return contracts.CommittedBlockData{
		BlockNumber: blockNum,
		FeeAccount:  1,
		Timestamp:   big.NewInt(1000),
		PublicData:  pubdata,
	}
}

func commitBlocksTx(t *testing.T, blocks ...contracts.CommittedBlockData) *gethtypes.Transaction {
	t.Helper()
	encoded := make([][]byte, len(blocks))
	for i, b := range blocks {
		enc, err := contracts.EncodeCommittedBlockData(b)
		require.NoError(t, err)
		encoded[i] = enc
	}
	data, err := contracts.RollupABI.Pack("commitBlocks", encoded)
	require.NoError(t, err)
	return gethtypes.NewTx(&gethtypes.LegacyTx{Nonce: 0, Gas: 1_000_000, Data: data})
}

// --- fake storage: an in-memory restore.Storage/StorageTx -----------
//
// Rollback is a no-op: every test here is single-threaded and never
// needs to observe a half-committed iteration, so true isolation
// would only add noise.

type fakeEventRow struct {
	event     types.BlockEvent
	processed bool
}

type fakeOpsRow struct {
	block        types.RollupOpsBlock
	applied      bool
	verifiedSeen bool
}

type fakePriorityOpRow struct {
	serialID  uint64
	fulfilled bool
}

type fakeStorage struct {
	checkpoint  types.StorageUpdateState
	lastL1Block uint64

	events      []*fakeEventRow
	tokens      []types.TokenEvent
	ops         []*fakeOpsRow
	priorityOps []*fakePriorityOpRow
	blocks      []types.Block
	verified    map[types.BlockNumber]bool

	specialTokens []types.Token
	ethParams     types.EthParameters

	treeCacheBlock types.BlockNumber
	treeCacheBlob  []byte
	treeCacheOK    bool
}

func newFakeStorage() *fakeStorage { return &fakeStorage{} }

func (s *fakeStorage) Begin(ctx context.Context) (StorageTx, error) { return &fakeTx{s: s}, nil }

type fakeTx struct{ s *fakeStorage }

func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

func (t *fakeTx) LoadCheckpoint(ctx context.Context) (types.StorageUpdateState, error) {
	return t.s.checkpoint, nil
}
func (t *fakeTx) SaveCheckpoint(ctx context.Context, state types.StorageUpdateState) error {
	t.s.checkpoint = state
	return nil
}
func (t *fakeTx) SaveLastScannedL1Block(ctx context.Context, n uint64) error {
	t.s.lastL1Block = n
	return nil
}
func (t *fakeTx) LastScannedL1Block(ctx context.Context) (uint64, error) {
	return t.s.lastL1Block, nil
}
func (t *fakeTx) SaveBlockEvents(ctx context.Context, events []types.BlockEvent) error {
	for _, e := range events {
		t.s.events = append(t.s.events, &fakeEventRow{event: e})
	}
	return nil
}
func (t *fakeTx) SaveTokenEvents(ctx context.Context, events []types.TokenEvent) error {
	t.s.tokens = append(t.s.tokens, events...)
	return nil
}
func (t *fakeTx) UnprocessedBlockEvents(ctx context.Context) ([]types.BlockEvent, error) {
	var out []types.BlockEvent
	for _, row := range t.s.events {
		if !row.processed {
			out = append(out, row.event)
			row.processed = true
		}
	}
	return out, nil
}
func (t *fakeTx) SaveRollupOpsBlocks(ctx context.Context, blocks []types.RollupOpsBlock) error {
	for _, b := range blocks {
		t.s.ops = append(t.s.ops, &fakeOpsRow{block: b})
	}
	return nil
}
func (t *fakeTx) UnprocessedRollupOpsBlocks(ctx context.Context) ([]types.RollupOpsBlock, error) {
	var out []types.RollupOpsBlock
	for _, row := range t.s.ops {
		if !row.applied && row.verifiedSeen {
			out = append(out, row.block)
			row.applied = true
		}
	}
	return out, nil
}
func (t *fakeTx) MarkRollupOpsVerified(ctx context.Context, blockNum types.BlockNumber) error {
	for _, row := range t.s.ops {
		if row.block.BlockNum == blockNum {
			row.verifiedSeen = true
		}
	}
	return nil
}
func (t *fakeTx) DiscardRollupOpsBlocksAbove(ctx context.Context, keepUpTo types.BlockNumber) error {
	kept := t.s.ops[:0]
	for _, row := range t.s.ops {
		if row.block.BlockNum <= keepUpTo || row.applied {
			kept = append(kept, row)
		}
	}
	t.s.ops = kept
	return nil
}
func (t *fakeTx) ApplyPriorityOpData(ctx context.Context, ops []types.PriorityOpData) error {
	for _, op := range ops {
		t.s.priorityOps = append(t.s.priorityOps, &fakePriorityOpRow{serialID: op.SerialID})
	}
	return nil
}
func (t *fakeTx) MarkPriorityOpsFulfilled(ctx context.Context, serialIDs []uint64) error {
	fulfilled := map[uint64]struct{}{}
	for _, id := range serialIDs {
		fulfilled[id] = struct{}{}
	}
	for _, row := range t.s.priorityOps {
		if _, ok := fulfilled[row.serialID]; ok {
			row.fulfilled = true
		}
	}
	return nil
}
func (t *fakeTx) MaxPriorityOpSerialID(ctx context.Context) (uint64, bool, error) {
	var max uint64
	var found bool
	for _, row := range t.s.priorityOps {
		if row.fulfilled && (!found || row.serialID > max) {
			max, found = row.serialID, true
		}
	}
	return max, found, nil
}
func (t *fakeTx) SaveSpecialToken(ctx context.Context, token types.Token) error {
	t.s.specialTokens = append(t.s.specialTokens, token)
	return nil
}
func (t *fakeTx) UpdateEthState(ctx context.Context, params types.EthParameters) error {
	t.s.ethParams = params
	return nil
}
func (t *fakeTx) SaveAccountUpdates(ctx context.Context, blockNum types.BlockNumber, updates []types.AccountUpdate) error {
	return nil
}
func (t *fakeTx) SaveBlock(ctx context.Context, block types.Block) error {
	t.s.blocks = append(t.s.blocks, block)
	return nil
}
func (t *fakeTx) MarkBlockVerified(ctx context.Context, blockNum types.BlockNumber) error {
	if t.s.verified == nil {
		t.s.verified = map[types.BlockNumber]bool{}
	}
	t.s.verified[blockNum] = true
	return nil
}
func (t *fakeTx) SaveTreeCache(ctx context.Context, blockNum types.BlockNumber, blob []byte) error {
	t.s.treeCacheBlock, t.s.treeCacheBlob, t.s.treeCacheOK = blockNum, blob, true
	return nil
}
func (t *fakeTx) LoadTreeCache(ctx context.Context) (types.BlockNumber, []byte, bool, error) {
	return t.s.treeCacheBlock, t.s.treeCacheBlob, t.s.treeCacheOK, nil
}
func (t *fakeTx) LoadAccounts(ctx context.Context) (types.AccountMap, error) {
	return types.AccountMap{}, nil
}
func (t *fakeTx) LastCommittedBlock(ctx context.Context) (types.BlockNumber, error) {
	var max types.BlockNumber
	for _, b := range t.s.blocks {
		if b.BlockNumber > max {
			max = b.BlockNumber
		}
	}
	return max, nil
}

func testLogger() log.Logger { return log.NewLogger(log.DiscardHandler()) }

func genesisConfig() Config {
	return Config{Genesis: GenesisConfig{
		FeeAccount:   testFeeAccount,
		NFTCustody:   testNFTCustody,
		SpecialToken: testNFTCustody,
	}}
}

// --- scenarios --------------------------------------------------------

func TestGenesisOnlyRestart(t *testing.T) {
	store := newFakeStorage()
	chain := &fakeChain{txByHash: map[common.Hash]*gethtypes.Transaction{}}
	versionAt := func(uint64) contracts.Version { return contracts.VersionAt(nil, 3, 0) }
	events := NewEventState(chain, versionAt, testRollup, testGov, 0, 0)
	ops := NewOpsDecoder(chain, versionAt)

	d := New(testLogger(), store, events, ops, genesisConfig())
	needsGenesis, err := d.NeedsGenesis(context.Background())
	require.NoError(t, err)
	require.True(t, needsGenesis)

	require.NoError(t, d.SetGenesisState(context.Background()))

	accounts := d.tree.Accounts()
	fee, ok := accounts[types.FeeAccountID]
	require.True(t, ok)
	require.Equal(t, testFeeAccount, fee.Address)

	nft, ok := accounts[types.AccountID(1)]
	require.True(t, ok)
	require.Equal(t, testNFTCustody, nft.Address)

	require.True(t, store.treeCacheOK)
	require.Equal(t, types.BlockNumber(0), store.treeCacheBlock)
	require.Equal(t, types.StorageStateNone, store.checkpoint)

	needsGenesis2, err := d.NeedsGenesis(context.Background())
	require.NoError(t, err)
	require.False(t, needsGenesis2)
}

func TestAggregatedCommit(t *testing.T) {
	store := newFakeStorage()

	txHash := common.HexToHash("0xaaaa")
	blocks := []contracts.CommittedBlockData{
		singleCreateAccountBlock(t, 5, 2, common.HexToAddress("0x03"), 3),
		singleCreateAccountBlock(t, 6, 3, common.HexToAddress("0x04"), 3),
		singleCreateAccountBlock(t, 7, 4, common.HexToAddress("0x05"), 3),
	}
	tx := commitBlocksTx(t, blocks...)

	verifyTxHash := common.HexToHash("0xbbbb")
	chain := &fakeChain{
		head: 1000,
		logs: []gethtypes.Log{
			commitLog(5, 10, 0, txHash),
			commitLog(6, 10, 1, txHash),
			commitLog(7, 10, 2, txHash),
			verifiedLog(5, 11, 0, verifyTxHash),
			verifiedLog(6, 11, 1, verifyTxHash),
			verifiedLog(7, 11, 2, verifyTxHash),
		},
		txByHash: map[common.Hash]*gethtypes.Transaction{txHash: tx},
	}
	versionAt := func(uint64) contracts.Version { return contracts.VersionAt(nil, 3, 0) }
	events := NewEventState(chain, versionAt, testRollup, testGov, 0, 0)
	ops := NewOpsDecoder(chain, versionAt)

	cfg := genesisConfig()
	cfg.FinalBlocksToProcess = 7
	d := New(testLogger(), store, events, ops, cfg)
	require.NoError(t, d.SetGenesisState(context.Background()))
	require.NoError(t, d.LoadStateFromStorage(context.Background()))

	require.NoError(t, d.RunStateUpdate(context.Background()))

	accounts := d.tree.Accounts()
	require.Contains(t, accounts, types.AccountID(2))
	require.Contains(t, accounts, types.AccountID(3))
	require.Contains(t, accounts, types.AccountID(4))
	require.Len(t, store.blocks, 3)
	for _, row := range store.events {
		require.True(t, row.processed)
	}
}

func TestVerifiedEventMarksBlockVerified(t *testing.T) {
	store := newFakeStorage()

	commitTxHash := common.HexToHash("0xaaaa")
	verifyTxHash := common.HexToHash("0xbbbb")
	block := singleCreateAccountBlock(t, 5, 2, common.HexToAddress("0x03"), 3)
	commitTx := commitBlocksTx(t, block)

	chain := &fakeChain{
		head: 1000,
		logs: []gethtypes.Log{
			commitLog(5, 10, 0, commitTxHash),
			verifiedLog(5, 11, 0, verifyTxHash),
		},
		txByHash: map[common.Hash]*gethtypes.Transaction{commitTxHash: commitTx},
	}
	versionAt := func(uint64) contracts.Version { return contracts.VersionAt(nil, 3, 0) }
	events := NewEventState(chain, versionAt, testRollup, testGov, 0, 0)
	ops := NewOpsDecoder(chain, versionAt)

	cfg := genesisConfig()
	cfg.FinalBlocksToProcess = 5
	d := New(testLogger(), store, events, ops, cfg)
	require.NoError(t, d.SetGenesisState(context.Background()))
	require.NoError(t, d.LoadStateFromStorage(context.Background()))
	require.NoError(t, d.RunStateUpdate(context.Background()))

	require.Len(t, store.blocks, 1)
	require.True(t, store.verified[types.BlockNumber(5)], "BlockVerification log must mark the block verified")
}

func TestContractVersionBoundary(t *testing.T) {
	ops := []types.Op{
		{Kind: types.OpCreateAccount, AccountID: 9, Address: common.HexToAddress("0x09")},
		{Kind: types.OpNoop},
	}
	pubdataV4, err := contracts.EncodeBlockPubdata(4, ops)
	require.NoError(t, err)

	v3 := contracts.VersionAt(nil, 3, 0)
	require.Equal(t, uint32(3), v3.Number())
	v4 := contracts.VersionAt([]uint64{100}, 3, 100)
	require.Equal(t, uint32(4), v4.Number())

	data := contracts.CommittedBlockData{BlockNumber: 1, Timestamp: big.NewInt(1), PublicData: pubdataV4}
	enc, err := contracts.EncodeCommittedBlockData(data)
	require.NoError(t, err)
	calldata, err := contracts.RollupABI.Pack("commitBlocks", [][]byte{enc})
	require.NoError(t, err)

	_, err = v4.DecodeCalldata(calldata)
	require.NoError(t, err, "v4 decoding its own pubdata must succeed")

	_, err = v3.DecodeCalldata(calldata)
	require.Error(t, err, "v3 must reject pubdata encoded under v4's wider chunk layout")
}

func TestResumeFromEvents(t *testing.T) {
	store := newFakeStorage()
	txHash := common.HexToHash("0xbbbb")
	block := singleCreateAccountBlock(t, 1, 2, common.HexToAddress("0x06"), 3)
	tx := commitBlocksTx(t, block)

	verifyTxHash := common.HexToHash("0xcccc")
	chain := &fakeChain{
		head:     1000,
		logs:     []gethtypes.Log{commitLog(1, 10, 0, txHash), verifiedLog(1, 11, 0, verifyTxHash)},
		txByHash: map[common.Hash]*gethtypes.Transaction{txHash: tx},
	}
	versionAt := func(uint64) contracts.Version { return contracts.VersionAt(nil, 3, 0) }

	// First driver: scan events and save them, then "crash" before ops
	// are decoded or applied.
	events1 := NewEventState(chain, versionAt, testRollup, testGov, 0, 0)
	ops1 := NewOpsDecoder(chain, versionAt)
	d1 := New(testLogger(), store, events1, ops1, genesisConfig())
	require.NoError(t, d1.SetGenesisState(context.Background()))

	tx1, err := store.Begin(context.Background())
	require.NoError(t, err)
	progressed, err := d1.updateEventsState(context.Background(), tx1)
	require.NoError(t, err)
	require.True(t, progressed)
	require.NoError(t, tx1.Commit(context.Background()))
	require.Equal(t, types.StorageStateEvents, store.checkpoint)
	require.Len(t, store.ops, 0)

	// Second driver: resumes from the persisted checkpoint == Events,
	// re-decodes ops from the stored event, and converges.
	events2 := NewEventState(chain, versionAt, testRollup, testGov, 0, 0)
	ops2 := NewOpsDecoder(chain, versionAt)
	cfg := genesisConfig()
	cfg.FinalBlocksToProcess = 1
	d2 := New(testLogger(), store, events2, ops2, cfg)
	require.NoError(t, d2.LoadStateFromStorage(context.Background()))
	require.NoError(t, d2.RunStateUpdate(context.Background()))

	require.Len(t, store.blocks, 1)
	require.Equal(t, types.BlockNumber(1), store.blocks[0].BlockNumber)
}
