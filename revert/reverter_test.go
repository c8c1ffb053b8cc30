package revert

import (
	"context"
	"math/big"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/log"
	"github.com/stretchr/testify/require"

	"github.com/l2ops/staterestore/contracts"
	"github.com/l2ops/staterestore/types"
)

var (
	testRollup   = common.HexToAddress("0x00000000000000000000000000000000000aaa")
	testOperator = common.HexToAddress("0x00000000000000000000000000000000000ccc")
)

func noopSigner(tx *gethtypes.Transaction, chainID *big.Int) (*gethtypes.Transaction, error) {
	return tx, nil
}

// fakeChain satisfies ChainClient; receipt/callOut let each test
// script the confirmation and failure-reason paths without a real node.
type fakeChain struct {
	sent    []*gethtypes.Transaction
	receipt *gethtypes.Receipt
	callOut []byte
}

func (c *fakeChain) NonceAt(ctx context.Context, account common.Address) (uint64, error) { return 1, nil }
func (c *fakeChain) SuggestGasPrice(ctx context.Context) (*big.Int, error)                { return big.NewInt(1), nil }
func (c *fakeChain) ChainID(ctx context.Context) (*big.Int, error)                        { return big.NewInt(1337), nil }
func (c *fakeChain) SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error {
	c.sent = append(c.sent, tx)
	return nil
}
func (c *fakeChain) TransactionReceipt(ctx context.Context, hash common.Hash) (*gethtypes.Receipt, error) {
	return c.receipt, nil
}
func (c *fakeChain) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	return c.callOut, nil
}

// fakeStorage satisfies Storage/StorageTx; each Remove* call is
// recorded by name so tests can assert the full revert_blocks_in_storage
// sequence ran.
type fakeStorage struct {
	lastVerified  types.BlockNumber
	lastCommitted types.BlockNumber
	blocks        []contracts.StoredBlockInfo

	calls             []string
	lastOperatorNonce uint64
}

func (s *fakeStorage) Begin(ctx context.Context) (StorageTx, error) { return &fakeTx{s: s}, nil }

type fakeTx struct{ s *fakeStorage }

func (t *fakeTx) record(name string) error { t.s.calls = append(t.s.calls, name); return nil }

func (t *fakeTx) RemoveBlocksAbove(ctx context.Context, n types.BlockNumber) error { return t.record("blocks") }
func (t *fakeTx) RemovePendingBlock(ctx context.Context) error                    { return t.record("pending_block") }
func (t *fakeTx) RemoveTreeCacheAbove(ctx context.Context, n types.BlockNumber) error {
	return t.record("tree_cache")
}
func (t *fakeTx) RemoveAccountBalanceUpdatesAbove(ctx context.Context, n types.BlockNumber) error {
	return t.record("account_balance_updates")
}
func (t *fakeTx) RemoveAccountCreatesAbove(ctx context.Context, n types.BlockNumber) error {
	return t.record("account_creates")
}
func (t *fakeTx) RemoveAccountPubkeyUpdatesAbove(ctx context.Context, n types.BlockNumber) error {
	return t.record("account_pubkey_updates")
}
func (t *fakeTx) RemoveMintNFTUpdatesAbove(ctx context.Context, n types.BlockNumber) error {
	return t.record("mint_nft_updates")
}
func (t *fakeTx) RemoveUnprocessedAggregatedOps(ctx context.Context) error {
	return t.record("eth_unprocessed_aggregated_ops")
}
func (t *fakeTx) RemoveAggregatedOpsAndBindingsAbove(ctx context.Context, n types.BlockNumber) error {
	return t.record("aggregated_operations")
}
func (t *fakeTx) RemoveProverWitnessesAbove(ctx context.Context, n types.BlockNumber) error {
	return t.record("prover_witnesses")
}
func (t *fakeTx) RemoveProofsAbove(ctx context.Context, n types.BlockNumber) error { return t.record("proofs") }
func (t *fakeTx) RemoveAggregatedProofsAbove(ctx context.Context, n types.BlockNumber) error {
	return t.record("aggregated_proofs")
}
func (t *fakeTx) RemoveProverJobsAbove(ctx context.Context, n types.BlockNumber) error {
	return t.record("prover_jobs")
}
func (t *fakeTx) UpdateEthParameters(ctx context.Context, n types.BlockNumber, operatorNonce uint64) error {
	t.s.lastOperatorNonce = operatorNonce
	return t.record("eth_parameters")
}
func (t *fakeTx) LastCommittedBlock(ctx context.Context) (types.BlockNumber, error) {
	return t.s.lastCommitted, nil
}
func (t *fakeTx) LastVerifiedBlock(ctx context.Context) (types.BlockNumber, error) {
	return t.s.lastVerified, nil
}
func (t *fakeTx) BlocksDescending(ctx context.Context, from, to types.BlockNumber) ([]contracts.StoredBlockInfo, error) {
	return t.s.blocks, nil
}
func (t *fakeTx) Commit(ctx context.Context) error   { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error { return nil }

func testLogger() log.Logger { return log.NewLogger(log.DiscardHandler()) }

func TestRunRejectsAlreadyVerifiedBlocks(t *testing.T) {
	store := &fakeStorage{lastVerified: 10, lastCommitted: 20}
	chain := &fakeChain{}
	r := New(testLogger(), chain, store, testRollup, testOperator, noopSigner)

	err := r.Run(context.Background(), ModeAll, types.BlockNumber(5))
	require.ErrorIs(t, err, ErrAlreadyVerified)
	require.Empty(t, store.calls, "no storage mutation should happen once the verified check fails")
	require.Empty(t, chain.sent, "no on-chain call should happen once the verified check fails")
}

func TestRunStorageOnlySendsNoTransaction(t *testing.T) {
	store := &fakeStorage{lastVerified: 2, lastCommitted: 10}
	chain := &fakeChain{}
	r := New(testLogger(), chain, store, testRollup, testOperator, noopSigner)

	require.NoError(t, r.Run(context.Background(), ModeStorage, types.BlockNumber(5)))
	require.Empty(t, chain.sent)
	require.Equal(t, []string{
		"blocks", "pending_block", "tree_cache", "account_balance_updates",
		"account_creates", "account_pubkey_updates", "mint_nft_updates",
		"eth_unprocessed_aggregated_ops", "aggregated_operations",
		"prover_witnesses", "proofs", "aggregated_proofs", "prover_jobs",
		"eth_parameters",
	}, store.calls)
}

func TestRunContractOnlySkipsStorage(t *testing.T) {
	store := &fakeStorage{
		lastVerified:  2,
		lastCommitted: 7,
		blocks: []contracts.StoredBlockInfo{
			{BlockNumber: 7, Timestamp: big.NewInt(1)},
			{BlockNumber: 6, Timestamp: big.NewInt(1)},
		},
	}
	chain := &fakeChain{receipt: &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful}}
	r := New(testLogger(), chain, store, testRollup, testOperator, noopSigner)

	require.NoError(t, r.Run(context.Background(), ModeContract, types.BlockNumber(5)))
	require.Empty(t, store.calls, "contract-only mode must not touch storage tables")
	require.Len(t, chain.sent, 1)
	require.Equal(t, uint64(200_000+15_000*2), chain.sent[0].Gas())
}

func TestRunAllRevertsContractThenStorage(t *testing.T) {
	store := &fakeStorage{
		lastVerified:  0,
		lastCommitted: 5,
		blocks:        []contracts.StoredBlockInfo{{BlockNumber: 5, Timestamp: big.NewInt(1)}},
	}
	chain := &fakeChain{receipt: &gethtypes.Receipt{Status: gethtypes.ReceiptStatusSuccessful}}
	r := New(testLogger(), chain, store, testRollup, testOperator, noopSigner)

	require.NoError(t, r.Run(context.Background(), ModeAll, types.BlockNumber(2)))
	require.Len(t, chain.sent, 1)
	require.Len(t, store.calls, 14)
}

func TestRunSurfacesContractFailureReason(t *testing.T) {
	outputs, err := contracts.RollupABI.Methods["failureReason"].Outputs.Pack("chunk size mismatch")
	require.NoError(t, err)

	store := &fakeStorage{
		lastVerified:  0,
		lastCommitted: 5,
		blocks:        []contracts.StoredBlockInfo{{BlockNumber: 5, Timestamp: big.NewInt(1)}},
	}
	chain := &fakeChain{
		receipt: &gethtypes.Receipt{Status: gethtypes.ReceiptStatusFailed},
		callOut: outputs,
	}
	r := New(testLogger(), chain, store, testRollup, testOperator, noopSigner)

	err = r.Run(context.Background(), ModeContract, types.BlockNumber(2))
	require.ErrorIs(t, err, ErrContractRevertFailed)
	require.Contains(t, err.Error(), "chunk size mismatch")
}

func TestRunNoBlocksToRevertOnContractIsANoop(t *testing.T) {
	store := &fakeStorage{lastVerified: 0, lastCommitted: 5, blocks: nil}
	chain := &fakeChain{}
	r := New(testLogger(), chain, store, testRollup, testOperator, noopSigner)

	require.NoError(t, r.Run(context.Background(), ModeContract, types.BlockNumber(5)))
	require.Empty(t, chain.sent)
}
