// Package restore implements the Data Restore Driver: the control
// loop that rebuilds an L2 account tree from L1 rollup-contract
// events and operations, and persists its progress so it can resume
// after a crash from wherever it last got to.
package restore

import (
	"context"
	"fmt"
	"time"

	gethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	errorsx "github.com/pkg/errors"

	"github.com/l2ops/staterestore/contracts"
	"github.com/l2ops/staterestore/types"
)

// idlePollInterval is how long the driver sleeps when a full iteration
// made no progress, mirroring data_restore_driver.rs's `sleep(5s)` in
// the tail of `run_state_update`.
const idlePollInterval = 5 * time.Second

// Storage is the durable side of the driver: one method per table the
// driver reads or writes, wrapped so every call inside RunStateUpdate
// happens in a single transaction (§4.4 "one transaction per DRD
// iteration"). Dependency-injected so the Driver never owns a
// concrete database handle.
type Storage interface {
	// Begin opens one transaction for a full driver iteration; either
	// Commit or Rollback must be called on the result exactly once.
	Begin(ctx context.Context) (StorageTx, error)
}

// StorageTx is the transactional surface the driver drives a single
// iteration through.
type StorageTx interface {
	LoadCheckpoint(ctx context.Context) (types.StorageUpdateState, error)
	SaveCheckpoint(ctx context.Context, state types.StorageUpdateState) error

	SaveBlockEvents(ctx context.Context, events []types.BlockEvent) error
	SaveTokenEvents(ctx context.Context, events []types.TokenEvent) error
	UnprocessedBlockEvents(ctx context.Context) ([]types.BlockEvent, error)
	SaveLastScannedL1Block(ctx context.Context, n uint64) error

	// ApplyPriorityOpData persists every NewPriorityRequest log
	// observed this scan window; MarkPriorityOpsFulfilled flags the
	// ones whose op has actually reached the tree, and
	// MaxPriorityOpSerialID reports the highest fulfilled serial id so
	// the tree's counter can be reseeded after a restart (§4.1).
	ApplyPriorityOpData(ctx context.Context, ops []types.PriorityOpData) error
	MarkPriorityOpsFulfilled(ctx context.Context, serialIDs []uint64) error
	MaxPriorityOpSerialID(ctx context.Context) (uint64, bool, error)

	SaveRollupOpsBlocks(ctx context.Context, blocks []types.RollupOpsBlock) error
	UnprocessedRollupOpsBlocks(ctx context.Context) ([]types.RollupOpsBlock, error)
	// MarkRollupOpsVerified and DiscardRollupOpsBlocksAbove implement
	// only_verified_committed (§4.1): a committed block only becomes
	// eligible to apply once it's also been verified, and a revert
	// discards whatever was committed-but-not-yet-applied above the
	// block the chain rolled back to.
	MarkRollupOpsVerified(ctx context.Context, blockNum types.BlockNumber) error
	DiscardRollupOpsBlocksAbove(ctx context.Context, keepUpTo types.BlockNumber) error

	SaveAccountUpdates(ctx context.Context, blockNum types.BlockNumber, updates []types.AccountUpdate) error
	SaveBlock(ctx context.Context, block types.Block) error
	MarkBlockVerified(ctx context.Context, blockNum types.BlockNumber) error

	SaveTreeCache(ctx context.Context, blockNum types.BlockNumber, blob []byte) error
	LoadTreeCache(ctx context.Context) (types.BlockNumber, []byte, bool, error)
	LoadAccounts(ctx context.Context) (types.AccountMap, error)

	SaveSpecialToken(ctx context.Context, token types.Token) error
	UpdateEthState(ctx context.Context, params types.EthParameters) error

	LastCommittedBlock(ctx context.Context) (types.BlockNumber, error)
	LastScannedL1Block(ctx context.Context) (uint64, error)

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// GenesisConfig is everything SetGenesisState needs to seed the
// initial tree and checkpoint, matching
// data_restore_driver.rs::set_genesis_state's fixed fee/NFT accounts
// and SPECIAL token registration (§4.3 Genesis).
type GenesisConfig struct {
	FeeAccount     common.Address
	NFTCustody     common.Address
	SpecialToken   common.Address
	GenesisL1Block uint64
}

// FinalBlocksToProcess bounds a finite-mode run (used by tests and by
// operators restoring up to a known block); zero means run forever.
type Config struct {
	Genesis              GenesisConfig
	Eth                  types.EthParameters
	FinalBlocksToProcess types.BlockNumber
	ExpectedFinalRoot    *common.Hash
}

// Driver is the Data Restore Driver: it owns EventState and TreeState
// by composition, and coordinates them against Storage and the chain
// client its EventState and OpsDecoder were built with (§9 "DRD owns EventState/TreeState by
// composition only", dependency injection over global state).
type Driver struct {
	log     log.Logger
	storage Storage
	events  *EventState
	ops     *OpsDecoder
	cfg     Config

	tree *TreeState
}

// New constructs a Driver; events and ops are already wired to a
// chain client and version resolver by the caller (cmd/data-restore).
func New(logger log.Logger, storage Storage, events *EventState, ops *OpsDecoder, cfg Config) *Driver {
	return &Driver{log: logger, storage: storage, events: events, ops: ops, cfg: cfg}
}

// SetGenesisState seeds a brand-new tree/checkpoint, to be called
// exactly once, before the first RunStateUpdate, on a database with
// no prior checkpoint.
func (d *Driver) SetGenesisState(ctx context.Context) error {
	special := types.NewSpecialToken(d.cfg.Genesis.SpecialToken)
	d.tree = NewTreeState(d.cfg.Genesis.FeeAccount, d.cfg.Genesis.NFTCustody, special)
	d.events.SetLastScannedL1Block(d.cfg.Genesis.GenesisL1Block)

	tx, err := d.storage.Begin(ctx)
	if err != nil {
		return NewTemporaryError(errorsx.Wrap(err, "genesis: begin tx"))
	}
	blob, err := d.tree.Dump()
	if err != nil {
		return NewCriticalError(errorsx.Wrap(err, "genesis: dump tree"))
	}
	if err := tx.SaveTreeCache(ctx, 0, blob); err != nil {
		_ = tx.Rollback(ctx)
		return NewTemporaryError(errorsx.Wrap(err, "genesis: save tree cache"))
	}
	if err := tx.SaveSpecialToken(ctx, special); err != nil {
		_ = tx.Rollback(ctx)
		return NewTemporaryError(errorsx.Wrap(err, "genesis: save special token"))
	}
	if err := tx.SaveCheckpoint(ctx, types.StorageStateNone); err != nil {
		_ = tx.Rollback(ctx)
		return NewTemporaryError(errorsx.Wrap(err, "genesis: save checkpoint"))
	}
	if err := tx.Commit(ctx); err != nil {
		return NewTemporaryError(errorsx.Wrap(err, "genesis: commit"))
	}
	d.log.Info("genesis state set", "root", d.tree.RootHash())
	return nil
}

// LoadStateFromStorage resumes a previously started run (§4.5): it
// reads the durable checkpoint and replays exactly the work that
// checkpoint says is still outstanding.
//
//  1. read checkpoint
//  2. load the tree from its cache, or from a full account scan if no
//     cache row exists yet
//  3. reseed the priority-op serial counter from storage
//  4. if checkpoint == Operations: reapply the saved-but-unapplied ops
//     in memory (UnprocessedRollupOpsBlocks returns only blocks already
//     marked verified)
//  5. read the rollup contract's own getTotalVerifiedBlocks and compare
//     it with the last committed block in storage — a chain that has
//     verified more blocks than storage holds is a CriticalError
//  6. prime EventState's scan cursor from the last scanned L1 block
//     recorded in storage
//  7. write the tree cache if the tree was rebuilt from an account scan
//  8. if checkpoint == Events: replay the still-undecoded BlockEvents
//     through a fresh, fully-committed iteration, so a crash between
//     saving events and decoding them doesn't strand the driver
//  9. return, ready for RunStateUpdate
func (d *Driver) LoadStateFromStorage(ctx context.Context) error {
	tx, err := d.storage.Begin(ctx)
	if err != nil {
		return NewTemporaryError(errorsx.Wrap(err, "load state: begin tx"))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	checkpoint, err := tx.LoadCheckpoint(ctx)
	if err != nil {
		return NewTemporaryError(errorsx.Wrap(err, "load state: load checkpoint"))
	}

	blockNum, blob, ok, err := tx.LoadTreeCache(ctx)
	var wroteCache bool
	if err != nil {
		return NewTemporaryError(errorsx.Wrap(err, "load state: load tree cache"))
	}
	if ok {
		d.tree, err = LoadFromCache(blob)
		if err != nil {
			return err
		}
	} else {
		accounts, err := tx.LoadAccounts(ctx)
		if err != nil {
			return NewTemporaryError(errorsx.Wrap(err, "load state: load accounts"))
		}
		d.tree = LoadFromAccounts(accounts)
		wroteCache = true
	}

	maxSerial, serialFound, err := tx.MaxPriorityOpSerialID(ctx)
	if err != nil {
		return NewTemporaryError(errorsx.Wrap(err, "load state: max priority op serial id"))
	}
	d.tree.SeedPriorityOpSerial(maxSerial, serialFound)

	if checkpoint == types.StorageStateOperations {
		pending, err := tx.UnprocessedRollupOpsBlocks(ctx)
		if err != nil {
			return NewTemporaryError(errorsx.Wrap(err, "load state: unprocessed ops blocks"))
		}
		for _, block := range pending {
			if err := d.tree.Apply(block); err != nil {
				return err
			}
		}
	}

	verified, err := d.totalVerifiedBlocksOnChain(ctx)
	if err != nil {
		return err
	}
	lastCommitted, err := tx.LastCommittedBlock(ctx)
	if err != nil {
		return NewTemporaryError(errorsx.Wrap(err, "load state: last committed block"))
	}
	if verified > lastCommitted {
		return NewCriticalError(fmt.Errorf("load state: verified block count %d exceeds last committed block %d replayed into the tree", verified, lastCommitted))
	}
	lastL1, err := tx.LastScannedL1Block(ctx)
	if err != nil {
		return NewTemporaryError(errorsx.Wrap(err, "load state: last scanned L1 block"))
	}
	d.events.SetLastScannedL1Block(lastL1)

	if wroteCache {
		blob, err := d.tree.Dump()
		if err != nil {
			return NewCriticalError(errorsx.Wrap(err, "load state: dump tree"))
		}
		tx2, err := d.storage.Begin(ctx)
		if err != nil {
			return NewTemporaryError(errorsx.Wrap(err, "load state: begin cache-write tx"))
		}
		if err := tx2.SaveTreeCache(ctx, blockNum, blob); err != nil {
			_ = tx2.Rollback(ctx)
			return NewTemporaryError(errorsx.Wrap(err, "load state: save tree cache"))
		}
		if err := tx2.Commit(ctx); err != nil {
			return NewTemporaryError(errorsx.Wrap(err, "load state: commit cache-write tx"))
		}
	}

	if checkpoint == types.StorageStateEvents {
		if err := d.replayOperationsFromEvents(ctx); err != nil {
			return err
		}
	}

	d.log.Info("state loaded from storage", "checkpoint", checkpoint.String(), "root", d.tree.RootHash())
	return nil
}

// replayOperationsFromEvents finishes a cycle a crash interrupted right
// after events were saved but before they were decoded into ops: it
// runs the same events->operations->tree pipeline iterate() does, in
// its own committed transaction, so LoadStateFromStorage returns with
// the tree and storage fully caught up rather than leaving the work
// for the first RunStateUpdate iteration to discover.
func (d *Driver) replayOperationsFromEvents(ctx context.Context) error {
	tx, err := d.storage.Begin(ctx)
	if err != nil {
		return NewTemporaryError(errorsx.Wrap(err, "replay from events: begin tx"))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	opsProgressed, verifiedBlocks, err := d.updateOperationsState(ctx, tx)
	if err != nil {
		return err
	}
	if opsProgressed {
		if _, err := d.updateTreeState(ctx, tx); err != nil {
			return err
		}
		if err := d.updateTreeCache(ctx, tx); err != nil {
			return err
		}
	}
	for _, blockNum := range verifiedBlocks {
		if err := tx.MarkBlockVerified(ctx, blockNum); err != nil {
			return NewTemporaryError(errorsx.Wrapf(err, "replay from events: mark block %d verified", blockNum))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return NewTemporaryError(errorsx.Wrap(err, "replay from events: commit"))
	}
	committed = true
	return nil
}

// totalVerifiedBlocksOnChain calls the rollup contract's
// getTotalVerifiedBlocks directly, rather than trusting a local tally
// of Verify events: a tree cache restored from an older snapshot
// should be checked against the chain's own state, not against
// whatever this process has itself observed so far (§4.5).
func (d *Driver) totalVerifiedBlocksOnChain(ctx context.Context) (types.BlockNumber, error) {
	calldata, err := contracts.RollupABI.Pack("getTotalVerifiedBlocks")
	if err != nil {
		return 0, NewCriticalError(errorsx.Wrap(err, "total verified blocks on chain: pack calldata"))
	}
	rollupAddr := d.events.rollupAddr
	out, err := d.events.chain.CallContract(ctx, gethereum.CallMsg{To: &rollupAddr, Data: calldata})
	if err != nil {
		return 0, NewTemporaryError(errorsx.Wrap(err, "total verified blocks on chain: call contract"))
	}
	vals, err := contracts.RollupABI.Unpack("getTotalVerifiedBlocks", out)
	if err != nil || len(vals) != 1 {
		return 0, NewCriticalError(errorsx.Wrap(err, "total verified blocks on chain: unpack result"))
	}
	n, ok := vals[0].(uint32)
	if !ok {
		return 0, NewCriticalError(fmt.Errorf("total verified blocks on chain: unexpected result type %T", vals[0]))
	}
	return types.BlockNumber(n), nil
}

// RunStateUpdate runs the steady-state loop forever (or until
// FinalBlocksToProcess is reached), matching
// data_restore_driver.rs::run_state_update: scan events, and only
// when new ops appear, apply them to the tree and persist. Every
// iteration is one storage transaction; an iteration that makes no
// progress sleeps idlePollInterval before trying again.
func (d *Driver) RunStateUpdate(ctx context.Context) error {
	for {
		if d.cfg.FinalBlocksToProcess != 0 {
			tx, err := d.storage.Begin(ctx)
			if err != nil {
				return NewTemporaryError(err)
			}
			last, err := tx.LastCommittedBlock(ctx)
			_ = tx.Rollback(ctx)
			if err != nil {
				return NewTemporaryError(err)
			}
			if last >= d.cfg.FinalBlocksToProcess {
				return d.checkFinalRoot()
			}
		}

		progressed, err := d.iterate(ctx)
		if err != nil {
			if IsTemporary(err) {
				d.log.Warn("iteration failed, will retry", "err", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(idlePollInterval):
				}
				continue
			}
			return err
		}

		if !progressed {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(idlePollInterval):
			}
		}
	}
}

func (d *Driver) checkFinalRoot() error {
	if d.cfg.ExpectedFinalRoot == nil {
		return nil
	}
	got := d.tree.RootHash()
	if got != *d.cfg.ExpectedFinalRoot {
		return NewCriticalError(fmt.Errorf("final root mismatch: got %s, want %s", got, *d.cfg.ExpectedFinalRoot))
	}
	return nil
}

// iterate runs one transactional cycle of events -> operations ->
// tree, returning whether it made any forward progress.
func (d *Driver) iterate(ctx context.Context) (bool, error) {
	tx, err := d.storage.Begin(ctx)
	if err != nil {
		return false, NewTemporaryError(errorsx.Wrap(err, "iterate: begin tx"))
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	if err := tx.UpdateEthState(ctx, d.cfg.Eth); err != nil {
		return false, NewTemporaryError(errorsx.Wrap(err, "iterate: update eth state"))
	}

	eventsProgressed, err := d.updateEventsState(ctx, tx)
	if err != nil {
		return false, err
	}

	// updateOperationsState always runs, not just when this cycle's
	// scan found new events: a restart whose checkpoint is Events
	// leaves unprocessed BlockEvents in storage from a prior cycle,
	// and those still need decoding even if nothing new arrived on L1
	// this time around.
	opsProgressed, verifiedBlocks, err := d.updateOperationsState(ctx, tx)
	if err != nil {
		return false, err
	}

	treeProgressed := false
	if opsProgressed {
		treeProgressed, err = d.updateTreeState(ctx, tx)
		if err != nil {
			return false, err
		}
		if err := d.updateTreeCache(ctx, tx); err != nil {
			return false, err
		}
	}

	// Marking a block verified runs last, after updateTreeState has had
	// a chance to write its BlockRow: a commit and its verification can
	// land in the same scan window, and updating verified_at before the
	// row exists would be a silent no-op against a real database.
	verifiedAny := false
	for _, blockNum := range verifiedBlocks {
		if err := tx.MarkBlockVerified(ctx, blockNum); err != nil {
			return false, NewTemporaryError(errorsx.Wrapf(err, "iterate: mark block %d verified", blockNum))
		}
		verifiedAny = true
	}

	if err := tx.Commit(ctx); err != nil {
		return false, NewTemporaryError(errorsx.Wrap(err, "iterate: commit"))
	}
	committed = true
	return eventsProgressed || opsProgressed || treeProgressed || verifiedAny, nil
}

func (d *Driver) updateEventsState(ctx context.Context, tx StorageTx) (bool, error) {
	res, err := d.events.Update(ctx)
	if err != nil {
		return false, err
	}
	if err := tx.SaveLastScannedL1Block(ctx, res.ScannedUpTo); err != nil {
		return false, NewTemporaryError(errorsx.Wrap(err, "update events: save scan cursor"))
	}
	if err := tx.ApplyPriorityOpData(ctx, res.PriorityOps); err != nil {
		return false, NewTemporaryError(errorsx.Wrap(err, "update events: apply priority op data"))
	}
	if len(res.BlockEvents) == 0 && len(res.TokenEvents) == 0 {
		return res.MadeProgress || len(res.PriorityOps) > 0, nil
	}
	if err := tx.SaveBlockEvents(ctx, res.BlockEvents); err != nil {
		return false, NewTemporaryError(errorsx.Wrap(err, "update events: save block events"))
	}
	if err := tx.SaveTokenEvents(ctx, res.TokenEvents); err != nil {
		return false, NewTemporaryError(errorsx.Wrap(err, "update events: save token events"))
	}
	if err := tx.SaveCheckpoint(ctx, types.StorageStateEvents); err != nil {
		return false, NewTemporaryError(errorsx.Wrap(err, "update events: save checkpoint"))
	}
	return true, nil
}

// updateOperationsState resolves every unprocessed committed
// BlockEvent into decoded RollupOpsBlocks, deduplicating by block
// number the way get_new_operation_blocks_from_events filters out
// blocks already seen via `last_processed_block`. Verified events
// share the same UnprocessedBlockEvents source, so they're picked out
// here too: each one flips that block's RollupOpsBlockRow eligible to
// apply (only_verified_committed, §4.1) and is returned for the
// caller to mark verified on the BlockRow after the tree/block write,
// so a commit and its verification landing in the same scan window
// still mark the right row. A Reverted event discards any
// not-yet-applied commits above the block the chain rolled back to,
// so a reorg on L1 can never leave stale ops eligible to apply.
func (d *Driver) updateOperationsState(ctx context.Context, tx StorageTx) (bool, []types.BlockNumber, error) {
	pending, err := tx.UnprocessedBlockEvents(ctx)
	if err != nil {
		return false, nil, NewTemporaryError(errorsx.Wrap(err, "update operations: unprocessed block events"))
	}

	var blocks []types.RollupOpsBlock
	var verified []types.BlockNumber
	var reverted bool
	seen := map[types.BlockNumber]struct{}{}
	for _, ev := range pending {
		switch ev.Kind {
		case types.BlockEventVerified:
			verified = append(verified, ev.BlockNum)
		case types.BlockEventReverted:
			if err := tx.DiscardRollupOpsBlocksAbove(ctx, ev.BlockNum); err != nil {
				return false, nil, NewTemporaryError(errorsx.Wrapf(err, "update operations: discard ops blocks above %d", ev.BlockNum))
			}
			reverted = true
		case types.BlockEventCommitted:
			decoded, err := d.ops.GetRollupOpsBlocks(ctx, ev)
			if err != nil {
				return false, nil, err
			}
			for _, b := range decoded {
				if _, dup := seen[b.BlockNum]; dup {
					continue
				}
				seen[b.BlockNum] = struct{}{}
				blocks = append(blocks, b)
			}
		}
	}

	if len(blocks) > 0 {
		if err := tx.SaveRollupOpsBlocks(ctx, blocks); err != nil {
			return false, nil, NewTemporaryError(errorsx.Wrap(err, "update operations: save ops blocks"))
		}
		if err := tx.SaveCheckpoint(ctx, types.StorageStateOperations); err != nil {
			return false, nil, NewTemporaryError(errorsx.Wrap(err, "update operations: save checkpoint"))
		}
	}

	// Marking a block's ops verified runs after SaveRollupOpsBlocks, not
	// interleaved with the loop above: a commit and its verification
	// can land in the same scan window, and the RollupOpsBlockRow isn't
	// inserted until the save call right above this.
	for _, blockNum := range verified {
		if err := tx.MarkRollupOpsVerified(ctx, blockNum); err != nil {
			return false, nil, NewTemporaryError(errorsx.Wrapf(err, "update operations: mark block %d ops verified", blockNum))
		}
	}

	return len(blocks) > 0 || len(verified) > 0 || reverted, verified, nil
}

// updateTreeState applies every outstanding RollupOpsBlock to the
// tree in block-number order, persisting the per-account journal and
// per-block metadata each time.
func (d *Driver) updateTreeState(ctx context.Context, tx StorageTx) (bool, error) {
	blocks, err := tx.UnprocessedRollupOpsBlocks(ctx)
	if err != nil {
		return false, NewTemporaryError(errorsx.Wrap(err, "update tree: unprocessed ops blocks"))
	}
	if len(blocks) == 0 {
		return false, nil
	}

	for _, block := range blocks {
		if err := d.tree.Apply(block); err != nil {
			return false, err
		}
		if err := tx.SaveAccountUpdates(ctx, block.BlockNum, d.tree.LastJournal()); err != nil {
			return false, NewTemporaryError(errorsx.Wrap(err, "update tree: save account updates"))
		}

		var priorityOps uint64
		var fulfilled []uint64
		for _, op := range block.Ops {
			if op.Kind.IsPriority() {
				priorityOps++
				fulfilled = append(fulfilled, op.PriorityOpSerialID)
			}
		}
		if err := tx.MarkPriorityOpsFulfilled(ctx, fulfilled); err != nil {
			return false, NewTemporaryError(errorsx.Wrap(err, "update tree: mark priority ops fulfilled"))
		}
		if err := tx.SaveBlock(ctx, types.Block{
			BlockNumber:        block.BlockNum,
			RootHash:           d.tree.RootHash(),
			FeeAccount:         block.FeeAccount,
			Timestamp:          block.Timestamp,
			ContractVersion:    int(block.ContractVersion),
			PriorityOperations: priorityOps,
		}); err != nil {
			return false, NewTemporaryError(errorsx.Wrap(err, "update tree: save block"))
		}
	}

	if err := tx.SaveCheckpoint(ctx, types.StorageStateNone); err != nil {
		return false, NewTemporaryError(errorsx.Wrap(err, "update tree: save checkpoint"))
	}
	return true, nil
}

func (d *Driver) updateTreeCache(ctx context.Context, tx StorageTx) error {
	blob, err := d.tree.Dump()
	if err != nil {
		return NewCriticalError(errorsx.Wrap(err, "update tree cache: dump"))
	}
	last, err := tx.LastCommittedBlock(ctx)
	if err != nil {
		return NewTemporaryError(errorsx.Wrap(err, "update tree cache: last committed block"))
	}
	if err := tx.SaveTreeCache(ctx, last, blob); err != nil {
		return NewTemporaryError(errorsx.Wrap(err, "update tree cache: save"))
	}
	return nil
}

// NeedsGenesis reports whether no tree cache row exists yet, the
// signal cmd/data-restore uses at startup to decide between
// SetGenesisState and LoadStateFromStorage.
func (d *Driver) NeedsGenesis(ctx context.Context) (bool, error) {
	tx, err := d.storage.Begin(ctx)
	if err != nil {
		return false, NewTemporaryError(errorsx.Wrap(err, "needs genesis: begin tx"))
	}
	defer func() { _ = tx.Rollback(ctx) }()
	_, _, ok, err := tx.LoadTreeCache(ctx)
	if err != nil {
		return false, NewTemporaryError(errorsx.Wrap(err, "needs genesis: load tree cache"))
	}
	return !ok, nil
}
