package storage

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/l2ops/staterestore/contracts"
	"github.com/l2ops/staterestore/types"
)

// The methods in this file implement revert.StorageTx on top of the
// same *Tx used by restore.StorageTx, so one Interactor backs both the
// Data Restore Driver and the Block Reverter, the way the teacher's
// storage crate is one StorageProcessor shared by every binary.

func (t *Tx) LastVerifiedBlock(ctx context.Context) (types.BlockNumber, error) {
	var max uint32
	if err := t.db.Model(&BlockRow{}).Where("verified_at IS NOT NULL").
		Select("COALESCE(MAX(block_number), 0)").Scan(&max).Error; err != nil {
		return 0, err
	}
	return types.BlockNumber(max), nil
}

// BlocksDescending loads blocks in [from, to], most recent first, the
// way get_blocks walks last_block_to_revert..=last_commited_block in
// reverse, then converts each to the on-chain StoredBlockInfo shape.
func (t *Tx) BlocksDescending(ctx context.Context, from, to types.BlockNumber) ([]contracts.StoredBlockInfo, error) {
	if to < from {
		return nil, nil
	}
	var rows []BlockRow
	if err := t.db.Where("block_number >= ? AND block_number <= ?", uint32(from), uint32(to)).
		Order("block_number DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]contracts.StoredBlockInfo, len(rows))
	for i, r := range rows {
		out[i] = contracts.StoredBlockInfo{
			BlockNumber:                  r.BlockNumber,
			PriorityOperations:           r.PriorityOperations,
			PendingOnchainOperationsHash: hashToBytes32(r.PendingOnchainOperationsHash),
			Timestamp:                    new(big.Int).SetUint64(r.Timestamp),
			StateHash:                    hashToBytes32(r.RootHash),
			Commitment:                   hashToBytes32(r.Commitment),
		}
	}
	return out, nil
}

func (t *Tx) RemoveBlocksAbove(ctx context.Context, lastCorrectBlock types.BlockNumber) error {
	return t.db.Where("block_number > ?", uint32(lastCorrectBlock)).Delete(&BlockRow{}).Error
}

func (t *Tx) RemovePendingBlock(ctx context.Context) error {
	return t.db.Where("id = ?", 1).Delete(&PendingBlockRow{}).Error
}

func (t *Tx) RemoveTreeCacheAbove(ctx context.Context, lastCorrectBlock types.BlockNumber) error {
	return t.db.Where("block_number > ?", uint32(lastCorrectBlock)).Delete(&TreeCacheRow{}).Error
}

func (t *Tx) RemoveAccountBalanceUpdatesAbove(ctx context.Context, lastCorrectBlock types.BlockNumber) error {
	return t.db.Where("block_number > ?", uint32(lastCorrectBlock)).Delete(&AccountBalanceUpdateRow{}).Error
}

func (t *Tx) RemoveAccountCreatesAbove(ctx context.Context, lastCorrectBlock types.BlockNumber) error {
	return t.db.Where("block_number > ?", uint32(lastCorrectBlock)).Delete(&AccountCreateRow{}).Error
}

func (t *Tx) RemoveAccountPubkeyUpdatesAbove(ctx context.Context, lastCorrectBlock types.BlockNumber) error {
	return t.db.Where("block_number > ?", uint32(lastCorrectBlock)).Delete(&AccountPubkeyUpdateRow{}).Error
}

func (t *Tx) RemoveMintNFTUpdatesAbove(ctx context.Context, lastCorrectBlock types.BlockNumber) error {
	return t.db.Where("block_number > ?", uint32(lastCorrectBlock)).Delete(&MintNFTUpdateRow{}).Error
}

func (t *Tx) RemoveUnprocessedAggregatedOps(ctx context.Context) error {
	return t.db.Where("confirmed = ?", false).Delete(&AggregatedOperationRow{}).Error
}

// RemoveAggregatedOpsAndBindingsAbove removes any aggregated operation
// whose range touches a reverted block, and the eth tx bindings that
// reference it, mirroring the original clearing both tables together.
func (t *Tx) RemoveAggregatedOpsAndBindingsAbove(ctx context.Context, lastCorrectBlock types.BlockNumber) error {
	var ids []uint64
	if err := t.db.Model(&AggregatedOperationRow{}).
		Where("to_block > ?", uint32(lastCorrectBlock)).Pluck("id", &ids).Error; err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	if err := t.db.Where("aggregated_operation_id IN ?", ids).Delete(&EthOperationBindingRow{}).Error; err != nil {
		return err
	}
	return t.db.Where("id IN ?", ids).Delete(&AggregatedOperationRow{}).Error
}

func (t *Tx) RemoveProverWitnessesAbove(ctx context.Context, lastCorrectBlock types.BlockNumber) error {
	return t.db.Where("block_number > ?", uint32(lastCorrectBlock)).Delete(&ProverWitnessRow{}).Error
}

func (t *Tx) RemoveProofsAbove(ctx context.Context, lastCorrectBlock types.BlockNumber) error {
	return t.db.Where("block_number > ?", uint32(lastCorrectBlock)).Delete(&ProofRow{}).Error
}

func (t *Tx) RemoveAggregatedProofsAbove(ctx context.Context, lastCorrectBlock types.BlockNumber) error {
	return t.db.Where("to_block > ?", uint32(lastCorrectBlock)).Delete(&AggregatedProofRow{}).Error
}

func (t *Tx) RemoveProverJobsAbove(ctx context.Context, lastCorrectBlock types.BlockNumber) error {
	return t.db.Where("block_number > ?", uint32(lastCorrectBlock)).Delete(&ProverJobRow{}).Error
}

// UpdateEthParameters records the operator nonce the reverter observed
// (after revertBlocks confirmed, or read directly from the chain in
// storage-only mode), so a restarted reverter or committer
// reads back the post-revert nonce from this row instead of having to
// re-query the chain.
func (t *Tx) UpdateEthParameters(ctx context.Context, lastCorrectBlock types.BlockNumber, operatorNonce uint64) error {
	return t.db.Model(&EthParametersRow{}).Where("id = ?", 1).Updates(map[string]interface{}{
		"operator_nonce": operatorNonce,
		"updated_at":     time.Now(),
	}).Error
}

func hashToBytes32(hexStr string) [32]byte {
	return common.HexToHash(hexStr)
}
