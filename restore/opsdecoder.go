package restore

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/l2ops/staterestore/types"
)

// TxFetcher is the capability OpsDecoder needs from the chain client:
// fetching a transaction's calldata by hash.
type TxFetcher interface {
	TransactionByHash(ctx context.Context, hash common.Hash) (*gethtypes.Transaction, bool, error)
}

// OpsDecoder turns committed-block BlockEvents into decoded
// RollupOpsBlocks by fetching and parsing the commitBlocks calldata
// the event's transaction hash references.
//
// Multiple BlockEvents in the same scan window are frequently carried
// by the same L1 transaction (one commitBlocks call commits several
// L2 blocks at once); OpsDecoder caches the most recently decoded
// transaction's blocks so those events don't refetch and re-decode
// the same calldata, mirroring
// get_new_operation_blocks_from_events's single-entry tx cache.
type OpsDecoder struct {
	chain     TxFetcher
	versionAt VersionResolver

	cache *lru.Cache[common.Hash, []types.RollupOpsBlock]
}

// NewOpsDecoder constructs an OpsDecoder with a single-entry decode cache.
func NewOpsDecoder(chain TxFetcher, versionAt VersionResolver) *OpsDecoder {
	cache, _ := lru.New[common.Hash, []types.RollupOpsBlock](1)
	return &OpsDecoder{chain: chain, versionAt: versionAt, cache: cache}
}

// GetRollupOpsBlocks resolves the RollupOpsBlocks committed by the
// same L1 transaction as event, decoding and caching on a miss.
func (d *OpsDecoder) GetRollupOpsBlocks(ctx context.Context, event types.BlockEvent) ([]types.RollupOpsBlock, error) {
	if blocks, ok := d.cache.Get(event.TransactionHash); ok {
		return blocks, nil
	}

	tx, _, err := d.chain.TransactionByHash(ctx, event.TransactionHash)
	if err != nil {
		return nil, NewTemporaryError(fmt.Errorf("ops decoder: fetch tx %s: %w", event.TransactionHash, err))
	}

	v := d.versionAt(event.L1BlockNumber)
	blocks, err := v.DecodeCalldata(tx.Data())
	if err != nil {
		return nil, NewCriticalError(fmt.Errorf("ops decoder: decode calldata for tx %s: %w", event.TransactionHash, err))
	}

	d.cache.Add(event.TransactionHash, blocks)
	return blocks, nil
}
