package contracts

import (
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/l2ops/staterestore/types"
)

// Version is the capability interface a contract upgrade must satisfy:
// everything the Data Restore Driver needs to turn raw L1 data into
// domain events, keyed by the contract version active at the L1 block
// the data came from. Dispatch is always by L1 block range
// (VersionAt below), never by a package-level mutable variable — see
// §9 Design Notes.
type Version interface {
	// Number is the on-chain contract version this implementation
	// decodes, used only for diagnostics and RollupOpsBlock.ContractVersion.
	Number() uint32

	// DecodeLog turns one already-topic-matched L1 log into a
	// BlockEvent, TokenEvent, or PriorityOpData. Exactly one of the
	// three returned pointers is non-nil for any recognized topic.
	DecodeLog(l gethtypes.Log) (*types.BlockEvent, *types.TokenEvent, *types.PriorityOpData, error)

	// DecodeCalldata parses a commitBlocks transaction's input into
	// the RollupOpsBlocks it commits, rejecting any block whose chunk
	// count isn't in AllowedChunkSizes.
	DecodeCalldata(txInput []byte) ([]types.RollupOpsBlock, error)

	// AllowedChunkSizes lists the total per-block chunk counts this
	// contract version accepts; a decoded block outside this set is a
	// CriticalError, never silently tolerated (§4.2 "chunks_used must
	// belong to the fixed set").
	AllowedChunkSizes() []int
}

type version struct {
	number      uint32
	layout      chunkLayout
	chunkSizes  []int
}

// v3 and v4 mirror the two chunk-size tables a contract upgrade
// typically changes; both share the same event/ABI shape from abi.go,
// only differing in chunk layout and the allowed per-block totals.
var (
	v3 = version{
		number:     3,
		layout:     chunkLayout{chunkBytes: 9},
		chunkSizes: []int{6, 30, 74, 150, 334, 678},
	}
	v4 = version{
		number:     4,
		layout:     chunkLayout{chunkBytes: 10},
		chunkSizes: []int{6, 44, 144, 286, 612, 1044},
	}
)

func (v version) Number() uint32 { return v.number }

func (v version) AllowedChunkSizes() []int { return v.chunkSizes }

func (v version) DecodeLog(l gethtypes.Log) (*types.BlockEvent, *types.TokenEvent, *types.PriorityOpData, error) {
	if len(l.Topics) == 0 {
		return nil, nil, nil, ErrUnexpectedCalldataShape
	}
	switch l.Topics[0] {
	case TopicBlockCommit:
		return &types.BlockEvent{
			BlockNum:        types.BlockNumber(topicUint32(l.Topics[1])),
			TransactionHash: l.TxHash,
			Kind:            types.BlockEventCommitted,
			L1BlockNumber:   l.BlockNumber,
			L1TxIndex:       l.TxIndex,
			LogIndex:        l.Index,
		}, nil, nil, nil
	case TopicBlockVerification:
		return &types.BlockEvent{
			BlockNum:        types.BlockNumber(topicUint32(l.Topics[1])),
			TransactionHash: l.TxHash,
			Kind:            types.BlockEventVerified,
			L1BlockNumber:   l.BlockNumber,
			L1TxIndex:       l.TxIndex,
			LogIndex:        l.Index,
		}, nil, nil, nil
	case TopicBlocksRevert:
		// totalBlocksVerified and totalBlocksCommitted are both
		// non-indexed, so they live in l.Data rather than in Topics;
		// totalBlocksCommitted is the block number the chain rolled
		// back to, which is what downstream code needs to discard
		// RollupOpsBlocks above (§4.4 "reverted events discard
		// pending commits").
		vals, err := RollupABI.Events["BlocksRevert"].Inputs.NonIndexed().Unpack(l.Data)
		if err != nil || len(vals) != 2 {
			return nil, nil, nil, ErrUnexpectedCalldataShape
		}
		totalBlocksCommitted, ok := vals[1].(uint32)
		if !ok {
			return nil, nil, nil, ErrUnexpectedCalldataShape
		}
		return &types.BlockEvent{
			BlockNum:        types.BlockNumber(totalBlocksCommitted),
			TransactionHash: l.TxHash,
			Kind:            types.BlockEventReverted,
			L1BlockNumber:   l.BlockNumber,
			L1TxIndex:       l.TxIndex,
			LogIndex:        l.Index,
		}, nil, nil, nil
	case TopicNewPriorityRequest:
		if len(l.Topics) < 2 {
			return nil, nil, nil, ErrUnexpectedCalldataShape
		}
		return nil, nil, &types.PriorityOpData{
			SerialID:      topicUint64(l.Topics[1]),
			L1BlockNumber: l.BlockNumber,
			TxHash:        l.TxHash,
			LogIndex:      l.Index,
		}, nil
	case TopicNewToken:
		if len(l.Topics) < 3 {
			return nil, nil, nil, ErrUnexpectedCalldataShape
		}
		return nil, &types.TokenEvent{
			L1BlockNumber: l.BlockNumber,
			L1Address:     topicAddress(l.Topics[1]),
			TokenID:       types.TokenID(topicUint32(l.Topics[2])),
		}, nil, nil
	default:
		return nil, nil, nil, ErrUnexpectedCalldataShape
	}
}

func (v version) DecodeCalldata(txInput []byte) ([]types.RollupOpsBlock, error) {
	committed, err := DecodeCommitBlocksCalldata(txInput)
	if err != nil {
		return nil, err
	}
	blocks := make([]types.RollupOpsBlock, len(committed))
	for i, cb := range committed {
		ops, chunksUsed, err := v.layout.DecodeOps(cb.PublicData)
		if err != nil {
			return nil, err
		}
		if !chunkCountAllowed(chunksUsed, v.chunkSizes) {
			return nil, ErrChunkSizeNotAllowed
		}
		blocks[i] = types.RollupOpsBlock{
			BlockNum:        types.BlockNumber(cb.BlockNumber),
			ContractVersion: v.number,
			Ops:             ops,
			FeeAccount:      types.AccountID(cb.FeeAccount),
			Timestamp:       cb.Timestamp.Uint64(),
		}
	}
	return blocks, nil
}

func chunkCountAllowed(n int, allowed []int) bool {
	for _, a := range allowed {
		if a == n {
			return true
		}
	}
	return false
}

func topicUint32(t common.Hash) uint32 {
	return uint32(t.Big().Uint64())
}

func topicUint64(t common.Hash) uint64 {
	return t.Big().Uint64()
}

func topicAddress(t common.Hash) common.Address {
	return common.BytesToAddress(t.Bytes())
}

// VersionAt resolves the contract Version active at l1Block, given the
// L1 block numbers at which each successive upgrade activated and the
// version number the chain started on. upgradeBlocks must be sorted
// ascending; for any event in window [upgradeBlocks[i], upgradeBlocks[i+1])
// the decoder interprets the ABI of version initialVersion+i+1 (§4.1
// "Contract version transitions").
func VersionAt(upgradeBlocks []uint64, initialVersion uint32, l1Block uint64) Version {
	n := initialVersion
	for _, ub := range upgradeBlocks {
		if l1Block < ub {
			break
		}
		n++
	}
	return versionByNumber(n)
}

func versionByNumber(n uint32) Version {
	switch n {
	case 3:
		return v3
	case 4:
		return v4
	default:
		// Contracts built on this pattern only ever add upgrades
		// forward from the oldest supported version; an L1 block
		// older than v3's activation isn't reachable by this driver.
		if n < 3 {
			return v3
		}
		return v4
	}
}
