package contracts

import (
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// StoredBlockInfo is the "stored block info" glossary entry: the
// minimal descriptor of a committed L2 block required by the on-chain
// revertBlocks ABI.
type StoredBlockInfo struct {
	BlockNumber                 uint32
	PriorityOperations          uint64
	PendingOnchainOperationsHash [32]byte
	Timestamp                   *big.Int
	StateHash                   [32]byte
	Commitment                  [32]byte
}

// CommittedBlockData is one entry of a commitBlocks call: the raw
// pubdata the Rollup Ops Decoder parses into a RollupOpsBlock.
type CommittedBlockData struct {
	BlockNumber uint32
	FeeAccount  uint32
	NewStateHash [32]byte
	Timestamp   *big.Int
	PublicData  []byte
}

func mustArgs(types ...string) abi.Arguments {
	args := make(abi.Arguments, len(types))
	for i, t := range types {
		ty, err := abi.NewType(t, "", nil)
		if err != nil {
			panic("contracts: bad abi type " + t + ": " + err.Error())
		}
		args[i] = abi.Argument{Type: ty}
	}
	return args
}

var (
	storedBlockInfoArgs = mustArgs("uint32", "uint64", "bytes32", "uint256", "bytes32", "bytes32")
	committedBlockDataArgs = mustArgs("uint32", "uint32", "bytes32", "uint256", "bytes")
)

// EncodeStoredBlockInfo ABI-encodes one StoredBlockInfo tuple, to be
// wrapped as one element of the revertBlocks bytes[] argument.
func EncodeStoredBlockInfo(b StoredBlockInfo) ([]byte, error) {
	return storedBlockInfoArgs.Pack(b.BlockNumber, b.PriorityOperations, b.PendingOnchainOperationsHash, b.Timestamp, b.StateHash, b.Commitment)
}

// DecodeStoredBlockInfo is the inverse of EncodeStoredBlockInfo, used
// by tests and by anything reading back a submitted revert call.
func DecodeStoredBlockInfo(data []byte) (StoredBlockInfo, error) {
	vals, err := storedBlockInfoArgs.Unpack(data)
	if err != nil {
		return StoredBlockInfo{}, err
	}
	return StoredBlockInfo{
		BlockNumber:                 vals[0].(uint32),
		PriorityOperations:          vals[1].(uint64),
		PendingOnchainOperationsHash: vals[2].([32]byte),
		Timestamp:                   vals[3].(*big.Int),
		StateHash:                   vals[4].([32]byte),
		Commitment:                  vals[5].([32]byte),
	}, nil
}

// EncodeRevertBlocksCalldata builds the full `revertBlocks(bytes[])`
// calldata for blocks, which MUST already be ordered
// (last_correct_block, last_committed_block] in reverse, per §4.6.
func EncodeRevertBlocksCalldata(blocks []StoredBlockInfo) ([]byte, error) {
	encoded := make([][]byte, len(blocks))
	for i, b := range blocks {
		enc, err := EncodeStoredBlockInfo(b)
		if err != nil {
			return nil, err
		}
		encoded[i] = enc
	}
	return RollupABI.Pack("revertBlocks", encoded)
}

// EncodeCommittedBlockData ABI-encodes one CommittedBlockData tuple.
func EncodeCommittedBlockData(b CommittedBlockData) ([]byte, error) {
	return committedBlockDataArgs.Pack(b.BlockNumber, b.FeeAccount, b.NewStateHash, b.Timestamp, b.PublicData)
}

// DecodeCommittedBlockData is the inverse of EncodeCommittedBlockData.
func DecodeCommittedBlockData(data []byte) (CommittedBlockData, error) {
	vals, err := committedBlockDataArgs.Unpack(data)
	if err != nil {
		return CommittedBlockData{}, err
	}
	return CommittedBlockData{
		BlockNumber:  vals[0].(uint32),
		FeeAccount:   vals[1].(uint32),
		NewStateHash: vals[2].([32]byte),
		Timestamp:    vals[3].(*big.Int),
		PublicData:   vals[4].([]byte),
	}, nil
}

// DecodeCommitBlocksCalldata unpacks a `commitBlocks(bytes[])` call's
// input (calldata with the 4-byte selector still attached) into its
// per-block entries, in the order they appear on L1 — which spec §4.2
// requires to already be ascending block_num.
func DecodeCommitBlocksCalldata(input []byte) ([]CommittedBlockData, error) {
	if len(input) < 4 {
		return nil, ErrCalldataTooShort
	}
	method, err := RollupABI.MethodById(input[:4])
	if err != nil {
		return nil, err
	}
	if method.Name != "commitBlocks" {
		return nil, ErrUnexpectedMethod
	}
	vals, err := method.Inputs.Unpack(input[4:])
	if err != nil {
		return nil, err
	}
	rawBlocks, ok := vals[0].([][]byte)
	if !ok {
		return nil, ErrUnexpectedCalldataShape
	}
	out := make([]CommittedBlockData, len(rawBlocks))
	for i, raw := range rawBlocks {
		blk, err := DecodeCommittedBlockData(raw)
		if err != nil {
			return nil, err
		}
		out[i] = blk
	}
	return out, nil
}
