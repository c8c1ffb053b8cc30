package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// OpKind enumerates the rollup operations the account tree knows how
// to apply. Unknown kinds must be rejected by the decoder (§4.3
// "unknown op kinds are rejected").
type OpKind uint8

const (
	OpNoop OpKind = iota
	OpCreateAccount
	OpDeposit
	OpTransfer
	OpWithdraw
	OpFullExit
	OpChangePubKey
)

// ChunkSize returns how many chunks of calldata this operation kind
// consumes, used to validate a block's total against
// AllowedChunkSizes.
func (k OpKind) ChunkSize() int {
	switch k {
	case OpNoop:
		return 1
	case OpChangePubKey:
		return 6
	case OpCreateAccount:
		return 5
	case OpDeposit, OpFullExit:
		return 6
	case OpWithdraw:
		return 6
	case OpTransfer:
		return 2
	default:
		return 0
	}
}

// IsPriority reports whether this op kind is initiated by an L1 log
// and therefore consumes a priority_serial_id.
func (k OpKind) IsPriority() bool {
	return k == OpDeposit || k == OpFullExit
}

// Op is one decoded rollup operation inside a RollupOpsBlock.
type Op struct {
	Kind OpKind

	AccountID   AccountID
	Address     common.Address
	Token       TokenID
	Amount      *uint256.Int
	Nonce       uint32
	PubKeyHash  common.Hash
	ToAccountID AccountID
	ToAddress   common.Address

	// PriorityOpSerialID is set only when Kind.IsPriority(); the
	// decoder is responsible for reading it off the calldata so the
	// tree can check it against the running counter.
	PriorityOpSerialID uint64
}

// RollupOpsBlock is one decoded L2 block's worth of operations,
// produced by the Rollup Ops Decoder from a single L1 transaction's
// calldata (§4.2).
type RollupOpsBlock struct {
	BlockNum        BlockNumber
	ContractVersion uint32
	Ops             []Op
	FeeAccount      AccountID
	Timestamp       uint64
}

// Block is the per-block result of applying a RollupOpsBlock to the
// tree: the new root alongside the metadata the reverter and storage
// layer need to identify the block later.
type Block struct {
	BlockNumber     BlockNumber
	RootHash        common.Hash
	FeeAccount      AccountID
	Timestamp       uint64
	ContractVersion uint32
	ChunksUsed      int
	CommitTxHash    common.Hash

	// PriorityOperations, PendingOnchainOperationsHash and Commitment
	// round out the on-chain StoredBlockInfo tuple a Block Reverter
	// needs to re-submit revertBlocks. PriorityOperations is counted
	// from the block's ops when it is applied; PendingOnchainOperationsHash
	// and Commitment are not computed by this module and stay zero.
	PriorityOperations           uint64
	PendingOnchainOperationsHash common.Hash
	Commitment                   common.Hash
}

// AccountUpdateKind tags one entry of an account-update journal.
type AccountUpdateKind uint8

const (
	UpdateCreate AccountUpdateKind = iota
	UpdateBalance
	UpdatePubKeyHash
	UpdateMintNFT
)

// PriorityOpCounter tracks the highest priority_serial_id the tree has
// applied so far. Zero is a valid serial id, so Seen distinguishes
// "counter not primed yet" from "counter at zero" when the driver
// seeds it from storage on restart (§4.1 priority op monotonicity).
type PriorityOpCounter struct {
	Value uint64
	Seen  bool
}

// Advance checks serial against the running counter and, if it's the
// expected next value, records it. A priority op's serial id must be
// exactly one greater than the last one applied; anything else means
// the decoder fed ops out of order or skipped one, which is an
// InvariantViolation-class failure, never silently tolerated.
func (c *PriorityOpCounter) Advance(serial uint64) error {
	if c.Seen && serial != c.Value+1 {
		return fmt.Errorf("priority op serial id out of order: have %d, got %d", c.Value, serial)
	}
	c.Value = serial
	c.Seen = true
	return nil
}

// AccountUpdate is one journal entry produced while applying a block;
// the storage interactor persists these verbatim into the per-kind
// tables named in §4.4/§4.6.
type AccountUpdate struct {
	AccountID AccountID
	Kind      AccountUpdateKind

	Address common.Address // UpdateCreate

	Token      TokenID // UpdateBalance, UpdateMintNFT
	OldBalance *uint256.Int
	NewBalance *uint256.Int

	OldNonce uint32
	NewNonce uint32

	PubKeyHash common.Hash // UpdatePubKeyHash
}
