package contracts

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/l2ops/staterestore/types"
)

// chunkLayout fixes the number of pubdata bytes one "chunk" occupies
// for a given contract version; an operation's on-chain size is
// op.Kind.ChunkSize() chunks of chunkBytes each, matching the
// ChunkSize() table in types/ops.go. Versions differ in chunkBytes the
// same way zkSync versions differ in their packed pubdata width.
type chunkLayout struct {
	chunkBytes int
}

// EncodeOp serializes op into exactly op.Kind.ChunkSize()*chunkBytes
// bytes: one opcode byte followed by the kind's fields, zero-padded.
func (l chunkLayout) EncodeOp(op types.Op) ([]byte, error) {
	size := op.Kind.ChunkSize() * l.chunkBytes
	if size == 0 {
		return nil, ErrUnknownOpKind
	}
	buf := make([]byte, size)
	buf[0] = byte(op.Kind)
	w := buf[1:]

	putU32 := func(off int, v uint32) { binary.BigEndian.PutUint32(w[off:off+4], v) }
	putU64 := func(off int, v uint64) { binary.BigEndian.PutUint64(w[off:off+8], v) }
	putAddr := func(off int, a common.Address) { copy(w[off:off+20], a[:]) }
	putAmount := func(off int, a *uint256.Int) {
		if a == nil {
			a = uint256.NewInt(0)
		}
		b := a.Bytes32()
		copy(w[off:off+32], b[:])
	}

	switch op.Kind {
	case types.OpNoop:
	case types.OpCreateAccount:
		putU32(0, uint32(op.AccountID))
		putAddr(4, op.Address)
	case types.OpDeposit, types.OpFullExit:
		putU32(0, uint32(op.AccountID))
		putU32(4, uint32(op.Token))
		putAmount(8, op.Amount)
		putAddr(40, op.Address)
		putU64(60, op.PriorityOpSerialID)
	case types.OpWithdraw:
		putU32(0, uint32(op.AccountID))
		putU32(4, uint32(op.Token))
		putAmount(8, op.Amount)
		putAddr(40, op.Address)
	case types.OpTransfer:
		putU32(0, uint32(op.AccountID))
		putU32(4, uint32(op.ToAccountID))
		putU32(8, uint32(op.Token))
		putAmount(12, op.Amount)
	case types.OpChangePubKey:
		putU32(0, uint32(op.AccountID))
		copy(w[4:36], op.PubKeyHash[:])
		putU32(36, op.Nonce)
	default:
		return nil, ErrUnknownOpKind
	}
	return buf, nil
}

// DecodeOp is the inverse of EncodeOp; data must be exactly
// kind.ChunkSize()*chunkBytes bytes (the caller slices the pubdata
// stream at chunk boundaries before calling this).
func (l chunkLayout) DecodeOp(data []byte) (types.Op, error) {
	if len(data) < 1 {
		return types.Op{}, ErrUnknownOpKind
	}
	kind := types.OpKind(data[0])
	w := data[1:]
	op := types.Op{Kind: kind}

	getU32 := func(off int) uint32 { return binary.BigEndian.Uint32(w[off : off+4]) }
	getU64 := func(off int) uint64 { return binary.BigEndian.Uint64(w[off : off+8]) }
	getAddr := func(off int) common.Address { return common.BytesToAddress(w[off : off+20]) }
	getAmount := func(off int) *uint256.Int {
		var b [32]byte
		copy(b[:], w[off:off+32])
		return new(uint256.Int).SetBytes(b[:])
	}

	switch kind {
	case types.OpNoop:
	case types.OpCreateAccount:
		op.AccountID = types.AccountID(getU32(0))
		op.Address = getAddr(4)
	case types.OpDeposit, types.OpFullExit:
		op.AccountID = types.AccountID(getU32(0))
		op.Token = types.TokenID(getU32(4))
		op.Amount = getAmount(8)
		op.Address = getAddr(40)
		op.PriorityOpSerialID = getU64(60)
	case types.OpWithdraw:
		op.AccountID = types.AccountID(getU32(0))
		op.Token = types.TokenID(getU32(4))
		op.Amount = getAmount(8)
		op.Address = getAddr(40)
	case types.OpTransfer:
		op.AccountID = types.AccountID(getU32(0))
		op.ToAccountID = types.AccountID(getU32(4))
		op.Token = types.TokenID(getU32(8))
		op.Amount = getAmount(12)
	case types.OpChangePubKey:
		op.AccountID = types.AccountID(getU32(0))
		copy(op.PubKeyHash[:], w[4:36])
		op.Nonce = getU32(36)
	default:
		return types.Op{}, ErrUnknownOpKind
	}
	return op, nil
}

// DecodeOps splits publicData into consecutive ops, each sized by its
// own opcode's ChunkSize()*chunkBytes, and returns the total chunk
// count consumed (for the AllowedChunkSizes check).
func (l chunkLayout) DecodeOps(publicData []byte) ([]types.Op, int, error) {
	var ops []types.Op
	chunksUsed := 0
	i := 0
	for i < len(publicData) {
		kind := types.OpKind(publicData[i])
		size := kind.ChunkSize() * l.chunkBytes
		if size == 0 || i+size > len(publicData) {
			return nil, 0, ErrUnknownOpKind
		}
		op, err := l.DecodeOp(publicData[i : i+size])
		if err != nil {
			return nil, 0, err
		}
		ops = append(ops, op)
		chunksUsed += kind.ChunkSize()
		i += size
	}
	return ops, chunksUsed, nil
}

// EncodeOps is the inverse of DecodeOps, used by tests to build
// synthetic calldata.
func (l chunkLayout) EncodeOps(ops []types.Op) ([]byte, error) {
	var out []byte
	for _, op := range ops {
		enc, err := l.EncodeOp(op)
		if err != nil {
			return nil, err
		}
		out = append(out, enc...)
	}
	return out, nil
}
