// Package accounttree implements the in-memory account Merkle tree the
// Data Restore Driver rebuilds from decoded rollup operations. Leaves
// are indexed by AccountID; hashing uses gnark-crypto's MiMC, the same
// SNARK-friendly hash family a prover circuit over this tree would
// need, grounded on the rollup16 operator's `hFunc = mimc.NewMiMC()`
// pattern. Unlike that example's flat byte-array state, this tree is
// sparse: only accounts that actually exist occupy memory, and the
// rest of the tree is represented by precomputed default hashes.
package accounttree

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/ethereum/go-ethereum/common"

	"github.com/l2ops/staterestore/types"
)

// Depth is the fixed height of the account tree; it addresses account
// ids 0 through 2^Depth-1.
const Depth = 24

type nodeHash [32]byte

type nodeKey struct {
	level uint8 // 0 = leaf level, Depth = root
	index uint64
}

// Tree is a sparse incremental Merkle tree over AccountID-indexed
// leaves. It owns no storage backend; callers persist RootHash and the
// serialized cache (via Dump/RestoreFromCache) the way the Tree State
// cache row is persisted between restarts.
type Tree struct {
	accounts types.AccountMap
	nodes    map[nodeKey]nodeHash
	defaults [Depth + 1]nodeHash
}

// New builds an empty tree (no accounts) with precomputed default
// subtree hashes for every level.
func New() *Tree {
	t := &Tree{
		accounts: types.AccountMap{},
		nodes:    make(map[nodeKey]nodeHash),
	}
	t.defaults[0] = hashLeafAccount(nil)
	for lvl := 1; lvl <= Depth; lvl++ {
		t.defaults[lvl] = hashPair(t.defaults[lvl-1], t.defaults[lvl-1])
	}
	return t
}

// Load rebuilds a tree from a complete account map, as done once at
// cold-start recovery when no tree cache is available (§4.3/§4.5).
func Load(accounts types.AccountMap) *Tree {
	t := New()
	ids := make([]types.AccountID, 0, len(accounts))
	for id := range accounts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		t.setLeaf(id, accounts[id])
	}
	return t
}

// cacheFile is the JSON shape persisted to the tree cache row: just
// enough to reconstruct the sparse node map without replaying every
// operation from genesis.
type cacheFile struct {
	Accounts map[types.AccountID]*types.Account `json:"accounts"`
}

// Dump serializes the tree's account state for the tree cache row
// (§4.4 "tree cache"); interior nodes are recomputed on RestoreFromCache
// rather than serialized, since they're cheap to rebuild and harder to
// keep consistent across a format change.
func (t *Tree) Dump() ([]byte, error) {
	return json.Marshal(cacheFile{Accounts: t.accounts})
}

// RestoreFromCache rebuilds a tree from a previously Dump-ed blob.
func RestoreFromCache(blob []byte) (*Tree, error) {
	var cf cacheFile
	if err := json.Unmarshal(blob, &cf); err != nil {
		return nil, fmt.Errorf("accounttree: restore from cache: %w", err)
	}
	return Load(cf.Accounts), nil
}

// Accounts returns the live account map; callers must not mutate it
// directly — use Apply so the tree's node cache stays consistent.
func (t *Tree) Accounts() types.AccountMap { return t.accounts }

// RootHash returns the current Merkle root.
func (t *Tree) RootHash() common.Hash {
	return common.Hash(t.nodeAt(Depth, 0))
}

func (t *Tree) nodeAt(level uint8, index uint64) nodeHash {
	if h, ok := t.nodes[nodeKey{level, index}]; ok {
		return h
	}
	return t.defaults[level]
}

func (t *Tree) setLeaf(id types.AccountID, a *types.Account) {
	idx := uint64(id)
	h := hashLeafAccount(a)
	t.nodes[nodeKey{0, idx}] = h
	for level := uint8(1); level <= Depth; level++ {
		parentIdx := idx / 2
		var left, right nodeHash
		if idx%2 == 0 {
			left = h
			right = t.nodeAt(level-1, idx+1)
		} else {
			left = t.nodeAt(level-1, idx-1)
			right = h
		}
		h = hashPair(left, right)
		t.nodes[nodeKey{level, parentIdx}] = h
		idx = parentIdx
	}
}

// Apply mutates the account map according to ops, advancing serial for
// each priority op, and returns the per-account update journal the
// storage interactor persists (§4.3/§4.4).
//
// Ops are applied strictly in order; an invariant violation (balance
// underflow, nonce mismatch, unknown op kind) aborts the whole block
// with no partial mutation visible to the caller — the tree and
// account map are left exactly as they were before Apply was called.
func (t *Tree) Apply(ops []types.Op, serial *types.PriorityOpCounter) ([]types.AccountUpdate, error) {
	scratch := t.accounts.Clone()
	scratchSerial := *serial
	var journal []types.AccountUpdate

	for _, op := range ops {
		if op.Kind.IsPriority() {
			if err := scratchSerial.Advance(op.PriorityOpSerialID); err != nil {
				return nil, fmt.Errorf("%w: %s", types.ErrInvariantViolation, err)
			}
		}
		upd, err := applyOp(scratch, op)
		if err != nil {
			return nil, err
		}
		journal = append(journal, upd...)
	}

	t.accounts = scratch
	*serial = scratchSerial
	touched := make(map[types.AccountID]struct{})
	for _, u := range journal {
		touched[u.AccountID] = struct{}{}
	}
	ids := make([]types.AccountID, 0, len(touched))
	for id := range touched {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		t.setLeaf(id, scratch[id])
	}
	return journal, nil
}

func applyOp(accounts types.AccountMap, op types.Op) ([]types.AccountUpdate, error) {
	switch op.Kind {
	case types.OpCreateAccount:
		if _, exists := accounts[op.AccountID]; exists {
			return nil, fmt.Errorf("%w: account %d already exists", types.ErrInvariantViolation, op.AccountID)
		}
		accounts[op.AccountID] = types.NewAccount(op.Address)
		return []types.AccountUpdate{{
			AccountID: op.AccountID,
			Kind:      types.UpdateCreate,
			Address:   op.Address,
		}}, nil

	case types.OpDeposit, types.OpTransfer:
		acc, ok := accounts[op.AccountID]
		if !ok {
			return nil, fmt.Errorf("%w: account %d not found", types.ErrInvariantViolation, op.AccountID)
		}
		before := acc.Balance(op.Token)
		if err := acc.ApplyBalanceDelta(op.Token, op.Amount, false); err != nil {
			return nil, err
		}
		updates := []types.AccountUpdate{{
			AccountID:  op.AccountID,
			Kind:       types.UpdateBalance,
			Token:      op.Token,
			OldBalance: before,
			NewBalance: acc.Balance(op.Token),
		}}
		if op.Kind == types.OpTransfer {
			to, ok := accounts[op.ToAccountID]
			if !ok {
				return nil, fmt.Errorf("%w: account %d not found", types.ErrInvariantViolation, op.ToAccountID)
			}
			toBefore := to.Balance(op.Token)
			if err := to.ApplyBalanceDelta(op.Token, op.Amount, false); err != nil {
				return nil, err
			}
			updates = append(updates, types.AccountUpdate{
				AccountID:  op.ToAccountID,
				Kind:       types.UpdateBalance,
				Token:      op.Token,
				OldBalance: toBefore,
				NewBalance: to.Balance(op.Token),
			})
		}
		return updates, nil

	case types.OpWithdraw, types.OpFullExit:
		acc, ok := accounts[op.AccountID]
		if !ok {
			return nil, fmt.Errorf("%w: account %d not found", types.ErrInvariantViolation, op.AccountID)
		}
		before := acc.Balance(op.Token)
		if err := acc.ApplyBalanceDelta(op.Token, op.Amount, true); err != nil {
			return nil, err
		}
		return []types.AccountUpdate{{
			AccountID:  op.AccountID,
			Kind:       types.UpdateBalance,
			Token:      op.Token,
			OldBalance: before,
			NewBalance: acc.Balance(op.Token),
		}}, nil

	case types.OpChangePubKey:
		acc, ok := accounts[op.AccountID]
		if !ok {
			return nil, fmt.Errorf("%w: account %d not found", types.ErrInvariantViolation, op.AccountID)
		}
		oldNonce := acc.Nonce
		if err := acc.BumpNonce(op.Nonce); err != nil {
			return nil, err
		}
		acc.PubKeyHash = op.PubKeyHash
		return []types.AccountUpdate{{
			AccountID:  op.AccountID,
			Kind:       types.UpdatePubKeyHash,
			PubKeyHash: op.PubKeyHash,
			OldNonce:   oldNonce,
			NewNonce:   acc.Nonce,
		}}, nil

	case types.OpNoop:
		return nil, nil

	default:
		return nil, fmt.Errorf("%w: kind %d", types.ErrInvariantViolation, op.Kind)
	}
}

func hashLeafAccount(a *types.Account) nodeHash {
	h := mimc.NewMiMC()
	if a == nil {
		return sumToNodeHash(h)
	}
	h.Write(a.Address.Bytes())
	var nonceBuf [4]byte
	binary.BigEndian.PutUint32(nonceBuf[:], a.Nonce)
	h.Write(nonceBuf[:])
	h.Write(a.PubKeyHash.Bytes())
	h.Write(balancesDigest(a))
	return sumToNodeHash(h)
}

// balancesDigest folds every nonzero token balance into a single
// digest in ascending token-id order, so map iteration order never
// affects the resulting hash.
func balancesDigest(a *types.Account) []byte {
	ids := make([]types.TokenID, 0, len(a.Balances))
	for id := range a.Balances {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	inner := mimc.NewMiMC()
	for _, id := range ids {
		bal := a.Balances[id]
		if bal == nil || bal.IsZero() {
			continue
		}
		var idBuf [4]byte
		binary.BigEndian.PutUint32(idBuf[:], uint32(id))
		inner.Write(idBuf[:])
		balBytes := bal.Bytes32()
		inner.Write(balBytes[:])
	}
	return inner.Sum(nil)
}

func hashPair(left, right nodeHash) nodeHash {
	h := mimc.NewMiMC()
	h.Write(left[:])
	h.Write(right[:])
	return sumToNodeHash(h)
}

func sumToNodeHash(h interface{ Sum([]byte) []byte }) nodeHash {
	var out nodeHash
	copy(out[:], h.Sum(nil))
	return out
}
