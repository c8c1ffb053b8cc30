package restore

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"

	"github.com/l2ops/staterestore/accounttree"
	"github.com/l2ops/staterestore/types"
)

// TreeState owns the in-memory account tree and its journal of the
// most recently applied block's updates, the way
// data_restore_driver.rs's DataRestoreDriver owns `tree_state` and
// reapplies `update_tree_state` each time new ops appear.
type TreeState struct {
	tree   *accounttree.Tree
	last   []types.AccountUpdate
	serial types.PriorityOpCounter
}

// NewTreeState builds the genesis TreeState (§4.3 Genesis): a single
// fee account and a single NFT-custody account pre-seeded with the
// special token, both inserted directly rather than through Apply
// since genesis has no corresponding on-chain op.
func NewTreeState(feeAccount, nftAccount common.Address, special types.Token) *TreeState {
	accounts := types.AccountMap{}
	accounts[types.FeeAccountID] = types.NewAccount(feeAccount)

	nftID := types.AccountID(1)
	nft := types.NewAccount(nftAccount)
	// The NFT custody account is funded with a balance equal to
	// MinNFTTokenID so the first-ever mint has room to allocate ids
	// upward from it (§4.3 Genesis).
	nft.SetBalance(special.ID, uint256.NewInt(uint64(types.MinNFTTokenID)))
	accounts[nftID] = nft

	return &TreeState{tree: accounttree.Load(accounts)}
}

// LoadFromCache restores a tree from a previously persisted cache blob.
func LoadFromCache(blob []byte) (*TreeState, error) {
	tree, err := accounttree.RestoreFromCache(blob)
	if err != nil {
		return nil, NewCriticalError(err)
	}
	return &TreeState{tree: tree}, nil
}

// LoadFromAccounts rebuilds a tree from a complete account map, used
// at cold start when no tree cache is available.
func LoadFromAccounts(accounts types.AccountMap) *TreeState {
	return &TreeState{tree: accounttree.Load(accounts)}
}

// Apply applies one block's operations and records the resulting
// journal, returning a CriticalError (never a TemporaryError: a bad
// block is never solved by retrying) if any op violates an invariant.
// Priority ops (deposit/full-exit) are checked against the running
// priority_serial_id counter as they're applied, so a decoder bug that
// skips or reorders a priority op is caught here rather than silently
// producing a wrong tree.
func (s *TreeState) Apply(block types.RollupOpsBlock) error {
	journal, err := s.tree.Apply(block.Ops, &s.serial)
	if err != nil {
		return NewCriticalError(err)
	}
	s.last = journal
	return nil
}

// SeedPriorityOpSerial primes the priority-op counter from storage on
// restart, so the first priority op applied after a crash is still
// checked against whatever was last applied before it, rather than
// resetting monotonicity checking to "anything goes".
func (s *TreeState) SeedPriorityOpSerial(value uint64, found bool) {
	s.serial = types.PriorityOpCounter{Value: value, Seen: found}
}

// RootHash returns the tree's current Merkle root.
func (s *TreeState) RootHash() common.Hash { return s.tree.RootHash() }

// Accounts returns the live account map.
func (s *TreeState) Accounts() types.AccountMap { return s.tree.Accounts() }

// LastJournal returns the account-update journal produced by the most
// recent Apply call, for the storage interactor to persist.
func (s *TreeState) LastJournal() []types.AccountUpdate { return s.last }

// Dump serializes the tree for the tree cache row.
func (s *TreeState) Dump() ([]byte, error) { return s.tree.Dump() }
