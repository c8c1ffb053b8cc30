package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// ErrInvariantViolation is returned whenever applying an update would
// break a monotonicity invariant of the account model (balance
// underflow, non-monotone nonce). The restorer never recovers from
// this: it is one of the two error kinds the driver must not catch.
var ErrInvariantViolation = errors.New("account invariant violation")

// Account is one leaf of the account tree.
type Account struct {
	Address   common.Address
	Nonce     uint32
	PubKeyHash common.Hash
	Balances  map[TokenID]*uint256.Int
}

// NewAccount returns an empty account at address addr.
func NewAccount(addr common.Address) *Account {
	return &Account{
		Address:  addr,
		Balances: make(map[TokenID]*uint256.Int),
	}
}

// Clone returns a deep copy, so the tree can apply a block to a scratch
// copy and keep the previous accounts untouched if the block fails.
func (a *Account) Clone() *Account {
	cp := &Account{
		Address:    a.Address,
		Nonce:      a.Nonce,
		PubKeyHash: a.PubKeyHash,
		Balances:   make(map[TokenID]*uint256.Int, len(a.Balances)),
	}
	for id, bal := range a.Balances {
		cp.Balances[id] = new(uint256.Int).Set(bal)
	}
	return cp
}

// Balance returns the balance of token, or zero if the account has
// never held it.
func (a *Account) Balance(token TokenID) *uint256.Int {
	if bal, ok := a.Balances[token]; ok {
		return bal
	}
	return uint256.NewInt(0)
}

// ApplyBalanceDelta adds delta (which may be negative, represented by
// neg) to the account's balance in token, rejecting any update that
// would make the balance negative.
func (a *Account) ApplyBalanceDelta(token TokenID, delta *uint256.Int, neg bool) error {
	cur := a.Balance(token)
	var next uint256.Int
	if neg {
		if cur.Lt(delta) {
			return fmt.Errorf("%w: balance underflow for token %d (have %s, want to subtract %s)",
				ErrInvariantViolation, token, cur, delta)
		}
		next.Sub(cur, delta)
	} else {
		_, overflow := next.AddOverflow(cur, delta)
		if overflow {
			return fmt.Errorf("%w: balance overflow for token %d", ErrInvariantViolation, token)
		}
	}
	if a.Balances == nil {
		a.Balances = make(map[TokenID]*uint256.Int)
	}
	a.Balances[token] = &next
	return nil
}

// SetBalance sets an absolute balance, used only at genesis.
func (a *Account) SetBalance(token TokenID, amount *uint256.Int) {
	if a.Balances == nil {
		a.Balances = make(map[TokenID]*uint256.Int)
	}
	a.Balances[token] = new(uint256.Int).Set(amount)
}

// BumpNonce enforces the nonce-is-monotone invariant: the new nonce
// must equal the old nonce plus one.
func (a *Account) BumpNonce(expectedOld uint32) error {
	if a.Nonce != expectedOld {
		return fmt.Errorf("%w: nonce mismatch (have %d, expected %d)", ErrInvariantViolation, a.Nonce, expectedOld)
	}
	a.Nonce++
	return nil
}

// AccountMap is the full account set at a given block.
type AccountMap map[AccountID]*Account

// Clone returns a shallow copy of the map with deep-cloned accounts,
// so accounttree.Tree.Apply can work on a scratch copy of the map.
func (m AccountMap) Clone() AccountMap {
	cp := make(AccountMap, len(m))
	for id, acc := range m {
		cp[id] = acc.Clone()
	}
	return cp
}
