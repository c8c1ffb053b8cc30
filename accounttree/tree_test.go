package accounttree

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/l2ops/staterestore/types"
)

func TestEmptyTreeRootIsStable(t *testing.T) {
	a := New()
	b := New()
	require.Equal(t, a.RootHash(), b.RootHash())
}

func TestApplyCreateAccountChangesRoot(t *testing.T) {
	tr := New()
	before := tr.RootHash()

	addr := common.HexToAddress("0x00000000000000000000000000000000000001")
	journal, err := tr.Apply([]types.Op{{Kind: types.OpCreateAccount, AccountID: 1, Address: addr}}, &types.PriorityOpCounter{})
	require.NoError(t, err)
	require.Len(t, journal, 1)
	require.Equal(t, types.UpdateCreate, journal[0].Kind)
	require.NotEqual(t, before, tr.RootHash())
}

func TestApplyDepositAndWithdraw(t *testing.T) {
	tr := New()
	addr := common.HexToAddress("0x00000000000000000000000000000000000002")
	_, err := tr.Apply([]types.Op{{Kind: types.OpCreateAccount, AccountID: 1, Address: addr}}, &types.PriorityOpCounter{})
	require.NoError(t, err)

	amt := uint256.NewInt(100)
	_, err = tr.Apply([]types.Op{{Kind: types.OpDeposit, AccountID: 1, Token: 0, Amount: amt}}, &types.PriorityOpCounter{})
	require.NoError(t, err)
	require.Equal(t, amt, tr.Accounts()[1].Balance(0))

	_, err = tr.Apply([]types.Op{{Kind: types.OpWithdraw, AccountID: 1, Token: 0, Amount: uint256.NewInt(40)}}, &types.PriorityOpCounter{})
	require.NoError(t, err)
	require.Equal(t, uint256.NewInt(60), tr.Accounts()[1].Balance(0))
}

func TestApplyWithdrawUnderflowRejected(t *testing.T) {
	tr := New()
	addr := common.HexToAddress("0x00000000000000000000000000000000000003")
	_, err := tr.Apply([]types.Op{{Kind: types.OpCreateAccount, AccountID: 1, Address: addr}}, &types.PriorityOpCounter{})
	require.NoError(t, err)

	_, err = tr.Apply([]types.Op{{Kind: types.OpWithdraw, AccountID: 1, Token: 0, Amount: uint256.NewInt(1)}}, &types.PriorityOpCounter{})
	require.ErrorIs(t, err, types.ErrInvariantViolation)
}

func TestApplyUnknownAccountRejected(t *testing.T) {
	tr := New()
	_, err := tr.Apply([]types.Op{{Kind: types.OpDeposit, AccountID: 99, Token: 0, Amount: uint256.NewInt(1)}}, &types.PriorityOpCounter{})
	require.ErrorIs(t, err, types.ErrInvariantViolation)
}

func TestDumpRestoreRoundTrip(t *testing.T) {
	tr := New()
	addr := common.HexToAddress("0x00000000000000000000000000000000000004")
	_, err := tr.Apply([]types.Op{
		{Kind: types.OpCreateAccount, AccountID: 1, Address: addr},
		{Kind: types.OpDeposit, AccountID: 1, Token: 0, Amount: uint256.NewInt(7)},
	}, &types.PriorityOpCounter{})
	require.NoError(t, err)

	blob, err := tr.Dump()
	require.NoError(t, err)

	restored, err := RestoreFromCache(blob)
	require.NoError(t, err)
	require.Equal(t, tr.RootHash(), restored.RootHash())
}

func TestLoadMatchesIncrementalApply(t *testing.T) {
	addr1 := common.HexToAddress("0x00000000000000000000000000000000000005")
	addr2 := common.HexToAddress("0x00000000000000000000000000000000000006")

	incremental := New()
	_, err := incremental.Apply([]types.Op{
		{Kind: types.OpCreateAccount, AccountID: 1, Address: addr1},
		{Kind: types.OpCreateAccount, AccountID: 2, Address: addr2},
		{Kind: types.OpDeposit, AccountID: 1, Token: 0, Amount: uint256.NewInt(5)},
	}, &types.PriorityOpCounter{})
	require.NoError(t, err)

	loaded := Load(incremental.Accounts())
	require.Equal(t, incremental.RootHash(), loaded.RootHash())
}
