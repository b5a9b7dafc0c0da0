package consensus

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/storage/database"
)

// requireAccountEqual compares two account states field by field, dumping
// both sides with spew on mismatch — applyTransaction failures otherwise
// collapse to an unhelpful "not equal" on the whole struct.
func requireAccountEqual(t *testing.T, want, got *types.AccountState) {
	t.Helper()
	if want.Balance != got.Balance || want.Nonce != got.Nonce {
		t.Fatalf("account state mismatch\nwant: %s\ngot:  %s", spew.Sdump(want), spew.Sdump(got))
	}
}

func newTestCache(t *testing.T) (*accountCache, *database.Store) {
	t.Helper()
	store, err := database.NewStore(database.NewMemoryDB(), 16, 1<<20)
	require.NoError(t, err)
	return newAccountCache(store), store
}

func TestAccountCacheRecordsUndoLogOnFirstTouchOnly(t *testing.T) {
	cache, _ := newTestCache(t)
	key := common.PubKey("alice")

	a, err := cache.get(key)
	require.NoError(t, err)
	a.Balance = 100

	a2, err := cache.get(key)
	require.NoError(t, err)
	a2.Balance = 200

	undo := cache.undoLog()
	require.Len(t, undo, 1)
	assert.Equal(t, uint64(0), undo[0].Previous.Balance)
}

func TestAccountCacheSeedDirectBypassesUndoLog(t *testing.T) {
	cache, _ := newTestCache(t)
	key := []byte("bob")
	cache.seedDirect(key, &types.AccountState{Balance: 999, Nonce: 3})

	a, err := cache.get(common.PubKey(key))
	require.NoError(t, err)
	assert.Equal(t, uint64(999), a.Balance)
	assert.Empty(t, cache.undoLog())
}

func TestAccountCacheLayeredReadsThroughToParentDirty(t *testing.T) {
	cache, _ := newTestCache(t)
	key := common.PubKey("carol")

	a, err := cache.get(key)
	require.NoError(t, err)
	a.Balance = 50

	layered := cache.layered()
	b, err := layered.get(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), b.Balance)

	// Mutating through the layered cache must not touch the parent's own
	// dirty set.
	b.Balance = 70
	assert.Equal(t, uint64(50), cache.dirty[key.AccountKey()].Balance)
	// And the layered cache's own undo log records 50 as the "before" state.
	undo := layered.undoLog()
	require.Len(t, undo, 1)
	assert.Equal(t, uint64(50), undo[0].Previous.Balance)
}

func TestApplyTransactionRejectsNonceMismatch(t *testing.T) {
	cache, _ := newTestCache(t)
	sender := common.PubKey("sender")
	acc, err := cache.get(sender)
	require.NoError(t, err)
	acc.Balance = 1000

	tx := &types.Transaction{
		SenderPublicKey: sender,
		Data:            types.TransactionData{Kind: types.KindTransfer, To: common.PubKey("dest"), Amount: 10},
		Nonce:           5, // account nonce is 0, so only nonce==1 is valid
		Fee:             1,
	}
	err = applyTransaction(cache, tx, common.PubKey("miner"))
	require.Error(t, err)
}

func TestApplyTransactionRejectsInsufficientBalance(t *testing.T) {
	cache, _ := newTestCache(t)
	sender := common.PubKey("sender")
	acc, err := cache.get(sender)
	require.NoError(t, err)
	acc.Balance = 5

	tx := &types.Transaction{
		SenderPublicKey: sender,
		Data:            types.TransactionData{Kind: types.KindTransfer, To: common.PubKey("dest"), Amount: 10},
		Nonce:           1,
		Fee:             1,
	}
	err = applyTransaction(cache, tx, common.PubKey("miner"))
	require.Error(t, err)
}

func TestApplyTransactionMovesBalanceAndBumpsNonce(t *testing.T) {
	cache, _ := newTestCache(t)
	sender := common.PubKey("sender")
	dest := common.PubKey("dest")
	acc, err := cache.get(sender)
	require.NoError(t, err)
	acc.Balance = 1000

	tx := &types.Transaction{
		SenderPublicKey: sender,
		Data:            types.TransactionData{Kind: types.KindTransfer, To: dest, Amount: 100},
		Nonce:           1,
		Fee:             5,
	}
	require.NoError(t, applyTransaction(cache, tx, common.PubKey("miner")))

	senderAcc, err := cache.get(sender)
	require.NoError(t, err)
	requireAccountEqual(t, &types.AccountState{Balance: 1000 - 100 - 5, Nonce: 1}, senderAcc)

	destAcc, err := cache.get(dest)
	require.NoError(t, err)
	requireAccountEqual(t, &types.AccountState{Balance: 100, Nonce: 0}, destAcc)
}
