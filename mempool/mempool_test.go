package mempool_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/mempool"
	"github.com/numi-chain/numi-core/params"
)

type fakeAccounts struct {
	accounts map[string]*types.AccountState
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{accounts: make(map[string]*types.AccountState)}
}

func (f *fakeAccounts) GetAccount(sender common.PubKey) (*types.AccountState, error) {
	if a, ok := f.accounts[sender.AccountKey()]; ok {
		return a, nil
	}
	return &types.AccountState{}, nil
}

func (f *fakeAccounts) set(kp *crypto.KeyPair, balance, nonce uint64) {
	f.accounts[kp.Public.AccountKey()] = &types.AccountState{Balance: balance, Nonce: nonce}
}

func testConfig() *params.ConsensusConfig {
	cfg := params.MainnetConfig()
	cfg.MinFee = 1
	cfg.FeeRateFloorPer10k = 1
	cfg.MaxSubmissionsPerAccountPerHour = 1000
	cfg.MaxPoolBytes = 1 << 20
	cfg.MaxPoolCount = 100
	return cfg
}

func signedTransfer(t *testing.T, kp *crypto.KeyPair, nonce, fee, amount, expiry uint64) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		SenderPublicKey: kp.Public,
		Data:            types.TransactionData{Kind: types.KindTransfer, To: common.PubKey("recipient"), Amount: amount},
		Nonce:           nonce,
		Fee:             fee,
		Expiry:          expiry,
	}
	require.NoError(t, tx.Sign(kp))
	return tx
}

func TestSubmitAcceptsValidTransaction(t *testing.T) {
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	accounts := newFakeAccounts()
	accounts.set(kp, 10_000, 0)

	pool := mempool.New(testConfig(), accounts, nil)
	tx := signedTransfer(t, kp, 1, 100, 500, 1_000_000)

	assert.Equal(t, mempool.Valid, pool.Submit(tx, 10))
	assert.Equal(t, 1, pool.PendingCount())
}

func TestSubmitRejectsStaleNonce(t *testing.T) {
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	accounts := newFakeAccounts()
	accounts.set(kp, 10_000, 5)

	pool := mempool.New(testConfig(), accounts, nil)
	tx := signedTransfer(t, kp, 5, 100, 500, 1_000_000)

	assert.Equal(t, mempool.InvalidNonce, pool.Submit(tx, 10))
}

func TestSubmitRejectsInsufficientBalance(t *testing.T) {
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	accounts := newFakeAccounts()
	accounts.set(kp, 100, 0)

	pool := mempool.New(testConfig(), accounts, nil)
	tx := signedTransfer(t, kp, 1, 100, 500, 1_000_000)

	assert.Equal(t, mempool.InsufficientBalance, pool.Submit(tx, 10))
}

func TestSubmitRejectsExpiredTransaction(t *testing.T) {
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	accounts := newFakeAccounts()
	accounts.set(kp, 10_000, 0)

	pool := mempool.New(testConfig(), accounts, nil)
	tx := signedTransfer(t, kp, 1, 100, 500, 5)

	assert.Equal(t, mempool.Expired, pool.Submit(tx, 10))
}

func TestSubmitRejectsMiningRewardSubmission(t *testing.T) {
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	accounts := newFakeAccounts()

	pool := mempool.New(testConfig(), accounts, nil)
	tx := &types.Transaction{
		SenderPublicKey: kp.Public,
		Data:            types.TransactionData{Kind: types.KindMiningReward, BlockHeight: 1, Amount: 5000},
		Expiry:          1_000_000,
	}

	assert.Equal(t, mempool.UnsupportedKind, pool.Submit(tx, 10))
}

func TestSubmitRejectsUnsupportedKind(t *testing.T) {
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	accounts := newFakeAccounts()
	accounts.set(kp, 10_000, 0)

	pool := mempool.New(testConfig(), accounts, nil)
	tx := &types.Transaction{
		SenderPublicKey: kp.Public,
		Data:            types.TransactionData{Kind: types.KindContractDeploy, ContractPayload: []byte("x")},
		Nonce:           1,
		Fee:             100,
		Expiry:          1_000_000,
	}
	require.NoError(t, tx.Sign(kp))

	assert.Equal(t, mempool.UnsupportedKind, pool.Submit(tx, 10))
}

func TestSubmitRBFReplacesOnSufficientFeeBump(t *testing.T) {
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	accounts := newFakeAccounts()
	accounts.set(kp, 1_000_000, 0)

	pool := mempool.New(testConfig(), accounts, nil)
	first := signedTransfer(t, kp, 1, 100, 500, 1_000_000)
	require.Equal(t, mempool.Valid, pool.Submit(first, 10))

	second := signedTransfer(t, kp, 1, 130, 500, 1_000_000)
	assert.Equal(t, mempool.Valid, pool.Submit(second, 11))
	assert.Equal(t, 1, pool.PendingCount())
}

func TestSubmitRBFRejectsInsufficientFeeBump(t *testing.T) {
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	accounts := newFakeAccounts()
	accounts.set(kp, 1_000_000, 0)

	pool := mempool.New(testConfig(), accounts, nil)
	first := signedTransfer(t, kp, 1, 100, 500, 1_000_000)
	require.Equal(t, mempool.Valid, pool.Submit(first, 10))

	second := signedTransfer(t, kp, 1, 110, 500, 1_000_000)
	assert.Equal(t, mempool.NonceConflict, pool.Submit(second, 11))
	assert.Equal(t, 1, pool.PendingCount())
}

func TestGetBlockTemplateOrdersByFeeRateAndRespectsNonceGaps(t *testing.T) {
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	accounts := newFakeAccounts()
	accounts.set(kp, 1_000_000, 0)

	pool := mempool.New(testConfig(), accounts, nil)
	low := signedTransfer(t, kp, 1, 100, 500, 1_000_000)
	high := signedTransfer(t, kp, 2, 200, 500, 1_000_000)
	gap := signedTransfer(t, kp, 4, 1000, 500, 1_000_000) // leaves a gap at nonce 3

	require.Equal(t, mempool.Valid, pool.Submit(low, 10))
	require.Equal(t, mempool.Valid, pool.Submit(high, 10))
	require.Equal(t, mempool.Valid, pool.Submit(gap, 10))

	template := pool.GetBlockTemplate(1<<20, 10)
	require.Len(t, template, 2)
	assert.Equal(t, uint64(1), template[0].Nonce)
	assert.Equal(t, uint64(2), template[1].Nonce)
}

func TestOnBlockAppliedRemovesIncludedTransactions(t *testing.T) {
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	accounts := newFakeAccounts()
	accounts.set(kp, 1_000_000, 0)

	pool := mempool.New(testConfig(), accounts, nil)
	tx := signedTransfer(t, kp, 1, 100, 500, 1_000_000)
	require.Equal(t, mempool.Valid, pool.Submit(tx, 10))

	block := &types.Block{Transactions: []*types.Transaction{tx}}
	pool.OnBlockApplied(block)

	assert.Equal(t, 0, pool.PendingCount())
}

func TestTickEvictsExpiredTransactions(t *testing.T) {
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	accounts := newFakeAccounts()
	accounts.set(kp, 1_000_000, 0)

	pool := mempool.New(testConfig(), accounts, nil)
	tx := signedTransfer(t, kp, 1, 100, 500, 100)
	require.Equal(t, mempool.Valid, pool.Submit(tx, 10))

	pool.Tick(200)
	assert.Equal(t, 0, pool.PendingCount())
}

func TestPoolFullEvictsLowestFeeRateFirst(t *testing.T) {
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	accounts := newFakeAccounts()
	accounts.set(kp, 100_000_000, 0)

	cfg := testConfig()
	cfg.MaxPoolCount = 1
	pool := mempool.New(cfg, accounts, nil)

	cheap := signedTransfer(t, kp, 1, 100, 500, 1_000_000)
	require.Equal(t, mempool.Valid, pool.Submit(cheap, 10))

	expensive := signedTransfer(t, kp, 2, 100_000, 500, 1_000_000)
	assert.Equal(t, mempool.Valid, pool.Submit(expensive, 11))
	assert.Equal(t, 1, pool.PendingCount())

	template := pool.GetBlockTemplate(1<<20, 10)
	// The surviving entry is whichever fee-rate is now highest; since the
	// cheap tx's nonce (1) was evicted, nonce 2 is no longer contiguous from
	// account.nonce+1 and so is not template-eligible — this still confirms
	// the low fee-rate entry, not the high one, was the one evicted.
	assert.Len(t, template, 0)
}
