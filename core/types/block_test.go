package types_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/xerrors"

	"github.com/numi-chain/numi-core/core/types"
)

func coinbase(t *testing.T, height uint64, amount uint64, expiry uint64) *types.Transaction {
	t.Helper()
	return &types.Transaction{
		Data: types.TransactionData{
			Kind:        types.KindMiningReward,
			BlockHeight: height,
			Amount:      amount,
		},
		Expiry: expiry,
	}
}

func transfer(t *testing.T, kp *crypto.KeyPair, to common.PubKey, amount, nonce, fee, expiry uint64) *types.Transaction {
	t.Helper()
	tx := &types.Transaction{
		SenderPublicKey: kp.Public,
		Data:            types.TransactionData{Kind: types.KindTransfer, To: to, Amount: amount},
		Nonce:           nonce,
		Fee:             fee,
		Expiry:          expiry,
	}
	require.NoError(t, tx.Sign(kp))
	return tx
}

func buildValidBlock(t *testing.T) (*types.Block, *crypto.KeyPair) {
	t.Helper()
	miner, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	sender, err := crypto.KeypairGenerate()
	require.NoError(t, err)

	now := uint64(time.Now().Unix())
	txs := []*types.Transaction{
		coinbase(t, 1, 5000, now+3600),
		transfer(t, sender, miner.Public, 10, 0, 1, now+3600),
	}
	b := &types.Block{
		Header: types.BlockHeader{
			Version:        1,
			Height:         1,
			Timestamp:      now,
			Difficulty:     4,
			MinerPublicKey: miner.Public,
		},
		Transactions: txs,
	}
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	require.NoError(t, b.Header.Sign(miner))
	return b, miner
}

func TestSelfValidateAcceptsWellFormedBlock(t *testing.T) {
	b, _ := buildValidBlock(t)
	assert.NoError(t, b.SelfValidate(time.Now(), 1<<20, 500))
}

func TestSelfValidateRejectsFutureTimestamp(t *testing.T) {
	b, _ := buildValidBlock(t)
	b.Header.Timestamp = uint64(time.Now().Unix()) + types.MaxFutureSkewSeconds + 1000
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	err := b.SelfValidate(time.Now(), 1<<20, 500)
	require.Error(t, err)
	assert.True(t, xerrors.Of(err, xerrors.KindConsensusViolation))
}

func TestSelfValidateRejectsMissingCoinbase(t *testing.T) {
	b, miner := buildValidBlock(t)
	b.Transactions = b.Transactions[1:]
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	require.NoError(t, b.Header.Sign(miner))
	err := b.SelfValidate(time.Now(), 1<<20, 500)
	require.Error(t, err)
	assert.True(t, xerrors.Of(err, xerrors.KindConsensusViolation))
}

func TestSelfValidateRejectsExtraCoinbase(t *testing.T) {
	b, miner := buildValidBlock(t)
	b.Transactions = append(b.Transactions, coinbase(t, 1, 1, uint64(time.Now().Unix())+3600))
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	require.NoError(t, b.Header.Sign(miner))
	err := b.SelfValidate(time.Now(), 1<<20, 500)
	require.Error(t, err)
	assert.True(t, xerrors.Of(err, xerrors.KindConsensusViolation))
}

func TestSelfValidateRejectsBadTransactionSignature(t *testing.T) {
	b, miner := buildValidBlock(t)
	b.Transactions[1].Signature = []byte("not a valid signature")
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	require.NoError(t, b.Header.Sign(miner))
	err := b.SelfValidate(time.Now(), 1<<20, 500)
	require.Error(t, err)
	assert.True(t, xerrors.Of(err, xerrors.KindCryptoFailure))
}

func TestSelfValidateRejectsMerkleRootMismatch(t *testing.T) {
	b, _ := buildValidBlock(t)
	b.Header.MerkleRoot = common.Hash{}
	err := b.SelfValidate(time.Now(), 1<<20, 500)
	require.Error(t, err)
	assert.True(t, xerrors.Of(err, xerrors.KindMalformed))
}

func TestSelfValidateRejectsTooManyTransactions(t *testing.T) {
	b, miner := buildValidBlock(t)
	err := b.SelfValidate(time.Now(), 1<<20, 1)
	require.Error(t, err)
	assert.True(t, xerrors.Of(err, xerrors.KindMalformed))
	_ = miner
}

func TestSelfValidateRejectsOversizedBlock(t *testing.T) {
	b, _ := buildValidBlock(t)
	err := b.SelfValidate(time.Now(), 10, 500)
	require.Error(t, err)
	assert.True(t, xerrors.Of(err, xerrors.KindMalformed))
}

func TestBlockHashStableUnderSignatureChange(t *testing.T) {
	b, miner := buildValidBlock(t)
	h1 := b.Hash()
	require.NoError(t, b.Header.Sign(miner))
	assert.Equal(t, h1, b.Hash())
}

func TestCoinbaseAmountAndFeesTotal(t *testing.T) {
	b, _ := buildValidBlock(t)
	assert.Equal(t, uint64(5000), b.CoinbaseAmount())
	assert.Equal(t, uint64(1), b.FeesTotal())
}
