package types_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/xerrors"

	"github.com/numi-chain/numi-core/core/types"
)

func TestTransactionEncodeDecodeRoundTrip(t *testing.T) {
	sender, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	recipient, err := crypto.KeypairGenerate()
	require.NoError(t, err)

	memo := "payment"
	tx := &types.Transaction{
		SenderPublicKey: sender.Public,
		Data:            types.TransactionData{Kind: types.KindTransfer, To: recipient.Public, Amount: 100, Memo: &memo},
		Nonce:           3,
		Fee:             5,
		Expiry:          123456,
	}
	require.NoError(t, tx.Sign(sender))

	decoded, err := types.DecodeTransaction(tx.Encode())
	require.NoError(t, err)
	assert.Equal(t, tx.ID(), decoded.ID())
	assert.True(t, decoded.VerifySignature())
	assert.Equal(t, *tx.Data.Memo, *decoded.Data.Memo)
}

func TestTransactionIDIgnoresSignature(t *testing.T) {
	sender, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	tx := &types.Transaction{
		SenderPublicKey: sender.Public,
		Data:            types.TransactionData{Kind: types.KindTransfer, To: sender.Public, Amount: 1},
		Expiry:          1,
	}
	idBefore := tx.ID()
	require.NoError(t, tx.Sign(sender))
	assert.Equal(t, idBefore, tx.ID())
}

func TestTransactionRejectsOverlongMemo(t *testing.T) {
	sender, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	memo := strings.Repeat("x", 257)
	tx := &types.Transaction{
		SenderPublicKey: sender.Public,
		Data:            types.TransactionData{Kind: types.KindTransfer, To: sender.Public, Amount: 1, Memo: &memo},
		Expiry:          1,
	}
	require.NoError(t, tx.Sign(sender))

	_, err = types.DecodeTransaction(tx.Encode())
	require.Error(t, err)
	assert.True(t, xerrors.Of(err, xerrors.KindMalformed))
}

func TestTransactionDecodeKeepsUnsupportedKindFlag(t *testing.T) {
	sender, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	tx := &types.Transaction{
		SenderPublicKey: sender.Public,
		Data:            types.TransactionData{Kind: types.KindContractDeploy, ContractPayload: []byte{1, 2, 3}},
		Expiry:          1,
	}
	require.NoError(t, tx.Sign(sender))
	assert.True(t, tx.IsUnsupported())

	decoded, err := types.DecodeTransaction(tx.Encode())
	require.NoError(t, err)
	assert.True(t, decoded.IsUnsupported())
}

func TestTransactionDecodeRejectsGarbage(t *testing.T) {
	_, err := types.DecodeTransaction([]byte{0xff, 0xff, 0xff})
	require.Error(t, err)
	assert.True(t, xerrors.Of(err, xerrors.KindMalformed))
}

func TestCoinbaseIsNotVerifiedAsRegularTransaction(t *testing.T) {
	tx := &types.Transaction{
		Data: types.TransactionData{Kind: types.KindMiningReward, BlockHeight: 10, Amount: 5000},
	}
	assert.True(t, tx.IsCoinbase())
	assert.False(t, tx.IsUnsupported())
}
