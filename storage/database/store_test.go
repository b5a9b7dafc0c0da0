package database_test

import (
	"bytes"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/storage/database"
)

func buildTestBlock(t *testing.T) *types.Block {
	t.Helper()
	miner, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	now := uint64(time.Now().Unix())
	b := &types.Block{
		Header: types.BlockHeader{
			Version:        1,
			Height:         1,
			Timestamp:      now,
			Difficulty:     4,
			MinerPublicKey: miner.Public,
		},
		Transactions: []*types.Transaction{{
			Data:   types.TransactionData{Kind: types.KindMiningReward, BlockHeight: 1, Amount: 5000},
			Expiry: now + 3600,
		}},
	}
	b.Header.MerkleRoot = b.ComputeMerkleRoot()
	require.NoError(t, b.Header.Sign(miner))
	return b
}

func TestStoreBlockMetadataRoundTrip(t *testing.T) {
	db := database.NewMemoryDB()
	s, err := database.NewStore(db, 16, 1<<20)
	require.NoError(t, err)

	block := buildTestBlock(t)
	meta := &types.BlockMetadata{Block: block, CumulativeWork: big.NewInt(16), Status: types.StatusMain, ReceivedAt: 1}

	batch := s.NewBatch()
	batch.PutBlockMetadata(block.Hash(), meta)
	batch.PutMainChainHashAt(block.Header.Height, block.Hash())
	require.NoError(t, batch.Commit())

	got, err := s.GetBlockMetadata(block.Hash())
	require.NoError(t, err)
	assert.Equal(t, block.Hash(), got.Block.Hash())

	hash, ok := s.GetMainChainHashAt(1)
	require.True(t, ok)
	assert.Equal(t, block.Hash(), hash)
}

func TestStoreAccountDefaultsToZeroValue(t *testing.T) {
	db := database.NewMemoryDB()
	s, err := database.NewStore(db, 16, 1<<20)
	require.NoError(t, err)

	acc, err := s.GetAccount(common.PubKey("nonexistent"))
	require.NoError(t, err)
	assert.True(t, acc.IsEmpty())
}

func TestStoreAccountBatchCommitPersistsAccount(t *testing.T) {
	db := database.NewMemoryDB()
	s, err := database.NewStore(db, 16, 1<<20)
	require.NoError(t, err)

	key := common.PubKey("alice")
	batch := s.NewBatch()
	batch.PutAccount(key, &types.AccountState{Balance: 100, Nonce: 1, CreatedAt: 10})
	require.NoError(t, batch.Commit())

	acc, err := s.GetAccount(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), acc.Balance)
}

func TestStoreExportRestoreRoundTrip(t *testing.T) {
	db := database.NewMemoryDB()
	s, err := database.NewStore(db, 16, 1<<20)
	require.NoError(t, err)

	key := common.PubKey("bob")
	batch := s.NewBatch()
	batch.PutAccount(key, &types.AccountState{Balance: 42, Nonce: 0, CreatedAt: 5})
	require.NoError(t, batch.Commit())

	var buf bytes.Buffer
	require.NoError(t, s.Export(&buf))

	db2 := database.NewMemoryDB()
	s2, err := database.NewStore(db2, 16, 1<<20)
	require.NoError(t, err)
	require.NoError(t, s2.Restore(&buf))

	acc, err := s2.GetAccount(key)
	require.NoError(t, err)
	assert.Equal(t, uint64(42), acc.Balance)
}

func TestStoreSchemaInfoRoundTrip(t *testing.T) {
	db := database.NewMemoryDB()
	s, err := database.NewStore(db, 16, 1<<20)
	require.NoError(t, err)

	require.NoError(t, s.PutSchemaInfo(&database.SchemaInfo{SchemaVersion: 1, ChainID: 7, CreatedAt: 100}))
	info, err := s.GetSchemaInfo()
	require.NoError(t, err)
	assert.Equal(t, uint32(1), info.SchemaVersion)
	assert.Equal(t, uint32(7), info.ChainID)
}
