package miner_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/crypto/argon2params"
	"github.com/numi-chain/numi-core/miner"
	"github.com/numi-chain/numi-core/params"
)

func cheapArgon2() argon2params.Params {
	return argon2params.Params{MemoryCostKiB: 8, TimeCost: 1, Parallelism: 1, OutputLength: 32, SaltLength: 8}
}

func TestMineFindsValidNonceAndSignsHeader(t *testing.T) {
	minerKey, err := crypto.KeypairGenerate()
	require.NoError(t, err)

	block := &types.Block{
		Header: types.BlockHeader{
			Version:        1,
			Height:         1,
			Timestamp:      1000,
			Difficulty:     1,
			MinerPublicKey: minerKey.Public,
		},
	}
	block.Header.MerkleRoot = block.ComputeMerkleRoot()

	salt := []byte("test-salt")
	ok, err := miner.Mine(block, salt, cheapArgon2(), minerKey, 2, nil, nil)
	require.NoError(t, err)
	require.True(t, ok)

	assert.True(t, crypto.VerifyPow(block.Header.PowPreimage(), salt, block.Header.Nonce, cheapArgon2(), block.Header.Difficulty))
	assert.True(t, block.Header.VerifySignature())
}

func TestMineAbortsOnStop(t *testing.T) {
	minerKey, err := crypto.KeypairGenerate()
	require.NoError(t, err)

	block := &types.Block{
		Header: types.BlockHeader{
			Version:        1,
			Height:         1,
			Timestamp:      1000,
			Difficulty:     250, // near-impossible target keeps the search running
			MinerPublicKey: minerKey.Public,
		},
	}
	block.Header.MerkleRoot = block.ComputeMerkleRoot()

	stop := make(chan struct{})
	done := make(chan bool, 1)
	go func() {
		ok, err := miner.Mine(block, []byte("salt"), cheapArgon2(), minerKey, 2, nil, stop)
		require.NoError(t, err)
		done <- ok
	}()

	time.Sleep(20 * time.Millisecond)
	close(stop)

	select {
	case ok := <-done:
		assert.False(t, ok)
	case <-time.After(2 * time.Second):
		t.Fatal("Mine did not honor stop in time")
	}
}

func TestMinerNotifyNewTipAbortsInFlightSearch(t *testing.T) {
	minerKey, err := crypto.KeypairGenerate()
	require.NoError(t, err)

	cfg := testMainnetConfigWithCheapPow()
	pool := &fakePool{}
	chain := &fakeChainTip{difficulty: 250, height: 1} // unreachable difficulty: search never finds a nonce
	sink := &fakeSink{}

	m := miner.New(cfg, pool, chain, sink, minerKey, []byte("salt"), 2, nil, func() uint64 { return 1000 })
	m.Start()
	time.Sleep(20 * time.Millisecond)
	m.NotifyNewTip()
	time.Sleep(20 * time.Millisecond)
	m.Stop()

	assert.Equal(t, 0, len(sink.blocks))
}

type fakeChainTip struct {
	difficulty uint32
	height     uint64
}

func (f *fakeChainTip) TipHash() common.Hash        { return common.Hash{} }
func (f *fakeChainTip) TipHeight() uint64           { return f.height }
func (f *fakeChainTip) TipTimestamp() uint64        { return 900 }
func (f *fakeChainTip) CurrentDifficulty() uint32   { return f.difficulty }

type fakeSink struct {
	blocks []*types.Block
}

func (f *fakeSink) SubmitBlock(b *types.Block) error {
	f.blocks = append(f.blocks, b)
	return nil
}

func testMainnetConfigWithCheapPow() *params.ConsensusConfig {
	cfg := params.MainnetConfig()
	cfg.Argon2 = cheapArgon2()
	return cfg
}
