package types_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/core/types"
)

func TestBlockMetadataEncodeDecodeRoundTrip(t *testing.T) {
	b, _ := buildValidBlock(t)
	meta := &types.BlockMetadata{
		Block:          b,
		CumulativeWork: big.NewInt(1 << 20),
		Status:         types.StatusMain,
		ReceivedAt:     uint64(time.Now().Unix()),
	}
	decoded, err := types.DecodeBlockMetadata(meta.Encode())
	require.NoError(t, err)
	assert.Equal(t, meta.Block.Hash(), decoded.Block.Hash())
	assert.Equal(t, 0, meta.CumulativeWork.Cmp(decoded.CumulativeWork))
	assert.Equal(t, meta.Status, decoded.Status)
	assert.Equal(t, meta.ReceivedAt, decoded.ReceivedAt)
}

func TestChainStateEncodeDecodeRoundTrip(t *testing.T) {
	cs := &types.ChainState{
		TipHash:           common.BytesToHash([]byte("tip")),
		TipHeight:         42,
		CumulativeWork:    big.NewInt(1 << 30),
		CurrentDifficulty: 8,
		TotalSupply:       5000,
		FinalizedHeight:   10,
		FinalizedHash:     common.BytesToHash([]byte("finalized")),
	}
	decoded, err := types.DecodeChainState(cs.Encode())
	require.NoError(t, err)
	assert.Equal(t, cs.TipHash, decoded.TipHash)
	assert.Equal(t, cs.TipHeight, decoded.TipHeight)
	assert.Equal(t, 0, cs.CumulativeWork.Cmp(decoded.CumulativeWork))
	assert.Equal(t, cs.CurrentDifficulty, decoded.CurrentDifficulty)
	assert.Equal(t, cs.FinalizedHash, decoded.FinalizedHash)
}

func TestCheckpointEncodeDecodeRoundTrip(t *testing.T) {
	cp := &types.Checkpoint{
		Height:         2016,
		BlockHash:      common.BytesToHash([]byte("block")),
		CumulativeWork: big.NewInt(1 << 16),
		StateRoot:      common.BytesToHash([]byte("state")),
	}
	decoded, err := types.DecodeCheckpoint(cp.Encode())
	require.NoError(t, err)
	assert.Equal(t, cp.Height, decoded.Height)
	assert.Equal(t, cp.BlockHash, decoded.BlockHash)
	assert.Equal(t, 0, cp.CumulativeWork.Cmp(decoded.CumulativeWork))
	assert.Equal(t, cp.StateRoot, decoded.StateRoot)
}
