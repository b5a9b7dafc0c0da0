package node_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numi-chain/numi-core/crypto/argon2params"
	"github.com/numi-chain/numi-core/node"
	"github.com/numi-chain/numi-core/params"
)

// cheapArgon2 keeps genesis mining and test mining instant.
func cheapArgon2() argon2params.Params {
	return argon2params.Params{MemoryCostKiB: 8, TimeCost: 1, Parallelism: 1, OutputLength: 32, SaltLength: 8}
}

func testConfig(t *testing.T) node.Config {
	t.Helper()
	cfg := node.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.DBType = node.DBMemory
	cfg.KeystoreDir = t.TempDir()
	cfg.KeystoreDev = true
	cfg.EnableHTTP = false
	consensus := params.MainnetConfig()
	consensus.InitialDifficulty = 1
	consensus.MinDifficulty = 1
	consensus.Argon2 = cheapArgon2()
	cfg.Consensus = consensus
	return cfg
}

func TestStartBootstrapsGenesisAndStopCloses(t *testing.T) {
	n := node.New(testConfig(t))
	require.NoError(t, n.Start())
	defer n.Stop()

	state := n.Engine().GetChainState()
	assert.Equal(t, uint64(0), state.TipHeight)
	assert.False(t, state.TipHash.IsZero())
}

func TestStartTwiceFails(t *testing.T) {
	n := node.New(testConfig(t))
	require.NoError(t, n.Start())
	defer n.Stop()

	err := n.Start()
	assert.Error(t, err)
}

func TestEnableHTTPExposesHandler(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableHTTP = true
	n := node.New(cfg)
	require.NoError(t, n.Start())
	defer n.Stop()

	assert.NotNil(t, n.HTTPHandler())
}

func TestDisabledHTTPHasNoHandler(t *testing.T) {
	n := node.New(testConfig(t))
	require.NoError(t, n.Start())
	defer n.Stop()

	assert.Nil(t, n.HTTPHandler())
}

func TestEnableMiningProducesBlocks(t *testing.T) {
	cfg := testConfig(t)
	cfg.EnableMining = true
	n := node.New(cfg)
	require.NoError(t, n.Start())
	defer n.Stop()

	require.Eventually(t, func() bool {
		return n.Engine().GetChainState().TipHeight >= 1
	}, 5*time.Second, 20*time.Millisecond)
}
