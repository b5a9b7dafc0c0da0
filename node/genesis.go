package node

import (
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/miner"
	"github.com/numi-chain/numi-core/params"
	"github.com/numi-chain/numi-core/xerrors"
)

// buildGenesis assembles and seals the height-0 block that seeds a fresh
// chain: a single coinbase transaction minting InitialSubsidy to
// minerKey.Public, sealed against a zero salt (spec.md §8 "Genesis: height
// 0 block has previous_hash = 0^32, no parent lookup"; the real chain salt
// is only derivable from the genesis hash itself, so genesis mining always
// runs against the all-zero salt of the configured length).
func buildGenesis(cfg *params.ConsensusConfig, minerKey *crypto.KeyPair, timestamp uint64) (*types.Block, error) {
	block := &types.Block{
		Header: types.BlockHeader{
			Version:        miner.BlockVersion,
			Height:         0,
			Timestamp:      timestamp,
			Difficulty:     cfg.InitialDifficulty,
			MinerPublicKey: minerKey.Public,
		},
		Transactions: []*types.Transaction{{
			Data:   types.TransactionData{Kind: types.KindMiningReward, BlockHeight: 0, Amount: cfg.Subsidy(0)},
			Expiry: timestamp + 3600,
		}},
	}
	block.Header.MerkleRoot = block.ComputeMerkleRoot()

	salt := make([]byte, cfg.Argon2.SaltLength)
	ok, err := miner.Mine(block, salt, cfg.Argon2, minerKey, 1, nil, nil)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, xerrors.StateError("genesis_seal_failed", nil)
	}
	return block, nil
}
