package miner

import (
	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/params"
	"github.com/numi-chain/numi-core/xerrors"
)

// BlockVersion is the only header version this miner emits.
const BlockVersion = 1

// TemplateSource is the subset of the mempool a template builder needs
// (spec.md §9 rearchitected pattern — a narrow handle, not the whole pool).
type TemplateSource interface {
	GetBlockTemplate(maxBytes uint64, maxCount int) []*types.Transaction
}

// coinbaseReservation is a conservative upper bound on the serialized size
// of a MiningReward transaction, reserved out of MaxBlockSize before asking
// the mempool for its fee-ordered fill (spec.md §4.6 step 1).
const coinbaseReservation = 256

// BuildTemplate implements spec.md §4.6's template construction: pull
// fee-ordered transactions from pool, compute the coinbase amount, and
// assemble an unsealed block (header timestamp set, nonce still zero, no
// signature) ready for the PoW loop.
func BuildTemplate(cfg *params.ConsensusConfig, pool TemplateSource, tipHash common.Hash, tipHeight, tipTimestamp uint64, difficulty uint32, minerKey *crypto.KeyPair, now uint64) (*types.Block, error) {
	height := tipHeight + 1

	maxBytes := cfg.MaxBlockSize - coinbaseReservation
	maxCount := cfg.MaxTxPerBlock - 1
	if maxCount < 0 {
		maxCount = 0
	}
	txs := pool.GetBlockTemplate(maxBytes, maxCount)

	var fees uint64
	for _, tx := range txs {
		fees += tx.Fee
	}
	subsidy := cfg.Subsidy(height)

	coinbase := &types.Transaction{
		Data: types.TransactionData{
			Kind:        types.KindMiningReward,
			BlockHeight: height,
			Amount:      subsidy + fees,
		},
	}

	all := make([]*types.Transaction, 0, len(txs)+1)
	all = append(all, coinbase)
	all = append(all, txs...)

	timestamp := now
	if timestamp <= tipTimestamp {
		timestamp = tipTimestamp + 1
	}

	block := &types.Block{
		Header: types.BlockHeader{
			Version:        BlockVersion,
			Height:         height,
			Timestamp:      timestamp,
			PreviousHash:   tipHash,
			Difficulty:     difficulty,
			MinerPublicKey: minerKey.Public,
		},
		Transactions: all,
	}
	block.Header.MerkleRoot = block.ComputeMerkleRoot()

	if uint64(block.Size()) > cfg.MaxBlockSize {
		return nil, xerrors.StateError("template_exceeds_max_block_size", nil)
	}
	return block, nil
}
