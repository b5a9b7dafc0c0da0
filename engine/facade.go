// Package engine implements the C8 engine façade of spec.md §4.8: the
// thread-safe handle the RPC layer and the P2P collaborator share to reach
// the consensus engine and mempool. It owns no state of its own beyond the
// tip-subscription hub — every query and mutation is delegated straight
// through to the consensus.Chain (single-writer, reader-lock reads) and
// mempool.Pool it wraps, matching the teacher's api/debug.HandlerT pattern
// of a thin struct fronting subsystems that already know how to be safe
// under concurrent access.
package engine

import (
	"time"

	"github.com/fjl/memsize"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/consensus"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/log"
	"github.com/numi-chain/numi-core/mempool"
	"github.com/numi-chain/numi-core/miner"
	"github.com/numi-chain/numi-core/params"
)

// Chain is the subset of *consensus.Chain the façade depends on. Declaring
// it narrows the dependency to what this package actually calls and keeps
// facade_test.go free of a real store when a fake suffices.
type Chain interface {
	GetChainState() types.ChainState
	GetBlockByHash(hash common.Hash) (*types.Block, error)
	GetBlockByHeight(height uint64) (*types.Block, error)
	GetAccount(key common.PubKey) (*types.AccountState, error)
	GetTransactionByID(txid common.Hash) (*types.Transaction, common.Hash, error)
	Submit(block *types.Block, now time.Time) (consensus.AdmissionResult, error)
	SubscribeNewTips(fn consensus.NewTipSubscriber) (unsubscribe func())
	TipHash() common.Hash
	TipHeight() uint64
	TipTimestamp() uint64
	CurrentDifficulty() uint32
}

// Pool is the subset of *mempool.Pool the façade depends on.
type Pool interface {
	Submit(tx *types.Transaction, now uint64) mempool.ValidationResult
	GetBlockTemplate(maxBytes uint64, maxCount int) []*types.Transaction
}

// Engine is the C8 façade. Every method is safe for concurrent use by
// multiple RPC handlers and the P2P collaborator simultaneously; none of
// them ever hold a lock across I/O (spec.md §4.8, §9 "copy out the minimum
// needed data, drop the read guard, then await").
type Engine struct {
	chain  Chain
	pool   Pool
	cfg    *params.ConsensusConfig
	logger log.Logger

	hub *tipHub
}

// New wires a façade over an already-bootstrapped chain and pool.
func New(chain Chain, pool Pool, cfg *params.ConsensusConfig) *Engine {
	e := &Engine{
		chain:  chain,
		pool:   pool,
		cfg:    cfg,
		logger: log.NewModuleLogger(log.Engine),
		hub:    newTipHub(),
	}
	chain.SubscribeNewTips(e.hub.publish)
	return e
}

// GetChainState returns a snapshot of the current chain head (spec.md
// §4.8 get_chain_state). Diagnostics.MemoryBytes surfaces a point-in-time
// fjl/memsize scan of the returned snapshot, per the domain-stack wiring
// decision recorded in DESIGN.md — it is a cheap scan of the small struct
// returned here, never of the live store.
type ChainStateWithDiagnostics struct {
	types.ChainState
	Diagnostics Diagnostics
}

// Diagnostics reports approximate in-process memory usage, the same
// surface klaytn's api/debug handler exposes over /memsize/.
type Diagnostics struct {
	MemoryBytes uintptr
	Report      string
}

func (e *Engine) GetChainState() ChainStateWithDiagnostics {
	state := e.chain.GetChainState()
	sizes := memsize.Scan(&state)
	return ChainStateWithDiagnostics{
		ChainState: state,
		Diagnostics: Diagnostics{
			MemoryBytes: sizes.Total,
			Report:      sizes.Report(),
		},
	}
}

// GetBlockByHash implements spec.md §4.8 get_block_by_hash.
func (e *Engine) GetBlockByHash(hash common.Hash) (*types.Block, error) {
	return e.chain.GetBlockByHash(hash)
}

// GetBlockByHeight implements spec.md §4.8 get_block_by_height.
func (e *Engine) GetBlockByHeight(height uint64) (*types.Block, error) {
	return e.chain.GetBlockByHeight(height)
}

// GetAccount implements spec.md §4.8 get_account.
func (e *Engine) GetAccount(key common.PubKey) (*types.AccountState, error) {
	return e.chain.GetAccount(key)
}

// GetTransactionByID implements the additive get_transaction_by_id
// (SPEC_FULL.md §EXP-5), resolving txid through the transactions table to
// its containing block.
func (e *Engine) GetTransactionByID(txid common.Hash) (*types.Transaction, common.Hash, error) {
	return e.chain.GetTransactionByID(txid)
}

// SubmitTransaction implements spec.md §4.8 submit_transaction: a pure
// delegation to the mempool, no RPC-side duplicate checks.
func (e *Engine) SubmitTransaction(tx *types.Transaction, now uint64) mempool.ValidationResult {
	return e.pool.Submit(tx, now)
}

// SubmitBlock implements spec.md §4.8 submit_block.
func (e *Engine) SubmitBlock(block *types.Block, now time.Time) (consensus.AdmissionResult, error) {
	return e.chain.Submit(block, now)
}

// BuildTemplate implements spec.md §4.8 build_template, reusing the C6
// template-construction logic directly rather than duplicating it — the
// façade's own job is only to supply the current tip and difficulty.
func (e *Engine) BuildTemplate(minerKey *crypto.KeyPair, now uint64) (*types.Block, error) {
	return miner.BuildTemplate(e.cfg, e.pool, e.chain.TipHash(), e.chain.TipHeight(), e.chain.TipTimestamp(), e.chain.CurrentDifficulty(), minerKey, now)
}
