// Package consensus implements the C7 consensus engine of spec.md §4.7:
// block admission, account-state application, difficulty retarget, fork
// choice/reorganization, and checkpoint/finality tracking, layered over
// the C4 persistent store. It is grounded on the teacher's blockchain/state
// account-mutation shape and storage/database batch-commit discipline,
// generalized from klaytn's EVM/Istanbul pipeline to spec.md's single-writer
// PoW account-based chain.
package consensus

import (
	"sync"
	"time"

	"github.com/aristanetworks/goarista/monotime"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/log"
	"github.com/numi-chain/numi-core/params"
	"github.com/numi-chain/numi-core/storage/database"
	"github.com/numi-chain/numi-core/xerrors"
)

// MempoolNotifier is the narrow handle the engine holds on the mempool:
// told about every block applied or unwound so pending transactions stay
// consistent with the best chain (spec.md §4.5 on_block_applied/on_reorg;
// SPEC_FULL.md §9 rearchitected-pattern explicit-handle decision).
type MempoolNotifier interface {
	OnBlockApplied(block *types.Block)
	OnReorg(removed, added []*types.Block)
}

// NewTipSubscriber receives every new tip hash/height the chain settles on,
// in admission order (spec.md §4.8 subscribe_new_tips).
type NewTipSubscriber func(hash common.Hash, height uint64)

// Chain is the C7 consensus engine. All state mutation is single-writer
// (spec.md §5 "the consensus engine itself is single-writer"); mu guards
// the in-memory tip cache and orphan pool, not the store itself, which has
// its own internal locking per table.
type Chain struct {
	store  *database.Store
	pool   MempoolNotifier
	cfg    *params.ConsensusConfig
	logger log.Logger

	// salt is the fixed Argon2id salt derived once from the genesis block
	// hash (spec.md §4.1 "the salt is a fixed chain constant derived from
	// the genesis block hash"); every PoW check in the chain's lifetime
	// uses this same value.
	salt []byte

	mu    sync.RWMutex
	state *types.ChainState

	orphans     map[common.Hash][]*types.Block
	orphanFIFO  []common.Hash
	orphanCount int

	subMu  sync.Mutex
	subs   map[string]NewTipSubscriber
	nextID int
}

// saltFromGenesis derives the chain's fixed Argon2id salt from the genesis
// block hash, truncated or zero-padded to the configured salt length
// (spec.md §4.1).
func saltFromGenesis(genesisHash common.Hash, cfg *params.ConsensusConfig) []byte {
	salt := make([]byte, cfg.Argon2.SaltLength)
	copy(salt, genesisHash[:])
	return salt
}

// New opens the consensus engine over an already-initialized store (a
// genesis block must already be the Main tip; see Bootstrap).
func New(store *database.Store, pool MempoolNotifier, cfg *params.ConsensusConfig) (*Chain, error) {
	state, err := store.GetChainState()
	if err != nil {
		return nil, err
	}
	genesisHash, ok := store.GetMainChainHashAt(0)
	if !ok {
		return nil, xerrors.StateError("genesis_not_found", nil)
	}
	return &Chain{
		store:   store,
		pool:    pool,
		cfg:     cfg,
		logger:  log.NewModuleLogger(log.Consensus),
		salt:    saltFromGenesis(genesisHash, cfg),
		state:   state,
		orphans: make(map[common.Hash][]*types.Block),
		subs:    make(map[string]NewTipSubscriber),
	}, nil
}

// Bootstrap writes the genesis block as height 0 of a fresh store and
// returns the resulting Chain. genesis.Header.PreviousHash must be the zero
// hash (spec.md §8 "Genesis: height 0 block has previous_hash = 0^32, no
// parent lookup, special signer is the genesis key; validation still runs
// all other rules").
func Bootstrap(store *database.Store, pool MempoolNotifier, cfg *params.ConsensusConfig, genesis *types.Block, now time.Time) (*Chain, error) {
	if genesis.Header.PreviousHash != (common.Hash{}) {
		return nil, xerrors.ConsensusViolation("genesis_previous_hash_not_zero", nil)
	}
	if genesis.Header.Height != 0 {
		return nil, xerrors.ConsensusViolation("genesis_height_not_zero", nil)
	}
	if err := genesis.SelfValidate(now, cfg.MaxBlockSize, cfg.MaxTxPerBlock); err != nil {
		return nil, err
	}

	cache := newAccountCache(store)
	undo, err := applyBlock(cache, genesis)
	if err != nil {
		return nil, err
	}

	work := params.WorkOf(genesis.Header.Difficulty)
	hash := genesis.Hash()
	meta := &types.BlockMetadata{
		Block:          genesis,
		CumulativeWork: work,
		Status:         types.StatusMain,
		ReceivedAt:     uint64(now.Unix()),
		UndoLog:        undo,
	}

	batch := store.NewBatch()
	batch.PutBlockMetadata(hash, meta)
	batch.PutMainChainHashAt(0, hash)
	putTxIndexes(batch, hash, genesis)
	cache.flush(batch)
	state := &types.ChainState{
		TipHash:           hash,
		TipHeight:         0,
		CumulativeWork:    work,
		CurrentDifficulty: genesis.Header.Difficulty,
		TotalSupply:       genesis.CoinbaseAmount(),
		FinalizedHeight:   0,
		FinalizedHash:     hash,
	}
	batch.PutChainState(state)
	if err := batch.Commit(); err != nil {
		return nil, err
	}

	return &Chain{
		store:   store,
		pool:    pool,
		cfg:     cfg,
		logger:  log.NewModuleLogger(log.Consensus),
		salt:    saltFromGenesis(hash, cfg),
		state:   state,
		orphans: make(map[common.Hash][]*types.Block),
		subs:    make(map[string]NewTipSubscriber),
	}, nil
}

// --- ChainTip (consumed directly by miner.Miner) ---

func (c *Chain) TipHash() common.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.TipHash
}

func (c *Chain) TipHeight() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.TipHeight
}

func (c *Chain) TipTimestamp() uint64 {
	c.mu.RLock()
	hash := c.state.TipHash
	c.mu.RUnlock()
	meta, err := c.store.GetBlockMetadata(hash)
	if err != nil {
		return 0
	}
	return meta.Block.Header.Timestamp
}

func (c *Chain) CurrentDifficulty() uint32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state.CurrentDifficulty
}

// Salt returns the chain's fixed Argon2id salt, derived once from the
// genesis block hash (spec.md §4.1).
func (c *Chain) Salt() []byte { return c.salt }

// GetChainState returns a copy of the current tip snapshot (spec.md §4.8
// get_chain_state). Callers never see the engine's internal pointer, per
// the "snapshot-returning queries" rearchitected pattern of spec.md §9.
func (c *Chain) GetChainState() types.ChainState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return *c.state
}

// GetAccount returns the account state for key as of the current tip
// (spec.md §4.8 get_account).
func (c *Chain) GetAccount(key common.PubKey) (*types.AccountState, error) {
	return c.store.GetAccount(key)
}

// GetBlockByHash returns the block stored under hash, main or side
// (spec.md §4.8 get_block_by_hash).
func (c *Chain) GetBlockByHash(hash common.Hash) (*types.Block, error) {
	meta, err := c.store.GetBlockMetadata(hash)
	if err != nil {
		return nil, err
	}
	return meta.Block, nil
}

// GetBlockByHeight returns the main-chain block at height (spec.md §4.8
// get_block_by_height).
func (c *Chain) GetBlockByHeight(height uint64) (*types.Block, error) {
	hash, ok := c.store.GetMainChainHashAt(height)
	if !ok {
		return nil, xerrors.NotFound("block")
	}
	return c.GetBlockByHash(hash)
}

// GetTransactionByID resolves txid through the transactions table to its
// containing block, then returns the transaction itself (the additive
// get_transaction_by_id of SPEC_FULL.md §EXP-5). The containing block may
// be a Side block; the index is written at admission time regardless of
// chain status, and removed when a reorg takes the block off the main chain.
func (c *Chain) GetTransactionByID(txid common.Hash) (*types.Transaction, common.Hash, error) {
	idx, err := c.store.GetTxIndex(txid)
	if err != nil {
		return nil, common.Hash{}, err
	}
	meta, err := c.store.GetBlockMetadata(idx.BlockHash)
	if err != nil {
		return nil, common.Hash{}, err
	}
	if int(idx.IndexInBlock) >= len(meta.Block.Transactions) {
		return nil, common.Hash{}, xerrors.StateError("tx_index_out_of_range", nil)
	}
	return meta.Block.Transactions[idx.IndexInBlock], idx.BlockHash, nil
}

// SubscribeNewTips registers fn to be called (outside any engine lock) for
// every new tip the chain settles on. It returns an unsubscribe function.
func (c *Chain) SubscribeNewTips(fn NewTipSubscriber) (unsubscribe func()) {
	c.subMu.Lock()
	c.nextID++
	key := subscriptionKey(c.nextID)
	c.subs[key] = fn
	c.subMu.Unlock()
	return func() {
		c.subMu.Lock()
		delete(c.subs, key)
		c.subMu.Unlock()
	}
}

func subscriptionKey(n int) string {
	b := make([]byte, 0, 8)
	for n > 0 || len(b) == 0 {
		b = append(b, byte('a'+n%26))
		n /= 26
	}
	return string(b)
}

func (c *Chain) publishNewTip(hash common.Hash, height uint64) {
	c.subMu.Lock()
	fns := make([]NewTipSubscriber, 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.subMu.Unlock()
	for _, fn := range fns {
		fn(hash, height)
	}
}

// budget tracks the wall-clock allowance for one SubmitBlock call (spec.md
// §4.7.1 "All block processing has a wall-clock budget... Budget checks
// occur at stable boundaries").
type budget struct {
	start   time.Duration
	maxMs   int64
}

func newBudget(maxMs int64) *budget { return &budget{start: monotime.Now(), maxMs: maxMs} }

func (b *budget) check() error {
	if b.maxMs <= 0 {
		return nil
	}
	elapsedMs := (monotime.Now() - b.start).Milliseconds()
	if elapsedMs > b.maxMs {
		return xerrors.ResourceError("validation_timeout", nil)
	}
	return nil
}

// SubmitBlock implements spec.md §4.7.1's eight-step admission pipeline.
func (c *Chain) SubmitBlock(block *types.Block) error {
	result, err := c.submitBlock(block, time.Now())
	if result == AdmissionValidationTimeout {
		return xerrors.ResourceError("validation_timeout", err)
	}
	if result == AdmissionRejected {
		return err
	}
	return nil
}

// Submit is the richer entry point the engine façade uses, returning the
// full AdmissionResult alongside any error detail.
func (c *Chain) Submit(block *types.Block, now time.Time) (AdmissionResult, error) {
	return c.submitBlock(block, now)
}

func (c *Chain) submitBlock(block *types.Block, now time.Time) (AdmissionResult, error) {
	b := newBudget(c.cfg.BlockProcessingBudgetMillis)
	hash := block.Hash()

	// Step 1: dedup.
	if existing, err := c.store.GetBlockMetadata(hash); err == nil {
		if existing.Status == types.StatusMain || existing.Status == types.StatusSide {
			return AdmissionAlreadyKnown, nil
		}
	}

	// Step 2: structural validation.
	if err := block.SelfValidate(now, c.cfg.MaxBlockSize, c.cfg.MaxTxPerBlock); err != nil {
		c.markInvalid(hash, block, now)
		return AdmissionRejected, err
	}
	if err := b.check(); err != nil {
		return AdmissionValidationTimeout, err
	}

	// Step 3: parent lookup (genesis has none).
	var parent *types.BlockMetadata
	if block.Header.Height > 0 {
		meta, err := c.store.GetBlockMetadata(block.Header.PreviousHash)
		if err != nil {
			c.storeOrphan(block)
			return AdmissionAwaitingParent, nil
		}
		parent = meta
	}

	// Step 4: context validation.
	result, workMeta, err := c.validateAndApply(block, parent, hash, now, b)
	if err != nil {
		if result != AdmissionValidationTimeout {
			c.markInvalid(hash, block, now)
			result = AdmissionRejected
		}
		return result, err
	}

	// Step 5: store as Side with cumulative work (done inside validateAndApply,
	// which returns the metadata already written to the batch/store).
	if err := b.check(); err != nil {
		return AdmissionValidationTimeout, err
	}

	// Step 6: fork choice.
	removed, added, reorged, err := c.maybeReorg(workMeta)
	if err != nil {
		return AdmissionRejected, err
	}

	// Step 7: process orphans transitively.
	replay := &orphanReplayErrors{}
	c.driveOrphans(hash, replay)

	// Step 8: notify mempool and subscribers — on_block_applied for a plain
	// extension of the current tip, on_reorg only when blocks were actually
	// unwound (spec.md §4.7.1 step 8, §4.5).
	if reorged {
		if len(removed) == 0 {
			c.pool.OnBlockApplied(block)
		} else {
			c.pool.OnReorg(removed, added)
		}
		c.publishNewTip(c.state.TipHash, c.state.TipHeight)
	}

	return AdmissionAccepted, replay.errorOrNil()
}

func (c *Chain) markInvalid(hash common.Hash, block *types.Block, now time.Time) {
	meta := &types.BlockMetadata{
		Block:      block,
		CumulativeWork: params.MaxU128(), // unused for Invalid; keeps Encode well-formed
		Status:     types.StatusInvalid,
		ReceivedAt: uint64(now.Unix()),
	}
	batch := c.store.NewBatch()
	batch.PutBlockMetadata(hash, meta)
	_ = batch.Commit()
}

func (c *Chain) storeOrphan(block *types.Block) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := block.Header.PreviousHash
	c.orphans[key] = append(c.orphans[key], block)
	hash := block.Hash()
	c.orphanFIFO = append(c.orphanFIFO, hash)
	c.orphanCount++
	if c.orphanCount > c.cfg.MaxOrphanPool {
		oldest := c.orphanFIFO[0]
		c.orphanFIFO = c.orphanFIFO[1:]
		c.evictOrphanByHash(oldest)
	}
}

func (c *Chain) evictOrphanByHash(hash common.Hash) {
	for parent, list := range c.orphans {
		for i, b := range list {
			if b.Hash() == hash {
				c.orphans[parent] = append(list[:i], list[i+1:]...)
				if len(c.orphans[parent]) == 0 {
					delete(c.orphans, parent)
				}
				c.orphanCount--
				return
			}
		}
	}
}

// driveOrphans re-drives admission for every orphan whose previous_hash is
// now known, transitively (spec.md §4.7.1 step 7).
func (c *Chain) driveOrphans(newlyKnown common.Hash, replay *orphanReplayErrors) {
	c.mu.Lock()
	pending := c.orphans[newlyKnown]
	delete(c.orphans, newlyKnown)
	c.mu.Unlock()
	if len(pending) == 0 {
		return
	}
	c.mu.Lock()
	c.orphanCount -= len(pending)
	fifo := make([]common.Hash, 0, len(c.orphanFIFO))
	pendingSet := make(map[common.Hash]bool, len(pending))
	for _, b := range pending {
		pendingSet[b.Hash()] = true
	}
	for _, h := range c.orphanFIFO {
		if !pendingSet[h] {
			fifo = append(fifo, h)
		}
	}
	c.orphanFIFO = fifo
	c.mu.Unlock()

	for _, orphan := range pending {
		result, err := c.submitBlock(orphan, time.Now())
		if result == AdmissionAccepted {
			c.driveOrphans(orphan.Hash(), replay)
		} else if result == AdmissionRejected {
			replay.add(err)
		}
	}
}
