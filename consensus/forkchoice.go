package consensus

import (
	"bytes"
	"math/big"
	"time"

	"gopkg.in/fatih/set.v0"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/params"
	"github.com/numi-chain/numi-core/storage/database"
	"github.com/numi-chain/numi-core/xerrors"
)

// expectedDifficulty implements spec.md §4.7.3: constant between retarget
// boundaries, recomputed every RETARGET_INTERVAL blocks from the actual vs.
// expected span of the preceding interval, clamped to [1/4, 4] of the
// previous target before being converted back to an integer difficulty.
func (c *Chain) expectedDifficulty(parent *types.BlockMetadata) (uint32, error) {
	height := parent.Block.Header.Height + 1
	if height%c.cfg.RetargetInterval != 0 {
		return parent.Block.Header.Difficulty, nil
	}

	spanStartHeight := height - c.cfg.RetargetInterval
	startHash, ok := c.store.GetMainChainHashAt(spanStartHeight)
	if !ok {
		// Span predates recorded main-chain history (e.g. genesis-adjacent
		// retarget on a freshly bootstrapped chain); hold difficulty.
		return parent.Block.Header.Difficulty, nil
	}
	startMeta, err := c.store.GetBlockMetadata(startHash)
	if err != nil {
		return 0, err
	}

	actualSpan := int64(parent.Block.Header.Timestamp) - int64(startMeta.Block.Header.Timestamp)
	expectedSpan := int64(c.cfg.RetargetInterval * c.cfg.TargetBlockTime)
	if actualSpan <= 0 {
		actualSpan = 1
	}

	oldTarget := crypto.DifficultyToTarget(parent.Block.Header.Difficulty)
	newTarget := new(big.Int).Mul(oldTarget, big.NewInt(actualSpan))
	newTarget.Div(newTarget, big.NewInt(expectedSpan))

	minTarget := new(big.Int).Div(oldTarget, big.NewInt(4))
	maxTarget := new(big.Int).Mul(oldTarget, big.NewInt(4))
	if newTarget.Cmp(minTarget) < 0 {
		newTarget = minTarget
	}
	if newTarget.Cmp(maxTarget) > 0 {
		newTarget = maxTarget
	}

	difficulty := targetToDifficulty(newTarget)
	if difficulty < c.cfg.MinDifficulty {
		difficulty = c.cfg.MinDifficulty
	}
	return difficulty, nil
}

// targetToDifficulty inverts crypto.DifficultyToTarget: target ≈
// 2^(256-d) - 1, so d ≈ 256 - log2(target+1). big.Int.BitLen is
// floor(log2)+1, hence 257 - BitLen; it keeps the conversion deterministic and
// identical across nodes (spec.md §4.7.3 requires exactly that).
func targetToDifficulty(target *big.Int) uint32 {
	plusOne := new(big.Int).Add(target, big.NewInt(1))
	bits := plusOne.BitLen()
	d := 257 - bits
	if d < 0 {
		d = 0
	}
	return uint32(d)
}

// putTxIndexes records the {block_hash, index_in_block} of every
// transaction in block — coinbase included — as part of batch, so
// GetTxIndex can resolve a txid regardless of whether the block ever
// becomes a main-chain block (spec.md §4.4's transactions table).
func putTxIndexes(batch *database.WriteBatch, hash common.Hash, block *types.Block) {
	for i, tx := range block.Transactions {
		batch.PutTxIndex(tx.ID(), &database.TxIndex{BlockHash: hash, IndexInBlock: uint32(i)})
	}
}

// deleteTxIndexes removes the tx index entries of a block being unwound
// from the main chain during a reorg.
func deleteTxIndexes(batch *database.WriteBatch, block *types.Block) {
	for _, tx := range block.Transactions {
		batch.DeleteTxIndex(tx.ID())
	}
}

// validateAndApply runs spec.md §4.7.1 step 4 (context validation) against
// parent, then stores block as a Side block with its cumulative work. It
// never mutates the live account table — side blocks carry their own undo
// log, computed against a shadow state, so they can be promoted later
// without re-deriving anything.
func (c *Chain) validateAndApply(block *types.Block, parent *types.BlockMetadata, hash common.Hash, now time.Time, b *budget) (AdmissionResult, *types.BlockMetadata, error) {
	if parent == nil {
		return AdmissionRejected, nil, xerrors.ConsensusViolation("missing_parent_context", nil)
	}

	expectedHeight := parent.Block.Header.Height + 1
	if block.Header.Height != expectedHeight {
		return AdmissionRejected, nil, xerrors.ConsensusViolation("unexpected_height", nil)
	}
	if block.Header.Timestamp <= parent.Block.Header.Timestamp {
		return AdmissionRejected, nil, xerrors.ConsensusViolation("timestamp_not_increasing", nil)
	}
	expectedDifficulty, err := c.expectedDifficulty(parent)
	if err != nil {
		return AdmissionRejected, nil, err
	}
	if block.Header.Difficulty != expectedDifficulty {
		return AdmissionRejected, nil, xerrors.ConsensusViolation("unexpected_difficulty", nil)
	}
	coinbase := block.Coinbase()
	if coinbase == nil || coinbase.Data.BlockHeight != expectedHeight {
		return AdmissionRejected, nil, xerrors.ConsensusViolation("coinbase_height_mismatch", nil)
	}

	if err := b.check(); err != nil {
		return AdmissionValidationTimeout, nil, err
	}
	if !crypto.VerifyPow(block.Header.PowPreimage(), c.salt, block.Header.Nonce, c.cfg.Argon2, block.Header.Difficulty) {
		return AdmissionRejected, nil, xerrors.CryptoFailure("invalid_pow", nil)
	}
	if err := b.check(); err != nil {
		return AdmissionValidationTimeout, nil, err
	}
	if !block.Header.VerifySignature() {
		return AdmissionRejected, nil, xerrors.CryptoFailure("invalid_header_signature", nil)
	}

	cache, err := c.shadowCacheAtParent(parent)
	if err != nil {
		return AdmissionRejected, nil, err
	}
	undo, err := applyBlock(cache, block)
	if err != nil {
		return AdmissionRejected, nil, err
	}
	if block.CoinbaseAmount() > c.cfg.Subsidy(expectedHeight)+block.FeesTotal() {
		return AdmissionRejected, nil, xerrors.ConsensusViolation("coinbase_overpay", nil)
	}

	work := new(big.Int).Add(parent.CumulativeWork, params.WorkOf(block.Header.Difficulty))
	meta := &types.BlockMetadata{
		Block:          block,
		CumulativeWork: work,
		Status:         types.StatusSide,
		ReceivedAt:     uint64(now.Unix()),
		UndoLog:        undo,
	}

	if err := b.check(); err != nil {
		return AdmissionValidationTimeout, nil, err
	}
	batch := c.store.NewBatch()
	batch.PutBlockMetadata(hash, meta)
	putTxIndexes(batch, hash, block)
	if err := batch.Commit(); err != nil {
		return AdmissionRejected, nil, xerrors.StateError("side_block_commit_failed", err)
	}
	return AdmissionAccepted, meta, nil
}

// shadowCacheAtParent rebuilds the account state exactly as it would be
// immediately after parent, regardless of whether parent sits on the main
// chain or a side branch (spec.md §4.7.1 "re-run transaction validation
// against a shadow account state derived from the parent chain"). It walks
// from parent back to the lowest common ancestor with the current main
// tip, seeding from each main block's stored undo log, then replays the
// side branch's own blocks forward.
func (c *Chain) shadowCacheAtParent(parent *types.BlockMetadata) (*accountCache, error) {
	c.mu.RLock()
	tipHash, tipHeight := c.state.TipHash, c.state.TipHeight
	c.mu.RUnlock()

	if parent.Block.Hash() == tipHash {
		// Common, cheap case: extending the current main tip directly.
		return newAccountCache(c.store), nil
	}

	ancestorHash, ancestorHeight, err := c.findAncestor(parent.Block.Hash(), parent.Block.Header.Height, tipHash, tipHeight)
	if err != nil {
		return nil, err
	}

	cache := newAccountCache(c.store)
	for h := tipHeight; h > ancestorHeight; h-- {
		hash, ok := c.store.GetMainChainHashAt(h)
		if !ok {
			return nil, xerrors.StateError("main_chain_gap", nil)
		}
		meta, err := c.store.GetBlockMetadata(hash)
		if err != nil {
			return nil, err
		}
		for _, d := range meta.UndoLog {
			prev := d.Previous
			cache.seedDirect(d.Key, &prev)
		}
	}

	sidePath, err := c.collectSidePath(parent.Block.Hash(), ancestorHash)
	if err != nil {
		return nil, err
	}
	for _, hash := range sidePath {
		meta, err := c.store.GetBlockMetadata(hash)
		if err != nil {
			return nil, err
		}
		if _, err := applyBlock(cache, meta.Block); err != nil {
			return nil, err
		}
	}
	return cache.layered(), nil
}

// collectSidePath returns the block hashes strictly after ancestor up to
// and including leaf, oldest first.
func (c *Chain) collectSidePath(leaf, ancestor common.Hash) ([]common.Hash, error) {
	var path []common.Hash
	h := leaf
	for h != ancestor {
		path = append(path, h)
		meta, err := c.store.GetBlockMetadata(h)
		if err != nil {
			return nil, err
		}
		h = meta.Block.Header.PreviousHash
	}
	// reverse to oldest-first
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

// findAncestor walks both branches back to a common height, then in
// lockstep, to find the lowest common ancestor (spec.md §4.7.4 step 1).
func (c *Chain) findAncestor(aHash common.Hash, aHeight uint64, bHash common.Hash, bHeight uint64) (common.Hash, uint64, error) {
	stepBack := func(h common.Hash) (common.Hash, error) {
		meta, err := c.store.GetBlockMetadata(h)
		if err != nil {
			return common.Hash{}, err
		}
		return meta.Block.Header.PreviousHash, nil
	}
	var err error
	for aHeight > bHeight {
		if aHash, err = stepBack(aHash); err != nil {
			return common.Hash{}, 0, err
		}
		aHeight--
	}
	for bHeight > aHeight {
		if bHash, err = stepBack(bHash); err != nil {
			return common.Hash{}, 0, err
		}
		bHeight--
	}
	for aHash != bHash {
		if aHeight == 0 {
			return common.Hash{}, 0, xerrors.ConsensusViolation("no_common_ancestor", nil)
		}
		if aHash, err = stepBack(aHash); err != nil {
			return common.Hash{}, 0, err
		}
		if bHash, err = stepBack(bHash); err != nil {
			return common.Hash{}, 0, err
		}
		aHeight--
		bHeight--
	}
	return aHash, aHeight, nil
}

// betterChain reports whether challenger beats the current main tip under
// spec.md invariant 8: greatest cumulative_work, ties broken by the
// numerically lesser tip hash.
func betterChain(challengerWork *big.Int, challengerHash, currentHash common.Hash, currentWork *big.Int) bool {
	cmp := challengerWork.Cmp(currentWork)
	if cmp != 0 {
		return cmp > 0
	}
	return bytes.Compare(challengerHash.Bytes(), currentHash.Bytes()) < 0
}

// maybeReorg implements spec.md §4.7.4. It always runs the same
// ancestor/undo/replay machinery whether the winning block merely extends
// the current tip (ancestor == tip) or requires unwinding several blocks.
func (c *Chain) maybeReorg(candidate *types.BlockMetadata) (removed, added []*types.Block, reorged bool, err error) {
	c.mu.RLock()
	currentHash, currentWork := c.state.TipHash, c.state.CumulativeWork
	c.mu.RUnlock()

	candidateHash := candidate.Block.Hash()
	if !betterChain(candidate.CumulativeWork, candidateHash, currentHash, currentWork) {
		return nil, nil, false, nil
	}

	c.mu.RLock()
	tipHash, tipHeight, finalizedHeight := c.state.TipHash, c.state.TipHeight, c.state.FinalizedHeight
	c.mu.RUnlock()

	ancestorHash, ancestorHeight, err := c.findAncestor(candidateHash, candidate.Block.Header.Height, tipHash, tipHeight)
	if err != nil {
		return nil, nil, false, err
	}
	if ancestorHeight < finalizedHeight {
		c.logger.Warn("refusing reorg across finalized checkpoint", "ancestor_height", ancestorHeight, "finalized_height", finalizedHeight)
		return nil, nil, false, nil
	}

	removedHashes := make([]common.Hash, 0, tipHeight-ancestorHeight)
	for h := tipHeight; h > ancestorHeight; h-- {
		hash, ok := c.store.GetMainChainHashAt(h)
		if !ok {
			return nil, nil, false, xerrors.StateError("main_chain_gap", nil)
		}
		removedHashes = append(removedHashes, hash) // newest first
	}
	addedHashes, err := c.collectSidePath(candidateHash, ancestorHash)
	if err != nil {
		return nil, nil, false, err
	}

	// removedSet lets the added-branch walk below assert it never revisits
	// a block that is simultaneously being undone — a malformed or cyclic
	// previous_hash chain would otherwise silently corrupt the undo/apply
	// interleaving.
	removedSet := set.New(set.ThreadSafe)
	for _, h := range removedHashes {
		removedSet.Add(h)
	}

	cache := newAccountCache(c.store)
	removedBlocks := make([]*types.Block, 0, len(removedHashes))
	removedMetas := make([]*types.BlockMetadata, 0, len(removedHashes))
	for _, hash := range removedHashes {
		meta, err := c.store.GetBlockMetadata(hash)
		if err != nil {
			return nil, nil, false, err
		}
		removedBlocks = append(removedBlocks, meta.Block)
		removedMetas = append(removedMetas, meta)
		for _, d := range meta.UndoLog {
			prev := d.Previous
			cache.seedDirect(d.Key, &prev)
		}
	}

	addedBlocks := make([]*types.Block, 0, len(addedHashes))
	addedMetas := make([]*types.BlockMetadata, 0, len(addedHashes))
	for _, hash := range addedHashes {
		if removedSet.Has(hash) {
			return nil, nil, false, xerrors.StateError("reorg_branch_overlap", nil)
		}
		meta, err := c.store.GetBlockMetadata(hash)
		if err != nil {
			return nil, nil, false, err
		}
		if _, err := applyBlock(cache, meta.Block); err != nil {
			c.markInvalid(hash, meta.Block, time.Now())
			return nil, nil, false, xerrors.ConsensusViolation("reorg_branch_invalid", err)
		}
		addedBlocks = append(addedBlocks, meta.Block)
		addedMetas = append(addedMetas, meta)
	}

	batch := c.store.NewBatch()
	cache.flush(batch)
	for i, hash := range removedHashes {
		meta := removedMetas[i]
		meta.Status = types.StatusSide
		batch.PutBlockMetadata(hash, meta)
		batch.DeleteMainChainHashAt(tipHeight - uint64(i))
		deleteTxIndexes(batch, meta.Block)
	}
	for i, hash := range addedHashes {
		meta := addedMetas[i]
		meta.Status = types.StatusMain
		batch.PutBlockMetadata(hash, meta)
		batch.PutMainChainHashAt(ancestorHeight+uint64(i)+1, hash)
	}

	newDifficulty, err := c.expectedDifficulty(candidate)
	if err != nil {
		return nil, nil, false, err
	}
	totalSupply, err := c.recomputeTotalSupply(removedBlocks, addedBlocks)
	if err != nil {
		return nil, nil, false, err
	}

	newState := &types.ChainState{
		TipHash:           candidateHash,
		TipHeight:         candidate.Block.Header.Height,
		CumulativeWork:    candidate.CumulativeWork,
		CurrentDifficulty: newDifficulty,
		TotalSupply:       totalSupply,
	}
	newState.FinalizedHeight, newState.FinalizedHash, err = c.computeFinality(newState.TipHeight)
	if err != nil {
		return nil, nil, false, err
	}
	if newState.FinalizedHeight > ancestorHeight {
		// The finalized height lies on the branch being added, whose height
		// index entries are still only in this uncommitted batch.
		newState.FinalizedHash = addedHashes[newState.FinalizedHeight-ancestorHeight-1]
	}
	c.writeCheckpointIfDue(batch, newState)
	batch.PutChainState(newState)

	if err := batch.Commit(); err != nil {
		return nil, nil, false, xerrors.StateError("reorg_commit_failed", err)
	}

	c.mu.Lock()
	c.state = newState
	c.mu.Unlock()

	return removedBlocks, addedBlocks, true, nil
}

// recomputeTotalSupply adjusts the running minted-supply figure by the
// subsidies of the branches being swapped (spec.md §4.7.2, invariant 5 —
// fees are redistributions, not mint events, so only coinbase subsidies,
// not full coinbase.amount, move the figure).
func (c *Chain) recomputeTotalSupply(removed, added []*types.Block) (uint64, error) {
	c.mu.RLock()
	total := c.state.TotalSupply
	c.mu.RUnlock()
	for _, b := range removed {
		total -= c.cfg.Subsidy(b.Header.Height)
	}
	for _, b := range added {
		total += c.cfg.Subsidy(b.Header.Height)
	}
	return total, nil
}

// computeFinality implements spec.md §4.7.5: finalized_height = tip_height
// − K, floored at 0.
func (c *Chain) computeFinality(tipHeight uint64) (uint64, common.Hash, error) {
	if tipHeight < c.cfg.FinalityConfirmations {
		return 0, common.Hash{}, nil
	}
	finalizedHeight := tipHeight - c.cfg.FinalityConfirmations
	hash, ok := c.store.GetMainChainHashAt(finalizedHeight)
	if !ok {
		// The finalized block hasn't been indexed under its new height in
		// this same batch yet (reorg in progress); maybeReorg fills the
		// hash in from the branch it is adding.
		return finalizedHeight, common.Hash{}, nil
	}
	return finalizedHeight, hash, nil
}

// writeCheckpointIfDue persists a Checkpoint every CHECKPOINT_INTERVAL
// finalized blocks (spec.md §4.7.5).
func (c *Chain) writeCheckpointIfDue(batch *database.WriteBatch, state *types.ChainState) {
	if state.FinalizedHeight == 0 || c.cfg.CheckpointInterval == 0 {
		return
	}
	if state.FinalizedHeight%c.cfg.CheckpointInterval != 0 {
		return
	}
	cp := &types.Checkpoint{
		Height:         state.FinalizedHeight,
		BlockHash:      state.FinalizedHash,
		CumulativeWork: state.CumulativeWork,
	}
	batch.PutCheckpoint(cp)
}
