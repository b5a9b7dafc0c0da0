package consensus

import (
	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/storage/database"
	"github.com/numi-chain/numi-core/xerrors"
)

// accountCache is a write-through working set of account states for a
// single block application: every account is read from the store at most
// once, mutated in place, and flushed to a batch at the end. It generalizes
// the teacher's blockchain/state statedb journal to the account model of
// spec.md §4.7.6, without the trie commitment layer this chain has no use
// for.
type accountCache struct {
	store *database.Store
	// base is an optional read-through overlay consulted before falling
	// back to the store — used to chain a fresh cache onto the result of
	// an earlier one without re-touching the earlier cache's own undo log
	// (see layered).
	base  map[string]*types.AccountState
	dirty map[string]*types.AccountState
	// touched preserves, for every account mutated for the first time in
	// this cache's lifetime, the exact state it held beforehand — the undo
	// log entry spec.md §4.7.4 asks block metadata to carry.
	touched []types.AccountDiff
	seen    map[string]bool
}

func newAccountCache(store *database.Store) *accountCache {
	return &accountCache{
		store: store,
		dirty: make(map[string]*types.AccountState),
		seen:  make(map[string]bool),
	}
}

// layered returns a fresh cache whose reads see c's current mutations as
// their baseline, without attributing them to the new cache's own undo
// log — used when a shadow-state replay needs to hand off from "state as
// of an ancestor chain" to "state as of right before this specific block".
func (c *accountCache) layered() *accountCache {
	base := make(map[string]*types.AccountState, len(c.dirty))
	for k, a := range c.dirty {
		cp := *a
		base[k] = &cp
	}
	return &accountCache{
		store: c.store,
		base:  base,
		dirty: make(map[string]*types.AccountState),
		seen:  make(map[string]bool),
	}
}

// seedDirect injects a known account state directly, bypassing undo-log
// recording — used to reconstruct a historical state from a chain of
// stored undo logs, where the "previous" values are already known rather
// than something to be discovered and recorded.
func (c *accountCache) seedDirect(key []byte, state *types.AccountState) {
	k := string(key)
	cp := *state
	c.dirty[k] = &cp
	c.seen[k] = true
}

func (c *accountCache) get(key common.PubKey) (*types.AccountState, error) {
	k := key.AccountKey()
	if a, ok := c.dirty[k]; ok {
		return a, nil
	}
	var a *types.AccountState
	if c.base != nil {
		if b, ok := c.base[k]; ok {
			cp := *b
			a = &cp
		}
	}
	if a == nil {
		stored, err := c.store.GetAccount(key)
		if err != nil {
			return nil, xerrors.StateError("account_lookup_failed", err)
		}
		a = stored
	}
	if !c.seen[k] {
		c.seen[k] = true
		prev := *a
		c.touched = append(c.touched, types.AccountDiff{Key: append([]byte(nil), key...), Previous: prev})
	}
	cp := *a
	c.dirty[k] = &cp
	return c.dirty[k], nil
}

// flush writes every mutated account into batch.
func (c *accountCache) flush(batch *database.WriteBatch) {
	for k, a := range c.dirty {
		batch.PutAccount(common.PubKey(k), a)
	}
}

// undoLog returns the per-account "before" snapshot recorded on first
// touch, in touch order — exactly the log spec.md §4.7.4 says to persist
// in the block's metadata at apply time.
func (c *accountCache) undoLog() []types.AccountDiff { return c.touched }

// applyTransaction mutates cache per spec.md §4.7.6. Index 0 of a block is
// always the coinbase and is applied by applyCoinbase instead.
func applyTransaction(cache *accountCache, tx *types.Transaction, minerKey common.PubKey) error {
	sender, err := cache.get(tx.SenderPublicKey)
	if err != nil {
		return err
	}
	if sender.Nonce+1 != tx.Nonce {
		return xerrors.ConsensusViolation("nonce_mismatch", nil)
	}
	total := tx.Data.Amount + tx.Fee
	if sender.Balance < total {
		return xerrors.ConsensusViolation("insufficient_balance", nil)
	}
	sender.Balance -= total
	sender.Nonce++

	recipient, err := cache.get(tx.Data.To)
	if err != nil {
		return err
	}
	recipient.Balance += tx.Data.Amount
	return nil
}

// applyCoinbase credits the miner with the coinbase amount (spec.md
// §4.7.6 "accounts[miner].balance += coinbase.amount").
func applyCoinbase(cache *accountCache, coinbase *types.Transaction, minerKey common.PubKey) error {
	miner, err := cache.get(minerKey)
	if err != nil {
		return err
	}
	miner.Balance += coinbase.Data.Amount
	return nil
}

// applyBlock applies every transaction of block to cache in order,
// coinbase first, returning the undo log to persist alongside the block's
// metadata. Callers are responsible for having already validated the
// block's coinbase cap and transaction signatures; this function only
// performs the per-account nonce/balance bookkeeping.
func applyBlock(cache *accountCache, block *types.Block) ([]types.AccountDiff, error) {
	coinbase := block.Coinbase()
	if coinbase == nil {
		return nil, xerrors.ConsensusViolation("missing_coinbase", nil)
	}
	if err := applyCoinbase(cache, coinbase, block.Header.MinerPublicKey); err != nil {
		return nil, err
	}
	for _, tx := range block.Transactions[1:] {
		if err := applyTransaction(cache, tx, block.Header.MinerPublicKey); err != nil {
			return nil, err
		}
	}
	return cache.undoLog(), nil
}
