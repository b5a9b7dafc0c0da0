package database

import (
	"encoding/binary"

	"github.com/VictoriaMetrics/fastcache"
	lru "github.com/hashicorp/golang-lru"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/xerrors"
)

// Table key prefixes for the seven logical tables of spec.md §4.4.
const (
	prefixBlocks       = "b"
	prefixHeightIndex  = "h"
	prefixTransactions = "t"
	prefixAccounts     = "a"
	prefixCheckpoints  = "c"
	prefixState        = "s"
	prefixMeta         = "m"
)

var stateKeyChainState = []byte("chain_state")

// TxIndex is the transactions table's value: {block_hash, index_in_block}.
type TxIndex struct {
	BlockHash    common.Hash
	IndexInBlock uint32
}

func (t *TxIndex) encode() []byte {
	b := make([]byte, common.HashLength+4)
	copy(b, t.BlockHash[:])
	binary.BigEndian.PutUint32(b[common.HashLength:], t.IndexInBlock)
	return b
}

func decodeTxIndex(b []byte) (*TxIndex, error) {
	if len(b) != common.HashLength+4 {
		return nil, xerrors.StateError("tx_index_corrupt", nil)
	}
	return &TxIndex{
		BlockHash:    common.BytesToHash(b[:common.HashLength]),
		IndexInBlock: binary.BigEndian.Uint32(b[common.HashLength:]),
	}, nil
}

// Store is the C4 persistent store: the seven logical tables of spec.md
// §4.4 layered over one physical Database handle, with the account and
// block-metadata tables read through an LRU plus a byte-budgeted fastcache
// (the same two-tier cache shape the teacher's trie/state layer uses —
// common/cache.go wraps hashicorp/golang-lru the same way).
type Store struct {
	db Database

	blocks       *table
	heightIndex  *table
	transactions *table
	accounts     *table
	checkpoints  *table
	state        *table
	meta         *table

	blockCache   *lru.Cache
	accountCache *fastcache.Cache
}

// NewStore opens a Store over db. accountCacheBytes sizes the account
// table's fastcache; a value of 0 or less selects 32 MiB, and a
// blockCacheEntries of 0 or less selects 256.
func NewStore(db Database, blockCacheEntries int, accountCacheBytes int) (*Store, error) {
	if blockCacheEntries <= 0 {
		blockCacheEntries = 256
	}
	blockCache, err := lru.New(blockCacheEntries)
	if err != nil {
		return nil, xerrors.ResourceError("store_block_cache_init", err)
	}
	if accountCacheBytes <= 0 {
		accountCacheBytes = 32 * 1024 * 1024
	}
	return &Store{
		db:           db,
		blocks:       newTable(db, prefixBlocks),
		heightIndex:  newTable(db, prefixHeightIndex),
		transactions: newTable(db, prefixTransactions),
		accounts:     newTable(db, prefixAccounts),
		checkpoints:  newTable(db, prefixCheckpoints),
		state:        newTable(db, prefixState),
		meta:         newTable(db, prefixMeta),
		blockCache:   blockCache,
		accountCache: fastcache.New(accountCacheBytes),
	}, nil
}

func heightKey(height uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, height)
	return b
}

// GetBlockMetadata looks up a block by hash, consulting the LRU first.
func (s *Store) GetBlockMetadata(hash common.Hash) (*types.BlockMetadata, error) {
	if v, ok := s.blockCache.Get(hash); ok {
		return v.(*types.BlockMetadata), nil
	}
	raw, err := s.blocks.Get(hash.Bytes())
	if err != nil {
		return nil, xerrors.NotFound("block")
	}
	meta, err := types.DecodeBlockMetadata(raw)
	if err != nil {
		return nil, xerrors.StateError("block_metadata_corrupt", err)
	}
	s.blockCache.Add(hash, meta)
	return meta, nil
}

// GetMainChainHashAt returns the main-chain block hash at height, if any.
func (s *Store) GetMainChainHashAt(height uint64) (common.Hash, bool) {
	raw, err := s.heightIndex.Get(heightKey(height))
	if err != nil || len(raw) != common.HashLength {
		return common.Hash{}, false
	}
	return common.BytesToHash(raw), true
}

// GetTxIndex resolves a txid to its containing block.
func (s *Store) GetTxIndex(txid common.Hash) (*TxIndex, error) {
	raw, err := s.transactions.Get(txid.Bytes())
	if err != nil {
		return nil, xerrors.NotFound("transaction")
	}
	return decodeTxIndex(raw)
}

// GetAccount returns the account state for key, or the zero value if absent
// (spec.md §4.7.6 "a missing entry is the zero value, not an error").
func (s *Store) GetAccount(key common.PubKey) (*types.AccountState, error) {
	if cached, ok := s.accountCache.HasGet(nil, key); ok {
		return types.DecodeAccountState(cached)
	}
	raw, err := s.accounts.Get([]byte(key.AccountKey()))
	if err != nil {
		return &types.AccountState{}, nil
	}
	s.accountCache.Set([]byte(key.AccountKey()), raw)
	return types.DecodeAccountState(raw)
}

// GetCheckpoint returns the checkpoint recorded at height.
func (s *Store) GetCheckpoint(height uint64) (*types.Checkpoint, error) {
	raw, err := s.checkpoints.Get(heightKey(height))
	if err != nil {
		return nil, xerrors.NotFound("checkpoint")
	}
	return types.DecodeCheckpoint(raw)
}

// GetChainState returns the persisted ChainState snapshot.
func (s *Store) GetChainState() (*types.ChainState, error) {
	raw, err := s.state.Get(stateKeyChainState)
	if err != nil {
		return nil, xerrors.NotFound("chain_state")
	}
	return types.DecodeChainState(raw)
}

// SchemaInfo is the meta table's contents: schema version, chain id, and
// node creation time (spec.md §4.4 "meta: schema version, chain id, created_at").
type SchemaInfo struct {
	SchemaVersion uint32
	ChainID       uint32
	CreatedAt     uint64
}

var metaKeySchema = []byte("schema")

func (i *SchemaInfo) encode() []byte {
	b := make([]byte, 4+4+8)
	binary.BigEndian.PutUint32(b[0:4], i.SchemaVersion)
	binary.BigEndian.PutUint32(b[4:8], i.ChainID)
	binary.BigEndian.PutUint64(b[8:16], i.CreatedAt)
	return b
}

func decodeSchemaInfo(b []byte) (*SchemaInfo, error) {
	if len(b) != 16 {
		return nil, xerrors.StateError("schema_info_corrupt", nil)
	}
	return &SchemaInfo{
		SchemaVersion: binary.BigEndian.Uint32(b[0:4]),
		ChainID:       binary.BigEndian.Uint32(b[4:8]),
		CreatedAt:     binary.BigEndian.Uint64(b[8:16]),
	}, nil
}

// GetSchemaInfo returns the meta table's schema/chain-id/created_at record.
func (s *Store) GetSchemaInfo() (*SchemaInfo, error) {
	raw, err := s.meta.Get(metaKeySchema)
	if err != nil {
		return nil, xerrors.NotFound("schema_info")
	}
	return decodeSchemaInfo(raw)
}

// PutSchemaInfo writes the meta table's record directly (outside the batch
// path — it is written once at genesis, never as part of a consensus
// state transition).
func (s *Store) PutSchemaInfo(info *SchemaInfo) error {
	if err := s.meta.Put(metaKeySchema, info.encode()); err != nil {
		return xerrors.StateError("schema_info_write_failed", err)
	}
	return nil
}

// NewBatch starts a cross-table write batch. Every PutXxx call below is
// buffered against the single underlying Database.Batch, so Commit lands
// them all atomically or none (spec.md §4.4 "either all ... land, or none").
func (s *Store) NewBatch() *WriteBatch {
	return &WriteBatch{store: s, raw: s.db.NewBatch()}
}

// WriteBatch is the concrete batch handle returned to callers (consensus's
// block-apply and reorg paths). blockCache/
// accountCache entries are staged here rather than written immediately,
// so a batch that never commits (or fails to commit) can never leave the
// shared read caches holding state that was never made durable.
type WriteBatch struct {
	store *Store
	raw   Batch

	pendingBlocks   map[common.Hash]*types.BlockMetadata
	pendingAccounts map[string][]byte
}

func (b *WriteBatch) PutBlockMetadata(hash common.Hash, meta *types.BlockMetadata) {
	b.raw.Put(append([]byte(prefixBlocks), hash.Bytes()...), meta.Encode())
	if b.pendingBlocks == nil {
		b.pendingBlocks = make(map[common.Hash]*types.BlockMetadata, 1)
	}
	b.pendingBlocks[hash] = meta
}

func (b *WriteBatch) PutMainChainHashAt(height uint64, hash common.Hash) {
	b.raw.Put(append([]byte(prefixHeightIndex), heightKey(height)...), hash.Bytes())
}

func (b *WriteBatch) DeleteMainChainHashAt(height uint64) {
	b.raw.Delete(append([]byte(prefixHeightIndex), heightKey(height)...))
}

func (b *WriteBatch) PutTxIndex(txid common.Hash, idx *TxIndex) {
	b.raw.Put(append([]byte(prefixTransactions), txid.Bytes()...), idx.encode())
}

func (b *WriteBatch) DeleteTxIndex(txid common.Hash) {
	b.raw.Delete(append([]byte(prefixTransactions), txid.Bytes()...))
}

func (b *WriteBatch) PutAccount(key common.PubKey, state *types.AccountState) {
	accKey := append([]byte(prefixAccounts), []byte(key.AccountKey())...)
	encoded := state.Encode()
	b.raw.Put(accKey, encoded)
	if b.pendingAccounts == nil {
		b.pendingAccounts = make(map[string][]byte, 1)
	}
	b.pendingAccounts[key.AccountKey()] = encoded
}

func (b *WriteBatch) PutCheckpoint(cp *types.Checkpoint) {
	b.raw.Put(append([]byte(prefixCheckpoints), heightKey(cp.Height)...), cp.Encode())
}

func (b *WriteBatch) PutChainState(cs *types.ChainState) {
	b.raw.Put(append([]byte(prefixState), stateKeyChainState...), cs.Encode())
}

// Commit writes every buffered change atomically, then — and only on
// success — applies the staged block/account entries to the shared read
// caches, so a failed write can never leave them out of sync with the
// durable store.
func (b *WriteBatch) Commit() error {
	if err := b.raw.Write(); err != nil {
		return xerrors.StateError("batch_commit_failed", err)
	}
	for hash, meta := range b.pendingBlocks {
		b.store.blockCache.Add(hash, meta)
	}
	for key, encoded := range b.pendingAccounts {
		b.store.accountCache.Set([]byte(key), encoded)
	}
	return nil
}

func (b *WriteBatch) ValueSize() int { return b.raw.ValueSize() }
