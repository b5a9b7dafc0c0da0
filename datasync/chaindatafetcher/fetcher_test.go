package chaindatafetcher_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/consensus"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/datasync/chaindatafetcher"
	cfcommon "github.com/numi-chain/numi-core/datasync/chaindatafetcher/common"
	"github.com/numi-chain/numi-core/engine"
	"github.com/numi-chain/numi-core/mempool"
	"github.com/numi-chain/numi-core/params"
)

type fakeChain struct {
	state    types.ChainState
	byHeight map[uint64]*types.Block
	subs     []consensus.NewTipSubscriber
}

func newFakeChain() *fakeChain { return &fakeChain{byHeight: make(map[uint64]*types.Block)} }

func (f *fakeChain) GetChainState() types.ChainState { return f.state }
func (f *fakeChain) GetBlockByHash(hash common.Hash) (*types.Block, error) {
	return nil, errors.New("unused")
}
func (f *fakeChain) GetBlockByHeight(height uint64) (*types.Block, error) {
	b, ok := f.byHeight[height]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}
func (f *fakeChain) GetAccount(key common.PubKey) (*types.AccountState, error) {
	return &types.AccountState{}, nil
}
func (f *fakeChain) GetTransactionByID(txid common.Hash) (*types.Transaction, common.Hash, error) {
	return nil, common.Hash{}, errors.New("unused")
}
func (f *fakeChain) Submit(block *types.Block, now time.Time) (consensus.AdmissionResult, error) {
	return consensus.AdmissionAccepted, nil
}
func (f *fakeChain) SubscribeNewTips(fn consensus.NewTipSubscriber) func() {
	f.subs = append(f.subs, fn)
	idx := len(f.subs) - 1
	return func() { f.subs[idx] = nil }
}
func (f *fakeChain) TipHash() common.Hash      { return f.state.TipHash }
func (f *fakeChain) TipHeight() uint64         { return f.state.TipHeight }
func (f *fakeChain) TipTimestamp() uint64      { return 0 }
func (f *fakeChain) CurrentDifficulty() uint32 { return f.state.CurrentDifficulty }

func (f *fakeChain) finalize(height uint64, block *types.Block) {
	f.byHeight[height] = block
	f.state.FinalizedHeight = height
	for _, fn := range f.subs {
		if fn != nil {
			fn(block.Hash(), height)
		}
	}
}

type fakePool struct{}

func (f *fakePool) Submit(tx *types.Transaction, now uint64) mempool.ValidationResult {
	return mempool.Valid
}
func (f *fakePool) GetBlockTemplate(maxBytes uint64, maxCount int) []*types.Transaction { return nil }

type fakePublisher struct {
	published []cfcommon.FinalizedBlock
}

func (p *fakePublisher) Publish(block cfcommon.FinalizedBlock) error {
	p.published = append(p.published, block)
	return nil
}
func (p *fakePublisher) Done() {}

type fakeIndexer struct {
	inserted   []cfcommon.FinalizedBlock
	checkpoint uint64
}

func (i *fakeIndexer) InsertFinalizedBlock(block cfcommon.FinalizedBlock) error {
	i.inserted = append(i.inserted, block)
	return nil
}
func (i *fakeIndexer) ReadCheckpoint() (uint64, error)    { return i.checkpoint, nil }
func (i *fakeIndexer) WriteCheckpoint(height uint64) error { i.checkpoint = height; return nil }

func TestFetcherMirrorsFinalizedBlocksToBothSinks(t *testing.T) {
	chain := newFakeChain()
	e := engine.New(chain, &fakePool{}, params.MainnetConfig())
	publisher := &fakePublisher{}
	indexer := &fakeIndexer{}

	cfg := chaindatafetcher.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	f := chaindatafetcher.New(cfg, e, publisher, indexer)
	f.Start()
	defer f.Stop()

	block := &types.Block{Header: types.BlockHeader{Height: 1}}
	chain.finalize(1, block)

	require.Eventually(t, func() bool {
		return len(publisher.published) == 1 && len(indexer.inserted) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, block, publisher.published[0].Block)
	assert.Equal(t, uint64(1), indexer.checkpoint)
}

func TestFetcherResumesFromIndexerCheckpoint(t *testing.T) {
	chain := newFakeChain()
	e := engine.New(chain, &fakePool{}, params.MainnetConfig())
	indexer := &fakeIndexer{checkpoint: 3}
	block4 := &types.Block{Header: types.BlockHeader{Height: 4}}
	chain.byHeight[4] = block4
	chain.state.FinalizedHeight = 4

	cfg := chaindatafetcher.DefaultConfig()
	cfg.PollInterval = 10 * time.Millisecond
	f := chaindatafetcher.New(cfg, e, nil, indexer)
	f.Start()
	defer f.Stop()

	require.Eventually(t, func() bool {
		return len(indexer.inserted) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, uint64(4), indexer.inserted[0].Block.Header.Height)
}
