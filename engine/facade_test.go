package engine_test

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/consensus"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/engine"
	"github.com/numi-chain/numi-core/mempool"
	"github.com/numi-chain/numi-core/params"
)

type txIndexEntry struct {
	tx        *types.Transaction
	blockHash common.Hash
}

type fakeChain struct {
	state        types.ChainState
	tipTimestamp uint64
	blocks       map[common.Hash]*types.Block
	byHeight     map[uint64]*types.Block
	accounts     map[string]*types.AccountState
	txIndex      map[common.Hash]txIndexEntry
	submitted    []*types.Block
	submitResult consensus.AdmissionResult
	submitErr    error
	subs         []consensus.NewTipSubscriber
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		blocks:   make(map[common.Hash]*types.Block),
		byHeight: make(map[uint64]*types.Block),
		accounts: make(map[string]*types.AccountState),
		txIndex:  make(map[common.Hash]txIndexEntry),
	}
}

func (f *fakeChain) GetChainState() types.ChainState { return f.state }

func (f *fakeChain) GetBlockByHash(hash common.Hash) (*types.Block, error) {
	b, ok := f.blocks[hash]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func (f *fakeChain) GetBlockByHeight(height uint64) (*types.Block, error) {
	b, ok := f.byHeight[height]
	if !ok {
		return nil, errors.New("not found")
	}
	return b, nil
}

func (f *fakeChain) GetAccount(key common.PubKey) (*types.AccountState, error) {
	if a, ok := f.accounts[key.AccountKey()]; ok {
		return a, nil
	}
	return &types.AccountState{}, nil
}

func (f *fakeChain) GetTransactionByID(txid common.Hash) (*types.Transaction, common.Hash, error) {
	e, ok := f.txIndex[txid]
	if !ok {
		return nil, common.Hash{}, errors.New("not found")
	}
	return e.tx, e.blockHash, nil
}

func (f *fakeChain) Submit(block *types.Block, now time.Time) (consensus.AdmissionResult, error) {
	f.submitted = append(f.submitted, block)
	return f.submitResult, f.submitErr
}

func (f *fakeChain) SubscribeNewTips(fn consensus.NewTipSubscriber) func() {
	f.subs = append(f.subs, fn)
	idx := len(f.subs) - 1
	return func() { f.subs[idx] = nil }
}

func (f *fakeChain) TipHash() common.Hash        { return f.state.TipHash }
func (f *fakeChain) TipHeight() uint64           { return f.state.TipHeight }
func (f *fakeChain) TipTimestamp() uint64        { return f.tipTimestamp }
func (f *fakeChain) CurrentDifficulty() uint32   { return f.state.CurrentDifficulty }

func (f *fakeChain) publish(hash common.Hash, height uint64) {
	for _, fn := range f.subs {
		if fn != nil {
			fn(hash, height)
		}
	}
}

type fakePool struct {
	submitResult mempool.ValidationResult
	template     []*types.Transaction
}

func (f *fakePool) Submit(tx *types.Transaction, now uint64) mempool.ValidationResult {
	return f.submitResult
}

func (f *fakePool) GetBlockTemplate(maxBytes uint64, maxCount int) []*types.Transaction {
	return f.template
}

func TestGetChainStateReportsDiagnostics(t *testing.T) {
	chain := newFakeChain()
	chain.state = types.ChainState{TipHeight: 7, CurrentDifficulty: 3}
	e := engine.New(chain, &fakePool{}, params.MainnetConfig())

	got := e.GetChainState()
	assert.Equal(t, uint64(7), got.TipHeight)
	assert.Greater(t, got.Diagnostics.MemoryBytes, uintptr(0))
	assert.NotEmpty(t, got.Diagnostics.Report)
}

func TestGetBlockByHashAndHeightDelegateToChain(t *testing.T) {
	chain := newFakeChain()
	block := &types.Block{Header: types.BlockHeader{Height: 1}}
	chain.blocks[block.Hash()] = block
	chain.byHeight[1] = block
	e := engine.New(chain, &fakePool{}, params.MainnetConfig())

	got, err := e.GetBlockByHash(block.Hash())
	require.NoError(t, err)
	assert.Equal(t, block, got)

	got, err = e.GetBlockByHeight(1)
	require.NoError(t, err)
	assert.Equal(t, block, got)

	_, err = e.GetBlockByHeight(99)
	assert.Error(t, err)
}

func TestGetTransactionByIDDelegatesToChain(t *testing.T) {
	chain := newFakeChain()
	block := &types.Block{Header: types.BlockHeader{Height: 1}}
	tx := &types.Transaction{Data: types.TransactionData{Kind: types.KindMiningReward, Amount: 5000}}
	chain.txIndex[tx.ID()] = txIndexEntry{tx: tx, blockHash: block.Hash()}
	e := engine.New(chain, &fakePool{}, params.MainnetConfig())

	got, blockHash, err := e.GetTransactionByID(tx.ID())
	require.NoError(t, err)
	assert.Equal(t, tx, got)
	assert.Equal(t, block.Hash(), blockHash)

	_, _, err = e.GetTransactionByID(common.Hash{9, 9, 9})
	assert.Error(t, err)
}

func TestSubmitTransactionDelegatesToPool(t *testing.T) {
	chain := newFakeChain()
	pool := &fakePool{submitResult: mempool.FeeTooLow}
	e := engine.New(chain, pool, params.MainnetConfig())

	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	tx := &types.Transaction{SenderPublicKey: kp.Public}
	assert.Equal(t, mempool.FeeTooLow, e.SubmitTransaction(tx, 0))
}

func TestSubmitBlockDelegatesToChain(t *testing.T) {
	chain := newFakeChain()
	chain.submitResult = consensus.AdmissionAccepted
	e := engine.New(chain, &fakePool{}, params.MainnetConfig())

	block := &types.Block{Header: types.BlockHeader{Height: 1}}
	result, err := e.SubmitBlock(block, time.Unix(0, 0))
	require.NoError(t, err)
	assert.Equal(t, consensus.AdmissionAccepted, result)
	require.Len(t, chain.submitted, 1)
	assert.Equal(t, block, chain.submitted[0])
}

func TestBuildTemplatePullsTipAndDifficultyFromChain(t *testing.T) {
	chain := newFakeChain()
	chain.state = types.ChainState{TipHeight: 4, CurrentDifficulty: 1}
	chain.tipTimestamp = 1_700_000_000
	pool := &fakePool{}
	e := engine.New(chain, pool, params.MainnetConfig())

	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	tmpl, err := e.BuildTemplate(kp, 1_700_000_010)
	require.NoError(t, err)
	assert.Equal(t, uint64(5), tmpl.Header.Height)
	assert.Equal(t, uint32(1), tmpl.Header.Difficulty)
}
