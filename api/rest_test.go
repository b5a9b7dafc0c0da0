package api_test

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/numi-chain/numi-core/api"
	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/consensus"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/crypto/argon2params"
	"github.com/numi-chain/numi-core/engine"
	"github.com/numi-chain/numi-core/mempool"
	"github.com/numi-chain/numi-core/params"
)

type fakeChain struct {
	state     types.ChainState
	blocks    map[common.Hash]*types.Block
	byHeight  map[uint64]*types.Block
	accounts  map[string]*types.AccountState
	txs       map[common.Hash]*types.Transaction
	submitted []*types.Block
}

func newFakeChain() *fakeChain {
	return &fakeChain{
		blocks:   make(map[common.Hash]*types.Block),
		byHeight: make(map[uint64]*types.Block),
		accounts: make(map[string]*types.AccountState),
		txs:      make(map[common.Hash]*types.Transaction),
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
	tx, ok := f.txs[txid]
	if !ok {
		return nil, common.Hash{}, errors.New("not found")
	}
	return tx, f.state.TipHash, nil
}
func (f *fakeChain) Submit(block *types.Block, now time.Time) (consensus.AdmissionResult, error) {
	f.submitted = append(f.submitted, block)
	return consensus.AdmissionAccepted, nil
}
func (f *fakeChain) SubscribeNewTips(fn consensus.NewTipSubscriber) func() { return func() {} }
func (f *fakeChain) TipHash() common.Hash                                 { return f.state.TipHash }
func (f *fakeChain) TipHeight() uint64                                    { return f.state.TipHeight }
func (f *fakeChain) TipTimestamp() uint64                                 { return 0 }
func (f *fakeChain) CurrentDifficulty() uint32                           { return f.state.CurrentDifficulty }

type fakePool struct{}

func (f *fakePool) Submit(tx *types.Transaction, now uint64) mempool.ValidationResult {
	return mempool.Valid
}
func (f *fakePool) GetBlockTemplate(maxBytes uint64, maxCount int) []*types.Transaction { return nil }

func cheapArgon2() argon2params.Params {
	return argon2params.Params{MemoryCostKiB: 8, TimeCost: 1, Parallelism: 1, OutputLength: 32, SaltLength: 8}
}

func testConfig() *params.ConsensusConfig {
	cfg := params.MainnetConfig()
	cfg.Argon2 = cheapArgon2()
	cfg.InitialDifficulty = 1
	return cfg
}

func TestHandleStatusReturnsChainState(t *testing.T) {
	chain := newFakeChain()
	chain.state = types.ChainState{TipHeight: 3, CurrentDifficulty: 1}
	e := engine.New(chain, &fakePool{}, testConfig())
	srv := api.NewServer(e, testConfig(), make([]byte, 8))

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, float64(3), body["TipHeight"])
}

func TestHandleBalanceReturnsAccount(t *testing.T) {
	chain := newFakeChain()
	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	chain.accounts[kp.Public.AccountKey()] = &types.AccountState{Balance: 42, Nonce: 1}
	e := engine.New(chain, &fakePool{}, testConfig())
	srv := api.NewServer(e, testConfig(), make([]byte, 8))

	req := httptest.NewRequest(http.MethodGet, "/balance/"+hex.EncodeToString(kp.Public), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var account types.AccountState
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
	assert.Equal(t, uint64(42), account.Balance)
}

func TestHandleBlockByHeightAndHash(t *testing.T) {
	chain := newFakeChain()
	block := &types.Block{Header: types.BlockHeader{Height: 7}}
	chain.byHeight[7] = block
	chain.blocks[block.Hash()] = block
	e := engine.New(chain, &fakePool{}, testConfig())
	srv := api.NewServer(e, testConfig(), make([]byte, 8))

	req := httptest.NewRequest(http.MethodGet, "/block/7", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/block/"+block.Hash().String(), nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/block/999", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleTransactionResolvesThroughTxIndex(t *testing.T) {
	chain := newFakeChain()
	tx := &types.Transaction{Data: types.TransactionData{Kind: types.KindMiningReward, Amount: 5000}}
	chain.txs[tx.ID()] = tx
	chain.state.TipHash = common.Hash{1, 2, 3}
	e := engine.New(chain, &fakePool{}, testConfig())
	srv := api.NewServer(e, testConfig(), make([]byte, 8))

	req := httptest.NewRequest(http.MethodGet, "/transaction/"+tx.ID().String(), nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Transaction types.Transaction `json:"transaction"`
		BlockHash   common.Hash       `json:"block_hash"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, tx.ID(), body.Transaction.ID())
	assert.Equal(t, chain.state.TipHash, body.BlockHash)

	req = httptest.NewRequest(http.MethodGet, "/transaction/"+(common.Hash{9, 9, 9}).String(), nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleSubmitTransactionDelegatesToPool(t *testing.T) {
	chain := newFakeChain()
	e := engine.New(chain, &fakePool{}, testConfig())
	srv := api.NewServer(e, testConfig(), make([]byte, 8))

	kp, err := crypto.KeypairGenerate()
	require.NoError(t, err)
	tx := &types.Transaction{SenderPublicKey: kp.Public, Nonce: 1, Fee: 1}
	body, err := json.Marshal(tx)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/transaction", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, mempool.Valid.String(), resp["result"])
}
