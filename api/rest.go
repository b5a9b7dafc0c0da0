// Package api provides a thin REST binding over the C8 engine façade
// (spec.md §6 "RPC surface (façade; not the core but its contract)").
// spec.md §1 places the real RPC surface out of scope as an external
// collaborator; this is a minimal demonstration binding — httprouter
// dispatch plus a cors wrapper, the same pairing the teacher's node
// package fronts its JSON-RPC HTTP server with — so the façade's
// documented contract is exercisable end to end over HTTP rather than
// only from in-process Go callers.
package api

import (
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/cors"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/consensus"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/engine"
	"github.com/numi-chain/numi-core/log"
	"github.com/numi-chain/numi-core/mempool"
	"github.com/numi-chain/numi-core/miner"
	"github.com/numi-chain/numi-core/params"
)

// Server is the façade's HTTP binding (spec.md §6's five endpoints, plus
// GET /transaction/{txid}).
type Server struct {
	engine *engine.Engine
	cfg    *params.ConsensusConfig
	salt   []byte
	logger log.Logger
	router *httprouter.Router
	nowFn  func() uint64
}

// NewServer wires a Server over e. salt is the chain's Argon2id salt
// (consensus.Chain.Salt()), needed only by the admin POST /mine handler.
func NewServer(e *engine.Engine, cfg *params.ConsensusConfig, salt []byte) *Server {
	s := &Server{
		engine: e,
		cfg:    cfg,
		salt:   salt,
		logger: log.NewModuleLogger(log.API),
		router: httprouter.New(),
		nowFn:  func() uint64 { return uint64(time.Now().Unix()) },
	}
	s.router.GET("/status", s.handleStatus)
	s.router.GET("/balance/:addr", s.handleBalance)
	s.router.GET("/block/:id", s.handleBlock)
	s.router.GET("/transaction/:id", s.handleTransaction)
	s.router.POST("/transaction", s.handleSubmitTransaction)
	s.router.POST("/mine", s.handleMine)
	return s
}

// Handler wraps the router in a permissive cors.Default handler, matching
// the teacher's networks/rpc HTTP server convenience defaults for local
// development front ends.
func (s *Server) Handler() http.Handler {
	return cors.Default().Handler(s.router)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleStatus implements spec.md §6 `GET /status`. peer_count and
// is_syncing are values the engine does not itself maintain (spec.md §6);
// they are always reported as zero/false here pending a P2P collaborator.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	state := s.engine.GetChainState()
	writeJSON(w, http.StatusOK, struct {
		engine.ChainStateWithDiagnostics
		PeerCount int  `json:"peer_count"`
		IsSyncing bool `json:"is_syncing"`
	}{ChainStateWithDiagnostics: state})
}

// handleBalance implements spec.md §6 `GET /balance/{addr}`, addr being
// the hex-encoded public-key bytes.
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	raw, err := hex.DecodeString(ps.ByName("addr"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "addr must be hex-encoded public-key bytes")
		return
	}
	account, err := s.engine.GetAccount(common.PubKey(raw))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, account)
}

// handleBlock implements spec.md §6 `GET /block/{hash-or-height}`: id is
// tried first as a decimal height, then as a hex-encoded hash.
func (s *Server) handleBlock(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if height, err := strconv.ParseUint(id, 10, 64); err == nil {
		block, err := s.engine.GetBlockByHeight(height)
		if err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, block)
		return
	}
	raw, err := hex.DecodeString(id)
	if err != nil || len(raw) != common.HashLength {
		writeError(w, http.StatusBadRequest, "id must be a decimal height or a hex-encoded block hash")
		return
	}
	var hash common.Hash
	copy(hash[:], raw)
	block, err := s.engine.GetBlockByHash(hash)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, block)
}

// handleTransaction implements the additive get_transaction_by_id
// (SPEC_FULL.md §EXP-5) over HTTP: `GET /transaction/{txid}`, txid being
// the hex-encoded transaction hash, resolved through the transactions
// table to its containing block.
func (s *Server) handleTransaction(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	raw, err := hex.DecodeString(ps.ByName("id"))
	if err != nil || len(raw) != common.HashLength {
		writeError(w, http.StatusBadRequest, "id must be a hex-encoded transaction hash")
		return
	}
	var txid common.Hash
	copy(txid[:], raw)
	tx, blockHash, err := s.engine.GetTransactionByID(txid)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Transaction *types.Transaction `json:"transaction"`
		BlockHash   common.Hash        `json:"block_hash"`
	}{tx, blockHash})
}

// handleSubmitTransaction implements spec.md §6 `POST /transaction`: the
// body is a JSON-encoded Transaction, returned as a mapped ValidationResult
// string. No RPC-side duplicate checks, per spec.md §4.8.
func (s *Server) handleSubmitTransaction(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var tx types.Transaction
	if err := json.NewDecoder(r.Body).Decode(&tx); err != nil {
		writeError(w, http.StatusBadRequest, "malformed transaction body")
		return
	}
	result := s.engine.SubmitTransaction(&tx, s.nowFn())
	status := http.StatusOK
	if result != mempool.Valid {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, map[string]string{"result": result.String()})
}

// mineRequest is POST /mine's body (spec.md §6 "{threads, timeout_seconds}").
type mineRequest struct {
	Threads        int `json:"threads"`
	TimeoutSeconds int `json:"timeout_seconds"`
}

// handleMine implements the admin spec.md §6 `POST /mine`: build a
// template over the current tip, run a bounded one-shot PoW search, submit
// the result on success, and return the mined header. This reuses
// miner.Mine directly rather than running a standing miner.Miner loop, a
// one-shot admin trigger rather than the continuous background process
// node/ wires up for a dedicated mining key.
func (s *Server) handleMine(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var req mineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed mine request")
		return
	}
	if req.Threads <= 0 {
		req.Threads = 1
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = 30
	}

	key, err := crypto.KeypairGenerate()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	block, err := s.engine.BuildTemplate(key, s.nowFn())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	stop := make(chan struct{})
	timer := time.AfterFunc(time.Duration(req.TimeoutSeconds)*time.Second, func() { close(stop) })
	defer timer.Stop()

	found, err := miner.Mine(block, s.salt, s.cfg.Argon2, key, req.Threads, nil, stop)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusRequestTimeout, "no solution found within timeout_seconds")
		return
	}

	result, err := s.engine.SubmitBlock(block, time.Unix(int64(s.nowFn()), 0))
	if err != nil || result != consensus.AdmissionAccepted {
		writeJSON(w, http.StatusConflict, map[string]string{"result": result.String()})
		return
	}
	writeJSON(w, http.StatusOK, block.Header)
}
