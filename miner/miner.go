// Package miner builds block templates and runs the Argon2id+BLAKE3
// proof-of-work search described in spec.md §4.6, generalizing the
// teacher's single-agent worker/agent coordination to a configurable pool
// of chunked nonce-search workers.
package miner

import (
	"sync"

	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/log"
	"github.com/numi-chain/numi-core/params"
)

// ChainTip is the narrow read-only handle the miner needs from the
// consensus engine: the current tip to build on top of.
type ChainTip interface {
	TipHash() common.Hash
	TipHeight() uint64
	TipTimestamp() uint64
	CurrentDifficulty() uint32
}

// BlockSink receives sealed blocks for admission back into the engine
// (spec.md §4.6 "hands the resulting block back to the engine").
type BlockSink interface {
	SubmitBlock(block *types.Block) error
}

// Miner owns the template/PoW loop. One Miner mines for one miner keypair;
// running several is just running several Miners.
type Miner struct {
	cfg     *params.ConsensusConfig
	pool    TemplateSource
	chain   ChainTip
	sink    BlockSink
	key     *crypto.KeyPair
	salt    []byte
	workers int
	statsCh chan<- Stats
	nowFn   func() uint64
	logger  log.Logger

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	newTip  chan struct{}
	done    chan struct{}
}

// New builds a Miner. nowFn supplies the wall-clock seconds used for the
// template's timestamp; tests inject a fixed clock.
func New(cfg *params.ConsensusConfig, pool TemplateSource, chain ChainTip, sink BlockSink, key *crypto.KeyPair, salt []byte, workers int, statsCh chan<- Stats, nowFn func() uint64) *Miner {
	return &Miner{
		cfg:     cfg,
		pool:    pool,
		chain:   chain,
		sink:    sink,
		key:     key,
		salt:    salt,
		workers: workers,
		statsCh: statsCh,
		nowFn:   nowFn,
		logger:  log.NewModuleLogger(log.Miner),
	}
}

// Start begins the template/mine/submit loop in a background goroutine.
// Calling Start while already running is a no-op, mirroring the teacher's
// CpuAgent.Start idempotency.
func (m *Miner) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	m.newTip = make(chan struct{}, 1)
	m.done = make(chan struct{})
	go m.loop()
}

// Stop halts the loop and blocks until the in-flight search, if any, has
// returned.
func (m *Miner) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	close(m.stop)
	done := m.done
	m.mu.Unlock()
	<-done
}

// NotifyNewTip tells the miner the chain tip changed, aborting any search
// in progress so the next template is built on the new tip rather than
// wasting work on a stale parent.
func (m *Miner) NotifyNewTip() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	select {
	case m.newTip <- struct{}{}:
	default:
	}
}

func (m *Miner) loop() {
	defer close(m.done)
	for {
		select {
		case <-m.stop:
			return
		default:
		}

		block, err := BuildTemplate(m.cfg, m.pool, m.chain.TipHash(), m.chain.TipHeight(), m.chain.TipTimestamp(), m.chain.CurrentDifficulty(), m.key, m.nowFn())
		if err != nil {
			m.logger.Warn("template construction failed", "err", err)
			continue
		}

		abort := make(chan struct{})
		quitWatch := make(chan struct{})
		watcherExited := make(chan struct{})
		go func() {
			defer close(watcherExited)
			select {
			case <-m.newTip:
				close(abort)
			case <-m.stop:
				close(abort)
			case <-quitWatch:
			}
		}()

		ok, err := Mine(block, m.salt, m.cfg.Argon2, m.key, m.workers, m.statsCh, abort)

		close(quitWatch)
		<-watcherExited

		if err != nil {
			m.logger.Warn("seal failed", "err", err)
			continue
		}
		if !ok {
			continue
		}
		if err := m.sink.SubmitBlock(block); err != nil {
			m.logger.Warn("sealed block rejected", "height", block.Header.Height, "err", err)
		}
	}
}
