package miner

import (
	"sync"
	"time"

	"github.com/aristanetworks/goarista/monotime"
	"github.com/prometheus/client_golang/prometheus"
	uatomic "go.uber.org/atomic"

	"github.com/numi-chain/numi-core/core/types"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/crypto/argon2params"
	"github.com/numi-chain/numi-core/log"
)

// chunkSize is the number of nonces a worker claims from the shared
// counter at a time (spec.md §4.6 "each claiming a chunk of size CHUNK
// (default 10 000)").
const chunkSize = 10_000

var (
	powAttemptsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "numi_miner_pow_attempts_total",
		Help: "Total Argon2id+BLAKE3 PoW hashes computed by the miner.",
	})
	powSolutionsCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "numi_miner_pow_solutions_total",
		Help: "Total blocks successfully sealed by the miner.",
	})
	hashrateGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "numi_miner_hashrate",
		Help: "Most recently reported hash rate in hashes per second.",
	})
)

func init() {
	prometheus.MustRegister(powAttemptsCounter, powSolutionsCounter, hashrateGauge)
}

// Stats is published periodically (at least once a second, spec.md §4.6) so
// a console or RPC surface can report progress while a search is underway.
type Stats struct {
	Attempts uint64
	HashRate float64
}

// search coordinates W workers racing to find a nonce for task, sharing one
// atomic nonce counter and a found flag the first winner sets (spec.md
// §4.6 "PoW loop"). It is the PoW analogue of the teacher's CpuAgent.mine:
// same stop-channel cooperative cancellation, generalized from a single
// engine.Seal call to an explicit multi-goroutine chunked search.
type search struct {
	preimage []byte
	salt     []byte
	argon2   argon2params.Params
	target   uint32 // difficulty

	nextNonce uatomic.Uint64
	found     uatomic.Bool
	winner    uatomic.Uint64
	attempts  uatomic.Uint64

	statsCh chan<- Stats
	logger  log.Logger
}

// run blocks until a solution is found or stop is closed, returning
// (nonce, true) on success. workers goroutines are spawned internally and
// all exit before run returns.
func (s *search) run(workers int, stop <-chan struct{}) (uint64, bool) {
	if workers < 1 {
		workers = 1
	}

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			s.worker(stop)
		}()
	}

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()

	statTicker := newStatsTicker()
	defer statTicker.stop()
	start := monotime.Now()

	for {
		select {
		case <-done:
			if s.found.Load() {
				powSolutionsCounter.Inc()
				return s.winner.Load(), true
			}
			return 0, false
		case <-stop:
			<-done
			return 0, false
		case <-statTicker.c:
			if s.statsCh == nil {
				continue
			}
			elapsed := (monotime.Now() - start).Seconds()
			attempts := s.attempts.Load()
			rate := 0.0
			if elapsed > 0 {
				rate = float64(attempts) / elapsed
			}
			hashrateGauge.Set(rate)
			select {
			case s.statsCh <- Stats{Attempts: attempts, HashRate: rate}:
			default:
			}
		}
	}
}

func (s *search) worker(stop <-chan struct{}) {
	for {
		if s.found.Load() {
			return
		}
		select {
		case <-stop:
			return
		default:
		}

		base := s.nextNonce.Add(chunkSize) - chunkSize
		for n := base; n < base+chunkSize; n++ {
			if s.found.Load() {
				return
			}
			select {
			case <-stop:
				return
			default:
			}

			s.attempts.Inc()
			powAttemptsCounter.Inc()
			if crypto.VerifyPow(s.preimage, s.salt, n, s.argon2, s.target) {
				if s.found.CAS(false, true) {
					s.winner.Store(n)
				}
				return
			}
		}
	}
}

// Mine runs the PoW search for block (whose header must already carry its
// final merkle root, timestamp, and difficulty) and, on success, sets the
// winning nonce and signs the header with minerKey. Returns (false, nil) if
// stop is closed before a solution is found.
func Mine(block *types.Block, salt []byte, p argon2params.Params, minerKey *crypto.KeyPair, workers int, statsCh chan<- Stats, stop <-chan struct{}) (bool, error) {
	s := &search{
		preimage: block.Header.PowPreimage(),
		salt:     salt,
		argon2:   p,
		target:   block.Header.Difficulty,
		statsCh:  statsCh,
		logger:   log.NewModuleLogger(log.Miner),
	}

	nonce, ok := s.run(workers, stop)
	if !ok {
		return false, nil
	}

	block.Header.Nonce = nonce
	if err := block.Header.Sign(minerKey); err != nil {
		return false, err
	}
	s.logger.Info("sealed block", "height", block.Header.Height, "nonce", nonce, "attempts", s.attempts.Load())
	return true, nil
}

type statsTicker struct {
	c      <-chan struct{}
	quit   chan struct{}
	ticker *time.Ticker
}

// newStatsTicker emits at the spec's minimum one-second reporting cadence.
func newStatsTicker() *statsTicker {
	c := make(chan struct{}, 1)
	quit := make(chan struct{})
	ticker := time.NewTicker(time.Second)
	go func() {
		for {
			select {
			case <-quit:
				return
			case <-ticker.C:
				select {
				case c <- struct{}{}:
				default:
				}
			}
		}
	}()
	return &statsTicker{c: c, quit: quit, ticker: ticker}
}

func (t *statsTicker) stop() {
	t.ticker.Stop()
	close(t.quit)
}
