package node

import (
	"net/http"
	"sync"
	"time"

	"github.com/numi-chain/numi-core/accounts/keystore"
	"github.com/numi-chain/numi-core/api"
	"github.com/numi-chain/numi-core/common"
	"github.com/numi-chain/numi-core/consensus"
	"github.com/numi-chain/numi-core/crypto"
	"github.com/numi-chain/numi-core/datasync/chaindatafetcher"
	cfcommon "github.com/numi-chain/numi-core/datasync/chaindatafetcher/common"
	"github.com/numi-chain/numi-core/datasync/chaindatafetcher/kafka"
	"github.com/numi-chain/numi-core/datasync/chaindatafetcher/mysql"
	"github.com/numi-chain/numi-core/engine"
	"github.com/numi-chain/numi-core/log"
	"github.com/numi-chain/numi-core/mempool"
	"github.com/numi-chain/numi-core/miner"
	"github.com/numi-chain/numi-core/storage/database"
	"github.com/numi-chain/numi-core/xerrors"
)

// Node owns the one chain this process validates end to end: the store,
// the consensus chain, the mempool, the C8 engine façade, and whichever of
// the miner/REST server/chaindatafetcher the Config enables. It replaces
// the teacher's Service/ServiceContext registry — there is exactly one
// service here, so Start/Stop is a flat sequence instead of a fan-out over
// a []Service slice.
type Node struct {
	cfg    Config
	logger log.Logger

	mu      sync.Mutex
	running bool

	db        database.Database
	store     *database.Store
	keystore  *keystore.Store
	chain     *consensus.Chain
	pool      *mempool.Pool
	engine    *engine.Engine
	miner     *miner.Miner
	server    *api.Server
	fetcher   *chaindatafetcher.Fetcher
	publisher cfcommon.Publisher
	indexer   cfcommon.Indexer
}

// New constructs a Node from cfg without starting anything. Opening the
// database, bootstrapping genesis, and starting collaborators all happen
// in Start, so a construction error and a startup error are never
// conflated.
func New(cfg Config) *Node {
	return &Node{cfg: cfg, logger: log.NewModuleLogger(log.Node)}
}

func openDatabase(cfg Config) (database.Database, error) {
	switch cfg.DBType {
	case DBMemory:
		return database.NewMemoryDB(), nil
	case DBLevelDB:
		return database.NewLDBDatabase(cfg.DataDir, cfg.DatabaseCacheMB, cfg.DatabaseHandles)
	case DBBadger, "":
		return database.NewBadgerDB(cfg.DataDir)
	default:
		return nil, xerrors.Malformed("unknown_db_type", nil)
	}
}

// Start opens the store, bootstraps genesis on a fresh chain (or resumes
// an existing one), wires the mempool/engine, and starts whichever of
// mining, the REST server, and the chaindatafetcher the Config enables.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return xerrors.StateError("node_already_running", nil)
	}
	if err := n.cfg.Consensus.ValidateResources(); err != nil {
		return err
	}

	db, err := openDatabase(n.cfg)
	if err != nil {
		return err
	}
	store, err := database.NewStore(db, n.cfg.BlockCacheEntries, int(n.cfg.AccountCacheBytes))
	if err != nil {
		db.Close()
		return err
	}

	ks, err := keystore.Init(n.cfg.KeystoreDir, []byte(n.cfg.KeystorePassword), n.cfg.KeystoreDev)
	if err != nil {
		db.Close()
		return err
	}

	pool := mempool.New(n.cfg.Consensus, store, nil)

	chain, err := n.openOrBootstrapChain(store, pool, ks)
	if err != nil {
		db.Close()
		return err
	}

	eng := engine.New(chain, pool, n.cfg.Consensus)

	n.db, n.store, n.keystore, n.chain, n.pool, n.engine = db, store, ks, chain, pool, eng

	if n.cfg.EnableMining {
		if err := n.startMiner(); err != nil {
			return err
		}
	}
	if n.cfg.EnableHTTP {
		n.server = api.NewServer(eng, n.cfg.Consensus, chain.Salt())
	}
	if n.cfg.EnableChainDataFetcher {
		if err := n.startChainDataFetcher(); err != nil {
			return err
		}
	}

	n.running = true
	n.logger.Info("node started", "data_dir", n.cfg.DataDir, "tip_height", chain.TipHeight())
	return nil
}

// openOrBootstrapChain resumes an already-initialized store, or seeds a
// fresh one with a newly mined genesis block signed by the configured
// (or freshly generated and persisted) miner key.
func (n *Node) openOrBootstrapChain(store *database.Store, pool consensus.MempoolNotifier, ks *keystore.Store) (*consensus.Chain, error) {
	if _, ok := store.GetMainChainHashAt(0); ok {
		return consensus.New(store, pool, n.cfg.Consensus)
	}

	label := n.cfg.MinerLabel
	if label == "" {
		label = "genesis"
	}
	key, err := ks.Get(label, uint64(time.Now().Unix()))
	if err != nil && xerrors.Of(err, xerrors.KindNotFound) {
		key, err = crypto.KeypairGenerate()
		if err != nil {
			return nil, err
		}
		if err := ks.Store(label, key, uint64(time.Now().Unix()), 0); err != nil {
			return nil, err
		}
	} else if err != nil {
		return nil, err
	}

	genesis, err := buildGenesis(n.cfg.Consensus, key, uint64(time.Now().Unix()))
	if err != nil {
		return nil, err
	}
	return consensus.Bootstrap(store, pool, n.cfg.Consensus, genesis, time.Now())
}

func (n *Node) startMiner() error {
	label := n.cfg.MinerLabel
	if label == "" {
		label = "genesis"
	}
	key, err := n.keystore.Get(label, uint64(time.Now().Unix()))
	if err != nil {
		return err
	}
	m := miner.New(n.cfg.Consensus, n.pool, n.chain, n.chain, key, n.chain.Salt(), n.cfg.MinerThreads, nil, func() uint64 { return uint64(time.Now().Unix()) })
	n.chain.SubscribeNewTips(func(hash common.Hash, height uint64) { m.NotifyNewTip() })
	n.miner = m
	n.miner.Start()
	return nil
}

func (n *Node) startChainDataFetcher() error {
	var publisher cfcommon.Publisher
	var indexer cfcommon.Indexer
	if len(n.cfg.KafkaBrokers) > 0 {
		p, err := kafka.NewProducer(kafka.DefaultConfig(n.cfg.KafkaBrokers))
		if err != nil {
			return err
		}
		publisher = p
	}
	if n.cfg.MySQLDSN != "" {
		idx, err := mysql.NewIndexer(mysql.Config{DSN: n.cfg.MySQLDSN})
		if err != nil {
			return err
		}
		indexer = idx
	}
	n.publisher, n.indexer = publisher, indexer

	fcfg := chaindatafetcher.DefaultConfig()
	fcfg.PollInterval = n.cfg.FetcherPollInterval
	n.fetcher = chaindatafetcher.New(fcfg, n.engine, publisher, indexer)
	n.fetcher.Start()
	return nil
}

// Stop shuts every running collaborator down in the reverse order Start
// brought them up, then closes the database handle.
func (n *Node) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.running {
		return nil
	}
	if n.fetcher != nil {
		n.fetcher.Stop()
	}
	if n.publisher != nil {
		n.publisher.Done()
	}
	if n.miner != nil {
		n.miner.Stop()
	}
	if n.db != nil {
		n.db.Close()
	}
	n.running = false
	n.logger.Info("node stopped")
	return nil
}

// Engine returns the C8 façade, the one handle every external
// collaborator (the REST server, the chaindatafetcher, an admin console)
// is expected to use instead of reaching into the chain/pool directly.
func (n *Node) Engine() *engine.Engine { return n.engine }

// HTTPHandler returns the REST server's http.Handler, or nil if
// EnableHTTP is false.
func (n *Node) HTTPHandler() http.Handler {
	if n.server == nil {
		return nil
	}
	return n.server.Handler()
}
