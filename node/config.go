// Package node wires together the C4 store, C7 consensus chain, C5
// mempool, C8 engine façade, and the optional miner/REST/chaindatafetcher
// collaborators into one running process (spec.md §1's "single-process
// blockchain core" framing). It replaces the teacher's generic
// Service/ServiceContext P2P-protocol-registry scaffolding: numi-core has
// no P2P transport of its own (spec.md §1 lists networking as an external
// collaborator), so there is only ever one service, this one.
package node

import (
	"os"
	"path/filepath"
	"reflect"
	"time"

	"github.com/alecthomas/units"
	"github.com/naoina/toml"

	"github.com/numi-chain/numi-core/params"
)

// tomlSettings keeps TOML keys identical to the Go struct field names, the
// same override the teacher's cmd/ranger config loader applies.
var tomlSettings = toml.Config{
	NormFieldName: func(rt reflect.Type, key string) string { return key },
	FieldToKey:    func(rt reflect.Type, field string) string { return field },
}

// Default network-facing ports, named the same way the teacher's
// node/defaults.go enumerates DefaultHTTPPort/DefaultWSPort.
const (
	DefaultHTTPHost = "127.0.0.1"
	DefaultHTTPPort = 8645
)

// DBBackend selects the storage/database implementation a Config opens.
type DBBackend string

const (
	DBBadger  DBBackend = "badger"
	DBLevelDB DBBackend = "leveldb"
	DBMemory  DBBackend = "memory"
)

// Config is numi-core's node-local configuration: everything that may
// legitimately differ between two nodes validating the same chain. The
// chain-wide consensus parameters live in params.ConsensusConfig instead
// (SPEC_FULL.md §EXP-3/§9 rearchitected pattern: node config and consensus
// config are deliberately two different types, never one flat struct).
type Config struct {
	DataDir string
	DBType  DBBackend

	// LevelDB-only tuning; ignored by the other backends.
	DatabaseCacheMB int
	DatabaseHandles int

	// Store read-cache sizes, used with every backend.
	BlockCacheEntries int
	AccountCacheBytes units.Base2Bytes

	KeystoreDir      string
	KeystorePassword string
	KeystoreDev      bool
	MinerLabel       string // keystore label of the mining key, if mining is enabled

	EnableMining bool
	MinerThreads int

	EnableHTTP bool
	HTTPHost   string
	HTTPPort   int

	EnableChainDataFetcher bool
	KafkaBrokers           []string
	MySQLDSN               string
	FetcherPollInterval    time.Duration

	Consensus *params.ConsensusConfig
}

// DefaultDataDir mirrors the teacher's node/defaults.go homeDir() +
// per-OS application-data convention, scoped to numi-core's own directory
// name instead of klaytn's.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return filepath.Join(".", ".numinode")
	}
	return filepath.Join(home, ".numinode")
}

// DefaultConfig is the out-of-the-box single-node configuration: an
// embedded Badger store under DefaultDataDir, HTTP enabled on the loopback
// default port, mining and chaindatafetcher both off.
func DefaultConfig() Config {
	dir := DefaultDataDir()
	return Config{
		DataDir:           dir,
		DBType:            DBBadger,
		DatabaseCacheMB:   128,
		DatabaseHandles:   256,
		BlockCacheEntries: 256,
		AccountCacheBytes: 32 * units.MiB,
		KeystoreDir:       filepath.Join(dir, "keystore"),
		MinerThreads:      1,
		EnableHTTP:        true,
		HTTPHost:          DefaultHTTPHost,
		HTTPPort:          DefaultHTTPPort,
		FetcherPollInterval: 5 * time.Second,
		Consensus:         params.MainnetConfig(),
	}
}

// LoadConfigFile merges a TOML document at path over DefaultConfig, the
// same naoina/toml-over-defaults pattern the teacher's cmd/utils config
// loaders use for klaytn's node/cn config files.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()

	if err := tomlSettings.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}
