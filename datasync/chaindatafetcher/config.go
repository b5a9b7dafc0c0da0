package chaindatafetcher

import "time"

// Config controls whether the two supplemental sinks (SPEC_FULL.md §EXP-5)
// are enabled and how they connect. Both default to disabled: the fetcher
// is strictly optional and lives outside the single-writer consensus path
// (spec.md §5).
type Config struct {
	EnableKafka bool
	KafkaBrokers []string

	EnableMySQL bool
	MySQLDSN    string

	// PollInterval bounds how long the fetcher waits between catch-up
	// sweeps when it has no pending new-tip notification queued, so a
	// dropped/coalesced tip event (engine/events.go) never stalls
	// mirroring indefinitely.
	PollInterval time.Duration
}

// DefaultConfig matches the teacher's ChainDataFetcherConfig defaults:
// disabled until explicitly turned on in node configuration.
func DefaultConfig() Config {
	return Config{PollInterval: 5 * time.Second}
}
