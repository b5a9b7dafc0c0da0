// Package common holds the narrow interfaces shared between the
// chaindatafetcher's two sinks (kafka, mysql), adapted from the teacher's
// datasync/chaindatafetcher/common package down to the two concerns
// EXP-5 actually asks for: publishing a finalized block and persisting it
// to a relational read replica. The teacher's Repository interface (token
// transfers, trace results, contracts) mirrored klaytn's full EVM
// event set; numi-core has no contracts or traces, so only the
// block/transaction/account surface survives.
package common

import (
	"time"

	"github.com/numi-chain/numi-core/core/types"
)

// FinalizedBlock is the payload mirrored onto both sinks once a block
// crosses finalized_height (spec.md's finality definition, SPEC_FULL.md
// §EXP-5).
type FinalizedBlock struct {
	Block           *types.Block
	FinalizedHeight uint64
}

// Topic is a kafka topic descriptor, kept from the teacher's EventBroker
// surface for symmetry with ListTopics/CreateTopic-style admin calls.
type Topic struct {
	Name string
	ARN  string
}

// Publisher is the kafka-backed side channel (SPEC_FULL.md §EXP-5
// "finalized-block event bus"). Engine correctness never depends on a
// Publisher call succeeding.
type Publisher interface {
	Publish(block FinalizedBlock) error
	Done()
}

// Indexer is the relational read-replica side channel ("relational
// chain-data indexer"). Never consulted by any consensus decision.
type Indexer interface {
	InsertFinalizedBlock(block FinalizedBlock) error
	ReadCheckpoint() (uint64, error)
	WriteCheckpoint(height uint64) error
}

// RetryInterval carries the teacher's DBInsertRetryInterval value. The
// fetcher does not use it: a failed sink write is retried on the next
// new-tip event or PollInterval tick.
const RetryInterval = 500 * time.Millisecond
