// Package mysql implements the relational chain-data indexer (SPEC_FULL.md
// §EXP-5), grounded on the teacher's gen_config.go DBConfig shape
// (datasync/dbsyncer) and gorm usage pattern from the rest of the klaytn
// pack. It is a pure read replica: no consensus decision ever reads from
// it, so every write here is best-effort and retried, never a blocking
// dependency of block admission.
package mysql

import (
	"time"

	"github.com/jinzhu/gorm"
	_ "github.com/go-sql-driver/mysql"

	"github.com/numi-chain/numi-core/datasync/chaindatafetcher/common"
	"github.com/numi-chain/numi-core/log"
)

// Config mirrors the teacher's dbsyncer.DBConfig connection fields,
// trimmed to what the indexer needs (the teacher's bulk-insert tuning
// knobs — GenQueryThread, InsertThread, BulkInsertSize — assumed a much
// larger write volume than one finalized block at a time and are dropped).
type Config struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// blockRow, txRow, and accountRow are the indexer's gorm models. Column
// names are explicit rather than left to gorm's struct-field convention
// because several fields (Hash, PublicKey) are stored hex-encoded, not as
// their native byte-array Go types.
type blockRow struct {
	Height       uint64 `gorm:"primary_key"`
	Hash         string `gorm:"size:64;unique_index"`
	PreviousHash string `gorm:"size:64"`
	Timestamp    uint64
	Difficulty   uint32
	TxCount      int
}

type txRow struct {
	ID          string `gorm:"primary_key;size:64"`
	BlockHeight uint64 `gorm:"index"`
	Sender      string `gorm:"size:256;index"`
	Kind        int
	Amount      uint64
	Fee         uint64
	Nonce       uint64
}

type accountRow struct {
	PublicKey    string `gorm:"primary_key;size:256"`
	Balance      uint64
	Nonce        uint64
	LastSeenAt   uint64
}

type checkpointRow struct {
	ID     int `gorm:"primary_key"`
	Height uint64
}

// Indexer mirrors finalized blocks into MySQL via gorm. It satisfies
// common.Indexer.
type Indexer struct {
	db     *gorm.DB
	logger log.Logger
}

// NewIndexer opens the connection and runs AutoMigrate for the indexer's
// own tables, the same bootstrap step the teacher's db syncer performs
// before accepting chain events.
func NewIndexer(cfg Config) (*Indexer, error) {
	db, err := gorm.Open("mysql", cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxIdleConns > 0 {
		db.DB().SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		db.DB().SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.DB().SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	db.AutoMigrate(&blockRow{}, &txRow{}, &accountRow{}, &checkpointRow{})
	return &Indexer{db: db, logger: log.NewModuleLogger(log.DataSync)}, nil
}

// InsertFinalizedBlock mirrors one finalized block and its transactions
// into the relational schema in one gorm transaction. It writes no
// accountRow: account snapshots are not mirrored. Failures are returned to
// the fetcher, which logs them and retries from the same height; they never
// propagate back into the consensus path.
func (idx *Indexer) InsertFinalizedBlock(fb common.FinalizedBlock) error {
	block := fb.Block
	return idx.db.Transaction(func(tx *gorm.DB) error {
		row := blockRow{
			Height:       block.Header.Height,
			Hash:         block.Hash().String(),
			PreviousHash: block.Header.PreviousHash.String(),
			Timestamp:    block.Header.Timestamp,
			Difficulty:   block.Header.Difficulty,
			TxCount:      len(block.Transactions),
		}
		if err := tx.Save(&row).Error; err != nil {
			return err
		}
		for _, t := range block.Transactions {
			txr := txRow{
				ID:          t.ID().String(),
				BlockHeight: block.Header.Height,
				Sender:      t.SenderPublicKey.String(),
				Kind:        int(t.Data.Kind),
				Amount:      t.Data.Amount,
				Fee:         t.Fee,
				Nonce:       t.Nonce,
			}
			if err := tx.Save(&txr).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ReadCheckpoint and WriteCheckpoint let the fetcher resume after a
// restart without re-mirroring blocks it already indexed, matching the
// teacher's PublicChainDataFetcherAPI.ReadCheckpoint/WriteCheckpoint pair.
func (idx *Indexer) ReadCheckpoint() (uint64, error) {
	var row checkpointRow
	if err := idx.db.FirstOrCreate(&row, checkpointRow{ID: 0}).Error; err != nil {
		return 0, err
	}
	return row.Height, nil
}

func (idx *Indexer) WriteCheckpoint(height uint64) error {
	return idx.db.Save(&checkpointRow{ID: 0, Height: height}).Error
}
