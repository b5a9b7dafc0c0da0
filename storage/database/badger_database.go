// Copyright 2018 The klaytn Authors
// This file is part of the klaytn library.
//
// The klaytn library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The klaytn library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the klaytn library. If not, see <http://www.gnu.org/licenses/>.

package database

import (
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger"
)

const gcThreshold = int64(1 << 30)
const sizeGCTickerTime = 1 * time.Minute

type badgerDB struct {
	fn       string
	db       *badger.DB
	gcTicker *time.Ticker
	closeCh  chan struct{}
}

func getBadgerDBDefaultOption(dbDir string) badger.Options {
	opts := badger.DefaultOptions
	opts.Dir = dbDir
	opts.ValueDir = dbDir
	return opts
}

func NewBadgerDB(dbDir string) (*badgerDB, error) {
	if fi, err := os.Stat(dbDir); err == nil {
		if !fi.IsDir() {
			return nil, fmt.Errorf("badger db path is not a directory: %v", dbDir)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(dbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create badger db dir %v: %w", dbDir, err)
		}
	} else {
		return nil, fmt.Errorf("failed to stat badger db dir %v: %w", dbDir, err)
	}

	db, err := badger.Open(getBadgerDBDefaultOption(dbDir))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger db at %v: %w", dbDir, err)
	}

	bg := &badgerDB{
		fn:       dbDir,
		db:       db,
		gcTicker: time.NewTicker(sizeGCTickerTime),
		closeCh:  make(chan struct{}),
	}
	go bg.runValueLogGC()
	return bg, nil
}

// runValueLogGC periodically reclaims badger's value log once it has grown
// past gcThreshold since the last reclaim.
func (bg *badgerDB) runValueLogGC() {
	_, lastSize := bg.db.Size()
	for {
		select {
		case <-bg.gcTicker.C:
			_, curr := bg.db.Size()
			if curr-lastSize < gcThreshold {
				continue
			}
			if err := bg.db.RunValueLogGC(0.5); err != nil {
				dbLogger.Debug("badger value log gc skipped", "err", err)
				continue
			}
			_, lastSize = bg.db.Size()
		case <-bg.closeCh:
			bg.gcTicker.Stop()
			return
		}
	}
}

func (bg *badgerDB) Type() DBType { return BadgerDB }
func (bg *badgerDB) Path() string { return bg.fn }

func (bg *badgerDB) Put(key, value []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Set(key, value); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (bg *badgerDB) Has(key []byte) (bool, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	_, err := txn.Get(key)
	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (bg *badgerDB) Get(key []byte) ([]byte, error) {
	txn := bg.db.NewTransaction(false)
	defer txn.Discard()
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.Value()
}

func (bg *badgerDB) Delete(key []byte) error {
	txn := bg.db.NewTransaction(true)
	defer txn.Discard()
	if err := txn.Delete(key); err != nil {
		return err
	}
	return txn.Commit(nil)
}

func (bg *badgerDB) NewBatch() Batch { return &badgerBatch{db: bg.db, txn: bg.db.NewTransaction(true)} }

func (bg *badgerDB) NewIterator(prefix []byte) Iterator {
	txn := bg.db.NewTransaction(false)
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	it.Seek(prefix)
	return &badgerIterator{txn: txn, it: it, prefix: prefix, started: false}
}

func (bg *badgerDB) Close() {
	close(bg.closeCh)
	if err := bg.db.Close(); err != nil {
		dbLogger.Error("failed to close badger db", "err", err)
	}
}

type badgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	prefix  []byte
	started bool
	item    *badger.Item
}

func (i *badgerIterator) Next() bool {
	if !i.started {
		i.started = true
	} else {
		i.it.Next()
	}
	if !i.it.ValidForPrefix(i.prefix) {
		return false
	}
	i.item = i.it.Item()
	return true
}

func (i *badgerIterator) Key() []byte {
	if i.item == nil {
		return nil
	}
	return append([]byte(nil), i.item.Key()...)
}

func (i *badgerIterator) Value() []byte {
	if i.item == nil {
		return nil
	}
	v, err := i.item.Value()
	if err != nil {
		return nil
	}
	return append([]byte(nil), v...)
}

func (i *badgerIterator) Release() {
	i.it.Close()
	i.txn.Discard()
}

type badgerBatch struct {
	db      *badger.DB
	txn     *badger.Txn
	size    int
	deletes [][]byte
}

func (b *badgerBatch) Put(key, value []byte) error {
	if err := b.txn.Set(key, value); err != nil {
		return err
	}
	b.size += len(key) + len(value)
	return nil
}

func (b *badgerBatch) Delete(key []byte) error {
	if err := b.txn.Delete(key); err != nil {
		return err
	}
	b.size += len(key)
	return nil
}

func (b *badgerBatch) Write() error { return b.txn.Commit(nil) }
func (b *badgerBatch) ValueSize() int { return b.size }

func (b *badgerBatch) Reset() {
	b.txn.Discard()
	b.txn = b.db.NewTransaction(true)
	b.size = 0
}

