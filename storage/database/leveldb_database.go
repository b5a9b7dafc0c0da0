// Copyright 2015 The go-ethereum Authors
// This file is part of the go-ethereum library.
//
// The go-ethereum library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The go-ethereum library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the go-ethereum library. If not, see <http://www.gnu.org/licenses/>.

package database

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

var OpenFileLimit = 64

type levelDB struct {
	fn string
	db *leveldb.DB
}

func getLDBOptions(cacheSizeMB, numHandles int) *opt.Options {
	if cacheSizeMB < 16 {
		cacheSizeMB = 16
	}
	if numHandles < 16 {
		numHandles = 16
	}
	return &opt.Options{
		OpenFilesCacheCapacity: numHandles,
		BlockCacheCapacity:     cacheSizeMB / 2 * opt.MiB,
		WriteBuffer:            cacheSizeMB / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
}

func NewLDBDatabase(file string, cacheSizeMB, numHandles int) (*levelDB, error) {
	db, err := leveldb.OpenFile(file, getLDBOptions(cacheSizeMB, numHandles))
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		db, err = leveldb.RecoverFile(file, nil)
	}
	if err != nil {
		return nil, err
	}
	return &levelDB{fn: file, db: db}, nil
}

func (db *levelDB) Type() DBType { return LevelDB }
func (db *levelDB) Path() string { return db.fn }

func (db *levelDB) Put(key, value []byte) error { return db.db.Put(key, value, nil) }
func (db *levelDB) Has(key []byte) (bool, error) { return db.db.Has(key, nil) }
func (db *levelDB) Get(key []byte) ([]byte, error) {
	v, err := db.db.Get(key, nil)
	if err != nil {
		return nil, err
	}
	return v, nil
}
func (db *levelDB) Delete(key []byte) error { return db.db.Delete(key, nil) }

func (db *levelDB) NewBatch() Batch { return &levelDBBatch{db: db.db, batch: new(leveldb.Batch)} }

func (db *levelDB) NewIterator(prefix []byte) Iterator {
	return &levelDBIterator{it: db.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (db *levelDB) Close() {
	if err := db.db.Close(); err != nil {
		dbLogger.Error("failed to close leveldb", "err", err)
	}
}

type levelDBIterator struct {
	it interface {
		Next() bool
		Key() []byte
		Value() []byte
		Release()
	}
}

func (i *levelDBIterator) Next() bool    { return i.it.Next() }
func (i *levelDBIterator) Key() []byte   { return append([]byte(nil), i.it.Key()...) }
func (i *levelDBIterator) Value() []byte { return append([]byte(nil), i.it.Value()...) }
func (i *levelDBIterator) Release()      { i.it.Release() }

type levelDBBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
	size  int
}

func (b *levelDBBatch) Put(key, value []byte) error {
	b.batch.Put(key, value)
	b.size += len(key) + len(value)
	return nil
}

func (b *levelDBBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	b.size += len(key)
	return nil
}

func (b *levelDBBatch) Write() error  { return b.db.Write(b.batch, nil) }
func (b *levelDBBatch) ValueSize() int { return b.size }
func (b *levelDBBatch) Reset() {
	b.batch.Reset()
	b.size = 0
}
