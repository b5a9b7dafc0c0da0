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

// Package database implements numi-core's C4 component: an ordered KV
// abstraction over dual backends (badger/leveldb), with atomic multi-table
// batch commits (spec.md §4.4). The Database/Batch interfaces below are the
// teacher's own shape (storage/database/badger_database.go,
// storage/database/leveldb_database.go); DBManager's sprawling block/header/
// trie-specific read/write methods are not — this package only needs Put/
// Get/Has/Delete/NewBatch/Close plus the table-prefixing trick.
package database

import "github.com/numi-chain/numi-core/log"

var dbLogger = log.NewModuleLogger(log.Store)

// DBType identifies which on-disk engine backs a Database.
type DBType int

const (
	BadgerDB DBType = iota
	LevelDB
	MemoryDB
)

// Database is the minimal ordered KV surface every backend implements.
type Database interface {
	Type() DBType
	Put(key, value []byte) error
	Has(key []byte) (bool, error)
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	NewBatch() Batch
	NewIterator(prefix []byte) Iterator
	Close()
}

// Batch buffers writes for atomic commit (spec.md §4.4 "committed
// atomically: either all ... land, or none").
type Batch interface {
	Put(key, value []byte) error
	Delete(key []byte) error
	ValueSize() int
	Write() error
	Reset()
}

// Iterator walks keys in the given prefix, in key order.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
}

// table namespaces a Database under a fixed key prefix, the same trick the
// teacher's badgerTable/leveldb table wrappers use, so the seven logical
// tables of spec.md §4.4 can share one physical database handle.
type table struct {
	db     Database
	prefix string
}

func newTable(db Database, prefix string) *table { return &table{db: db, prefix: prefix} }

func (t *table) key(k []byte) []byte {
	return append(append([]byte(nil), t.prefix...), k...)
}

func (t *table) Put(key, value []byte) error { return t.db.Put(t.key(key), value) }
func (t *table) Has(key []byte) (bool, error) { return t.db.Has(t.key(key)) }
func (t *table) Get(key []byte) ([]byte, error) { return t.db.Get(t.key(key)) }
func (t *table) Delete(key []byte) error { return t.db.Delete(t.key(key)) }

func (t *table) NewIterator() Iterator {
	return t.db.NewIterator([]byte(t.prefix))
}

// tableBatch scopes a shared Batch to one table's key prefix.
type tableBatch struct {
	batch  Batch
	prefix string
}

func (t *table) NewBatchAt(batch Batch) *tableBatch {
	return &tableBatch{batch: batch, prefix: t.prefix}
}

func (tb *tableBatch) key(k []byte) []byte {
	return append(append([]byte(nil), tb.prefix...), k...)
}

func (tb *tableBatch) Put(key, value []byte) error { return tb.batch.Put(tb.key(key), value) }
func (tb *tableBatch) Delete(key []byte) error      { return tb.batch.Delete(tb.key(key)) }
