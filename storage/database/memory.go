package database

import (
	"sort"
	"strings"
	"sync"
)

// memoryDB is an in-process Database used by tests and by ephemeral nodes
// that don't need persistence across restarts.
type memoryDB struct {
	mu sync.RWMutex
	m  map[string][]byte
}

func NewMemoryDB() Database {
	return &memoryDB{m: make(map[string][]byte)}
}

func (m *memoryDB) Type() DBType { return MemoryDB }

func (m *memoryDB) Put(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.m[string(key)] = append([]byte(nil), value...)
	return nil
}

func (m *memoryDB) Has(key []byte) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.m[string(key)]
	return ok, nil
}

func (m *memoryDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.m[string(key)]
	if !ok {
		return nil, errNotFound
	}
	return append([]byte(nil), v...), nil
}

func (m *memoryDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.m, string(key))
	return nil
}

func (m *memoryDB) NewBatch() Batch { return &memoryBatch{db: m} }

func (m *memoryDB) NewIterator(prefix []byte) Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.m {
		if strings.HasPrefix(k, string(prefix)) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &memoryIterator{db: m, keys: keys, pos: -1}
}

func (m *memoryDB) Close() {}

type memoryIterator struct {
	db   *memoryDB
	keys []string
	pos  int
}

func (it *memoryIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memoryIterator) Key() []byte { return []byte(it.keys[it.pos]) }

func (it *memoryIterator) Value() []byte {
	it.db.mu.RLock()
	defer it.db.mu.RUnlock()
	return append([]byte(nil), it.db.m[it.keys[it.pos]]...)
}

func (it *memoryIterator) Release() {}

type memoryOp struct {
	del   bool
	key   []byte
	value []byte
}

type memoryBatch struct {
	db   *memoryDB
	ops  []memoryOp
	size int
}

func (b *memoryBatch) Put(key, value []byte) error {
	b.ops = append(b.ops, memoryOp{key: append([]byte(nil), key...), value: append([]byte(nil), value...)})
	b.size += len(key) + len(value)
	return nil
}

func (b *memoryBatch) Delete(key []byte) error {
	b.ops = append(b.ops, memoryOp{del: true, key: append([]byte(nil), key...)})
	b.size += len(key)
	return nil
}

func (b *memoryBatch) ValueSize() int { return b.size }

func (b *memoryBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, op := range b.ops {
		if op.del {
			delete(b.db.m, string(op.key))
		} else {
			b.db.m[string(op.key)] = op.value
		}
	}
	return nil
}

func (b *memoryBatch) Reset() {
	b.ops = nil
	b.size = 0
}

type notFoundError struct{}

func (notFoundError) Error() string { return "database: key not found" }

var errNotFound = notFoundError{}
