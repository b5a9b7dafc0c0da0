package database

import "testing"

func TestMemoryDBPutGetDelete(t *testing.T) {
	db := NewMemoryDB()
	if err := db.Put([]byte("k"), []byte("v")); err != nil {
		t.Fatal(err)
	}
	v, err := db.Get([]byte("k"))
	if err != nil || string(v) != "v" {
		t.Fatalf("got %v %v", v, err)
	}
	if err := db.Delete([]byte("k")); err != nil {
		t.Fatal(err)
	}
	if ok, _ := db.Has([]byte("k")); ok {
		t.Fatal("expected key to be gone")
	}
}

func TestTablePrefixesKeys(t *testing.T) {
	db := NewMemoryDB()
	a := newTable(db, "a")
	b := newTable(db, "b")
	a.Put([]byte("x"), []byte("from-a"))
	b.Put([]byte("x"), []byte("from-b"))

	av, _ := a.Get([]byte("x"))
	bv, _ := b.Get([]byte("x"))
	if string(av) != "from-a" || string(bv) != "from-b" {
		t.Fatalf("table prefixing collided: a=%s b=%s", av, bv)
	}
}

func TestBatchAtomicWrite(t *testing.T) {
	db := NewMemoryDB()
	batch := db.NewBatch()
	batch.Put([]byte("k1"), []byte("v1"))
	batch.Put([]byte("k2"), []byte("v2"))
	if err := batch.Write(); err != nil {
		t.Fatal(err)
	}
	v1, _ := db.Get([]byte("k1"))
	v2, _ := db.Get([]byte("k2"))
	if string(v1) != "v1" || string(v2) != "v2" {
		t.Fatalf("batch did not land both writes: %s %s", v1, v2)
	}
}

func TestIteratorWalksPrefixInOrder(t *testing.T) {
	db := NewMemoryDB()
	tbl := newTable(db, "p")
	tbl.Put([]byte("2"), []byte("two"))
	tbl.Put([]byte("1"), []byte("one"))
	tbl.Put([]byte("3"), []byte("three"))

	it := tbl.NewIterator()
	defer it.Release()
	var got []string
	for it.Next() {
		got = append(got, string(it.Value()))
	}
	if len(got) != 3 || got[0] != "one" || got[1] != "two" || got[2] != "three" {
		t.Fatalf("unexpected iteration order: %v", got)
	}
}
