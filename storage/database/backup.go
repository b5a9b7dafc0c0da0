package database

import (
	"bufio"
	"encoding/binary"
	"io"

	"github.com/golang/snappy"

	"github.com/numi-chain/numi-core/xerrors"
)

// BackupWriter serializes a logical export stream: every key/value pair
// visited across the supplied tables, length-prefixed and snappy-compressed
// (spec.md §4.4 "Backup ... acquire a write barrier ... or emit a logical
// export stream"). Export itself takes no write barrier: a batch that
// commits while it runs can appear partly in the stream.
type BackupWriter struct {
	w *snappy.Writer
}

func NewBackupWriter(dst io.Writer) *BackupWriter {
	return &BackupWriter{w: snappy.NewBufferedWriter(dst)}
}

func (bw *BackupWriter) writeRecord(prefix byte, key, value []byte) error {
	var header [9]byte
	header[0] = prefix
	binary.LittleEndian.PutUint32(header[1:5], uint32(len(key)))
	binary.LittleEndian.PutUint32(header[5:9], uint32(len(value)))
	if _, err := bw.w.Write(header[:]); err != nil {
		return err
	}
	if _, err := bw.w.Write(key); err != nil {
		return err
	}
	_, err := bw.w.Write(value)
	return err
}

func (bw *BackupWriter) Close() error { return bw.w.Close() }

// Export walks every logical table in s and writes a compressed record
// stream to dst. The stream is self-describing (each record carries the
// table prefix byte) so Restore can reconstruct it without external schema
// knowledge.
func (s *Store) Export(dst io.Writer) error {
	bw := NewBackupWriter(dst)
	tables := []*table{s.blocks, s.heightIndex, s.transactions, s.accounts, s.checkpoints, s.state, s.meta}
	for _, t := range tables {
		it := t.NewIterator()
		for it.Next() {
			// Iterator keys carry the table prefix; the record stores it once,
			// in its prefix byte, and Restore puts it back in front of key.
			if err := bw.writeRecord(t.prefix[0], it.Key()[len(t.prefix):], it.Value()); err != nil {
				it.Release()
				return xerrors.StateError("backup_export_write", err)
			}
		}
		it.Release()
	}
	if err := bw.Close(); err != nil {
		return xerrors.StateError("backup_export_close", err)
	}
	return nil
}

// Restore replays a stream produced by Export into a fresh batch, committed
// once at the end so a crash mid-restore leaves the target database
// untouched rather than half-populated.
func (s *Store) Restore(src io.Reader) error {
	r := snappy.NewReader(bufio.NewReader(src))
	batch := s.db.NewBatch()
	for {
		var header [9]byte
		if _, err := io.ReadFull(r, header[:]); err != nil {
			if err == io.EOF {
				break
			}
			return xerrors.StateError("backup_restore_read", err)
		}
		prefix := header[0]
		keyLen := binary.LittleEndian.Uint32(header[1:5])
		valLen := binary.LittleEndian.Uint32(header[5:9])
		key := make([]byte, keyLen)
		if _, err := io.ReadFull(r, key); err != nil {
			return xerrors.StateError("backup_restore_key", err)
		}
		val := make([]byte, valLen)
		if _, err := io.ReadFull(r, val); err != nil {
			return xerrors.StateError("backup_restore_value", err)
		}
		fullKey := append([]byte{prefix}, key...)
		if err := batch.Put(fullKey, val); err != nil {
			return xerrors.StateError("backup_restore_put", err)
		}
	}
	if err := batch.Write(); err != nil {
		return xerrors.StateError("backup_restore_commit", err)
	}
	return nil
}
