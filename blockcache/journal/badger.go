package journal

import (
	"encoding/binary"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	s3store "github.com/marmos91/s3block/store"
)

// BadgerJournal persists dirty-block markers, including their payload
// bytes, in an embedded Badger database used as the block cache's
// recovery WAL backing store.
type BadgerJournal struct {
	db *badger.DB
}

// Open opens (or creates) a Badger-backed journal rooted at dir.
func Open(dir string) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("journal: opening badger at %q: %w", dir, err)
	}
	return &BadgerJournal{db: db}, nil
}

func journalKey(idx uint32) []byte {
	key := make([]byte, 4)
	binary.BigEndian.PutUint32(key, idx)
	return key
}

// encodeValue lays out hash(16) + dirtySince(8) + dataLen(4) + data, so
// a recovered entry carries the actual dirty payload, not just its hash.
// A dataLen of 0 means an all-zero block, matching Store.Write's nil
// convention.
func encodeValue(data []byte, hash s3store.Hash, dirtySince int64) []byte {
	head := len(hash) + 8 + 4
	v := make([]byte, head+len(data))
	copy(v, hash[:])
	binary.BigEndian.PutUint64(v[len(hash):], uint64(dirtySince))
	binary.BigEndian.PutUint32(v[len(hash)+8:], uint32(len(data)))
	copy(v[head:], data)
	return v
}

func decodeValue(v []byte) (data []byte, hash s3store.Hash, dirtySince int64, err error) {
	head := len(hash) + 8 + 4
	if len(v) < head {
		return nil, hash, 0, fmt.Errorf("journal: malformed record of length %d", len(v))
	}
	copy(hash[:], v[:len(hash)])
	dirtySince = int64(binary.BigEndian.Uint64(v[len(hash):]))
	dataLen := binary.BigEndian.Uint32(v[len(hash)+8:])
	if len(v) != head+int(dataLen) {
		return nil, hash, 0, fmt.Errorf("journal: malformed record of length %d, want %d", len(v), head+int(dataLen))
	}
	if dataLen > 0 {
		data = make([]byte, dataLen)
		copy(data, v[head:])
	}
	return data, hash, dirtySince, nil
}

func (j *BadgerJournal) AppendDirty(idx uint32, data []byte, hash s3store.Hash, dirtySince int64) error {
	return j.db.Update(func(txn *badger.Txn) error {
		return txn.Set(journalKey(idx), encodeValue(data, hash, dirtySince))
	})
}

func (j *BadgerJournal) Clear(idx uint32) error {
	return j.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(journalKey(idx))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		return err
	})
}

func (j *BadgerJournal) Recover() ([]Entry, error) {
	var entries []Entry
	err := j.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			if len(key) != 4 {
				continue
			}
			idx := binary.BigEndian.Uint32(key)
			err := item.Value(func(v []byte) error {
				data, hash, dirtySince, err := decodeValue(v)
				if err != nil {
					return err
				}
				entries = append(entries, Entry{Index: idx, Data: data, Hash: hash, DirtySince: dirtySince})
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (j *BadgerJournal) Close() error {
	return j.db.Close()
}

func (j *BadgerJournal) IsEnabled() bool { return true }

var _ Journal = (*BadgerJournal)(nil)
