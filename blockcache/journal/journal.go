// Package journal implements the dirty-block recovery journal: persisted
// markers for in-flight dirty blocks so a restarted store can re-flush
// whatever a previous instance had not yet propagated downstream.
//
// The marker scheme chosen here (see DESIGN.md) is one key per dirty
// block index, value the dirty-since timestamp, content hash, and the
// dirty payload itself, stored in an embedded github.com/dgraph-io/badger/v4
// database so a crash-restarted store recovers actual content, not just
// the fact that something was dirty.
package journal

import s3store "github.com/marmos91/s3block/store"

// Entry is one recovered dirty-block marker. Data holds the actual dirty
// payload (nil means an all-zero block, matching Store.Write's own nil
// convention) so recovery can re-flush the real content downstream
// instead of an empty buffer.
type Entry struct {
	Index      uint32
	Data       []byte
	Hash       s3store.Hash
	DirtySince int64 // unix nanoseconds
}

// Journal is the pluggable recovery-journal abstraction.
type Journal interface {
	// AppendDirty records that Index became dirty at the given time with
	// the given payload and content hash (both the zero value for an
	// all-zero write). The payload is persisted, not just its hash, so a
	// restarted store can actually re-flush it rather than merely know
	// that something was dirty.
	AppendDirty(idx uint32, data []byte, hash s3store.Hash, dirtySince int64) error

	// Clear removes the marker for idx, called once the write has been
	// propagated downstream successfully.
	Clear(idx uint32) error

	// Recover returns every currently-recorded dirty marker, invoked once
	// at store construction when RecoverDirtyBlocks is enabled.
	Recover() ([]Entry, error)

	// Close releases the journal's resources.
	Close() error

	// IsEnabled reports whether this Journal actually persists anything.
	IsEnabled() bool
}

// NullJournal is a no-op Journal used when recovery is disabled.
type NullJournal struct{}

func (NullJournal) AppendDirty(uint32, []byte, s3store.Hash, int64) error { return nil }
func (NullJournal) Clear(uint32) error                                   { return nil }
func (NullJournal) Recover() ([]Entry, error)                            { return nil, nil }
func (NullJournal) Close() error                                         { return nil }
func (NullJournal) IsEnabled() bool                                      { return false }

var _ Journal = NullJournal{}
