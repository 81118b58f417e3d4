package blockcache

import (
	"container/list"
	"time"

	s3store "github.com/marmos91/s3block/store"
)

// state is the finite state machine driving a cache entry, per spec.md §4.1.
type state int

const (
	stateClean state = iota
	stateDirty
	stateWriting
	stateWriting2
	stateReading
	stateReading2
)

func (s state) String() string {
	switch s {
	case stateClean:
		return "CLEAN"
	case stateDirty:
		return "DIRTY"
	case stateWriting:
		return "WRITING"
	case stateWriting2:
		return "WRITING2"
	case stateReading:
		return "READING"
	case stateReading2:
		return "READING2"
	default:
		return "UNKNOWN"
	}
}

// entry is one cache slot. All fields are guarded by the owning Store's mu.
type entry struct {
	idx   uint32
	state state
	data  []byte
	hash  s3store.Hash

	// dirtySince is when this entry most recently transitioned into DIRTY;
	// the write-back worker becomes eligible once now-dirtySince >= WriteDelay.
	dirtySince time.Time

	// pending holds the newest payload superseding an in-flight WRITING or
	// READING fetch (WRITING2 / READING2).
	pending []byte

	cleanElem *list.Element // membership in the Store's clean LRU list, nil otherwise
	dirtyElem *list.Element // membership in the Store's dirty FIFO list, nil otherwise
}
