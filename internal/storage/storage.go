// Package storage implements the transactional key-value engine behind
// the storage instruction family (spec.md §4.7): a single-writer,
// multi-reader store with copy-on-write snapshot isolation, backed by an
// in-memory B-tree.
//
// The original engine wraps LMDB, whose own MVCC already gives every
// transaction a private, consistent snapshot and makes COMMIT an atomic
// pointer swap. google/btree's BTreeG.Clone gives the same property for a
// pure-Go B-tree: Clone is O(1) and copy-on-write, so opening a
// transaction is "clone the live tree", and COMMIT is "swap the engine's
// live tree for the transaction's (possibly mutated) clone".
package storage

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/google/btree"
)

// ErrWriteLocked is returned by BeginWrite when another write transaction
// already holds the single global write slot. Callers (the storagefam
// handler) translate this into vm.ErrReschedule, never surface it to the
// program directly.
var ErrWriteLocked = errors.New("storage: write transaction already active")

// ErrReadersFull is returned by BeginRead when the configured reader
// bound is already saturated.
var ErrReadersFull = errors.New("storage: reader slots exhausted")

// ErrDuplicateKey is returned by Assoc on a no-overwrite collision.
var ErrDuplicateKey = errors.New("storage: key already exists")

// ErrUnknownKey is returned by Retr on a miss.
var ErrUnknownKey = errors.New("storage: key not found")

// item is the B-tree element: a key/value pair ordered by key bytes.
type item struct {
	key   []byte
	value []byte
}

func less(a, b item) bool { return bytes.Compare(a.key, b.key) < 0 }

// Engine is the process-wide store. One Engine backs the whole server;
// every WRITE/READ bracket opens a Txn against it.
type Engine struct {
	mu   sync.Mutex // guards tree swaps on commit
	tree *btree.BTreeG[item]

	writeLocked atomic.Bool
	readers     atomic.Int32
	maxReaders  int32

	cursorSeq atomic.Uint32
}

// Option configures an Engine.
type Option func(*Engine)

// WithMaxReaders bounds the number of concurrent read transactions,
// mirroring the KV layer's maxreaders setting (spec.md §6 CLI surface).
func WithMaxReaders(n int) Option {
	return func(e *Engine) { e.maxReaders = int32(n) }
}

// New creates an empty Engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		tree:       btree.NewG(32, less),
		maxReaders: 126,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Kind distinguishes read from write transactions.
type Kind int

const (
	KindRead Kind = iota
	KindWrite
)

// Txn is one open transaction: a private, consistent view of the store
// plus (for writes) the mutations applied so far.
type Txn struct {
	engine *Engine
	kind   Kind
	tree   *btree.BTreeG[item]

	cursors map[uint64]*Cursor
	done    bool
}

// BeginWrite attempts to acquire the single global write slot. On
// success it returns a Txn backed by a clone of the current tree; the
// caller mutates that clone freely until Commit or Close.
func (e *Engine) BeginWrite() (*Txn, error) {
	if !e.writeLocked.CompareAndSwap(false, true) {
		return nil, ErrWriteLocked
	}
	e.mu.Lock()
	snapshot := e.tree.Clone()
	e.mu.Unlock()
	return &Txn{
		engine:  e,
		kind:    KindWrite,
		tree:    snapshot,
		cursors: make(map[uint64]*Cursor),
	}, nil
}

// BeginRead opens a concurrent read transaction against a snapshot of the
// current tree, subject to the configured reader bound.
func (e *Engine) BeginRead() (*Txn, error) {
	for {
		cur := e.readers.Load()
		if cur >= e.maxReaders {
			return nil, ErrReadersFull
		}
		if e.readers.CompareAndSwap(cur, cur+1) {
			break
		}
	}
	e.mu.Lock()
	snapshot := e.tree.Clone()
	e.mu.Unlock()
	return &Txn{
		engine:  e,
		kind:    KindRead,
		tree:    snapshot,
		cursors: make(map[uint64]*Cursor),
	}, nil
}

// Kind reports whether this is a read or write transaction.
func (t *Txn) Kind() Kind { return t.kind }

// Assoc inserts key/value with no-overwrite semantics. Requires a write
// txn; the caller (storagefam) is responsible for rejecting ASSOC when
// the innermost txn is a read.
func (t *Txn) Assoc(key, value []byte) error {
	k := item{key: append([]byte{}, key...)}
	if _, found := t.tree.Get(k); found {
		return ErrDuplicateKey
	}
	t.tree.ReplaceOrInsert(item{key: append([]byte{}, key...), value: append([]byte{}, value...)})
	return nil
}

// AssocQuery reports whether key is present, valid under either txn kind.
func (t *Txn) AssocQuery(key []byte) bool {
	_, found := t.tree.Get(item{key: key})
	return found
}

// Retr reads the value for key under this txn. The returned slice
// belongs to the txn's private tree, already a copy of anything the
// caller mutated before commit, but storagefam must still copy it into
// the env heap before the txn closes (spec.md's read-slice invariant).
func (t *Txn) Retr(key []byte) ([]byte, error) {
	v, found := t.tree.Get(item{key: key})
	if !found {
		return nil, ErrUnknownKey
	}
	return v.value, nil
}

// Commit swaps the engine's live tree for this txn's (possibly mutated)
// clone. Only valid for write txns; read txns have nothing to commit.
func (t *Txn) Commit() error {
	if t.kind != KindWrite {
		return nil
	}
	t.engine.mu.Lock()
	t.engine.tree = t.tree
	t.engine.mu.Unlock()
	return nil
}

// Close releases whatever slot this txn held (the write lock, or a
// reader slot) and drops all of its cursors. Safe to call more than
// once; only the first call has effect.
func (t *Txn) Close() {
	if t.done {
		return
	}
	t.done = true
	t.cursors = nil
	switch t.kind {
	case KindWrite:
		t.engine.writeLocked.Store(false)
	case KindRead:
		t.engine.readers.Add(-1)
	}
}

// NewCursorID mints a process-unique cursor id: two concatenated
// big-endian uint32s (a per-engine sequence number and a per-txn nonce),
// matching spec.md §4.7.3's "two big-endian integers concatenated".
func (t *Txn) NewCursorID() [8]byte {
	seq := t.engine.cursorSeq.Add(1)
	var id [8]byte
	binary.BigEndian.PutUint32(id[0:4], seq)
	binary.BigEndian.PutUint32(id[4:8], uint32(len(t.cursors)))
	return id
}
