// Package storage provides the ordered byte-keyed persistence layer shared by
// the escrow engine and the report pipeline. Everything lives in one leveldb
// database partitioned into sub-databases by a single-byte key prefix, so each
// sub-database is independently iterable and the key spaces never overlap.
package storage

import (
	"bytes"
	"encoding/binary"

	"github.com/syndtr/goleveldb/leveldb"
	ldbutil "github.com/syndtr/goleveldb/leveldb/util"

	dErrors "verigate/pkg/domain-errors"
)

// Sub-database prefixes. Declared together so disjointness is auditable.
const (
	PrefixPresentations byte = 'i' // presentation escrow: SAID -> received timestamp
	PrefixRevocations   byte = 'r' // revocation escrow: SAID -> received timestamp
	PrefixAccounts      byte = 'a' // authorization index: AID -> credential SAID
	PrefixRevoked       byte = 'k' // revocation audit: SAID|ts -> credential SAID
	PrefixStats         byte = 's' // report stats: digest -> JSON ReportStats
	PrefixStatus        byte = 't' // status index set: status -> digests
	PrefixChunks        byte = 'c' // chunk store: digest|index -> bytes
	PrefixSubmitters    byte = 'p' // submitter index set: AID -> digests
)

// keySep separates a logical key from its ordinal or member suffix inside a
// composite leveldb key. Logical keys are qb64 text or status names and never
// contain a zero byte.
const keySep byte = 0x00

// Store owns the leveldb handle. Sub-database accessors are cheap views.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if needed) the verifier database at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "opening verifier database")
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Cell returns a single-value-per-key view over the given prefix.
func (s *Store) Cell(prefix byte) Cell {
	return Cell{db: s.db, prefix: prefix}
}

// Set returns an insertion-ordered multi-value view over the given prefix.
func (s *Store) Set(prefix byte) Set {
	return Set{db: s.db, prefix: prefix}
}

// Chunks returns a sequential chunk view over the given prefix.
func (s *Store) Chunks(prefix byte) Chunks {
	return Chunks{db: s.db, prefix: prefix}
}

// Write applies a composed batch atomically. Readers observe either none or
// all of the batch, which is what keeps status-index moves consistent.
func (s *Store) Write(b *Batch) error {
	if err := s.db.Write(&b.batch, nil); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "writing batch")
	}
	return nil
}

// Batch accumulates writes that must land together.
type Batch struct {
	batch leveldb.Batch
}

// Element is a key/value pair returned by iteration, with the sub-database
// prefix stripped.
type Element struct {
	Key   []byte
	Value []byte
}

func prefixKey(prefix byte, key []byte) []byte {
	out := make([]byte, 1, 1+len(key))
	out[0] = prefix
	return append(out, key...)
}

// Cell stores one value per key.
type Cell struct {
	db     *leveldb.DB
	prefix byte
}

// Put stores value under key, overwriting any previous value.
func (c Cell) Put(key, value []byte) error {
	if err := c.db.Put(prefixKey(c.prefix, key), value, nil); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "cell put")
	}
	return nil
}

// PutBatch queues the write on b instead of applying it immediately.
func (c Cell) PutBatch(b *Batch, key, value []byte) {
	b.batch.Put(prefixKey(c.prefix, key), value)
}

// Get returns the value for key, or found=false.
func (c Cell) Get(key []byte) (value []byte, found bool, err error) {
	value, err = c.db.Get(prefixKey(c.prefix, key), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "cell get")
	}
	return value, true, nil
}

// Has reports whether key is present.
func (c Cell) Has(key []byte) (bool, error) {
	ok, err := c.db.Has(prefixKey(c.prefix, key), nil)
	if err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "cell has")
	}
	return ok, nil
}

// Delete removes key. Deleting an absent key is not an error.
func (c Cell) Delete(key []byte) error {
	if err := c.db.Delete(prefixKey(c.prefix, key), nil); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "cell delete")
	}
	return nil
}

// Items returns a snapshot of all key/value pairs in the cell, in key order.
// Mutations made while the caller walks the result are not reflected.
func (c Cell) Items() ([]Element, error) {
	snap, err := c.db.GetSnapshot()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cell snapshot")
	}
	defer snap.Release()

	var out []Element
	iter := snap.NewIterator(ldbutil.BytesPrefix([]byte{c.prefix}), nil)
	defer iter.Release()
	for iter.Next() {
		key := append([]byte(nil), iter.Key()[1:]...)
		val := append([]byte(nil), iter.Value()...)
		out = append(out, Element{Key: key, Value: val})
	}
	if err := iter.Error(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "cell iterate")
	}
	return out, nil
}

// Set stores multiple member values per key, preserving insertion order.
// Members are stored under prefix|key|0x00|ordinal so iteration in key order
// yields members oldest first.
type Set struct {
	db     *leveldb.DB
	prefix byte
}

func (s Set) keyRange(key []byte) *ldbutil.Range {
	start := append(prefixKey(s.prefix, key), keySep)
	return ldbutil.BytesPrefix(start)
}

func ordKey(base []byte, ord uint64) []byte {
	out := make([]byte, len(base)+8)
	copy(out, base)
	binary.BigEndian.PutUint64(out[len(base):], ord)
	return out
}

// scan walks the members of key, calling fn with each entry's full leveldb
// key and member value. fn returns false to stop early.
func (s Set) scan(key []byte, fn func(fullKey, member []byte) bool) error {
	iter := s.db.NewIterator(s.keyRange(key), nil)
	defer iter.Release()
	for iter.Next() {
		k := append([]byte(nil), iter.Key()...)
		v := append([]byte(nil), iter.Value()...)
		if !fn(k, v) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "set iterate")
	}
	return nil
}

// Add inserts member into the set at key if not already present. Returns
// true when the member was inserted.
func (s Set) Add(key, member []byte) (bool, error) {
	b := &Batch{}
	added, err := s.AddBatch(b, key, member)
	if err != nil || !added {
		return added, err
	}
	if err := s.db.Write(&b.batch, nil); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "set add")
	}
	return true, nil
}

// AddBatch queues an idempotent insert on b. The membership check reads
// current state, so callers must not race Add/Rem for the same key outside
// the single-writer discipline each component keeps.
func (s Set) AddBatch(b *Batch, key, member []byte) (bool, error) {
	var next uint64
	present := false
	err := s.scan(key, func(fullKey, m []byte) bool {
		if bytes.Equal(m, member) {
			present = true
			return false
		}
		next = binary.BigEndian.Uint64(fullKey[len(fullKey)-8:]) + 1
		return true
	})
	if err != nil {
		return false, err
	}
	if present {
		return false, nil
	}
	base := append(prefixKey(s.prefix, key), keySep)
	b.batch.Put(ordKey(base, next), member)
	return true, nil
}

// Rem removes member from the set at key. Returns true when it was present.
func (s Set) Rem(key, member []byte) (bool, error) {
	b := &Batch{}
	removed, err := s.RemBatch(b, key, member)
	if err != nil || !removed {
		return removed, err
	}
	if err := s.db.Write(&b.batch, nil); err != nil {
		return false, dErrors.Wrap(err, dErrors.CodeInternal, "set rem")
	}
	return true, nil
}

// RemBatch queues removal of member on b.
func (s Set) RemBatch(b *Batch, key, member []byte) (bool, error) {
	removed := false
	err := s.scan(key, func(fullKey, m []byte) bool {
		if bytes.Equal(m, member) {
			b.batch.Delete(fullKey)
			removed = true
			return false
		}
		return true
	})
	if err != nil {
		return false, err
	}
	return removed, nil
}

// Members returns a snapshot of the set's members in insertion order.
// Concurrent Add/Rem after the snapshot is taken are not reflected.
func (s Set) Members(key []byte) ([][]byte, error) {
	snap, err := s.db.GetSnapshot()
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "set snapshot")
	}
	defer snap.Release()

	var out [][]byte
	iter := snap.NewIterator(s.keyRange(key), nil)
	defer iter.Release()
	for iter.Next() {
		out = append(out, append([]byte(nil), iter.Value()...))
	}
	if err := iter.Error(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "set members")
	}
	return out, nil
}

// Count returns the number of members in the set at key.
func (s Set) Count(key []byte) (int, error) {
	n := 0
	err := s.scan(key, func(_, _ []byte) bool {
		n++
		return true
	})
	return n, err
}

// Chunks stores sequential byte blocks keyed by (id, index). Concatenating
// chunks in index order reconstructs the original stream.
type Chunks struct {
	db     *leveldb.DB
	prefix byte
}

func (c Chunks) chunkKey(id []byte, index uint64) []byte {
	base := append(prefixKey(c.prefix, id), keySep)
	return ordKey(base, index)
}

// Put stores the chunk at (id, index).
func (c Chunks) Put(id []byte, index uint64, chunk []byte) error {
	if err := c.db.Put(c.chunkKey(id, index), chunk, nil); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "chunk put")
	}
	return nil
}

// Get returns the chunk at (id, index), or found=false.
func (c Chunks) Get(id []byte, index uint64) (chunk []byte, found bool, err error) {
	chunk, err = c.db.Get(c.chunkKey(id, index), nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, dErrors.Wrap(err, dErrors.CodeInternal, "chunk get")
	}
	return chunk, true, nil
}

// DeleteAll removes every chunk stored for id. A fresh upload must clear the
// whole prefix first so a shorter re-upload cannot leave stale tail chunks.
func (c Chunks) DeleteAll(id []byte) error {
	b := new(leveldb.Batch)
	iter := c.db.NewIterator(ldbutil.BytesPrefix(append(prefixKey(c.prefix, id), keySep)), nil)
	for iter.Next() {
		b.Delete(append([]byte(nil), iter.Key()...))
	}
	err := iter.Error()
	iter.Release()
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "chunk scan")
	}
	if err := c.db.Write(b, nil); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "chunk delete")
	}
	return nil
}
