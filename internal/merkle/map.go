// Package merkle provides a deterministic merkle digest over a key-value map.
// The root is a pure function of the map contents: leaves are (key, value)
// pairs hashed and ordered by key, then folded into a binary tree. Any two
// maps with equal contents produce equal roots regardless of insertion order.
package merkle

import (
	"encoding/binary"
	"sort"

	"golang.org/x/crypto/blake2b"

	"zkns/internal/namekey"
)

var (
	leafPrefix = []byte{0x00}
	nodePrefix = []byte{0x01}
)

// EmptyRoot is the root of a map with no entries.
func EmptyRoot() [32]byte {
	return blake2b.Sum256(leafPrefix)
}

// Map is a key-value map with a cached merkle root. Not safe for concurrent
// use; callers own synchronization.
type Map struct {
	entries map[namekey.Key][]byte
	root    [32]byte
	dirty   bool
}

// NewMap returns an empty map.
func NewMap() *Map {
	return &Map{entries: make(map[namekey.Key][]byte), root: EmptyRoot()}
}

// Set stores value under key. The value is copied.
func (m *Map) Set(key namekey.Key, value []byte) {
	v := make([]byte, len(value))
	copy(v, value)
	m.entries[key] = v
	m.dirty = true
}

// Get returns the value stored under key, if any.
func (m *Map) Get(key namekey.Key) ([]byte, bool) {
	v, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, true
}

// Delete removes key if present.
func (m *Map) Delete(key namekey.Key) {
	if _, ok := m.entries[key]; ok {
		delete(m.entries, key)
		m.dirty = true
	}
}

// Len returns the number of entries.
func (m *Map) Len() int { return len(m.entries) }

// Keys returns all keys in ascending packed order.
func (m *Map) Keys() []namekey.Key {
	keys := make([]namekey.Key, 0, len(m.entries))
	for k := range m.entries {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return less(keys[i], keys[j]) })
	return keys
}

// Snapshot returns an independent deep copy. Mutating either map leaves the
// other untouched; settlement replays against a snapshot so an abort never
// bleeds into the live view.
func (m *Map) Snapshot() *Map {
	cp := &Map{
		entries: make(map[namekey.Key][]byte, len(m.entries)),
		root:    m.root,
		dirty:   m.dirty,
	}
	for k, v := range m.entries {
		vv := make([]byte, len(v))
		copy(vv, v)
		cp.entries[k] = vv
	}
	return cp
}

// Root computes the merkle root over the current contents. The result is
// cached until the next mutation.
func (m *Map) Root() [32]byte {
	if !m.dirty {
		return m.root
	}
	keys := m.Keys()
	level := make([][32]byte, len(keys))
	for i, k := range keys {
		level[i] = leafHash(k, m.entries[k])
	}
	m.root = fold(level)
	m.dirty = false
	return m.root
}

func leafHash(key namekey.Key, value []byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(leafPrefix)
	h.Write(key[:])
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(value)))
	h.Write(n[:])
	h.Write(value)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

func nodeHash(left, right [32]byte) [32]byte {
	h, _ := blake2b.New256(nil)
	h.Write(nodePrefix)
	h.Write(left[:])
	h.Write(right[:])
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// fold reduces a level of hashes pairwise. An unpaired trailing node is
// carried up unchanged, which keeps the reduction deterministic for any leaf
// count.
func fold(level [][32]byte) [32]byte {
	if len(level) == 0 {
		return EmptyRoot()
	}
	for len(level) > 1 {
		next := make([][32]byte, 0, (len(level)+1)/2)
		for i := 0; i+1 < len(level); i += 2 {
			next = append(next, nodeHash(level[i], level[i+1]))
		}
		if len(level)%2 == 1 {
			next = append(next, level[len(level)-1])
		}
		level = next
	}
	return level[0]
}

func less(a, b namekey.Key) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
