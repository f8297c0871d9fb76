package merkle_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zkns/internal/merkle"
	"zkns/internal/namekey"
)

func TestEmptyRootStable(t *testing.T) {
	m := merkle.NewMap()
	assert.Equal(t, merkle.EmptyRoot(), m.Root())
	assert.Equal(t, merkle.NewMap().Root(), m.Root())
}

func TestRootIndependentOfInsertionOrder(t *testing.T) {
	a := merkle.NewMap()
	a.Set(namekey.MustEncode("alice"), []byte("r1"))
	a.Set(namekey.MustEncode("bob"), []byte("r2"))
	a.Set(namekey.MustEncode("carol"), []byte("r3"))

	b := merkle.NewMap()
	b.Set(namekey.MustEncode("carol"), []byte("r3"))
	b.Set(namekey.MustEncode("alice"), []byte("r1"))
	b.Set(namekey.MustEncode("bob"), []byte("r2"))

	assert.Equal(t, a.Root(), b.Root())
}

func TestRootChangesWithContents(t *testing.T) {
	m := merkle.NewMap()
	empty := m.Root()

	key := namekey.MustEncode("alice")
	m.Set(key, []byte("r1"))
	one := m.Root()
	assert.NotEqual(t, empty, one)

	m.Set(key, []byte("r2"))
	assert.NotEqual(t, one, m.Root())

	m.Set(key, []byte("r1"))
	assert.Equal(t, one, m.Root())

	m.Delete(key)
	assert.Equal(t, empty, m.Root())
}

func TestKeyAndValueBoundToLeaf(t *testing.T) {
	// Same value under a different key must not produce the same root.
	a := merkle.NewMap()
	a.Set(namekey.MustEncode("alice"), []byte("r"))
	b := merkle.NewMap()
	b.Set(namekey.MustEncode("bob"), []byte("r"))
	assert.NotEqual(t, a.Root(), b.Root())
}

func TestSnapshotIsolation(t *testing.T) {
	m := merkle.NewMap()
	key := namekey.MustEncode("alice")
	m.Set(key, []byte("r1"))
	root := m.Root()

	snap := m.Snapshot()
	snap.Set(key, []byte("r2"))
	snap.Set(namekey.MustEncode("bob"), []byte("r3"))

	assert.Equal(t, root, m.Root())
	assert.NotEqual(t, root, snap.Root())

	got, ok := m.Get(key)
	require.True(t, ok)
	assert.Equal(t, []byte("r1"), got)
}

func TestGetCopies(t *testing.T) {
	m := merkle.NewMap()
	key := namekey.MustEncode("alice")
	m.Set(key, []byte("r1"))
	root := m.Root()

	v, ok := m.Get(key)
	require.True(t, ok)
	v[0] = 'x'
	assert.Equal(t, root, m.Root())
}
