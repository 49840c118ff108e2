package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/vdb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCell_PutGetDelete(t *testing.T) {
	s := openTest(t)
	cell := s.Cell(PrefixAccounts)

	_, found, err := cell.Get([]byte("missing"))
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, cell.Put([]byte("aid"), []byte("said-1")))
	v, found, err := cell.Get([]byte("aid"))
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("said-1"), v)

	// overwrite
	require.NoError(t, cell.Put([]byte("aid"), []byte("said-2")))
	v, _, err = cell.Get([]byte("aid"))
	require.NoError(t, err)
	assert.Equal(t, []byte("said-2"), v)

	require.NoError(t, cell.Delete([]byte("aid")))
	_, found, err = cell.Get([]byte("aid"))
	require.NoError(t, err)
	assert.False(t, found)

	// deleting an absent key is fine
	require.NoError(t, cell.Delete([]byte("aid")))
}

func TestCell_PrefixesAreDisjoint(t *testing.T) {
	s := openTest(t)
	a := s.Cell(PrefixAccounts)
	b := s.Cell(PrefixStats)

	require.NoError(t, a.Put([]byte("k"), []byte("from-a")))
	require.NoError(t, b.Put([]byte("k"), []byte("from-b")))

	va, _, err := a.Get([]byte("k"))
	require.NoError(t, err)
	vb, _, err := b.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, []byte("from-a"), va)
	assert.Equal(t, []byte("from-b"), vb)

	items, err := a.Items()
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, []byte("k"), items[0].Key)
	assert.Equal(t, []byte("from-a"), items[0].Value)
}

func TestSet_InsertionOrderAndIdempotence(t *testing.T) {
	s := openTest(t)
	set := s.Set(PrefixStatus)
	key := []byte("accepted")

	for _, m := range []string{"dig-c", "dig-a", "dig-b"} {
		added, err := set.Add(key, []byte(m))
		require.NoError(t, err)
		assert.True(t, added)
	}

	// duplicate add is a no-op
	added, err := set.Add(key, []byte("dig-a"))
	require.NoError(t, err)
	assert.False(t, added)

	members, err := set.Members(key)
	require.NoError(t, err)
	require.Len(t, members, 3)
	assert.Equal(t, []byte("dig-c"), members[0])
	assert.Equal(t, []byte("dig-a"), members[1])
	assert.Equal(t, []byte("dig-b"), members[2])

	n, err := set.Count(key)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSet_RemoveAndReadd(t *testing.T) {
	s := openTest(t)
	set := s.Set(PrefixStatus)
	key := []byte("accepted")

	_, err := set.Add(key, []byte("dig-1"))
	require.NoError(t, err)
	_, err = set.Add(key, []byte("dig-2"))
	require.NoError(t, err)

	removed, err := set.Rem(key, []byte("dig-1"))
	require.NoError(t, err)
	assert.True(t, removed)

	removed, err = set.Rem(key, []byte("dig-1"))
	require.NoError(t, err)
	assert.False(t, removed)

	// re-added member goes to the back
	_, err = set.Add(key, []byte("dig-1"))
	require.NoError(t, err)
	members, err := set.Members(key)
	require.NoError(t, err)
	require.Len(t, members, 2)
	assert.Equal(t, []byte("dig-2"), members[0])
	assert.Equal(t, []byte("dig-1"), members[1])
}

func TestSet_BatchMoveIsAtomic(t *testing.T) {
	s := openTest(t)
	set := s.Set(PrefixStatus)
	cell := s.Cell(PrefixStats)
	dig := []byte("dig-1")

	_, err := set.Add([]byte("accepted"), dig)
	require.NoError(t, err)
	require.NoError(t, cell.Put(dig, []byte("accepted-stats")))

	b := &Batch{}
	removed, err := set.RemBatch(b, []byte("accepted"), dig)
	require.NoError(t, err)
	require.True(t, removed)
	_, err = set.AddBatch(b, []byte("verified"), dig)
	require.NoError(t, err)
	cell.PutBatch(b, dig, []byte("verified-stats"))
	require.NoError(t, s.Write(b))

	accepted, err := set.Members([]byte("accepted"))
	require.NoError(t, err)
	assert.Empty(t, accepted)
	verified, err := set.Members([]byte("verified"))
	require.NoError(t, err)
	require.Len(t, verified, 1)
	v, _, err := cell.Get(dig)
	require.NoError(t, err)
	assert.Equal(t, []byte("verified-stats"), v)
}

func TestChunks_RoundTripAndDeleteAll(t *testing.T) {
	s := openTest(t)
	chunks := s.Chunks(PrefixChunks)
	id := []byte("dig-1")

	require.NoError(t, chunks.Put(id, 0, []byte("aaaa")))
	require.NoError(t, chunks.Put(id, 1, []byte("bbbb")))
	require.NoError(t, chunks.Put(id, 2, []byte("cc")))

	var got []byte
	for i := uint64(0); ; i++ {
		chunk, found, err := chunks.Get(id, i)
		require.NoError(t, err)
		if !found {
			break
		}
		got = append(got, chunk...)
	}
	assert.Equal(t, []byte("aaaabbbbcc"), got)

	require.NoError(t, chunks.DeleteAll(id))
	_, found, err := chunks.Get(id, 0)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestChunks_DistinctIDsDoNotCollide(t *testing.T) {
	s := openTest(t)
	chunks := s.Chunks(PrefixChunks)

	require.NoError(t, chunks.Put([]byte("dig-1"), 0, []byte("one")))
	require.NoError(t, chunks.Put([]byte("dig-2"), 0, []byte("two")))
	require.NoError(t, chunks.DeleteAll([]byte("dig-1")))

	chunk, found, err := chunks.Get([]byte("dig-2"), 0)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, []byte("two"), chunk)
}
