package reporting

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"verigate/internal/keri"
	"verigate/internal/platform/storage"
	"verigate/pkg/domain"
)

func newTestFiler(t *testing.T) *Filer {
	t.Helper()
	store, err := storage.Open(t.TempDir() + "/rdb")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return NewFiler(store)
}

func testAID(seed string) domain.AID {
	return domain.AID(keri.DigestSAID([]byte(seed)))
}

func TestFiler_CreateRoundTrip(t *testing.T) {
	f := newTestFiler(t)
	aid := testAID("submitter")
	content := bytes.Repeat([]byte("x"), ChunkSize*2+17)
	dig := keri.DigestSAID(content)

	require.NoError(t, f.Create(aid, dig, "q1.zip", "application/zip", bytes.NewReader(content)))

	stats, found, err := f.Get(dig)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, aid, stats.Submitter)
	assert.Equal(t, "q1.zip", stats.Filename)
	assert.Equal(t, "application/zip", stats.ContentType)
	assert.Equal(t, StatusAccepted, stats.Status)
	assert.Equal(t, uint64(len(content)), stats.Size)

	got, err := io.ReadAll(f.GetData(dig))
	require.NoError(t, err)
	assert.Equal(t, content, got)
}

func TestFiler_CreateEmptyUpload(t *testing.T) {
	f := newTestFiler(t)
	dig := keri.DigestSAID([]byte("empty"))

	require.NoError(t, f.Create(testAID("s"), dig, "e.zip", "application/zip", strings.NewReader("")))

	stats, found, err := f.Get(dig)
	require.NoError(t, err)
	require.True(t, found)
	assert.Zero(t, stats.Size)

	got, err := io.ReadAll(f.GetData(dig))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFiler_ReuploadClearsStaleChunks(t *testing.T) {
	f := newTestFiler(t)
	aid := testAID("submitter")
	dig := keri.DigestSAID([]byte("same-digest"))

	long := bytes.Repeat([]byte("a"), ChunkSize*3)
	require.NoError(t, f.Create(aid, dig, "long.zip", "application/zip", bytes.NewReader(long)))

	short := bytes.Repeat([]byte("b"), ChunkSize/2)
	require.NoError(t, f.Create(aid, dig, "short.zip", "application/zip", bytes.NewReader(short)))

	got, err := io.ReadAll(f.GetData(dig))
	require.NoError(t, err)
	assert.Equal(t, short, got)

	stats, _, err := f.Get(dig)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(short)), stats.Size)
}

func TestFiler_StatusIndexMovesAtomically(t *testing.T) {
	f := newTestFiler(t)
	dig := keri.DigestSAID([]byte("report"))
	require.NoError(t, f.Create(testAID("s"), dig, "r.zip", "application/zip", strings.NewReader("data")))

	accepted, err := f.GetAcceptedDigests()
	require.NoError(t, err)
	assert.Contains(t, accepted, dig)

	ok, err := f.Update(dig, StatusVerified, "all signed")
	require.NoError(t, err)
	require.True(t, ok)

	accepted, err = f.GetAcceptedDigests()
	require.NoError(t, err)
	assert.NotContains(t, accepted, dig)

	stats, found, err := f.Get(dig)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusVerified, stats.Status)
	assert.Equal(t, "all signed", stats.Message)
}

func TestFiler_UpdateSameStatusKeepsIndexEntry(t *testing.T) {
	f := newTestFiler(t)
	dig := keri.DigestSAID([]byte("still-accepted"))
	require.NoError(t, f.Create(testAID("s"), dig, "r.zip", "application/zip", strings.NewReader("data")))

	ok, err := f.Update(dig, StatusAccepted, "requeued")
	require.NoError(t, err)
	require.True(t, ok)

	accepted, err := f.GetAcceptedDigests()
	require.NoError(t, err)
	assert.Contains(t, accepted, dig)

	stats, _, err := f.Get(dig)
	require.NoError(t, err)
	assert.Equal(t, "requeued", stats.Message)
}

func TestFiler_ConcurrentCreatesAllIndexed(t *testing.T) {
	f := newTestFiler(t)
	aid := testAID("submitter")

	// Uploads for the same submitter contend on the accepted status set and
	// the submitter index; every digest must survive the contention.
	const uploads = 32
	digs := make([]domain.SAID, uploads)
	for i := range digs {
		digs[i] = keri.DigestSAID([]byte("upload-" + strconv.Itoa(i)))
	}

	var wg sync.WaitGroup
	errs := make([]error, uploads)
	for i, dig := range digs {
		i, dig := i, dig
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = f.Create(aid, dig, "r.zip", "application/zip", strings.NewReader("data"))
		}()
	}
	wg.Wait()
	for _, err := range errs {
		require.NoError(t, err)
	}

	accepted, err := f.GetAcceptedDigests()
	require.NoError(t, err)
	assert.Len(t, accepted, uploads)
	for _, dig := range digs {
		assert.Contains(t, accepted, dig)
	}

	indexed, err := f.ByAID(aid)
	require.NoError(t, err)
	assert.Len(t, indexed, uploads)
}

func TestFiler_ReuploadAfterTerminalStatusLeavesOneIndexEntry(t *testing.T) {
	f := newTestFiler(t)
	dig := keri.DigestSAID([]byte("resubmitted"))
	require.NoError(t, f.Create(testAID("s"), dig, "r.zip", "application/zip", strings.NewReader("v1")))

	ok, err := f.Update(dig, StatusFailed, "bad manifest")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, f.Create(testAID("s"), dig, "r.zip", "application/zip", strings.NewReader("v2")))

	accepted, err := f.GetAcceptedDigests()
	require.NoError(t, err)
	assert.Contains(t, accepted, dig)

	// the stale terminal-set entry is cleared in the same batch
	failed, err := f.status.Members([]byte(StatusFailed))
	require.NoError(t, err)
	assert.Empty(t, failed)

	stats, found, err := f.Get(dig)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, StatusAccepted, stats.Status)
}

func TestFiler_UpdateUnknownDigest(t *testing.T) {
	f := newTestFiler(t)
	ok, err := f.Update(keri.DigestSAID([]byte("missing")), StatusFailed, "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFiler_UpdateRejectsUnknownStatus(t *testing.T) {
	f := newTestFiler(t)
	dig := keri.DigestSAID([]byte("r"))
	require.NoError(t, f.Create(testAID("s"), dig, "r.zip", "application/zip", strings.NewReader("data")))

	_, err := f.Update(dig, Status("archived"), "")
	require.Error(t, err)
}

func TestFiler_UpdateEmptyMessagePreservesExisting(t *testing.T) {
	f := newTestFiler(t)
	dig := keri.DigestSAID([]byte("keep-msg"))
	require.NoError(t, f.Create(testAID("s"), dig, "r.zip", "application/zip", strings.NewReader("data")))

	_, err := f.Update(dig, StatusFailed, "bad manifest")
	require.NoError(t, err)
	_, err = f.Update(dig, StatusFailed, "")
	require.NoError(t, err)

	stats, _, err := f.Get(dig)
	require.NoError(t, err)
	assert.Equal(t, "bad manifest", stats.Message)
}

func TestFiler_ByAID(t *testing.T) {
	f := newTestFiler(t)
	alice := testAID("alice")
	bob := testAID("bob")

	first := keri.DigestSAID([]byte("first"))
	second := keri.DigestSAID([]byte("second"))
	other := keri.DigestSAID([]byte("other"))

	require.NoError(t, f.Create(alice, first, "a1.zip", "application/zip", strings.NewReader("1")))
	require.NoError(t, f.Create(alice, second, "a2.zip", "application/zip", strings.NewReader("2")))
	require.NoError(t, f.Create(bob, other, "b1.zip", "application/zip", strings.NewReader("3")))

	digs, err := f.ByAID(alice)
	require.NoError(t, err)
	assert.Equal(t, []domain.SAID{first, second}, digs)

	digs, err = f.ByAID(bob)
	require.NoError(t, err)
	assert.Equal(t, []domain.SAID{other}, digs)
}
