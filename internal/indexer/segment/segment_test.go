package segment

import (
	"context"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/metrics"
)

func sampleIndex() *index.Index {
	return &index.Index{
		Documents: []index.Document{
			{ID: 0, Title: "a", Path: "corpus/a.txt", ByteSize: 12, TokenCount: 2},
			{ID: 1, Title: "b", Path: "corpus/b.txt", ByteSize: 14, TokenCount: 2},
			{ID: 2, Title: "c", Path: "corpus/c.txt", ByteSize: 20, TokenCount: 3},
		},
		Terms: []index.TermEntry{
			{Term: "bird", Postings: index.PostingList{DocIDs: []uint32{1, 2}, TotalOccurrences: 2}},
			{Term: "cat", Postings: index.PostingList{DocIDs: []uint32{0, 2}, TotalOccurrences: 2}},
			{Term: "dog", Postings: index.PostingList{DocIDs: []uint32{0, 1}, TotalOccurrences: 2}},
			{Term: "fish", Postings: index.PostingList{DocIDs: []uint32{2}, TotalOccurrences: 1}},
		},
	}
}

func writeIndex(t *testing.T, ix *index.Index) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.bind")
	_, err := WriteFile(context.Background(), path, ix, time.Second)
	require.NoError(t, err)
	return path
}

func TestRoundTrip(t *testing.T) {
	ix := sampleIndex()
	path := writeIndex(t, ix)

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	assert.Equal(t, 3, r.DocCount())
	assert.Equal(t, 4, r.TermCount())

	loaded, err := r.Load()
	require.NoError(t, err)
	assert.Equal(t, ix, loaded)
}

func TestHeaderOffsetsArePatched(t *testing.T) {
	ix := sampleIndex()
	path := writeIndex(t, ix)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(data), PrefixSize)

	assert.Equal(t, Magic, string(data[0:4]))
	u32 := func(off int) uint32 { return binary.LittleEndian.Uint32(data[off:]) }
	assert.Equal(t, FormatVersion, u32(4))
	assert.Equal(t, uint32(3), u32(8))
	assert.Equal(t, uint32(4), u32(12))
	assert.Equal(t, uint32(PrefixSize), u32(16))

	var docBytes uint32
	for _, d := range ix.Documents {
		docBytes += uint32(docRecordSize(d.Title, d.Path))
	}
	var dictBytes uint32
	for _, e := range ix.Terms {
		dictBytes += uint32(dictRecordSize(e.Term))
	}
	assert.Equal(t, PrefixSize+docBytes, u32(20))
	assert.Equal(t, PrefixSize+docBytes+dictBytes, u32(24))
	assert.Equal(t, uint32(HeaderSize), u32(28))
	assert.Equal(t, uint32(len(data)), u32(32))

	// First posting record belongs to "bird": count 2, ids 1 and 2.
	post := int(u32(24))
	assert.Equal(t, uint32(2), u32(post))
	assert.Equal(t, uint32(1), u32(post+4))
	assert.Equal(t, uint32(2), u32(post+8))
}

func TestWriterToBuffer(t *testing.T) {
	var ws seekBuffer
	w := NewWriter(&ws)
	require.NoError(t, w.Write(sampleIndex()))
	h, err := w.Finalize()
	require.NoError(t, err)
	assert.Equal(t, uint32(len(ws.buf)), h.FileSize)
	assert.Equal(t, h, decodeHeader(ws.buf))

	assert.Error(t, w.Write(sampleIndex()), "writer is single-use")
}

func TestFinalizeBeforeWrite(t *testing.T) {
	var ws seekBuffer
	_, err := NewWriter(&ws).Finalize()
	assert.Error(t, err)
}

func TestLookupAndPostings(t *testing.T) {
	r, err := Open(writeIndex(t, sampleIndex()), WithPostingCache(8))
	require.NoError(t, err)
	defer r.Close()

	info, ok := r.Lookup("cat")
	require.True(t, ok)
	assert.Equal(t, uint32(2), info.DocCount())
	assert.Equal(t, uint32(12), info.PostingSize)

	ids, err := r.Postings("cat")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 2}, ids)

	ids, err = r.Postings("cat")
	require.NoError(t, err)
	assert.Equal(t, []uint32{0, 2}, ids)

	for _, miss := range []string{"", "aardvark", "cats", "zebra"} {
		_, ok := r.Lookup(miss)
		assert.False(t, ok, miss)
		ids, err := r.Postings(miss)
		assert.NoError(t, err)
		assert.Nil(t, ids)
	}
}

func TestDocuments(t *testing.T) {
	r, err := Open(writeIndex(t, sampleIndex()))
	require.NoError(t, err)
	defer r.Close()

	doc, ok := r.Document(1)
	require.True(t, ok)
	assert.Equal(t, "b", doc.Title)
	assert.Equal(t, "corpus/b.txt", doc.Path)
	assert.Equal(t, uint32(14), doc.ByteSize)

	_, ok = r.Document(3)
	assert.False(t, ok)
	assert.Equal(t, []uint32{0, 1, 2}, r.Universe().ToArray())
}

func TestTopTerms(t *testing.T) {
	ix := sampleIndex()
	ix.Terms[3].Postings.TotalOccurrences = 9
	r, err := Open(writeIndex(t, ix))
	require.NoError(t, err)
	defer r.Close()

	top := r.TopTerms(3)
	require.Len(t, top, 3)
	assert.Equal(t, "fish", top[0].Term)
	assert.Equal(t, "bird", top[1].Term)
	assert.Equal(t, "cat", top[2].Term)
	assert.Len(t, r.TopTerms(100), 4)
	assert.Nil(t, r.TopTerms(0))
}

func TestZeroDocumentIndex(t *testing.T) {
	r, err := Open(writeIndex(t, &index.Index{}))
	require.NoError(t, err)
	defer r.Close()

	assert.Zero(t, r.DocCount())
	assert.Zero(t, r.TermCount())
	assert.True(t, r.Universe().IsEmpty())
	assert.Equal(t, uint32(PrefixSize), r.Header().FileSize)

	ids, err := r.Postings("x")
	assert.NoError(t, err)
	assert.Nil(t, ids)
}

func TestOpenRejectsCorruptFiles(t *testing.T) {
	good, err := os.ReadFile(writeIndex(t, sampleIndex()))
	require.NoError(t, err)

	mutate := func(f func([]byte) []byte) []byte {
		return f(append([]byte(nil), good...))
	}
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"short header", good[:20]},
		{"bad magic", mutate(func(b []byte) []byte { copy(b, "XXXX"); return b })},
		{"bad version", mutate(func(b []byte) []byte { b[4] = 9; return b })},
		{"unfinalized", mutate(func(b []byte) []byte { clear(b[16:36]); return b })},
		{"truncated", good[:len(good)-6]},
		{"trailing bytes", append(append([]byte(nil), good...), 0, 0)},
		{"truncated doc table", mutate(func(b []byte) []byte {
			binary.LittleEndian.PutUint32(b[8:], 50)
			return b
		})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "bad.bind")
			require.NoError(t, os.WriteFile(path, tt.data, 0o644))

			r, err := Open(path)
			assert.Nil(t, r)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperrors.ErrFormat), err.Error())
			var fe *apperrors.FormatError
			assert.True(t, errors.As(err, &fe))
		})
	}
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open(filepath.Join(t.TempDir(), "missing.bind"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, apperrors.ErrFormat))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCorruptPostingList(t *testing.T) {
	path := writeIndex(t, sampleIndex())
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	post := binary.LittleEndian.Uint32(data[24:])
	binary.LittleEndian.PutUint32(data[post+4:], 99)
	require.NoError(t, os.WriteFile(path, data, 0o644))

	r, err := Open(path)
	require.NoError(t, err)
	defer r.Close()

	_, err = r.Postings("bird")
	assert.True(t, errors.Is(err, apperrors.ErrFormat))
	_, err = r.Load()
	assert.True(t, errors.Is(err, apperrors.ErrFormat))
}

func TestTermLengthBoundary(t *testing.T) {
	longest := strings.Repeat("a", MaxTermLength)
	ix := &index.Index{
		Documents: []index.Document{{ID: 0}},
		Terms: []index.TermEntry{
			{Term: longest, Postings: index.PostingList{DocIDs: []uint32{0}, TotalOccurrences: 1}},
		},
	}
	r, err := Open(writeIndex(t, ix))
	require.NoError(t, err)
	ids, err := r.Postings(longest)
	require.NoError(t, err)
	assert.Equal(t, []uint32{0}, ids)
	r.Close()

	ix.Terms[0].Term = longest + "a"
	path := filepath.Join(t.TempDir(), "long.bind")
	_, err = WriteFile(context.Background(), path, ix, time.Second)
	assert.True(t, errors.Is(err, apperrors.ErrTermTooLong))
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriteRejectsInvalidIndex(t *testing.T) {
	ix := sampleIndex()
	ix.Terms[0], ix.Terms[1] = ix.Terms[1], ix.Terms[0]
	var ws seekBuffer
	err := NewWriter(&ws).Write(ix)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))
	assert.Empty(t, ws.buf)
}

func TestOccurrencesSaturate(t *testing.T) {
	ix := &index.Index{
		Documents: []index.Document{{ID: 0}},
		Terms: []index.TermEntry{
			{Term: "x", Postings: index.PostingList{DocIDs: []uint32{0}, TotalOccurrences: 1 << 40}},
		},
	}
	r, err := Open(writeIndex(t, ix))
	require.NoError(t, err)
	defer r.Close()
	info, ok := r.Lookup("x")
	require.True(t, ok)
	assert.Equal(t, uint32(0xFFFFFFFF), info.TotalOccurrences)
}

func TestWriteFileLocked(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locked.bind")
	holder := flock.New(path + ".lock")
	locked, err := holder.TryLock()
	require.NoError(t, err)
	require.True(t, locked)

	_, err = WriteFile(context.Background(), path, sampleIndex(), 100*time.Millisecond)
	assert.True(t, errors.Is(err, apperrors.ErrLocked), "got %v", err)
	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	require.NoError(t, holder.Unlock())
	_, err = WriteFile(context.Background(), path, sampleIndex(), 100*time.Millisecond)
	assert.NoError(t, err)
}

func TestConcurrentPostings(t *testing.T) {
	r, err := Open(writeIndex(t, sampleIndex()), WithPostingCache(2), WithMetrics(metrics.New(nil)))
	require.NoError(t, err)
	defer r.Close()

	want := map[string][]uint32{
		"bird": {1, 2},
		"cat":  {0, 2},
		"dog":  {0, 1},
		"fish": {2},
	}
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				for term, ids := range want {
					got, err := r.Postings(term)
					if !assert.NoError(t, err) {
						return
					}
					assert.Equal(t, ids, got)
				}
			}
		}()
	}
	wg.Wait()
}

func TestCloseIsIdempotent(t *testing.T) {
	r, err := Open(writeIndex(t, sampleIndex()))
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}

// seekBuffer is an in-memory io.WriteSeeker.
type seekBuffer struct {
	buf []byte
	pos int
}

func (s *seekBuffer) Write(p []byte) (int, error) {
	if end := s.pos + len(p); end > len(s.buf) {
		s.buf = append(s.buf, make([]byte, end-len(s.buf))...)
	}
	copy(s.buf[s.pos:], p)
	s.pos += len(p)
	return len(p), nil
}

func (s *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case 0:
		s.pos = int(offset)
	case 1:
		s.pos += int(offset)
	case 2:
		s.pos = len(s.buf) + int(offset)
	}
	return int64(s.pos), nil
}
