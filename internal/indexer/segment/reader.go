package segment

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/RoaringBitmap/roaring/v2"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindex/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/bindex/pkg/metrics"
)

// Reader serves random access to a published index file. The document table
// and the dictionary are held in memory; posting lists are read on demand.
// All methods are safe for concurrent use.
type Reader struct {
	file     *os.File
	path     string
	header   Header
	docs     []index.Document
	dict     []TermInfo
	postBase int64
	postSize uint64
	modTime  time.Time

	cache   *lru.Cache[string, []uint32]
	metrics *metrics.Metrics

	closeOnce sync.Once
	closeErr  error
}

type ReaderOption func(*Reader) error

// WithPostingCache keeps up to n decoded posting lists in an LRU cache.
// n <= 0 disables caching.
func WithPostingCache(n int) ReaderOption {
	return func(r *Reader) error {
		if n <= 0 {
			return nil
		}
		c, err := lru.New[string, []uint32](n)
		if err != nil {
			return fmt.Errorf("creating posting cache: %w", err)
		}
		r.cache = c
		return nil
	}
}

func WithMetrics(m *metrics.Metrics) ReaderOption {
	return func(r *Reader) error {
		r.metrics = m
		return nil
	}
}

// Open validates the header of the file at path and loads its document table
// and dictionary. Any structural problem yields a *FormatError and the file
// is closed.
func Open(path string, opts ...ReaderOption) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening index file: %w", err)
	}
	r := &Reader{file: f, path: path}
	if err := r.load(); err != nil {
		f.Close()
		return nil, err
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			f.Close()
			return nil, err
		}
	}
	return r, nil
}

func (r *Reader) load() error {
	st, err := r.file.Stat()
	if err != nil {
		return fmt.Errorf("stat index file: %w", err)
	}
	size := st.Size()
	r.modTime = st.ModTime()
	if size < PrefixSize {
		return apperrors.Formatf(r.path, "file is %d bytes, shorter than the %d-byte header", size, PrefixSize)
	}

	prefix := make([]byte, PrefixSize)
	if _, err := r.file.ReadAt(prefix, 0); err != nil {
		return apperrors.Formatf(r.path, "reading header: %v", err)
	}
	if string(prefix[0:4]) != Magic {
		return apperrors.Formatf(r.path, "bad magic %q", prefix[0:4])
	}
	h := decodeHeader(prefix)
	switch {
	case h.Version != FormatVersion:
		return apperrors.Formatf(r.path, "unsupported version %d", h.Version)
	case h.HeaderSize != HeaderSize:
		return apperrors.Formatf(r.path, "header_size %d, want %d (file not finalized?)", h.HeaderSize, HeaderSize)
	case int64(h.FileSize) != size:
		return apperrors.Formatf(r.path, "file_size field %d does not match actual size %d", h.FileSize, size)
	case h.DocTableOffset != PrefixSize:
		return apperrors.Formatf(r.path, "doc_table_offset %d, want %d", h.DocTableOffset, PrefixSize)
	case h.TermDictOffset < h.DocTableOffset || h.PostingOffset < h.TermDictOffset || h.PostingOffset > h.FileSize:
		return apperrors.Formatf(r.path, "section offsets out of order: doc=%d dict=%d postings=%d size=%d",
			h.DocTableOffset, h.TermDictOffset, h.PostingOffset, h.FileSize)
	}
	r.header = h
	r.postBase = int64(h.PostingOffset)
	r.postSize = uint64(h.FileSize - h.PostingOffset)

	meta := make([]byte, h.PostingOffset-h.DocTableOffset)
	if _, err := r.file.ReadAt(meta, int64(h.DocTableOffset)); err != nil {
		return apperrors.Formatf(r.path, "reading document table and dictionary: %v", err)
	}
	split := h.TermDictOffset - h.DocTableOffset
	if err := r.decodeDocuments(meta[:split]); err != nil {
		return err
	}
	return r.decodeDictionary(meta[split:])
}

func (r *Reader) decodeDocuments(buf []byte) error {
	d := decoder{buf: buf}
	r.docs = make([]index.Document, 0, min(int(r.header.DocCount), len(buf)/docRecordMin))
	for i := uint32(0); i < r.header.DocCount; i++ {
		title, ok := d.string32()
		if !ok {
			return apperrors.Formatf(r.path, "document table truncated at document %d", i)
		}
		path, ok := d.string32()
		if !ok {
			return apperrors.Formatf(r.path, "document table truncated at document %d", i)
		}
		byteSize, ok1 := d.uint32()
		tokens, ok2 := d.uint32()
		if !ok1 || !ok2 {
			return apperrors.Formatf(r.path, "document table truncated at document %d", i)
		}
		r.docs = append(r.docs, index.Document{
			ID:         i,
			Title:      title,
			Path:       path,
			ByteSize:   byteSize,
			TokenCount: tokens,
		})
	}
	if d.remaining() != 0 {
		return apperrors.Formatf(r.path, "%d unexpected bytes after document table", d.remaining())
	}
	return nil
}

func (r *Reader) decodeDictionary(buf []byte) error {
	d := decoder{buf: buf}
	r.dict = make([]TermInfo, 0, min(int(r.header.TermCount), len(buf)/dictRecordMin))
	for i := uint32(0); i < r.header.TermCount; i++ {
		term, ok := d.string16()
		if !ok {
			return apperrors.Formatf(r.path, "dictionary truncated at term %d", i)
		}
		offset, ok1 := d.uint32()
		size, ok2 := d.uint32()
		occurrences, ok3 := d.uint32()
		if !ok1 || !ok2 || !ok3 {
			return apperrors.Formatf(r.path, "dictionary truncated at term %d", i)
		}
		if size < 4 || size%4 != 0 || uint64(offset)+uint64(size) > r.postSize {
			return apperrors.Formatf(r.path, "term %q: posting record [%d,+%d) outside posting section", term, offset, size)
		}
		if n := len(r.dict); n > 0 && r.dict[n-1].Term >= term {
			return apperrors.Formatf(r.path, "dictionary not sorted at term %q", term)
		}
		r.dict = append(r.dict, TermInfo{
			Term:             term,
			PostingOffset:    offset,
			PostingSize:      size,
			TotalOccurrences: occurrences,
		})
	}
	if d.remaining() != 0 {
		return apperrors.Formatf(r.path, "%d unexpected bytes after dictionary", d.remaining())
	}
	return nil
}

func (r *Reader) Path() string        { return r.path }
func (r *Reader) ModTime() time.Time { return r.modTime }
func (r *Reader) Header() Header      { return r.header }
func (r *Reader) DocCount() int       { return len(r.docs) }
func (r *Reader) TermCount() int      { return len(r.dict) }

// Documents returns the document table. Callers must not modify it.
func (r *Reader) Documents() []index.Document {
	return r.docs
}

func (r *Reader) Document(id uint32) (index.Document, bool) {
	if int64(id) >= int64(len(r.docs)) {
		return index.Document{}, false
	}
	return r.docs[id], true
}

// Lookup finds the dictionary record for term by binary search.
func (r *Reader) Lookup(term string) (TermInfo, bool) {
	i := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if i >= len(r.dict) || r.dict[i].Term != term {
		return TermInfo{}, false
	}
	return r.dict[i], true
}

// Postings reads the document ids for term. An absent term yields nil and
// no error. The returned slice is shared with the cache and must not be
// modified.
func (r *Reader) Postings(term string) ([]uint32, error) {
	info, ok := r.Lookup(term)
	if !ok {
		return nil, nil
	}
	if r.cache != nil {
		if ids, ok := r.cache.Get(term); ok {
			r.metrics.ObservePostingFetch(true)
			return ids, nil
		}
	}
	ids, err := r.readPostings(info)
	if err != nil {
		return nil, err
	}
	r.metrics.ObservePostingFetch(false)
	if r.cache != nil {
		r.cache.Add(term, ids)
	}
	return ids, nil
}

func (r *Reader) readPostings(info TermInfo) ([]uint32, error) {
	buf := make([]byte, info.PostingSize)
	if _, err := r.file.ReadAt(buf, r.postBase+int64(info.PostingOffset)); err != nil {
		if err == io.EOF {
			return nil, apperrors.Formatf(r.path, "posting list for %q truncated", info.Term)
		}
		return nil, fmt.Errorf("reading postings for %q: %w", info.Term, err)
	}
	count := binary.LittleEndian.Uint32(buf[0:4])
	if count != info.DocCount() {
		return nil, apperrors.Formatf(r.path, "posting list for %q holds %d ids, record size implies %d",
			info.Term, count, info.DocCount())
	}
	ids := make([]uint32, count)
	for i := range ids {
		id := binary.LittleEndian.Uint32(buf[4+4*i:])
		if id >= r.header.DocCount || (i > 0 && id <= ids[i-1]) {
			return nil, apperrors.Formatf(r.path, "posting list for %q has invalid id %d at position %d", info.Term, id, i)
		}
		ids[i] = id
	}
	return ids, nil
}

// Universe returns the set of every document id in the file.
func (r *Reader) Universe() *roaring.Bitmap {
	return index.UniverseOf(len(r.docs))
}

// TopTerms returns up to n dictionary records ordered by total occurrences,
// descending, with ties broken by term.
func (r *Reader) TopTerms(n int) []TermInfo {
	if n <= 0 {
		return nil
	}
	sorted := make([]TermInfo, len(r.dict))
	copy(sorted, r.dict)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalOccurrences != sorted[j].TotalOccurrences {
			return sorted[i].TotalOccurrences > sorted[j].TotalOccurrences
		}
		return sorted[i].Term < sorted[j].Term
	})
	if n < len(sorted) {
		sorted = sorted[:n]
	}
	return sorted
}

// Load materializes the whole file, posting section included.
func (r *Reader) Load() (*index.Index, error) {
	ix := &index.Index{
		Documents: make([]index.Document, len(r.docs)),
		Terms:     make([]index.TermEntry, 0, len(r.dict)),
	}
	copy(ix.Documents, r.docs)
	for _, info := range r.dict {
		ids, err := r.readPostings(info)
		if err != nil {
			return nil, err
		}
		ix.Terms = append(ix.Terms, index.TermEntry{
			Term: info.Term,
			Postings: index.PostingList{
				DocIDs:           ids,
				TotalOccurrences: uint64(info.TotalOccurrences),
			},
		})
	}
	return ix, nil
}

func (r *Reader) Close() error {
	r.closeOnce.Do(func() {
		r.closeErr = r.file.Close()
	})
	return r.closeErr
}

const (
	docRecordMin  = 16
	dictRecordMin = 14
)

// decoder walks a little-endian byte slice, reporting truncation instead of
// panicking.
type decoder struct {
	buf []byte
	off int
}

func (d *decoder) remaining() int { return len(d.buf) - d.off }

func (d *decoder) uint32() (uint32, bool) {
	if d.remaining() < 4 {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(d.buf[d.off:])
	d.off += 4
	return v, true
}

func (d *decoder) string32() (string, bool) {
	n, ok := d.uint32()
	if !ok || uint64(n) > uint64(d.remaining()) {
		return "", false
	}
	s := string(d.buf[d.off : d.off+int(n)])
	d.off += int(n)
	return s, true
}

func (d *decoder) string16() (string, bool) {
	if d.remaining() < 2 {
		return "", false
	}
	n := int(binary.LittleEndian.Uint16(d.buf[d.off:]))
	d.off += 2
	if n > d.remaining() {
		return "", false
	}
	s := string(d.buf[d.off : d.off+n])
	d.off += n
	return s, true
}
