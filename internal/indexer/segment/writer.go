package segment

import (
	"bufio"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/Adithya-Monish-Kumar-K/bindex/internal/indexer/index"
	apperrors "github.com/Adithya-Monish-Kumar-K/bindex/pkg/errors"
)

// Writer serializes an index in two phases: Write emits the header with
// zeroed offsets followed by the body, and Finalize seeks back to patch the
// offsets and file size in. A Writer is single-use.
type Writer struct {
	ws      io.WriteSeeker
	bw      *bufio.Writer
	pos     uint64
	header  Header
	written bool
	done    bool
}

func NewWriter(ws io.WriteSeeker) *Writer {
	return &Writer{
		ws: ws,
		bw: bufio.NewWriterSize(ws, 64*1024),
	}
}

// Write emits the header placeholders, the document table, the term
// dictionary, and the posting lists. The index is checked before the first
// byte is written, so a rejected index leaves the destination untouched.
func (w *Writer) Write(ix *index.Index) error {
	if w.written {
		return fmt.Errorf("segment writer already used")
	}
	w.written = true

	if err := checkWritable(ix); err != nil {
		return err
	}

	w.header = Header{
		Version:    FormatVersion,
		DocCount:   uint32(len(ix.Documents)),
		TermCount:  uint32(len(ix.Terms)),
		HeaderSize: HeaderSize,
	}
	placeholder := Header{
		Version:   w.header.Version,
		DocCount:  w.header.DocCount,
		TermCount: w.header.TermCount,
	}
	if err := w.write(placeholder.encode()); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}

	w.header.DocTableOffset = uint32(w.pos)
	if err := w.writeDocumentTable(ix.Documents); err != nil {
		return fmt.Errorf("writing document table: %w", err)
	}

	w.header.TermDictOffset = uint32(w.pos)
	dictSize, err := w.writeDictionary(ix.Terms)
	if err != nil {
		return fmt.Errorf("writing term dictionary: %w", err)
	}
	w.header.PostingOffset = w.header.TermDictOffset + uint32(dictSize)

	if err := w.writePostings(ix.Terms); err != nil {
		return fmt.Errorf("writing posting lists: %w", err)
	}
	w.header.FileSize = uint32(w.pos)
	return nil
}

// Finalize flushes the body and back-patches bytes 16..35 of the header. The
// write cursor is left at the end of the file.
func (w *Writer) Finalize() (Header, error) {
	if !w.written {
		return Header{}, fmt.Errorf("finalize before write")
	}
	if w.done {
		return w.header, nil
	}
	if err := w.bw.Flush(); err != nil {
		return Header{}, fmt.Errorf("flushing index body: %w", err)
	}
	if _, err := w.ws.Seek(patchOffset, io.SeekStart); err != nil {
		return Header{}, fmt.Errorf("seeking to header: %w", err)
	}
	patch := make([]byte, patchSize)
	w.header.encodePatch(patch)
	if _, err := w.ws.Write(patch); err != nil {
		return Header{}, fmt.Errorf("patching header: %w", err)
	}
	if _, err := w.ws.Seek(int64(w.pos), io.SeekStart); err != nil {
		return Header{}, fmt.Errorf("restoring write cursor: %w", err)
	}
	w.done = true
	return w.header, nil
}

func (w *Writer) writeDocumentTable(docs []index.Document) error {
	var scratch [4]byte
	for _, doc := range docs {
		for _, s := range []string{doc.Title, doc.Path} {
			binary.LittleEndian.PutUint32(scratch[:], uint32(len(s)))
			if err := w.write(scratch[:]); err != nil {
				return err
			}
			if err := w.writeString(s); err != nil {
				return err
			}
		}
		if err := w.writeUint32(doc.ByteSize); err != nil {
			return err
		}
		if err := w.writeUint32(doc.TokenCount); err != nil {
			return err
		}
	}
	return nil
}

// writeDictionary emits every record with its posting offset computed up
// front by a prefix sum over the posting record sizes. It returns the exact
// byte size of the dictionary section.
func (w *Writer) writeDictionary(terms []index.TermEntry) (uint64, error) {
	start := w.pos
	var relative uint64
	var lenBuf [2]byte
	for _, entry := range terms {
		size := postingRecordSize(len(entry.Postings.DocIDs))
		binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(entry.Term)))
		if err := w.write(lenBuf[:]); err != nil {
			return 0, err
		}
		if err := w.writeString(entry.Term); err != nil {
			return 0, err
		}
		if err := w.writeUint32(uint32(relative)); err != nil {
			return 0, err
		}
		if err := w.writeUint32(uint32(size)); err != nil {
			return 0, err
		}
		if err := w.writeUint32(saturate32(entry.Postings.TotalOccurrences)); err != nil {
			return 0, err
		}
		relative += size
	}
	return w.pos - start, nil
}

func (w *Writer) writePostings(terms []index.TermEntry) error {
	for _, entry := range terms {
		if err := w.writeUint32(uint32(len(entry.Postings.DocIDs))); err != nil {
			return err
		}
		for _, id := range entry.Postings.DocIDs {
			if err := w.writeUint32(id); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Writer) write(p []byte) error {
	n, err := w.bw.Write(p)
	w.pos += uint64(n)
	return err
}

func (w *Writer) writeString(s string) error {
	n, err := w.bw.WriteString(s)
	w.pos += uint64(n)
	return err
}

func (w *Writer) writeUint32(v uint32) error {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	return w.write(buf[:])
}

// checkWritable rejects indexes the format cannot represent: over-long terms,
// broken posting invariants, or a total size beyond the u32 offset range.
func checkWritable(ix *index.Index) error {
	if ix == nil {
		return fmt.Errorf("%w: nil index", apperrors.ErrInvalidInput)
	}
	total := uint64(PrefixSize)
	for _, doc := range ix.Documents {
		total += docRecordSize(doc.Title, doc.Path)
	}
	for _, entry := range ix.Terms {
		if len(entry.Term) > MaxTermLength {
			return fmt.Errorf("%w: %d-byte term starting %q", apperrors.ErrTermTooLong,
				len(entry.Term), entry.Term[:16])
		}
		total += dictRecordSize(entry.Term) + postingRecordSize(len(entry.Postings.DocIDs))
	}
	if total > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes", apperrors.ErrIndexTooLarge, total)
	}
	if err := ix.Validate(); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return nil
}

// WriteFile publishes ix at path. An exclusive lock on path+".lock" keeps
// concurrent builders apart; the file is written under path+".tmp", synced,
// and renamed into place so readers never observe a partial index.
func WriteFile(ctx context.Context, path string, ix *index.Index, lockTimeout time.Duration) (Header, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return Header{}, fmt.Errorf("creating output directory: %w", err)
	}
	lock := flock.New(path + ".lock")
	if lockTimeout <= 0 {
		lockTimeout = time.Second
	}
	lockCtx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := lock.TryLockContext(lockCtx, 50*time.Millisecond)
	if err != nil && lockCtx.Err() == nil {
		return Header{}, fmt.Errorf("acquiring index lock: %w", err)
	}
	if !locked {
		return Header{}, fmt.Errorf("%w: %s", apperrors.ErrLocked, path)
	}
	defer lock.Unlock()

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return Header{}, fmt.Errorf("creating temp index file: %w", err)
	}
	header, err := writeAndSync(f, ix)
	if closeErr := f.Close(); err == nil && closeErr != nil {
		err = fmt.Errorf("closing temp index file: %w", closeErr)
	}
	if err != nil {
		os.Remove(tmpPath)
		return Header{}, err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return Header{}, fmt.Errorf("renaming index file: %w", err)
	}
	return header, nil
}

func writeAndSync(f *os.File, ix *index.Index) (Header, error) {
	w := NewWriter(f)
	if err := w.Write(ix); err != nil {
		return Header{}, err
	}
	header, err := w.Finalize()
	if err != nil {
		return Header{}, err
	}
	if err := f.Sync(); err != nil {
		return Header{}, fmt.Errorf("syncing index file: %w", err)
	}
	return header, nil
}
