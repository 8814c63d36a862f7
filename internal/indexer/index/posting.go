package index

import (
	"fmt"
	"slices"
	"sort"

	"github.com/RoaringBitmap/roaring/v2"
)

// Document is one entry of the document table. ID equals the document's
// position in scan order.
type Document struct {
	ID         uint32 `json:"id"`
	Title      string `json:"title"`
	Path       string `json:"path"`
	ByteSize   uint32 `json:"byte_size"`
	TokenCount uint32 `json:"token_count"`
}

// PostingList holds the ascending, duplicate-free ids of the documents that
// contain a term, and how often the term occurs across all of them.
type PostingList struct {
	DocIDs           []uint32 `json:"doc_ids"`
	TotalOccurrences uint64   `json:"total_occurrences"`
}

type TermEntry struct {
	Term     string      `json:"term"`
	Postings PostingList `json:"postings"`
}

// Index is a finalized inverted index: the document table plus the term
// dictionary sorted byte-wise by term.
type Index struct {
	Documents []Document
	Terms     []TermEntry
}

// Lookup finds term by binary search over the sorted dictionary.
func (ix *Index) Lookup(term string) (PostingList, bool) {
	i := sort.Search(len(ix.Terms), func(i int) bool {
		return ix.Terms[i].Term >= term
	})
	if i >= len(ix.Terms) || ix.Terms[i].Term != term {
		return PostingList{}, false
	}
	return ix.Terms[i].Postings, true
}

// Postings returns the document ids for term, or nil when it is absent.
func (ix *Index) Postings(term string) ([]uint32, error) {
	pl, ok := ix.Lookup(term)
	if !ok {
		return nil, nil
	}
	return pl.DocIDs, nil
}

// Universe returns every document id of the index.
func (ix *Index) Universe() *roaring.Bitmap {
	return UniverseOf(len(ix.Documents))
}

func (ix *Index) DocCount() int {
	return len(ix.Documents)
}

// Validate checks the structural invariants the on-disk format depends on.
func (ix *Index) Validate() error {
	for i, doc := range ix.Documents {
		if doc.ID != uint32(i) {
			return fmt.Errorf("document at position %d has id %d", i, doc.ID)
		}
	}
	for i, entry := range ix.Terms {
		if i > 0 && ix.Terms[i-1].Term >= entry.Term {
			return fmt.Errorf("term %q out of order after %q", entry.Term, ix.Terms[i-1].Term)
		}
		ids := entry.Postings.DocIDs
		for j, id := range ids {
			if j > 0 && ids[j-1] >= id {
				return fmt.Errorf("term %q: doc ids not strictly ascending at %d", entry.Term, j)
			}
			if int(id) >= len(ix.Documents) {
				return fmt.Errorf("term %q: doc id %d outside document table", entry.Term, id)
			}
		}
		if entry.Postings.TotalOccurrences < uint64(len(ids)) {
			return fmt.Errorf("term %q: %d occurrences across %d documents",
				entry.Term, entry.Postings.TotalOccurrences, len(ids))
		}
	}
	return nil
}

// UniverseOf returns the bitmap {0, ..., n-1}.
func UniverseOf(n int) *roaring.Bitmap {
	b := roaring.New()
	if n > 0 {
		b.AddRange(0, uint64(n))
	}
	return b
}

// SortAndDedupe sorts ids in place and drops repeats.
func SortAndDedupe(ids []uint32) []uint32 {
	slices.Sort(ids)
	return slices.Compact(ids)
}
