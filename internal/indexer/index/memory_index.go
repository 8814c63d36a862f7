package index

import (
	"sort"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

// MemoryIndex accumulates postings while a corpus is being built. It also
// serves as an in-memory query source.
type MemoryIndex struct {
	mu       sync.RWMutex
	index    map[string]*PostingList
	universe *roaring.Bitmap
	size     int64
}

func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		index:    make(map[string]*PostingList),
		universe: roaring.New(),
	}
}

// AddDocument records docID in the universe and appends it once to the
// posting list of every term in counts, adding the in-document count to the
// term's total occurrences. A document with no terms still joins the
// universe.
func (m *MemoryIndex) AddDocument(docID uint32, counts map[string]uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.universe.Add(docID)
	for term, count := range counts {
		pl, exists := m.index[term]
		if !exists {
			pl = &PostingList{DocIDs: make([]uint32, 0, 4)}
			m.index[term] = pl
			m.size += int64(len(term)) + 32
		}
		pl.DocIDs = append(pl.DocIDs, docID)
		pl.TotalOccurrences += uint64(count)
		m.size += 4
	}
}

// Search returns a copy of the posting list for term.
func (m *MemoryIndex) Search(term string) (PostingList, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	pl, exists := m.index[term]
	if !exists {
		return PostingList{}, false
	}
	ids := SortAndDedupe(append([]uint32(nil), pl.DocIDs...))
	return PostingList{DocIDs: ids, TotalOccurrences: pl.TotalOccurrences}, true
}

func (m *MemoryIndex) Postings(term string) ([]uint32, error) {
	pl, _ := m.Search(term)
	return pl.DocIDs, nil
}

// Universe returns a copy of the ids added so far.
func (m *MemoryIndex) Universe() *roaring.Bitmap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.universe.Clone()
}

// Snapshot returns the dictionary sorted by term with every posting list
// sorted and de-duplicated.
func (m *MemoryIndex) Snapshot() []TermEntry {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entries := make([]TermEntry, 0, len(m.index))
	for term, pl := range m.index {
		ids := SortAndDedupe(append([]uint32(nil), pl.DocIDs...))
		entries = append(entries, TermEntry{
			Term: term,
			Postings: PostingList{
				DocIDs:           ids,
				TotalOccurrences: pl.TotalOccurrences,
			},
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Term < entries[j].Term
	})
	return entries
}

// Size is a rough estimate of the accumulated postings in bytes.
func (m *MemoryIndex) Size() int64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

func (m *MemoryIndex) DocCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int(m.universe.GetCardinality())
}

func (m *MemoryIndex) TermCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.index)
}
