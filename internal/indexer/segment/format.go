// Package segment reads and writes the BIND binary index format.
//
// Layout (all integers little-endian):
//
//	header          magic "BIND", version, doc_count, term_count,
//	                doc_table_offset, term_dict_offset, posting_offset,
//	                header_size (=32), then a trailing file_size
//	document table  per doc: title_len u32, title, path_len u32, path,
//	                file_size u32, token_count u32
//	dictionary      per term, sorted: term_len u16, term, posting_offset u32
//	                (relative to the posting section), posting_size u32,
//	                total_occurrences u32
//	postings        per term, same order: doc_count u32, doc_id u32 * doc_count
//
// The four offset fields and file_size are zero until the writer finalizes
// the file and back-patches them.
package segment

import (
	"encoding/binary"
	"math"
)

const (
	Magic         = "BIND"
	FormatVersion uint32 = 1
	// HeaderSize is the value of the header_size field: the fixed fields
	// before the trailing file_size.
	HeaderSize = 32
	// PrefixSize is the number of bytes preceding the document table.
	PrefixSize = HeaderSize + 4
	// MaxTermLength is the longest term a u16 length prefix can describe.
	MaxTermLength = math.MaxUint16

	patchOffset = 16
	patchSize   = PrefixSize - patchOffset
)

// Header mirrors the fixed prefix of an index file.
type Header struct {
	Version        uint32 `json:"version"`
	DocCount       uint32 `json:"doc_count"`
	TermCount      uint32 `json:"term_count"`
	DocTableOffset uint32 `json:"doc_table_offset"`
	TermDictOffset uint32 `json:"term_dict_offset"`
	PostingOffset  uint32 `json:"posting_offset"`
	HeaderSize     uint32 `json:"header_size"`
	FileSize       uint32 `json:"file_size"`
}

func (h Header) encode() []byte {
	buf := make([]byte, PrefixSize)
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.DocCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.TermCount)
	h.encodePatch(buf[patchOffset:])
	return buf
}

// encodePatch writes the back-patched fields into buf[0:patchSize].
func (h Header) encodePatch(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], h.DocTableOffset)
	binary.LittleEndian.PutUint32(buf[4:8], h.TermDictOffset)
	binary.LittleEndian.PutUint32(buf[8:12], h.PostingOffset)
	binary.LittleEndian.PutUint32(buf[12:16], h.HeaderSize)
	binary.LittleEndian.PutUint32(buf[16:20], h.FileSize)
}

func decodeHeader(buf []byte) Header {
	return Header{
		Version:        binary.LittleEndian.Uint32(buf[4:8]),
		DocCount:       binary.LittleEndian.Uint32(buf[8:12]),
		TermCount:      binary.LittleEndian.Uint32(buf[12:16]),
		DocTableOffset: binary.LittleEndian.Uint32(buf[16:20]),
		TermDictOffset: binary.LittleEndian.Uint32(buf[20:24]),
		PostingOffset:  binary.LittleEndian.Uint32(buf[24:28]),
		HeaderSize:     binary.LittleEndian.Uint32(buf[28:32]),
		FileSize:       binary.LittleEndian.Uint32(buf[32:36]),
	}
}

// TermInfo is one dictionary record.
type TermInfo struct {
	Term             string `json:"term"`
	PostingOffset    uint32 `json:"posting_offset"`
	PostingSize      uint32 `json:"posting_size"`
	TotalOccurrences uint32 `json:"total_occurrences"`
}

// DocCount derives the posting-list length from the record size.
func (t TermInfo) DocCount() uint32 {
	if t.PostingSize < 4 {
		return 0
	}
	return (t.PostingSize - 4) / 4
}

func postingRecordSize(docs int) uint64 {
	return 4 + 4*uint64(docs)
}

func dictRecordSize(term string) uint64 {
	return 2 + uint64(len(term)) + 12
}

func docRecordSize(title, path string) uint64 {
	return 4 + uint64(len(title)) + 4 + uint64(len(path)) + 8
}

func saturate32(v uint64) uint32 {
	if v > math.MaxUint32 {
		return math.MaxUint32
	}
	return uint32(v)
}
