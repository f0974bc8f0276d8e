package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"slices"
	"sort"
	"strings"

	"github.com/samuelharden/xapian/internal/bigram"
	"github.com/samuelharden/xapian/internal/indexer/index"
	apperrors "github.com/samuelharden/xapian/pkg/errors"
)

// Reader serves one segment. Term postings are read on demand; the bigram
// dictionary and document lists are decoded at open time so that cursors
// over them never touch the file.
type Reader struct {
	file       *os.File
	filePath   string
	size       int64
	header     SegmentHeader
	dict       []DictEntry
	postBase   int64
	bigramDict []bigram.Entry
	docs       []index.DocBigrams
}

func OpenReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening segment file: %w", err)
	}
	r, err := load(f, path)
	if err != nil {
		f.Close()
		return nil, err
	}
	return r, nil
}

func load(f *os.File, path string) (*Reader, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat segment file: %w", err)
	}
	fileSize := info.Size()
	if fileSize < int64(HeaderSize+FooterSize) {
		return nil, fmt.Errorf("%w: %d-byte file is shorter than header and footer", apperrors.ErrCorruptSegment, fileSize)
	}
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	header := decodeHeader(headerBytes)
	if header.Magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", apperrors.ErrCorruptSegment, header.Magic)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", apperrors.ErrCorruptSegment, header.Version)
	}

	if err := checkSpan(header.DocBigramOffset, header.DocBigramSize, fileSize, "document bigrams"); err != nil {
		return nil, err
	}
	if err := checkSpan(header.DocBigramOffset+header.DocBigramSize, int64(FooterSize), fileSize, "footer"); err != nil {
		return nil, err
	}
	if err := checkSpan(header.PostOffset, header.PostSize, fileSize, "postings"); err != nil {
		return nil, err
	}
	footer := make([]byte, FooterSize)
	footerAt := header.DocBigramOffset + header.DocBigramSize
	if _, err := f.ReadAt(footer, footerAt); err != nil {
		return nil, fmt.Errorf("reading segment footer: %w", err)
	}

	dictBytes, err := readSection(f, fileSize, header.DictOffset, header.DictSize, binary.LittleEndian.Uint32(footer[0:4]), "dictionary")
	if err != nil {
		return nil, err
	}
	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}

	r := &Reader{
		file:     f,
		filePath: path,
		size:     fileSize,
		header:   header,
		dict:     dict,
		postBase: header.PostOffset,
	}
	if err := r.loadBlock(header.BigramDictOffset, header.BigramDictSize, binary.LittleEndian.Uint32(footer[32:36]), "bigram dictionary", &r.bigramDict); err != nil {
		return nil, err
	}
	if err := r.loadBlock(header.DocBigramOffset, header.DocBigramSize, binary.LittleEndian.Uint32(footer[36:40]), "document bigrams", &r.docs); err != nil {
		return nil, err
	}
	return r, nil
}

// checkSpan rejects a section that does not lie within the file, before
// anything is allocated for it.
func checkSpan(offset, size, fileSize int64, what string) error {
	if offset < 0 || size < 0 || offset > fileSize || size > fileSize-offset {
		return fmt.Errorf("%w: %s at %d+%d lies outside the %d-byte file", apperrors.ErrCorruptSegment, what, offset, size, fileSize)
	}
	return nil
}

func readSection(f *os.File, fileSize, offset, size int64, checksum uint32, what string) ([]byte, error) {
	if err := checkSpan(offset, size, fileSize, what); err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := f.ReadAt(buf, offset); err != nil {
		return nil, fmt.Errorf("reading %s: %w", what, err)
	}
	if got := crc32.ChecksumIEEE(buf); got != checksum {
		return nil, fmt.Errorf("%w: %s checksum %08x, footer says %08x", apperrors.ErrCorruptSegment, what, got, checksum)
	}
	return buf, nil
}

func (r *Reader) loadBlock(offset, size int64, checksum uint32, what string, v any) error {
	block, err := readSection(r.file, r.size, offset, size, checksum, what)
	if err != nil {
		return err
	}
	raw, err := decodeBlock(block)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", what, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("parsing %s: %w", what, err)
	}
	return nil
}

func (r *Reader) Search(term string) (index.PostingList, error) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Term != term {
		return nil, nil
	}
	entry := r.dict[idx]
	if entry.PostOffset < 0 {
		return nil, fmt.Errorf("%w: postings of %q at negative offset", apperrors.ErrCorruptSegment, term)
	}
	if err := checkSpan(r.postBase+entry.PostOffset, int64(entry.PostLen), r.size, "postings"); err != nil {
		return nil, err
	}
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("parsing postings: %w", err)
	}
	return postings, nil
}

// DocumentBigrams returns the bigram list stored for docID, with TermFreq
// filled from this segment's dictionary, and the document length.
func (r *Reader) DocumentBigrams(docID string) ([]bigram.Entry, int, bool) {
	i, ok := r.findDoc(docID)
	if !ok {
		return nil, 0, false
	}
	doc := r.docs[i]
	out := make([]bigram.Entry, len(doc.Bigrams))
	for j, e := range doc.Bigrams {
		e.TermFreq, _ = r.BigramFreq(e.Name)
		out[j] = e
	}
	return out, doc.DocLen, true
}

// BigramFreq returns the number of documents in this segment containing
// name and its total number of occurrences.
func (r *Reader) BigramFreq(name string) (termFreq, collFreq uint64) {
	i := sort.Search(len(r.bigramDict), func(i int) bool {
		return r.bigramDict[i].Name >= name
	})
	if i >= len(r.bigramDict) || r.bigramDict[i].Name != name {
		return 0, 0
	}
	return r.bigramDict[i].TermFreq, r.bigramDict[i].CollectionFreq
}

// AllBigrams returns the segment's bigram dictionary in name order. The
// slice is shared and must not be modified.
func (r *Reader) AllBigrams() []bigram.Entry {
	return r.bigramDict
}

// DocLengths calls fn for every document with a stored bigram list.
func (r *Reader) DocLengths(fn func(docID string, length int)) {
	for _, d := range r.docs {
		fn(d.DocID, d.DocLen)
	}
}

// HasDocument reports whether the segment stores docID.
func (r *Reader) HasDocument(docID string) bool {
	_, ok := r.findDoc(docID)
	return ok
}

func (r *Reader) findDoc(docID string) (int, bool) {
	return slices.BinarySearchFunc(r.docs, docID, func(d index.DocBigrams, id string) int {
		return strings.Compare(d.DocID, id)
	})
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) Bigrams() int {
	return len(r.bigramDict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Codec() Codec {
	return r.header.Codec
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}
