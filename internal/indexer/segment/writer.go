package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/samuelharden/xapian/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 128
	FooterSize    int    = 48
)

// SegmentHeader is the header written at the start of every segment.
//
//	0  magic u32         4  version u32
//	8  term count u32   12  doc count u32
//	16 dict offset      24  dict size
//	32 postings offset  40  postings size
//	48 created at       56  bigram dict offset
//	64 bigram dict size 72  doc bigram offset
//	80 doc bigram size  88  bigram count u32
//	92 codec u8
type SegmentHeader struct {
	Magic            uint32
	Version          uint32
	TermCount        uint32
	DocCount         uint32
	CreatedAt        int64
	DictOffset       int64
	DictSize         int64
	PostOffset       int64
	PostSize         int64
	BigramDictOffset int64
	BigramDictSize   int64
	DocBigramOffset  int64
	DocBigramSize    int64
	BigramCount      uint32
	Codec            Codec
}

func (h SegmentHeader) encode() []byte {
	b := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(b[0:4], h.Magic)
	binary.LittleEndian.PutUint32(b[4:8], h.Version)
	binary.LittleEndian.PutUint32(b[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(b[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(b[16:24], uint64(h.DictOffset))
	binary.LittleEndian.PutUint64(b[24:32], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(b[32:40], uint64(h.PostOffset))
	binary.LittleEndian.PutUint64(b[40:48], uint64(h.PostSize))
	binary.LittleEndian.PutUint64(b[48:56], uint64(h.CreatedAt))
	binary.LittleEndian.PutUint64(b[56:64], uint64(h.BigramDictOffset))
	binary.LittleEndian.PutUint64(b[64:72], uint64(h.BigramDictSize))
	binary.LittleEndian.PutUint64(b[72:80], uint64(h.DocBigramOffset))
	binary.LittleEndian.PutUint64(b[80:88], uint64(h.DocBigramSize))
	binary.LittleEndian.PutUint32(b[88:92], h.BigramCount)
	b[92] = byte(h.Codec)
	return b
}

func decodeHeader(b []byte) SegmentHeader {
	return SegmentHeader{
		Magic:            binary.LittleEndian.Uint32(b[0:4]),
		Version:          binary.LittleEndian.Uint32(b[4:8]),
		TermCount:        binary.LittleEndian.Uint32(b[8:12]),
		DocCount:         binary.LittleEndian.Uint32(b[12:16]),
		DictOffset:       int64(binary.LittleEndian.Uint64(b[16:24])),
		DictSize:         int64(binary.LittleEndian.Uint64(b[24:32])),
		PostOffset:       int64(binary.LittleEndian.Uint64(b[32:40])),
		PostSize:         int64(binary.LittleEndian.Uint64(b[40:48])),
		CreatedAt:        int64(binary.LittleEndian.Uint64(b[48:56])),
		BigramDictOffset: int64(binary.LittleEndian.Uint64(b[56:64])),
		BigramDictSize:   int64(binary.LittleEndian.Uint64(b[64:72])),
		DocBigramOffset:  int64(binary.LittleEndian.Uint64(b[72:80])),
		DocBigramSize:    int64(binary.LittleEndian.Uint64(b[80:88])),
		BigramCount:      binary.LittleEndian.Uint32(b[88:92]),
		Codec:            Codec(b[92]),
	}
}

// DictEntry maps a term to its postings offset, length, and document frequency
// in the segment file.
type DictEntry struct {
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// Writer serialises term postings and bigram lists into new .spdx segment
// files.
type Writer struct {
	dataDir string
	codec   Codec
}

// NewWriter creates a Writer that writes segments into the given directory,
// compressing bigram blocks with codec.
func NewWriter(dataDir string, codec Codec) *Writer {
	return &Writer{dataDir: dataDir, codec: codec}
}

// Write atomically creates a new segment file containing the given term
// entries and bigram snapshot. It writes to a .tmp file first and renames on
// success.
func (w *Writer) Write(entries []index.TermEntry, bigrams index.BigramSnapshot) (string, error) {
	if len(entries) == 0 && bigrams.Empty() {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := fmt.Sprintf("seg_%d.spdx", time.Now().UnixNano())
	finalPath := filepath.Join(w.dataDir, segmentName)
	tmpPath := finalPath + ".tmp"

	if err := os.MkdirAll(w.dataDir, 0755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	f, err := os.Create(tmpPath)
	if err != nil {
		return "", fmt.Errorf("creating temp segment file: %w", err)
	}
	defer f.Close()
	defer os.Remove(tmpPath)

	header := SegmentHeader{
		Magic:       MagicBytes,
		Version:     FormatVersion,
		TermCount:   uint32(len(entries)),
		CreatedAt:   time.Now().Unix(),
		BigramCount: uint32(len(bigrams.Dict)),
		Codec:       w.codec,
	}
	if _, err := f.Write(header.encode()); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	offset := int64(HeaderSize)
	header.PostOffset = offset
	dict := make([]DictEntry, 0, len(entries))
	docIDs := make(map[string]struct{})
	for _, entry := range entries {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return "", fmt.Errorf("writing postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Term:       entry.Term,
			PostOffset: offset - header.PostOffset,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(postingsData))
		for _, p := range entry.Postings {
			docIDs[p.DocID] = struct{}{}
		}
	}
	header.PostSize = offset - header.PostOffset

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	header.DictOffset, header.DictSize = offset, int64(len(dictData))
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	offset += header.DictSize

	bigramDict, err := w.block(bigrams.Dict)
	if err != nil {
		return "", fmt.Errorf("encoding bigram dictionary: %w", err)
	}
	header.BigramDictOffset, header.BigramDictSize = offset, int64(len(bigramDict))
	if _, err := f.Write(bigramDict); err != nil {
		return "", fmt.Errorf("writing bigram dictionary: %w", err)
	}
	offset += header.BigramDictSize

	docBigrams, err := w.block(bigrams.Docs)
	if err != nil {
		return "", fmt.Errorf("encoding document bigrams: %w", err)
	}
	header.DocBigramOffset, header.DocBigramSize = offset, int64(len(docBigrams))
	if _, err := f.Write(docBigrams); err != nil {
		return "", fmt.Errorf("writing document bigrams: %w", err)
	}

	for _, d := range bigrams.Docs {
		docIDs[d.DocID] = struct{}{}
	}
	header.DocCount = uint32(len(docIDs))

	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], crc32.ChecksumIEEE(dictData))
	binary.LittleEndian.PutUint32(footer[4:8], header.DocCount)
	binary.LittleEndian.PutUint64(footer[8:16], uint64(header.DictOffset))
	binary.LittleEndian.PutUint64(footer[16:24], uint64(header.DictSize))
	binary.LittleEndian.PutUint64(footer[24:32], uint64(header.PostSize))
	binary.LittleEndian.PutUint32(footer[32:36], crc32.ChecksumIEEE(bigramDict))
	binary.LittleEndian.PutUint32(footer[36:40], crc32.ChecksumIEEE(docBigrams))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}
	if _, err := f.WriteAt(header.encode(), 0); err != nil {
		return "", fmt.Errorf("updating header: %w", err)
	}
	if err := f.Sync(); err != nil {
		return "", fmt.Errorf("syncing segment file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, finalPath); err != nil {
		return "", fmt.Errorf("renaming segment file: %w", err)
	}
	return segmentName, nil
}

func (w *Writer) block(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return encodeBlock(raw, w.codec)
}
