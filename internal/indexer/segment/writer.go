package segment

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"time"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
)

// MagicBytes identifies a valid .spdx segment file.
const (
	MagicBytes    uint32 = 0x53504458
	FormatVersion uint32 = 2
	HeaderSize    int    = 64
	FooterSize    int    = 16
	Extension            = ".spdx"
)

// SegmentHeader is the 64-byte header written at the start of every segment.
type SegmentHeader struct {
	Magic        uint32
	Version      uint32
	TermCount    uint32
	DocCount     uint32
	DictOffset   int64
	DictSize     int64
	PostOffset   int64
	PostSize     int64
	StoredOffset int64
	StoredSize   int64
}

// DictEntry maps a (field, term) pair to its postings offset, length, and
// document frequency in the segment file.
type DictEntry struct {
	Field      string `json:"f"`
	Term       string `json:"t"`
	PostOffset int64  `json:"o"`
	PostLen    int    `json:"l"`
	DocFreq    int    `json:"d"`
}

// storedBlock holds everything a Reader keeps in memory besides the
// dictionary.
type storedBlock struct {
	Docs   []index.StoredDoc          `json:"docs"`
	Fields map[string]index.FieldInfo `json:"fields"`
}

// Writer serialises index snapshots into new .spdx segment files.
type Writer struct {
	dataDir string
}

// NewWriter creates a Writer that writes segments into the given directory.
func NewWriter(dataDir string) *Writer {
	return &Writer{dataDir: dataDir}
}

// Write atomically creates a new segment file containing the snapshot. It
// writes to a .tmp file first and renames on success.
func (w *Writer) Write(snap index.Snapshot) (string, error) {
	if len(snap.Docs) == 0 {
		return "", fmt.Errorf("cannot write empty segment")
	}
	segmentName := fmt.Sprintf("seg_%020d%s", time.Now().UnixNano(), Extension)
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

	headerBytes := make([]byte, HeaderSize)
	binary.LittleEndian.PutUint32(headerBytes[0:4], MagicBytes)
	binary.LittleEndian.PutUint32(headerBytes[4:8], FormatVersion)
	binary.LittleEndian.PutUint32(headerBytes[8:12], uint32(len(snap.Terms)))
	binary.LittleEndian.PutUint32(headerBytes[12:16], uint32(len(snap.Docs)))
	if _, err := f.Write(headerBytes); err != nil {
		return "", fmt.Errorf("writing header: %w", err)
	}

	postingsStart := int64(HeaderSize)
	offset := postingsStart
	dict := make([]DictEntry, 0, len(snap.Terms))
	for _, entry := range snap.Terms {
		postingsData, err := json.Marshal(entry.Postings)
		if err != nil {
			return "", fmt.Errorf("marshaling postings for %s:%q: %w", entry.Field, entry.Term, err)
		}
		if _, err := f.Write(postingsData); err != nil {
			return "", fmt.Errorf("writing postings for %s:%q: %w", entry.Field, entry.Term, err)
		}
		dict = append(dict, DictEntry{
			Field:      entry.Field,
			Term:       entry.Term,
			PostOffset: offset - postingsStart,
			PostLen:    len(postingsData),
			DocFreq:    len(entry.Postings),
		})
		offset += int64(len(postingsData))
	}
	postingsSize := offset - postingsStart

	dictData, err := json.Marshal(dict)
	if err != nil {
		return "", fmt.Errorf("marshaling dictionary: %w", err)
	}
	if _, err := f.Write(dictData); err != nil {
		return "", fmt.Errorf("writing dictionary: %w", err)
	}
	dictStart := offset
	offset += int64(len(dictData))

	storedData, err := json.Marshal(storedBlock{Docs: snap.Docs, Fields: snap.Fields})
	if err != nil {
		return "", fmt.Errorf("marshaling stored documents: %w", err)
	}
	if _, err := f.Write(storedData); err != nil {
		return "", fmt.Errorf("writing stored documents: %w", err)
	}
	storedStart := offset

	checksum := crc32.NewIEEE()
	checksum.Write(dictData)
	checksum.Write(storedData)
	footer := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(footer[0:4], checksum.Sum32())
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(snap.Docs)))
	binary.LittleEndian.PutUint64(footer[8:16], uint64(dictStart))
	if _, err := f.Write(footer); err != nil {
		return "", fmt.Errorf("writing footer: %w", err)
	}

	binary.LittleEndian.PutUint64(headerBytes[16:24], uint64(dictStart))
	binary.LittleEndian.PutUint64(headerBytes[24:32], uint64(len(dictData)))
	binary.LittleEndian.PutUint64(headerBytes[32:40], uint64(postingsStart))
	binary.LittleEndian.PutUint64(headerBytes[40:48], uint64(postingsSize))
	binary.LittleEndian.PutUint64(headerBytes[48:56], uint64(storedStart))
	binary.LittleEndian.PutUint64(headerBytes[56:64], uint64(len(storedData)))
	if _, err := f.WriteAt(headerBytes, 0); err != nil {
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
