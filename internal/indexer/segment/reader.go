package segment

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/Distributed-Search-Query-Engine/internal/indexer/index"
)

// ErrCorrupt is returned when a segment fails structural or checksum checks.
var ErrCorrupt = errors.New("corrupt segment")

// ErrNoSegments is returned by Latest when the directory holds no segment.
var ErrNoSegments = errors.New("no segments found")

// Reader serves an immutable segment as an index.Reader. The dictionary and
// stored documents are held in memory; postings are read on demand.
type Reader struct {
	file     *os.File
	filePath string
	header   SegmentHeader
	dict     []DictEntry
	docs     []index.StoredDoc
	fields   map[string]index.FieldInfo
	ids      map[string]index.DocID
	postBase int64
}

var _ index.Reader = (*Reader)(nil)

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
	headerBytes := make([]byte, HeaderSize)
	if _, err := f.ReadAt(headerBytes, 0); err != nil {
		return nil, fmt.Errorf("reading segment header: %w", err)
	}
	magic := binary.LittleEndian.Uint32(headerBytes[0:4])
	if magic != MagicBytes {
		return nil, fmt.Errorf("%w: bad magic bytes %x", ErrCorrupt, magic)
	}
	header := SegmentHeader{
		Magic:        magic,
		Version:      binary.LittleEndian.Uint32(headerBytes[4:8]),
		TermCount:    binary.LittleEndian.Uint32(headerBytes[8:12]),
		DocCount:     binary.LittleEndian.Uint32(headerBytes[12:16]),
		DictOffset:   int64(binary.LittleEndian.Uint64(headerBytes[16:24])),
		DictSize:     int64(binary.LittleEndian.Uint64(headerBytes[24:32])),
		PostOffset:   int64(binary.LittleEndian.Uint64(headerBytes[32:40])),
		PostSize:     int64(binary.LittleEndian.Uint64(headerBytes[40:48])),
		StoredOffset: int64(binary.LittleEndian.Uint64(headerBytes[48:56])),
		StoredSize:   int64(binary.LittleEndian.Uint64(headerBytes[56:64])),
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, header.Version)
	}
	dictBytes := make([]byte, header.DictSize)
	if _, err := f.ReadAt(dictBytes, header.DictOffset); err != nil {
		return nil, fmt.Errorf("reading dictionary: %w", err)
	}
	storedBytes := make([]byte, header.StoredSize)
	if _, err := f.ReadAt(storedBytes, header.StoredOffset); err != nil {
		return nil, fmt.Errorf("reading stored documents: %w", err)
	}
	footer := make([]byte, FooterSize)
	if _, err := f.ReadAt(footer, header.StoredOffset+header.StoredSize); err != nil {
		return nil, fmt.Errorf("reading footer: %w", err)
	}
	checksum := crc32.NewIEEE()
	checksum.Write(dictBytes)
	checksum.Write(storedBytes)
	if want := binary.LittleEndian.Uint32(footer[0:4]); checksum.Sum32() != want {
		return nil, fmt.Errorf("%w: checksum mismatch", ErrCorrupt)
	}

	var dict []DictEntry
	if err := json.Unmarshal(dictBytes, &dict); err != nil {
		return nil, fmt.Errorf("parsing dictionary: %w", err)
	}
	var stored storedBlock
	if err := json.Unmarshal(storedBytes, &stored); err != nil {
		return nil, fmt.Errorf("parsing stored documents: %w", err)
	}
	ids := make(map[string]index.DocID, len(stored.Docs))
	for i, d := range stored.Docs {
		ids[d.ID] = index.DocID(i)
	}
	return &Reader{
		file:     f,
		filePath: path,
		header:   header,
		dict:     dict,
		docs:     stored.Docs,
		fields:   stored.Fields,
		ids:      ids,
		postBase: header.PostOffset,
	}, nil
}

func (r *Reader) lookup(field, term string) (DictEntry, bool) {
	idx := sort.Search(len(r.dict), func(i int) bool {
		if r.dict[i].Field != field {
			return r.dict[i].Field >= field
		}
		return r.dict[i].Term >= term
	})
	if idx >= len(r.dict) || r.dict[idx].Field != field || r.dict[idx].Term != term {
		return DictEntry{}, false
	}
	return r.dict[idx], true
}

func (r *Reader) Postings(ctx context.Context, field, term string) (index.PostingIterator, error) {
	entry, ok := r.lookup(field, term)
	if !ok {
		return index.Empty(), nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	postingsBytes := make([]byte, entry.PostLen)
	if _, err := r.file.ReadAt(postingsBytes, r.postBase+entry.PostOffset); err != nil {
		return nil, fmt.Errorf("reading postings: %w", err)
	}
	var postings index.PostingList
	if err := json.Unmarshal(postingsBytes, &postings); err != nil {
		return nil, fmt.Errorf("%w: parsing postings: %v", ErrCorrupt, err)
	}
	return index.NewSliceIterator(postings), nil
}

// Snapshot reads every posting list back into memory so that an indexer can
// resume from this segment.
func (r *Reader) Snapshot(ctx context.Context) (index.Snapshot, error) {
	terms := make([]index.TermEntry, 0, len(r.dict))
	for _, entry := range r.dict {
		it, err := r.Postings(ctx, entry.Field, entry.Term)
		if err != nil {
			return index.Snapshot{}, fmt.Errorf("reading %s:%s: %w", entry.Field, entry.Term, err)
		}
		var postings index.PostingList
		for it.Next() {
			postings = append(postings, it.Posting())
		}
		terms = append(terms, index.TermEntry{Field: entry.Field, Term: entry.Term, Postings: postings})
	}
	docs := make([]index.StoredDoc, len(r.docs))
	copy(docs, r.docs)
	fields := make(map[string]index.FieldInfo, len(r.fields))
	for name, info := range r.fields {
		fields[name] = info
	}
	return index.Snapshot{Terms: terms, Docs: docs, Fields: fields}, nil
}

func (r *Reader) FieldInfo(field string) (index.FieldInfo, bool) {
	info, ok := r.fields[field]
	return info, ok
}

func (r *Reader) FieldValue(doc index.DocID, field string) (index.Value, bool) {
	if int(doc) >= len(r.docs) {
		return index.Value{}, false
	}
	v, ok := r.docs[doc].Values[field]
	return v, ok
}

func (r *Reader) ParentOf(doc index.DocID, relation string) (index.DocID, bool) {
	if int(doc) >= len(r.docs) {
		return 0, false
	}
	d := r.docs[doc]
	if d.Parent == "" || d.Relation != relation {
		return 0, false
	}
	parent, ok := r.ids[d.Parent]
	return parent, ok
}

func (r *Reader) DocFreq(field, term string) int {
	entry, ok := r.lookup(field, term)
	if !ok {
		return 0
	}
	return entry.DocFreq
}

func (r *Reader) FieldLength(doc index.DocID, field string) int {
	if int(doc) >= len(r.docs) {
		return 0
	}
	return r.docs[doc].Lengths[field]
}

func (r *Reader) AvgFieldLength(field string) float64 {
	info, ok := r.fields[field]
	if !ok || info.DocCount == 0 {
		return 0
	}
	return float64(info.SumLength) / float64(info.DocCount)
}

func (r *Reader) MaxDoc() index.DocID {
	return index.DocID(len(r.docs))
}

func (r *Reader) ExternalID(doc index.DocID) string {
	if int(doc) >= len(r.docs) {
		return ""
	}
	return r.docs[doc].ID
}

func (r *Reader) LookupID(externalID string) (index.DocID, bool) {
	id, ok := r.ids[externalID]
	return id, ok
}

func (r *Reader) Terms() int {
	return len(r.dict)
}

func (r *Reader) DocCount() uint32 {
	return r.header.DocCount
}

func (r *Reader) Path() string {
	return r.filePath
}

func (r *Reader) Close() error {
	return r.file.Close()
}

// List returns the segment files in dataDir, oldest first. Segment names
// embed a zero-padded timestamp, so lexical order is creation order.
func List(dataDir string) ([]string, error) {
	entries, err := os.ReadDir(dataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading data directory: %w", err)
	}
	segFiles := make([]string, 0)
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), Extension) {
			segFiles = append(segFiles, filepath.Join(dataDir, entry.Name()))
		}
	}
	sort.Strings(segFiles)
	return segFiles, nil
}

// Latest returns the path of the newest segment in dataDir.
func Latest(dataDir string) (string, error) {
	files, err := List(dataDir)
	if err != nil {
		return "", err
	}
	if len(files) == 0 {
		return "", fmt.Errorf("%w in %s", ErrNoSegments, dataDir)
	}
	return files[len(files)-1], nil
}

// Prune removes all but the newest keep segments and returns how many files
// were deleted.
func Prune(dataDir string, keep int) (int, error) {
	files, err := List(dataDir)
	if err != nil {
		return 0, err
	}
	if keep < 1 {
		keep = 1
	}
	removed := 0
	for len(files)-removed > keep {
		if err := os.Remove(files[removed]); err != nil {
			return removed, fmt.Errorf("removing segment %s: %w", files[removed], err)
		}
		removed++
	}
	return removed, nil
}
