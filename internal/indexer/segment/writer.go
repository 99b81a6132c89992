package segment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/mrtazz/admiral/internal/indexer/index"
)

func crc(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// Save writes idx to w in the segment format.
func Save(w io.Writer, idx *index.Index) error {
	data, err := Encode(idx, time.Now())
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing index: %w", err)
	}
	return nil
}

// Encode serialises idx into a complete segment file image.
func Encode(idx *index.Index, createdAt time.Time) ([]byte, error) {
	if idx.DocCount() > math.MaxUint32 || idx.TermCount() > math.MaxUint32 {
		return nil, fmt.Errorf("index too large for format version %d", FormatVersion)
	}

	entries := idx.Entries()
	var postings bytes.Buffer
	dict := make([]dictEntry, 0, len(entries))
	for _, entry := range entries {
		data, err := json.Marshal(entry.Postings)
		if err != nil {
			return nil, fmt.Errorf("marshaling postings for term %q: %w", entry.Term, err)
		}
		dict = append(dict, dictEntry{
			Term:   entry.Term,
			Offset: int64(postings.Len()),
			Length: int64(len(data)),
			DF:     len(entry.Postings),
		})
		postings.Write(data)
	}
	dictData, err := json.Marshal(dict)
	if err != nil {
		return nil, fmt.Errorf("marshaling dictionary: %w", err)
	}

	registry := make([]registryEntry, 0, idx.DocCount())
	for id, name := range idx.Documents() {
		registry = append(registry, registryEntry{ID: id, Name: name})
	}
	registryData, err := json.Marshal(registry)
	if err != nil {
		return nil, fmt.Errorf("marshaling registry: %w", err)
	}

	header := Header{
		Version:      FormatVersion,
		TermCount:    uint32(len(entries)),
		DocCount:     uint32(idx.DocCount()),
		CreatedAt:    createdAt,
		PostingsOff:  int64(HeaderSize),
		PostingsSize: int64(postings.Len()),
	}
	header.DictOff = header.PostingsOff + header.PostingsSize
	header.DictSize = int64(len(dictData))
	header.RegistryOff = header.DictOff + header.DictSize
	header.RegistrySize = int64(len(registryData))
	total := header.RegistryOff + header.RegistrySize + int64(FooterSize)

	out := make([]byte, 0, total)
	out = append(out, header.marshal()...)
	out = append(out, postings.Bytes()...)
	out = append(out, dictData...)
	out = append(out, registryData...)
	out = append(out, marshalFooter(crc(out[HeaderSize:]), total)...)
	return out, nil
}

// WriteFile atomically replaces path with the persisted form of idx. It
// writes to a .tmp file first, syncs it and renames on success.
func WriteFile(path string, idx *index.Index) error {
	data, err := Encode(idx, time.Now())
	if err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating index directory: %w", err)
		}
	}

	tmpPath := path + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp index file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing index file: %w", err)
	}
	if err := f.Sync(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("syncing index file: %w", err)
	}
	f.Close()
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming index file: %w", err)
	}
	return nil
}
