package segment

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/mrtazz/admiral/internal/indexer/index"
	apperrors "github.com/mrtazz/admiral/pkg/errors"
)

// Load reads a persisted index from r. Malformed or truncated input fails
// with a *errors.CorruptIndexError.
func Load(r io.Reader) (*index.Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading index: %w", err)
	}
	idx, _, err := Decode(data)
	return idx, err
}

// ReadFile loads the index stored at path.
func ReadFile(path string) (*index.Index, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading index file: %w", err)
	}
	idx, _, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return idx, nil
}

// Decode validates a complete segment image and rebuilds the index.
func Decode(data []byte) (*index.Index, Header, error) {
	if len(data) < HeaderSize+FooterSize {
		return nil, Header{}, apperrors.Corruptf("truncated: %d bytes", len(data))
	}
	if !bytes.Equal(data[0:4], []byte(Magic)) {
		return nil, Header{}, apperrors.Corruptf("bad magic bytes %x", data[0:4])
	}
	header := unmarshalHeader(data[:HeaderSize])
	if got := crc(data[:76]); got != header.HeaderCRC {
		return nil, Header{}, apperrors.Corruptf("header checksum mismatch: stored %08x, computed %08x", header.HeaderCRC, got)
	}
	if header.Version != FormatVersion {
		return nil, Header{}, apperrors.Corruptf("unsupported format version %d", header.Version)
	}

	footerStart := len(data) - FooterSize
	footer := data[footerStart:]
	if !bytes.Equal(footer[4:8], []byte(Magic)) {
		return nil, Header{}, apperrors.Corruptf("bad footer magic bytes %x", footer[4:8])
	}
	if total := leUint64(footer[8:16]); total != uint64(len(data)) {
		return nil, Header{}, apperrors.Corruptf("length mismatch: footer records %d bytes, got %d", total, len(data))
	}
	if stored, got := leUint32(footer[0:4]), crc(data[HeaderSize:footerStart]); stored != got {
		return nil, Header{}, apperrors.Corruptf("body checksum mismatch: stored %08x, computed %08x", stored, got)
	}

	end := int64(footerStart)
	postingsData, err := section(data, header.PostingsOff, header.PostingsSize, end, "postings")
	if err != nil {
		return nil, Header{}, err
	}
	dictData, err := section(data, header.DictOff, header.DictSize, end, "dictionary")
	if err != nil {
		return nil, Header{}, err
	}
	registryData, err := section(data, header.RegistryOff, header.RegistrySize, end, "registry")
	if err != nil {
		return nil, Header{}, err
	}

	registry, err := decodeRegistry(registryData, int(header.DocCount))
	if err != nil {
		return nil, Header{}, err
	}
	postings, err := decodePostings(dictData, postingsData, int(header.TermCount))
	if err != nil {
		return nil, Header{}, err
	}

	idx := index.New(postings, registry)
	if err := idx.Validate(); err != nil {
		return nil, Header{}, &apperrors.CorruptIndexError{Reason: "inconsistent index", Err: err}
	}
	return idx, header, nil
}

func section(data []byte, off, size, end int64, name string) ([]byte, error) {
	if off < int64(HeaderSize) || size < 0 || off > end || size > end-off {
		return nil, apperrors.Corruptf("%s section [%d,+%d) out of bounds", name, off, size)
	}
	return data[off : off+size], nil
}

func decodeRegistry(data []byte, docCount int) (*index.Registry, error) {
	var entries []registryEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, &apperrors.CorruptIndexError{Reason: "decoding registry", Err: err}
	}
	if len(entries) != docCount {
		return nil, apperrors.Corruptf("registry holds %d documents, header says %d", len(entries), docCount)
	}
	registry := index.NewRegistry()
	for i, e := range entries {
		if e.ID != i+1 {
			return nil, apperrors.Corruptf("registry entry %d has id %d", i, e.ID)
		}
		registry.Add(e.Name)
	}
	return registry, nil
}

func decodePostings(dictData, postingsData []byte, termCount int) (map[string]index.PostingList, error) {
	var dict []dictEntry
	if err := json.Unmarshal(dictData, &dict); err != nil {
		return nil, &apperrors.CorruptIndexError{Reason: "decoding dictionary", Err: err}
	}
	if len(dict) != termCount {
		return nil, apperrors.Corruptf("dictionary holds %d terms, header says %d", len(dict), termCount)
	}

	size := int64(len(postingsData))
	postings := make(map[string]index.PostingList, len(dict))
	for i, entry := range dict {
		if i > 0 && dict[i-1].Term >= entry.Term {
			return nil, apperrors.Corruptf("dictionary not sorted at term %q", entry.Term)
		}
		if entry.Offset < 0 || entry.Length <= 0 || entry.Offset > size || entry.Length > size-entry.Offset {
			return nil, apperrors.Corruptf("postings of %q out of bounds", entry.Term)
		}
		var pl index.PostingList
		if err := json.Unmarshal(postingsData[entry.Offset:entry.Offset+entry.Length], &pl); err != nil {
			return nil, &apperrors.CorruptIndexError{Reason: fmt.Sprintf("decoding postings of %q", entry.Term), Err: err}
		}
		if len(pl) != entry.DF {
			return nil, apperrors.Corruptf("term %q has %d postings, dictionary says %d", entry.Term, len(pl), entry.DF)
		}
		postings[entry.Term] = pl
	}
	return postings, nil
}
