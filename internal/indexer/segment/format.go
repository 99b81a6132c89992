// Package segment persists an index as a single self-describing file:
//
//	header (80 bytes) | postings | dictionary | registry | footer (16 bytes)
//
// The header carries the magic bytes, format version, term and document
// counts, creation time, the offset and size of each section, and a CRC32 of
// its own bytes. Postings are per-term JSON arrays, the dictionary is a JSON
// array of term entries sorted by term that point into the postings section,
// and the registry is a JSON array of document id and file name pairs. The
// footer repeats the magic bytes and holds a CRC32 of every byte between
// header and footer plus the total file length. All integers are little
// endian.
package segment

import (
	"encoding/binary"
	"time"
)

const (
	Magic         string = "ADMX"
	FormatVersion uint32 = 1
	HeaderSize    int    = 80
	FooterSize    int    = 16
)

// Header is the decoded fixed-size file header.
type Header struct {
	Version      uint32
	TermCount    uint32
	DocCount     uint32
	CreatedAt    time.Time
	PostingsOff  int64
	PostingsSize int64
	DictOff      int64
	DictSize     int64
	RegistryOff  int64
	RegistrySize int64
	HeaderCRC    uint32
}

// dictEntry locates one term's postings relative to the postings section.
type dictEntry struct {
	Term   string `json:"term"`
	Offset int64  `json:"offset"`
	Length int64  `json:"length"`
	DF     int    `json:"df"`
}

type registryEntry struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

func (h *Header) marshal() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], h.TermCount)
	binary.LittleEndian.PutUint32(buf[12:16], h.DocCount)
	binary.LittleEndian.PutUint64(buf[16:24], uint64(h.CreatedAt.Unix()))
	binary.LittleEndian.PutUint64(buf[24:32], uint64(h.PostingsOff))
	binary.LittleEndian.PutUint64(buf[32:40], uint64(h.PostingsSize))
	binary.LittleEndian.PutUint64(buf[40:48], uint64(h.DictOff))
	binary.LittleEndian.PutUint64(buf[48:56], uint64(h.DictSize))
	binary.LittleEndian.PutUint64(buf[56:64], uint64(h.RegistryOff))
	binary.LittleEndian.PutUint64(buf[64:72], uint64(h.RegistrySize))
	// bytes 72:76 are reserved and stay zero
	h.HeaderCRC = crc(buf[:76])
	binary.LittleEndian.PutUint32(buf[76:80], h.HeaderCRC)
	return buf
}

func unmarshalHeader(buf []byte) Header {
	return Header{
		Version:      binary.LittleEndian.Uint32(buf[4:8]),
		TermCount:    binary.LittleEndian.Uint32(buf[8:12]),
		DocCount:     binary.LittleEndian.Uint32(buf[12:16]),
		CreatedAt:    time.Unix(int64(binary.LittleEndian.Uint64(buf[16:24])), 0).UTC(),
		PostingsOff:  int64(binary.LittleEndian.Uint64(buf[24:32])),
		PostingsSize: int64(binary.LittleEndian.Uint64(buf[32:40])),
		DictOff:      int64(binary.LittleEndian.Uint64(buf[40:48])),
		DictSize:     int64(binary.LittleEndian.Uint64(buf[48:56])),
		RegistryOff:  int64(binary.LittleEndian.Uint64(buf[56:64])),
		RegistrySize: int64(binary.LittleEndian.Uint64(buf[64:72])),
		HeaderCRC:    binary.LittleEndian.Uint32(buf[76:80]),
	}
}

func marshalFooter(bodyCRC uint32, total int64) []byte {
	buf := make([]byte, FooterSize)
	binary.LittleEndian.PutUint32(buf[0:4], bodyCRC)
	copy(buf[4:8], Magic)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(total))
	return buf
}

func leUint32(b []byte) uint32 {
	return binary.LittleEndian.Uint32(b)
}

func leUint64(b []byte) uint64 {
	return binary.LittleEndian.Uint64(b)
}
