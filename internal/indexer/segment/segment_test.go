package segment

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/mrtazz/admiral/internal/indexer"
	"github.com/mrtazz/admiral/internal/indexer/index"
	"github.com/mrtazz/admiral/internal/indexer/source"
	apperrors "github.com/mrtazz/admiral/pkg/errors"
)

func testIndex(t testing.TB) *index.Index {
	t.Helper()
	idx, _, err := indexer.NewBuilder(indexer.Options{}).Build(context.Background(), source.NewMemory().
		Add("doc1.txt", "the cat sat").
		Add("doc2.txt", "the cat ran").
		Add("notes/doc3.txt", "a dog ran after the cat, the cat ran away").
		Add("empty.txt", ""))
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return idx
}

func assertSameIndex(t *testing.T, want, got *index.Index) {
	t.Helper()
	if !reflect.DeepEqual(want.Entries(), got.Entries()) {
		t.Errorf("entries differ:\nwant %+v\ngot  %+v", want.Entries(), got.Entries())
	}
	if want.DocCount() != got.DocCount() {
		t.Fatalf("doc count %d vs %d", want.DocCount(), got.DocCount())
	}
	for id, name := range want.Documents() {
		if gotName, _ := got.FileName(id); gotName != name {
			t.Errorf("doc %d name %q vs %q", id, name, gotName)
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	idx := testIndex(t)
	var buf bytes.Buffer
	if err := Save(&buf, idx); err != nil {
		t.Fatalf("Save: %v", err)
	}
	loaded, err := Load(&buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	assertSameIndex(t, idx, loaded)
}

func TestDecodeHeader(t *testing.T) {
	idx := testIndex(t)
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	data, err := Encode(idx, created)
	if err != nil {
		t.Fatal(err)
	}
	_, header, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if header.Version != FormatVersion || int(header.DocCount) != idx.DocCount() || int(header.TermCount) != idx.TermCount() {
		t.Errorf("header = %+v", header)
	}
	if !header.CreatedAt.Equal(created) {
		t.Errorf("created = %v, want %v", header.CreatedAt, created)
	}
	if header.PostingsOff != int64(HeaderSize) {
		t.Errorf("postings offset = %d", header.PostingsOff)
	}
}

func TestWriteFileReadFile(t *testing.T) {
	idx := testIndex(t)
	path := filepath.Join(t.TempDir(), "nested", "index.admx")
	if err := WriteFile(path, idx); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temp file left behind: %v", err)
	}
	loaded, err := ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	assertSameIndex(t, idx, loaded)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "absent.admx"))
	if err == nil || errors.Is(err, apperrors.ErrCorruptIndex) {
		t.Fatalf("err = %v, want a plain I/O error", err)
	}
}

func TestLoadTruncated(t *testing.T) {
	data, err := Encode(testIndex(t), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	for _, n := range []int{0, 3, HeaderSize, HeaderSize + 10, len(data) / 2, len(data) - 1} {
		if _, err := Load(bytes.NewReader(data[:n])); !errors.Is(err, apperrors.ErrCorruptIndex) {
			t.Errorf("truncated to %d bytes: err = %v, want ErrCorruptIndex", n, err)
		}
	}
}

func TestLoadDetectsEveryBitFlip(t *testing.T) {
	data, err := Encode(testIndex(t), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	for i := range data {
		flipped := bytes.Clone(data)
		flipped[i] ^= 0x10
		if _, err := Load(bytes.NewReader(flipped)); !errors.Is(err, apperrors.ErrCorruptIndex) {
			t.Fatalf("flip at byte %d: err = %v, want ErrCorruptIndex", i, err)
		}
	}
}

func TestLoadRejects(t *testing.T) {
	good, err := Encode(testIndex(t), time.Now())
	if err != nil {
		t.Fatal(err)
	}
	tests := []struct {
		name   string
		mutate func([]byte) []byte
	}{
		{"bad magic", func(b []byte) []byte { copy(b, "JUNK"); return b }},
		{"trailing bytes", func(b []byte) []byte { return append(b, 0) }},
		{"garbage", func([]byte) []byte { return bytes.Repeat([]byte{0xAB}, 512) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(bytes.NewReader(tt.mutate(bytes.Clone(good))))
			var corrupt *apperrors.CorruptIndexError
			if !errors.As(err, &corrupt) {
				t.Fatalf("err = %v, want *CorruptIndexError", err)
			}
		})
	}
}

func BenchmarkDecode(b *testing.B) {
	data, err := Encode(testIndex(b), time.Now())
	if err != nil {
		b.Fatal(err)
	}
	b.ReportAllocs()
	b.SetBytes(int64(len(data)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, _, err := Decode(data); err != nil {
			b.Fatal(err)
		}
	}
}
