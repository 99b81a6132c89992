package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/mrtazz/admiral/internal/indexer/segment"
	"github.com/mrtazz/admiral/internal/searcher/executor"
	"github.com/mrtazz/admiral/pkg/config"
	apperrors "github.com/mrtazz/admiral/pkg/errors"
)

// run executes the command tree with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeCorpus(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"doc1.txt":         "the cat sat",
		"doc2.txt":         "the cat ran",
		"skip/ignored.log": "cat cat cat",
	}
	for name, text := range files {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func buildCorpus(t *testing.T) string {
	t.Helper()
	out := filepath.Join(t.TempDir(), "corpus.admx")
	if _, err := run(t, "build", writeCorpus(t), "-o", out, "--exclude", "skip/", "--no-progress"); err != nil {
		t.Fatalf("build: %v", err)
	}
	return out
}

func TestBuildWritesIndex(t *testing.T) {
	out := filepath.Join(t.TempDir(), "corpus.admx")
	stdout, err := run(t, "build", writeCorpus(t), "-o", out, "--exclude", "skip/", "--no-progress")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(stdout, "indexed 2 documents") {
		t.Errorf("stdout = %q", stdout)
	}
	idx, err := segment.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if idx.DocCount() != 2 || idx.TermCount() != 4 {
		t.Errorf("docs = %d, terms = %d", idx.DocCount(), idx.TermCount())
	}
}

func TestBuildErrors(t *testing.T) {
	t.Setenv("ADMIRAL_INDEX_SOURCE_DIR", "")
	if _, err := run(t, "build", filepath.Join(t.TempDir(), "missing"), "--no-progress"); !errors.Is(err, apperrors.ErrFolderNotFound) {
		t.Errorf("missing folder: err = %v", err)
	}
	if _, err := run(t, "build", t.TempDir(), "--no-progress", "-o", filepath.Join(t.TempDir(), "x.admx")); !errors.Is(err, apperrors.ErrEmptyCorpus) {
		t.Errorf("empty folder: err = %v", err)
	}
	if _, err := run(t, "build"); err == nil {
		t.Error("expected an error without a folder")
	}
}

func TestQueryModes(t *testing.T) {
	index := buildCorpus(t)
	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"and", []string{"cat", "sat"}, []string{"doc1.txt", "1 of 1 matching"}},
		{"ranked", []string{"cat", "sat", "--mode", "or"}, []string{"0.3010", "2 of 2 matching"}},
		{"prefix", []string{"ca", "--mode", "prefix"}, []string{"COMPLETION", "cat", "100.0%"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := run(t, append([]string{"query", index}, tt.args...)...)
			if err != nil {
				t.Fatalf("query: %v", err)
			}
			for _, want := range tt.want {
				if !strings.Contains(out, want) {
					t.Errorf("output missing %q:\n%s", want, out)
				}
			}
		})
	}
}

func TestQueryJSONAndUnknownTerm(t *testing.T) {
	index := buildCorpus(t)
	out, err := run(t, "query", index, "cat", "--json")
	if err != nil {
		t.Fatal(err)
	}
	var result executor.SearchResult
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("decoding %q: %v", out, err)
	}
	if result.TotalHits != 2 {
		t.Errorf("total hits = %d", result.TotalHits)
	}

	if _, err := run(t, "query", index, "cat", "zzz"); !errors.Is(err, apperrors.ErrTermNotFound) {
		t.Errorf("err = %v, want ErrTermNotFound", err)
	}
	if _, err := run(t, "query", index, "cat", "--mode", "fuzzy"); !errors.Is(err, apperrors.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestInspect(t *testing.T) {
	index := buildCorpus(t)
	out, err := run(t, "inspect", index, "--top", "2")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"format version  1", "documents       2", "terms           4", "the   2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	corrupt := filepath.Join(t.TempDir(), "corrupt.admx")
	if err := os.WriteFile(corrupt, []byte("not an index"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := run(t, "inspect", corrupt); !errors.Is(err, apperrors.ErrCorruptIndex) {
		t.Errorf("err = %v, want ErrCorruptIndex", err)
	}
}

func TestInspectHistogramAndPairs(t *testing.T) {
	index := buildCorpus(t)
	out, err := run(t, "inspect", index, "--histogram", "--pairs", "-1")
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"DOCS  TERMS",
		"1     2",
		"cat    ran     doc2.txt",
		"cat    sat     doc1.txt",
		"sat    the     doc1.txt",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "ran    sat") {
		t.Errorf("ran and sat share no document:\n%s", out)
	}
}

func TestSnapshotLifecycle(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "snapshots.db")
	t.Setenv("ADMIRAL_SNAPSHOT_PATH", dbPath)
	index := buildCorpus(t)

	if _, err := run(t, "snapshot", "save", "nightly", "--index", index); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := run(t, "snapshot", "list")
	if err != nil || !strings.Contains(out, "nightly") {
		t.Fatalf("list = %q, %v", out, err)
	}
	cfg := config.Default()
	cfg.Snapshot.Path = dbPath
	idx, origin, err := loadIndex(cfg, "", "nightly")
	if err != nil || idx.DocCount() != 2 || !strings.Contains(origin, "nightly") {
		t.Fatalf("loadIndex = %v, %q, %v", idx, origin, err)
	}
	if _, err := run(t, "snapshot", "delete", "nightly"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := run(t, "snapshot", "delete", "nightly"); !errors.Is(err, apperrors.ErrSnapshotNotFound) {
		t.Errorf("second delete: err = %v", err)
	}
}

func TestBuildsNeedsPostgres(t *testing.T) {
	if os.Getenv("ADMIRAL_POSTGRES_HOST") != "" {
		t.Skip("postgres configured in environment")
	}
	if _, err := run(t, "builds"); err == nil {
		t.Error("expected an error without postgres")
	}
}

func TestSearchServerRoutes(t *testing.T) {
	index := buildCorpus(t)
	cfg := config.Default()
	idx, _, err := loadIndex(cfg, index, "")
	if err != nil {
		t.Fatal(err)
	}
	server, cleanup := newSearchServer(context.Background(), cfg, idx)
	defer cleanup()
	ts := httptest.NewServer(server.Handler)
	defer ts.Close()

	tests := []struct {
		path string
		want int
	}{
		{"/api/v1/search?q=cat", http.StatusOK},
		{"/api/v1/intersect?q=cat+zzz", http.StatusNotFound},
		{"/prefix_search?query=ca", http.StatusOK},
		{"/health/live", http.StatusOK},
		{"/health/ready", http.StatusOK},
		{"/api/v1/cache/stats", http.StatusOK},
	}
	for _, tt := range tests {
		resp, err := http.Get(ts.URL + tt.path)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.want {
			t.Errorf("%s: status = %d, want %d", tt.path, resp.StatusCode, tt.want)
		}
		if resp.Header.Get("X-Request-ID") == "" {
			t.Errorf("%s: missing request id header", tt.path)
		}
	}
}

func TestListenAndServeWaitsForInFlightRequests(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	started := make(chan struct{})
	var finished atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("GET /slow", func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		finished.Store(true)
		w.WriteHeader(http.StatusNoContent)
	})
	server := &http.Server{Addr: addr, Handler: mux}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	served := make(chan error, 1)
	go func() { served <- listenAndServe(ctx, server, 5*time.Second) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		conn, err := net.Dial("tcp", addr)
		if err == nil {
			conn.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("server never came up: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}

	go func() {
		if resp, err := http.Get("http://" + addr + "/slow"); err == nil {
			resp.Body.Close()
		}
	}()
	<-started
	cancel()

	if err := <-served; err != nil {
		t.Fatalf("listenAndServe: %v", err)
	}
	if !finished.Load() {
		t.Error("listenAndServe returned before the in-flight request finished")
	}
}
