package indexer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/toolerr"
)

func newTestStore(t *testing.T) *memory.Store {
	t.Helper()
	s, err := memory.New(memory.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func writeFile(t *testing.T, base, rel, content string) string {
	t.Helper()
	p := filepath.Join(base, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return p
}

func newTestIndexer(t *testing.T) (*Indexer, *memory.Store, string) {
	t.Helper()
	base := t.TempDir()
	s := newTestStore(t)
	ix := New(Config{Store: s, BasePath: base, Workers: 2, Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	return ix, s, base
}

const jwtMemory = `---
title: JWT decision
trigger_phrases: [jwt, auth token]
importance_tier: critical
context_type: decision
---
# Ignored heading

We use short-lived JWTs.
`

// ─── Parse ───────────────────────────────────────────────────────────────────

func TestParse_Frontmatter(t *testing.T) {
	base := "/w"
	doc, err := Parse("/w/specs/007-auth/memory/jwt.md", []byte(jwtMemory), base)
	if err != nil {
		t.Fatal(err)
	}
	if doc.Title != "JWT decision" || doc.SpecFolder != "specs/007-auth" {
		t.Errorf("title/folder = %q/%q", doc.Title, doc.SpecFolder)
	}
	if doc.ImportanceTier != "critical" || doc.ContextType != "decision" || len(doc.TriggerPhrases) != 2 {
		t.Errorf("doc = %+v", doc)
	}
	if !strings.HasPrefix(doc.Content, "# Ignored heading") || strings.Contains(doc.Content, "trigger_phrases") {
		t.Errorf("content = %q", doc.Content)
	}
	if len(doc.Hash) != 64 {
		t.Errorf("hash = %q", doc.Hash)
	}
}

func TestParse_TitleFallbacks(t *testing.T) {
	doc, _ := Parse("/w/memory/notes.md", []byte("intro\n# Heading Title\nbody"), "/w")
	if doc.Title != "Heading Title" {
		t.Errorf("heading title = %q", doc.Title)
	}
	doc, _ = Parse("/w/memory/plain-notes.md", []byte("no heading"), "/w")
	if doc.Title != "plain-notes" || doc.SpecFolder != "" {
		t.Errorf("filename title = %q, folder = %q", doc.Title, doc.SpecFolder)
	}
}

func TestParse_CRLFAndUnterminated(t *testing.T) {
	crlf := strings.ReplaceAll(jwtMemory, "\n", "\r\n")
	doc, err := Parse("/w/a/memory/x.md", []byte(crlf), "/w")
	if err != nil || doc.Title != "JWT decision" {
		t.Errorf("crlf = %+v, %v", doc, err)
	}

	doc, err = Parse("/w/a/memory/y.md", []byte("---\ntitle: x\nno end"), "/w")
	if err != nil || !strings.HasPrefix(doc.Content, "---") {
		t.Errorf("unterminated frontmatter should be body: %+v, %v", doc, err)
	}
}

func TestParse_InvalidYAML(t *testing.T) {
	_, err := Parse("/w/m/memory/bad.md", []byte("---\ntitle: [unclosed\n---\nbody"), "/w")
	if !errors.Is(err, toolerr.ErrInvalidInput) {
		t.Errorf("err = %v, want invalid input", err)
	}
}

func TestParse_Constitutional(t *testing.T) {
	doc, _ := Parse("/w/specs/constitutional/memory/rules.md", []byte(jwtMemory), "/w")
	if doc.ImportanceTier != memory.TierConstitutional {
		t.Errorf("tier = %s", doc.ImportanceTier)
	}
}

func TestSpecFolderOf(t *testing.T) {
	tests := []struct {
		file, want string
	}{
		{"/w/specs/001/memory/a.md", "specs/001"},
		{"/w/specs/001/memory/sub/a.md", "specs/001"},
		{"/w/memory/a.md", ""},
		{"/elsewhere/specs/memory/a.md", ""},
		{"/w/specs/001/notes/a.md", ""},
	}
	for _, tt := range tests {
		if got := SpecFolderOf(tt.file, "/w"); got != tt.want {
			t.Errorf("SpecFolderOf(%s) = %q, want %q", tt.file, got, tt.want)
		}
	}
}

// ─── IndexFile ───────────────────────────────────────────────────────────────

func TestIndexFile(t *testing.T) {
	ix, s, base := newTestIndexer(t)
	writeFile(t, base, "specs/007/memory/jwt.md", jwtMemory)

	doc, res, err := ix.IndexFile(context.Background(), "specs/007/memory/jwt.md", false)
	if err != nil {
		t.Fatalf("IndexFile: %v", err)
	}
	if res.Status != memory.SaveCreated || doc.SpecFolder != "specs/007" {
		t.Errorf("res = %+v doc = %+v", res, doc)
	}

	_, again, _ := ix.IndexFile(context.Background(), filepath.Join(base, "specs/007/memory/jwt.md"), false)
	if again.Status != memory.SaveUnchanged || again.ID != res.ID {
		t.Errorf("re-index = %+v", again)
	}

	m, _ := s.Get(res.ID)
	if m.ImportanceTier != memory.TierCritical || m.ContentHash != doc.Hash {
		t.Errorf("stored = %+v", m)
	}
}

func TestIndexFile_Rejects(t *testing.T) {
	ix, _, base := newTestIndexer(t)
	writeFile(t, base, "memory/notes.txt", "x")

	tests := []struct {
		name string
		path string
		want error
	}{
		{"empty", " ", toolerr.ErrInvalidInput},
		{"outside base", "../../etc/passwd.md", toolerr.ErrInvalidInput},
		{"not markdown", "memory/notes.txt", toolerr.ErrInvalidInput},
		{"missing", "memory/ghost.md", toolerr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, _, err := ix.IndexFile(context.Background(), tt.path, false); !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

// ─── Scan ────────────────────────────────────────────────────────────────────

func TestScan(t *testing.T) {
	ix, s, base := newTestIndexer(t)
	writeFile(t, base, "specs/001/memory/a.md", "# A\nalpha")
	writeFile(t, base, "specs/001/memory/deep/b.md", "# B\nbeta")
	writeFile(t, base, "specs/002/memory/c.md", "# C\ngamma")
	writeFile(t, base, "specs/002/memory/bad.md", "---\ntitle: [x\n---\n")
	writeFile(t, base, "specs/002/readme.md", "# not a memory")
	writeFile(t, base, "specs/002/memory/c_pending.md", "# half written")

	res, err := ix.Scan(context.Background(), "", false)
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if res.Scanned != 4 || res.Created != 3 || res.Failed != 1 || len(res.Errors) != 1 {
		t.Errorf("result = %+v", res)
	}
	if !strings.HasSuffix(res.Errors[0].Path, "bad.md") {
		t.Errorf("error path = %s", res.Errors[0].Path)
	}
	if v, ok, _ := s.GetMeta(memory.MetaLastIndexedAt); !ok || v == "" {
		t.Error("last_indexed_at not recorded")
	}

	again, _ := ix.Scan(context.Background(), "specs/001", false)
	if again.Scanned != 2 || again.Unchanged != 2 {
		t.Errorf("rescan folder = %+v", again)
	}
	forced, _ := ix.Scan(context.Background(), "specs/001", true)
	if forced.Updated != 2 {
		t.Errorf("forced rescan = %+v", forced)
	}
}

func TestScan_FolderEdgeCases(t *testing.T) {
	ix, _, _ := newTestIndexer(t)

	res, err := ix.Scan(context.Background(), "specs/missing", false)
	if err != nil || res.Scanned != 0 {
		t.Errorf("missing folder = %+v, %v", res, err)
	}
	if _, err := ix.Scan(context.Background(), "../outside", false); !errors.Is(err, toolerr.ErrInvalidInput) {
		t.Errorf("escaping folder err = %v", err)
	}
}
