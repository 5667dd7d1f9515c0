package hooks

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/memory"
)

func TestMemoryAwareTools(t *testing.T) {
	names := MemoryAwareTools()
	if len(names) == 0 || len(names) >= len(catalog.Names()) {
		t.Fatalf("memory-aware set size = %d, want a strict subset of %d", len(names), len(catalog.Names()))
	}
	for _, n := range names {
		if _, ok := catalog.Lookup(n); !ok {
			t.Errorf("%s is not a catalogue tool", n)
		}
	}
	if !IsMemoryAware(catalog.MemorySearch) {
		t.Error("memory_search should be memory-aware")
	}
	if IsMemoryAware(catalog.CheckpointDelete) {
		t.Error("checkpoint_delete should not be memory-aware")
	}
}

func TestExtractHint(t *testing.T) {
	tests := []struct {
		name   string
		args   map[string]any
		want   string
		wantOK bool
	}{
		{"nil", nil, "", false},
		{"empty", map[string]any{}, "", false},
		{"short query", map[string]any{"query": "ab"}, "", false},
		{"padded short query", map[string]any{"query": "  ab  "}, "", false},
		{"query trimmed", map[string]any{"query": "  hello  "}, "hello", true},
		{"prompt", map[string]any{"prompt": "fix the login bug"}, "fix the login bug", true},
		{"query before prompt", map[string]any{"query": "jwt", "prompt": "other"}, "jwt", true},
		{"short query falls to prompt", map[string]any{"query": "x", "prompt": "auth flow"}, "auth flow", true},
		{"concepts", map[string]any{"concepts": []any{"memory", "search"}}, "memory search", true},
		{"typed concepts", map[string]any{"concepts": []string{"a", "b"}}, "a b", true},
		{"short concept", map[string]any{"concepts": []any{"x"}}, "x", true},
		{"non-string concepts dropped", map[string]any{"concepts": []any{"a", 3.0, "b"}}, "a b", true},
		{"empty concepts", map[string]any{"concepts": []any{}}, "", false},
		{"non-string query", map[string]any{"query": 42.0}, "", false},
		{"unrelated keys", map[string]any{"id": 1.0}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractHint(tt.args)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("ExtractHint(%v) = %q, %v; want %q, %v", tt.args, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// ─── Surfacer ────────────────────────────────────────────────────────────────

type fakeSource struct {
	constitutional []memory.Memory
	matches        []memory.TriggerMatch
	constErr       error
	matchErr       error
	gotPrompt      string
}

func (f *fakeSource) Constitutional(int) ([]memory.Memory, error) {
	return f.constitutional, f.constErr
}

func (f *fakeSource) MatchTriggers(prompt, _ string, _ int) ([]memory.TriggerMatch, error) {
	f.gotPrompt = prompt
	return f.matches, f.matchErr
}

func sourceOf(src Source) SourceFunc {
	return func(context.Context) (Source, error) { return src, nil }
}

func TestSurface(t *testing.T) {
	src := &fakeSource{
		constitutional: []memory.Memory{{ID: 1, Title: "Never commit secrets", ImportanceTier: memory.TierConstitutional}},
		matches: []memory.TriggerMatch{
			{Memory: memory.Memory{ID: 1, Title: "Never commit secrets"}, MatchedPhrases: []string{"secrets"}},
			{Memory: memory.Memory{ID: 7, Title: "JWT", SpecFolder: "specs/007"}, MatchedPhrases: []string{"jwt"}},
		},
	}
	s := NewSurfacer(SurfacerConfig{Source: sourceOf(src)})

	got, err := s.Surface(context.Background(), "rotate jwt secrets")
	if err != nil {
		t.Fatalf("Surface: %v", err)
	}
	if src.gotPrompt != "rotate jwt secrets" {
		t.Errorf("prompt = %q", src.gotPrompt)
	}
	if len(got.Constitutional) != 1 || got.Constitutional[0].ID != 1 {
		t.Errorf("constitutional = %+v", got.Constitutional)
	}
	if len(got.Triggered) != 1 || got.Triggered[0].ID != 7 || got.Triggered[0].MatchedPhrases[0] != "jwt" {
		t.Errorf("triggered = %+v, want only id 7", got.Triggered)
	}
	if got.Empty() {
		t.Error("Empty() = true")
	}
}

func TestSurface_EmptyListsNotNil(t *testing.T) {
	s := NewSurfacer(SurfacerConfig{Source: sourceOf(&fakeSource{})})
	got, err := s.Surface(context.Background(), "anything")
	if err != nil {
		t.Fatal(err)
	}
	if got.Constitutional == nil || got.Triggered == nil || !got.Empty() {
		t.Errorf("got %+v", got)
	}
}

func TestSurface_Errors(t *testing.T) {
	boom := errors.New("boom")

	tests := []struct {
		name string
		s    *Surfacer
	}{
		{"no source", NewSurfacer(SurfacerConfig{})},
		{"source fails", NewSurfacer(SurfacerConfig{Source: func(context.Context) (Source, error) { return nil, boom }})},
		{"constitutional fails", NewSurfacer(SurfacerConfig{Source: sourceOf(&fakeSource{constErr: boom})})},
		{"match fails", NewSurfacer(SurfacerConfig{Source: sourceOf(&fakeSource{matchErr: boom})})},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.s.Surface(context.Background(), "hint")
			if err == nil || got != nil {
				t.Errorf("Surface = %+v, %v; want error", got, err)
			}
			if !strings.HasPrefix(err.Error(), "hooks:") {
				t.Errorf("error %q lacks package prefix", err)
			}
		})
	}
}

func TestSurface_RealStore(t *testing.T) {
	store, err := memory.New(memory.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = store.Close() })

	if _, err := store.Save(memory.SaveParams{Title: "Rules", Content: "be kind", ImportanceTier: memory.TierConstitutional}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Save(memory.SaveParams{Title: "Auth", Content: "jwt", TriggerPhrases: []string{"login flow"}}); err != nil {
		t.Fatal(err)
	}

	s := NewSurfacer(SurfacerConfig{Source: func(context.Context) (Source, error) { return store, nil }})
	got, err := s.Surface(context.Background(), "the Login flow is broken")
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Constitutional) != 1 || len(got.Triggered) != 1 || got.Triggered[0].Title != "Auth" {
		t.Errorf("got %+v", got)
	}
}
