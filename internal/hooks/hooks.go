// Package hooks decides which tool calls get supplementary memory context
// and fetches that context.
//
// A memory-aware call carries a hint in its arguments (a query, a prompt, or a
// list of concepts). The hint is matched against trigger phrases, and the
// constitutional memories are added on top, so an agent sees the rules that
// always apply next to whatever it asked for.
package hooks

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/HendryAvila/recall/internal/catalog"
	"github.com/HendryAvila/recall/internal/memory"
)

// minHintLength is the shortest query or prompt worth surfacing for.
const minHintLength = 3

var memoryAware = map[string]struct{}{
	catalog.MemoryContext:       {},
	catalog.MemorySearch:        {},
	catalog.MemoryMatchTriggers: {},
	catalog.MemoryList:          {},
	catalog.MemorySave:          {},
	catalog.MemoryIndexScan:     {},
}

// MemoryAwareTools returns the names of the tools that get auto-surfaced
// context, sorted.
func MemoryAwareTools() []string {
	out := make([]string, 0, len(memoryAware))
	for name := range memoryAware {
		out = append(out, name)
	}
	slices.Sort(out)
	return out
}

// IsMemoryAware reports whether name gets auto-surfaced context.
func IsMemoryAware(name string) bool {
	_, ok := memoryAware[name]
	return ok
}

// ExtractHint derives the surfacing hint from tool arguments.
//
// A query or prompt of at least three characters (after trimming) wins, query
// first. Otherwise a concepts list is joined with single spaces. Anything
// else yields no hint.
func ExtractHint(args map[string]any) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	for _, key := range []string{"query", "prompt"} {
		s, ok := args[key].(string)
		if !ok {
			continue
		}
		if s = strings.TrimSpace(s); utf8.RuneCountInString(s) >= minHintLength {
			return s, true
		}
	}

	var words []string
	switch v := args["concepts"].(type) {
	case []string:
		words = v
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				words = append(words, s)
			}
		}
	}
	if joined := strings.Join(words, " "); joined != "" {
		return joined, true
	}
	return "", false
}

// ─── Surfacer ────────────────────────────────────────────────────────────────

// Source is the slice of memory.Store the surfacer reads.
type Source interface {
	Constitutional(limit int) ([]memory.Memory, error)
	MatchTriggers(prompt, specFolder string, limit int) ([]memory.TriggerMatch, error)
}

// SourceFunc returns the store to read from, opening it if needed.
type SourceFunc func(ctx context.Context) (Source, error)

// SurfacedMemory is the compact form of a surfaced memory.
type SurfacedMemory struct {
	ID             int64    `json:"id"`
	Title          string   `json:"title"`
	SpecFolder     string   `json:"spec_folder,omitempty"`
	ImportanceTier string   `json:"importance_tier"`
	MatchedPhrases []string `json:"matched_phrases,omitempty"`
}

// SurfacedContext is attached to memory-aware results.
type SurfacedContext struct {
	Constitutional []SurfacedMemory `json:"constitutional"`
	Triggered      []SurfacedMemory `json:"triggered"`
}

// SurfacerConfig configures a Surfacer.
type SurfacerConfig struct {
	Source              SourceFunc
	ConstitutionalLimit int
	TriggerLimit        int
}

// Surfacer fetches the context attached to memory-aware results.
type Surfacer struct {
	source       SourceFunc
	constLimit   int
	triggerLimit int
}

// NewSurfacer creates a Surfacer. Limits default to 5.
func NewSurfacer(cfg SurfacerConfig) *Surfacer {
	s := &Surfacer{
		source:       cfg.Source,
		constLimit:   cfg.ConstitutionalLimit,
		triggerLimit: cfg.TriggerLimit,
	}
	if s.constLimit <= 0 {
		s.constLimit = 5
	}
	if s.triggerLimit <= 0 {
		s.triggerLimit = 5
	}
	return s
}

// Surface looks up constitutional memories and trigger matches for hint
// concurrently. Memories already listed as constitutional are not repeated
// under triggered. Lists are never nil.
func (s *Surfacer) Surface(ctx context.Context, hint string) (*SurfacedContext, error) {
	if s == nil || s.source == nil {
		return nil, errors.New("hooks: surfacer has no source")
	}
	src, err := s.source(ctx)
	if err != nil {
		return nil, fmt.Errorf("hooks: open source: %w", err)
	}

	var (
		constitutional []memory.Memory
		matches        []memory.TriggerMatch
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		constitutional, err = src.Constitutional(s.constLimit)
		return err
	})
	g.Go(func() error {
		if err := gctx.Err(); err != nil {
			return err
		}
		var err error
		matches, err = src.MatchTriggers(hint, "", s.triggerLimit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("hooks: surface: %w", err)
	}

	out := &SurfacedContext{
		Constitutional: make([]SurfacedMemory, 0, len(constitutional)),
		Triggered:      make([]SurfacedMemory, 0, len(matches)),
	}
	seen := make(map[int64]bool, len(constitutional))
	for _, m := range constitutional {
		seen[m.ID] = true
		out.Constitutional = append(out.Constitutional, compact(m, nil))
	}
	for _, m := range matches {
		if seen[m.ID] {
			continue
		}
		out.Triggered = append(out.Triggered, compact(m.Memory, m.MatchedPhrases))
	}
	return out, nil
}

// Empty reports whether nothing was surfaced.
func (c *SurfacedContext) Empty() bool {
	return c == nil || (len(c.Constitutional) == 0 && len(c.Triggered) == 0)
}

func compact(m memory.Memory, phrases []string) SurfacedMemory {
	return SurfacedMemory{
		ID:             m.ID,
		Title:          m.Title,
		SpecFolder:     m.SpecFolder,
		ImportanceTier: m.ImportanceTier,
		MatchedPhrases: phrases,
	}
}
