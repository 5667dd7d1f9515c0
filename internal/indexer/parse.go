// Package indexer turns memory markdown files into stored memories.
//
// A memory file lives under a "memory" directory inside a spec folder, for
// example specs/007-auth/memory/jwt-decision.md, and may start with a YAML
// frontmatter block:
//
//	---
//	title: JWT decision
//	trigger_phrases: [jwt, auth token]
//	importance_tier: critical
//	context_type: decision
//	---
//
// Files anywhere below a "constitutional" directory are indexed with the
// constitutional tier regardless of their frontmatter.
package indexer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"

	"github.com/HendryAvila/recall/internal/memory"
	"github.com/HendryAvila/recall/internal/toolerr"
)

// Document is a parsed memory file.
type Document struct {
	Path           string
	SpecFolder     string
	Title          string
	Content        string
	TriggerPhrases []string
	ImportanceTier string
	ContextType    string
	Hash           string
}

type frontmatter struct {
	Title          string   `yaml:"title"`
	SpecFolder     string   `yaml:"spec_folder"`
	TriggerPhrases []string `yaml:"trigger_phrases"`
	ImportanceTier string   `yaml:"importance_tier"`
	ContextType    string   `yaml:"context_type"`
}

// SaveParams converts the document into store input.
func (d *Document) SaveParams(force bool) memory.SaveParams {
	return memory.SaveParams{
		SpecFolder:     d.SpecFolder,
		FilePath:       d.Path,
		Title:          d.Title,
		Content:        d.Content,
		TriggerPhrases: d.TriggerPhrases,
		ImportanceTier: d.ImportanceTier,
		ContextType:    d.ContextType,
		ContentHash:    d.Hash,
		Force:          force,
	}
}

// Hash returns the hex blake3 digest of data.
func Hash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Parse builds a Document from a file's bytes. filePath is absolute;
// basePath is the workspace root used to derive the spec folder.
func Parse(filePath string, data []byte, basePath string) (*Document, error) {
	doc := &Document{Path: filePath, Hash: Hash(data)}

	body := data
	var fm frontmatter
	if raw, rest, ok := splitFrontmatter(data); ok {
		if err := yaml.Unmarshal(raw, &fm); err != nil {
			return nil, fmt.Errorf("indexer: %s: invalid frontmatter: %w: %w", filePath, toolerr.ErrInvalidInput, err)
		}
		body = rest
	}
	doc.Content = strings.TrimSpace(string(body))

	doc.Title = strings.TrimSpace(fm.Title)
	if doc.Title == "" {
		doc.Title = firstHeading(doc.Content)
	}
	if doc.Title == "" {
		doc.Title = strings.TrimSuffix(filepath.Base(filePath), filepath.Ext(filePath))
	}

	doc.SpecFolder = strings.TrimSpace(fm.SpecFolder)
	if doc.SpecFolder == "" {
		doc.SpecFolder = SpecFolderOf(filePath, basePath)
	}
	doc.TriggerPhrases = fm.TriggerPhrases
	doc.ImportanceTier = fm.ImportanceTier
	doc.ContextType = fm.ContextType
	if isConstitutional(filePath, basePath) {
		doc.ImportanceTier = memory.TierConstitutional
	}
	return doc, nil
}

// splitFrontmatter separates a leading "---" YAML block from the body.
func splitFrontmatter(data []byte) (raw, rest []byte, ok bool) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	normalized := bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(normalized, []byte("---\n")) {
		return nil, data, false
	}
	after := normalized[4:]
	end := bytes.Index(after, []byte("\n---"))
	if end < 0 {
		return nil, data, false
	}
	raw = after[:end]
	rest = after[end+4:]
	if i := bytes.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[i+1:]
	} else {
		rest = nil
	}
	return raw, rest, true
}

func firstHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "# ") {
			return strings.TrimSpace(line[2:])
		}
	}
	return ""
}

// SpecFolderOf derives the spec folder of a memory file: the slash path,
// relative to basePath, of the directory that contains its "memory" dir.
// Files outside basePath or with no "memory" ancestor return "".
func SpecFolderOf(filePath, basePath string) string {
	rel, ok := relSlash(filePath, basePath)
	if !ok {
		return ""
	}
	parts := strings.Split(path.Dir(rel), "/")
	for i := len(parts) - 1; i >= 0; i-- {
		if parts[i] == "memory" {
			return strings.Join(parts[:i], "/")
		}
	}
	return ""
}

func isConstitutional(filePath, basePath string) bool {
	rel, ok := relSlash(filePath, basePath)
	if !ok {
		rel = filepath.ToSlash(filePath)
	}
	for _, part := range strings.Split(path.Dir(rel), "/") {
		if part == "constitutional" {
			return true
		}
	}
	return false
}

func relSlash(filePath, basePath string) (string, bool) {
	rel, err := filepath.Rel(basePath, filePath)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}
