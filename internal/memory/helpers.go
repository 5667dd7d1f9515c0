package memory

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"strings"
	"time"
)

// ─── Tiers ───────────────────────────────────────────────────────────────────

var tierPriority = map[string]int{
	TierConstitutional: 0,
	TierCritical:       1,
	TierImportant:      2,
	TierNormal:         3,
	TierTemporary:      4,
	TierDeprecated:     5,
}

// Tiers returns the importance tiers, highest priority first.
func Tiers() []string {
	return []string{TierConstitutional, TierCritical, TierImportant, TierNormal, TierTemporary, TierDeprecated}
}

// ValidTier reports whether t names a known tier.
func ValidTier(t string) bool {
	_, ok := tierPriority[t]
	return ok
}

func normalizeTier(t string) string {
	v := strings.ToLower(strings.TrimSpace(t))
	if ValidTier(v) {
		return v
	}
	return TierNormal
}

// defaultWeight is the importance weight given to a tier when none is set.
func defaultWeight(tier string) float64 {
	switch tier {
	case TierConstitutional:
		return 1.0
	case TierCritical:
		return 0.9
	case TierImportant:
		return 0.7
	case TierTemporary:
		return 0.3
	case TierDeprecated:
		return 0.1
	default:
		return 0.5
	}
}

// ─── Encoding ────────────────────────────────────────────────────────────────

func encodeStrings(v []string) string {
	if len(v) == 0 {
		return "[]"
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeStrings(s string) []string {
	out := []string{}
	if s == "" {
		return out
	}
	_ = json.Unmarshal([]byte(s), &out) // malformed rows decode as empty
	return out
}

func cleanPhrases(in []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(in))
	for _, p := range in {
		p = strings.TrimSpace(p)
		key := strings.ToLower(p)
		if p == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, p)
	}
	return out
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v
}

// Cosine returns the cosine similarity of a and b, or 0 when the lengths
// differ or either vector is zero.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// ─── Misc ────────────────────────────────────────────────────────────────────

func nullableString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

// Truncate shortens a string to max bytes with ellipsis, never splitting a rune.
func Truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !isRuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

// sanitizeFTS wraps each word in quotes for safe FTS5 queries.
// "fix auth bug" → `"fix" "auth" "bug"`
func sanitizeFTS(query string) string {
	words := strings.Fields(query)
	out := words[:0]
	for _, w := range words {
		w = strings.ReplaceAll(w, `"`, "")
		if w == "" {
			continue
		}
		out = append(out, `"`+w+`"`)
	}
	return strings.Join(out, " ")
}

// isUniqueViolation checks if an error is a SQLite UNIQUE constraint violation.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// Now returns the current time formatted for SQLite.
func Now() string {
	return time.Now().UTC().Format("2006-01-02 15:04:05")
}

// EmbeddingText is the text a memory's vector is computed from.
func EmbeddingText(title, content string) string {
	return strings.TrimSpace(title + "\n\n" + content)
}
