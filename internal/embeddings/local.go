package embeddings

import (
	"context"
	"encoding/binary"
	"math"
	"strings"
	"unicode"

	"github.com/zeebo/blake3"
)

// DefaultLocalDimensions is the vector length of the local provider.
const DefaultLocalDimensions = 256

var _ Provider = (*Local)(nil)

// Local is an offline provider based on the hashing trick: every token and
// token bigram is hashed into one signed bucket, and the vector is
// L2-normalized. It captures lexical overlap only, which is enough to
// re-rank FTS candidates when no API key is configured.
type Local struct {
	dims int
}

// NewLocal returns a local provider. dims <= 0 selects DefaultLocalDimensions.
func NewLocal(dims int) *Local {
	if dims <= 0 {
		dims = DefaultLocalDimensions
	}
	return &Local{dims: dims}
}

// Embed implements Provider.
func (l *Local) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, l.dims)
	tokens := tokenize(text)
	for i, tok := range tokens {
		l.add(vec, tok, 1)
		if i > 0 {
			l.add(vec, tokens[i-1]+" "+tok, 0.5)
		}
	}
	normalize(vec)
	return vec, nil
}

// EmbedBatch implements Provider.
func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := l.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions implements Provider.
func (l *Local) Dimensions() int { return l.dims }

// ModelID implements Provider.
func (l *Local) ModelID() string { return "local-hash-v1" }

// ValidateCredentials implements Provider. There are none.
func (l *Local) ValidateCredentials(context.Context) error { return nil }

// ShouldWarmEagerly implements Provider.
func (l *Local) ShouldWarmEagerly() bool { return true }

func (l *Local) add(vec []float32, feature string, weight float32) {
	sum := blake3.Sum256([]byte(feature))
	h := binary.LittleEndian.Uint64(sum[:8])
	idx := h % uint64(l.dims)
	if sum[8]&1 == 1 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func normalize(vec []float32) {
	var sum float64
	for _, v := range vec {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	n := float32(math.Sqrt(sum))
	for i := range vec {
		vec[i] /= n
	}
}
