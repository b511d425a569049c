// Package query turns an (industry, location) pair into a ranked list of
// search phrases.
package query

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/company-finder/internal/model"
	"github.com/sells-group/company-finder/internal/ports"
)

// DefaultK is the number of phrases returned when the caller does not say.
const DefaultK = 8

// expansionTerms is how many vocabulary terms join the industry tokens.
const expansionTerms = 5

var templates = []string{
	"%s companies in %s",
	"top %s startups near %s",
	"%s firms %s",
	"best %s agencies in %s",
}

// Planner expands and ranks search phrases using an embedding oracle.
type Planner struct {
	embedder   ports.Embedder
	vocabulary []string
}

// New creates a Planner. A nil or empty vocabulary uses DefaultVocabulary.
func New(embedder ports.Embedder, vocabulary []string) *Planner {
	if len(vocabulary) == 0 {
		vocabulary = DefaultVocabulary
	}
	return &Planner{embedder: embedder, vocabulary: vocabulary}
}

// Plan returns at most k phrases ranked by similarity to
// "{industry} in {location}". k <= 0 returns an empty plan.
func (p *Planner) Plan(ctx context.Context, industry, location string, k int) ([]model.Query, error) {
	if k <= 0 {
		return []model.Query{}, nil
	}

	tokens := Tokenize(industry)
	if len(tokens) == 0 {
		zap.L().Warn("query: industry has no usable tokens", zap.String("industry", industry))
		return []model.Query{}, nil
	}

	terms, err := p.expand(ctx, tokens)
	if err != nil {
		return nil, err
	}

	phrases := Compose(terms, location)

	intent, err := p.embedder.Embed(ctx, fmt.Sprintf("%s in %s", industry, location))
	if err != nil {
		return nil, eris.Wrap(err, "query: embed intent")
	}
	vecs, err := p.embedder.EmbedBatch(ctx, phrases)
	if err != nil {
		return nil, eris.Wrap(err, "query: embed phrases")
	}
	if len(vecs) != len(phrases) {
		return nil, eris.Errorf("query: embedder returned %d vectors for %d phrases", len(vecs), len(phrases))
	}

	ranked := make([]model.Query, len(phrases))
	for i, ph := range phrases {
		ranked[i] = model.Query{Text: ph, Score: Cosine(intent, vecs[i])}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })

	if len(ranked) > k {
		ranked = ranked[:k]
	}
	for i := range ranked {
		ranked[i].Rank = i + 1
	}

	zap.L().Debug("query: planned",
		zap.Int("terms", len(terms)),
		zap.Int("phrases", len(phrases)),
		zap.Int("returned", len(ranked)),
	)
	return ranked, nil
}

// expand returns the tokens followed by the top vocabulary terms closest to
// the token centroid, without duplicates.
func (p *Planner) expand(ctx context.Context, tokens []string) ([]string, error) {
	tokVecs, err := p.embedder.EmbedBatch(ctx, tokens)
	if err != nil {
		return nil, eris.Wrap(err, "query: embed tokens")
	}
	vocabVecs, err := p.embedder.EmbedBatch(ctx, p.vocabulary)
	if err != nil {
		return nil, eris.Wrap(err, "query: embed vocabulary")
	}
	if len(vocabVecs) != len(p.vocabulary) {
		return nil, eris.Errorf("query: embedder returned %d vectors for %d terms", len(vocabVecs), len(p.vocabulary))
	}

	centroid := Mean(tokVecs)

	type scored struct {
		term string
		sim  float64
	}
	cands := make([]scored, len(p.vocabulary))
	for i, term := range p.vocabulary {
		cands[i] = scored{term: term, sim: Cosine(centroid, vocabVecs[i])}
	}
	sort.SliceStable(cands, func(i, j int) bool { return cands[i].sim > cands[j].sim })
	if len(cands) > expansionTerms {
		cands = cands[:expansionTerms]
	}

	out := make([]string, 0, len(tokens)+len(cands))
	seen := make(map[string]bool, cap(out))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, c := range cands {
		if !seen[c.term] {
			seen[c.term] = true
			out = append(out, c.term)
		}
	}
	return out, nil
}

// Tokenize normalizes text (NFKC, lowercase), replaces anything outside
// [a-z0-9 ] with a space, splits on whitespace and drops English stop-words.
func Tokenize(text string) []string {
	text = strings.ToLower(norm.NFKC.String(text))

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteByte(' ')
		}
	}

	var tokens []string
	for _, tok := range strings.Fields(b.String()) {
		if _, stop := stopWords[tok]; !stop {
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// Compose applies every template to every term, term-major.
func Compose(terms []string, location string) []string {
	out := make([]string, 0, len(terms)*len(templates))
	for _, term := range terms {
		for _, tpl := range templates {
			out = append(out, fmt.Sprintf(tpl, term, location))
		}
	}
	return out
}

// Mean returns the element-wise mean of vectors.
func Mean(vectors [][]float32) []float64 {
	if len(vectors) == 0 {
		return nil
	}
	out := make([]float64, len(vectors[0]))
	for _, v := range vectors {
		for i := 0; i < len(out) && i < len(v); i++ {
			out[i] += float64(v[i])
		}
	}
	for i := range out {
		out[i] /= float64(len(vectors))
	}
	return out
}

// Cosine returns the cosine similarity of a and b, or 0 when either is a
// zero vector. Mismatched lengths compare the common prefix.
func Cosine[A, B float32 | float64](a []A, b []B) float64 {
	var dot, na, nb float64
	for i := 0; i < len(a) && i < len(b); i++ {
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
