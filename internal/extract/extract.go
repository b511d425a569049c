// Package extract turns cleaned page text into candidate business records.
package extract

import (
	"context"
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/company-finder/internal/model"
	"github.com/sells-group/company-finder/internal/ports"
)

const (
	// entityTextLimit caps the text sent to entity extraction.
	entityTextLimit = 20000
	// classifyTextLimit caps the text sent to industry classification.
	classifyTextLimit = 10000
	// addressWindow is how many characters around a postal code are kept.
	addressWindow = 50
)

var (
	emailRe = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	phoneRe = regexp.MustCompile(`(?:\+?\d{1,3}[\s-]?)?(?:\d{3,4}[\s-]?){2,3}`)
	// \b is ASCII-only; findPIN also rejects a code touching a non-ASCII
	// letter or digit.
	pinRe = regexp.MustCompile(`\b\d{6}\b`)
)

// Extractor builds CandidateRecords from pages using an entity oracle and a
// zero-shot classifier. Contact fields come from fixed patterns.
type Extractor struct {
	entities   ports.EntityExtractor
	classifier ports.Classifier
}

// New creates an Extractor.
func New(entities ports.EntityExtractor, classifier ports.Classifier) *Extractor {
	return &Extractor{entities: entities, classifier: classifier}
}

// Extract produces one record for page. A page with no organisation entity
// still yields a record with an empty name.
func (e *Extractor) Extract(ctx context.Context, page model.Page, industryPrompt string) (model.CandidateRecord, error) {
	ents, err := e.entities.ExtractEntities(ctx, truncateRunes(page.Text, entityTextLimit))
	if err != nil {
		return model.CandidateRecord{}, eris.Wrapf(err, "extract: entities for %s", page.URL)
	}

	score, err := e.classifier.Classify(ctx, truncateRunes(page.Text, classifyTextLimit), industryPrompt)
	if err != nil {
		return model.CandidateRecord{}, eris.Wrapf(err, "extract: classify %s", page.URL)
	}

	return model.CandidateRecord{
		Name:          firstOrg(ents),
		Address:       model.StringPtr(Address(page.Text)),
		Phone:         model.StringPtr(Phone(page.Text)),
		Email:         model.StringPtr(Email(page.Text)),
		Website:       page.URL,
		SourceURL:     page.URL,
		IndustryScore: clamp01(score),
	}, nil
}

// ExtractAll extracts every page in order. The first oracle failure aborts
// the batch and no records are returned.
func (e *Extractor) ExtractAll(ctx context.Context, pages []model.Page, industryPrompt string) ([]model.CandidateRecord, error) {
	out := make([]model.CandidateRecord, 0, len(pages))
	for _, p := range pages {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "extract: canceled")
		}
		rec, err := e.Extract(ctx, p, industryPrompt)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}

	named := 0
	for _, r := range out {
		if r.Name != "" {
			named++
		}
	}
	zap.L().Info("extract: records built",
		zap.Int("pages", len(pages)),
		zap.Int("named", named),
	)
	return out, nil
}

func firstOrg(ents []ports.Entity) string {
	for _, ent := range ents {
		if ent.Type == ports.EntityOrg {
			if name := strings.TrimSpace(ent.Text); name != "" {
				return name
			}
		}
	}
	return ""
}

// Address returns the text window around the first six-digit postal code,
// or "" when there is none.
func Address(text string) string {
	loc := findPIN(text)
	if loc == nil {
		return ""
	}

	start := loc[0]
	for i := 0; i < addressWindow && start > 0; i++ {
		_, size := utf8.DecodeLastRuneInString(text[:start])
		start -= size
	}
	end := loc[1]
	for i := 0; i < addressWindow && end < len(text); i++ {
		_, size := utf8.DecodeRuneInString(text[end:])
		end += size
	}
	return text[start:end]
}

func findPIN(text string) []int {
	for _, loc := range pinRe.FindAllStringIndex(text, -1) {
		before, _ := utf8.DecodeLastRuneInString(text[:loc[0]])
		after, _ := utf8.DecodeRuneInString(text[loc[1]:])
		if isWordRune(before) || isWordRune(after) {
			continue
		}
		return loc
	}
	return nil
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// Phone returns the first phone-like digit run, trimmed.
func Phone(text string) string {
	return strings.Trim(phoneRe.FindString(text), " \t\n\r-")
}

// Email returns the first email address in text.
func Email(text string) string {
	return emailRe.FindString(text)
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}

func clamp01(v float64) float64 {
	switch {
	case v < 0 || math.IsNaN(v):
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
