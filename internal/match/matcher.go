package match

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/praxamed/calsync/internal/store"
)

// Match is a patient link candidate for an imported event title.
type Match struct {
	PatientID  string
	Confidence float64
}

// Matcher links a free-text event title to a patient record. A nil result
// with a nil error means no patient could be identified.
type Matcher interface {
	Match(ctx context.Context, userID, title string) (*Match, error)
}

// maxOverlapConfidence caps token-overlap scores below containment so the
// default threshold of 1.0 keeps pure substring semantics.
const maxOverlapConfidence = 0.9

// SubstringMatcher matches an event title against "{lastName} {firstName}"
// after lowercasing and diacritics folding. Containment scores 1.0; partial
// name-token overlap scores proportionally up to maxOverlapConfidence, so a
// lower threshold enables fuzzier linking without changing the caller's
// contract.
type SubstringMatcher struct {
	patients  store.PatientRepository
	threshold float64
}

// NewSubstringMatcher creates a matcher with the given minimum confidence.
// A threshold of 1.0 keeps plain substring semantics.
func NewSubstringMatcher(patients store.PatientRepository, threshold float64) *SubstringMatcher {
	if threshold <= 0 || threshold > 1 {
		threshold = 1.0
	}
	return &SubstringMatcher{patients: patients, threshold: threshold}
}

// Match implements Matcher. For equal confidence the first patient in store
// iteration order wins.
func (m *SubstringMatcher) Match(ctx context.Context, userID, title string) (*Match, error) {
	patients, err := m.patients.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list patients: %w", err)
	}

	normTitle := normalize(title)
	titleTokens := tokenSet(normTitle)

	var best *Match
	for _, p := range patients {
		name := strings.TrimSpace(p.LastName + " " + p.FirstName)
		if name == "" {
			continue
		}
		normName := normalize(name)

		if strings.Contains(normTitle, normName) {
			// Exact containment: first match wins.
			return &Match{PatientID: p.ID, Confidence: 1.0}, nil
		}

		score := overlapScore(normName, titleTokens)
		if score >= m.threshold && (best == nil || score > best.Confidence) {
			best = &Match{PatientID: p.ID, Confidence: score}
		}
	}

	return best, nil
}

// overlapScore is the fraction of name tokens present in the title, scaled
// to stay below containment confidence.
func overlapScore(normName string, titleTokens map[string]bool) float64 {
	nameTokens := strings.Fields(normName)
	if len(nameTokens) == 0 {
		return 0
	}
	hits := 0
	for _, tok := range nameTokens {
		if titleTokens[tok] {
			hits++
		}
	}
	return maxOverlapConfidence * float64(hits) / float64(len(nameTokens))
}

func tokenSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, tok := range strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	}) {
		set[tok] = true
	}
	return set
}

// normalize lowercases and strips diacritics so "Périer" matches "perier".
func normalize(s string) string {
	folder := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(folder, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(out)
}
