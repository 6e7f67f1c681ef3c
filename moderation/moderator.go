package moderation

import (
	"fmt"
	"log/slog"
	"sort"
	"unicode"
	"unicode/utf8"

	"support-chat/contract"

	goahocorasick "github.com/anknown/ahocorasick"
	"github.com/abadojack/whatlanggo"
	"github.com/samber/lo"
)

// Moderator masks censored words in customer messages.
// Matching runs on a normalized copy of the text (lower case, leet speak
// folded, punctuation and spaces dropped) so "S.T.U.P.1.D" is caught too.
type Moderator struct {
	matcher      *goahocorasick.Machine
	censoredChar rune
	log          *slog.Logger
}

var _ contract.IContentFilter = (*Moderator)(nil)

type textMapping struct {
	normalized []rune
	origIdx    []int
}

// NewModerator builds the automaton. Entries made only of noise are ignored.
func NewModerator(censoredWords []string, censoredChar rune, log *slog.Logger) (*Moderator, error) {
	if censoredChar == utf8.RuneError {
		return nil, fmt.Errorf("invalid replacement character")
	}
	// the automaton expects unique keys in code point order
	keys := lo.Uniq(lo.FilterMap(censoredWords, func(word string, _ int) (string, bool) {
		p := normalizeRunes([]rune(word))
		return string(p), len(p) > 0
	}))
	sort.Strings(keys)
	patterns := lo.Map(keys, func(k string, _ int) []rune { return []rune(k) })

	m := &Moderator{censoredChar: censoredChar, log: log}
	if len(patterns) == 0 {
		return m, nil
	}
	m.matcher = new(goahocorasick.Machine)
	if err := m.matcher.Build(patterns); err != nil {
		return nil, fmt.Errorf("failed to build moderation automaton: %w", err)
	}
	return m, nil
}

// Censor replaces every matched span of the original text, spacing and
// punctuation between the masked letters included, and returns the words hit.
func (m *Moderator) Censor(original string) (string, []string) {
	if m.matcher == nil {
		return original, nil
	}
	mapping := normalize(original)
	if len(mapping.normalized) == 0 {
		return original, nil
	}
	terms := m.matcher.MultiPatternSearch(mapping.normalized, false)
	if len(terms) == 0 {
		return original, nil
	}

	origRunes := []rune(original)
	var found []string
	for _, term := range terms {
		start, end := term.Pos, term.Pos+len(term.Word)
		if start < 0 || end > len(mapping.origIdx) {
			continue
		}
		for i := mapping.origIdx[start]; i <= mapping.origIdx[end-1]; i++ {
			origRunes[i] = m.censoredChar
		}
		found = append(found, string(term.Word))
	}

	if len(found) > 0 {
		lang := whatlanggo.Detect(original).Lang.Iso6391()
		m.log.Info("Message censored", "lang", lang, "words", len(found))
	}
	return string(origRunes), found
}

func normalize(input string) textMapping {
	origRunes := []rune(input)
	mapping := textMapping{
		normalized: make([]rune, 0, len(origRunes)),
		origIdx:    make([]int, 0, len(origRunes)),
	}
	for i, r := range origRunes {
		clean := simplifyRune(r)
		if isNoise(clean) {
			continue
		}
		mapping.normalized = append(mapping.normalized, unicode.ToLower(clean))
		mapping.origIdx = append(mapping.origIdx, i)
	}
	return mapping
}

func normalizeRunes(input []rune) []rune {
	return normalize(string(input)).normalized
}

// simplifyRune folds leet speak back to letters.
func simplifyRune(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
