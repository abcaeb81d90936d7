// Package intent maps free-text chat messages onto the small set of intents the
// mentor acts on.
package intent

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/cobi-dev0615/Montor.ia-sub000/internal/domain"
)

// Keyword is the actionable intent detected in a message.
type Keyword int

const (
	KeywordNone Keyword = iota
	KeywordCompleted
	KeywordCouldnt
	KeywordAdjust
)

func (k Keyword) String() string {
	switch k {
	case KeywordCompleted:
		return "completed"
	case KeywordCouldnt:
		return "couldnt"
	case KeywordAdjust:
		return "adjust"
	default:
		return "none"
	}
}

// Confirmation is the answer to a pending yes/no completion question.
type Confirmation int

const (
	ConfirmNone Confirmation = iota
	ConfirmYes
	ConfirmNo
)

func (c Confirmation) String() string {
	switch c {
	case ConfirmYes:
		return "yes"
	case ConfirmNo:
		return "no"
	default:
		return "none"
	}
}

// Result is the classification of one message.
type Result struct {
	Keyword      Keyword
	Confirmation Confirmation
}

// keywordRules are tested in order; the first match wins.
var keywordRules = []struct {
	keyword Keyword
	sets    []phraseSet
}{
	{KeywordCompleted, completedPhrases},
	{KeywordCouldnt, couldntPhrases},
	{KeywordAdjust, adjustPhrases},
}

// Classify returns the keyword intent of message and, when a confirmation is
// pending, whether the message answers it.
func Classify(message string, pending *domain.PendingCompletion) Result {
	msg := Normalize(message)
	var res Result
	if msg == "" {
		return res
	}

	for _, rule := range keywordRules {
		if matchAny(msg, rule.sets) {
			res.Keyword = rule.keyword
			break
		}
	}

	if pending != nil {
		switch {
		case matchAny(msg, yesPhrases):
			res.Confirmation = ConfirmYes
		case matchAny(msg, noPhrases):
			res.Confirmation = ConfirmNo
		}
	}
	return res
}

// Normalize lowercases and trims a message, strips diacritics, folds typographic
// apostrophes and drops trailing punctuation.
func Normalize(s string) string {
	s = foldAccents(strings.ToLower(strings.TrimSpace(s)))
	s = strings.NewReplacer("’", "'", "‘", "'", "`", "'").Replace(s)
	s = strings.TrimRightFunc(s, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
	})
	return strings.Join(strings.Fields(s), " ")
}

// foldAccents removes combining marks, so "não" and "nao" compare equal.
// Transformers carry state, hence a fresh chain per call.
func foldAccents(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func matchAny(msg string, sets []phraseSet) bool {
	for _, set := range sets {
		for _, phrase := range set.Phrases {
			if matchPhrase(msg, phrase) {
				return true
			}
		}
	}
	return false
}

// matchPhrase is an exact match, or a prefix match ending at a word boundary.
func matchPhrase(msg, phrase string) bool {
	if msg == phrase {
		return true
	}
	if !strings.HasPrefix(msg, phrase) {
		return false
	}
	next, _ := utf8.DecodeRuneInString(msg[len(phrase):])
	return !unicode.IsLetter(next) && !unicode.IsDigit(next) && next != '\''
}
