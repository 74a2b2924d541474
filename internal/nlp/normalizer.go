package nlp

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"kra-assist/internal/models"
)

// UnsupportedLanguageError is returned for a language tag with no term table.
type UnsupportedLanguageError struct {
	Language models.Language
}

func (e *UnsupportedLanguageError) Error() string {
	return fmt.Sprintf("unsupported language %q", string(e.Language))
}

// ErrUnsupportedLanguage matches any *UnsupportedLanguageError via errors.Is.
var ErrUnsupportedLanguage = &UnsupportedLanguageError{}

func (e *UnsupportedLanguageError) Is(target error) bool {
	_, ok := target.(*UnsupportedLanguageError)
	return ok
}

type termRule struct {
	pattern   *regexp.Regexp
	canonical string
}

func rule(term, canonical string) termRule {
	return termRule{
		pattern:   regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(term) + `\b`),
		canonical: canonical,
	}
}

// Canonical forms are lowercase and never contain another term of the same
// table, which keeps Normalize idempotent.
var termTables = map[models.Language][]termRule{
	models.LanguageSwahili: {
		rule("kodi ya mapato", "income tax"),
		rule("ushuru", "tax"),
		rule("VAT", "vat"),
		rule("PAYE", "paye"),
		rule("P9A", "p9a"),
	},
	models.LanguageEnglish: {
		rule("value added tax", "vat"),
		rule("pay as you earn", "paye"),
		rule("VAT", "vat"),
		rule("PAYE", "paye"),
		rule("P9A", "p9a"),
	},
}

// SupportedLanguages lists the tags Normalize accepts.
func SupportedLanguages() []models.Language {
	return []models.Language{models.LanguageSwahili, models.LanguageEnglish}
}

func IsSupported(lang models.Language) bool {
	_, ok := termTables[lang]
	return ok
}

// Normalize lowercases text, substitutes whole-word domain terms for the
// language and strips every rune that is not a letter, digit or whitespace.
func Normalize(text string, lang models.Language) (string, error) {
	rules, ok := termTables[lang]
	if !ok {
		return "", &UnsupportedLanguageError{Language: lang}
	}

	out := substitute(strings.ToLower(text), rules)
	out = strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, out)

	// Stripping can join a term back together ("ushu.ru"); a second pass
	// catches those so that Normalize(Normalize(x)) == Normalize(x).
	return substitute(out, rules), nil
}

func substitute(text string, rules []termRule) string {
	for _, r := range rules {
		text = r.pattern.ReplaceAllLiteralString(text, r.canonical)
	}
	return text
}
