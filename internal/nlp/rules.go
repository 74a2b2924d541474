package nlp

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"kra-assist/internal/models"
)

const monthNames = `january|february|march|april|may|june|july|august|september|october|november|december|` +
	`januari|februari|machi|aprili|mei|juni|julai|agosti|septemba|oktoba|novemba|desemba`

var (
	pinPattern      = regexp.MustCompile(`(?i)\b[a-z]\d{9}[a-z]\b`)
	formPattern     = regexp.MustCompile(`(?i)\b(p9a|it1|vat3)\b`)
	taxTypePattern  = regexp.MustCompile(`(?i)\b(vat|paye|income tax|turnover tax|excise duty|withholding tax)\b`)
	currencyPattern = regexp.MustCompile(`(?i)\bkes\s?(\d+(?:\.\d+)?)\b|\b(\d+(?:\.\d+)?)\s?(?:shillings|shilingi|bob)\b`)
	datePattern     = regexp.MustCompile(`(?i)\b\d{1,2}\s+(?:` + monthNames + `)(?:\s+\d{4})?\b`)
)

// RuleExtractor finds entities with fixed patterns. It is the offline
// extractor used when no NER service is configured, and is safe on
// normalized (lowercased, punctuation-free) text.
type RuleExtractor struct{}

func NewRuleExtractor() *RuleExtractor {
	return &RuleExtractor{}
}

type span struct {
	start int
	ent   models.RawEntity
}

func (r *RuleExtractor) Extract(_ context.Context, text string) ([]models.RawEntity, error) {
	var spans []span

	collect := func(re *regexp.Regexp, kind models.EntityKind, upper bool) {
		for _, loc := range re.FindAllStringIndex(text, -1) {
			val := text[loc[0]:loc[1]]
			if upper {
				val = strings.ToUpper(val)
			}
			spans = append(spans, span{start: loc[0], ent: models.RawEntity{Kind: kind, Value: val}})
		}
	}

	collect(pinPattern, models.EntityKRAPin, true)
	collect(formPattern, models.EntityTaxForm, true)
	collect(taxTypePattern, models.EntityTaxType, true)
	collect(datePattern, models.EntityDate, false)

	for _, m := range currencyPattern.FindAllStringSubmatchIndex(text, -1) {
		spans = append(spans, span{start: m[0], ent: models.RawEntity{
			Kind:  models.EntityCurrency,
			Value: text[m[0]:m[1]],
		}})
		for _, g := range []int{2, 4} {
			if m[g] >= 0 {
				spans = append(spans, span{start: m[g], ent: models.RawEntity{
					Kind:  models.EntityAmount,
					Value: text[m[g]:m[g+1]],
				}})
			}
		}
	}

	sort.SliceStable(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	out := make([]models.RawEntity, len(spans))
	for i, s := range spans {
		out[i] = s.ent
	}
	return out, nil
}

// ExtractPIN returns the first KRA PIN in text, uppercased.
func ExtractPIN(text string) string {
	return strings.ToUpper(pinPattern.FindString(text))
}
