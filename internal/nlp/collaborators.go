package nlp

import (
	"context"
	"sort"
	"strings"

	"kra-assist/internal/models"
)

type Intent struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

type IntentClassifier interface {
	Classify(ctx context.Context, text string) (Intent, error)
}

type EntityExtractor interface {
	Extract(ctx context.Context, text string) ([]models.RawEntity, error)
}

type SentimentAnalyzer interface {
	Analyze(ctx context.Context, text string) (string, error)
}

// ChainExtractor runs every extractor and merges their results. An entity
// found by more than one extractor is kept once, with the value of the first
// extractor that reported it. The merged list is ordered by where each value
// first occurs in text. Any error aborts the chain.
type ChainExtractor []EntityExtractor

func (c ChainExtractor) Extract(ctx context.Context, text string) ([]models.RawEntity, error) {
	type located struct {
		pos int
		ent models.RawEntity
	}

	lower := strings.ToLower(text)
	seen := make(map[string]bool)
	var merged []located
	for _, e := range c {
		found, err := e.Extract(ctx, text)
		if err != nil {
			return nil, err
		}
		for _, ent := range found {
			ent.Value = canonicalValue(ent.Kind, ent.Value)
			key := string(ent.Kind) + "\x00" + strings.ToLower(ent.Value)
			if ent.Value == "" || seen[key] {
				continue
			}
			seen[key] = true

			pos := strings.Index(lower, strings.ToLower(ent.Value))
			if pos < 0 {
				pos = len(lower)
			}
			merged = append(merged, located{pos: pos, ent: ent})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool { return merged[i].pos < merged[j].pos })

	out := make([]models.RawEntity, len(merged))
	for i, m := range merged {
		out[i] = m.ent
	}
	return out, nil
}

// canonicalValue uppercases the code-like kinds so every extractor reports
// them in one casing.
func canonicalValue(kind models.EntityKind, value string) string {
	value = strings.TrimSpace(value)
	switch kind {
	case models.EntityKRAPin, models.EntityTaxForm, models.EntityTaxType:
		return strings.ToUpper(value)
	}
	return value
}
