package knowledge

import (
	"context"
	"strings"
	"unicode/utf8"
)

// DefaultAnswer is returned when the knowledge base has nothing relevant.
const DefaultAnswer = "Muda wa kuwasilisha fomu P9A ni tarehe 30 Juni kila mwaka."

// MaxAnswerRunes bounds the excerpt taken from the best document.
const MaxAnswerRunes = 500

type Document struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// Searcher returns documents ordered best first.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Document, error)
}

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Service struct {
	searcher Searcher
	logger   Logger
}

func NewService(searcher Searcher, log Logger) *Service {
	return &Service{
		searcher: searcher,
		logger:   log.With(map[string]interface{}{"component": "knowledge"}),
	}
}

// Answer returns an excerpt of the best match for query, or DefaultAnswer
// when there is no match or the search fails.
func (s *Service) Answer(ctx context.Context, query string) string {
	if strings.TrimSpace(query) == "" {
		return DefaultAnswer
	}
	docs, err := s.searcher.Search(ctx, query, 1)
	if err != nil {
		s.logger.Warn("knowledge search failed, using default answer", map[string]interface{}{
			"error": err.Error(),
		})
		return DefaultAnswer
	}
	if len(docs) == 0 || strings.TrimSpace(docs[0].Content) == "" {
		return DefaultAnswer
	}
	return Excerpt(docs[0].Content)
}

// Excerpt cuts content to MaxAnswerRunes and marks the cut with "...".
func Excerpt(content string) string {
	content = strings.TrimSpace(content)
	if utf8.RuneCountInString(content) <= MaxAnswerRunes {
		return content
	}
	runes := []rune(content)
	return string(runes[:MaxAnswerRunes]) + "..."
}
