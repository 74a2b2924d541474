package models

import (
	"errors"
	"strings"

	apperrors "kra-assist/internal/common/errors"
)

type Language string

const (
	LanguageSwahili Language = "sw"
	LanguageEnglish Language = "en"

	DefaultLanguage = LanguageSwahili
)

var ErrEmptyQuery = errors.New("query text is empty")

// Query is one inbound question. Build it with NewQuery.
type Query struct {
	Text     string   `json:"query"`
	Language Language `json:"language"`
	UserID   string   `json:"user_id,omitempty"`
}

// NewQuery trims text and applies the default language. Empty text is a
// validation error wrapping ErrEmptyQuery. Language validity is left to the
// normalizer, which owns the supported set.
func NewQuery(text, language, userID string) (Query, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Query{}, apperrors.WrapValidationError(ErrEmptyQuery)
	}
	lang := Language(strings.ToLower(strings.TrimSpace(language)))
	if lang == "" {
		lang = DefaultLanguage
	}
	return Query{
		Text:     text,
		Language: lang,
		UserID:   strings.TrimSpace(userID),
	}, nil
}

func (q Query) Anonymous() bool {
	return q.UserID == ""
}
