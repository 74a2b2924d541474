package pipeline

import "kra-assist/internal/models"

type ErrorKind string

const (
	KindCollaboratorFailure ErrorKind = "collaborator_failure"
	KindTimeout             ErrorKind = "timeout"
	KindUnsupportedLanguage ErrorKind = "unsupported_language"
)

var escalationMessages = map[models.Language]string{
	models.LanguageSwahili: "Samahani, tafadhali eleza swali lako kwa undani zaidi.",
	models.LanguageEnglish: "Sorry, please describe your question in more detail.",
}

var fallbackMessages = map[models.Language]string{
	models.LanguageSwahili: "Samahani, kuna tatizo la kiufundi. Tafadhali jaribu tena baadaye.",
	models.LanguageEnglish: "Sorry, we're experiencing technical difficulties. Please try again later.",
}

// Fallback returns the localized message shown when processing fails.
// Unknown languages get the Swahili text.
func Fallback(lang models.Language, kind ErrorKind) string {
	if kind == KindUnsupportedLanguage {
		return fallbackMessages[models.DefaultLanguage]
	}
	if msg, ok := fallbackMessages[lang]; ok {
		return msg
	}
	return fallbackMessages[models.DefaultLanguage]
}

// EscalationMessage is the localized text of an escalation Response.
func EscalationMessage(lang models.Language) string {
	if msg, ok := escalationMessages[lang]; ok {
		return msg
	}
	return escalationMessages[models.DefaultLanguage]
}

func EscalationResponse(lang models.Language) models.Response {
	return models.NewResponse(models.ActionEscalate, EscalationMessage(lang), nil, models.PendingNone)
}
