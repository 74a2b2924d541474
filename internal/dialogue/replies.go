package dialogue

import (
	"fmt"

	"kra-assist/internal/models"
)

var quickReplies = map[string][]string{
	models.IntentPaymentIssue:  {"Nina tatizo la malipo", "Nahitaji msaada wa M-Pesa"},
	models.IntentDeadlineQuery: {"Muda wa VAT", "Muda wa PAYE"},
}

// QuickReplies returns the suggestions shown for intent, never nil.
func QuickReplies(intent string) []string {
	replies, ok := quickReplies[intent]
	if !ok {
		return []string{}
	}
	out := make([]string, len(replies))
	copy(out, replies)
	return out
}

var askPIN = map[models.Language]string{
	models.LanguageSwahili: "Tafadhali toa PIN yako ya KRA ili tukusaidie na malipo.",
	models.LanguageEnglish: "Please provide your KRA PIN so we can help with your payment.",
}

var reaskPIN = map[models.Language]string{
	models.LanguageSwahili: "Hatukupata PIN halali ya KRA. Mfano wa PIN ni A123456789K.",
	models.LanguageEnglish: "We could not find a valid KRA PIN. A PIN looks like A123456789K.",
}

var taxpayerStatus = map[models.Language]string{
	models.LanguageSwahili: "Asante. PIN %s (%s) ina hali ya usajili: %s.",
	models.LanguageEnglish: "Thank you. PIN %s (%s) has registration status: %s.",
}

func localized(table map[models.Language]string, lang models.Language) string {
	if s, ok := table[lang]; ok {
		return s
	}
	return table[models.DefaultLanguage]
}

func statusMessage(lang models.Language, tp *models.Taxpayer) string {
	status := tp.RegistrationStatus
	if status == "" {
		status = "unknown"
	}
	return fmt.Sprintf(localized(taxpayerStatus, lang), tp.PIN, tp.Name, status)
}
