package app

import (
	"kra-assist/internal/common/logger"
	"kra-assist/internal/dialogue"
	"kra-assist/internal/fraud"
	"kra-assist/internal/handler"
	"kra-assist/internal/handler/assist"
	"kra-assist/internal/ingestion"
	"kra-assist/internal/knowledge"
	"kra-assist/internal/kra"
	"kra-assist/internal/pipeline"
)

// Logger adapters for packages that declare their own Logger interface.

type PipelineLogger struct{ logger.Logger }

func (a PipelineLogger) With(fields map[string]interface{}) pipeline.Logger {
	return PipelineLogger{a.Logger.With(fields)}
}

type DialogueLogger struct{ logger.Logger }

func (a DialogueLogger) With(fields map[string]interface{}) dialogue.Logger {
	return DialogueLogger{a.Logger.With(fields)}
}

type KnowledgeLogger struct{ logger.Logger }

func (a KnowledgeLogger) With(fields map[string]interface{}) knowledge.Logger {
	return KnowledgeLogger{a.Logger.With(fields)}
}

type KRALogger struct{ logger.Logger }

func (a KRALogger) With(fields map[string]interface{}) kra.Logger {
	return KRALogger{a.Logger.With(fields)}
}

type FraudLogger struct{ logger.Logger }

func (a FraudLogger) With(fields map[string]interface{}) fraud.Logger {
	return FraudLogger{a.Logger.With(fields)}
}

type IngestionLogger struct{ logger.Logger }

func (a IngestionLogger) With(fields map[string]interface{}) ingestion.Logger {
	return IngestionLogger{a.Logger.With(fields)}
}

type AssistLogger struct{ logger.Logger }

func (a AssistLogger) With(fields map[string]interface{}) assist.Logger {
	return AssistLogger{a.Logger.With(fields)}
}

type HTTPLogger struct{ logger.Logger }

func (a HTTPLogger) With(fields map[string]interface{}) handler.Logger {
	return HTTPLogger{a.Logger.With(fields)}
}
