package validation

const assistRequestSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["query"],
	"properties": {
		"query":    {"type": "string", "minLength": 1, "maxLength": 2000},
		"language": {"type": "string", "pattern": "^[A-Za-z-]{2,8}$"},
		"user_id":  {"type": "string", "maxLength": 128}
	}
}`

const taxpayerRecordSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["pin", "declared_income", "sector", "last_filing"],
	"properties": {
		"pin":             {"type": "string", "pattern": "^[A-Z][0-9]{9}[A-Z]$"},
		"declared_income": {"type": "number", "exclusiveMinimum": 0},
		"sector":          {"type": "string", "maxLength": 4},
		"last_filing":     {"type": "string", "format": "date-time"},
		"name":            {"type": "string"}
	}
}`

const mpesaTransactionSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["transaction_id", "amount", "phone", "paybill", "timestamp"],
	"properties": {
		"transaction_id": {"type": "string", "minLength": 1},
		"amount":         {"type": "number", "exclusiveMinimum": 0},
		"phone":          {"type": "string", "pattern": "^(\\+?254|0)[17][0-9]{8}$"},
		"paybill":        {"type": "string", "pattern": "^[0-9]{5,7}$"},
		"timestamp":      {"type": "string", "format": "date-time"}
	}
}`

const fraudSampleSchema = `{
	"$schema": "http://json-schema.org/draft-07/schema#",
	"type": "object",
	"required": ["amount", "frequency", "declared_income", "asset_value"],
	"properties": {
		"amount":          {"type": "number", "minimum": 0},
		"frequency":       {"type": "number", "minimum": 0},
		"declared_income": {"type": "number", "minimum": 0},
		"asset_value":     {"type": "number", "minimum": 0}
	}
}`

var (
	AssistRequest    = MustCompile("assist_request", assistRequestSchema)
	TaxpayerRecord   = MustCompile("taxpayer_record", taxpayerRecordSchema)
	MPesaTransaction = MustCompile("mpesa_transaction", mpesaTransactionSchema)
	FraudSample      = MustCompile("fraud_sample", fraudSampleSchema)
)
