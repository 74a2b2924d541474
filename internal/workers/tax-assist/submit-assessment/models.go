package submitassessment

type Input struct {
	PIN            string  `json:"pin"`
	TaxYear        int     `json:"taxYear"`
	Amount         float64 `json:"amount"`
	AssessmentType string  `json:"assessmentType,omitempty"`
	Frequency      float64 `json:"frequency"`
	DeclaredIncome float64 `json:"declaredIncome"`
	AssetValue     float64 `json:"assetValue"`
}

type Output struct {
	TransactionID string  `json:"transactionId"`
	FraudScore    float64 `json:"fraudScore"`
}
