package models

import "time"

type Taxpayer struct {
	PIN                string    `json:"pin" db:"pin"`
	Name               string    `json:"name,omitempty" db:"name"`
	DeclaredIncome     float64   `json:"declared_income" db:"declared_income"`
	Sector             string    `json:"sector" db:"sector"`
	LastFiling         time.Time `json:"last_filing" db:"last_filing"`
	RegistrationStatus string    `json:"registration_status,omitempty" db:"registration_status"`
}

type MPesaTransaction struct {
	TransactionID string    `json:"transaction_id" db:"transaction_id"`
	Amount        float64   `json:"amount" db:"amount"`
	Phone         string    `json:"phone" db:"phone"`
	Paybill       string    `json:"paybill" db:"paybill"`
	Timestamp     time.Time `json:"timestamp" db:"timestamp"`
}

type Assessment struct {
	PIN            string  `json:"pin"`
	TaxYear        int     `json:"tax_year"`
	Amount         float64 `json:"amount"`
	AssessmentType string  `json:"assessment_type,omitempty"`
}
