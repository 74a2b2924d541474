package fraud

import (
	"fmt"
	"math"
)

// FeatureNames is the column order of every feature row.
var FeatureNames = [4]string{"amount", "frequency", "declared_income", "asset_value"}

type Sample struct {
	Amount         float64 `json:"amount"`
	Frequency      float64 `json:"frequency"`
	DeclaredIncome float64 `json:"declared_income"`
	AssetValue     float64 `json:"asset_value"`
}

func (s Sample) vector() [4]float64 {
	return [4]float64{s.Amount, s.Frequency, s.DeclaredIncome, s.AssetValue}
}

// Scaler standardizes each feature to zero mean and unit variance using
// population statistics. A constant feature keeps a scale of 1.
type Scaler struct {
	Mean  [4]float64 `json:"mean"`
	Scale [4]float64 `json:"scale"`
}

func FitScaler(samples []Sample) (Scaler, error) {
	if len(samples) == 0 {
		return Scaler{}, fmt.Errorf("fit scaler: no samples")
	}
	var s Scaler
	n := float64(len(samples))

	for _, smp := range samples {
		v := smp.vector()
		for i := range v {
			s.Mean[i] += v[i]
		}
	}
	for i := range s.Mean {
		s.Mean[i] /= n
	}

	var variance [4]float64
	for _, smp := range samples {
		v := smp.vector()
		for i := range v {
			d := v[i] - s.Mean[i]
			variance[i] += d * d
		}
	}
	for i := range variance {
		std := math.Sqrt(variance[i] / n)
		if std == 0 {
			std = 1
		}
		s.Scale[i] = std
	}
	return s, nil
}

func (s Scaler) Transform(samples []Sample) [][]float64 {
	rows := make([][]float64, len(samples))
	for r, smp := range samples {
		v := smp.vector()
		row := make([]float64, len(v))
		for i := range v {
			row[i] = (v[i] - s.Mean[i]) / s.Scale[i]
		}
		rows[r] = row
	}
	return rows
}
