package fraud

import (
	"context"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	apperrors "kra-assist/internal/common/errors"
	commonhttp "kra-assist/internal/common/http"
)

type Params struct {
	Contamination float64 `json:"contamination"`
	NEstimators   int     `json:"n_estimators"`
	RandomState   int     `json:"random_state"`
}

// Prediction is one scored row. Label follows the isolation forest
// convention: -1 for an outlier, 1 for an inlier.
type Prediction struct {
	Label int
	Score float64
}

// ModelService hosts the isolation forest. Rows are already scaled.
type ModelService interface {
	Fit(ctx context.Context, rows [][]float64, params Params) (modelID string, err error)
	Predict(ctx context.Context, modelID string, rows [][]float64) ([]Prediction, error)
}

type RemoteModelService struct {
	baseURL string
	client  *commonhttp.Client
}

func NewRemoteModelService(baseURL string, client *commonhttp.Client) *RemoteModelService {
	return &RemoteModelService{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

func (s *RemoteModelService) Fit(ctx context.Context, rows [][]float64, params Params) (string, error) {
	body, _, err := s.client.PostJSON(ctx, s.baseURL+"/v1/isolation-forest/fit", map[string]interface{}{
		"features": FeatureNames,
		"rows":     rows,
		"params":   params,
	})
	if err != nil {
		return "", apperrors.NewUpstreamError("fraud-model", err)
	}
	id := gjson.GetBytes(body, "model_id").String()
	if id == "" {
		return "", apperrors.NewUpstreamError("fraud-model", fmt.Errorf("fit response has no model_id"))
	}
	return id, nil
}

// Predict expects {"predictions":[{"label":-1,"score":0.91}, ...]} with one
// entry per row, in row order.
func (s *RemoteModelService) Predict(ctx context.Context, modelID string, rows [][]float64) ([]Prediction, error) {
	body, _, err := s.client.PostJSON(ctx, s.baseURL+"/v1/isolation-forest/predict", map[string]interface{}{
		"model_id": modelID,
		"rows":     rows,
	})
	if err != nil {
		return nil, apperrors.NewUpstreamError("fraud-model", err)
	}

	items := gjson.GetBytes(body, "predictions").Array()
	if len(items) != len(rows) {
		return nil, apperrors.NewUpstreamError("fraud-model",
			fmt.Errorf("got %d predictions for %d rows", len(items), len(rows)))
	}
	out := make([]Prediction, len(items))
	for i, item := range items {
		out[i] = Prediction{Label: int(item.Get("label").Int()), Score: item.Get("score").Float()}
	}
	return out, nil
}
