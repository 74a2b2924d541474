package fraud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "kra-assist/internal/common/errors"
	commonhttp "kra-assist/internal/common/http"
)

type TestLogger struct{ t *testing.T }

func NewTestLogger(t *testing.T) *TestLogger { return &TestLogger{t: t} }

func (l *TestLogger) Info(msg string, fields map[string]interface{}) {
	l.t.Logf("INFO: %s %v", msg, fields)
}

func (l *TestLogger) Warn(msg string, fields map[string]interface{}) {
	l.t.Logf("WARN: %s %v", msg, fields)
}

func (l *TestLogger) Error(msg string, fields map[string]interface{}) {
	l.t.Logf("ERROR: %s %v", msg, fields)
}

func (l *TestLogger) With(map[string]interface{}) Logger { return l }

type MockModelService struct{ mock.Mock }

func (m *MockModelService) Fit(ctx context.Context, rows [][]float64, params Params) (string, error) {
	args := m.Called(ctx, rows, params)
	return args.String(0), args.Error(1)
}

func (m *MockModelService) Predict(ctx context.Context, modelID string, rows [][]float64) ([]Prediction, error) {
	args := m.Called(ctx, modelID, rows)
	preds, _ := args.Get(0).([]Prediction)
	return preds, args.Error(1)
}

var trainingSet = []Sample{
	{Amount: 1000, Frequency: 2, DeclaredIncome: 50000, AssetValue: 100000},
	{Amount: 3000, Frequency: 4, DeclaredIncome: 70000, AssetValue: 100000},
}

func newDetector(t *testing.T, svc ModelService) *Detector {
	cfg := LoadConfig()
	cfg.ModelPath = filepath.Join(t.TempDir(), "fraud_detection", "fraud_model.json")
	return NewDetector(cfg, svc, NewTestLogger(t))
}

func TestFitScaler(t *testing.T) {
	s, err := FitScaler(trainingSet)
	require.NoError(t, err)

	assert.Equal(t, [4]float64{2000, 3, 60000, 100000}, s.Mean)
	assert.Equal(t, [4]float64{1000, 1, 10000, 1}, s.Scale, "constant asset_value keeps unit scale")

	rows := s.Transform(trainingSet)
	require.Len(t, rows, 2)
	assert.Equal(t, []float64{-1, -1, -1, 0}, rows[0])
	assert.Equal(t, []float64{1, 1, 1, 0}, rows[1])

	_, err = FitScaler(nil)
	assert.Error(t, err)
}

func TestPredict_BeforeTrain(t *testing.T) {
	svc := &MockModelService{}
	d := newDetector(t, svc)

	_, err := d.Predict(context.Background(), trainingSet)
	assert.ErrorIs(t, err, ErrModelNotTrained)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeModelNotTrained))

	_, err = d.Score(context.Background(), trainingSet[0])
	assert.ErrorIs(t, err, ErrModelNotTrained)
	svc.AssertNotCalled(t, "Predict", mock.Anything, mock.Anything, mock.Anything)
}

func TestTrainPredictAndPersist(t *testing.T) {
	svc := &MockModelService{}
	d := newDetector(t, svc)

	svc.On("Fit", mock.Anything, [][]float64{{-1, -1, -1, 0}, {1, 1, 1, 0}}, Params{Contamination: 0.05, NEstimators: 100, RandomState: 42}).
		Return("forest-7", nil).Once()
	svc.On("Predict", mock.Anything, "forest-7", mock.Anything).
		Return([]Prediction{{Label: -1, Score: 0.9}, {Label: 1, Score: 0.2}, {Label: 0, Score: 0.1}}, nil)

	artifact, err := d.Train(context.Background(), trainingSet)
	require.NoError(t, err)
	assert.Equal(t, ModelVersion, artifact.Version)
	assert.Equal(t, 2, artifact.Samples)
	assert.True(t, d.Trained())

	labels, err := d.Predict(context.Background(), append(trainingSet, Sample{}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 0}, labels)

	data, err := os.ReadFile(d.config.ModelPath)
	require.NoError(t, err)
	var onDisk Artifact
	require.NoError(t, json.Unmarshal(data, &onDisk))
	assert.Equal(t, "v2.1", onDisk.Version)
	assert.Equal(t, "forest-7", onDisk.ModelID)
	assert.Equal(t, artifact.Scaler, onDisk.Scaler)

	restored := NewDetector(&Config{ModelPath: d.config.ModelPath}, svc, NewTestLogger(t))
	require.NoError(t, restored.Load(""))
	labels, err = restored.Predict(context.Background(), append(trainingSet, Sample{}))
	require.NoError(t, err)
	assert.Equal(t, []int{1, 0, 0}, labels)
}

func TestTrain_FitFailure(t *testing.T) {
	svc := &MockModelService{}
	d := newDetector(t, svc)
	svc.On("Fit", mock.Anything, mock.Anything, mock.Anything).
		Return("", apperrors.NewUpstreamError("fraud-model", errors.New("503")))

	_, err := d.Train(context.Background(), trainingSet)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUpstream))
	assert.False(t, d.Trained())
	_, statErr := os.Stat(d.config.ModelPath)
	assert.True(t, os.IsNotExist(statErr))

	_, err = d.Train(context.Background(), nil)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}

func TestLoad_RejectsBadArtifacts(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) string {
		p := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		return p
	}
	d := newDetector(t, &MockModelService{})

	assert.Error(t, d.Load(filepath.Join(dir, "missing.json")))
	assert.Error(t, d.Load(write("garbage.json", "{")))
	assert.Error(t, d.Load(write("old.json", `{"version":"v1.0","model_id":"m"}`)))
	assert.Error(t, d.Load(write("noid.json", `{"version":"v2.1"}`)))
	assert.False(t, d.Trained())
}

func TestScore_Threshold(t *testing.T) {
	tests := []struct {
		score     float64
		suspected bool
	}{
		{0.84, false},
		{0.85, true},
		{0.99, true},
	}
	for _, tt := range tests {
		svc := &MockModelService{}
		d := newDetector(t, svc)
		svc.On("Fit", mock.Anything, mock.Anything, mock.Anything).Return("m1", nil)
		svc.On("Predict", mock.Anything, "m1", mock.Anything).Return([]Prediction{{Label: -1, Score: tt.score}}, nil)
		_, err := d.Train(context.Background(), trainingSet)
		require.NoError(t, err)

		a, err := d.Score(context.Background(), trainingSet[0])
		require.NoError(t, err)
		assert.Equal(t, tt.suspected, a.Suspected, "score %v", tt.score)
		assert.Equal(t, tt.score, a.Score)
	}
}

func TestShouldRetrain(t *testing.T) {
	d := newDetector(t, &MockModelService{})
	assert.False(t, d.ShouldRetrain(0))
	assert.False(t, d.ShouldRetrain(1000))
	assert.True(t, d.ShouldRetrain(1001))
}

func TestRemoteModelService(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var req map[string]interface{}
		require.NoError(t, json.Unmarshal(body, &req))

		switch r.URL.Path {
		case "/v1/isolation-forest/fit":
			params := req["params"].(map[string]interface{})
			assert.Equal(t, 0.05, params["contamination"])
			assert.Equal(t, float64(100), params["n_estimators"])
			assert.Len(t, req["features"], 4)
			_, _ = w.Write([]byte(`{"model_id":"forest-1"}`))
		case "/v1/isolation-forest/predict":
			assert.Equal(t, "forest-1", req["model_id"])
			if len(req["rows"].([]interface{})) == 2 {
				_, _ = w.Write([]byte(`{"predictions":[{"label":-1,"score":0.93},{"label":1,"score":0.12}]}`))
				return
			}
			_, _ = w.Write([]byte(`{"predictions":[]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	svc := NewRemoteModelService(srv.URL+"/", commonhttp.NewClient(time.Second))
	id, err := svc.Fit(context.Background(), [][]float64{{0, 0, 0, 0}}, LoadConfig().Params)
	require.NoError(t, err)
	assert.Equal(t, "forest-1", id)

	preds, err := svc.Predict(context.Background(), id, [][]float64{{1, 2, 3, 4}, {0, 0, 0, 0}})
	require.NoError(t, err)
	assert.Equal(t, []Prediction{{Label: -1, Score: 0.93}, {Label: 1, Score: 0.12}}, preds)

	_, err = svc.Predict(context.Background(), id, [][]float64{{1, 2, 3, 4}})
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeUpstream), "row count mismatch")
}
