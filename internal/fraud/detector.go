package fraud

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	apperrors "kra-assist/internal/common/errors"
)

const (
	ModelVersion     = "v2.1"
	DefaultModelPath = "models/fraud_detection/fraud_model.json"

	DefaultThreshold        = 0.85
	DefaultContamination    = 0.05
	DefaultNEstimators      = 100
	DefaultRandomState      = 42
	DefaultRetrainThreshold = 1000
)

// ErrModelNotTrained is returned by inference before Train or Load.
var ErrModelNotTrained = apperrors.NewModelNotTrainedError()

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

type Config struct {
	Threshold        float64
	Params           Params
	ModelPath        string
	RetrainThreshold int
}

func LoadConfig() *Config {
	return &Config{
		Threshold: DefaultThreshold,
		Params: Params{
			Contamination: DefaultContamination,
			NEstimators:   DefaultNEstimators,
			RandomState:   DefaultRandomState,
		},
		ModelPath:        DefaultModelPath,
		RetrainThreshold: DefaultRetrainThreshold,
	}
}

// Artifact is the persisted model: the fitted scaler plus the handle of the
// remotely hosted forest.
type Artifact struct {
	Version   string    `json:"version"`
	ModelID   string    `json:"model_id"`
	Scaler    Scaler    `json:"scaler"`
	Params    Params    `json:"params"`
	Samples   int       `json:"samples"`
	TrainedAt time.Time `json:"trained_at"`
}

// Assessment is the verdict for a single sample.
type Assessment struct {
	Score     float64 `json:"score"`
	Suspected bool    `json:"suspected"`
}

type Detector struct {
	config  *Config
	service ModelService
	logger  Logger

	mu       sync.RWMutex
	artifact *Artifact
}

func NewDetector(config *Config, service ModelService, log Logger) *Detector {
	if config.Threshold == 0 {
		config.Threshold = DefaultThreshold
	}
	if config.Params.Contamination == 0 {
		config.Params.Contamination = DefaultContamination
	}
	if config.Params.NEstimators == 0 {
		config.Params.NEstimators = DefaultNEstimators
	}
	if config.ModelPath == "" {
		config.ModelPath = DefaultModelPath
	}
	if config.RetrainThreshold == 0 {
		config.RetrainThreshold = DefaultRetrainThreshold
	}
	return &Detector{
		config:  config,
		service: service,
		logger:  log.With(map[string]interface{}{"component": "fraud"}),
	}
}

func (d *Detector) Trained() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.artifact != nil
}

// Train fits the scaler locally, fits the forest remotely on the scaled
// rows and persists the resulting artifact to the configured path.
func (d *Detector) Train(ctx context.Context, samples []Sample) (*Artifact, error) {
	scaler, err := FitScaler(samples)
	if err != nil {
		return nil, apperrors.NewValidationError(err.Error())
	}
	modelID, err := d.service.Fit(ctx, scaler.Transform(samples), d.config.Params)
	if err != nil {
		return nil, err
	}

	artifact := &Artifact{
		Version:   ModelVersion,
		ModelID:   modelID,
		Scaler:    scaler,
		Params:    d.config.Params,
		Samples:   len(samples),
		TrainedAt: time.Now().UTC(),
	}
	if err := save(d.config.ModelPath, artifact); err != nil {
		return nil, err
	}

	d.mu.Lock()
	d.artifact = artifact
	d.mu.Unlock()

	d.logger.Info("fraud model trained", map[string]interface{}{
		"modelId": modelID,
		"samples": len(samples),
		"path":    d.config.ModelPath,
	})
	return artifact, nil
}

// Load restores an artifact written by Train. An empty path uses the
// configured one.
func (d *Detector) Load(path string) error {
	if path == "" {
		path = d.config.ModelPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read fraud model: %w", err)
	}
	var artifact Artifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return fmt.Errorf("decode fraud model: %w", err)
	}
	if artifact.Version != ModelVersion {
		return fmt.Errorf("fraud model version %q, want %q", artifact.Version, ModelVersion)
	}
	if artifact.ModelID == "" {
		return fmt.Errorf("fraud model %s has no model id", path)
	}

	d.mu.Lock()
	d.artifact = &artifact
	d.mu.Unlock()
	return nil
}

// Predict labels each sample 1 when the forest marks it an outlier and 0
// otherwise.
func (d *Detector) Predict(ctx context.Context, samples []Sample) ([]int, error) {
	preds, err := d.predict(ctx, samples)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(preds))
	for i, p := range preds {
		if p.Label == -1 {
			labels[i] = 1
		}
	}
	return labels, nil
}

// Score rates one sample against the threshold.
func (d *Detector) Score(ctx context.Context, sample Sample) (Assessment, error) {
	preds, err := d.predict(ctx, []Sample{sample})
	if err != nil {
		return Assessment{}, err
	}
	score := preds[0].Score
	return Assessment{Score: score, Suspected: score >= d.config.Threshold}, nil
}

// ShouldRetrain reports whether enough analyst feedback has accumulated.
func (d *Detector) ShouldRetrain(feedbackCount int) bool {
	return feedbackCount > d.config.RetrainThreshold
}

func (d *Detector) predict(ctx context.Context, samples []Sample) ([]Prediction, error) {
	d.mu.RLock()
	artifact := d.artifact
	d.mu.RUnlock()
	if artifact == nil {
		return nil, ErrModelNotTrained
	}
	if len(samples) == 0 {
		return nil, nil
	}
	return d.service.Predict(ctx, artifact.ModelID, artifact.Scaler.Transform(samples))
}

func save(path string, artifact *Artifact) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	data, err := json.MarshalIndent(artifact, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write fraud model: %w", err)
	}
	return os.Rename(tmp, path)
}
