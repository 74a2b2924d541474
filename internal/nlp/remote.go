package nlp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	commonhttp "kra-assist/internal/common/http"
	"kra-assist/internal/models"
)

var (
	ErrModelServiceFailed  = errors.New("MODEL_SERVICE_FAILED")
	ErrModelServiceTimeout = errors.New("MODEL_SERVICE_TIMEOUT")
	ErrMalformedPrediction = errors.New("MALFORMED_PREDICTION")
)

// RemoteModel calls an inference endpoint that accepts {"text": ...} and
// answers in the pipeline-style shapes used by the model services:
// a prediction object or a list of them.
type RemoteModel struct {
	url    string
	client *commonhttp.Client
}

func NewRemoteModel(url string, client *commonhttp.Client) *RemoteModel {
	return &RemoteModel{url: url, client: client}
}

func (m *RemoteModel) predict(ctx context.Context, text string) (gjson.Result, error) {
	body, _, err := m.client.PostJSON(ctx, m.url, map[string]string{"text": text})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			return gjson.Result{}, fmt.Errorf("%w: %v", ErrModelServiceTimeout, err)
		}
		return gjson.Result{}, fmt.Errorf("%w: %v", ErrModelServiceFailed, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("%w: invalid json", ErrMalformedPrediction)
	}
	return gjson.ParseBytes(body), nil
}

// firstPrediction unwraps [[{..}]] and [{..}] to the top-scored object.
func firstPrediction(res gjson.Result) gjson.Result {
	for res.IsArray() {
		arr := res.Array()
		if len(arr) == 0 {
			return gjson.Result{}
		}
		res = arr[0]
	}
	return res
}

type RemoteIntentClassifier struct{ *RemoteModel }

func NewRemoteIntentClassifier(m *RemoteModel) *RemoteIntentClassifier {
	return &RemoteIntentClassifier{m}
}

func (c *RemoteIntentClassifier) Classify(ctx context.Context, text string) (Intent, error) {
	res, err := c.predict(ctx, text)
	if err != nil {
		return Intent{}, err
	}
	pred := firstPrediction(res)
	label := pred.Get("label")
	score := pred.Get("score")
	if !score.Exists() {
		score = pred.Get("confidence")
	}
	if !label.Exists() || !score.Exists() {
		return Intent{}, fmt.Errorf("%w: missing label or score", ErrMalformedPrediction)
	}
	conf := score.Float()
	if conf < 0 || conf > 1 {
		return Intent{}, fmt.Errorf("%w: confidence %v out of range", ErrMalformedPrediction, conf)
	}
	return Intent{Label: label.String(), Confidence: conf}, nil
}

type RemoteEntityExtractor struct{ *RemoteModel }

func NewRemoteEntityExtractor(m *RemoteModel) *RemoteEntityExtractor {
	return &RemoteEntityExtractor{m}
}

// Extract reads token-classification output; unknown groups are kept here and
// dropped later by models.NewEntityBag.
func (e *RemoteEntityExtractor) Extract(ctx context.Context, text string) ([]models.RawEntity, error) {
	res, err := e.predict(ctx, text)
	if err != nil {
		return nil, err
	}
	if res.Get("entities").Exists() {
		res = res.Get("entities")
	}
	if !res.IsArray() {
		return nil, fmt.Errorf("%w: expected entity list", ErrMalformedPrediction)
	}

	var out []models.RawEntity
	res.ForEach(func(_, item gjson.Result) bool {
		kind := item.Get("entity_group").String()
		if kind == "" {
			kind = item.Get("entity").String()
		}
		kind = strings.TrimPrefix(strings.TrimPrefix(kind, "B-"), "I-")
		value := strings.TrimSpace(item.Get("word").String())
		if value == "" {
			value = item.Get("value").String()
		}
		out = append(out, models.RawEntity{Kind: models.EntityKind(strings.ToUpper(kind)), Value: value})
		return true
	})
	return out, nil
}

type RemoteSentimentAnalyzer struct{ *RemoteModel }

func NewRemoteSentimentAnalyzer(m *RemoteModel) *RemoteSentimentAnalyzer {
	return &RemoteSentimentAnalyzer{m}
}

func (s *RemoteSentimentAnalyzer) Analyze(ctx context.Context, text string) (string, error) {
	res, err := s.predict(ctx, text)
	if err != nil {
		return "", err
	}
	label := firstPrediction(res).Get("label")
	if !label.Exists() {
		return "", fmt.Errorf("%w: missing sentiment label", ErrMalformedPrediction)
	}
	return strings.ToLower(label.String()), nil
}
