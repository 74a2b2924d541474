package kra

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/tidwall/gjson"

	"kra-assist/internal/common/auth"
	apperrors "kra-assist/internal/common/errors"
	commonhttp "kra-assist/internal/common/http"
	"kra-assist/internal/models"
)

const (
	DefaultBaseURL     = "https://api.kra.go.ke/v1"
	DefaultTokenURL    = "https://api.kra.go.ke/oauth/token"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxAttempts = 3
	defaultBackoff     = time.Second
	maxBackoff         = 10 * time.Second
)

var (
	ErrMissingTransactionID = errors.New("MISSING_TRANSACTION_ID")
	ErrMissingPaymentStatus = errors.New("MISSING_PAYMENT_STATUS")
	ErrTaxpayerNotFound     = errors.New("TAXPAYER_NOT_FOUND")
)

type Logger interface {
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, fields map[string]interface{})
	With(fields map[string]interface{}) Logger
}

// Recorder receives one call per HTTP attempt. Optional.
type Recorder interface {
	RecordKRARequest(operation, status string, duration time.Duration)
}

type Config struct {
	BaseURL      string
	TokenURL     string
	ClientID     string
	ClientSecret string
	// Timeout bounds each attempt, not the whole call.
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

func (c *Config) applyDefaults() {
	if c.BaseURL == "" {
		c.BaseURL = DefaultBaseURL
	}
	c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	if c.TokenURL == "" {
		c.TokenURL = DefaultTokenURL
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = DefaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultBackoff
	}
}

type Client struct {
	config   Config
	http     *commonhttp.Client
	audit    AuditLog
	recorder Recorder
	logger   Logger
	now      func() time.Time
}

// NewClient authenticates with the OAuth2 client credentials grant. base may
// be nil.
func NewClient(ctx context.Context, config Config, base *http.Client, audit AuditLog, recorder Recorder, log Logger) *Client {
	config.applyDefaults()
	cc := auth.ClientCredentials{
		ClientID:     config.ClientID,
		ClientSecret: config.ClientSecret,
		TokenURL:     config.TokenURL,
	}
	return newClient(config, cc.HTTPClient(ctx, base), audit, recorder, log)
}

func newClient(config Config, hc *http.Client, audit AuditLog, recorder Recorder, log Logger) *Client {
	config.applyDefaults()
	if audit == nil {
		audit = NewMemoryAuditLog()
	}
	return &Client{
		config:   config,
		http:     commonhttp.NewClientFrom(hc).WithHeader("Content-Type", "application/json"),
		audit:    audit,
		recorder: recorder,
		logger:   log.With(map[string]interface{}{"component": "kra_client"}),
		now:      time.Now,
	}
}

// SubmitAssessment posts a. Transport failures, 5xx and 429 are retried with
// exponential backoff up to MaxAttempts; any other status fails at once.
// Every attempt is written to the audit log.
func (c *Client) SubmitAssessment(ctx context.Context, a models.Assessment) (string, error) {
	var (
		txID    string
		attempt int
	)
	endpoint := c.config.BaseURL + "/assessments"

	err := retry.Do(
		func() error {
			attempt++
			actx, cancel := context.WithTimeout(ctx, c.config.Timeout)
			defer cancel()

			start := time.Now()
			body, _, err := c.http.PostJSON(actx, endpoint, a, http.StatusOK, http.StatusCreated)
			c.record(OperationAssessmentSubmit, err, time.Since(start))
			if err == nil {
				txID = gjson.GetBytes(body, "transaction_id").String()
				if txID == "" {
					err = ErrMissingTransactionID
				}
			}
			c.writeAudit(ctx, a.PIN, attempt, txID, err)
			if err != nil && !retryable(ctx, err) {
				return retry.Unrecoverable(err)
			}
			return err
		},
		retry.Context(ctx),
		retry.Attempts(uint(c.config.MaxAttempts)),
		retry.Delay(c.config.InitialBackoff),
		retry.MaxDelay(maxBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			c.logger.Warn("assessment submission failed, retrying", map[string]interface{}{
				"attempt": n + 1,
				"pin":     a.PIN,
				"error":   err.Error(),
			})
		}),
	)
	if err != nil {
		c.logger.Error("assessment submission failed", map[string]interface{}{
			"attempts": attempt,
			"pin":      a.PIN,
			"error":    err.Error(),
		})
		return "", apperrors.NewAssessmentSubmitError(err).WithMetadata(map[string]interface{}{
			"attempts": attempt,
		})
	}

	c.logger.Info("assessment submitted", map[string]interface{}{
		"pin":           a.PIN,
		"transactionId": txID,
		"attempts":      attempt,
	})
	return txID, nil
}

// GetPaymentStatus is not retried.
func (c *Client) GetPaymentStatus(ctx context.Context, transactionID string) (string, error) {
	body, err := c.get(ctx, "payment_status", "/transactions/"+url.PathEscape(transactionID))
	if err != nil {
		return "", err
	}
	status := gjson.GetBytes(body, "payment_status")
	if !status.Exists() {
		return "", apperrors.NewUpstreamError("kra", ErrMissingPaymentStatus)
	}
	return status.String(), nil
}

func (c *Client) GetTaxpayer(ctx context.Context, pin string) (*models.Taxpayer, error) {
	body, err := c.get(ctx, "taxpayer_lookup", "/taxpayers/"+url.PathEscape(pin))
	if err != nil {
		var se *commonhttp.StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, apperrors.NewUpstreamError("kra", fmt.Errorf("%w: %s", ErrTaxpayerNotFound, pin))
		}
		return nil, err
	}
	var tp models.Taxpayer
	if err := json.Unmarshal(body, &tp); err != nil {
		return nil, apperrors.NewUpstreamError("kra", fmt.Errorf("decode taxpayer: %w", err))
	}
	if tp.PIN == "" {
		tp.PIN = pin
	}
	return &tp, nil
}

// ListTaxpayers returns raw taxpayer records registered between start and
// end. The body may be a bare array or wrapped in "taxpayers".
func (c *Client) ListTaxpayers(ctx context.Context, start, end time.Time) ([]json.RawMessage, error) {
	q := url.Values{}
	q.Set("start_date", start.Format("2006-01-02"))
	q.Set("end_date", end.Format("2006-01-02"))

	body, err := c.get(ctx, "taxpayer_list", "/taxpayers?"+q.Encode())
	if err != nil {
		return nil, err
	}
	return rawRecords(body, "taxpayers")
}

func (c *Client) get(ctx context.Context, operation, path string) ([]byte, error) {
	actx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	body, _, err := c.http.GetJSON(actx, c.config.BaseURL+path)
	c.record(operation, err, time.Since(start))
	if err != nil {
		return nil, apperrors.NewUpstreamError("kra", err)
	}
	return body, nil
}

func (c *Client) record(operation string, err error, d time.Duration) {
	if c.recorder == nil {
		return
	}
	status := StatusSuccess
	if err != nil {
		status = StatusError
	}
	c.recorder.RecordKRARequest(operation, status, d)
}

func (c *Client) writeAudit(ctx context.Context, pin string, attempt int, txID string, err error) {
	entry := AuditEntry{
		Timestamp: c.now().UTC(),
		Operation: OperationAssessmentSubmit,
		Status:    StatusSuccess,
		PIN:       pin,
		Attempt:   attempt,
	}
	if err != nil {
		entry.Status = StatusError
		entry.Error = err.Error()
	} else {
		entry.TransactionID = txID
	}
	if aerr := c.audit.Record(context.WithoutCancel(ctx), entry); aerr != nil {
		c.logger.Error("failed to write audit entry", map[string]interface{}{
			"error": aerr.Error(),
		})
	}
}

// retryable reports whether another attempt could succeed. The caller's own
// cancellation is final.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}
	var se *commonhttp.StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	return !errors.Is(err, ErrMissingTransactionID)
}

// rawRecords accepts a JSON array or an object holding one under key.
func rawRecords(body []byte, key string) ([]json.RawMessage, error) {
	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		root = root.Get(key)
	}
	if !root.IsArray() {
		return nil, apperrors.NewUpstreamError("kra", fmt.Errorf("expected a list of %s", key))
	}
	items := root.Array()
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item.Raw))
	}
	return out, nil
}
