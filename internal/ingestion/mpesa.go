package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	apperrors "kra-assist/internal/common/errors"
	commonhttp "kra-assist/internal/common/http"
)

// MPesaClient reads paybill transactions from the M-Pesa statement API.
type MPesaClient struct {
	baseURL string
	http    *commonhttp.Client
}

func NewMPesaClient(baseURL, apiKey string, timeout time.Duration) *MPesaClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &MPesaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    commonhttp.NewClient(timeout).WithHeader("Authorization", "Bearer "+apiKey),
	}
}

func (c *MPesaClient) ListTransactions(ctx context.Context, paybill string) ([]json.RawMessage, error) {
	endpoint := c.baseURL + "/transactions?" + url.Values{"paybill": {paybill}}.Encode()
	body, _, err := c.http.GetJSON(ctx, endpoint)
	if err != nil {
		return nil, apperrors.NewUpstreamError("mpesa", err)
	}

	root := gjson.ParseBytes(body)
	if !root.IsArray() {
		root = root.Get("transactions")
	}
	if !root.IsArray() {
		return nil, apperrors.NewUpstreamError("mpesa", fmt.Errorf("expected a list of transactions"))
	}
	items := root.Array()
	out := make([]json.RawMessage, 0, len(items))
	for _, item := range items {
		out = append(out, json.RawMessage(item.Raw))
	}
	return out, nil
}
