package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"
	"github.com/tidwall/gjson"
)

// ElasticsearchSearcher runs a match query on the content field; ranking is
// the index's BM25 similarity.
type ElasticsearchSearcher struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSearcher(client *elasticsearch.Client, index string) *ElasticsearchSearcher {
	return &ElasticsearchSearcher{client: client, index: index}
}

func (s *ElasticsearchSearcher) Search(ctx context.Context, query string, limit int) ([]Document, error) {
	if limit <= 0 {
		limit = 1
	}
	body := map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  query,
				"fields": []string{"content", "title^2"},
			},
		},
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode search: %w", err)
	}

	req := esapi.SearchRequest{
		Index: []string{s.index},
		Body:  bytes.NewReader(payload),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return nil, fmt.Errorf("elasticsearch search: %w", err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("read search response: %w", err)
	}
	if res.IsError() {
		return nil, fmt.Errorf("elasticsearch search error: %s: %s", res.Status(), gjson.GetBytes(data, "error.reason").String())
	}

	hits := gjson.GetBytes(data, "hits.hits").Array()
	docs := make([]Document, 0, len(hits))
	for _, hit := range hits {
		docs = append(docs, Document{
			ID:      hit.Get("_id").String(),
			Title:   hit.Get("_source.title").String(),
			Content: hit.Get("_source.content").String(),
			Score:   hit.Get("_score").Float(),
		})
	}
	return docs, nil
}
