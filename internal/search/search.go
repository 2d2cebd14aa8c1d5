// Package search executes QueryObjects against a document index and
// formats hits into the context blob the answer prompt consumes.
// Grounded on original_source/src/elasticsearch_client.py (query
// submission, hit formatting) and spec.md §4.6/§6.2.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	elasticsearch "github.com/elastic/go-elasticsearch/v8"

	"github.com/kristoman/standardgpt/internal/logger"
	"github.com/kristoman/standardgpt/internal/types"
)

const (
	maxChunkChars   = 1800
	maxResponseBytes = 200 * 1024
)

// Response is the subset of a search engine's result the pipeline needs.
type Response struct {
	Hits []types.Hit
}

// Backend executes a QueryObject against one search engine. Client (the
// Elasticsearch/v8-backed implementation) and QdrantClient both satisfy
// this, selected at startup by VECTOR_DATABASE_DRIVER (SPEC_FULL §4.6).
type Backend interface {
	Search(ctx context.Context, qo types.QueryObject) Response
}

// Client searches an index and formats the resulting hits.
type Client struct {
	es    *elasticsearch.Client
	index string
}

// New constructs a Client against the given Elasticsearch addresses.
func New(addresses []string, apiKey, index string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addresses,
		APIKey:    apiKey,
	})
	if err != nil {
		return nil, fmt.Errorf("search: failed to construct elasticsearch client: %w", err)
	}
	return &Client{es: es, index: index}, nil
}

// Search executes qo against the configured index. Per spec.md §4.6, a
// transport error or a non-success status returns an empty Response rather
// than failing the pipeline — a zero-hit answer is a valid outcome.
func (c *Client) Search(ctx context.Context, qo types.QueryObject) Response {
	if err := qo.Validate(); err != nil {
		logger.Warnf(ctx, "search: invalid query object: %v", err)
		return Response{}
	}

	body, err := json.Marshal(map[string]interface{}{
		"query":   qo.Query,
		"size":    qo.Size,
		"_source": qo.Source,
	})
	if err != nil {
		logger.Errorf(ctx, "search: failed to marshal query object: %v", err)
		return Response{}
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		logger.Warnf(ctx, "search: transport error: %v", err)
		return Response{}
	}
	defer res.Body.Close()

	if res.IsError() {
		logger.Warnf(ctx, "search: non-success status: %s", res.Status())
		return Response{}
	}

	var parsed struct {
		Hits struct {
			Hits []struct {
				Score  float64 `json:"_score"`
				Source struct {
					Text      string `json:"text"`
					Reference string `json:"reference"`
					Page      string `json:"page"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		logger.Warnf(ctx, "search: failed to decode response: %v", err)
		return Response{}
	}

	hits := make([]types.Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hits = append(hits, types.Hit{
			Score:     h.Score,
			Reference: h.Source.Reference,
			Page:      h.Source.Page,
			Text:      h.Source.Text,
		})
	}
	return Response{Hits: hits}
}

// FormatChunks renders hits into the context blob the answer prompt
// consumes, per spec.md §4.6: per-hit template, 1800-char per-hit
// truncation, stop once the cumulative size exceeds 200KB, and the literal
// "no results" sentence when there are no hits at all.
func FormatChunks(resp Response) string {
	if len(resp.Hits) == 0 {
		return "Ingen relevante dokumenter funnet."
	}

	var sb strings.Builder
	for i, hit := range resp.Hits {
		text := hit.Text
		if r := []rune(text); len(r) > maxChunkChars {
			text = string(r[:maxChunkChars]) + "..."
		}

		chunk := fmt.Sprintf(
			"Dokument %d (score: %.2f):\nReferanse: %s\nSide: %s\nInnhold: %s\n---",
			i+1, hit.Score, hit.Reference, hit.Page, text,
		)

		if sb.Len() > 0 && sb.Len()+len(chunk)+2 > maxResponseBytes {
			break
		}
		if sb.Len() > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(chunk)
	}
	return sb.String()
}
