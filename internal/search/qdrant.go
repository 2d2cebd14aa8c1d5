package search

import (
	"context"
	"fmt"
	"strings"

	"github.com/qdrant/go-client/qdrant"

	"github.com/kristoman/standardgpt/internal/logger"
	"github.com/kristoman/standardgpt/internal/types"
)

// QdrantClient is the secondary search backend selected by
// VECTOR_DATABASE_DRIVER=qdrant. It projects the same three fields
// (text/reference/page) the teacher's QdrantVectorEmbedding payload
// carries, grounded on
// internal/application/repository/retriever/qdrant/structs.go.
type QdrantClient struct {
	conn       *qdrant.Client
	collection string
}

// NewQdrantClient dials a Qdrant instance and targets the given collection.
func NewQdrantClient(host string, port int, collection string) (*QdrantClient, error) {
	conn, err := qdrant.NewClient(&qdrant.Config{Host: host, Port: port})
	if err != nil {
		return nil, fmt.Errorf("search: failed to construct qdrant client: %w", err)
	}
	return &QdrantClient{conn: conn, collection: collection}, nil
}

// Search executes qo against the configured collection. qo.Query carries
// the same ES-shaped query querybuilder builds for the Elasticsearch
// backend (bool/wildcard/multi_match, optionally script_score-wrapped
// with an embedding); translateQuery turns that into a qdrant vector plus
// payload filter so both backends accept one QueryObject shape. Routes
// with no embedding (without, personal without a question embedding) fall
// back to a filter-only query, which qdrant resolves by payload match
// rather than vector distance.
func (c *QdrantClient) Search(ctx context.Context, qo types.QueryObject) Response {
	if err := qo.Validate(); err != nil {
		logger.Warnf(ctx, "search: invalid query object: %v", err)
		return Response{}
	}

	vector, filter, err := translateQuery(qo.Query)
	if err != nil {
		logger.Warnf(ctx, "search: failed to translate query object for qdrant: %v", err)
		return Response{}
	}

	limit := uint64(qo.Size)
	req := &qdrant.QueryPoints{
		CollectionName: c.collection,
		Filter:         filter,
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(vector) > 0 {
		req.Query = qdrant.NewQuery(vector...)
	}

	points, err := c.conn.Query(ctx, req)
	if err != nil {
		logger.Warnf(ctx, "search: qdrant transport error: %v", err)
		return Response{}
	}

	hits := make([]types.Hit, 0, len(points))
	for _, p := range points {
		payload := p.GetPayload()
		hits = append(hits, types.Hit{
			Score:     float64(p.GetScore()),
			Reference: stringField(payload, "reference"),
			Page:      stringField(payload, "page"),
			Text:      stringField(payload, "text"),
		})
	}
	return Response{Hits: hits}
}

func stringField(payload map[string]*qdrant.Value, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	return v.GetStringValue()
}

// translateQuery turns a querybuilder-produced query object into the
// embedding vector (nil for text-only routes) and qdrant payload filter
// that express the same intent. It understands exactly the shapes
// querybuilder.go emits: an optional script_score wrapper carrying
// params.query_vector, and bool.should/bool.filter/multi_match inner
// queries built from wildcard clauses.
func translateQuery(query interface{}) (types.Embedding, *qdrant.Filter, error) {
	m, ok := query.(map[string]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("qdrant: query object has unexpected shape %T", query)
	}

	inner := m
	var vector types.Embedding
	if ss, ok := m["script_score"].(map[string]interface{}); ok {
		if script, ok := ss["script"].(map[string]interface{}); ok {
			if params, ok := script["params"].(map[string]interface{}); ok {
				if v, ok := params["query_vector"].([]float32); ok {
					vector = types.Embedding(v)
				}
			}
		}
		q, ok := ss["query"].(map[string]interface{})
		if !ok {
			return nil, nil, fmt.Errorf("qdrant: script_score clause missing its inner query")
		}
		inner = q
	}

	filter, err := translateInner(inner)
	if err != nil {
		return nil, nil, err
	}
	return vector, filter, nil
}

func translateInner(inner map[string]interface{}) (*qdrant.Filter, error) {
	if boolClause, ok := inner["bool"].(map[string]interface{}); ok {
		return translateBool(boolClause)
	}
	if mm, ok := inner["multi_match"].(map[string]interface{}); ok {
		return translateMultiMatch(mm)
	}
	return nil, fmt.Errorf("qdrant: unsupported inner query shape %v", inner)
}

// translateBool handles the two bool shapes querybuilder produces: a
// should-list of wildcard clauses (Filter/Memory routes, OR semantics)
// and a single filter clause (Personal route, AND semantics).
func translateBool(boolClause map[string]interface{}) (*qdrant.Filter, error) {
	filter := &qdrant.Filter{}

	if should, ok := boolClause["should"].([]interface{}); ok {
		for _, c := range should {
			clause, ok := c.(map[string]interface{})
			if !ok {
				continue
			}
			cond, err := translateWildcardClause(clause)
			if err != nil {
				return nil, err
			}
			filter.Should = append(filter.Should, cond)
		}
	}

	if f, ok := boolClause["filter"].(map[string]interface{}); ok {
		cond, err := translateWildcardClause(f)
		if err != nil {
			return nil, err
		}
		filter.Must = append(filter.Must, cond)
	}

	return filter, nil
}

func translateWildcardClause(clause map[string]interface{}) (*qdrant.Condition, error) {
	wc, ok := clause["wildcard"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("qdrant: expected a wildcard clause, got %v", clause)
	}
	for field, spec := range wc {
		specMap, ok := spec.(map[string]interface{})
		if !ok {
			continue
		}
		value, _ := specMap["value"].(string)
		return qdrant.NewMatchText(payloadField(field), strings.Trim(value, "*")), nil
	}
	return nil, fmt.Errorf("qdrant: wildcard clause missing a field")
}

// translateMultiMatch turns the Textual route's multi_match clause into
// an OR of per-field text matches, mirroring multi_match's default
// best-fields semantics closely enough for qdrant's payload index.
func translateMultiMatch(mm map[string]interface{}) (*qdrant.Filter, error) {
	text, _ := mm["query"].(string)
	fields, _ := mm["fields"].([]string)
	if text == "" || len(fields) == 0 {
		return nil, fmt.Errorf("qdrant: multi_match clause missing query text or fields")
	}

	filter := &qdrant.Filter{}
	for _, f := range fields {
		filter.Should = append(filter.Should, qdrant.NewMatchText(payloadField(f), text))
	}
	return filter, nil
}

// payloadField strips the Elasticsearch keyword-subfield and boost-weight
// suffixes querybuilder's field names carry ("reference.keyword",
// "text^2") down to the bare payload key the qdrant collection stores.
func payloadField(field string) string {
	field = strings.TrimSuffix(field, ".keyword")
	if i := strings.IndexByte(field, '^'); i >= 0 {
		field = field[:i]
	}
	return field
}
