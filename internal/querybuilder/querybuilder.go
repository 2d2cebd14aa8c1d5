// Package querybuilder constructs the four route-specific QueryObjects the
// search client executes, grounded directly on
// original_source/src/qo_filter.py, qo_textual.py, qo_personal.py and
// query_builders.py.
package querybuilder

import (
	"regexp"
	"sort"
	"strings"

	"github.com/kristoman/standardgpt/internal/types"
)

const (
	filterSize   = 40
	textualSize  = 80
	personalSize = 400
	memorySize   = 40
)

var projectedSource = []string{"text", "reference", "page"}

var (
	yearSuffixPattern      = regexp.MustCompile(`(?::[0-9]{4}|\+[A-Z0-9]+)$`)
	prefixNumberPattern    = regexp.MustCompile(`^([A-Z/\- ]+?)[ \-]?([0-9][0-9\-]*)$`)
)

// GenerateVariants produces the robust wildcard-matching variants of
// spec.md §4.7 for one standard number: strip the year/variant suffix,
// interchange NS-/NS /NS-EN/EN/NS EN prefixes, interchange hyphen and
// space between prefix and number, and add the bare numeric fragment.
// The input itself is always included. Output is deduplicated and sorted
// for deterministic wildcard-clause ordering.
func GenerateVariants(standard string) []string {
	std := strings.ToUpper(strings.TrimSpace(standard))
	if std == "" {
		return nil
	}

	variants := map[string]bool{std: true}

	stripped := yearSuffixPattern.ReplaceAllString(std, "")
	stripped = strings.TrimSpace(stripped)
	variants[stripped] = true

	m := prefixNumberPattern.FindStringSubmatch(stripped)
	if m != nil {
		prefix := strings.TrimSpace(m[1])
		number := m[2]

		variants[prefix+" "+number] = true
		variants[prefix+"-"+number] = true
		variants[strings.ReplaceAll(prefix, " ", "-")+" "+number] = true
		variants[strings.ReplaceAll(prefix, "-", " ")+" "+number] = true
		variants[number] = true

		switch {
		case strings.HasPrefix(prefix, "NS-EN"), strings.HasPrefix(prefix, "NS EN"):
			withoutNS := strings.TrimPrefix(strings.TrimPrefix(prefix, "NS-EN"), "NS EN")
			variants["EN"+withoutNS+" "+number] = true
			variants["NS EN"+withoutNS+" "+number] = true
			variants["NS-EN"+withoutNS+" "+number] = true
		case strings.HasPrefix(prefix, "NS"):
			withoutNS := strings.TrimSpace(strings.TrimPrefix(strings.TrimPrefix(prefix, "NS-"), "NS "))
			if withoutNS != "" {
				variants[withoutNS+" "+number] = true
				variants[withoutNS+"-"+number] = true
			}
		default:
			variants["NS-"+prefix+" "+number] = true
			variants["NS "+prefix+" "+number] = true
		}
	}

	out := make([]string, 0, len(variants))
	for v := range variants {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	sort.Strings(out)
	return out
}

func wildcardClause(field, value string) map[string]interface{} {
	return map[string]interface{}{
		"wildcard": map[string]interface{}{
			field: map[string]interface{}{
				"value":            "*" + value + "*",
				"case_insensitive": true,
			},
		},
	}
}

func scriptScore(inner map[string]interface{}, vector types.Embedding) map[string]interface{} {
	if vector.IsZero() {
		return inner
	}
	return map[string]interface{}{
		"script_score": map[string]interface{}{
			"query": inner,
			"script": map[string]interface{}{
				"source": "cosineSimilarity(params.query_vector, 'vector') + 1.0",
				"params": map[string]interface{}{
					"query_vector": []float32(vector),
				},
			},
		},
	}
}

func wildcardShouldClauses(standards []string) []map[string]interface{} {
	seen := make(map[string]bool)
	clauses := make([]map[string]interface{}, 0, len(standards)*4)
	for _, s := range standards {
		for _, variant := range GenerateVariants(s) {
			if seen[variant] {
				continue
			}
			seen[variant] = true
			clauses = append(clauses, wildcardClause("reference.keyword", variant))
		}
	}
	return clauses
}

// BuildFilter builds the Filter-route (`including`) query object: a
// bool.should of wildcard clauses over the standard numbers and their
// variants, wrapped in script_score when vector is non-zero.
func BuildFilter(standards []string, vector types.Embedding) types.QueryObject {
	inner := map[string]interface{}{
		"bool": map[string]interface{}{
			"should":               toAnySlice(wildcardShouldClauses(standards)),
			"minimum_should_match": 1,
		},
	}
	return types.QueryObject{
		Size:   filterSize,
		Query:  scriptScore(inner, vector),
		Source: projectedSource,
	}
}

// BuildTextual builds the Textual-route (`without`) query object: a
// multi_match over text^2 and reference.
func BuildTextual(text string, vector types.Embedding) types.QueryObject {
	inner := map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query":  text,
			"fields": []string{"text^2", "reference"},
		},
	}
	return types.QueryObject{
		Size:   textualSize,
		Query:  scriptScore(inner, vector),
		Source: projectedSource,
	}
}

// BuildPersonal builds the Personal-route query object: a bool.filter
// wildcard clause matching "*Personalhåndbok*" on reference.keyword.
func BuildPersonal(vector types.Embedding) types.QueryObject {
	inner := map[string]interface{}{
		"bool": map[string]interface{}{
			"filter": wildcardClause("reference.keyword", "Personalhåndbok"),
		},
	}
	return types.QueryObject{
		Size:   personalSize,
		Query:  scriptScore(inner, vector),
		Source: projectedSource,
	}
}

// BuildMemory builds the Memory-route query object: same shape as Filter,
// but clauses are built from ConversationMemory-extracted terms rather
// than question-extracted standards.
func BuildMemory(memoryTerms []string, vector types.Embedding) types.QueryObject {
	inner := map[string]interface{}{
		"bool": map[string]interface{}{
			"should":               toAnySlice(wildcardShouldClauses(memoryTerms)),
			"minimum_should_match": 1,
		},
	}
	return types.QueryObject{
		Size:   memorySize,
		Query:  scriptScore(inner, vector),
		Source: projectedSource,
	}
}

func toAnySlice(clauses []map[string]interface{}) []interface{} {
	out := make([]interface{}, len(clauses))
	for i, c := range clauses {
		out[i] = c
	}
	return out
}
