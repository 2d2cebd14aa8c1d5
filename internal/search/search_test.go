package search

import (
	"strings"
	"testing"

	"github.com/kristoman/standardgpt/internal/types"
)

func TestFormatChunksEmptyHits(t *testing.T) {
	got := FormatChunks(Response{})
	if got != "Ingen relevante dokumenter funnet." {
		t.Fatalf("got %q", got)
	}
}

func TestFormatChunksTruncatesLongText(t *testing.T) {
	long := strings.Repeat("a", maxChunkChars+500)
	resp := Response{Hits: []types.Hit{{Score: 1.23, Reference: "NS-EN 1991-1-4", Page: "12", Text: long}}}
	got := FormatChunks(resp)
	if strings.Contains(got, strings.Repeat("a", maxChunkChars+1)) {
		t.Fatal("expected text to be truncated to maxChunkChars")
	}
	if !strings.Contains(got, "Referanse: NS-EN 1991-1-4") {
		t.Fatalf("missing reference line: %q", got)
	}
	if !strings.Contains(got, "Side: 12") {
		t.Fatalf("missing page line: %q", got)
	}
}

func TestFormatChunksStopsAtCumulativeCap(t *testing.T) {
	hits := make([]types.Hit, 0, 400)
	for i := 0; i < 400; i++ {
		hits = append(hits, types.Hit{Score: 1, Reference: "R", Page: "1", Text: strings.Repeat("x", maxChunkChars)})
	}
	got := FormatChunks(Response{Hits: hits})
	if len(got) > maxResponseBytes+maxChunkChars {
		t.Fatalf("expected cumulative cap to be respected, got %d bytes", len(got))
	}
	if !strings.Contains(got, "Dokument 1") {
		t.Fatal("expected at least the first document to be present")
	}
}

func TestFormatChunksSeparatesWithBlankLine(t *testing.T) {
	resp := Response{Hits: []types.Hit{
		{Score: 1, Reference: "A", Page: "1", Text: "første"},
		{Score: 2, Reference: "B", Page: "2", Text: "andre"},
	}}
	got := FormatChunks(resp)
	if !strings.Contains(got, "---\n\nDokument 2") {
		t.Fatalf("expected blank line between chunks, got %q", got)
	}
}
