package embedding

import "testing"

func TestParseResponseShapeVectors(t *testing.T) {
	vec, err := parseResponseShape([]byte(`{"vectors":[[1,2,3]]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 || vec[0] != 1 {
		t.Fatalf("got %v", vec)
	}
}

func TestParseResponseShapeVector(t *testing.T) {
	vec, err := parseResponseShape([]byte(`{"vector":[4,5]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 || vec[0] != 4 {
		t.Fatalf("got %v", vec)
	}
}

func TestParseResponseShapeDataEmbedding(t *testing.T) {
	vec, err := parseResponseShape([]byte(`{"data":[{"embedding":[6,7,8,9]}]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 4 || vec[0] != 6 {
		t.Fatalf("got %v", vec)
	}
}

func TestParseResponseShapeBareArray(t *testing.T) {
	vec, err := parseResponseShape([]byte(`[1,1,1]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("got %v", vec)
	}
}

func TestParseResponseShapePrecedenceVectorsWins(t *testing.T) {
	// A payload ambiguously satisfying both "vectors" and "vector" keys
	// picks vectors first, per the listed order in spec.md §4.5.
	vec, err := parseResponseShape([]byte(`{"vectors":[[1,2]],"vector":[9,9,9]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 2 {
		t.Fatalf("expected vectors shape to win, got %v", vec)
	}
}

func TestParseResponseShapeRejectsUnknown(t *testing.T) {
	if _, err := parseResponseShape([]byte(`{"foo":"bar"}`)); err == nil {
		t.Fatal("expected error for unrecognised shape")
	}
}

func TestUsesExternalTreatsInternalSentinelAsDisabled(t *testing.T) {
	c := &Client{externalEndpoint: "INTERNAL"}
	if c.usesExternal() {
		t.Fatal("expected literal INTERNAL endpoint to disable the external tier")
	}
	c2 := &Client{externalEndpoint: ""}
	if c2.usesExternal() {
		t.Fatal("expected empty endpoint to disable the external tier")
	}
	c3 := &Client{externalEndpoint: "https://embed.example.com"}
	if !c3.usesExternal() {
		t.Fatal("expected configured endpoint to enable the external tier")
	}
}

func TestHashTextIsDeterministic(t *testing.T) {
	a := hashText("NS-EN 1991-1-4")
	b := hashText("NS-EN 1991-1-4")
	if string(a) != string(b) {
		t.Fatal("expected identical text to hash identically")
	}
	c := hashText("other text")
	if string(a) == string(c) {
		t.Fatal("expected different text to hash differently")
	}
}
