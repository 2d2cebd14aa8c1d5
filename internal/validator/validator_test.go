package validator

import "testing"

func TestValidateAccepts(t *testing.T) {
	out, err := Validate("Hva sier NS-EN 1991-1-4 om vindlast?")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "Hva sier NS-EN 1991-1-4 om vindlast?" {
		t.Fatalf("unexpected normalisation: %q", out)
	}
}

func TestValidateIdempotent(t *testing.T) {
	first, err := Validate("  Hva   sier   loven  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := Validate(first)
	if err != nil {
		t.Fatalf("unexpected error on re-validation: %v", err)
	}
	if first != second {
		t.Fatalf("validation is not idempotent: %q != %q", first, second)
	}
}

func TestValidateRejectsShort(t *testing.T) {
	if _, err := Validate("ab"); err == nil {
		t.Fatal("expected error for too-short question")
	}
}

func TestValidateRejectsLong(t *testing.T) {
	long := make([]byte, 1001)
	for i := range long {
		long[i] = 'a'
	}
	if _, err := Validate(string(long)); err == nil {
		t.Fatal("expected error for too-long question")
	}
}

func TestValidateRejectsScriptTags(t *testing.T) {
	cases := []string{
		"<script>alert(1)</script>",
		"javascript:alert(1)",
		"hello onclick=alert(1)",
		"../../etc/passwd is a path",
		"__import__('os')",
	}
	for _, c := range cases {
		if _, err := Validate(c); err == nil {
			t.Fatalf("expected rejection for %q", c)
		}
	}
}

func TestValidateCollapsesWhitespace(t *testing.T) {
	out, err := Validate("hva   er\t\tdette  ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "hva er dette" {
		t.Fatalf("got %q", out)
	}
}

func TestStandardNumberAccepts(t *testing.T) {
	accepted := []string{
		"NS-EN 13141-8:2006",
		"EN 1991-1-4",
		"ISO/IEC 27001:2013",
		"NS 11001-1",
		"EN ISO 1461",
	}
	for _, s := range accepted {
		got := ValidateStandardNumbers([]string{s})
		if len(got) != 1 {
			t.Errorf("expected %q to be accepted, got %v", s, got)
		}
	}
}

func TestStandardNumberRejects(t *testing.T) {
	rejected := []string{"banana", "<script>", "NS", "12345"}
	for _, s := range rejected {
		got := ValidateStandardNumbers([]string{s})
		if len(got) != 0 {
			t.Errorf("expected %q to be rejected, got %v", s, got)
		}
	}
}

func TestStandardNumberDedupPreservesOrder(t *testing.T) {
	got := ValidateStandardNumbers([]string{"ns-en 1991-1-4", "NS-EN 1991-1-4", "EN 1991-1-4"})
	want := []string{"NS-EN 1991-1-4", "EN 1991-1-4"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestExtractStandardsFromText(t *testing.T) {
	text := "Se NS-EN 1991-1-4 og EN 1991-1-4 for mer informasjon."
	got := ExtractStandardsFromText(text)
	if len(got) != 2 {
		t.Fatalf("expected 2 standards, got %v", got)
	}
}
