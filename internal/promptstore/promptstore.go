// Package promptstore holds the six named prompt templates the pipeline
// renders before each LLM call, plus a catalogue of the variables each
// template may reference — grounded on the teacher's
// internal/types/placeholder.go PromptPlaceholder/PlaceholdersByField
// pattern, adapted from a UI-facing catalogue to a render-time contract.
package promptstore

import (
	"fmt"
	"regexp"
	"strings"
)

// Name identifies one of the six fixed templates.
type Name string

const (
	OptimizeSemantic   Name = "optimizeSemantic"
	Analysis           Name = "analysis"
	ExtractStandard    Name = "extractStandard"
	OptimizeTextual    Name = "optimizeTextual"
	Answer             Name = "answer"
	ExtractFromMemory  Name = "extractFromMemory"
)

// Placeholder names recognised across templates.
const (
	VarLastUtterance      = "last_utterance"
	VarChunks             = "chunks"
	VarConversationMemory = "conversation_memory"
)

var placeholderPattern = regexp.MustCompile(`\{(\w+)\}`)

// template pairs a raw template body with the set of variables it is
// allowed (and, for the required ones, obligated) to reference.
type template struct {
	body     string
	required map[string]bool
	optional map[string]bool
}

// Store renders named templates, matching the teacher's preference for
// typed validation (spec.md §4.2) over Python's blind str.format.
type Store struct {
	templates map[Name]template
}

// New constructs a Store with the six fixed templates. Unknown template
// names are a fatal configuration error at startup, per spec.md §4.2 — here
// that means the caller must build the Store via New, which fixes the set.
func New() *Store {
	return &Store{
		templates: map[Name]template{
			OptimizeSemantic: {
				body:     "Optimaliser følgende spørsmål for semantisk søk i norske standarder: {last_utterance}",
				required: set(VarLastUtterance),
			},
			Analysis: {
				body: "Klassifiser spørsmålet i nøyaktig én kategori: including, without, personal, memory.\n" +
					"Spørsmål: {last_utterance}\nSamtalehistorikk: {conversation_memory}",
				required: set(VarLastUtterance, VarConversationMemory),
			},
			ExtractStandard: {
				body:     "Hent ut alle standardnummer nevnt i spørsmålet, kommaseparert: {last_utterance}",
				required: set(VarLastUtterance),
			},
			OptimizeTextual: {
				body:     "Trekk ut sentrale søkeord fra spørsmålet for tekstsøk: {last_utterance}",
				required: set(VarLastUtterance),
			},
			Answer: {
				body: "Svar på norsk, basert kun på konteksten under.\n\nKontekst:\n{chunks}\n\nSpørsmål: {last_utterance}",
				required: set(VarChunks, VarLastUtterance),
				optional: set(VarConversationMemory),
			},
			ExtractFromMemory: {
				body:     "Hent ut standardnummer eller søkeord fra samtalehistorikken som er relevante for oppfølgingsspørsmålet.\nHistorikk: {conversation_memory}\nOppfølgingsspørsmål: {last_utterance}",
				required: set(VarConversationMemory, VarLastUtterance),
			},
		},
	}
}

func set(names ...string) map[string]bool {
	m := make(map[string]bool, len(names))
	for _, n := range names {
		m[n] = true
	}
	return m
}

// Render substitutes vars into the named template. It returns an error if an
// unknown template name is requested, if a required variable is missing, or
// if vars supplies a variable the template does not declare at all.
func (s *Store) Render(name Name, vars map[string]string) (string, error) {
	tpl, ok := s.templates[name]
	if !ok {
		return "", fmt.Errorf("promptstore: unknown template %q", name)
	}

	for key := range vars {
		if !tpl.required[key] && !tpl.optional[key] {
			return "", fmt.Errorf("promptstore: template %q does not declare variable %q", name, key)
		}
	}
	for key := range tpl.required {
		if strings.TrimSpace(vars[key]) == "" {
			return "", fmt.Errorf("promptstore: template %q missing required variable %q", name, key)
		}
	}

	out := placeholderPattern.ReplaceAllStringFunc(tpl.body, func(match string) string {
		key := match[1 : len(match)-1]
		if v, ok := vars[key]; ok {
			return v
		}
		return match
	})
	return out, nil
}
