package conversationstore

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/kristoman/standardgpt/internal/llm"
	"github.com/kristoman/standardgpt/internal/logger"
)

const (
	titleCallTimeout  = 8 * time.Second
	titleMaxTokens    = 25
	titleTemperature  = 0.2
	titleMaxChars     = 45
	maxStandardsShown = 3
)

// RawCaller is the subset of llm.Client the title generator needs; kept as
// an interface per spec.md §9's "collaborators as interfaces" so the
// generator can be exercised without a live upstream.
type RawCaller interface {
	CallRaw(ctx context.Context, messages []llm.Message, maxTokens int, temperature float32) (string, error)
}

// TitleGenerator names a new conversation, grounded on
// original_source/src/session_manager.py's
// generate_conversation_title_improved: try an AI-generated title first
// (bounded to titleCallTimeout), then fall back through standard-number
// detection, topic classification, and a stopword-filtered excerpt of the
// question.
type TitleGenerator struct {
	LLM RawCaller
}

// Generate returns a short Norwegian title for the exchange (question,
// answer). Never returns an empty string.
func (g *TitleGenerator) Generate(ctx context.Context, question, answer string) string {
	if g != nil && g.LLM != nil {
		if title := g.generateAI(ctx, question, answer); title != "" {
			return title
		}
	}

	if standards := extractStandardsImproved(question, answer); len(standards) > 0 {
		topic := classifyTopic(question)
		switch {
		case len(standards) == 1 && topic != "":
			return standards[0] + " - " + topic
		case len(standards) == 1:
			return standards[0]
		case len(standards) <= maxStandardsShown:
			return strings.Join(standards[:2], " og ")
		default:
			return standards[0] + " og " + strconv.Itoa(len(standards)-1) + " andre"
		}
	}

	if topic := classifyTopic(question); topic != "" {
		return "Spørsmål om " + topic
	}

	if title := descriptiveFallback(question); title != "" {
		return title
	}

	return "Ny samtale"
}

func (g *TitleGenerator) generateAI(ctx context.Context, question, answer string) string {
	ctx, cancel := context.WithTimeout(ctx, titleCallTimeout)
	defer cancel()

	questionPreview := truncateRunes(question, 150)
	answerPreview := truncateRunes(answer, 200)

	prompt := "Lag en kort, presis tittel for denne samtalen om norske standarder.\n\n" +
		"Spørsmål: " + questionPreview + "\nSvar: " + answerPreview + "\n\n" +
		"Tittelkrav:\n" +
		"- Maksimum 4-5 ord på norsk\n" +
		"- Hvis standardnummer nevnes (NS-EN, ISO, TEK), start med det\n" +
		"- Ellers beskriv hovedtemaet konkret\n" +
		"- Unngå: \"spørsmål\", \"om\", \"informasjon\", \"hjelp\"\n\nTittel:"

	text, err := g.LLM.CallRaw(ctx, []llm.Message{{Role: "user", Content: prompt}}, titleMaxTokens, titleTemperature)
	if err != nil {
		logger.Warnf(ctx, "conversationstore: AI title generation failed, falling back: %v", err)
		return ""
	}

	title := strings.TrimSpace(text)
	title = strings.NewReplacer(`"`, "", "'", "", ":", "").Replace(title)
	for _, prefix := range []string{"tittel:", "svar:", "for å", "denne"} {
		if strings.HasPrefix(strings.ToLower(title), prefix) {
			title = strings.TrimSpace(title[len(prefix):])
		}
	}
	if len(title) > titleMaxChars {
		title = truncateRunes(title, titleMaxChars-3) + "..."
	}
	if len([]rune(title)) <= 3 {
		return ""
	}
	return title
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

var standardPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\bNS[\s\-]?EN[\s\-]?[0-9A-Z\-:+]+\b`),
	regexp.MustCompile(`\bEN[\s\-]?[0-9A-Z\-:+]+\b`),
	regexp.MustCompile(`\bISO[\s\-]?[0-9A-Z\-:+]+\b`),
	regexp.MustCompile(`\bIEC[\s\-]?[0-9A-Z\-:+]+\b`),
	regexp.MustCompile(`\bNORSOK[\s\-]?[A-Z0-9\-]+\b`),
	regexp.MustCompile(`\bTEK[\s\-]?[0-9]+\b`),
	regexp.MustCompile(`\bNS[\s\-]?[0-9A-Z\-:+]+\b`),
}

// extractStandardsImproved ports session_manager.py's
// extract_standards_improved: run each pattern (most specific first) over
// the upper-cased combined text, keep at most 3 matches per pattern,
// dedupe, skip a match already contained in one kept from an earlier (more
// specific) pattern, and return in a stable order.
func extractStandardsImproved(question, answer string) []string {
	combined := strings.ToUpper(question + " " + answer)
	seen := make(map[string]bool)
	var out []string
	for _, pattern := range standardPatterns {
		matches := pattern.FindAllString(combined, -1)
		if len(matches) > 3 {
			matches = matches[:3]
		}
		for _, m := range matches {
			if seen[m] {
				continue
			}
			covered := false
			for _, kept := range out {
				if strings.Contains(kept, m) {
					covered = true
					break
				}
			}
			if covered {
				continue
			}
			seen[m] = true
			out = append(out, m)
		}
	}
	sort.Strings(out)
	return out
}

var topicKeywords = map[string][]string{
	"brann":       {"brann", "røykdetektør", "sprinkler", "evakuering", "flukt", "røykkontroll"},
	"bygg":        {"bygg", "konstruksjon", "betong", "stål", "fundament", "byggetegning"},
	"elektrisk":   {"elektrisk", "kabel", "installasjon", "el-anlegg", "strøm", "ledning"},
	"miljø":       {"miljø", "utslipp", "avfall", "forurensning", "klima", "energi"},
	"kvalitet":    {"kvalitet", "kontroll", "sertifisering", "testing", "godkjenning"},
	"ventilasjon": {"ventilasjon", "luft", "klima", "vifter", "kanaler"},
	"isolasjon":   {"isolasjon", "isolering", "varme", "kulde", "energi"},
	"sikkerhet":   {"sikkerhet", "vern", "beskyttelse", "risiko", "fare"},
}

// topicOrder fixes iteration order so ties resolve deterministically,
// matching the Python dict's (insertion-ordered) iteration.
var topicOrder = []string{"brann", "bygg", "elektrisk", "miljø", "kvalitet", "ventilasjon", "isolasjon", "sikkerhet"}

// classifyTopic ports analyze_content_for_topic: score each topic by
// keyword hits in the lower-cased question, return the highest scorer.
func classifyTopic(question string) string {
	lower := strings.ToLower(question)
	best, bestScore := "", 0
	for _, topic := range topicOrder {
		score := 0
		for _, kw := range topicKeywords[topic] {
			if strings.Contains(lower, kw) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = topic, score
		}
	}
	return best
}

var stopWords = map[string]bool{
	"hva": true, "hvor": true, "når": true, "hvordan": true, "kan": true, "du": true,
	"jeg": true, "er": true, "om": true, "den": true, "det": true, "og": true, "i": true,
	"på": true, "til": true, "for": true, "med": true, "av": true, "skal": true, "vil": true,
	"være": true, "har": true, "som": true, "en": true, "et": true, "de": true, "seg": true,
	"ikke": true,
}

var importantWords = map[string]bool{
	"standard": true, "krav": true, "regel": true, "norm": true, "forskrift": true,
}

// descriptiveFallback ports create_descriptive_fallback: keep
// content-bearing words (numeric, uppercase, long, or domain terms),
// title-case up to 4 of them; otherwise fall back to the first 3 raw
// words.
func descriptiveFallback(question string) string {
	fields := strings.Fields(strings.ToLower(question))
	words := make([]string, 0, len(fields))
	for _, w := range fields {
		if !stopWords[w] && len([]rune(w)) > 2 {
			words = append(words, w)
		}
	}

	var kept []string
	limit := len(words)
	if limit > 8 {
		limit = 8
	}
	for _, w := range words[:limit] {
		if hasDigit(w) || isAllUpper(w) || len([]rune(w)) > 4 || importantWords[w] {
			kept = append(kept, titleCase(w))
		}
	}

	if len(kept) > 0 {
		if len(kept) > 4 {
			kept = kept[:4]
		}
		title := strings.Join(kept, " ")
		if len(title) > 40 {
			title = truncateRunes(title, 37) + "..."
		}
		return title
	}

	if len(words) > 0 {
		if len(words) > 3 {
			words = words[:3]
		}
		title := titleCase(strings.Join(words, " "))
		if len(title) > 30 {
			title = truncateRunes(title, 27) + "..."
		}
		return title
	}

	return ""
}

func hasDigit(s string) bool {
	for _, r := range s {
		if unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

func isAllUpper(s string) bool {
	hasLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			hasLetter = true
			if !unicode.IsUpper(r) {
				return false
			}
		}
	}
	return hasLetter
}

func titleCase(s string) string {
	fields := strings.Fields(s)
	for i, f := range fields {
		r := []rune(f)
		if len(r) > 0 {
			r[0] = unicode.ToUpper(r[0])
		}
		fields[i] = string(r)
	}
	return strings.Join(fields, " ")
}
