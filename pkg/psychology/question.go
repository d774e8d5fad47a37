// Package psychology implements the investor-psychology questionnaire flow:
// question classification and normalization, Likert descriptor derivation,
// profile scoring, and the session state machine driving the remote
// question-generation service.
package psychology

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// QuestionType identifies the interaction control a question requires.
type QuestionType string

const (
	TypeOpen   QuestionType = "open"
	TypeChoice QuestionType = "mc"
	TypeLikert QuestionType = "likert"
)

// Meta carries the structured question metadata the backend may declare.
// When present it takes precedence over text heuristics.
type Meta struct {
	Type          string   `json:"type,omitempty"`
	Options       []string `json:"options,omitempty"`
	LikertOptions []string `json:"likert_option,omitempty"`
	LikertRange   string   `json:"likert_range,omitempty"`
}

// Question is a normalized question ready for rendering. Options order is
// meaningful: the index is the selectable choice identity.
type Question struct {
	Text          string
	Type          QuestionType
	Options       []string
	LikertOptions []string
	LikertRange   string
	IsStreaming   bool
}

// Normalize derives a Question from the final text and optional server
// metadata. Declared metadata is trusted first; an options list of two or
// more entries infers single-choice; a non-empty Likert option list infers
// Likert; otherwise text heuristics decide.
func Normalize(text string, meta *Meta) Question {
	q := Question{Text: text, Type: TypeOpen}

	if meta != nil {
		switch meta.Type {
		case "mc", "single", "single-choice":
			q.Type = TypeChoice
			q.Options = meta.Options
			return q
		case "likert":
			q.Type = TypeLikert
			q.LikertOptions = meta.LikertOptions
			q.LikertRange = meta.LikertRange
			return q
		case "open":
			return q
		}
		if len(meta.Options) >= 2 {
			q.Type = TypeChoice
			q.Options = meta.Options
			return q
		}
		if len(meta.LikertOptions) > 0 {
			q.Type = TypeLikert
			q.LikertOptions = meta.LikertOptions
			q.LikertRange = meta.LikertRange
			return q
		}
	}

	q.Type = DetectType(text)
	if q.Type == TypeChoice {
		q.Options = ExtractOptions(text)
	}
	return q
}

var (
	likertPattern   = regexp.MustCompile(`(?i)(1\s*到\s*5|1-5|1~5|1～5|likert|1[^0-9]*5)`)
	chunkSplitter   = regexp.MustCompile(`[\n;/；、]| / | \| `)
	slashSplitter   = regexp.MustCompile(`\s*/\s*`)
	optionSplitter  = regexp.MustCompile(`(?i)\r?\n|;|；|、|\s+or\s+|\|`)
	optionPrefix    = regexp.MustCompile(`^[A-Za-z0-9).:、－\s-]+`)
	questionMarkers = regexp.MustCompile(`[？：:。]`)
)

// DetectType classifies raw question text. It is a best-effort fallback for
// when the backend declares no metadata: a 1-to-5 scale marker means Likert,
// a handful of separable chunks means single-choice, anything else is open.
func DetectType(text string) QuestionType {
	if strings.TrimSpace(text) == "" {
		return TypeOpen
	}
	if likertPattern.MatchString(text) {
		return TypeLikert
	}
	count := 0
	for _, c := range chunkSplitter.Split(text, -1) {
		if strings.TrimSpace(c) != "" {
			count++
		}
	}
	if count >= 2 && count <= 10 {
		return TypeChoice
	}
	return TypeOpen
}

// ExtractOptions pulls the selectable option strings, in order, out of raw
// single-choice question text. Returns nil when fewer than two options can
// be resolved.
func ExtractOptions(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	parts := splitNonEmpty(slashSplitter, text)
	if len(parts) < 2 {
		parts = splitNonEmpty(optionSplitter, text)
	}
	if len(parts) < 2 {
		return nil
	}

	// Strip enumeration prefixes ("A.", "2)", "－" and similar).
	for i, p := range parts {
		parts[i] = strings.TrimSpace(optionPrefix.ReplaceAllString(p, ""))
	}

	// The first part often still contains the question sentence itself;
	// cut it back to the trailing option fragment.
	first := parts[0]
	if utf8.RuneCountInString(first) > 80 || questionMarkers.MatchString(first) {
		if candidate, ok := afterLastPunctuation(first); ok {
			parts[0] = candidate
		} else if strings.Contains(first, "/") {
			segs := splitNonEmpty(slashSplitter, first)
			if len(segs) > 1 {
				parts[0] = segs[len(segs)-1]
			}
		} else if anyShort(parts[1:]) {
			parts = parts[1:]
		} else if i := strings.LastIndex(first, " "); i != -1 && i < len(first)-1 {
			parts[0] = strings.TrimSpace(first[i+1:])
		}
	}

	opts := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.Trim(p, `'"“”`)
		p = strings.TrimSpace(p)
		if p != "" {
			opts = append(opts, p)
		}
	}
	if len(opts) < 2 {
		return nil
	}
	return opts
}

func splitNonEmpty(re *regexp.Regexp, s string) []string {
	raw := re.Split(s, -1)
	out := make([]string, 0, len(raw))
	for _, p := range raw {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// afterLastPunctuation returns the fragment after the last sentence-ending
// or colon punctuation, when one exists before the end of the string.
func afterLastPunctuation(s string) (string, bool) {
	best, bestLen := -1, 0
	for _, p := range []string{"？", "?", "：", ":", "。", "."} {
		if i := strings.LastIndex(s, p); i > best {
			best = i
			bestLen = len(p)
		}
	}
	if best == -1 || best+bestLen >= len(s) {
		return "", false
	}
	return strings.TrimSpace(s[best+bestLen:]), true
}

func anyShort(parts []string) bool {
	for _, p := range parts {
		if utf8.RuneCountInString(p) <= 80 {
			return true
		}
	}
	return false
}

var (
	stressKeywords    = []string{"壓力", "焦慮", "緊張", "擔心", "煩躁", "壓力大"}
	agreementKeywords = []string{"認同", "同意", "贊同"}
	riskKeywords      = []string{"風險", "風險承受", "冒險", "風險偏好"}

	likertBaseLabels = []string{"從不", "偶爾", "有時", "經常", "非常常"}
	stressSuffixes   = []string{"不會感到壓力", "偶爾感到壓力", "有時感到壓力", "經常感到壓力", "非常常感到壓力"}
	riskSuffixes     = []string{"非常保守", "偏保守", "中性", "偏冒險", "非常冒險"}
	agreeSuffixes    = []string{"非常不認同", "不認同", "中立/有保留", "認同", "非常認同"}
)

// DeriveLikertDescriptor produces a textual descriptor for a 1-5 rating when
// the backend declared no likert_option list. The keyword domain of the
// question (stress, risk appetite, agreement) picks the label set.
func DeriveLikertDescriptor(questionText string, value int) string {
	idx := value - 1
	if idx < 0 {
		idx = 0
	}
	if idx > 4 {
		idx = 4
	}
	label := likertBaseLabels[idx]

	q := strings.ToLower(questionText)
	if containsAny(q, stressKeywords) {
		return stressSuffixes[idx]
	}
	if containsAny(q, riskKeywords) {
		return label + "（" + riskSuffixes[idx] + "）"
	}
	if containsAny(q, agreementKeywords) {
		return label + "（" + agreeSuffixes[idx] + "）"
	}
	return label
}

func containsAny(s string, keywords []string) bool {
	for _, k := range keywords {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
