package psychology

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DetectionConfig holds the advisory malformed-question thresholds. The
// values are empirically tuned hints, not hard gates: a flagged question is
// still answerable, the caller should merely offer regeneration.
type DetectionConfig struct {
	MinLength int `mapstructure:"min_length"`
}

// DefaultDetectionConfig returns the reference thresholds.
func DefaultDetectionConfig() DetectionConfig {
	return DetectionConfig{MinLength: 8}
}

var (
	placeholderToken = regexp.MustCompile(`(選擇|選項)\s*[A-D]\b`)
	placeholderPair  = regexp.MustCompile(`\b[A-D]\b\s*/\s*\b[A-D]\b`)
	ellipsisPattern  = regexp.MustCompile(`(\.{2,}|…)$`)
)

// CheckIncomplete flags a question that looks truncated or unresolved:
// empty or too-short text, leftover placeholder tokens, a trailing ellipsis,
// or a declared single-choice question with fewer than two options. The
// returned reason is user-facing; an empty reason means the question looks
// complete.
func CheckIncomplete(q Question, cfg DetectionConfig) (string, bool) {
	trimmed := strings.TrimSpace(q.Text)
	if trimmed == "" {
		return "題目為空", true
	}
	if q.Type == TypeChoice && len(q.Options) < 2 {
		return "選項不足", true
	}
	if utf8.RuneCountInString(trimmed) < cfg.MinLength {
		return "題目過短", true
	}
	if placeholderToken.MatchString(q.Text) || placeholderPair.MatchString(q.Text) {
		return "題目包含占位符", true
	}
	if ellipsisPattern.MatchString(trimmed) {
		return "題目似乎被截斷", true
	}
	return "", false
}
