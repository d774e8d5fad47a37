package psychology

import (
	"math"
	"regexp"
	"strings"
	"unicode/utf8"
)

// Profile is the five-axis investor profile, each axis clamped to 0-100.
type Profile struct {
	Risk        int `json:"risk"`
	Stability   int `json:"stability"`
	Confidence  int `json:"confidence"`
	Patience    int `json:"patience"`
	Sensitivity int `json:"sensitivity"`
}

// Response records one accepted answer. Value holds the Likert rating or the
// chosen option index; nil otherwise. Immutable once appended to a session.
type Response struct {
	Question string       `json:"question"`
	Answer   string       `json:"answer"`
	Type     QuestionType `json:"type"`
	Value    *int         `json:"value"`
}

var (
	aggressiveAnswer = regexp.MustCompile(`(加碼|買入|進場|冒險)`)
	panicAnswer      = regexp.MustCompile(`(賣出|逃離|恐慌|立刻賣出|減碼)`)
	patientAnswer    = regexp.MustCompile(`(觀望|冷靜|等待|持有)`)
)

// ComputeProfile scores a local profile from the collected responses. It
// mirrors the advisory scoring the dashboard shows while waiting for the
// server-computed profile: Likert ratings shift every axis around the
// midpoint, choice answers are scored by keyword, long open answers hint at
// confidence and patience.
func ComputeProfile(responses []Response) Profile {
	risk, stability, confidence, patience, sensitivity := 50.0, 50.0, 50.0, 50.0, 50.0

	for _, r := range responses {
		switch {
		case r.Type == TypeLikert && r.Value != nil:
			v := float64(*r.Value)
			risk += (v - 3) * 8
			stability += (3 - v) * 6
			confidence += (v - 3) * 6
			patience += (v - 3) * 4
			sensitivity += (3 - v) * 6
		case r.Type == TypeChoice:
			text := strings.ToLower(r.Answer)
			switch {
			case aggressiveAnswer.MatchString(text):
				risk += 12
				confidence += 8
				sensitivity += 6
			case panicAnswer.MatchString(text):
				risk -= 12
				stability -= 8
				sensitivity += 10
			case patientAnswer.MatchString(text):
				stability += 10
				patience += 8
				risk -= 4
			case r.Value != nil:
				v := float64(*r.Value)
				pos := v/math.Max(1, v-1) - 0.5
				risk += pos * 16
				confidence += pos * 10
				sensitivity -= pos * 6
			}
		default:
			if utf8.RuneCountInString(r.Answer) > 80 {
				confidence += 6
				patience += 4
			}
		}
	}

	return Profile{
		Risk:        clampAxis(risk),
		Stability:   clampAxis(stability),
		Confidence:  clampAxis(confidence),
		Patience:    clampAxis(patience),
		Sensitivity: clampAxis(sensitivity),
	}
}

// ClassifyInvestor names the investor archetype for a profile.
func ClassifyInvestor(p Profile) string {
	switch {
	case p.Risk > 60 && p.Stability < 40:
		return "波動型（情緒受市場影響）"
	case p.Risk > 60:
		return "探險型（高風險偏好）"
	case p.Risk <= 40 && p.Stability >= 60:
		return "冷靜型（理性決策）"
	case p.Risk <= 40:
		return "謹慎型（保守穩健）"
	default:
		return "綜合型（中庸平衡）"
	}
}

func clampAxis(v float64) int {
	r := math.Round(v)
	if r < 0 {
		return 0
	}
	if r > 100 {
		return 100
	}
	return int(r)
}
