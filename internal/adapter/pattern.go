package adapter

import "regexp"

// Pattern is a named regex with a confidence weight.
type Pattern struct {
	Name       string
	Confidence float64
	re         *regexp.Regexp
}

// NewPattern compiles a pattern. Panics on an invalid expression; pattern
// tables are package constants and a bad one is a programming error.
func NewPattern(name, expr string, confidence float64) Pattern {
	return Pattern{
		Name:       name,
		Confidence: confidence,
		re:         regexp.MustCompile(expr),
	}
}

// Matches reports whether the pattern matches the text.
func (p Pattern) Matches(text string) bool {
	return p.re.MatchString(text)
}

// BestMatch returns the highest-confidence matching pattern, or nil.
func BestMatch(text string, patterns []Pattern) *Pattern {
	var best *Pattern
	for i := range patterns {
		if !patterns[i].Matches(text) {
			continue
		}
		if best == nil || patterns[i].Confidence > best.Confidence {
			best = &patterns[i]
		}
	}
	return best
}

// AnyMatch reports whether any pattern in the set matches.
func AnyMatch(text string, patterns []Pattern) bool {
	for _, p := range patterns {
		if p.Matches(text) {
			return true
		}
	}
	return false
}
