package filter

import (
	"regexp"
	"strings"
)

// OutputKind categorizes a final response for formatting.
type OutputKind int

const (
	KindUnknown OutputKind = iota
	KindTaskCompletion
	KindClarification
	KindActionRequired
	KindStatus
)

func (k OutputKind) String() string {
	switch k {
	case KindTaskCompletion:
		return "task_completion"
	case KindClarification:
		return "clarification"
	case KindActionRequired:
		return "action_required"
	case KindStatus:
		return "status"
	default:
		return "unknown"
	}
}

var (
	errorPrefixRe  = regexp.MustCompile(`(?im)^(error:|fatal:)`)
	permissionRe   = regexp.MustCompile(`(?i)(permission denied|not found|no such file)`)
	progressRe     = regexp.MustCompile(`(?i)(\d+%|downloading|installing|compiling|building|running\.\.\.)`)
	inputMarkerRe  = regexp.MustCompile(`(?i)(i need your|would you like|do you want|should i|please (confirm|choose|select))`)
	questionSuffix = "?"
)

// Classify assigns an OutputKind to a cleaned response.
//
// Clarification: the last meaningful line ends with "?" or carries a known
// "I need your input" marker. ActionRequired: error prefixes or permission
// failures. Status: streaming progress patterns. TaskCompletion otherwise;
// Unknown for empty input.
func Classify(s string) OutputKind {
	var lastLine string
	for _, line := range strings.Split(s, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !IsUINoise(trimmed) {
			lastLine = trimmed
		}
	}
	if lastLine == "" {
		return KindUnknown
	}

	if strings.HasSuffix(lastLine, questionSuffix) || inputMarkerRe.MatchString(s) {
		return KindClarification
	}
	if errorPrefixRe.MatchString(s) || permissionRe.MatchString(lastLine) {
		return KindActionRequired
	}
	if progressRe.MatchString(lastLine) {
		return KindStatus
	}
	return KindTaskCompletion
}
