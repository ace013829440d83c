// Package adapter defines the boundary between Commander and the AI coding
// tools it drives inside tmux. Each adapter knows how to launch its tool and
// how to read the tool's output for idle and error states.
package adapter

import "strings"

// DefaultToolID is the adapter used when a project does not name one.
const DefaultToolID = "claude-code"

// UnknownToolID marks a session whose tool could not be inferred.
const UnknownToolID = "unknown"

// State is the detected state of a running tool.
type State int

const (
	StateUnknown State = iota
	StateIdle
	StateWorking
	StateError
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWorking:
		return "working"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Info describes an adapter.
type Info struct {
	// ID is the canonical adapter identifier, e.g. "claude-code".
	ID string
	// Name is the human-readable name.
	Name string
	// Description for help output.
	Description string
	// Command is the binary to launch.
	Command string
	// DefaultArgs are appended to every launch.
	DefaultArgs []string
}

// Analysis is the result of inspecting tool output.
type Analysis struct {
	State      State
	Confidence float64
	Errors     []string
}

// Adapter is the polymorphic boundary over the supported tools.
type Adapter interface {
	Info() Info

	// LaunchCommand returns the shell line that starts the tool in the
	// given project directory. It is sent verbatim into the tmux session.
	LaunchCommand(projectPath string) string

	// AnalyzeOutput inspects captured scrollback for the tool's state.
	AnalyzeOutput(output string) Analysis

	// IdlePatterns returns the patterns indicating the tool awaits input.
	IdlePatterns() []Pattern

	// ErrorPatterns returns the patterns indicating a failure.
	ErrorPatterns() []Pattern
}

// lastLines returns the last n lines of output joined back together.
// State detection only trusts the recent tail of the scrollback.
func lastLines(output string, n int) string {
	lines := strings.Split(output, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

// analyzeWithPatterns is the shared detection routine: errors win over idle,
// idle wins over working, anything else is working while output is flowing.
func analyzeWithPatterns(output string, idle, errs, working []Pattern) Analysis {
	recent := lastLines(output, 10)

	if p := BestMatch(recent, errs); p != nil {
		return Analysis{State: StateError, Confidence: p.Confidence, Errors: extractErrorLines(output, errs)}
	}
	if p := BestMatch(recent, idle); p != nil {
		return Analysis{State: StateIdle, Confidence: p.Confidence}
	}
	if p := BestMatch(recent, working); p != nil {
		return Analysis{State: StateWorking, Confidence: p.Confidence}
	}
	return Analysis{State: StateUnknown, Confidence: 0.1}
}

func extractErrorLines(output string, errs []Pattern) []string {
	var out []string
	for _, line := range strings.Split(output, "\n") {
		if AnyMatch(line, errs) {
			out = append(out, strings.TrimSpace(line))
		}
	}
	return out
}

// DisplayName maps an adapter id to the label shown in chat replies.
func DisplayName(id string) string {
	switch id {
	case "claude-code":
		return "Claude Code"
	case "mpm":
		return "MPM"
	case "aider":
		return "Aider"
	case "shell":
		return "Shell"
	default:
		return id
	}
}
