// Package filter provides pure string functions over captured terminal
// scrollback: ANSI stripping, UI-noise removal, prompt detection, and
// line diffing between captures.
package filter

import (
	"strings"
)

// spinnerChars indicate processing activity when they lead a line.
var spinnerChars = []rune{
	'✳', '✶', '✻', '✽', '✢', '⏺', '·', '●', '○', '◐', '◑', '◒', '◓',
}

// boxDrawingPrefixes mark status bars and framed UI rows.
var boxDrawingPrefixes = []string{
	"╮", "╭", "│", "├", "└", "┌", "┐", "┘", "┤", "┬", "┴", "┼", "╰",
}

// brandingMarks are block glyph pairs from the Claude Code logo.
var brandingMarks = []string{"▐▛", "▜▌", "▝▜", "▛▘"}

// StripANSI removes ANSI escape codes from content. Terminal captures carry
// color codes that would defeat string matching.
func StripANSI(content string) string {
	result := content

	// CSI sequences: ESC [ ... letter
	for {
		start := strings.Index(result, "\x1b[")
		if start == -1 {
			break
		}
		end := start + 2
		for end < len(result) {
			c := result[end]
			if (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
				end++
				break
			}
			end++
		}
		result = result[:start] + result[end:]
	}

	// OSC sequences: ESC ] ... BEL
	for {
		start := strings.Index(result, "\x1b]")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "\x07")
		if end == -1 {
			break
		}
		result = result[:start] + result[start+end+1:]
	}

	return result
}

// IsUINoise reports whether a line is assistant UI chrome rather than
// content: echoed prompts, spinner frames, box drawing, branding, thinking
// indicators, status hints.
func IsUINoise(line string) bool {
	// Echoed user input: "[project] ❯ text" or "[project] > text"
	if strings.Contains(line, "] ❯ ") || strings.Contains(line, "] > ") {
		return true
	}

	// Bare prompt echo at start: "project> hello"
	head := line
	if len(head) > 30 {
		head = head[:30]
	}
	if strings.Contains(head, "> ") && !strings.Contains(line, ":") && !strings.Contains(line, "http") {
		if pos := strings.Index(line, "> "); pos >= 0 {
			before := line[:pos]
			if !strings.Contains(before, " ") || strings.HasPrefix(before, "[") {
				return true
			}
		}
	}

	// Spinner frames
	for _, r := range line {
		for _, s := range spinnerChars {
			if r == s {
				return true
			}
		}
		break
	}

	for _, p := range boxDrawingPrefixes {
		if strings.HasPrefix(line, p) {
			return true
		}
	}

	for _, m := range brandingMarks {
		if strings.Contains(line, m) {
			return true
		}
	}

	lower := strings.ToLower(line)
	if strings.Contains(lower, "spelunking") ||
		strings.Contains(lower, "(thinking)") ||
		strings.Contains(lower, "thinking…") ||
		strings.Contains(lower, "thinking...") {
		return true
	}

	if strings.Contains(lower, "ctrl+b") || strings.Contains(lower, "to run in background") {
		return true
	}

	if strings.Contains(lower, "claude code v") ||
		strings.Contains(lower, "claude max") ||
		strings.Contains(lower, "opus 4") ||
		strings.Contains(lower, "sonnet") {
		return true
	}

	// MCP tool invocation noise; the result lines stay.
	if strings.Contains(line, "(MCP)(") && (strings.Contains(line, "owner:") || strings.Contains(line, "repo:")) {
		return true
	}
	if strings.HasSuffix(line, "(MCP)") && !strings.Contains(line, ":") {
		return true
	}

	return false
}

// IsPromptReady reports whether the assistant is idle at an input prompt.
//
// Patterns checked, in order: the ❯ prompt alone or trailing a path, input
// box separators plus a visible prompt, the "bypass permissions" hint, the
// bare ">" prompt, and common shell prompt endings on the last line.
func IsPromptReady(output string) bool {
	var lines []string
	raw := strings.Split(output, "\n")
	for i := len(raw) - 1; i >= 0 && len(lines) < 10; i-- {
		if strings.TrimSpace(raw[i]) != "" {
			lines = append(lines, raw[i])
		}
	}
	if len(lines) == 0 {
		return false
	}

	last3 := lines
	if len(last3) > 3 {
		last3 = last3[:3]
	}
	for _, line := range last3 {
		trimmed := strings.TrimSpace(StripANSI(line))
		if trimmed == "❯" || trimmed == "❯ " {
			return true
		}
		if strings.HasSuffix(trimmed, " ❯") || strings.HasSuffix(trimmed, " ❯ ") {
			return true
		}
	}

	last5 := lines
	if len(last5) > 5 {
		last5 = last5[:5]
	}

	hasSeparator := false
	hasBypassHint := false
	for _, line := range last5 {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "───") ||
			strings.HasPrefix(trimmed, "╭─") ||
			strings.HasPrefix(trimmed, "╰─") {
			hasSeparator = true
		}
		if strings.Contains(line, "bypass permissions") {
			hasBypassHint = true
		}
	}
	if hasBypassHint {
		return true
	}
	if hasSeparator {
		for _, line := range last5 {
			if strings.Contains(line, "❯") {
				return true
			}
		}
	}

	for _, line := range last3 {
		trimmed := strings.TrimSpace(StripANSI(line))
		if trimmed == "│ ❯" || strings.HasPrefix(trimmed, "│ ❯") {
			return true
		}
		if trimmed == ">" || strings.HasSuffix(trimmed, "> ") {
			return true
		}
		if strings.Contains(trimmed, "[ready]") {
			return true
		}
	}

	// Shell prompt endings on the last non-empty line
	lastLine := strings.TrimSpace(StripANSI(lines[0]))
	for _, p := range []string{"$ ", "# ", "% ", "❯ ", "➜ ", "> "} {
		if strings.HasSuffix(lastLine+" ", p) {
			return true
		}
	}

	return false
}

// FindNewLines returns lines present in current but not in prev, in order,
// with empty lines and UI noise dropped. Identical captures yield nil.
func FindNewLines(prev, current string) []string {
	prevSet := make(map[string]struct{})
	for _, line := range strings.Split(prev, "\n") {
		prevSet[line] = struct{}{}
		prevSet[strings.TrimSpace(line)] = struct{}{}
	}

	var newLines []string
	for _, line := range strings.Split(current, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if _, ok := prevSet[line]; ok {
			continue
		}
		if _, ok := prevSet[trimmed]; ok {
			continue
		}
		if IsUINoise(trimmed) {
			continue
		}
		newLines = append(newLines, line)
	}
	return newLines
}

// CleanResponse strips tool-call chrome from a raw response, used when
// summarization is unavailable. Drops continuation markers, progress
// bullets, hook messages, MCP output, and read/search status lines.
func CleanResponse(raw string) string {
	var lines []string
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" ||
			strings.HasPrefix(trimmed, "⎿") ||
			strings.HasPrefix(trimmed, "⏺") ||
			strings.Contains(trimmed, "hook") ||
			strings.Contains(trimmed, "ctrl+o") ||
			strings.Contains(trimmed, "(MCP)") ||
			strings.HasPrefix(trimmed, "Reading") ||
			strings.HasPrefix(trimmed, "Searched") {
			continue
		}
		lines = append(lines, trimmed)
	}
	return strings.Join(lines, "\n")
}

// CleanScreenPreview returns the last maxLines meaningful lines, for status
// displays.
func CleanScreenPreview(output string, maxLines int) string {
	var lines []string
	for _, line := range strings.Split(output, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed != "" && !IsUINoise(trimmed) {
			lines = append(lines, trimmed)
		}
	}
	if len(lines) > maxLines {
		lines = lines[len(lines)-maxLines:]
	}
	return strings.Join(lines, "\n")
}

// TruncateTail keeps the last n non-noise lines of cleaned text. Used for
// the summarizer fallback so a long raw dump does not flood the chat.
func TruncateTail(cleaned string, n int) string {
	lines := strings.Split(cleaned, "\n")
	if len(lines) <= n {
		return cleaned
	}
	return strings.Join(lines[len(lines)-n:], "\n")
}
