package adapter

// ClaudeCode drives the Claude Code CLI.
type ClaudeCode struct {
	info Info
}

// NewClaudeCode returns the claude-code adapter.
func NewClaudeCode() *ClaudeCode {
	return &ClaudeCode{
		info: Info{
			ID:          "claude-code",
			Name:        "Claude Code",
			Description: "Anthropic's agentic coding CLI",
			Command:     "claude",
		},
	}
}

var claudeIdlePatterns = []Pattern{
	NewPattern("prompt", `(?m)^>\s*$`, 0.9),
	NewPattern("chevron", `(?m)^\s*❯\s*$`, 0.9),
	NewPattern("waiting", `(?i)waiting for input`, 0.95),
	NewPattern("bypass_hint", `bypass permissions`, 0.85),
	NewPattern("permission_dialog", `(?i)yes, allow (once|always)`, 0.95),
}

var claudeErrorPatterns = []Pattern{
	NewPattern("error", `(?im)^error:`, 0.95),
	NewPattern("exception", `(?i)exception|traceback`, 0.9),
	NewPattern("permission_denied", `(?i)permission denied`, 0.95),
	NewPattern("not_found", `(?i)not found|no such file`, 0.9),
}

var claudeWorkingPatterns = []Pattern{
	NewPattern("interrupt_hint", `esc to interrupt`, 0.95),
	NewPattern("thinking", `(?i)thinking|processing`, 0.9),
	NewPattern("tool_activity", `(?i)writing|creating|updating|reading|analyzing`, 0.8),
}

func (a *ClaudeCode) Info() Info { return a.info }

func (a *ClaudeCode) LaunchCommand(projectPath string) string {
	return a.info.Command
}

func (a *ClaudeCode) AnalyzeOutput(output string) Analysis {
	return analyzeWithPatterns(output, claudeIdlePatterns, claudeErrorPatterns, claudeWorkingPatterns)
}

func (a *ClaudeCode) IdlePatterns() []Pattern  { return claudeIdlePatterns }
func (a *ClaudeCode) ErrorPatterns() []Pattern { return claudeErrorPatterns }
