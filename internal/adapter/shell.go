package adapter

import "os"

// Shell is the generic adapter for plain shell sessions.
type Shell struct {
	info Info
}

// NewShell returns a shell adapter using $SHELL, falling back to /bin/bash.
func NewShell() *Shell {
	sh := os.Getenv("SHELL")
	if sh == "" {
		sh = "/bin/bash"
	}
	return &Shell{
		info: Info{
			ID:          "shell",
			Name:        "Shell",
			Description: "Generic shell adapter for arbitrary sessions",
			Command:     sh,
		},
	}
}

var shellIdlePatterns = []Pattern{
	NewPattern("bash_prompt", `(?m)[$]\s*$`, 0.95),
	NewPattern("zsh_prompt", `(?m)[%]\s*$`, 0.95),
	NewPattern("root_prompt", `(?m)[#]\s*$`, 0.90),
	NewPattern("generic_prompt", `(?m)>\s*$`, 0.85),
	NewPattern("ps1_prompt", `(?m)\w+[@:~][^$#%>\n]*[$#%>]\s*$`, 0.95),
}

var shellErrorPatterns = []Pattern{
	NewPattern("command_not_found", `(?i)command not found`, 0.95),
	NewPattern("no_such_file", `(?i)no such file or directory`, 0.95),
	NewPattern("permission_denied", `(?i)permission denied`, 0.95),
	NewPattern("syntax_error", `(?i)syntax error`, 0.90),
}

var shellWorkingPatterns = []Pattern{
	NewPattern("compiling", `(?i)compiling|building`, 0.85),
	NewPattern("downloading", `(?i)downloading|fetching|installing`, 0.85),
	NewPattern("progress", `\d+%`, 0.75),
	NewPattern("running", `(?i)running|executing`, 0.80),
}

func (a *Shell) Info() Info { return a.info }

// LaunchCommand is empty: tmux already starts the user's shell in the
// session, so there is nothing to type.
func (a *Shell) LaunchCommand(projectPath string) string {
	return ""
}

func (a *Shell) AnalyzeOutput(output string) Analysis {
	return analyzeWithPatterns(output, shellIdlePatterns, shellErrorPatterns, shellWorkingPatterns)
}

func (a *Shell) IdlePatterns() []Pattern  { return shellIdlePatterns }
func (a *Shell) ErrorPatterns() []Pattern { return shellErrorPatterns }
