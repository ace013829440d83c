package adapter

// Aider drives the aider pair-programming CLI.
type Aider struct {
	info Info
}

// NewAider returns the aider adapter.
func NewAider() *Aider {
	return &Aider{
		info: Info{
			ID:          "aider",
			Name:        "Aider",
			Description: "AI pair programming in the terminal",
			Command:     "aider",
		},
	}
}

var aiderIdlePatterns = []Pattern{
	NewPattern("prompt", `(?m)^[a-z-]*>\s*$`, 0.9),
	NewPattern("confirm", `(?i)\((y)es/(n)o\)|\[yes\]|\(Y\)es`, 0.95),
	NewPattern("add_files", `(?i)add .* to the chat\?`, 0.95),
}

var aiderErrorPatterns = []Pattern{
	NewPattern("error", `(?im)^error:`, 0.95),
	NewPattern("traceback", `(?i)traceback`, 0.9),
	NewPattern("api_error", `(?i)api.*(error|key)`, 0.85),
}

var aiderWorkingPatterns = []Pattern{
	NewPattern("applying", `(?i)applying edit|committing`, 0.9),
	NewPattern("tokens", `(?i)tokens:|sent \d+`, 0.8),
}

func (a *Aider) Info() Info { return a.info }

func (a *Aider) LaunchCommand(projectPath string) string {
	return a.info.Command
}

func (a *Aider) AnalyzeOutput(output string) Analysis {
	return analyzeWithPatterns(output, aiderIdlePatterns, aiderErrorPatterns, aiderWorkingPatterns)
}

func (a *Aider) IdlePatterns() []Pattern  { return aiderIdlePatterns }
func (a *Aider) ErrorPatterns() []Pattern { return aiderErrorPatterns }
