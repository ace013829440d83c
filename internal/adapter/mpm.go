package adapter

import "fmt"

// MPM drives claude-mpm, the multi-project manager frontend.
type MPM struct {
	info Info
}

// NewMPM returns the mpm adapter.
func NewMPM() *MPM {
	return &MPM{
		info: Info{
			ID:          "mpm",
			Name:        "MPM",
			Description: "Multi-Project Manager for coordinating AI agents",
			Command:     "claude-mpm",
		},
	}
}

var mpmIdlePatterns = []Pattern{
	NewPattern("pm_ready", `(?i)PM ready`, 0.95),
	NewPattern("awaiting", `(?i)awaiting instructions`, 0.95),
	NewPattern("prompt", `(?m)^>\s*$`, 0.9),
}

var mpmErrorPatterns = []Pattern{
	NewPattern("error", `(?im)^error:`, 0.95),
	NewPattern("exception", `(?i)exception|traceback`, 0.9),
	NewPattern("agent_error", `(?i)agent.*error`, 0.9),
}

var mpmWorkingPatterns = []Pattern{
	NewPattern("delegating", `(?i)delegating|assigning`, 0.9),
	NewPattern("coordinating", `(?i)coordinating|orchestrating`, 0.85),
	NewPattern("processing", `(?i)processing|working`, 0.8),
}

func (a *MPM) Info() Info { return a.info }

func (a *MPM) LaunchCommand(projectPath string) string {
	return fmt.Sprintf("%s --project %s", a.info.Command, projectPath)
}

func (a *MPM) AnalyzeOutput(output string) Analysis {
	return analyzeWithPatterns(output, mpmIdlePatterns, mpmErrorPatterns, mpmWorkingPatterns)
}

func (a *MPM) IdlePatterns() []Pattern  { return mpmIdlePatterns }
func (a *MPM) ErrorPatterns() []Pattern { return mpmErrorPatterns }
