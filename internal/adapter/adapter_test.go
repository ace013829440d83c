package adapter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, []string{"aider", "claude-code", "mpm", "shell"}, r.List())
	require.NotNil(t, r.Default())
	assert.Equal(t, "claude-code", r.Default().Info().ID)
}

func TestRegistryResolve(t *testing.T) {
	r := NewRegistry()
	assert.Equal(t, "claude-code", r.Resolve("cc"))
	assert.Equal(t, "claude-code", r.Resolve("claude-code"))
	assert.Equal(t, "mpm", r.Resolve("mpm"))
	assert.Equal(t, "shell", r.Resolve("bash"))
	assert.Equal(t, "aider", r.Resolve("aider"))
	assert.Equal(t, "", r.Resolve("unknown"))
}

func TestLaunchCommands(t *testing.T) {
	assert.Equal(t, "claude", NewClaudeCode().LaunchCommand("/p"))
	assert.Equal(t, "claude-mpm --project /p", NewMPM().LaunchCommand("/p"))
	assert.Equal(t, "aider", NewAider().LaunchCommand("/p"))
	assert.Equal(t, "", NewShell().LaunchCommand("/p"))
}

func TestClaudeAnalyzeIdle(t *testing.T) {
	a := NewClaudeCode()
	got := a.AnalyzeOutput("task finished\n>\n")
	assert.Equal(t, StateIdle, got.State)
}

func TestClaudeAnalyzeError(t *testing.T) {
	a := NewClaudeCode()
	got := a.AnalyzeOutput("Error: something went wrong\n")
	assert.Equal(t, StateError, got.State)
	require.NotEmpty(t, got.Errors)
	assert.Contains(t, got.Errors[0], "Error: something went wrong")
}

func TestClaudeAnalyzeWorking(t *testing.T) {
	a := NewClaudeCode()
	got := a.AnalyzeOutput("Churning along (12s · 800 tokens · esc to interrupt)\n")
	assert.Equal(t, StateWorking, got.State)
}

func TestMPMAnalyzeIdle(t *testing.T) {
	got := NewMPM().AnalyzeOutput("Tasks complete!\nPM ready\n")
	assert.Equal(t, StateIdle, got.State)
}

func TestShellAnalyze(t *testing.T) {
	sh := NewShell()
	assert.Equal(t, StateIdle, sh.AnalyzeOutput("output\nuser@host:~$ ").State)
	assert.Equal(t, StateError, sh.AnalyzeOutput("bash: foo: command not found").State)
	assert.Equal(t, StateWorking, sh.AnalyzeOutput("Compiling main.go").State)
}

func TestAiderAnalyze(t *testing.T) {
	ai := NewAider()
	assert.Equal(t, StateIdle, ai.AnalyzeOutput("done\narchitect> ").State)
	assert.Equal(t, StateError, ai.AnalyzeOutput("Error: missing API key").State)
}

func TestRegistryDetect(t *testing.T) {
	r := NewRegistry()

	assert.Equal(t, "claude-code", r.Detect("task finished\n❯"))
	assert.Equal(t, "mpm", r.Detect("Tasks complete!\nPM ready\n"))
	assert.Equal(t, "shell", r.Detect("output\nuser@host:~$ "))
	assert.Equal(t, "aider", r.Detect("done\narchitect> "))

	// Nothing recognizable.
	assert.Equal(t, "", r.Detect(""))
	assert.Equal(t, "", r.Detect("plain narrative text with no markers"))

	// A bare ">" prompt matches several adapters at equal confidence; the
	// default tool wins the tie.
	assert.Equal(t, DefaultToolID, r.Detect("task finished\n>\n"))
}

func TestBestMatchPrefersConfidence(t *testing.T) {
	patterns := []Pattern{
		NewPattern("low", `ready`, 0.5),
		NewPattern("high", `ready`, 0.9),
	}
	best := BestMatch("ready", patterns)
	require.NotNil(t, best)
	assert.Equal(t, "high", best.Name)
}

func TestAnalyzeUnknown(t *testing.T) {
	got := NewClaudeCode().AnalyzeOutput("plain narrative text with no markers")
	assert.Equal(t, StateUnknown, got.State)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Claude Code", DisplayName("claude-code"))
	assert.Equal(t, "MPM", DisplayName("mpm"))
	assert.Equal(t, "custom-tool", DisplayName("custom-tool"))
}
