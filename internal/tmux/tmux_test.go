package tmux

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseSessionNames(t *testing.T) {
	out := "commander-demo\nwork\n\ncommander-api\n"
	names := parseSessionNames(out)
	assert.Equal(t, []string{"commander-demo", "work", "commander-api"}, names)
}

func TestParseSessionNamesEmpty(t *testing.T) {
	assert.Nil(t, parseSessionNames(""))
	assert.Nil(t, parseSessionNames("\n\n"))
}

func TestIsNoServer(t *testing.T) {
	assert.True(t, isNoServer("no server running on /tmp/tmux-1000/default"))
	assert.True(t, isNoServer("no sessions"))
	assert.True(t, isNoServer("error connecting to /tmp/tmux-1000/default (No such file or directory)"))
	assert.False(t, isNoServer("duplicate session: demo"))
}

func TestManagedName(t *testing.T) {
	assert.Equal(t, "commander-demo", ManagedName("demo"))
	assert.Equal(t, "commander-demo", ManagedName("commander-demo"))
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "demo", DisplayName("commander-demo"))
	assert.Equal(t, "work", DisplayName("work"))
}

func TestCommandErrorMessage(t *testing.T) {
	err := &CommandError{Args: []string{"kill-session", "-t", "=x"}, Stderr: "session not found: x\n"}
	assert.Contains(t, err.Error(), "kill-session")
	assert.Contains(t, err.Error(), "session not found: x")
}
