package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsUINoisePromptLines(t *testing.T) {
	assert.True(t, IsUINoise("[duetto] ❯ some command"))
	assert.True(t, IsUINoise("[project] > test input"))
	assert.True(t, IsUINoise("duetto> hello"))
	assert.False(t, IsUINoise("This is actual content"))
	assert.False(t, IsUINoise("Response: here is the answer"))
}

func TestIsUINoiseSpinners(t *testing.T) {
	assert.True(t, IsUINoise("✳ Loading..."))
	assert.True(t, IsUINoise("● Working"))
	assert.False(t, IsUINoise("Done with ● in the middle? No: leading char only"))
}

func TestIsUINoiseBoxDrawing(t *testing.T) {
	assert.True(t, IsUINoise("╭── header"))
	assert.True(t, IsUINoise("│ content"))
	assert.True(t, IsUINoise("╰── footer"))
}

func TestIsUINoiseBranding(t *testing.T) {
	assert.True(t, IsUINoise("Claude Code v1.0.0"))
	assert.True(t, IsUINoise("Using Opus 4.5"))
	assert.True(t, IsUINoise("Thinking… elapsed 3s"))
	assert.True(t, IsUINoise("press ctrl+b to run in background"))
}

func TestStripANSICSI(t *testing.T) {
	in := "\x1b[31mred\x1b[0m plain"
	assert.Equal(t, "red plain", StripANSI(in))
}

func TestStripANSIOSC(t *testing.T) {
	in := "\x1b]0;window title\x07content"
	assert.Equal(t, "content", StripANSI(in))
}

func TestStripANSIPassthrough(t *testing.T) {
	assert.Equal(t, "no escapes here", StripANSI("no escapes here"))
}

func TestFindNewLines(t *testing.T) {
	prev := "line1\nline2\n"
	current := "line1\nline2\nline3\n"
	assert.Equal(t, []string{"line3"}, FindNewLines(prev, current))
}

func TestFindNewLinesIdempotent(t *testing.T) {
	out := "line1\nline2\n"
	assert.Empty(t, FindNewLines(out, out))
}

func TestFindNewLinesFiltersPromptEcho(t *testing.T) {
	current := "[duetto] ❯ describe this project\nActual response here\n"
	assert.Equal(t, []string{"Actual response here"}, FindNewLines("", current))
}

func TestFindNewLinesSkipsEmpty(t *testing.T) {
	current := "a\n\n  \nb\n"
	assert.Equal(t, []string{"a", "b"}, FindNewLines("", current))
}

func TestCleanResponse(t *testing.T) {
	raw := "⏺ Working...\nActual content\nReading file.txt\n"
	assert.Equal(t, "Actual content", CleanResponse(raw))
}

func TestCleanResponseDropsToolChrome(t *testing.T) {
	raw := "⎿ tool result frame\nanswer line\ngithub (MCP) lookup\nSearched 12 files\n"
	assert.Equal(t, "answer line", CleanResponse(raw))
}

func TestCleanScreenPreview(t *testing.T) {
	output := "line1\nline2\nline3\nline4\nline5\nline6"
	assert.Equal(t, "line4\nline5\nline6", CleanScreenPreview(output, 3))
}

func TestCleanScreenPreviewFiltersNoise(t *testing.T) {
	output := "╭── frame\nreal one\n│ boxed\nreal two"
	assert.Equal(t, "real one\nreal two", CleanScreenPreview(output, 5))
}

func TestTruncateTail(t *testing.T) {
	assert.Equal(t, "c\nd", TruncateTail("a\nb\nc\nd", 2))
	assert.Equal(t, "a\nb", TruncateTail("a\nb", 5))
}

func TestIsPromptReadyChevron(t *testing.T) {
	assert.True(t, IsPromptReady("❯"))
	assert.True(t, IsPromptReady("path/to/dir ❯"))
	assert.False(t, IsPromptReady("Still processing..."))
}

func TestIsPromptReadyInputBox(t *testing.T) {
	out := "response done\n╭──────────\n│ ❯\n╰──────────"
	assert.True(t, IsPromptReady(out))
}

func TestIsPromptReadyBypassHint(t *testing.T) {
	assert.True(t, IsPromptReady("some output\n-- bypass permissions on --"))
}

func TestIsPromptReadyShellPrompts(t *testing.T) {
	assert.True(t, IsPromptReady("output\nuser@host:~$ "))
	assert.True(t, IsPromptReady("output\n% "))
	assert.True(t, IsPromptReady("output\n>"))
}

func TestIsPromptReadyEmpty(t *testing.T) {
	assert.False(t, IsPromptReady(""))
	assert.False(t, IsPromptReady("\n\n"))
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want OutputKind
	}{
		{"empty", "", KindUnknown},
		{"question", "I finished the refactor.\nShould I also update the tests?", KindClarification},
		{"input marker", "Would you like me to continue with the migration", KindClarification},
		{"error prefix", "Error: cannot open database", KindActionRequired},
		{"permission", "open /etc/shadow: permission denied", KindActionRequired},
		{"progress", "Downloading modules 45%", KindStatus},
		{"completion", "All tests pass and the branch is pushed.", KindTaskCompletion},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.in))
		})
	}
}
