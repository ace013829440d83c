package adapter

import "sort"

// Registry holds the known adapters by id.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns a registry with all built-in adapters.
func NewRegistry() *Registry {
	r := &Registry{adapters: make(map[string]Adapter)}
	for _, a := range []Adapter{NewClaudeCode(), NewMPM(), NewAider(), NewShell()} {
		r.Register(a)
	}
	return r
}

// Register adds or replaces an adapter.
func (r *Registry) Register(a Adapter) {
	r.adapters[a.Info().ID] = a
}

// Get returns the adapter with the given id, or nil.
func (r *Registry) Get(id string) Adapter {
	return r.adapters[id]
}

// List returns the registered adapter ids, sorted.
func (r *Registry) List() []string {
	ids := make([]string, 0, len(r.adapters))
	for id := range r.adapters {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Default returns the claude-code adapter.
func (r *Registry) Default() Adapter {
	return r.Get("claude-code")
}

// Detect returns the id of the adapter whose patterns best explain the
// scrollback, or "" when no adapter recognizes it. The default tool wins
// confidence ties.
func (r *Registry) Detect(output string) string {
	best := ""
	bestConf := 0.0
	for _, id := range r.List() {
		analysis := r.adapters[id].AnalyzeOutput(output)
		if analysis.State == StateUnknown {
			continue
		}
		if analysis.Confidence > bestConf ||
			(analysis.Confidence == bestConf && id == DefaultToolID) {
			best = id
			bestConf = analysis.Confidence
		}
	}
	return best
}

// Resolve maps a user-supplied tool name or alias to its canonical id.
// Returns "" for an unknown name.
func (r *Registry) Resolve(alias string) string {
	switch alias {
	case "cc", "claude", "claude-code":
		return "claude-code"
	case "mpm", "claude-mpm":
		return "mpm"
	case "aider":
		return "aider"
	case "shell", "bash", "zsh":
		return "shell"
	}
	if _, ok := r.adapters[alias]; ok {
		return alias
	}
	return ""
}
