package session

import (
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/sahilm/fuzzy"
)

// Project is a registered working directory sessions can attach to.
type Project struct {
	Name         string    `json:"name"`
	Path         string    `json:"path"`
	DefaultTool  string    `json:"default_tool,omitempty"`
	RegisteredAt time.Time `json:"registered_at"`
}

// ProjectBook persists the registered project list.
type ProjectBook struct {
	store *Store
}

// NewProjectBook opens the project file at path.
func NewProjectBook(path string) *ProjectBook {
	return &ProjectBook{store: NewStore(path)}
}

func (b *ProjectBook) load() ([]Project, error) {
	var projects []Project
	if _, err := b.store.Load(&projects); err != nil {
		return nil, err
	}
	return projects, nil
}

// List returns all registered projects sorted by name.
func (b *ProjectBook) List() ([]Project, error) {
	projects, err := b.load()
	if err != nil {
		return nil, err
	}
	sort.Slice(projects, func(i, j int) bool {
		return projects[i].Name < projects[j].Name
	})
	return projects, nil
}

// Get looks up a project by exact name, case-insensitively.
func (b *ProjectBook) Get(name string) (Project, error) {
	projects, err := b.load()
	if err != nil {
		return Project{}, err
	}
	for _, p := range projects {
		if strings.EqualFold(p.Name, name) {
			return p, nil
		}
	}
	return Project{}, ErrProjectNotFound
}

// Register adds or updates a project. The name defaults to the directory
// base name when empty.
func (b *ProjectBook) Register(name, path, defaultTool string) (Project, error) {
	if name == "" {
		name = filepath.Base(path)
	}
	projects, err := b.load()
	if err != nil {
		return Project{}, err
	}

	p := Project{
		Name:         name,
		Path:         path,
		DefaultTool:  defaultTool,
		RegisteredAt: time.Now(),
	}
	replaced := false
	for i := range projects {
		if strings.EqualFold(projects[i].Name, name) {
			p.RegisteredAt = projects[i].RegisteredAt
			projects[i] = p
			replaced = true
			break
		}
	}
	if !replaced {
		projects = append(projects, p)
	}
	if err := b.store.Save(projects); err != nil {
		return Project{}, err
	}
	return p, nil
}

// Remove deletes a project by name. Returns false when unknown.
func (b *ProjectBook) Remove(name string) (bool, error) {
	projects, err := b.load()
	if err != nil {
		return false, err
	}
	for i, p := range projects {
		if strings.EqualFold(p.Name, name) {
			projects = append(projects[:i], projects[i+1:]...)
			return true, b.store.Save(projects)
		}
	}
	return false, nil
}

// Suggest fuzzy-matches name against registered project names.
func (b *ProjectBook) Suggest(name string, limit int) []string {
	projects, err := b.load()
	if err != nil {
		return nil
	}
	names := make([]string, len(projects))
	for i, p := range projects {
		names[i] = p.Name
	}
	matches := fuzzy.Find(name, names)
	var out []string
	for _, m := range matches {
		out = append(out, m.Str)
		if len(out) >= limit {
			break
		}
	}
	return out
}
