// Package models defines the core data structures for generated projects.
package models

import "time"

// ProjectStatus represents the lifecycle state of a project.
type ProjectStatus string

const (
	StatusCreated  ProjectStatus = "created"
	StatusBuilding ProjectStatus = "building"
	StatusRunning  ProjectStatus = "running"
	StatusError    ProjectStatus = "error"
	StatusStopped  ProjectStatus = "stopped"
)

// Canonical project languages. Individual files may carry additional tags
// (json, html, css, md, text); the project language is always one of these.
const (
	LangJavaScript = "javascript"
	LangTypeScript = "typescript"
	LangPython     = "python"
	LangText       = "text"
)

// Project is one generated software artifact with its own file tree and
// build/run lifecycle. Its directory under the workspace root is exclusively
// owned by this project.
type Project struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Language    string        `json:"language"`
	Status      ProjectStatus `json:"status"`
	CreatedAt   time.Time     `json:"createdAt"`
	Path        string        `json:"path"`
	Files       []ProjectFile `json:"files"`
	CurrentFile string        `json:"currentFile,omitempty"`
	LastOutput  string        `json:"lastOutput,omitempty"`
	Port        int           `json:"port,omitempty"`
}

// ProjectFile is one file within a project. Identity is Path within the
// owning project; Path is relative to the project root and doubles as the
// on-disk location.
type ProjectFile struct {
	Name     string `json:"name"`
	Path     string `json:"path"`
	Content  string `json:"content"`
	Language string `json:"language"`
}

// File returns the project file with the given path, or nil.
func (p *Project) File(path string) *ProjectFile {
	for i := range p.Files {
		if p.Files[i].Path == path {
			return &p.Files[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the project, safe to hand to callers outside
// the store's lock.
func (p *Project) Clone() *Project {
	cp := *p
	cp.Files = make([]ProjectFile, len(p.Files))
	copy(cp.Files, p.Files)
	return &cp
}
