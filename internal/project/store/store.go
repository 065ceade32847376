// Package store owns all project state: the in-memory registry and its
// on-disk mirror under the workspace root.
//
// Runtime fields (status, port, lastOutput) are mutated by the process
// supervisor as well, but only through the narrow SetRuntimeState/AppendOutput
// methods here, so every field path keeps a single writer.
package store

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	apperrors "github.com/appforge/appforge/internal/common/errors"
	"github.com/appforge/appforge/internal/common/logger"
	"github.com/appforge/appforge/internal/common/stringutil"
	"github.com/appforge/appforge/internal/events"
	"github.com/appforge/appforge/internal/events/bus"
	"github.com/appforge/appforge/internal/project/models"
)

const defaultProjectName = "untitled-app"

// FileInput is one file to materialize into a project.
type FileInput struct {
	Path     string
	Content  string
	Language string
}

// record pairs a project with the mutex guarding its mutable fields.
type record struct {
	mu      sync.Mutex
	project *models.Project
}

// Store is the in-memory project registry plus its on-disk mirror.
type Store struct {
	mu      sync.RWMutex
	ordered []*record // most-recently-created first
	byID    map[string]*record

	root     string
	eventBus bus.EventBus
	logger   *logger.Logger
}

// NewStore creates a project store rooted at the given workspace directory,
// creating it if needed.
func NewStore(root string, eventBus bus.EventBus, log *logger.Logger) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, apperrors.IOError(fmt.Sprintf("failed to create workspace root %s", root), err)
	}
	return &Store{
		byID:     make(map[string]*record),
		root:     root,
		eventBus: eventBus,
		logger:   log.WithFields(zap.String("component", "project-store")),
	}, nil
}

// Root returns the workspace root directory.
func (s *Store) Root() string {
	return s.root
}

// CreateOrUpdate materializes parsed file edits. With a non-empty projectID it
// upserts each file into the existing project (replace on matching path,
// append otherwise); with an empty projectID it creates a new project whose
// name derives from the prompt and whose language is chosen by priority over
// the file languages present.
//
// File writes are best-effort: a file whose path fails containment checks or
// whose write fails is logged and skipped, already-written files are kept.
func (s *Store) CreateOrUpdate(ctx context.Context, files []FileInput, prompt string, projectID string) (*models.Project, error) {
	if projectID != "" {
		return s.updateExisting(ctx, files, projectID)
	}
	return s.createNew(ctx, files, prompt)
}

func (s *Store) createNew(ctx context.Context, files []FileInput, prompt string) (*models.Project, error) {
	name := stringutil.Slugify(prompt, 4)
	if name == "" {
		name = defaultProjectName
	}

	id := uuid.New().String()
	dir := filepath.Join(s.root, fmt.Sprintf("%s-%s", name, id[:8]))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, apperrors.IOError(fmt.Sprintf("failed to create project directory %s", dir), err)
	}

	proj := &models.Project{
		ID:          id,
		Name:        name,
		Description: stringutil.TruncateStringWithEllipsis(strings.TrimSpace(prompt), 200),
		Language:    primaryLanguage(files),
		Status:      models.StatusCreated,
		CreatedAt:   time.Now().UTC(),
		Path:        dir,
	}

	rec := &record{project: proj}
	s.writeFiles(rec, files)
	if len(proj.Files) > 0 {
		proj.CurrentFile = proj.Files[0].Path
	}

	s.mu.Lock()
	// Most-recent-first ordering is part of the listing contract.
	s.ordered = append([]*record{rec}, s.ordered...)
	s.byID[id] = rec
	s.mu.Unlock()

	s.logger.Info("project created",
		zap.String("project_id", id),
		zap.String("name", name),
		zap.String("language", proj.Language),
		zap.Int("files", len(proj.Files)))
	s.publish(ctx, events.ProjectCreated, proj.ID, map[string]interface{}{
		"name":     proj.Name,
		"language": proj.Language,
	})

	return proj.Clone(), nil
}

func (s *Store) updateExisting(ctx context.Context, files []FileInput, projectID string) (*models.Project, error) {
	rec, ok := s.get(projectID)
	if !ok {
		return nil, apperrors.NotFound("project", projectID)
	}

	s.writeFiles(rec, files)

	rec.mu.Lock()
	clone := rec.project.Clone()
	rec.mu.Unlock()

	s.publish(ctx, events.ProjectUpdated, projectID, map[string]interface{}{
		"files": len(files),
	})
	return clone, nil
}

// writeFiles upserts each input into the record's file list and mirrors it to
// disk, creating intermediate directories as needed.
func (s *Store) writeFiles(rec *record, files []FileInput) {
	for _, f := range files {
		rel, err := sanitizeRelPath(f.Path)
		if err != nil {
			s.logger.Warn("rejected file path", zap.String("path", f.Path), zap.Error(err))
			continue
		}

		rec.mu.Lock()
		abs := filepath.Join(rec.project.Path, filepath.FromSlash(rel))
		rec.mu.Unlock()

		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			s.logger.Error("failed to create directory", zap.String("path", abs), zap.Error(err))
			continue
		}
		if err := os.WriteFile(abs, []byte(f.Content), 0o644); err != nil {
			s.logger.Error("failed to write file", zap.String("path", abs), zap.Error(err))
			continue
		}

		rec.mu.Lock()
		if existing := rec.project.File(rel); existing != nil {
			existing.Content = f.Content
			existing.Language = f.Language
		} else {
			rec.project.Files = append(rec.project.Files, models.ProjectFile{
				Name:     path.Base(rel),
				Path:     rel,
				Content:  f.Content,
				Language: f.Language,
			})
		}
		rec.mu.Unlock()
	}
}

// Get returns a deep copy of the project.
func (s *Store) Get(projectID string) (*models.Project, error) {
	rec, ok := s.get(projectID)
	if !ok {
		return nil, apperrors.NotFound("project", projectID)
	}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return rec.project.Clone(), nil
}

// List returns all projects, most-recently-created first.
func (s *Store) List() []*models.Project {
	s.mu.RLock()
	recs := make([]*record, len(s.ordered))
	copy(recs, s.ordered)
	s.mu.RUnlock()

	out := make([]*models.Project, 0, len(recs))
	for _, rec := range recs {
		rec.mu.Lock()
		out = append(out, rec.project.Clone())
		rec.mu.Unlock()
	}
	return out
}

// GetFile reads the current on-disk content of a project file.
func (s *Store) GetFile(projectID, filePath string) (string, error) {
	rec, ok := s.get(projectID)
	if !ok {
		return "", apperrors.NotFound("project", projectID)
	}
	rel, err := sanitizeRelPath(filePath)
	if err != nil {
		return "", apperrors.ValidationError("filePath", err.Error())
	}

	rec.mu.Lock()
	abs := filepath.Join(rec.project.Path, filepath.FromSlash(rel))
	rec.mu.Unlock()

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return "", apperrors.NotFound("file", filePath)
		}
		return "", apperrors.IOError(fmt.Sprintf("failed to read %s", filePath), err)
	}
	return string(data), nil
}

// UpdateFile writes new content for a project file to disk and refreshes the
// in-memory mirror. A path that is not yet tracked in memory is still written
// to disk but not added to the file list; only agent-materialized files enter
// the listing.
func (s *Store) UpdateFile(projectID, filePath, content string) error {
	rec, ok := s.get(projectID)
	if !ok {
		return apperrors.NotFound("project", projectID)
	}
	rel, err := sanitizeRelPath(filePath)
	if err != nil {
		return apperrors.ValidationError("filePath", err.Error())
	}

	rec.mu.Lock()
	abs := filepath.Join(rec.project.Path, filepath.FromSlash(rel))
	rec.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return apperrors.IOError(fmt.Sprintf("failed to create directory for %s", filePath), err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		return apperrors.IOError(fmt.Sprintf("failed to write %s", filePath), err)
	}

	rec.mu.Lock()
	if existing := rec.project.File(rel); existing != nil {
		existing.Content = content
	}
	rec.mu.Unlock()

	s.publish(context.Background(), events.ProjectUpdated, projectID, map[string]interface{}{
		"file": rel,
	})
	return nil
}

// Delete removes a project from the registry. The caller is responsible for
// stopping any running process first; the on-disk directory is left in place.
func (s *Store) Delete(ctx context.Context, projectID string) error {
	s.mu.Lock()
	rec, ok := s.byID[projectID]
	if !ok {
		s.mu.Unlock()
		return apperrors.NotFound("project", projectID)
	}
	delete(s.byID, projectID)
	for i, r := range s.ordered {
		if r == rec {
			s.ordered = append(s.ordered[:i], s.ordered[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.logger.Info("project deleted", zap.String("project_id", projectID))
	s.publish(ctx, events.ProjectDeleted, projectID, nil)
	return nil
}

// SetRuntimeState records the status and port assigned by the process
// supervisor. Port 0 leaves the previously assigned port untouched.
func (s *Store) SetRuntimeState(projectID string, status models.ProjectStatus, port int) error {
	rec, ok := s.get(projectID)
	if !ok {
		return apperrors.NotFound("project", projectID)
	}

	rec.mu.Lock()
	rec.project.Status = status
	if port > 0 {
		rec.project.Port = port
	}
	rec.mu.Unlock()

	s.publish(context.Background(), events.ProjectStatusChanged, projectID, map[string]interface{}{
		"status": string(status),
		"port":   port,
	})
	return nil
}

// SetStatus records a status transition without touching the port.
func (s *Store) SetStatus(projectID string, status models.ProjectStatus) error {
	return s.SetRuntimeState(projectID, status, 0)
}

// AppendOutput appends captured process output to the project's log. The log
// grows without bound for the project's lifetime; this mirrors the append-only
// contract of lastOutput.
func (s *Store) AppendOutput(projectID, text string) {
	rec, ok := s.get(projectID)
	if !ok {
		return
	}

	rec.mu.Lock()
	rec.project.LastOutput += text
	rec.mu.Unlock()

	s.publish(context.Background(), events.ProjectOutput, projectID, map[string]interface{}{
		"data": text,
	})
}

// Reset clears the registry. Intended for tests.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ordered = nil
	s.byID = make(map[string]*record)
}

func (s *Store) get(projectID string) (*record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[projectID]
	return rec, ok
}

func (s *Store) publish(ctx context.Context, eventType, projectID string, data map[string]interface{}) {
	if s.eventBus == nil {
		return
	}
	if data == nil {
		data = map[string]interface{}{}
	}
	data["project_id"] = projectID
	if err := s.eventBus.Publish(ctx, eventType, bus.NewEvent(eventType, "project-store", data)); err != nil {
		s.logger.Warn("failed to publish event", zap.String("type", eventType), zap.Error(err))
	}
}

// primaryLanguage picks the project language by fixed priority over the file
// languages present: typescript beats javascript beats python; anything else
// defaults to javascript.
func primaryLanguage(files []FileInput) string {
	present := make(map[string]bool, len(files))
	for _, f := range files {
		present[f.Language] = true
	}
	switch {
	case present[models.LangTypeScript]:
		return models.LangTypeScript
	case present[models.LangJavaScript]:
		return models.LangJavaScript
	case present[models.LangPython]:
		return models.LangPython
	default:
		return models.LangJavaScript
	}
}

// sanitizeRelPath normalizes a project-relative file path and rejects
// anything that could escape the project directory.
func sanitizeRelPath(p string) (string, error) {
	rel := strings.TrimSpace(filepath.ToSlash(p))
	if rel == "" {
		return "", fmt.Errorf("empty path")
	}
	if strings.HasPrefix(rel, "/") || filepath.IsAbs(p) {
		return "", fmt.Errorf("absolute path not allowed: %s", p)
	}
	clean := path.Clean(rel)
	if clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("path escapes project root: %s", p)
	}
	return clean, nil
}
