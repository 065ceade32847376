package store

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/appforge/appforge/internal/common/errors"
	"github.com/appforge/appforge/internal/common/logger"
	"github.com/appforge/appforge/internal/project/models"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	s, err := NewStore(t.TempDir(), nil, log)
	require.NoError(t, err)
	return s
}

func TestCreateProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.CreateOrUpdate(ctx, []FileInput{
		{Path: "index.js", Content: "console.log(1)", Language: "javascript"},
	}, "counter app", "")
	require.NoError(t, err)

	assert.Equal(t, "counter-app", proj.Name)
	assert.Equal(t, models.LangJavaScript, proj.Language)
	assert.Equal(t, models.StatusCreated, proj.Status)
	require.Len(t, proj.Files, 1)
	assert.Equal(t, "index.js", proj.Files[0].Path)
	assert.Equal(t, "index.js", proj.CurrentFile)

	data, err := os.ReadFile(filepath.Join(proj.Path, "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "console.log(1)", string(data))
}

func TestCreateProject_NameFallback(t *testing.T) {
	s := newTestStore(t)

	proj, err := s.CreateOrUpdate(context.Background(), []FileInput{
		{Path: "main.py", Content: "print(1)", Language: "python"},
	}, "!!! ???", "")
	require.NoError(t, err)
	assert.Equal(t, "untitled-app", proj.Name)
	assert.Equal(t, models.LangPython, proj.Language)
}

func TestCreateProject_LanguagePriority(t *testing.T) {
	s := newTestStore(t)

	proj, err := s.CreateOrUpdate(context.Background(), []FileInput{
		{Path: "main.py", Content: "print(1)", Language: "python"},
		{Path: "app.ts", Content: "export {}", Language: "typescript"},
		{Path: "index.js", Content: "1", Language: "javascript"},
	}, "mixed", "")
	require.NoError(t, err)
	assert.Equal(t, models.LangTypeScript, proj.Language)
}

func TestUpdateExisting_UpsertByPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.CreateOrUpdate(ctx, []FileInput{
		{Path: "index.js", Content: "v1", Language: "javascript"},
	}, "app", "")
	require.NoError(t, err)

	updated, err := s.CreateOrUpdate(ctx, []FileInput{
		{Path: "index.js", Content: "v2", Language: "javascript"},
		{Path: "util.js", Content: "helpers", Language: "javascript"},
	}, "", proj.ID)
	require.NoError(t, err)

	require.Len(t, updated.Files, 2)
	assert.Equal(t, "v2", updated.Files[0].Content)
	assert.Equal(t, "util.js", updated.Files[1].Path)

	data, err := os.ReadFile(filepath.Join(proj.Path, "index.js"))
	require.NoError(t, err)
	assert.Equal(t, "v2", string(data))
}

func TestUpdateExisting_NotFound(t *testing.T) {
	s := newTestStore(t)

	_, err := s.CreateOrUpdate(context.Background(), nil, "", "missing")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestList_MostRecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateOrUpdate(ctx, []FileInput{{Path: "a.js", Content: "a", Language: "javascript"}}, "first app", "")
	require.NoError(t, err)
	second, err := s.CreateOrUpdate(ctx, []FileInput{{Path: "b.js", Content: "b", Language: "javascript"}}, "second app", "")
	require.NoError(t, err)

	list := s.List()
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
}

func TestGetFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.CreateOrUpdate(ctx, []FileInput{
		{Path: "src/app.js", Content: "nested", Language: "javascript"},
	}, "app", "")
	require.NoError(t, err)

	content, err := s.GetFile(proj.ID, "src/app.js")
	require.NoError(t, err)
	assert.Equal(t, "nested", content)

	_, err = s.GetFile(proj.ID, "missing.js")
	assert.True(t, apperrors.IsNotFound(err))

	_, err = s.GetFile("nope", "src/app.js")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestUpdateFile(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.CreateOrUpdate(ctx, []FileInput{
		{Path: "index.js", Content: "v1", Language: "javascript"},
	}, "app", "")
	require.NoError(t, err)

	require.NoError(t, s.UpdateFile(proj.ID, "index.js", "v2"))

	got, err := s.Get(proj.ID)
	require.NoError(t, err)
	assert.Equal(t, "v2", got.Files[0].Content)

	// An untracked path still lands on disk but is not added to the listing.
	require.NoError(t, s.UpdateFile(proj.ID, "notes.txt", "hi"))
	got, err = s.Get(proj.ID)
	require.NoError(t, err)
	assert.Len(t, got.Files, 1)
	data, err := os.ReadFile(filepath.Join(proj.Path, "notes.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hi", string(data))
}

func TestPathTraversalRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.CreateOrUpdate(ctx, []FileInput{
		{Path: "../escape.js", Content: "nope", Language: "javascript"},
		{Path: "/etc/passwd", Content: "nope", Language: "text"},
		{Path: "ok.js", Content: "fine", Language: "javascript"},
	}, "app", "")
	require.NoError(t, err)

	// Only the contained path is materialized.
	require.Len(t, proj.Files, 1)
	assert.Equal(t, "ok.js", proj.Files[0].Path)

	_, err = os.Stat(filepath.Join(proj.Path, "..", "escape.js"))
	assert.True(t, os.IsNotExist(err))

	err = s.UpdateFile(proj.ID, "../../x", "nope")
	assert.True(t, apperrors.IsBadRequest(err))
	_, err = s.GetFile(proj.ID, "../secret")
	assert.True(t, apperrors.IsBadRequest(err))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.CreateOrUpdate(ctx, []FileInput{
		{Path: "index.js", Content: "1", Language: "javascript"},
	}, "app", "")
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, proj.ID))
	assert.Empty(t, s.List())

	_, err = s.GetFile(proj.ID, "index.js")
	assert.True(t, apperrors.IsNotFound(err))
	assert.True(t, apperrors.IsNotFound(s.Delete(ctx, proj.ID)))
}

func TestConcurrentDisjointUpdates(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.CreateOrUpdate(ctx, []FileInput{
		{Path: "index.js", Content: "base", Language: "javascript"},
	}, "app", "")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, _ = s.CreateOrUpdate(ctx, []FileInput{{Path: "a.js", Content: "a", Language: "javascript"}}, "", proj.ID)
	}()
	go func() {
		defer wg.Done()
		_, _ = s.CreateOrUpdate(ctx, []FileInput{{Path: "b.js", Content: "b", Language: "javascript"}}, "", proj.ID)
	}()
	wg.Wait()

	got, err := s.Get(proj.ID)
	require.NoError(t, err)
	paths := make(map[string]bool)
	for _, f := range got.Files {
		paths[f.Path] = true
	}
	assert.True(t, paths["a.js"], "edit a.js lost")
	assert.True(t, paths["b.js"], "edit b.js lost")
}

func TestRuntimeStateAndOutput(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	proj, err := s.CreateOrUpdate(ctx, []FileInput{
		{Path: "index.js", Content: "1", Language: "javascript"},
	}, "app", "")
	require.NoError(t, err)

	require.NoError(t, s.SetRuntimeState(proj.ID, models.StatusRunning, 3001))
	s.AppendOutput(proj.ID, "hello\n")
	s.AppendOutput(proj.ID, "world\n")

	got, err := s.Get(proj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRunning, got.Status)
	assert.Equal(t, 3001, got.Port)
	assert.Equal(t, "hello\nworld\n", got.LastOutput)

	// Port 0 keeps the existing assignment.
	require.NoError(t, s.SetStatus(proj.ID, models.StatusStopped))
	got, err = s.Get(proj.ID)
	require.NoError(t, err)
	assert.Equal(t, 3001, got.Port)
}
