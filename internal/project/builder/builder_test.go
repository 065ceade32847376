package builder

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/appforge/appforge/internal/common/errors"
	"github.com/appforge/appforge/internal/common/logger"
	"github.com/appforge/appforge/internal/project/models"
	"github.com/appforge/appforge/internal/project/runner"
	"github.com/appforge/appforge/internal/project/store"
)

func newTestBuilder(t *testing.T) (*Builder, *store.Store) {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json", OutputPath: "stdout"})
	require.NoError(t, err)
	st, err := store.NewStore(t.TempDir(), nil, log)
	require.NoError(t, err)
	sup := runner.NewSupervisor(st, 5001, 100*time.Millisecond, time.Second, log)
	return NewBuilder(st, sup, time.Minute, log), st
}

func TestBuild_NoManifest(t *testing.T) {
	b, st := newTestBuilder(t)
	ctx := context.Background()

	proj, err := st.CreateOrUpdate(ctx, []store.FileInput{
		{Path: "index.js", Content: "console.log(1)", Language: "javascript"},
	}, "app", "")
	require.NoError(t, err)

	built, err := b.Build(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, built.Status)
	assert.Contains(t, built.LastOutput, "nothing to install")
}

func TestBuild_UnknownProject(t *testing.T) {
	b, _ := newTestBuilder(t)
	_, err := b.Build(context.Background(), "nope")
	assert.True(t, apperrors.IsNotFound(err))
}

func TestBuild_PythonWithoutRequirements(t *testing.T) {
	b, st := newTestBuilder(t)
	ctx := context.Background()

	proj, err := st.CreateOrUpdate(ctx, []store.FileInput{
		{Path: "main.py", Content: "print(1)", Language: "python"},
	}, "app", "")
	require.NoError(t, err)

	built, err := b.Build(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCreated, built.Status)
}

func TestInstallCommandFor(t *testing.T) {
	dir := t.TempDir()

	js := &models.Project{Language: models.LangJavaScript, Path: dir}
	assert.Nil(t, installCommandFor(js))

	writeManifest(t, dir, "package.json", `{"name":"app"}`)
	assert.Equal(t, []string{"npm", "install"}, installCommandFor(js))

	ts := &models.Project{Language: models.LangTypeScript, Path: dir}
	assert.Equal(t, []string{"npm", "install"}, installCommandFor(ts))

	pyDir := t.TempDir()
	py := &models.Project{Language: models.LangPython, Path: pyDir}
	assert.Nil(t, installCommandFor(py))
	writeManifest(t, pyDir, "requirements.txt", "flask\n")
	assert.Equal(t, []string{"pip", "install", "-r", "requirements.txt"}, installCommandFor(py))
}

func writeManifest(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestStop_WithoutRun(t *testing.T) {
	b, st := newTestBuilder(t)
	ctx := context.Background()

	proj, err := st.CreateOrUpdate(ctx, []store.FileInput{
		{Path: "index.js", Content: "1", Language: "javascript"},
	}, "app", "")
	require.NoError(t, err)

	stopped, err := b.Stop(ctx, proj.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusStopped, stopped.Status)
}
