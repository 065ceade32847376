// Package builder orchestrates project builds and run lifecycle transitions.
// A build resolves dependencies with the language's package manager; running
// and stopping delegate to the process supervisor.
package builder

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	apperrors "github.com/appforge/appforge/internal/common/errors"
	"github.com/appforge/appforge/internal/common/logger"
	"github.com/appforge/appforge/internal/project/models"
	"github.com/appforge/appforge/internal/project/runner"
	"github.com/appforge/appforge/internal/project/store"
)

const restartDelay = 500 * time.Millisecond

// Builder runs dependency installation and drives run/stop/restart through
// the supervisor.
type Builder struct {
	store          *store.Store
	supervisor     *runner.Supervisor
	installTimeout time.Duration
	logger         *logger.Logger
}

// NewBuilder creates a builder. installTimeout bounds a single package-manager
// invocation.
func NewBuilder(st *store.Store, sup *runner.Supervisor, installTimeout time.Duration, log *logger.Logger) *Builder {
	if installTimeout <= 0 {
		installTimeout = 5 * time.Minute
	}
	return &Builder{
		store:          st,
		supervisor:     sup,
		installTimeout: installTimeout,
		logger:         log.WithFields(zap.String("component", "builder")),
	}
}

// Build resolves the project's dependencies. A project without a manifest
// (package.json or requirements.txt) has nothing to install and the build is
// a no-op that still transitions the status.
//
// A failed install is an outcome, not an error: the installer's output and
// exit code land in the project log and the status becomes error, but Build
// returns the project rather than failing the request. Only a project lookup
// failure or an installer that cannot be spawned at all is returned as an
// error.
func (b *Builder) Build(ctx context.Context, projectID string) (*models.Project, error) {
	proj, err := b.store.Get(projectID)
	if err != nil {
		return nil, err
	}

	argv := installCommandFor(proj)
	if argv == nil {
		b.store.AppendOutput(projectID, "nothing to install\n")
		_ = b.store.SetStatus(projectID, models.StatusCreated)
		return b.store.Get(projectID)
	}

	if err := b.store.SetStatus(projectID, models.StatusBuilding); err != nil {
		return nil, err
	}
	b.store.AppendOutput(projectID, fmt.Sprintf("$ %s\n", strings.Join(argv, " ")))

	installCtx, cancel := context.WithTimeout(ctx, b.installTimeout)
	defer cancel()

	cmd := exec.CommandContext(installCtx, argv[0], argv[1:]...)
	cmd.Dir = proj.Path
	out, runErr := cmd.CombinedOutput()
	if len(out) > 0 {
		b.store.AppendOutput(projectID, string(out))
	}

	if runErr != nil {
		if _, ok := runErr.(*exec.ExitError); ok || installCtx.Err() != nil {
			b.store.AppendOutput(projectID, fmt.Sprintf("build failed: %v\n", runErr))
			_ = b.store.SetStatus(projectID, models.StatusError)
			b.logger.Warn("build failed",
				zap.String("project_id", projectID), zap.Error(runErr))
			return b.store.Get(projectID)
		}
		// The installer never ran (missing binary, permission problem).
		_ = b.store.SetStatus(projectID, models.StatusError)
		return nil, apperrors.SpawnError(fmt.Sprintf("failed to run %s", argv[0]), runErr)
	}

	b.store.AppendOutput(projectID, "build succeeded\n")
	if err := b.store.SetStatus(projectID, models.StatusCreated); err != nil {
		return nil, err
	}
	b.logger.Info("build succeeded", zap.String("project_id", projectID))
	return b.store.Get(projectID)
}

// Run starts the project's process.
func (b *Builder) Run(ctx context.Context, projectID string) (*models.Project, error) {
	return b.supervisor.Start(ctx, projectID)
}

// Stop terminates the project's process if one is live.
func (b *Builder) Stop(ctx context.Context, projectID string) (*models.Project, error) {
	if err := b.supervisor.Stop(ctx, projectID); err != nil {
		return nil, err
	}
	return b.store.Get(projectID)
}

// Restart stops the project, waits briefly for the port and process group to
// settle, and starts it again on a fresh port.
func (b *Builder) Restart(ctx context.Context, projectID string) (*models.Project, error) {
	if err := b.supervisor.Stop(ctx, projectID); err != nil {
		return nil, err
	}
	select {
	case <-time.After(restartDelay):
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.supervisor.Start(ctx, projectID)
}

// installCommandFor returns the package-manager invocation for the project,
// or nil when there is no dependency manifest.
func installCommandFor(proj *models.Project) []string {
	switch proj.Language {
	case models.LangJavaScript, models.LangTypeScript:
		if fileExists(filepath.Join(proj.Path, "package.json")) {
			return []string{"npm", "install"}
		}
	case models.LangPython:
		if fileExists(filepath.Join(proj.Path, "requirements.txt")) {
			return []string{"pip", "install", "-r", "requirements.txt"}
		}
	}
	return nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
