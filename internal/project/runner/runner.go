// Package runner supervises one child process per project: it spawns the
// project's toolchain command, assigns a sequential port, captures merged
// stdout/stderr into the project's output log, and terminates process groups
// on stop.
package runner

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	apperrors "github.com/appforge/appforge/internal/common/errors"
	"github.com/appforge/appforge/internal/common/logger"
	"github.com/appforge/appforge/internal/project/models"
	"github.com/appforge/appforge/internal/project/store"
)

// child tracks a single spawned project process.
type child struct {
	projectID string
	port      int
	cmd       *exec.Cmd
	log       *logger.Logger

	stopOnce   sync.Once
	stopSignal chan struct{} // closed when a stop was requested
	done       chan struct{} // closed by wait() after the process exits
}

func (c *child) requestStop() {
	c.stopOnce.Do(func() { close(c.stopSignal) })
}

func (c *child) stopRequested() bool {
	select {
	case <-c.stopSignal:
		return true
	default:
		return false
	}
}

// Supervisor manages at most one child process per project.
type Supervisor struct {
	store  *store.Store
	ports  *PortAllocator
	logger *logger.Logger

	startupGrace time.Duration
	stopTimeout  time.Duration

	mu       sync.Mutex
	children map[string]*child
	// Serializes the stop-spawn-register window of Start (and Stop itself)
	// per project, so concurrent requests can never leave two live children
	// for the same project id.
	locks map[string]*sync.Mutex
}

// NewSupervisor creates a supervisor allocating ports from basePort upward.
// startupGrace is how long Start watches a fresh process before declaring it
// running; stopTimeout bounds the SIGTERM phase before SIGKILL.
func NewSupervisor(st *store.Store, basePort int, startupGrace, stopTimeout time.Duration, log *logger.Logger) *Supervisor {
	if startupGrace <= 0 {
		startupGrace = 1500 * time.Millisecond
	}
	if stopTimeout <= 0 {
		stopTimeout = 2 * time.Second
	}
	return &Supervisor{
		store:        st,
		ports:        NewPortAllocator(basePort),
		logger:       log.WithFields(zap.String("component", "process-supervisor")),
		startupGrace: startupGrace,
		stopTimeout:  stopTimeout,
		children:     make(map[string]*child),
		locks:        make(map[string]*sync.Mutex),
	}
}

// projectLock returns the mutex serializing start/stop for one project.
func (s *Supervisor) projectLock(projectID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[projectID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[projectID] = l
	}
	return l
}

// Start launches the project's process. Any previous process for the same
// project is stopped first, so a project never has two children at once. The
// new process gets a fresh port via the PORT environment variable.
func (s *Supervisor) Start(ctx context.Context, projectID string) (*models.Project, error) {
	l := s.projectLock(projectID)
	l.Lock()
	defer l.Unlock()

	proj, err := s.store.Get(projectID)
	if err != nil {
		return nil, err
	}

	if err := s.stopLocked(ctx, projectID); err != nil && !apperrors.IsNotFound(err) {
		return nil, err
	}

	argv, err := commandFor(proj)
	if err != nil {
		return nil, err
	}

	port := s.ports.Next()
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = proj.Path
	cmd.Env = append(os.Environ(), fmt.Sprintf("PORT=%d", port))
	// New process group so Stop can take down the whole subprocess tree.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, apperrors.SpawnError("failed to attach stdout", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, apperrors.SpawnError("failed to attach stderr", err)
	}

	s.store.AppendOutput(projectID, fmt.Sprintf("$ %s (PORT=%d)\n", strings.Join(argv, " "), port))

	if err := cmd.Start(); err != nil {
		_ = s.store.SetStatus(projectID, models.StatusError)
		s.store.AppendOutput(projectID, fmt.Sprintf("failed to start: %v\n", err))
		return nil, apperrors.SpawnError(fmt.Sprintf("failed to start %s", argv[0]), err)
	}

	c := &child{
		projectID:  projectID,
		port:       port,
		cmd:        cmd,
		log:        s.logger.WithProjectID(projectID),
		stopSignal: make(chan struct{}),
		done:       make(chan struct{}),
	}

	s.mu.Lock()
	s.children[projectID] = c
	s.mu.Unlock()

	go s.readOutput(c, stdout)
	go s.readOutput(c, stderr)
	go s.wait(c)

	c.log.Info("process started",
		zap.Int("port", port),
		zap.Int("pid", cmd.Process.Pid))

	// Watch the process briefly: a command that dies within the grace window
	// is a launch failure, not a running app.
	select {
	case <-c.done:
		proj, _ := s.store.Get(projectID)
		msg := fmt.Sprintf("%s exited during startup", argv[0])
		if proj != nil && proj.Status == models.StatusError {
			return nil, apperrors.SpawnError(msg, nil)
		}
		// Exit 0 within the grace window still means nothing is serving.
		_ = s.store.SetStatus(projectID, models.StatusError)
		return nil, apperrors.SpawnError(msg, nil)
	case <-time.After(s.startupGrace):
	case <-ctx.Done():
	}

	if err := s.store.SetRuntimeState(projectID, models.StatusRunning, port); err != nil {
		return nil, err
	}
	return s.store.Get(projectID)
}

// Stop terminates the project's process group, SIGTERM first and SIGKILL
// after the stop timeout, then waits for the exit to be reaped. Stopping a
// project with no live process only records the stopped status.
func (s *Supervisor) Stop(ctx context.Context, projectID string) error {
	l := s.projectLock(projectID)
	l.Lock()
	defer l.Unlock()
	return s.stopLocked(ctx, projectID)
}

// stopLocked does the actual stop. The caller holds the project lock.
func (s *Supervisor) stopLocked(ctx context.Context, projectID string) error {
	if _, err := s.store.Get(projectID); err != nil {
		return err
	}

	s.mu.Lock()
	c, ok := s.children[projectID]
	s.mu.Unlock()
	if !ok {
		return s.store.SetStatus(projectID, models.StatusStopped)
	}

	c.requestStop()

	if c.cmd != nil && c.cmd.Process != nil {
		pgid, pgidErr := syscall.Getpgid(c.cmd.Process.Pid)
		if pgidErr == nil {
			_ = syscall.Kill(-pgid, syscall.SIGTERM)
		} else {
			_ = c.cmd.Process.Signal(syscall.SIGTERM)
		}

		select {
		case <-c.done:
		case <-ctx.Done():
			s.kill(c, pgid, pgidErr)
		case <-time.After(s.stopTimeout):
			s.kill(c, pgid, pgidErr)
		}
	}

	// wait() removes the child and records the final status; make sure that
	// has happened before returning so callers observe a settled state.
	select {
	case <-c.done:
	case <-time.After(s.stopTimeout):
	}
	return nil
}

func (s *Supervisor) kill(c *child, pgid int, pgidErr error) {
	if pgidErr == nil {
		_ = syscall.Kill(-pgid, syscall.SIGKILL)
	} else {
		_ = c.cmd.Process.Kill()
	}
}

// StopAll stops every supervised process in parallel. Used during server
// shutdown, where waiting out each stop timeout sequentially would be too
// slow.
func (s *Supervisor) StopAll(ctx context.Context) error {
	s.mu.Lock()
	ids := make([]string, 0, len(s.children))
	for id := range s.children {
		ids = append(ids, id)
	}
	s.mu.Unlock()

	g, ctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		id := id
		g.Go(func() error {
			return s.Stop(ctx, id)
		})
	}
	return g.Wait()
}

// IsRunning reports whether the project currently has a live child process.
func (s *Supervisor) IsRunning(projectID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.children[projectID]
	return ok
}

func (s *Supervisor) readOutput(c *child, reader io.ReadCloser) {
	defer func() { _ = reader.Close() }()
	buf := bufio.NewReader(reader)
	for {
		data := make([]byte, 4096)
		n, err := buf.Read(data)
		if n > 0 {
			s.store.AppendOutput(c.projectID, string(data[:n]))
		}
		if err != nil {
			if err != io.EOF {
				c.log.Debug("process output read error", zap.Error(err))
			}
			return
		}
	}
}

// wait reaps the process and owns its final status: stopped after a requested
// stop or a clean exit, error after an unexpected non-zero exit.
func (s *Supervisor) wait(c *child) {
	err := c.cmd.Wait()

	s.mu.Lock()
	if s.children[c.projectID] == c {
		delete(s.children, c.projectID)
	}
	s.mu.Unlock()

	status := models.StatusStopped
	switch {
	case c.stopRequested():
		s.store.AppendOutput(c.projectID, "process stopped\n")
	case err != nil:
		status = models.StatusError
		s.store.AppendOutput(c.projectID, fmt.Sprintf("process exited: %v\n", err))
	default:
		s.store.AppendOutput(c.projectID, "process exited\n")
	}
	_ = s.store.SetStatus(c.projectID, status)

	c.log.Info("process exited",
		zap.String("status", string(status)),
		zap.Error(err))

	close(c.done)
}

// commandFor picks the toolchain invocation for a project. JavaScript projects
// with a package.json run through npm so their declared start script wins;
// everything else executes the entry file directly.
func commandFor(proj *models.Project) ([]string, error) {
	entry := entryFile(proj)

	switch proj.Language {
	case models.LangJavaScript:
		if _, err := os.Stat(filepath.Join(proj.Path, "package.json")); err == nil {
			return []string{"npm", "start"}, nil
		}
		if entry == "" {
			return nil, apperrors.BadRequest("project has no entry file to run")
		}
		return []string{"node", entry}, nil
	case models.LangTypeScript:
		if entry == "" {
			return nil, apperrors.BadRequest("project has no entry file to run")
		}
		return []string{"npx", "tsx", entry}, nil
	case models.LangPython:
		if entry == "" {
			return nil, apperrors.BadRequest("project has no entry file to run")
		}
		return []string{"python3", entry}, nil
	default:
		return nil, apperrors.BadRequest(fmt.Sprintf("unsupported project language: %s", proj.Language))
	}
}

// entryFile prefers a file named like an entry point (index.*, main.*, app.*),
// then the project's current file, then the first file.
func entryFile(proj *models.Project) string {
	for _, prefix := range []string{"index.", "main.", "app."} {
		for _, f := range proj.Files {
			if strings.HasPrefix(strings.ToLower(filepath.Base(f.Path)), prefix) {
				return f.Path
			}
		}
	}
	if proj.CurrentFile != "" {
		return proj.CurrentFile
	}
	if len(proj.Files) > 0 {
		return proj.Files[0].Path
	}
	return ""
}
