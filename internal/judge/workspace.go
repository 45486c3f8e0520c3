package judge

import (
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog"
)

const (
	workspaceSuffixLength = 20
	workspaceAlphabet     = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var (
	// ErrConfiguration marks judge faults caused by missing or invalid configuration.
	ErrConfiguration = errors.New("judge configuration error")
	// ErrInvalidFilename is returned when a submission filename would escape the workspace.
	ErrInvalidFilename = errors.New("invalid submission filename")
)

// Workspace is a private scratch directory for one evaluation.
type Workspace struct {
	root    string
	pending sync.WaitGroup
	destroy sync.Once
	err     error
	logger  zerolog.Logger
}

// NewWorkspace creates a uniquely named directory under baseDir.
func NewWorkspace(baseDir string, logger zerolog.Logger) (*Workspace, error) {
	if strings.TrimSpace(baseDir) == "" {
		return nil, fmt.Errorf("%w: work directory is not set", ErrConfiguration)
	}

	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create work directory: %w", err)
	}

	for {
		root := filepath.Join(baseDir, randomSuffix(workspaceSuffixLength))
		err := os.Mkdir(root, 0o755)
		if err == nil {
			return &Workspace{
				root:   root,
				logger: logger.With().Str("workspace", root).Logger(),
			}, nil
		}
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		return nil, fmt.Errorf("create workspace: %w", err)
	}
}

// Root returns the absolute path of the workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// Stage writes the submission into the workspace and returns its path.
func (w *Workspace) Stage(filename string, content []byte) (string, error) {
	if err := validateFilename(filename); err != nil {
		return "", err
	}

	path := filepath.Join(w.root, filename)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("stage submission: %w", err)
	}
	return path, nil
}

// Track registers an outstanding task. Destroy blocks until every returned
// done func has been called. Calling done more than once is harmless.
func (w *Workspace) Track() (done func()) {
	w.pending.Add(1)
	var once sync.Once
	return func() {
		once.Do(w.pending.Done)
	}
}

// Destroy waits for tracked tasks and removes the directory tree. Only the
// first call does any work.
func (w *Workspace) Destroy() error {
	w.destroy.Do(func() {
		w.pending.Wait()
		if err := os.RemoveAll(w.root); err != nil {
			w.err = fmt.Errorf("remove workspace: %w", err)
			w.logger.Error().Err(err).Msg("failed to remove workspace")
		}
	})
	return w.err
}

func validateFilename(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	case strings.ContainsAny(name, `/\`), strings.ContainsRune(name, 0):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidFilename, name)
	case filepath.Base(name) != name:
		return fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}
	return nil
}

func randomSuffix(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(workspaceAlphabet[rand.IntN(len(workspaceAlphabet))])
	}
	return sb.String()
}
