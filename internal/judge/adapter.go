package judge

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/noah-isme/uva-judge/pkg/process"
)

const (
	defaultOutputFlag     = "/out:"
	defaultCompileTimeout = 30 * time.Second
)

// ErrCompileFailed is wrapped by every compilation failure.
var ErrCompileFailed = errors.New("compilation failed")

// Kind selects how a language turns a staged source into a runnable command.
type Kind string

const (
	KindInterpreted Kind = "interpreted"
	KindCompiled    Kind = "compiled"
)

// Adapter prepares a staged source and describes how to run it.
type Adapter interface {
	Compile(ctx context.Context, stagedPath string) error
	RunCommand(stagedPath string) []string
}

// CompileFailure carries the compiler diagnostics of a failed build.
type CompileFailure struct {
	ExitCode int
	Output   string
	TimedOut bool
}

func (e *CompileFailure) Error() string {
	return fmt.Sprintf("compiler exited with status %d", e.ExitCode)
}

func (e *CompileFailure) Unwrap() error {
	return ErrCompileFailed
}

// Registry maps normalized language identifiers to adapter kinds.
type Registry struct {
	mu    sync.RWMutex
	kinds map[string]Kind
}

// NewRegistry returns a registry with the built-in languages.
func NewRegistry() *Registry {
	return &Registry{kinds: map[string]Kind{
		"python2": KindInterpreted,
		"python3": KindInterpreted,
		"c_sharp": KindCompiled,
	}}
}

// Register adds or replaces the adapter kind for a language.
func (r *Registry) Register(language string, kind Kind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.kinds[language] = kind
}

// Kind looks up the adapter kind for a normalized language.
func (r *Registry) Kind(language string) (Kind, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	kind, ok := r.kinds[language]
	return kind, ok
}

// Adapter builds the adapter for a configured language.
func (r *Registry) Adapter(def LanguageDefinition, runner process.Runner, compileTimeout time.Duration) (Adapter, error) {
	kind, ok := r.Kind(def.Name)
	if !ok {
		return nil, fmt.Errorf("language %q has no adapter", def.Name)
	}

	switch kind {
	case KindInterpreted:
		return &interpretedAdapter{interpreter: def.Path}, nil
	case KindCompiled:
		if compileTimeout <= 0 {
			compileTimeout = defaultCompileTimeout
		}
		flag := def.OutputFlag
		if flag == "" {
			flag = defaultOutputFlag
		}
		return &compiledAdapter{
			compiler:   def.Path,
			args:       def.Args,
			outputFlag: flag,
			launcher:   def.Launcher,
			runner:     runner,
			timeout:    compileTimeout,
		}, nil
	default:
		return nil, fmt.Errorf("unknown adapter kind %q", kind)
	}
}

type interpretedAdapter struct {
	interpreter string
}

func (a *interpretedAdapter) Compile(context.Context, string) error {
	return nil
}

func (a *interpretedAdapter) RunCommand(stagedPath string) []string {
	return []string{a.interpreter, stagedPath}
}

type compiledAdapter struct {
	compiler   string
	args       []string
	outputFlag string
	launcher   string
	runner     process.Runner
	timeout    time.Duration
}

func (a *compiledAdapter) Compile(ctx context.Context, stagedPath string) error {
	argv := make([]string, 0, len(a.args)+3)
	argv = append(argv, a.compiler, a.outputFlag+executablePath(stagedPath))
	argv = append(argv, a.args...)
	argv = append(argv, stagedPath)

	result, err := a.runner.Run(ctx, process.Request{
		Args:    argv,
		Dir:     filepath.Dir(stagedPath),
		Timeout: a.timeout,
		Label:   "compile",
	})
	if err != nil {
		switch {
		case errors.Is(err, process.ErrTimedOut):
			return &CompileFailure{ExitCode: -1, Output: fmt.Sprintf("compilation exceeded %s", a.timeout), TimedOut: true}
		case errors.Is(err, process.ErrStartFailed):
			return fmt.Errorf("%w: compiler: %v", ErrConfiguration, err)
		case ctx.Err() != nil:
			return ctx.Err()
		}
		return fmt.Errorf("%w: %v", ErrCompileFailed, err)
	}

	if result.ExitCode != 0 {
		output := string(result.Stderr)
		if strings.TrimSpace(output) == "" {
			output = string(result.Stdout)
		}
		return &CompileFailure{ExitCode: result.ExitCode, Output: output}
	}
	return nil
}

func (a *compiledAdapter) RunCommand(stagedPath string) []string {
	if a.launcher != "" {
		return []string{a.launcher, executablePath(stagedPath)}
	}
	return []string{executablePath(stagedPath)}
}

// executablePath swaps the source extension for the platform executable one.
func executablePath(stagedPath string) string {
	out := strings.TrimSuffix(stagedPath, filepath.Ext(stagedPath)) + executableExtension()
	if out == stagedPath {
		out += ".out"
	}
	return out
}

func executableExtension() string {
	if runtime.GOOS == "windows" {
		return ".exe"
	}
	return ""
}
