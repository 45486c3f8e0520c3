package repository

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/go-playground/validator/v10"
	"github.com/klauspost/compress/zstd"
	"github.com/pelletier/go-toml/v2"
	"github.com/puzpuzpuz/xsync/v3"
	"gopkg.in/yaml.v3"

	"github.com/noah-isme/uva-judge/internal/judge"
)

const (
	defaultTimeLimit = 3 * time.Second
	compressedSuffix = ".zst"
)

var (
	// ErrProblemNotFound is returned when no definition file exists for an id.
	ErrProblemNotFound = errors.New("problem not found")
	// ErrProblemDirectoryUnset is returned when the problem directory is not configured.
	ErrProblemDirectoryUnset = errors.New("problem directory is not configured")
	// ErrInvalidProblem is returned when a definition file fails validation.
	ErrInvalidProblem = errors.New("invalid problem definition")
)

// definitionFormats lists accepted file extensions in lookup order.
var definitionFormats = []string{".yaml", ".yml", ".toml"}

// ProblemRepository loads problem definitions from the problem directory.
type ProblemRepository interface {
	Get(ctx context.Context, id string) (judge.ProblemDefinition, error)
	List(ctx context.Context) ([]string, error)
}

type problemFile struct {
	TimeLimit any       `yaml:"time_limit" toml:"time_limit"`
	Tolerant  bool      `yaml:"tolerant" toml:"tolerant"`
	Runs      []runFile `yaml:"runs" toml:"runs" validate:"required,min=1,dive"`
}

type runFile struct {
	Input   string   `yaml:"input" toml:"input"`
	Output  *string  `yaml:"output" toml:"output"`
	Outputs []string `yaml:"outputs" toml:"outputs"`
}

// NewFileProblemRepository constructs a repository rooted at dir. A relative
// dir is resolved against the process working directory.
func NewFileProblemRepository(dir string) ProblemRepository {
	if dir != "" && !filepath.IsAbs(dir) {
		if abs, err := filepath.Abs(dir); err == nil {
			dir = abs
		}
	}

	validate := validator.New()
	validate.RegisterStructValidation(validateRun, runFile{})

	return &fileProblemRepository{
		dir:      dir,
		cache:    xsync.NewMapOf[string, cachedProblem](),
		validate: validate,
	}
}

type fileProblemRepository struct {
	dir      string
	cache    *xsync.MapOf[string, cachedProblem]
	validate *validator.Validate
}

// cachedProblem remembers which file revision a definition was parsed from.
type cachedProblem struct {
	problem judge.ProblemDefinition
	path    string
	modTime time.Time
	size    int64
}

func (c cachedProblem) matches(path string, info fs.FileInfo) bool {
	return c.path == path && c.size == info.Size() && c.modTime.Equal(info.ModTime())
}

func (r *fileProblemRepository) Get(ctx context.Context, id string) (judge.ProblemDefinition, error) {
	if r.dir == "" {
		return judge.ProblemDefinition{}, ErrProblemDirectoryUnset
	}
	if !validProblemID(id) {
		return judge.ProblemDefinition{}, ErrProblemNotFound
	}

	path, info, err := r.locate(id)
	if err != nil {
		if errors.Is(err, ErrProblemNotFound) {
			r.cache.Delete(id)
		}
		return judge.ProblemDefinition{}, err
	}

	if cached, ok := r.cache.Load(id); ok && cached.matches(path, info) {
		return cached.problem, nil
	}

	problem, err := r.load(id, path)
	if err != nil {
		return judge.ProblemDefinition{}, err
	}

	r.cache.Store(id, cachedProblem{problem: problem, path: path, modTime: info.ModTime(), size: info.Size()})
	return problem, nil
}

func (r *fileProblemRepository) List(ctx context.Context) ([]string, error) {
	if r.dir == "" {
		return nil, ErrProblemDirectoryUnset
	}

	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("read problem directory: %w", err)
	}

	ids := mapset.NewThreadUnsafeSet[string]()
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if id, ok := problemIDFromFilename(entry.Name()); ok {
			ids.Add(id)
		}
	}

	problems := ids.ToSlice()
	sort.Strings(problems)
	return problems, nil
}

// locate stats the candidate files on every call so edits to the problem
// directory are picked up without a restart.
func (r *fileProblemRepository) locate(id string) (string, fs.FileInfo, error) {
	for _, ext := range definitionFormats {
		for _, suffix := range []string{"", compressedSuffix} {
			path := filepath.Join(r.dir, id+ext+suffix)
			info, err := os.Stat(path)
			if err == nil && !info.IsDir() {
				return path, info, nil
			}
			if err != nil && !errors.Is(err, fs.ErrNotExist) {
				return "", nil, fmt.Errorf("stat problem file: %w", err)
			}
		}
	}
	return "", nil, ErrProblemNotFound
}

func (r *fileProblemRepository) load(id, path string) (judge.ProblemDefinition, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return judge.ProblemDefinition{}, fmt.Errorf("read problem file: %w", err)
	}

	name := path
	if strings.HasSuffix(name, compressedSuffix) {
		raw, err = decompress(raw)
		if err != nil {
			return judge.ProblemDefinition{}, fmt.Errorf("%w: %s: %v", ErrInvalidProblem, filepath.Base(path), err)
		}
		name = strings.TrimSuffix(name, compressedSuffix)
	}

	var file problemFile
	switch filepath.Ext(name) {
	case ".toml":
		err = toml.Unmarshal(raw, &file)
	default:
		err = yaml.Unmarshal(raw, &file)
	}
	if err != nil {
		return judge.ProblemDefinition{}, fmt.Errorf("%w: %s: %v", ErrInvalidProblem, filepath.Base(path), err)
	}

	if err := r.validate.Struct(file); err != nil {
		return judge.ProblemDefinition{}, fmt.Errorf("%w: %s: %v", ErrInvalidProblem, filepath.Base(path), err)
	}

	timeLimit, err := parseTimeLimit(file.TimeLimit)
	if err != nil {
		return judge.ProblemDefinition{}, fmt.Errorf("%w: %s: %v", ErrInvalidProblem, filepath.Base(path), err)
	}

	problem := judge.ProblemDefinition{
		ID:        id,
		TimeLimit: timeLimit,
		Tolerant:  file.Tolerant,
		Runs:      make([]judge.TestCase, 0, len(file.Runs)),
	}
	for _, run := range file.Runs {
		outputs := append([]string(nil), run.Outputs...)
		if run.Output != nil {
			outputs = append([]string{*run.Output}, outputs...)
		}
		problem.Runs = append(problem.Runs, judge.TestCase{Input: run.Input, AcceptedOutputs: outputs})
	}
	return problem, nil
}

func validateRun(sl validator.StructLevel) {
	run := sl.Current().Interface().(runFile)
	if run.Output == nil && len(run.Outputs) == 0 {
		sl.ReportError(run.Outputs, "Outputs", "outputs", "required", "")
	}
}

func decompress(raw []byte) ([]byte, error) {
	decoder, err := zstd.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}
	defer decoder.Close()
	return io.ReadAll(decoder)
}

// parseTimeLimit accepts a bare number of seconds or a Go duration string.
func parseTimeLimit(value any) (time.Duration, error) {
	var limit time.Duration
	switch v := value.(type) {
	case nil:
		return defaultTimeLimit, nil
	case int:
		limit = time.Duration(v) * time.Second
	case int64:
		limit = time.Duration(v) * time.Second
	case uint64:
		limit = time.Duration(v) * time.Second
	case float64:
		limit = time.Duration(v * float64(time.Second))
	case string:
		if seconds, err := strconv.ParseFloat(v, 64); err == nil {
			limit = time.Duration(seconds * float64(time.Second))
			break
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("time_limit: %w", err)
		}
		limit = parsed
	default:
		return 0, fmt.Errorf("time_limit: unsupported type %T", value)
	}

	if limit <= 0 {
		return 0, fmt.Errorf("time_limit must be positive")
	}
	return limit, nil
}

func problemIDFromFilename(name string) (string, bool) {
	base := strings.TrimSuffix(name, compressedSuffix)
	for _, ext := range definitionFormats {
		if strings.HasSuffix(base, ext) {
			id := strings.TrimSuffix(base, ext)
			return id, validProblemID(id)
		}
	}
	return "", false
}

func validProblemID(id string) bool {
	if id == "" || strings.HasPrefix(id, ".") {
		return false
	}
	return !strings.ContainsAny(id, `/\`) && !strings.ContainsRune(id, 0)
}
