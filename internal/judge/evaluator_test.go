package judge

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/uva-judge/pkg/process"
)

const fakeCompiler = `#!/bin/sh
for arg in "$@"; do
  case "$arg" in
    /out:*) out="${arg#/out:}" ;;
    *) src="$arg" ;;
  esac
done
cp "$src" "$out" && chmod +x "$out"
`

const brokenCompiler = `#!/bin/sh
echo "main.cs(1,1): error CS1525: Unexpected symbol" >&2
exit 1
`

type evaluatorFixture struct {
	workDir   string
	evaluator Evaluator
}

func newEvaluatorFixture(t *testing.T, workers int) evaluatorFixture {
	t.Helper()
	workDir := filepath.Join(t.TempDir(), "work")
	runner := process.NewLocalRunner(process.Config{Timeout: 5 * time.Second, Logger: zerolog.Nop()})
	cfg := Config{
		WorkDirectory:  workDir,
		MaxWorkers:     workers,
		MaxOutputBytes: 64 * 1024,
		CompileTimeout: 5 * time.Second,
	}
	return evaluatorFixture{
		workDir:   workDir,
		evaluator: NewEvaluator(cfg, runner, NewRegistry(), zerolog.Nop()),
	}
}

func shellLanguage() LanguageDefinition {
	return LanguageDefinition{Name: "python3", Path: "/bin/sh", Restricted: []string{"fork("}}
}

func squareProblem() ProblemDefinition {
	return ProblemDefinition{
		ID:        "square",
		TimeLimit: 2 * time.Second,
		Runs: []TestCase{
			{Input: "5\n", AcceptedOutputs: []string{"25"}},
			{Input: "3", AcceptedOutputs: []string{"9\n"}},
		},
	}
}

func writeScript(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o755))
	return path
}

func (f evaluatorFixture) evaluate(t *testing.T, problem ProblemDefinition, lang LanguageDefinition, source string, debug bool) Verdict {
	t.Helper()
	verdict, err := f.evaluator.Evaluate(context.Background(), Request{
		Submission: Submission{Filename: "solution.sh", Content: []byte(source)},
		Problem:    problem,
		Language:   lang,
		Debug:      debug,
	})
	require.NoError(t, err)
	return verdict
}

func (f evaluatorFixture) requireClean(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestEvaluateAccepted(t *testing.T) {
	f := newEvaluatorFixture(t, 0)

	verdict := f.evaluate(t, squareProblem(), shellLanguage(), "read n; echo $((n*n))\n", false)
	require.Equal(t, Accepted, verdict.Code)
	require.Equal(t, "Accepted", verdict.Message())
	require.Len(t, verdict.Cases, 2)
	require.Empty(t, verdict.Stdout)
	f.requireClean(t)
}

func TestEvaluateWrongAnswer(t *testing.T) {
	f := newEvaluatorFixture(t, 1)

	verdict := f.evaluate(t, squareProblem(), shellLanguage(), "echo 24\n", false)
	require.Equal(t, WrongAnswer, verdict.Code)
	require.Len(t, verdict.Cases, 1)
	f.requireClean(t)
}

func TestEvaluateTimeLimit(t *testing.T) {
	f := newEvaluatorFixture(t, 0)
	problem := squareProblem()
	problem.TimeLimit = 300 * time.Millisecond

	verdict := f.evaluate(t, problem, shellLanguage(), "sleep 3\n", false)
	require.Equal(t, TimeLimitExceeded, verdict.Code)
	require.NotEmpty(t, verdict.Description)
	f.requireClean(t)
}

func TestEvaluateRuntimeError(t *testing.T) {
	f := newEvaluatorFixture(t, 0)

	verdict := f.evaluate(t, squareProblem(), shellLanguage(), "echo boom >&2; exit 1\n", false)
	require.Equal(t, RuntimeError, verdict.Code)
	require.Contains(t, verdict.Trace, "boom")
	f.requireClean(t)
}

func TestEvaluateDebugAttachesOutput(t *testing.T) {
	f := newEvaluatorFixture(t, 0)

	verdict := f.evaluate(t, squareProblem(), shellLanguage(), "echo 24; echo note >&2\n", true)
	require.Equal(t, WrongAnswer, verdict.Code)
	require.Equal(t, "24\n", verdict.Stdout)
	require.Equal(t, "note\n", verdict.Stderr)
}

func TestEvaluateNormalizesLineEndings(t *testing.T) {
	f := newEvaluatorFixture(t, 0)
	problem := ProblemDefinition{
		ID:        "lines",
		TimeLimit: 2 * time.Second,
		Runs:      []TestCase{{Input: "", AcceptedOutputs: []string{"a\nb"}}},
	}

	verdict := f.evaluate(t, problem, shellLanguage(), `printf 'a\r\nb\r\n'`+"\n", false)
	require.Equal(t, Accepted, verdict.Code)

	verdict = f.evaluate(t, problem, shellLanguage(), `printf 'pydev debugger: attached\n\na\nb\n'`+"\n", false)
	require.Equal(t, Accepted, verdict.Code)
}

func TestEvaluateTolerantPresentation(t *testing.T) {
	f := newEvaluatorFixture(t, 0)
	problem := squareProblem()
	problem.Tolerant = true

	verdict := f.evaluate(t, problem, shellLanguage(), "read n; echo \"$((n*n)) \"\n", false)
	require.Equal(t, AcceptedPresentationError, verdict.Code)
}

func TestEvaluateOutputLimit(t *testing.T) {
	f := newEvaluatorFixture(t, 0)

	verdict := f.evaluate(t, squareProblem(), shellLanguage(), "yes | head -c 200000\n", false)
	require.Equal(t, OutputLimitExceeded, verdict.Code)
	f.requireClean(t)
}

func TestEvaluateRestrictedConstructSkipsCompilation(t *testing.T) {
	f := newEvaluatorFixture(t, 0)
	marker := filepath.Join(t.TempDir(), "compiled")
	compiler := writeScript(t, "csc", "#!/bin/sh\ntouch "+marker+"\n")

	lang := LanguageDefinition{Name: "c_sharp", Path: compiler, Restricted: []string{"Process.Start"}}
	verdict := f.evaluate(t, squareProblem(), lang, "// Process.Start(\"rm\")\n", false)

	require.Equal(t, RestrictedFunction, verdict.Code)
	require.Contains(t, verdict.Description, "Process.Start")
	_, err := os.Stat(marker)
	require.True(t, os.IsNotExist(err))
	f.requireClean(t)
}

func TestEvaluateCompiledLanguage(t *testing.T) {
	f := newEvaluatorFixture(t, 0)
	lang := LanguageDefinition{Name: "c_sharp", Path: writeScript(t, "csc", fakeCompiler)}

	verdict, err := f.evaluator.Evaluate(context.Background(), Request{
		Submission: Submission{Filename: "Main.cs", Content: []byte("#!/bin/sh\nread n; echo $((n*n))\n")},
		Problem:    squareProblem(),
		Language:   lang,
	})
	require.NoError(t, err)
	require.Equal(t, Accepted, verdict.Code)
	f.requireClean(t)
}

func TestEvaluateCompileError(t *testing.T) {
	f := newEvaluatorFixture(t, 0)
	lang := LanguageDefinition{Name: "c_sharp", Path: writeScript(t, "csc", brokenCompiler)}

	verdict := f.evaluate(t, squareProblem(), lang, "class Main {", false)
	require.Equal(t, CompileError, verdict.Code)
	require.Contains(t, verdict.Trace, "CS1525")
	f.requireClean(t)
}

func TestEvaluateCompileTimeoutIsTransient(t *testing.T) {
	workDir := filepath.Join(t.TempDir(), "work")
	runner := process.NewLocalRunner(process.Config{Timeout: 5 * time.Second, Logger: zerolog.Nop()})
	evaluator := NewEvaluator(Config{WorkDirectory: workDir, CompileTimeout: 200 * time.Millisecond}, runner, nil, zerolog.Nop())
	lang := LanguageDefinition{Name: "c_sharp", Path: writeScript(t, "csc", "#!/bin/sh\nsleep 5\n")}

	verdict, err := evaluator.Evaluate(context.Background(), Request{
		Submission: Submission{Filename: "Main.cs", Content: []byte("class Main {}")},
		Problem:    squareProblem(),
		Language:   lang,
	})
	require.NoError(t, err)
	require.Equal(t, CompileError, verdict.Code)
	require.True(t, verdict.Transient)
	require.False(t, verdict.Cacheable())
	evaluatorFixture{workDir: workDir}.requireClean(t)
}

func TestEvaluateMissingCompilerIsConfigurationFault(t *testing.T) {
	f := newEvaluatorFixture(t, 0)
	lang := LanguageDefinition{Name: "c_sharp", Path: "/nonexistent/mcs"}

	_, err := f.evaluator.Evaluate(context.Background(), Request{
		Submission: Submission{Filename: "Main.cs", Content: []byte("class Main {}")},
		Problem:    squareProblem(),
		Language:   lang,
	})
	require.ErrorIs(t, err, ErrConfiguration)
	f.requireClean(t)
}

func TestEvaluateMissingInterpreterIsConfigurationFault(t *testing.T) {
	f := newEvaluatorFixture(t, 0)
	lang := shellLanguage()
	lang.Path = "/nonexistent/python3"

	_, err := f.evaluator.Evaluate(context.Background(), Request{
		Submission: Submission{Filename: "main.py", Content: []byte("print(25)\n")},
		Problem:    squareProblem(),
		Language:   lang,
	})
	require.ErrorIs(t, err, ErrConfiguration)
	f.requireClean(t)
}

func TestEvaluateCancelledContextIsNotAVerdict(t *testing.T) {
	f := newEvaluatorFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := f.evaluator.Evaluate(ctx, Request{
		Submission: Submission{Filename: "main.sh", Content: []byte("sleep 3\n")},
		Problem:    squareProblem(),
		Language:   shellLanguage(),
	})
	require.ErrorIs(t, err, context.Canceled)
	f.requireClean(t)
}

func TestEvaluateUnimplementedLanguage(t *testing.T) {
	f := newEvaluatorFixture(t, 0)

	verdict := f.evaluate(t, squareProblem(), LanguageDefinition{Name: "java", Path: "javac"}, "class A {}", false)
	require.Equal(t, SubmissionError, verdict.Code)
	require.Contains(t, verdict.Description, "not implemented")
}

func TestEvaluateRejectsUnsafeFilename(t *testing.T) {
	f := newEvaluatorFixture(t, 0)

	verdict, err := f.evaluator.Evaluate(context.Background(), Request{
		Submission: Submission{Filename: "../../etc/evil.sh", Content: []byte("echo 1")},
		Problem:    squareProblem(),
		Language:   shellLanguage(),
	})
	require.NoError(t, err)
	require.Equal(t, SubmissionError, verdict.Code)
	f.requireClean(t)
}

func TestEvaluateMissingWorkDirectory(t *testing.T) {
	runner := process.NewLocalRunner(process.Config{Logger: zerolog.Nop()})
	evaluator := NewEvaluator(Config{}, runner, nil, zerolog.Nop())

	_, err := evaluator.Evaluate(context.Background(), Request{
		Submission: Submission{Filename: "a.sh", Content: []byte("echo 1")},
		Problem:    squareProblem(),
		Language:   shellLanguage(),
	})
	require.ErrorIs(t, err, ErrConfiguration)
}

func TestEvaluateConcurrentSubmissionsAreIsolated(t *testing.T) {
	f := newEvaluatorFixture(t, 0)

	var wg sync.WaitGroup
	verdicts := make([]Verdict, 4)
	for i := range verdicts {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			source := "read n; echo $((n*n))\n"
			if i%2 == 1 {
				source = "echo 24\n"
			}
			v, err := f.evaluator.Evaluate(context.Background(), Request{
				Submission: Submission{Filename: "solution.sh", Content: []byte(source)},
				Problem:    squareProblem(),
				Language:   shellLanguage(),
			})
			if err == nil {
				verdicts[i] = v
			}
		}(i)
	}
	wg.Wait()

	for i, v := range verdicts {
		if i%2 == 1 {
			require.Equal(t, WrongAnswer, v.Code)
		} else {
			require.Equal(t, Accepted, v.Code)
		}
	}
	f.requireClean(t)
}
