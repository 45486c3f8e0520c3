package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/noah-isme/uva-judge/internal/dto"
	"github.com/noah-isme/uva-judge/internal/judge"
	"github.com/noah-isme/uva-judge/internal/models"
	"github.com/noah-isme/uva-judge/internal/repository"
)

type stubProblemRepo struct {
	problems map[string]judge.ProblemDefinition
	err      error
}

func (s *stubProblemRepo) Get(_ context.Context, id string) (judge.ProblemDefinition, error) {
	if s.err != nil {
		return judge.ProblemDefinition{}, s.err
	}
	problem, ok := s.problems[id]
	if !ok {
		return judge.ProblemDefinition{}, repository.ErrProblemNotFound
	}
	return problem, nil
}

func (s *stubProblemRepo) List(context.Context) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	ids := make([]string, 0, len(s.problems))
	for id := range s.problems {
		ids = append(ids, id)
	}
	return ids, nil
}

type stubEvaluator struct {
	mu       sync.Mutex
	requests []judge.Request
	verdict  judge.Verdict
	err      error
}

func (s *stubEvaluator) Evaluate(_ context.Context, req judge.Request) (judge.Verdict, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	return s.verdict, s.err
}

func (s *stubEvaluator) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

type stubPublisher struct {
	events []dto.VerdictEvent
	err    error
}

func (s *stubPublisher) Publish(_ context.Context, event dto.VerdictEvent) error {
	s.events = append(s.events, event)
	return s.err
}

type serviceFixture struct {
	service   JudgeService
	problems  *stubProblemRepo
	evaluator *stubEvaluator
	publisher *stubPublisher
	history   repository.JudgedSubmissionRepository
}

func newServiceFixture(t *testing.T, verdict judge.Verdict, cache repository.VerdictCache) serviceFixture {
	t.Helper()

	db, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.JudgedSubmission{}))

	problems := &stubProblemRepo{problems: map[string]judge.ProblemDefinition{
		"100": {ID: "100", Runs: []judge.TestCase{{Input: "5", AcceptedOutputs: []string{"25"}}}},
	}}
	evaluator := &stubEvaluator{verdict: verdict}
	publisher := &stubPublisher{}
	history := repository.NewJudgedSubmissionRepository(db)

	cfg := JudgeServiceConfig{
		Languages: map[string]judge.LanguageDefinition{
			LanguagePython3: {Name: LanguagePython3, Path: "python3", Extensions: []string{"py"}},
			LanguageJava:    {Name: LanguageJava, Path: "javac", Extensions: []string{"java"}},
		},
		MaxUploadBytes: 1024,
	}

	svc := NewJudgeService(cfg, problems, history, cache, publisher, evaluator, nil, zerolog.Nop())
	return serviceFixture{service: svc, problems: problems, evaluator: evaluator, publisher: publisher, history: history}
}

func pythonFile() dto.UploadedFile {
	return dto.UploadedFile{Filename: "main.py", Content: []byte("n = int(input())\nprint(n * n)\n")}
}

func TestJudgeServiceRejectsInvalidSubmissions(t *testing.T) {
	f := newServiceFixture(t, judge.Verdict{Code: judge.Accepted}, nil)

	cases := []struct {
		name     string
		req      dto.JudgeRequest
		expected string
	}{
		{"no file", dto.JudgeRequest{ProblemID: "100", Language: "py3"}, msgNoFile},
		{"too many files", dto.JudgeRequest{ProblemID: "100", Language: "py3", Files: []dto.UploadedFile{pythonFile(), pythonFile()}}, msgTooManyFiles},
		{"unknown problem", dto.JudgeRequest{ProblemID: "999", Language: "py3", Files: []dto.UploadedFile{pythonFile()}}, msgProblemNotFound},
		{"unknown language", dto.JudgeRequest{ProblemID: "100", Language: "rust", Files: []dto.UploadedFile{pythonFile()}}, msgUnsupportedLanguage},
		{"unconfigured language", dto.JudgeRequest{ProblemID: "100", Language: "cs", Files: []dto.UploadedFile{pythonFile()}}, msgUnsupportedLanguage},
		{"wrong extension", dto.JudgeRequest{ProblemID: "100", Language: "py3", Files: []dto.UploadedFile{{Filename: "main.cs", Content: []byte("print(1)")}}}, msgInvalidFileType},
		{"no extension", dto.JudgeRequest{ProblemID: "100", Language: "py3", Files: []dto.UploadedFile{{Filename: "main", Content: []byte("print(1)")}}}, msgInvalidFileType},
		{"binary upload", dto.JudgeRequest{ProblemID: "100", Language: "py3", Files: []dto.UploadedFile{{Filename: "main.py", Content: []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0, 0, 0}}}}, msgInvalidFileType},
		{"too large", dto.JudgeRequest{ProblemID: "100", Language: "py3", Files: []dto.UploadedFile{{Filename: "main.py", Content: make([]byte, 2048)}}}, msgFileTooLarge},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			response, err := f.service.Judge(context.Background(), tc.req)
			require.NoError(t, err)
			require.Equal(t, "SE", response.Code)
			require.Equal(t, "Submission Error", response.Message)
			require.Equal(t, tc.expected, response.Description)
			require.True(t, response.IsSubmissionError())
		})
	}
	require.Zero(t, f.evaluator.calls())
	require.Empty(t, f.publisher.events)
}

func TestJudgeServiceEvaluatesAndRecords(t *testing.T) {
	f := newServiceFixture(t, judge.Verdict{
		Code:        judge.WrongAnswer,
		Description: "Output of run 1 did not match.",
		Cases:       []judge.CaseVerdict{{Index: 0, State: judge.CaseVerified, Code: judge.WrongAnswer}},
	}, nil)

	response, err := f.service.Judge(context.Background(), dto.JudgeRequest{
		ProblemID: "100",
		Language:  "Python3",
		Files:     []dto.UploadedFile{pythonFile()},
	})
	require.NoError(t, err)
	require.Equal(t, "WA", response.Code)
	require.Equal(t, "Wrong Answer", response.Message)
	require.NotEmpty(t, response.SubmissionID)
	require.Nil(t, response.Stdout)

	require.Equal(t, 1, f.evaluator.calls())
	req := f.evaluator.requests[0]
	require.Equal(t, LanguagePython3, req.Language.Name)
	require.Equal(t, "main.py", req.Submission.Filename)
	require.Equal(t, "100", req.Problem.ID)

	require.Len(t, f.publisher.events, 1)
	require.Equal(t, response.SubmissionID, f.publisher.events[0].SubmissionID)
	require.Equal(t, "WA", f.publisher.events[0].Code)

	stored, err := f.service.GetSubmission(context.Background(), response.SubmissionID)
	require.NoError(t, err)
	require.Equal(t, "WA", stored.Code)
	require.Equal(t, LanguagePython3, stored.Language)
	require.Len(t, stored.Cases, 1)
	require.Equal(t, "verified", stored.Cases[0].State)

	_, err = f.service.GetSubmission(context.Background(), "unknown")
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestJudgeServiceDebugExposesOutput(t *testing.T) {
	f := newServiceFixture(t, judge.Verdict{Code: judge.WrongAnswer, Stdout: "24\n", Stderr: ""}, nil)

	response, err := f.service.Judge(context.Background(), dto.JudgeRequest{
		ProblemID: "100",
		Language:  "py3",
		Files:     []dto.UploadedFile{pythonFile()},
		Debug:     true,
	})
	require.NoError(t, err)
	require.NotNil(t, response.Stdout)
	require.Equal(t, "24\n", *response.Stdout)
	require.True(t, f.evaluator.requests[0].Debug)
}

func TestJudgeServiceUsesVerdictCache(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer client.Close()

	f := newServiceFixture(t, judge.Verdict{Code: judge.Accepted}, repository.NewRedisVerdictCache(client, 0))
	req := dto.JudgeRequest{ProblemID: "100", Language: "py3", Files: []dto.UploadedFile{pythonFile()}}

	first, err := f.service.Judge(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "AC", first.Code)
	require.False(t, first.Cached)

	second, err := f.service.Judge(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "AC", second.Code)
	require.True(t, second.Cached)
	require.NotEqual(t, first.SubmissionID, second.SubmissionID)
	require.Equal(t, 1, f.evaluator.calls())

	req.Debug = true
	_, err = f.service.Judge(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, f.evaluator.calls())
}

func TestJudgeServiceSkipsCachingTimingVerdicts(t *testing.T) {
	mini, err := miniredis.Run()
	require.NoError(t, err)
	defer mini.Close()
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	defer client.Close()

	f := newServiceFixture(t, judge.Verdict{Code: judge.TimeLimitExceeded}, repository.NewRedisVerdictCache(client, 0))
	req := dto.JudgeRequest{ProblemID: "100", Language: "py3", Files: []dto.UploadedFile{pythonFile()}}

	for i := 0; i < 2; i++ {
		response, err := f.service.Judge(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, "TL", response.Code)
	}
	require.Equal(t, 2, f.evaluator.calls())
}

func TestJudgeServiceSkipsCachingTransientCompileErrors(t *testing.T) {
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	verdict := judge.Verdict{Code: judge.CompileError, Trace: "compilation exceeded 30s", Transient: true}
	f := newServiceFixture(t, verdict, repository.NewRedisVerdictCache(client, 0))
	req := dto.JudgeRequest{ProblemID: "100", Language: "py3", Files: []dto.UploadedFile{pythonFile()}}

	for i := 0; i < 2; i++ {
		response, err := f.service.Judge(context.Background(), req)
		require.NoError(t, err)
		require.Equal(t, "CE", response.Code)
		require.False(t, response.Cached)
	}
	require.Equal(t, 2, f.evaluator.calls())
	require.Empty(t, mini.Keys())
}

func TestJudgeServiceCacheFollowsProblemEdits(t *testing.T) {
	mini := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mini.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newServiceFixture(t, judge.Verdict{Code: judge.WrongAnswer}, repository.NewRedisVerdictCache(client, 0))
	req := dto.JudgeRequest{ProblemID: "100", Language: "py3", Files: []dto.UploadedFile{pythonFile()}}

	_, err := f.service.Judge(context.Background(), req)
	require.NoError(t, err)

	f.problems.problems["100"] = judge.ProblemDefinition{
		ID:   "100",
		Runs: []judge.TestCase{{Input: "5", AcceptedOutputs: []string{"25", "25.0"}}},
	}
	f.evaluator.verdict = judge.Verdict{Code: judge.Accepted}

	response, err := f.service.Judge(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, "AC", response.Code)
	require.False(t, response.Cached)
	require.Equal(t, 2, f.evaluator.calls())
}

func TestFingerprintCoversDefinitions(t *testing.T) {
	problem := judge.ProblemDefinition{ID: "100", Runs: []judge.TestCase{{Input: "5", AcceptedOutputs: []string{"25"}}}}
	language := judge.LanguageDefinition{Name: LanguagePython3, Path: "python3"}
	source := []byte("print(25)\n")

	key := fingerprint(problem, language, source)
	require.True(t, strings.HasPrefix(key, "100:python3:"))
	require.Equal(t, key, fingerprint(problem, language, source))

	edited := problem
	edited.Tolerant = true
	require.NotEqual(t, key, fingerprint(edited, language, source))

	upgraded := language
	upgraded.Path = "/opt/python3.12/bin/python3"
	require.NotEqual(t, key, fingerprint(problem, upgraded, source))

	require.NotEqual(t, key, fingerprint(problem, language, []byte("print(24)\n")))
}

func TestJudgeServicePropagatesConfigurationFaults(t *testing.T) {
	f := newServiceFixture(t, judge.Verdict{}, nil)
	f.evaluator.err = judge.ErrConfiguration

	_, err := f.service.Judge(context.Background(), dto.JudgeRequest{
		ProblemID: "100",
		Language:  "py3",
		Files:     []dto.UploadedFile{pythonFile()},
	})
	require.ErrorIs(t, err, ErrJudgeMisconfigured)
	require.Empty(t, f.publisher.events)
}

func TestJudgeServiceToleratesPublishFailures(t *testing.T) {
	f := newServiceFixture(t, judge.Verdict{Code: judge.Accepted}, nil)
	f.publisher.err = errors.New("nats unavailable")

	response, err := f.service.Judge(context.Background(), dto.JudgeRequest{
		ProblemID: "100",
		Language:  "py3",
		Files:     []dto.UploadedFile{pythonFile()},
	})
	require.NoError(t, err)
	require.Equal(t, "AC", response.Code)
}

func TestJudgeServiceProblemDirectoryFault(t *testing.T) {
	svc := NewJudgeService(JudgeServiceConfig{}, &stubProblemRepo{err: repository.ErrProblemDirectoryUnset}, nil, nil, nil, &stubEvaluator{}, nil, zerolog.Nop())

	_, err := svc.Judge(context.Background(), dto.JudgeRequest{ProblemID: "100", Language: "py3", Files: []dto.UploadedFile{pythonFile()}})
	require.ErrorIs(t, err, ErrJudgeMisconfigured)

	_, err = svc.GetSubmission(context.Background(), "x")
	require.ErrorIs(t, err, ErrSubmissionNotFound)
}

func TestNATSVerdictPublisherWithoutConnection(t *testing.T) {
	publisher := NewNATSVerdictPublisher(nil, "judge.verdicts")
	require.NoError(t, publisher.Publish(context.Background(), dto.VerdictEvent{Code: "AC"}))
}

func TestCatalogService(t *testing.T) {
	catalog := NewCatalogService(&stubProblemRepo{problems: map[string]judge.ProblemDefinition{"100": {}}}, []string{LanguagePython3}, zerolog.Nop())

	problems, err := catalog.ListProblems(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"100"}, problems.Problems)

	languages := catalog.ListLanguages(context.Background())
	require.Equal(t, map[string][]string{LanguagePython3: {"py3", "python3"}}, languages.Languages)

	broken := NewCatalogService(&stubProblemRepo{err: repository.ErrProblemDirectoryUnset}, nil, zerolog.Nop())
	_, err = broken.ListProblems(context.Background())
	require.ErrorIs(t, err, ErrJudgeMisconfigured)
}
