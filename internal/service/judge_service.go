package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/gabriel-vasile/mimetype"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/noah-isme/uva-judge/internal/dto"
	"github.com/noah-isme/uva-judge/internal/judge"
	"github.com/noah-isme/uva-judge/internal/models"
	"github.com/noah-isme/uva-judge/internal/observability"
	"github.com/noah-isme/uva-judge/internal/repository"
)

var (
	// ErrUnsupportedLanguage indicates the requested language alias is unknown.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrSubmissionNotFound indicates the history has no such submission.
	ErrSubmissionNotFound = errors.New("submission not found")
	// ErrJudgeMisconfigured wraps faults caused by judge configuration.
	ErrJudgeMisconfigured = errors.New("judge is misconfigured")
)

const (
	msgNoFile              = "File not found."
	msgTooManyFiles        = "Too many files."
	msgProblemNotFound     = "Could not find problem configuration on this judge."
	msgInvalidFileType     = "Invalid file type."
	msgFileTooLarge        = "File too large."
	msgInvalidRequest      = "Invalid request."
	msgUnsupportedLanguage = "Unsupported language. Please GET /api/v1/languages"
)

// JudgeService validates submissions and runs them through the evaluator.
type JudgeService interface {
	Judge(ctx context.Context, req dto.JudgeRequest) (dto.VerdictResponse, error)
	GetSubmission(ctx context.Context, id string) (dto.SubmissionResponse, error)
}

// JudgeServiceConfig carries the language toolchains and upload limits.
type JudgeServiceConfig struct {
	Languages      map[string]judge.LanguageDefinition
	MaxUploadBytes int64
}

type judgeService struct {
	cfg       JudgeServiceConfig
	problems  repository.ProblemRepository
	history   repository.JudgedSubmissionRepository
	cache     repository.VerdictCache
	publisher VerdictPublisher
	evaluator judge.Evaluator
	validate  *validator.Validate
	tracer    trace.Tracer
	logger    zerolog.Logger
	now       func() time.Time
}

// NewJudgeService wires the submission pipeline. history, cache and
// publisher are optional.
func NewJudgeService(
	cfg JudgeServiceConfig,
	problems repository.ProblemRepository,
	history repository.JudgedSubmissionRepository,
	cache repository.VerdictCache,
	publisher VerdictPublisher,
	evaluator judge.Evaluator,
	validate *validator.Validate,
	logger zerolog.Logger,
) JudgeService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	if validate == nil {
		validate = validator.New()
	}
	return &judgeService{
		cfg:       cfg,
		problems:  problems,
		history:   history,
		cache:     cache,
		publisher: publisher,
		evaluator: evaluator,
		validate:  validate,
		tracer:    otel.Tracer("github.com/noah-isme/uva-judge/internal/service"),
		logger:    logger.With().Str("component", "judge_service").Logger(),
		now:       time.Now,
	}
}

func (s *judgeService) Judge(ctx context.Context, req dto.JudgeRequest) (dto.VerdictResponse, error) {
	ctx, span := s.tracer.Start(ctx, "judge_service.judge", trace.WithAttributes(
		attribute.String("judge.problem_id", req.ProblemID),
		attribute.String("judge.language", req.Language),
	))
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return s.reject("request", msgInvalidRequest), nil
	}

	switch {
	case len(req.Files) == 0:
		return s.reject("no_file", msgNoFile), nil
	case len(req.Files) > 1:
		return s.reject("too_many_files", msgTooManyFiles), nil
	}

	problem, err := s.problems.Get(ctx, req.ProblemID)
	if err != nil {
		if errors.Is(err, repository.ErrProblemNotFound) {
			return s.reject("problem_not_found", msgProblemNotFound), nil
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, "problem lookup failed")
		return dto.VerdictResponse{}, fmt.Errorf("%w: %v", ErrJudgeMisconfigured, err)
	}

	language, err := NormalizeLanguage(req.Language)
	if err != nil {
		return s.reject("unsupported_language", msgUnsupportedLanguage), nil
	}
	definition, ok := s.cfg.Languages[language]
	if !ok {
		return s.reject("unsupported_language", msgUnsupportedLanguage), nil
	}

	file := req.Files[0]
	if !allowedExtension(file.Filename, definition.Extensions) {
		return s.reject("file_type", msgInvalidFileType), nil
	}
	if s.cfg.MaxUploadBytes > 0 && int64(len(file.Content)) > s.cfg.MaxUploadBytes {
		return s.reject("file_size", msgFileTooLarge), nil
	}
	if !isText(file.Content) {
		return s.reject("file_type", msgInvalidFileType), nil
	}

	logger := s.logger.With().
		Str("problem_id", problem.ID).
		Str("language", language).
		Logger()

	submissionID := uuid.NewString()
	cacheKey := fingerprint(problem, definition, file.Content)
	start := s.now()

	verdict, cached := s.lookupCache(ctx, cacheKey, req.Debug, logger)
	if !cached {
		verdict, err = s.evaluator.Evaluate(ctx, judge.Request{
			Submission: judge.Submission{Filename: file.Filename, Content: file.Content},
			Problem:    problem,
			Language:   definition,
			Debug:      req.Debug,
		})
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "evaluation failed")
			logger.Error().Err(err).Msg("evaluation failed")
			if errors.Is(err, judge.ErrConfiguration) {
				return dto.VerdictResponse{}, fmt.Errorf("%w: %v", ErrJudgeMisconfigured, err)
			}
			return dto.VerdictResponse{}, err
		}
		observability.EvaluationDuration().WithLabelValues(language).Observe(s.now().Sub(start).Seconds())
		s.storeCache(ctx, cacheKey, verdict, logger)
	}

	duration := s.now().Sub(start)
	observability.Verdicts().WithLabelValues(language, string(verdict.Code)).Inc()
	span.SetAttributes(attribute.String("judge.verdict", string(verdict.Code)), attribute.Bool("judge.cached", cached))

	s.record(ctx, submissionID, problem.ID, language, file, verdict, cached, duration, logger)

	event := dto.VerdictEvent{
		SubmissionID: submissionID,
		ProblemID:    problem.ID,
		Language:     language,
		Code:         string(verdict.Code),
		Cached:       cached,
		DurationMs:   duration.Milliseconds(),
		JudgedAt:     s.now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		logger.Warn().Err(err).Msg("failed to publish verdict event")
	}

	logger.Info().
		Str("submission_id", submissionID).
		Str("verdict", string(verdict.Code)).
		Bool("cached", cached).
		Dur("duration", duration).
		Msg("submission judged")

	response := dto.NewVerdictResponse(verdict, req.Debug)
	response.SubmissionID = submissionID
	response.Cached = cached
	return response, nil
}

func (s *judgeService) GetSubmission(ctx context.Context, id string) (dto.SubmissionResponse, error) {
	if s.history == nil {
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}

	record, err := s.history.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return dto.SubmissionResponse{}, ErrSubmissionNotFound
		}
		return dto.SubmissionResponse{}, err
	}

	response := dto.SubmissionResponse{
		ID:          record.ID,
		ProblemID:   record.ProblemID,
		Language:    record.Language,
		Filename:    record.Filename,
		Code:        record.Code,
		Message:     judge.Code(record.Code).Message(),
		Description: record.Description,
		Trace:       record.Trace,
		Cached:      record.Cached,
		DurationMs:  record.DurationMs,
		Cases:       []dto.CaseResponse{},
		CreatedAt:   record.CreatedAt,
	}

	if len(record.Cases) > 0 {
		var cases []models.CaseRecord
		if err := json.Unmarshal(record.Cases, &cases); err != nil {
			s.logger.Warn().Err(err).Str("submission_id", id).Msg("failed to decode stored cases")
		}
		for _, c := range cases {
			response.Cases = append(response.Cases, dto.CaseResponse{
				Index:      c.Index,
				State:      c.State,
				Code:       c.Code,
				DurationMs: c.DurationMs,
			})
		}
	}
	return response, nil
}

func (s *judgeService) reject(reason, description string) dto.VerdictResponse {
	observability.Rejections().WithLabelValues(reason).Inc()
	return dto.NewVerdictResponse(judge.Reject(description), false)
}

func (s *judgeService) lookupCache(ctx context.Context, key string, debug bool, logger zerolog.Logger) (judge.Verdict, bool) {
	if s.cache == nil || debug {
		return judge.Verdict{}, false
	}

	verdict, ok, err := s.cache.Get(ctx, key)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to read verdict cache")
		return judge.Verdict{}, false
	}
	if !ok {
		observability.CacheLookups().WithLabelValues("miss").Inc()
		return judge.Verdict{}, false
	}
	observability.CacheLookups().WithLabelValues("hit").Inc()
	return verdict, true
}

func (s *judgeService) storeCache(ctx context.Context, key string, verdict judge.Verdict, logger zerolog.Logger) {
	if s.cache == nil || !verdict.Cacheable() {
		return
	}
	if err := s.cache.Set(ctx, key, verdict); err != nil {
		logger.Warn().Err(err).Msg("failed to store verdict cache")
	}
}

func (s *judgeService) record(ctx context.Context, id, problemID, language string, file dto.UploadedFile, verdict judge.Verdict, cached bool, duration time.Duration, logger zerolog.Logger) {
	if s.history == nil {
		return
	}

	cases := make([]models.CaseRecord, 0, len(verdict.Cases))
	for _, c := range verdict.Cases {
		cases = append(cases, models.CaseRecord{
			Index:      c.Index,
			State:      string(c.State),
			Code:       string(c.Code),
			DurationMs: c.Duration.Milliseconds(),
		})
	}
	payload, err := json.Marshal(cases)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to encode case verdicts")
		payload = []byte("[]")
	}

	record := &models.JudgedSubmission{
		ID:          id,
		ProblemID:   problemID,
		Language:    language,
		Filename:    file.Filename,
		SourceHash:  sourceHash(file.Content),
		Code:        string(verdict.Code),
		Description: verdict.Description,
		Trace:       verdict.Trace,
		Cases:       datatypes.JSON(payload),
		Cached:      cached,
		DurationMs:  duration.Milliseconds(),
	}
	if err := s.history.Create(ctx, record); err != nil {
		logger.Warn().Err(err).Str("submission_id", id).Msg("failed to persist verdict")
	}
}

func allowedExtension(filename string, extensions []string) bool {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return false
	}
	return mapset.NewThreadUnsafeSet(extensions...).Contains(ext)
}

// isText accepts any content whose detected MIME type descends from text/plain.
func isText(content []byte) bool {
	for mt := mimetype.Detect(content); mt != nil; mt = mt.Parent() {
		if mt.Is("text/plain") {
			return true
		}
	}
	return false
}

func sourceHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

// fingerprint keys the verdict cache. The problem and toolchain definitions
// are hashed with the source so editing either one retires old verdicts.
func fingerprint(problem judge.ProblemDefinition, language judge.LanguageDefinition, content []byte) string {
	hash := sha256.New()
	for _, part := range []any{problem, language} {
		encoded, err := json.Marshal(part)
		if err != nil {
			encoded = []byte(fmt.Sprintf("%#v", part))
		}
		hash.Write(encoded)
		hash.Write([]byte{0})
	}
	hash.Write(content)
	return problem.ID + ":" + language.Name + ":" + hex.EncodeToString(hash.Sum(nil))
}
