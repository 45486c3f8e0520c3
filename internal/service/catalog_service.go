package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/uva-judge/internal/dto"
	"github.com/noah-isme/uva-judge/internal/repository"
)

// CatalogService lists the problems and languages this judge accepts.
type CatalogService interface {
	ListProblems(ctx context.Context) (dto.ProblemListResponse, error)
	ListLanguages(ctx context.Context) dto.LanguageListResponse
}

type catalogService struct {
	problems  repository.ProblemRepository
	languages []string
	logger    zerolog.Logger
}

// NewCatalogService builds the catalog over the problem repository and the
// configured language identifiers.
func NewCatalogService(problems repository.ProblemRepository, configuredLanguages []string, logger zerolog.Logger) CatalogService {
	return &catalogService{
		problems:  problems,
		languages: configuredLanguages,
		logger:    logger.With().Str("component", "catalog_service").Logger(),
	}
}

func (s *catalogService) ListProblems(ctx context.Context) (dto.ProblemListResponse, error) {
	problems, err := s.problems.List(ctx)
	if err != nil {
		if errors.Is(err, repository.ErrProblemDirectoryUnset) {
			return dto.ProblemListResponse{}, fmt.Errorf("%w: %v", ErrJudgeMisconfigured, err)
		}
		s.logger.Error().Err(err).Msg("failed to list problems")
		return dto.ProblemListResponse{}, err
	}
	if problems == nil {
		problems = []string{}
	}
	return dto.ProblemListResponse{Problems: problems}, nil
}

func (s *catalogService) ListLanguages(context.Context) dto.LanguageListResponse {
	return dto.LanguageListResponse{Languages: LanguageAliases(s.languages)}
}
