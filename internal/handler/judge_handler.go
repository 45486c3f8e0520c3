package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/uva-judge/internal/dto"
	"github.com/noah-isme/uva-judge/internal/middleware"
	"github.com/noah-isme/uva-judge/internal/service"
	"github.com/noah-isme/uva-judge/internal/utils"
)

// JudgeHandler exposes the submission endpoints.
type JudgeHandler struct {
	service        service.JudgeService
	maxUploadBytes int64
	logger         zerolog.Logger
}

// NewJudgeHandler constructs the handler.
func NewJudgeHandler(service service.JudgeService, maxUploadBytes int64, logger zerolog.Logger) *JudgeHandler {
	return &JudgeHandler{
		service:        service,
		maxUploadBytes: maxUploadBytes,
		logger:         logger.With().Str("component", "judge_handler").Logger(),
	}
}

// Register wires the submission endpoints into the router group. limiter
// guards the judging route only.
func (h *JudgeHandler) Register(router fiber.Router, limiter fiber.Handler) {
	if limiter == nil {
		limiter = func(c *fiber.Ctx) error { return c.Next() }
	}
	router.Post("/problem/:problem_id/:lang/test", limiter, h.test)
	router.Get("/submissions/:id", h.get)
}

func (h *JudgeHandler) test(c *fiber.Ctx) error {
	uploads, err := collectUploads(c, h.maxUploadBytes)
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to read upload")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to read upload")
	}

	response, err := h.service.Judge(c.UserContext(), dto.JudgeRequest{
		ProblemID: c.Params("problem_id"),
		Language:  c.Params("lang"),
		Files:     uploads,
		Debug:     c.QueryBool("debug", false),
	})
	if err != nil {
		return h.handleError(c, err)
	}

	middleware.SetVerdict(c, response.Code)
	status := fiber.StatusOK
	if response.IsSubmissionError() {
		status = fiber.StatusBadRequest
	}
	return c.Status(status).JSON(response)
}

func (h *JudgeHandler) get(c *fiber.Ctx) error {
	response, err := h.service.GetSubmission(c.UserContext(), c.Params("id"))
	if err != nil {
		return h.handleError(c, err)
	}
	return utils.SendSuccess(c, "submission retrieved", response)
}

func (h *JudgeHandler) handleError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrSubmissionNotFound):
		return utils.SendError(c, fiber.StatusNotFound, "submission not found")
	case errors.Is(err, service.ErrJudgeMisconfigured):
		requestLogger(h.logger, c).Error().Err(err).Msg("judge misconfigured")
		return utils.SendError(c, fiber.StatusInternalServerError, "judge is misconfigured")
	default:
		requestLogger(h.logger, c).Error().Err(err).Msg("judge request failed")
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to judge submission")
	}
}
