package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/uva-judge/internal/service"
	"github.com/noah-isme/uva-judge/internal/utils"
)

// CatalogHandler lists problems and languages.
type CatalogHandler struct {
	service service.CatalogService
	logger  zerolog.Logger
}

// NewCatalogHandler constructs the handler.
func NewCatalogHandler(service service.CatalogService, logger zerolog.Logger) *CatalogHandler {
	return &CatalogHandler{
		service: service,
		logger:  logger.With().Str("component", "catalog_handler").Logger(),
	}
}

// Register wires the catalog endpoints into the router group mounted at prefix.
func (h *CatalogHandler) Register(router fiber.Router, prefix string) {
	router.Get("/problems", h.problems)
	router.Get("/languages", h.languages)
	router.Get("/available_problems", func(c *fiber.Ctx) error {
		return c.Redirect(prefix+"/problems", fiber.StatusFound)
	})
	router.Get("/available_languages", func(c *fiber.Ctx) error {
		return c.Redirect(prefix+"/languages", fiber.StatusFound)
	})
}

func (h *CatalogHandler) problems(c *fiber.Ctx) error {
	response, err := h.service.ListProblems(c.UserContext())
	if err != nil {
		requestLogger(h.logger, c).Error().Err(err).Msg("failed to list problems")
		if errors.Is(err, service.ErrJudgeMisconfigured) {
			return utils.SendError(c, fiber.StatusInternalServerError, "judge is misconfigured")
		}
		return utils.SendError(c, fiber.StatusInternalServerError, "failed to list problems")
	}
	return utils.SendSuccess(c, "problems retrieved", response)
}

func (h *CatalogHandler) languages(c *fiber.Ctx) error {
	return utils.SendSuccess(c, "languages retrieved", h.service.ListLanguages(c.UserContext()))
}
