package handler

import (
	"fmt"
	"io"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/uva-judge/internal/dto"
	"github.com/noah-isme/uva-judge/internal/middleware"
)

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		logger = middleware.LoggerFor(c, base)
	}
	return &logger
}

// collectUploads reads every file part of a multipart request. Each file is
// read up to limit+1 bytes so oversize uploads stay detectable without
// buffering them entirely. A request without a multipart body has no files.
func collectUploads(c *fiber.Ctx, limit int64) ([]dto.UploadedFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, nil
	}

	fields := make([]string, 0, len(form.File))
	for field := range form.File {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var uploads []dto.UploadedFile
	for _, field := range fields {
		for _, header := range form.File[field] {
			file, err := header.Open()
			if err != nil {
				return nil, fmt.Errorf("open upload %q: %w", header.Filename, err)
			}

			var reader io.Reader = file
			if limit > 0 {
				reader = io.LimitReader(file, limit+1)
			}
			content, err := io.ReadAll(reader)
			_ = file.Close()
			if err != nil {
				return nil, fmt.Errorf("read upload %q: %w", header.Filename, err)
			}

			uploads = append(uploads, dto.UploadedFile{Filename: header.Filename, Content: content})
		}
	}
	return uploads, nil
}
