package utils

import "github.com/gofiber/fiber/v2"

// APIResponse is the envelope of every endpoint except judging, whose verdict
// body is returned bare.
type APIResponse struct {
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
	RequestID string      `json:"request_id,omitempty"`
}

// SendSuccess writes a 200 envelope.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	if message == "" {
		message = "success"
	}
	return send(c, fiber.StatusOK, APIResponse{Success: true, Message: message, Data: data})
}

// SendError writes a failed envelope. Statuses below 400 are reported as 500.
func SendError(c *fiber.Ctx, status int, message string) error {
	if message == "" {
		message = "error"
	}
	if status < fiber.StatusBadRequest {
		status = fiber.StatusInternalServerError
	}
	return send(c, status, APIResponse{Success: false, Message: message})
}

func send(c *fiber.Ctx, status int, body APIResponse) error {
	// set by the correlation middleware
	body.RequestID = c.GetRespHeader("X-Correlation-ID")
	return c.Status(status).JSON(body)
}
