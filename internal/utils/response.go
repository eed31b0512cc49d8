package utils

import "github.com/gofiber/fiber/v2"

// envelope is the uniform JSON body every endpoint returns: a success
// flag, a short human-readable message, and the payload when there is
// one.
type envelope struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Message string      `json:"message"`
}

// SendSuccess writes a 200 envelope.
func SendSuccess(c *fiber.Ctx, message string, data interface{}) error {
	return SendSuccessWithStatus(c, fiber.StatusOK, message, data)
}

// SendSuccessWithStatus writes a success envelope with an explicit
// status code, for 201/202 responses.
func SendSuccessWithStatus(c *fiber.Ctx, status int, message string, data interface{}) error {
	if status == 0 {
		status = fiber.StatusOK
	}
	if message == "" {
		message = "success"
	}

	return c.Status(status).JSON(envelope{
		Success: true,
		Data:    data,
		Message: message,
	})
}

// SendError writes a failure envelope; the data field is omitted.
func SendError(c *fiber.Ctx, status int, message string) error {
	if message == "" {
		message = "error"
	}

	return c.Status(status).JSON(envelope{
		Success: false,
		Message: message,
	})
}
