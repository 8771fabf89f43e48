package http

import (
	"time"

	"refdata-seeder/internal/shared/logger"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewServer builds the fiber app serving the status endpoints
func NewServer(handler *StatusHandler, log logger.Logger) *fiber.App {
	if log == nil {
		log = logger.NewNop()
	}
	app := fiber.New(fiber.Config{
		AppName:               "refdata-seeder status",
		ReadTimeout:           10 * time.Second,
		WriteTimeout:          30 * time.Second,
		IdleTimeout:           60 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if fe, ok := err.(*fiber.Error); ok {
				code = fe.Code
			}
			if code >= fiber.StatusInternalServerError {
				log.Errorf("HTTP error on %s: %v", c.Path(), err)
			}
			return c.Status(code).JSON(fiber.Map{
				"error":   "request_failed",
				"message": err.Error(),
			})
		},
	})
	app.Use(recover.New())
	handler.RegisterRoutes(app)
	return app
}
