package main

import (
	"log/slog"
	"strconv"

	"github.com/dukex/automation/pkg/services"
	"github.com/dukex/automation/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type API struct {
	logger          *slog.Logger
	workflowService *services.Workflow
	ingester        web.EventIngester
	registry        web.HealthChecker
	validate        *validator.Validate
	app             *fiber.App
}

func NewAPI(
	logger *slog.Logger,
	workflowService *services.Workflow,
	ingester web.EventIngester,
	registry web.HealthChecker,
) *API {
	return &API{
		logger:          logger.With("module", "api"),
		workflowService: workflowService,
		ingester:        ingester,
		registry:        registry,
		validate:        validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	if a.app != nil {
		return a.app
	}

	handlers := web.NewAPIHandlers(a.workflowService, a.ingester, a.validate, a.registry)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Automation API")
	})

	handlers.Register(app)

	a.app = app

	return app
}

// Start blocks serving HTTP until the app is shut down.
func (a *API) Start(port int) error {
	a.logger.Info("Starting HTTP server", "port", port)

	return a.App().Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
}
