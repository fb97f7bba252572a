// Package main provides the Warden API server implementation.
package main

import (
	"log/slog"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/quorumlabs/warden/pkg/engine"
	"github.com/quorumlabs/warden/pkg/eventbus"
	"github.com/quorumlabs/warden/pkg/persistence"
	"github.com/quorumlabs/warden/pkg/policy"
	"github.com/quorumlabs/warden/pkg/registry"
	"github.com/quorumlabs/warden/pkg/services"
	"github.com/quorumlabs/warden/pkg/statemachine"
	"github.com/quorumlabs/warden/pkg/web"
)

type API struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	registry     *registry.Registry
	eventBus     eventbus.EventBus
	stateMachine *statemachine.Spec
	policies     *policy.Set
	validate     *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	persistence persistence.Persistence,
	registry *registry.Registry,
	eventBus eventbus.EventBus,
	stateMachine *statemachine.Spec,
	policies *policy.Set,
) *API {
	return &API{
		logger:       logger,
		persistence:  persistence,
		registry:     registry,
		eventBus:     eventBus,
		stateMachine: stateMachine,
		policies:     policies,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	evaluator := policy.NewEvaluator(a.logger, a.policies, a.persistence.ExecutionRecordRepository())
	eng := engine.NewEngine(a.logger, a.persistence, a.registry, evaluator, a.eventBus,
		engine.WithStateMachine(a.stateMachine))

	runService := services.NewRun(eng, a.persistence)
	playbookService := services.NewPlaybook(a.persistence, a.registry)
	policyService := services.NewPolicy(evaluator, a.persistence)
	draftService := services.NewDraft(a.persistence)

	handlers := web.NewAPIHandlers(
		runService,
		playbookService,
		policyService,
		draftService,
		a.stateMachine,
		a.validate,
		a.registry,
	)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Warden API")
	})

	p := app.Group("/playbooks")
	p.Get("/", handlers.GetPlaybooks)
	p.Post("/", handlers.CreatePlaybook)
	p.Get("/:id", handlers.GetPlaybook)
	p.Put("/:id", handlers.UpdatePlaybook)
	p.Delete("/:id", handlers.DeletePlaybook)

	r := app.Group("/runs")
	r.Get("/", handlers.ListRuns)
	r.Post("/", handlers.StartRun)
	r.Get("/:id", handlers.GetRun)
	r.Post("/:id/pause", handlers.PauseRun)
	r.Post("/:id/resume", handlers.ResumeRun)
	r.Post("/:id/cancel", handlers.CancelRun)

	app.Post("/policy/evaluate", handlers.EvaluatePolicy)
	app.Get("/audit", handlers.GetAuditTrail)

	d := app.Group("/drafts")
	d.Post("/", handlers.CreateDraft)
	d.Get("/:id", handlers.GetDraft)
	d.Post("/:id/patch", handlers.ApplyDraftPatch)

	s := app.Group("/state-machine")
	s.Get("/states", handlers.GetStates)
	s.Get("/states/:name/next", handlers.GetNextStates)
	s.Post("/transitions/check", handlers.CheckTransition)
	s.Get("/map-external", handlers.MapExternalStatus)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
