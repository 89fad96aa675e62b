package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukex/automation/pkg/cmd"
	"github.com/dukex/automation/pkg/eventbus"
	"github.com/dukex/automation/pkg/events"
	"github.com/dukex/automation/pkg/log"
	"github.com/dukex/automation/pkg/otelhelper"
	"github.com/dukex/automation/pkg/redislock"
	"github.com/dukex/automation/pkg/scheduler"
	"github.com/dukex/automation/pkg/services"
	"github.com/dukex/automation/pkg/workflow"
	"github.com/jonboulle/clockwork"
	cli "github.com/urfave/cli/v3"
)

const (
	defaultPort            = 9091
	defaultShutdownTimeout = 30 * time.Second
	serviceName            = "automation"
)

func NewRunCommand() *cli.Command {
	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Start the API, the dispatcher and the scheduler",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence (file path or postgres:// URL)",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the cross-process execution guard; in-memory when empty",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.DurationFlag{
				Name:    "scheduler-interval",
				Usage:   "How often scheduled workflows are checked",
				Value:   scheduler.DefaultInterval,
				Sources: cli.EnvVars("SCHEDULER_INTERVAL"),
			},
			&cli.DurationFlag{
				Name:    "action-timeout",
				Usage:   "Maximum duration of a single action call",
				Value:   workflow.DefaultActionTimeout,
				Sources: cli.EnvVars("ACTION_TIMEOUT"),
			},
			&cli.IntFlag{
				Name:    "worker-pool-size",
				Usage:   "Maximum number of workflows executing concurrently",
				Value:   workflow.DefaultWorkers,
				Sources: cli.EnvVars("WORKER_POOL_SIZE"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
			&cli.FloatFlag{
				Name:    "trace-sample-ratio",
				Usage:   "Fraction of executions traced when tracing is enabled",
				Value:   1,
				Sources: cli.EnvVars("TRACE_SAMPLE_RATIO"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return run(ctx, command)
		},
	}
}

//nolint:funlen // wiring of every component lives in one place
func run(ctx context.Context, command *cli.Command) error {
	logger := log.WithModule("automation")

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.InfoContext(ctx, "Initializing automation engine")

	tracer := otelhelper.NoopTracer()

	if command.Bool("tracing") {
		t, shutdown, err := otelhelper.NewTracer(ctx, serviceName, command.Float("trace-sample-ratio"))
		if err != nil {
			return fmt.Errorf("failed to initialize tracer: %w", err)
		}

		defer func() {
			if err := shutdown(context.WithoutCancel(ctx)); err != nil {
				logger.Error("Failed to shutdown tracer provider", "error", err)
			}
		}()

		tracer = t
	}

	persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return err
	}

	defer func() {
		if err := persistence.Close(context.WithoutCancel(ctx)); err != nil {
			logger.Error("Failed to close persistence", "error", err)
		}
	}()

	eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), serviceName, logger)
	if err != nil {
		return err
	}

	defer func() {
		if err := eventBus.Close(); err != nil {
			logger.Error("Failed to close event bus", "error", err)
		}
	}()

	facts := eventbus.NewFactPublisher(eventBus)
	clock := clockwork.NewRealClock()

	options := []workflow.Option{
		workflow.WithClock(clock),
		workflow.WithTracer(tracer),
		workflow.WithActionTimeout(command.Duration("action-timeout")),
		workflow.WithFactPublisher(facts),
	}

	if url := command.String("redis-url"); url != "" {
		client, err := redislock.NewClient(ctx, url)
		if err != nil {
			return fmt.Errorf("failed to connect to redis: %w", err)
		}

		defer func() {
			if err := client.Close(); err != nil {
				logger.Error("Failed to close redis client", "error", err)
			}
		}()

		options = append(options, workflow.WithExecutionGuard(redislock.NewGuard(client, redislock.DefaultTTL, logger)))
	}

	workflows := persistence.WorkflowRepository()
	registry := cmd.NewRegistry(logger)

	executor := workflow.NewExecutor(registry, workflows, persistence.ExecutionRepository(), logger, options...)
	lanes := workflow.NewLanes(executor, workflows, logger, int64(command.Int("worker-pool-size")), workflow.DefaultQueueCapacity)
	manager := workflow.NewManager(workflow.NewDispatcher(workflows, logger), lanes, executor, logger)

	if err := eventBus.Handle(events.BusinessEventReceived, manager.HandleBusinessEvent); err != nil {
		return fmt.Errorf("failed to register business event handler: %w", err)
	}

	if err := eventBus.Subscribe(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to event bus: %w", err)
	}

	sched := scheduler.New(workflows, persistence.ScheduleRepository(), manager, logger,
		scheduler.WithClock(clock),
		scheduler.WithInterval(command.Duration("scheduler-interval")),
	)

	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	api := NewAPI(
		logger,
		services.NewWorkflow(persistence, facts, logger, services.WithClock(clock)),
		eventbus.NewIngester(eventBus, clock),
		registry,
	)

	serveErr := make(chan error, 1)

	go func() {
		serveErr <- api.Start(command.Int("port"))
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("HTTP server stopped", "error", err)
		}
	}

	return shutdown(logger, api, sched, manager)
}

func shutdown(logger *slog.Logger, api *API, sched *scheduler.Scheduler, manager *workflow.Manager) error {
	logger.Info("Shutting down automation engine")

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()

	var errs []error

	if err := api.App().ShutdownWithContext(ctx); err != nil {
		errs = append(errs, fmt.Errorf("failed to stop HTTP server: %w", err))
	}

	sched.Stop()

	for _, c := range manager.Shutdown(ctx) {
		logger.Warn("Abandoned delayed action",
			"execution_id", c.ExecutionID,
			"workflow_id", c.Workflow.ID,
			"tenant_id", c.Workflow.TenantID,
			"resume_at", c.ResumeAt,
		)
	}

	return errors.Join(errs...)
}
