package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	cli "github.com/urfave/cli/v3"

	"github.com/cadencehq/cadence/pkg/cmd"
	"github.com/cadencehq/cadence/pkg/email"
	"github.com/cadencehq/cadence/pkg/eventbus"
	"github.com/cadencehq/cadence/pkg/events"
	"github.com/cadencehq/cadence/pkg/log"
	"github.com/cadencehq/cadence/pkg/otelhelper"
	"github.com/cadencehq/cadence/pkg/workflow"
)

const serviceName = "cadence-worker"

// overdueGrace is how long past its resume time a paused execution may sit
// before the janitor assumes the resume job was lost and requeues it.
const overdueGrace = time.Minute

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		EnableShellCompletion: true,
		Usage:                 "Start workers to run lead outreach workflows",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "worker-id",
				Aliases: []string{"id"},
				Usage:   "Custom worker ID (auto-generated if not provided)",
				Value:   "",
				Sources: cli.EnvVars("WORKER_ID"),
			},
			&cli.StringFlag{
				Name:     "database-url",
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "queue-url",
				Usage:   "Redis URL for the delayed job queue (in-memory if empty)",
				Value:   "",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (kafka, gochannel)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.IntFlag{
				Name:    "concurrency",
				Usage:   "Number of concurrent execution workers",
				Value:   5,
				Sources: cli.EnvVars("CONCURRENCY"),
			},
			&cli.BoolFlag{
				Name:    "strict-node-types",
				Usage:   "Fail executions on unrecognized node types instead of skipping them",
				Sources: cli.EnvVars("STRICT_NODE_TYPES"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Enable OpenTelemetry tracing export",
				Sources: cli.EnvVars("OTEL_ENABLED"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}

func run(ctx context.Context, command *cli.Command) error {
	log.Setup(command.String("log-level"))

	workerID := command.String("worker-id")
	if workerID == "" {
		workerID = "worker-" + uuid.New().String()[:8]
	}

	logger := log.WithModule(serviceName).With("worker_id", workerID)

	logger.InfoContext(ctx, "Initializing cadence worker")

	if command.Bool("tracing") {
		_, err := otelhelper.NewTracer(ctx, serviceName)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to initialize tracing", "error", err)
		}
	}

	eventBus := cmd.NewEventBus(command.String("event-bus"), serviceName, logger)
	defer func() {
		err := eventBus.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}
	}()

	store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		err := store.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

	delayed := cmd.NewDelayedQueue(ctx, logger, command.String("queue-url"), command.Int("concurrency"))
	defer func() {
		err := delayed.Close()
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close delayed queue", "error", err)
		}
	}()

	engine, err := workflow.NewEngine(workflow.Config{
		Persistence: store,
		Queue:       delayed,
		Sender:      email.NewSlogSender(logger),
		Publisher:   eventBus,
		Logger:      logger,
		WorkerID:    workerID,
		StrictTypes: command.Bool("strict-node-types"),
	})
	if err != nil {
		return err
	}

	delayed.Handle(workflow.JobKindRun, engine.QueueHandler())

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	err = subscribeLifecycleEvents(ctx, eventBus, logger)
	if err != nil {
		return err
	}

	err = delayed.Start(ctx)
	if err != nil {
		return err
	}

	janitor := cron.New()

	_, err = janitor.AddFunc("@every 1m", func() {
		requeued, err := engine.RequeueOverdue(ctx, overdueGrace)
		if err != nil {
			logger.ErrorContext(ctx, "Janitor sweep failed", "error", err)

			return
		}

		if requeued > 0 {
			logger.InfoContext(ctx, "Janitor requeued overdue executions", "count", requeued)
		}
	})
	if err != nil {
		return err
	}

	janitor.Start()
	defer janitor.Stop()

	logger.InfoContext(ctx, "Cadence worker started", "concurrency", command.Int("concurrency"))

	<-ctx.Done()

	logger.Info("Shutting down cadence worker")

	return nil
}

// subscribeLifecycleEvents consumes terminal execution events from the bus.
// Over kafka this observes every worker in the consumer group, not just this
// process, so the worker log carries a fleet-wide outcome trail.
func subscribeLifecycleEvents(ctx context.Context, bus eventbus.EventBus, logger *slog.Logger) error {
	err := bus.Handle(events.ExecutionCompletedEvent, func(ctx context.Context, event any) error {
		completed, ok := event.(*events.ExecutionCompleted)
		if !ok {
			return nil
		}

		logger.InfoContext(ctx, "Execution completed",
			"execution_id", completed.ExecutionID,
			"workflow_id", completed.WorkflowID,
			"steps_executed", completed.StepsExecuted,
			"duration_ms", completed.DurationMs,
		)

		return nil
	})
	if err != nil {
		return err
	}

	err = bus.Handle(events.ExecutionFailedEvent, func(ctx context.Context, event any) error {
		failed, ok := event.(*events.ExecutionFailed)
		if !ok {
			return nil
		}

		logger.WarnContext(ctx, "Execution failed",
			"execution_id", failed.ExecutionID,
			"workflow_id", failed.WorkflowID,
			"node_id", failed.NodeID,
			"error", failed.Error,
		)

		return nil
	})
	if err != nil {
		return err
	}

	return bus.Subscribe(ctx)
}
