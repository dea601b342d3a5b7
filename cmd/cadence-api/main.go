package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/cadencehq/cadence/pkg/cmd"
	"github.com/cadencehq/cadence/pkg/email"
	"github.com/cadencehq/cadence/pkg/log"
	"github.com/cadencehq/cadence/pkg/workflow"
)

const serviceName = "cadence-api"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		EnableShellCompletion: true,
		Usage:                 "Start the cadence HTTP API",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Usage:   "Port to run the API server on",
				Value:   8080,
				Sources: cli.EnvVars("PORT"),
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

	logger := log.WithModule(serviceName)

	logger.InfoContext(ctx, "Initializing cadence API")

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

	// The API only enqueues; it never starts queue consumption. Workers
	// sharing the same Redis pick the jobs up.
	delayed := cmd.NewDelayedQueue(ctx, logger, command.String("queue-url"), 0)
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
	})
	if err != nil {
		return err
	}

	api := NewAPI(logger, store, engine)

	logger.InfoContext(ctx, "Starting cadence API", "port", command.Int("port"))

	return api.Start(command.Int("port"))
}
