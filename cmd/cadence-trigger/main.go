// Package main provides an operational tool to fire a workflow for a lead
// from the command line.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/cadencehq/cadence/pkg/cmd"
	"github.com/cadencehq/cadence/pkg/email"
	"github.com/cadencehq/cadence/pkg/log"
	"github.com/cadencehq/cadence/pkg/workflow"
)

const serviceName = "cadence-trigger"

func main() {
	command := &cli.Command{
		Name:                  serviceName,
		EnableShellCompletion: true,
		Usage:                 "Queue a workflow execution for a lead",
		Flags: []cli.Flag{
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
				Name:     "workflow-id",
				Aliases:  []string{"w"},
				Usage:    "Workflow to run",
				Required: true,
			},
			&cli.StringFlag{
				Name:     "lead-id",
				Aliases:  []string{"l"},
				Usage:    "Lead to run the workflow for",
				Required: true,
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "Trigger data as a JSON object",
				Value:   "{}",
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

	var triggerData map[string]any

	err := json.Unmarshal([]byte(command.String("data")), &triggerData)
	if err != nil {
		return fmt.Errorf("invalid trigger data: %w", err)
	}

	store := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	defer func() {
		err := store.Close(ctx)
		if err != nil {
			logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
		}
	}()

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
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	executionID, err := engine.Trigger(ctx, command.String("lead-id"), command.String("workflow-id"), triggerData)
	if err != nil {
		return err
	}

	fmt.Println(executionID)

	return nil
}
