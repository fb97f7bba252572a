package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/quorumlabs/warden/pkg/cmd"
	"github.com/quorumlabs/warden/pkg/log"
	"github.com/quorumlabs/warden/pkg/policy"
	"github.com/quorumlabs/warden/pkg/statemachine"
)

const defaultPort = 9191

func main() {
	logger := log.WithModule("api")

	command := &cli.Command{
		Name:                  "warden-api",
		Usage:                 "Govern automated actions with policies, playbook runs, and an auditable state machine",
		EnableShellCompletion: true,
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
				Usage:    "Database connection URL for persistence",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:     "statemachine-spec",
				Usage:    "Path to the state machine spec file (YAML or JSON)",
				Required: true,
				Sources:  cli.EnvVars("STATEMACHINE_SPEC"),
			},
			&cli.StringFlag{
				Name:     "policies",
				Usage:    "Path to the policy definitions file (YAML or JSON)",
				Required: true,
				Sources:  cli.EnvVars("POLICIES"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus provider (memory, kafka)",
				Value:   "memory",
				Sources: cli.EnvVars("EVENT_BUS"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Commands: []*cli.Command{
			NewValidateCommand(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing Warden API")

			spec, err := statemachine.LoadFile(logger, command.String("statemachine-spec"))
			if err != nil {
				return err
			}

			policies, err := policy.LoadFile(command.String("policies"))
			if err != nil {
				return err
			}

			persistence := cmd.NewPersistence(ctx, logger, command.String("database-url"))

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus := cmd.NewEventBus(command.String("event-bus"), logger)

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			registry := cmd.NewRegistry(logger)

			api := NewAPI(logger, persistence, registry, eventBus, spec, policies)

			if err := api.Start(command.Int("port")); err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)

				return err
			}

			return nil
		},
	}

	err := command.Run(context.Background(), os.Args)
	if err != nil {
		panic(err)
	}
}
