package main

import (
	"context"
	"fmt"

	cli "github.com/urfave/cli/v3"

	"github.com/quorumlabs/warden/pkg/log"
	"github.com/quorumlabs/warden/pkg/policy"
	"github.com/quorumlabs/warden/pkg/statemachine"
)

// NewValidateCommand validates spec files without starting the server. The
// same loaders run at startup; this surfaces schema and consistency errors
// early, in CI or before deploys.
func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:    "validate",
		Aliases: []string{"v"},
		Usage:   "Validate state machine and policy spec files",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "statemachine-spec",
				Usage:   "Path to the state machine spec file (YAML or JSON)",
				Sources: cli.EnvVars("STATEMACHINE_SPEC"),
			},
			&cli.StringFlag{
				Name:    "policies",
				Usage:   "Path to the policy definitions file (YAML or JSON)",
				Sources: cli.EnvVars("POLICIES"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.WithModule("validate")

			specPath := command.String("statemachine-spec")
			policiesPath := command.String("policies")

			if specPath == "" && policiesPath == "" {
				return fmt.Errorf("nothing to validate: provide --statemachine-spec and/or --policies")
			}

			if specPath != "" {
				spec, err := statemachine.LoadFile(logger, specPath)
				if err != nil {
					return fmt.Errorf("state machine spec %s is invalid: %w", specPath, err)
				}

				logger.InfoContext(ctx, "State machine spec is valid",
					"path", specPath, "states", len(spec.StateNames()))
			}

			if policiesPath != "" {
				policies, err := policy.LoadFile(policiesPath)
				if err != nil {
					return fmt.Errorf("policy definitions %s are invalid: %w", policiesPath, err)
				}

				logger.InfoContext(ctx, "Policy definitions are valid",
					"path", policiesPath, "policies", len(policies.ActionTypes()))
			}

			return nil
		},
	}
}
