package main

import (
	"context"
	"fmt"
	"os"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/rs/zerolog"
	"github.com/segmentio/ksuid"
	"github.com/urfave/cli/v2"

	"github.com/savaki/secrets-rotator/internal/di"
	"github.com/savaki/secrets-rotator/internal/rotation"
)

type Handler struct {
	rotator *rotation.Rotator
}

func NewHandler(rotator *rotation.Rotator) *Handler {
	return &Handler{
		rotator: rotator,
	}
}

// HandleRotation is invoked by Secrets Manager once per step. A returned
// error makes Secrets Manager retry the same step with the same token.
func (h *Handler) HandleRotation(ctx context.Context, event events.SecretsManagerSecretRotationEvent) error {
	step, err := rotation.ParseStep(event.Step)
	if err != nil {
		return err
	}

	return h.rotator.Handle(ctx, rotation.Request{
		SecretID: event.SecretID,
		Token:    event.ClientRequestToken,
		Step:     step,
	})
}

// manualToken satisfies the 32 to 64 character ClientRequestToken rule.
func manualToken() string {
	return "manual-" + ksuid.New().String()
}

func newHandler(ctx context.Context, env string) (*Handler, error) {
	container, err := di.New(env, di.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("failed to create container: %w", err)
	}

	rotator, err := di.Get[*rotation.Rotator](container)
	if err != nil {
		return nil, fmt.Errorf("failed to create rotator: %w", err)
	}
	return NewHandler(rotator), nil
}

func startLambda(env string) error {
	logger := di.ProvideLogger().With().Str("lambda", "rotator").Logger()
	ctx := logger.WithContext(context.Background())

	handler, err := newHandler(ctx, env)
	if err != nil {
		return err
	}

	wrappedHandler := func(ctx context.Context, event events.SecretsManagerSecretRotationEvent) error {
		ctx = logger.WithContext(ctx)
		return handler.HandleRotation(ctx, event)
	}
	lambda.Start(wrappedHandler)
	return nil
}

func cliContext() context.Context {
	logger := di.ProvideLogger().With().Str("cli", "rotator").Logger()
	return logger.WithContext(context.Background())
}

func handleRotateCommand(c *cli.Context) error {
	ctx := cliContext()
	handler, err := newHandler(ctx, c.String("env"))
	if err != nil {
		return err
	}

	token := c.String("token")
	if token == "" {
		token = manualToken()
	}

	if err := handler.rotator.RotateAll(ctx, c.String("secret-id"), token); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "Rotation completed successfully (version %s)\n", token)
	return nil
}

func handleStepCommand(c *cli.Context) error {
	ctx := cliContext()
	handler, err := newHandler(ctx, c.String("env"))
	if err != nil {
		return err
	}

	err = handler.HandleRotation(ctx, events.SecretsManagerSecretRotationEvent{
		Step:               c.String("step"),
		SecretID:           c.String("secret-id"),
		ClientRequestToken: c.String("token"),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "%s completed\n", c.String("step"))
	return nil
}

func handleCancelRotationCommand(c *cli.Context) error {
	ctx := cliContext()
	handler, err := newHandler(ctx, c.String("env"))
	if err != nil {
		return err
	}

	secretID := c.String("secret-id")
	fmt.Fprintf(c.App.Writer, "Cancelling pending rotation for secret: %s\n", secretID)

	if err := handler.rotator.CancelRotation(ctx, secretID, c.String("version-id")); err != nil {
		return err
	}

	fmt.Fprintln(c.App.Writer, "Successfully cancelled pending rotation")
	return nil
}

func secretIDFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "secret-id",
		Usage:    "Secret ID (name or ARN)",
		Required: true,
		EnvVars:  []string{"SECRET_ID"},
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "rotator",
		Usage: "Secrets Manager rotation function for database credentials",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "env",
				Usage:   "Environment name used for SSM configuration",
				Value:   "dev",
				EnvVars: []string{"ENV"},
			},
		},
		DefaultCommand: "rotate",
		Commands: []*cli.Command{
			{
				Name:  "rotate",
				Usage: "Run all four rotation steps with a new token",
				Flags: []cli.Flag{
					secretIDFlag(),
					&cli.StringFlag{
						Name:  "token",
						Usage: "ClientRequestToken to use; defaults to a generated manual token",
					},
				},
				Action: handleRotateCommand,
			},
			{
				Name:  "step",
				Usage: "Run a single rotation step, e.g. to retry setSecret",
				Flags: []cli.Flag{
					secretIDFlag(),
					&cli.StringFlag{
						Name:     "token",
						Usage:    "ClientRequestToken of the rotation in progress",
						Required: true,
					},
					&cli.StringFlag{
						Name:     "step",
						Usage:    "createSecret, setSecret, testSecret or finishSecret",
						Required: true,
					},
				},
				Action: handleStepCommand,
			},
			{
				Name:  "cancel-rotation",
				Usage: "Cancel a pending rotation",
				Flags: []cli.Flag{
					secretIDFlag(),
					&cli.StringFlag{
						Name:     "version-id",
						Usage:    "Version ID of the pending rotation to cancel",
						Required: true,
					},
				},
				Action: handleCancelRotationCommand,
			},
		},
	}
}

func main() {
	env := os.Getenv("ENV")
	if env == "" {
		env = "dev"
	}

	if os.Getenv("AWS_LAMBDA_RUNTIME_API") != "" {
		if err := startLambda(env); err != nil {
			logger := di.ProvideLogger()
			logger.Fatal().Err(err).Msg("rotator failed to start")
		}
		return
	}

	if err := newApp().Run(os.Args); err != nil {
		zerolog.Ctx(cliContext()).Fatal().Err(err).Msg("rotator failed")
	}
}
