package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/skopiLandToken/skopi-sub000/internal/bootstrap"
	"github.com/skopiLandToken/skopi-sub000/internal/config"
	"github.com/skopiLandToken/skopi-sub000/internal/logging"
	"github.com/skopiLandToken/skopi-sub000/internal/retry"
)

type command func(ctx context.Context, c *cli.Context, app *bootstrap.App) (interface{}, error)

// withApp loads config, connects, runs cmd and prints its result as JSON.
func withApp(cmd command) cli.ActionFunc {
	return func(c *cli.Context) error {
		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}

		logger := logging.NewLogger(logging.ParseLogLevel(c.String("log-level")), logging.FormatText)
		logger.SetOutput(os.Stderr)
		ctx := logging.WithLogger(c.Context, logger.WithField("actor", c.String("actor")))

		app, err := bootstrap.Build(ctx, cfg, bootstrap.Options{
			Retry: &retry.RetryConfig{MaxAttempts: 2, InitialDelay: time.Second, MaxDelay: time.Second, Multiplier: 1},
		})
		if err != nil {
			return err
		}
		defer app.Close()

		result, err := cmd(ctx, c, app)
		if err != nil {
			return err
		}
		return printJSON(c.App.Writer, result)
	}
}

func printJSON(w io.Writer, v interface{}) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// requireArgs returns the positional arguments, failing when fewer than min
// are given.
func requireArgs(c *cli.Context, min int) ([]string, error) {
	args := c.Args().Slice()
	if len(args) < min {
		return nil, fmt.Errorf("%s: expected at least %d argument(s): %s", c.Command.Name, min, c.Command.ArgsUsage)
	}
	return args, nil
}

// parseCutoff accepts an RFC3339 timestamp or a duration measured back from now.
func parseCutoff(value string, now time.Time) (time.Time, error) {
	value = strings.TrimSpace(value)
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil || d < 0 {
		return time.Time{}, fmt.Errorf("invalid cutoff %q: want RFC3339 or a positive duration", value)
	}
	return now.Add(-d), nil
}

func verifyCmd(ctx context.Context, c *cli.Context, app *bootstrap.App) (interface{}, error) {
	args, err := requireArgs(c, 1)
	if err != nil {
		return nil, err
	}
	return app.Verification.Verify(ctx, args[0])
}

func forceConfirmCmd(ctx context.Context, c *cli.Context, app *bootstrap.App) (interface{}, error) {
	args, err := requireArgs(c, 1)
	if err != nil {
		return nil, err
	}
	return app.Verification.ForceConfirm(ctx, args[0], c.String("actor"))
}

func sweepCmd(ctx context.Context, c *cli.Context, app *bootstrap.App) (interface{}, error) {
	return app.Sweep.Run(ctx, c.Int("limit"))
}

func auditCmd(ctx context.Context, c *cli.Context, app *bootstrap.App) (interface{}, error) {
	var campaignID *string
	if id := strings.TrimSpace(c.String("campaign")); id != "" {
		campaignID = &id
	}
	return app.Reconciliation.Audit(ctx, campaignID)
}

func queueCmd(ctx context.Context, c *cli.Context, app *bootstrap.App) (interface{}, error) {
	args, err := requireArgs(c, 1)
	if err != nil {
		return nil, err
	}
	return app.Review.ListPending(ctx, args[0], c.Int("limit"))
}

func approveCmd(ctx context.Context, c *cli.Context, app *bootstrap.App) (interface{}, error) {
	ids, err := requireArgs(c, 1)
	if err != nil {
		return nil, err
	}
	return app.Review.Approve(ctx, ids, c.String("actor"))
}

func rejectCmd(ctx context.Context, c *cli.Context, app *bootstrap.App) (interface{}, error) {
	ids, err := requireArgs(c, 1)
	if err != nil {
		return nil, err
	}
	return app.Review.Reject(ctx, ids, c.String("actor"), c.String("reason"))
}

func markPayableCmd(ctx context.Context, c *cli.Context, app *bootstrap.App) (interface{}, error) {
	cutoff, err := parseCutoff(c.String("before"), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	n, err := app.Commissions.MarkPayable(ctx, cutoff, c.String("actor"))
	if err != nil {
		return nil, err
	}
	return map[string]interface{}{"confirmedBefore": cutoff, "updated": n}, nil
}

func markPaidCmd(ctx context.Context, c *cli.Context, app *bootstrap.App) (interface{}, error) {
	args, err := requireArgs(c, 1)
	if err != nil {
		return nil, err
	}
	return app.Commissions.MarkPaid(ctx, args[0], c.String("signature"), c.String("actor"))
}
