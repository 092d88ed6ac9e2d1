// Package main provides portalctl, an operator CLI for the privileged portal
// operations: verification, sweeps, reviews, audits and payouts.
package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "portalctl",
		Usage: "Operate the token sale and airdrop portal",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "log-level", Value: "warn", Usage: "Log level written to stderr", EnvVars: []string{"PORTALCTL_LOG_LEVEL"}},
			&cli.StringFlag{Name: "actor", Value: defaultActor(), Usage: "Name recorded in the audit log", EnvVars: []string{"PORTALCTL_ACTOR"}},
		},
		Commands: []*cli.Command{
			{
				Name:      "verify",
				Usage:     "Verify the payment of one intent against the chain",
				ArgsUsage: "<intent-id>",
				Action:    withApp(verifyCmd),
			},
			{
				Name:      "force-confirm",
				Usage:     "Confirm an intent without a matching transfer",
				ArgsUsage: "<intent-id>",
				Action:    withApp(forceConfirmCmd),
			},
			{
				Name:  "sweep",
				Usage: "Verify the oldest unconfirmed intents and retry missing commissions",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 100, Usage: "Maximum intents to scan (capped at 1000)"},
				},
				Action: withApp(sweepCmd),
			},
			{
				Name:  "audit",
				Usage: "Reconcile campaign counters against the allocation ledger",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "campaign", Usage: "Audit a single campaign"},
				},
				Action: withApp(auditCmd),
			},
			{
				Name:      "queue",
				Usage:     "List a campaign's submissions awaiting review, oldest first",
				ArgsUsage: "<campaign-id>",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 50, Usage: "Maximum submissions to list (capped at 500)"},
				},
				Action: withApp(queueCmd),
			},
			{
				Name:      "approve",
				Usage:     "Approve pending submissions and allocate their bounties",
				ArgsUsage: "<submission-id>...",
				Action:    withApp(approveCmd),
			},
			{
				Name:      "reject",
				Usage:     "Reject pending submissions",
				ArgsUsage: "<submission-id>...",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "reason", Required: true, Usage: "Reason shown to the submitter"},
				},
				Action: withApp(rejectCmd),
			},
			{
				Name:  "mark-payable",
				Usage: "Move pending commissions of intents confirmed before a cutoff to payable",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "before", Value: "168h", Usage: "RFC3339 timestamp or a duration ago such as 72h"},
				},
				Action: withApp(markPayableCmd),
			},
			{
				Name:      "mark-paid",
				Usage:     "Record the payout transaction of a payable commission",
				ArgsUsage: "<commission-id>",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "signature", Required: true, Usage: "Payout transaction signature"},
				},
				Action: withApp(markPaidCmd),
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func defaultActor() string {
	if u := os.Getenv("USER"); u != "" {
		return "cli:" + u
	}
	return "cli"
}
