package main

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vitrine/storefront/internal/pkg/billing"
)

// outcomeCounter is the Redis outcome counter read by the stats command.
type outcomeCounter interface {
	Totals(ctx context.Context) (map[string]int64, error)
	Day(ctx context.Context, day time.Time) (map[string]int64, error)
	Reset(ctx context.Context) (map[string]int64, error)
}

type cli struct {
	out        io.Writer
	newService func() (*billing.Service, error)
	newCounter func() (outcomeCounter, error)
	now        func() time.Time
}

func newRootCmd(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:           "webhookctl",
		Short:         "Inspect and replay payment webhook deliveries",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(c.out)

	root.AddCommand(c.mapStatusCmd())
	root.AddCommand(c.eventsCmd())
	root.AddCommand(c.replayCmd())
	root.AddCommand(c.statsCmd())
	return root
}

func (c *cli) mapStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "map-status STATUS...",
		Short: "Print the order status a gateway payment status maps to",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, status := range args {
				fmt.Fprintf(c.out, "%s\t%s\n", status, billing.MapAsaasStatus(status))
			}
			return nil
		},
	}
}

func (c *cli) eventsCmd() *cobra.Command {
	events := &cobra.Command{
		Use:   "events",
		Short: "Work with the webhook ledger",
	}

	var (
		limit   int
		outcome string
	)
	list := &cobra.Command{
		Use:   "list",
		Short: "List recent webhook deliveries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := c.newService()
			if err != nil {
				return err
			}
			rows, err := svc.ListWebhookEvents(cmd.Context(), billing.WebhookEventFilter{
				Outcome: strings.TrimSpace(outcome),
				Limit:   limit,
			})
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tEVENT\tPAYMENT\tREFERENCE\tOUTCOME\tRECEIVED\tERROR")
			for _, row := range rows {
				fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\t%s\n",
					row.ID, row.EventType, row.PaymentID, row.ExternalReference, row.Outcome,
					row.CreatedAt.UTC().Format(time.RFC3339), row.ProcessingError)
			}
			return tw.Flush()
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 50, "maximum number of rows")
	list.Flags().StringVarP(&outcome, "outcome", "o", "", "only rows with this outcome (e.g. not_found)")

	events.AddCommand(list)
	return events
}

func (c *cli) replayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "replay LEDGER_ID",
		Short: "Re-run reconciliation for a stored delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil || id == 0 {
				return fmt.Errorf("invalid ledger id %q", args[0])
			}

			svc, err := c.newService()
			if err != nil {
				return err
			}
			res, err := svc.Replay(cmd.Context(), uint(id))
			if err != nil {
				return err
			}

			fmt.Fprintf(c.out, "outcome: %s\npath: %s\n", res.Outcome, res.Path)
			if res.OrderID != "" {
				fmt.Fprintf(c.out, "order: %s\n", res.OrderID)
			}
			if res.Transition != nil {
				fmt.Fprintf(c.out, "transition: %s -> %s\n", res.Transition.From, res.Transition.To)
			}
			if res.Err != nil {
				return fmt.Errorf("replay failed: %w", res.Err)
			}
			return nil
		},
	}
}

func (c *cli) statsCmd() *cobra.Command {
	var reset bool
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Print webhook outcome counters",
		Long: "Print the running outcome totals next to today's (UTC) counters.\n" +
			"With --reset the running totals are drained after printing; daily counters expire on their own.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			counter, err := c.newCounter()
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			today, err := counter.Day(ctx, c.now())
			if err != nil {
				return err
			}
			var totals map[string]int64
			if reset {
				totals, err = counter.Reset(ctx)
			} else {
				totals, err = counter.Totals(ctx)
			}
			if err != nil {
				return err
			}

			if err := printOutcomes(c.out, totals, today); err != nil {
				return err
			}
			if reset {
				fmt.Fprintln(c.out, "running totals reset")
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&reset, "reset", false, "drain the running totals after reading them")
	return cmd
}

func printOutcomes(w io.Writer, totals, today map[string]int64) error {
	seen := make(map[string]struct{}, len(totals)+len(today))
	for k := range totals {
		seen[k] = struct{}{}
	}
	for k := range today {
		seen[k] = struct{}{}
	}
	outcomes := make([]string, 0, len(seen))
	for k := range seen {
		outcomes = append(outcomes, k)
	}
	sort.Strings(outcomes)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tTOTAL\tTODAY")
	for _, o := range outcomes {
		fmt.Fprintf(tw, "%s\t%d\t%d\n", o, totals[o], today[o])
	}
	return tw.Flush()
}
