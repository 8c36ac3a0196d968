package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/smazurov/framebus/internal/config"
	"github.com/smazurov/framebus/internal/logging"
	"github.com/smazurov/framebus/internal/sim"
	"github.com/spf13/cobra"
)

// CreateSimulateCmd creates the simulate command.
func CreateSimulateCmd() *cobra.Command {
	var frames int
	var asJSON bool
	var logLevel string

	cmd := &cobra.Command{
		Use:   "simulate [scenario-file]",
		Short: "Run a scenario headless and print a report",
		Long: `Runs the scenario without the HTTP server and prints totals and consumer state. ` +
			`Frames default to the scenario's frames value. Interrupt to stop early; the report covers the frames that ran.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logging.Initialize(logging.Config{Level: logLevel, Format: "text"})
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return RunSimulate(ctx, cmd.OutOrStdout(), args[0], frames, asJSON)
		},
	}

	cmd.Flags().IntVarP(&frames, "frames", "n", 0, "Frames to run (overrides the scenario)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the report as JSON")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	return cmd
}

// RunSimulate loads the scenario at path, runs it and writes the summary to
// out.
func RunSimulate(ctx context.Context, out io.Writer, path string, frames int, asJSON bool) error {
	sc, err := config.LoadScenario(path)
	if err != nil {
		return err
	}
	if frames <= 0 {
		frames = sc.Frames
	}
	if frames <= 0 {
		return fmt.Errorf("scenario %s sets no frames, pass --frames", sc.Name)
	}

	s, err := sim.New(sc, sim.WithLogger(logging.GetLogger("sim")), sim.WithBusLogger(logging.GetLogger("eventbus")))
	if err != nil {
		return err
	}
	defer s.Close()

	sum, err := s.Run(ctx, frames)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(sum)
	}
	return writeSummary(out, sum)
}

func writeSummary(out io.Writer, sum sim.Summary) error {
	fmt.Fprintf(out, "Scenario:      %s\n", sum.Scenario)
	fmt.Fprintf(out, "Frames:        %d\n", sum.Frames)
	fmt.Fprintf(out, "Posted:        %d\n", sum.Posted)
	fmt.Fprintf(out, "Failed posts:  %d\n", sum.FailedPosts)
	fmt.Fprintf(out, "Delivered:     %d\n", sum.Delivered)
	fmt.Fprintf(out, "Peak payload:  %d bytes\n", sum.PeakPayload)
	if sum.Frames > 0 {
		fmt.Fprintf(out, "Avg frame:     %s\n", sum.Busy/time.Duration(sum.Frames))
	}
	if len(sum.Consumers) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "CONSUMER\tEVENT\tBINDING\tSTATE\tRECEIVED\tSUM")
	for _, c := range sum.Consumers {
		state := "subscribed"
		switch {
		case c.Duplicate:
			state = "duplicate"
		case !c.Subscribed:
			state = "left"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%g\n", c.Name, c.Event, c.Binding, state, c.Received, c.Sum)
	}
	return tw.Flush()
}
