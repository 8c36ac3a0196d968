package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/smazurov/framebus/internal/config"
	"github.com/smazurov/framebus/internal/sim"
	"github.com/spf13/cobra"
)

// ErrDoesNotFit is returned by RunPlan when a scenario would drop records.
var ErrDoesNotFit = errors.New("scenario does not fit its arenas")

// CreatePlanCmd creates the plan command.
func CreatePlanCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "plan [scenario-file...]",
		Short: "Check that scenarios fit their arenas",
		Long: `Posts the worst-case frame of each scenario, with every producer firing at once, ` +
			`on a scratch bus sized from its [bus] table and reports arena use. Exits non-zero when a scenario would drop records.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return RunPlan(cmd.OutOrStdout(), args, asJSON)
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print reports as JSON")
	return cmd
}

// RunPlan writes a capacity report for every scenario file.
func RunPlan(out io.Writer, paths []string, asJSON bool) error {
	reports := make([]sim.PlanReport, 0, len(paths))
	var errs []error
	for _, path := range paths {
		sc, err := config.LoadScenario(path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		r, err := sim.Plan(sc)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			continue
		}
		if !r.Fits() {
			errs = append(errs, fmt.Errorf("%s: %w: %d posts failed", path, ErrDoesNotFit, r.FailedPosts))
		}
		reports = append(reports, r)
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return errors.Join(errs...)
	}

	for i, r := range reports {
		if i > 0 {
			fmt.Fprintln(out)
		}
		if err := writePlan(out, r); err != nil {
			return err
		}
	}
	return errors.Join(errs...)
}

func writePlan(out io.Writer, r sim.PlanReport) error {
	verdict := "fits"
	if !r.Fits() {
		verdict = fmt.Sprintf("DOES NOT FIT (%d posts failed)", r.FailedPosts)
	}
	fmt.Fprintf(out, "%s: %s\n", r.Scenario, verdict)
	fmt.Fprintf(out, "  payload  %d / %d bytes (%.0f%% headroom)\n", r.PayloadUsed, r.PayloadCapacity, r.Headroom()*100)
	fmt.Fprintf(out, "  heap     %d / %d bytes\n", r.HeapUsed, r.HeapCapacity)
	fmt.Fprintf(out, "  channels %d / %d\n", r.Channels, r.MaxChannels)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "  EVENT\tRECORD\tRECORDS\tBLOCKS")
	for _, c := range r.PerChannel {
		fmt.Fprintf(tw, "  %s\t%d\t%d\t%d\n", c.Event, c.RecordSize, c.Records, c.Blocks)
	}
	return tw.Flush()
}
