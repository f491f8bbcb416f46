package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"beanmind/internal/dates"
	"beanmind/internal/services"
)

var (
	flagRunDate string
	flagRunJSON bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute every rule due on a date",
	RunE:  runRun,
}

func init() {
	runCmd.Flags().StringVar(&flagRunDate, "date", "", "Run date (YYYY-MM-DD), defaults to today in SCHEDULER_TIMEZONE")
	runCmd.Flags().BoolVar(&flagRunJSON, "json", false, "Print the run report as JSON")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	today, err := parseDateFlag("date", flagRunDate, a.cfg.SchedulerLocation)
	if err != nil {
		return err
	}

	report, err := a.services.Recurring.RunDueRules(cmd.Context(), today)
	if err != nil {
		return fmt.Errorf("run %s: %w", dates.Format(today), err)
	}

	if flagRunJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printReport(cmd.OutOrStdout(), report)
	if report.Failed > 0 {
		return fmt.Errorf("%d rule(s) failed on %s", report.Failed, dates.Format(today))
	}
	return nil
}

func parseDateFlag(name, value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return dates.Today(loc), nil
	}
	d, err := dates.Parse(value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid --%s %q: %w", name, value, err)
	}
	return d, nil
}

func printReport(w io.Writer, report *services.RunReport) {
	fmt.Fprintf(w, "%s: checked %d, executed %d, skipped %d, failed %d\n",
		dates.Format(report.Date), report.Checked, report.Executed, report.Skipped, report.Failed)
	if len(report.Results) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RULE\tOUTCOME\tTRANSACTION\tERROR")
	for _, r := range report.Results {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", r.RuleName, r.Outcome, r.TransactionID, r.Error)
	}
	_ = tw.Flush()
}
