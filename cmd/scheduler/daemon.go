package main

import (
	"fmt"
	"io"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"beanmind/internal/dates"
	"beanmind/internal/scheduler"
)

var flagDaemonInterval time.Duration

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Execute due rules now and then on every interval",
	RunE:  runDaemon,
}

func init() {
	daemonCmd.Flags().DurationVar(&flagDaemonInterval, "interval", time.Hour, "Time between runs")
	rootCmd.AddCommand(daemonCmd)
}

func runDaemon(cmd *cobra.Command, _ []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	d := scheduler.New(a.services.Recurring, scheduler.Config{
		Interval: flagDaemonInterval,
		Location: a.cfg.SchedulerLocation,
	})
	if err := d.Run(ctx); err != nil {
		return err
	}
	printStatus(cmd.OutOrStdout(), d.Status())
	return nil
}

func printStatus(w io.Writer, st scheduler.Status) {
	fmt.Fprintf(w, "%d run(s) since %s", st.RunCount, st.StartedAt.Format(time.RFC3339))
	if st.RunCount > 0 {
		fmt.Fprintf(w, ", last for %s", dates.Format(st.LastDate))
	}
	if st.LastError != "" {
		fmt.Fprintf(w, " (last error: %s)", st.LastError)
	}
	fmt.Fprintln(w)
}
