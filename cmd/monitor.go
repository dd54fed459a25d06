package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/placement-monitor/internal/evidence"
	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/monitor"
)

var monitorJSON bool

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Run one monitoring pass over every candidate submission",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate("monitor"); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mon, err := initMonitor(ctx, st)
		if err != nil {
			return err
		}

		sum, err := mon.Run(ctx)
		if err != nil {
			return err
		}

		if monitorJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(sum); err != nil {
				return err
			}
		} else {
			formatSummary(os.Stdout, sum)
		}
		if sum.Error != "" {
			return eris.New(sum.Error)
		}
		return nil
	},
}

func init() {
	monitorCmd.Flags().BoolVar(&monitorJSON, "json", false, "print the run summary as JSON")
	rootCmd.AddCommand(monitorCmd)
}

// formatSummary writes a run summary with one line per source.
func formatSummary(out io.Writer, sum monitor.Summary) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	if sum.Skipped {
		_, _ = fmt.Fprintln(w, "Run skipped: another run is in progress.")
		_ = w.Flush()
		return
	}
	if sum.Error != "" {
		_, _ = fmt.Fprintf(w, "Run failed:\t%s\n", sum.Error)
	}
	_, _ = fmt.Fprintf(w, "Candidates checked:\t%d\n", sum.Checked)
	_, _ = fmt.Fprintf(w, "Pairs checked:\t%d\n", sum.Pairs)
	_, _ = fmt.Fprintf(w, "Alerts created:\t%d\n", sum.AlertsCreated)
	_, _ = fmt.Fprintf(w, "Duration:\t%s\n", sum.Duration.Round(time.Millisecond))
	if len(sum.Disabled) > 0 {
		_, _ = fmt.Fprintf(w, "Disabled services:\t%s\n", strings.Join(sum.Disabled, ", "))
	}

	sources := make([]model.Source, 0, len(sum.PerSource))
	for src := range sum.PerSource {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })
	for _, src := range sources {
		_, _ = fmt.Fprintf(w, "  %s:\t%s\n", src, formatCounts(sum.PerSource[src]))
	}
	_ = w.Flush()
}

func formatCounts(counts map[evidence.Status]int) string {
	keys := make([]string, 0, len(counts))
	for st := range counts {
		keys = append(keys, string(st))
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, counts[evidence.Status(k)])
	}
	return strings.Join(parts, " ")
}
