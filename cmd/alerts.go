package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/store"
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect and review placement alerts",
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List alerts, newest first",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("monitor"); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		candidate, _ := cmd.Flags().GetString("candidate")
		limit, _ := cmd.Flags().GetInt("limit")
		offset, _ := cmd.Flags().GetInt("offset")
		asJSON, _ := cmd.Flags().GetBool("json")

		filter := store.AlertFilter{
			Status:      model.AlertStatus(strings.ToLower(status)),
			CandidateID: candidate,
			Limit:       limit,
			Offset:      offset,
		}
		if filter.Status != "" && !filter.Status.Valid() {
			return eris.Errorf("alerts list: unknown status %q", status)
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		alerts, err := st.ListAlerts(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "alerts list")
		}
		if asJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(alerts)
		}
		if len(alerts) == 0 {
			_, _ = fmt.Fprintln(os.Stderr, "No alerts found.")
			return nil
		}
		formatAlertsList(os.Stdout, alerts)
		return nil
	},
}

var alertsReviewCmd = &cobra.Command{
	Use:   "review <alert-id> <pending|reviewing|confirmed|dismissed>",
	Short: "Record a review decision on an alert",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("monitor"); err != nil {
			return err
		}
		status := model.AlertStatus(strings.ToLower(args[1]))
		if !status.Valid() {
			return eris.Errorf("alerts review: unknown status %q", args[1])
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		a, err := st.UpdateAlertStatus(ctx, args[0], status)
		if err != nil {
			return eris.Wrap(err, "alerts review")
		}
		_, _ = fmt.Fprintf(os.Stdout, "%s: %s at %s is now %s\n", truncateID(a.ID), a.CandidateName, a.ClientName, a.Status)
		return nil
	},
}

func init() {
	alertsListCmd.Flags().String("status", "", "filter by review status (pending, reviewing, confirmed, dismissed)")
	alertsListCmd.Flags().String("candidate", "", "filter by candidate ID")
	alertsListCmd.Flags().Int("limit", 50, "max number of alerts to display")
	alertsListCmd.Flags().Int("offset", 0, "number of alerts to skip")
	alertsListCmd.Flags().Bool("json", false, "print as JSON")

	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsReviewCmd)
	rootCmd.AddCommand(alertsCmd)
}

// formatAlertsList writes a tabular list of alerts to out.
func formatAlertsList(out io.Writer, alerts []model.Alert) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tCANDIDATE\tCLIENT\tSOURCE\tCONFIDENCE\tSTATUS\tCREATED")
	_, _ = fmt.Fprintln(w, "--\t---------\t------\t------\t----------\t------\t-------")
	for _, a := range alerts {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			truncateID(a.ID),
			clip(a.CandidateName, 25),
			clip(a.ClientName, 30),
			a.Source,
			a.Confidence,
			a.Status,
			a.CreatedAt.Format("2006-01-02 15:04"),
		)
	}
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func clip(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
