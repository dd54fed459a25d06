package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/placement-monitor/internal/crm"
	"github.com/sells-group/placement-monitor/pkg/salesforce"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Import submissions from Salesforce and pull review decisions from Notion",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := cfg.Validate("sync"); err != nil {
			return err
		}
		window, _ := cmd.Flags().GetDuration("since")
		pushNPI, _ := cmd.Flags().GetBool("push-npi")
		skipDecisions, _ := cmd.Flags().GetBool("skip-decisions")

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		sf, err := salesforce.Login(salesforce.Credentials{
			LoginURL: cfg.Salesforce.LoginURL,
			Username: cfg.Salesforce.Username,
			ClientID: cfg.Salesforce.ClientID,
			KeyPath:  cfg.Salesforce.KeyPath,
		}, salesforce.WithRateLimit(5))
		if err != nil {
			return err
		}

		var since time.Time
		if window > 0 {
			since = time.Now().Add(-window)
		}

		res, err := crm.NewSyncer(sf, st, cfg.Salesforce.SubmissionObj, crm.WithNPIPush(pushNPI)).Sync(ctx, since)
		if err != nil {
			return eris.Wrap(err, "sync")
		}
		_, _ = fmt.Fprintf(os.Stdout, "Submissions: %d  Candidates: %d  Skipped: %d  NPIs pushed: %d\n",
			res.Submissions, res.Candidates, res.Skipped, res.NPIsPushed)

		if skipDecisions {
			return nil
		}
		_, queue := initReview()
		if queue == nil {
			zap.L().Debug("notion review queue not configured; skipping decisions")
			return nil
		}
		applied, err := queue.PullDecisions(ctx, st)
		if err != nil {
			return eris.Wrap(err, "sync decisions")
		}
		_, _ = fmt.Fprintf(os.Stdout, "Review decisions applied: %d\n", applied)
		return nil
	},
}

func init() {
	syncCmd.Flags().Duration("since", 0, "only import submissions modified within this window (0 = all)")
	syncCmd.Flags().Bool("push-npi", false, "write NPIs found by the monitor back to Salesforce contacts")
	syncCmd.Flags().Bool("skip-decisions", false, "do not pull review decisions from Notion")
	rootCmd.AddCommand(syncCmd)
}
