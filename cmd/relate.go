package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/placement-monitor/internal/model"
	"github.com/sells-group/placement-monitor/internal/relate"
)

var relateCmd = &cobra.Command{
	Use:   "relate",
	Short: "Manage related organization names",
	Long:  "Related names let a mention of a parent, subsidiary or brand count as a mention of the client.",
}

var relateAddCmd = &cobra.Command{
	Use:   "add <parent> <alias>",
	Short: "Record that alias names the same organization as parent",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("monitor"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mon, err := initRelations(ctx, st)
		if err != nil {
			return err
		}
		e, added, err := mon.AddRelationship(ctx, args[0], args[1])
		if err != nil {
			return eris.Wrap(err, "relate add")
		}
		if !added {
			_, _ = fmt.Fprintf(os.Stdout, "already related: %q -> %q\n", e.Parent, e.Alias)
			return nil
		}
		_, _ = fmt.Fprintf(os.Stdout, "added: %q -> %q\n", e.Parent, e.Alias)
		return nil
	},
}

var relateListJSON bool

var relateListCmd = &cobra.Command{
	Use:   "list",
	Short: "List related names grouped by origin",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("monitor"); err != nil {
			return err
		}
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		mon, err := initRelations(ctx, st)
		if err != nil {
			return err
		}
		groups := mon.Relationships(ctx)
		if relateListJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(groups)
		}
		if len(groups.Manual) == 0 && len(groups.AutoDiscovered) == 0 {
			_, _ = fmt.Fprintln(os.Stderr, "No related names.")
			return nil
		}
		formatGroups(os.Stdout, groups)
		return nil
	},
}

func init() {
	relateListCmd.Flags().BoolVar(&relateListJSON, "json", false, "print as JSON")
	relateCmd.AddCommand(relateAddCmd)
	relateCmd.AddCommand(relateListCmd)
	rootCmd.AddCommand(relateCmd)
}

// formatGroups writes one row per parent/alias pair, manual edges first.
func formatGroups(out io.Writer, g relate.Groups) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ORIGIN\tPARENT\tALIAS")
	_, _ = fmt.Fprintln(w, "------\t------\t-----")
	for _, grp := range []struct {
		origin model.EdgeOrigin
		edges  map[string][]string
	}{
		{model.OriginManual, g.Manual},
		{model.OriginAuto, g.AutoDiscovered},
	} {
		parents := make([]string, 0, len(grp.edges))
		for p := range grp.edges {
			parents = append(parents, p)
		}
		sort.Strings(parents)
		for _, p := range parents {
			for _, alias := range grp.edges[p] {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", grp.origin, p, alias)
			}
		}
	}
	_ = w.Flush()
}
