// File: cmd/profiles.go
package cmd

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/visverify/internal/verify"
)

func newProfilesCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profiles",
		Short: "Lists the configured verification profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := root.cfg
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tTARGET\tREADINESS\tOUTPUT\tDESCRIPTION")
			for _, name := range cfg.ProfileNames() {
				p, _ := cfg.Profile(name)
				plan := verify.PlanFromProfile(name, p, cfg.Artifact.Output)
				marker := ""
				if strings.EqualFold(name, cfg.Run.DefaultProfile) {
					marker = " (default)"
				}
				fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t%s\n",
					name, marker, plan.Target, readinessSummary(plan.Readiness), plan.Output, p.Description)
			}
			return w.Flush()
		},
	}
}

// readinessSummary describes the wait in one short phrase, e.g. "selectors[2] 30s".
func readinessSummary(r verify.Readiness) string {
	var parts []string
	if r.NetworkIdle {
		parts = append(parts, "network-idle")
	}
	if len(r.Selectors) > 0 {
		parts = append(parts, fmt.Sprintf("selectors[%d]", len(r.Selectors)))
	}
	if r.Timeout > 0 && len(parts) > 0 {
		parts = append(parts, r.Timeout.String())
	}
	if len(parts) == 0 && r.Delay > 0 {
		parts = append(parts, "delay "+r.Delay.String())
	}
	if r.Settle > 0 {
		parts = append(parts, "settle "+r.Settle.String())
	}
	if len(parts) == 0 {
		return "-"
	}
	return strings.Join(parts, " ")
}
