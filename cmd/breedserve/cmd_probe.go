package main

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

func newProbeCmd(g *globalFlags) *cobra.Command {
	f := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "probe",
		Short: "Show which inference backend would serve predictions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			o, err := openOrchestrator(cmd, g, f)
			if err != nil {
				return err
			}
			defer o.Close()
			h := o.Init(cmd.Context())
			p := o.LastProbe()
			if f.asJSON {
				return writeIndented(cmd.OutOrStdout(), map[string]any{
					"backend":           h.Kind,
					"remote_configured": p.RemoteConfigured,
					"remote_reachable":  p.RemoteReachable,
					"remote_health":     p.RemoteHealth,
					"local_available":   p.LocalAvailable,
					"local_path":        p.LocalPath,
				})
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			remote := "not configured"
			if p.RemoteConfigured {
				remote = "unreachable"
				if p.RemoteErr != nil {
					remote = fmt.Sprintf("unreachable: %v", p.RemoteErr)
				}
				if p.RemoteReachable {
					remote = "reachable"
					if p.RemoteHealth != nil {
						remote += ", model " + p.RemoteHealth.ModelState
					}
				}
			}
			local := "no artifact"
			if p.LocalAvailable {
				local = p.LocalPath
			}
			t.AppendRows([]table.Row{
				{"remote", remote},
				{"local", local},
				{"selected", string(h.Kind)},
			})
			t.Render()
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
