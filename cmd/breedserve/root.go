package main

import (
	"github.com/spf13/cobra"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	envFiles   []string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}
	root := &cobra.Command{
		Use:   "breedserve",
		Short: "Cattle and buffalo breed classifier: inference host and prediction client",
		Long: `breedserve serves a breed classifier over HTTP and answers breed and
species queries from the command line, using a remote host when one is
reachable and an embedded local session otherwise.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
	}
	pf := root.PersistentFlags()
	pf.StringVarP(&g.configPath, "config", "c", "", "config file (.yaml, .yml, .json or .toml)")
	pf.StringSliceVar(&g.envFiles, "env-file", []string{".env"}, "dotenv files loaded before reading the environment")
	pf.StringVar(&g.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&g.logFormat, "log-format", "", "log format (console or json)")

	root.AddCommand(
		newServeCmd(g),
		newPredictCmd(g),
		newSpeciesCmd(g),
		newProbeCmd(g),
		newFetchCmd(g),
		newValidateCmd(g),
	)
	return root
}
