package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"breedserve/internal/orchestrator"
	"breedserve/pkg/types"
)

// clientFlags are shared by the commands that go through the orchestrator.
type clientFlags struct {
	remote string
	asJSON bool
}

func (f *clientFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.remote, "remote", "", "inference host URL (overrides orchestrator.remote_url)")
	cmd.Flags().BoolVar(&f.asJSON, "json", false, "print JSON instead of a table")
}

func openOrchestrator(cmd *cobra.Command, g *globalFlags, f *clientFlags) (*orchestrator.Orchestrator, error) {
	cfg, err := loadConfig(cmd, g)
	if err != nil {
		return nil, err
	}
	if f.remote != "" {
		cfg.Orchestrator.RemoteURL = f.remote
		if err := cfg.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config: %w", err)
		}
	}
	return newOrchestrator(cfg, newLogger(cfg, cmd.ErrOrStderr()))
}

func newPredictCmd(g *globalFlags) *cobra.Command {
	f := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "predict IMAGE...",
		Short: "Rank breeds for one or more images",
		Example: `  breedserve predict cow.jpg
  breedserve predict --remote https://breeds.example.com --json a.jpg b.jpg`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOrchestrator(cmd, g, f)
			if err != nil {
				return err
			}
			defer o.Close()
			type item struct {
				Image string `json:"image"`
				orchestrator.BreedResult
			}
			var items []item
			for _, path := range args {
				img, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				res, err := o.PredictBreed(cmd.Context(), img)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				items = append(items, item{Image: path, BreedResult: res})
				if !f.asJSON {
					renderBreeds(cmd.OutOrStdout(), path, int64(len(img)), res)
				}
			}
			if f.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			return nil
		},
	}
	f.register(cmd)
	return cmd
}

func renderBreeds(w io.Writer, path string, size int64, res orchestrator.BreedResult) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("%s (%s)", filepath.Base(path), humanize.Bytes(uint64(size))))
	t.AppendHeader(table.Row{"#", "Breed", "Confidence"})
	for i, p := range res.Predictions {
		t.AppendRow(table.Row{i + 1, p.Label, fmt.Sprintf("%.1f%%", p.Confidence*100)})
	}
	verdict := "pure breed"
	if res.Crossbreed {
		verdict = "possible crossbreed"
	}
	t.AppendFooter(table.Row{"", verdict, string(res.Backend)})
	t.Render()
}

func newSpeciesCmd(g *globalFlags) *cobra.Command {
	f := &clientFlags{}
	cmd := &cobra.Command{
		Use:   "species IMAGE...",
		Short: "Classify images as cattle, buffalo or non_animal",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			o, err := openOrchestrator(cmd, g, f)
			if err != nil {
				return err
			}
			defer o.Close()
			type item struct {
				Image string `json:"image"`
				types.SpeciesResult
			}
			var items []item
			for _, path := range args {
				img, err := os.ReadFile(path)
				if err != nil {
					return err
				}
				res, err := o.DetectSpecies(cmd.Context(), img)
				if err != nil {
					return fmt.Errorf("%s: %w", path, err)
				}
				items = append(items, item{Image: path, SpeciesResult: res})
			}
			if f.asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(items)
			}
			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"Image", "Species", "Confidence"})
			for _, it := range items {
				t.AppendRow(table.Row{filepath.Base(it.Image), string(it.Species), fmt.Sprintf("%.1f%%", it.Confidence*100)})
			}
			t.Render()
			return nil
		},
	}
	f.register(cmd)
	return cmd
}
