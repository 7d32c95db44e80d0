package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/opencontainers/go-digest"
	"github.com/spf13/cobra"

	"breedserve/internal/apperr"
	"breedserve/internal/artifact"
)

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func newFetchCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch",
		Short: "Acquire and validate the model artifact without serving",
		Long: `Downloads the configured artifact (quantized source first) into the
model path and validates it. An artifact already on disk is validated in
place; a corrupt one is deleted and reacquired.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			log := newLogger(cfg, cmd.ErrOrStderr())
			store, err := newStore(cfg, log)
			if err != nil {
				return err
			}
			// one pass per source plus the file already on disk
			tries := len(store.Spec().Sources) + 1
			var lastErr error
			for i := 0; i < tries; i++ {
				st, err := store.Stage(cmd.Context())
				if err != nil {
					if lastErr != nil && apperr.IsKind(err, apperr.ModelFailed) {
						return lastErr
					}
					return err
				}
				size, err := store.Check(st)
				if err != nil {
					log.Warn().Err(err).Str("source", st.Source).Msg("artifact rejected")
					_ = store.Discard(st)
					lastErr = err
					continue
				}
				path, err := store.Commit(st)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s from %s\n", path, humanize.Bytes(uint64(size)), st.Source)
				return nil
			}
			return lastErr
		},
	}
}

func newValidateCmd(g *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "validate [PATH]",
		Short: "Check an artifact's size, signature and digest",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, g)
			if err != nil {
				return err
			}
			spec, err := cfg.ArtifactSpec()
			if err != nil {
				return err
			}
			if len(args) == 1 {
				spec.Path = args[0]
			}
			size, err := artifact.Validate(spec.Path, spec)
			if err != nil {
				return err
			}
			d, err := fileDigest(spec.Path)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: ok, %s, %s\n", spec.Path, humanize.Bytes(uint64(size)), d)
			return nil
		},
	}
}

func fileDigest(path string) (digest.Digest, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	return digest.Canonical.FromReader(f)
}
