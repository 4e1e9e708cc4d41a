package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/manual-asset-pipeline/internal/manifest"
	"github.com/tendant/manual-asset-pipeline/internal/storage"
)

func (c *cli) newVerifyCmd() *cobra.Command {
	var siteURL string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Check that every variant in the manifest still exists",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var src storage.Reader
			if siteURL != "" {
				src = storage.NewHTTPReader(siteURL)
			} else {
				fs, err := storage.NewFilesystemStorage(c.cfg.SiteRoot)
				if err != nil {
					return err
				}
				src = fs
			}

			m, err := manifest.Fetch(cmd.Context(), src, c.cfg.ManifestPath)
			if err != nil {
				return err
			}

			report, err := manifest.Verify(cmd.Context(), m, src)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, s := range report.Stale {
				fmt.Fprintf(out, "stale: %s (%s %s/%s)\n", s.Path, s.Source, s.Size, s.Format)
			}
			fmt.Fprintf(out, "%d variants checked, %d stale\n", report.Checked, len(report.Stale))

			if !report.OK() {
				return fmt.Errorf("manifest has %d stale entries", len(report.Stale))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&siteURL, "site-url", "", "Verify a deployed site over HTTP instead of the local tree")

	return cmd
}
