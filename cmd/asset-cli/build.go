package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tendant/manual-asset-pipeline/internal/app"
	"github.com/tendant/manual-asset-pipeline/internal/builder"
	"github.com/tendant/manual-asset-pipeline/internal/watch"
)

func (c *cli) newBuildCmd() *cobra.Command {
	var (
		concurrency int
		failOnError bool
		mirror      bool
	)

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Render all variants and write the manifest",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("concurrency") {
				c.cfg.Concurrency = concurrency
			}
			if cmd.Flags().Changed("fail-on-error") {
				c.cfg.FailOnError = failOnError
			}
			if cmd.Flags().Changed("mirror") {
				c.cfg.Content.Enabled = mirror
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}

			p, err := app.NewPipeline(c.cfg, c.logger, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			summary := p.Builder.Run(ctx)
			printSummary(cmd, summary)
			return summaryError(summary, c.cfg.FailOnError)
		},
	}

	cmd.Flags().IntVarP(&concurrency, "concurrency", "j", 1, "Images processed in parallel")
	cmd.Flags().BoolVar(&failOnError, "fail-on-error", false, "Exit non-zero when any image fails")
	cmd.Flags().BoolVar(&mirror, "mirror", false, "Mirror variants into the embedded simple-content store")

	return cmd
}

func (c *cli) newWatchCmd() *cobra.Command {
	var debounce time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Build, then rebuild whenever source images change",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := app.NewPipeline(c.cfg, c.logger, nil)
			if err != nil {
				return err
			}
			defer p.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rebuild := func(ctx context.Context) error {
				summary := p.Builder.Run(ctx)
				printSummary(cmd, summary)
				return summaryError(summary, c.cfg.FailOnError)
			}

			if err := rebuild(ctx); err != nil {
				c.logger.Warn("initial build failed", zap.Error(err))
			}

			w, err := watch.New(c.cfg.SiteRoot, c.cfg.Convention(), rebuild,
				watch.WithDebounce(debounce),
				watch.WithLogger(c.logger))
			if err != nil {
				return err
			}

			c.logger.Info("watching for changes", zap.String("site_root", c.cfg.SiteRoot))
			return w.Run(ctx)
		},
	}

	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "Quiet period before rebuilding")

	return cmd
}

func printSummary(cmd *cobra.Command, s *builder.Summary) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "run %s: %d images, %d variants, %d errors in %s\n",
		s.RunID, s.Processed, s.Variants, len(s.Errors), s.Duration.Round(time.Millisecond))
	for _, e := range s.Errors {
		fmt.Fprintf(out, "  error: %v\n", e)
	}
}

func summaryError(s *builder.Summary, failOnError bool) error {
	if !s.Failed(failOnError) {
		return nil
	}
	if s.Err != nil {
		return s.Err
	}
	return fmt.Errorf("%d images failed", len(s.Errors))
}
