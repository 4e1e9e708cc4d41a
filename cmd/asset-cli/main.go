package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/tendant/manual-asset-pipeline/internal/app"
	"github.com/tendant/manual-asset-pipeline/internal/config"
	"github.com/tendant/manual-asset-pipeline/internal/logging"
)

// cli holds state shared by the subcommands
type cli struct {
	configPath string
	siteRoot   string
	verbose    bool

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "asset-cli",
		Short: "Build and resolve optimized image variants for manual sites",
		Long: `asset-cli renders every source image under assets/images and
manuais/<name>/images into sized webp/jpg/png variants, writes the image
manifest, and resolves logical image paths to their variants.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := app.LoadConfig(c.configPath)
			if err != nil {
				return err
			}
			if c.siteRoot != "" {
				cfg.SiteRoot = c.siteRoot
			}

			level := cfg.Log.Level
			if c.verbose {
				level = "debug"
			}
			logger, err := logging.New(level, cfg.Log.Format)
			if err != nil {
				return err
			}

			c.cfg = cfg
			c.logger = logger
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", os.Getenv("ASSET_CONFIG"), "YAML config file")
	root.PersistentFlags().StringVar(&c.siteRoot, "site-root", "", "Site root directory (overrides config)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		c.newBuildCmd(),
		c.newWatchCmd(),
		c.newResolveCmd(),
		c.newPictureCmd(),
		c.newVerifyCmd(),
	)

	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
