package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tendant/manual-asset-pipeline/internal/resolver"
	"github.com/tendant/manual-asset-pipeline/internal/storage"
	"github.com/tendant/manual-asset-pipeline/pkg/pipeline"
)

// newResolver loads the site manifest; failures fall back to the convention
func (c *cli) newResolver(cmd *cobra.Command) (*resolver.Resolver, error) {
	store, err := storage.NewFilesystemStorage(c.cfg.SiteRoot)
	if err != nil {
		return nil, err
	}
	r := resolver.New(c.cfg.Convention(), c.cfg.Sizes, resolver.WithLogger(c.logger))
	_ = r.Load(cmd.Context(), store, c.cfg.ManifestPath)
	return r, nil
}

func (c *cli) newResolveCmd() *cobra.Command {
	var (
		size   string
		format string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <path>...",
		Short: "Print the variant path for logical image paths",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.newResolver(cmd)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			enc := json.NewEncoder(out)
			for _, p := range args {
				res := r.Lookup(p, size, format)
				if asJSON {
					if err := enc.Encode(pipeline.ResolveResponse{Path: res.Path, Source: string(res.Source)}); err != nil {
						return err
					}
					continue
				}
				fmt.Fprintln(out, res.Path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&size, "size", "s", resolver.DefaultSize, "Size class")
	cmd.Flags().StringVarP(&format, "format", "f", resolver.DefaultFormat, "Output format")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print path and source as JSON")

	return cmd
}

func (c *cli) newPictureCmd() *cobra.Command {
	var (
		alt    string
		sizes  string
		class  string
		noLazy bool
	)

	cmd := &cobra.Command{
		Use:   "picture <path>",
		Short: "Print a responsive <picture> fragment for a logical image path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := c.newResolver(cmd)
			if err != nil {
				return err
			}

			fmt.Fprintln(cmd.OutOrStdout(), r.Picture(args[0],
				resolver.WithAlt(alt),
				resolver.WithSizes(sizes),
				resolver.WithClass(class),
				resolver.WithLazy(!noLazy)))
			return nil
		},
	}

	cmd.Flags().StringVar(&alt, "alt", "", "Alt text")
	cmd.Flags().StringVar(&sizes, "sizes", resolver.DefaultPictureSizes, "sizes attribute")
	cmd.Flags().StringVar(&class, "class", resolver.DefaultPictureClass, "picture class")
	cmd.Flags().BoolVar(&noLazy, "no-lazy", false, "Omit loading=\"lazy\"")

	return cmd
}
