package main

import (
	"fmt"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"nomvoice/internal/bootstrap"
	"nomvoice/internal/speechcache"
)

func newPrecacheCmd(root *rootOptions) *cobra.Command {
	var recipePath string
	cmd := &cobra.Command{
		Use:   "precache",
		Short: "Synthesize a recipe's phrases into the speech cache",
		RunE: func(cmd *cobra.Command, _ []string) error {
			recipe, err := loadRecipe(recipePath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			services, err := bootstrap.Build(root.configPath, consoleSink{out: cmd.ErrOrStderr()})
			if err != nil {
				return err
			}
			defer services.Close()
			services.Controller.SetRecipe(recipe)

			out := cmd.OutOrStdout()
			result, err := services.Controller.WarmCache(ctx, func(p speechcache.Progress) {
				fmt.Fprintf(out, "\r%d/%d phrases (%d cached, %d failed)", p.Done, p.Total, p.Cached, p.Failed)
			})
			fmt.Fprintln(out)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "cached %d, already fresh %d, failed %d\n", result.Cached, result.Skipped, result.Failed)
			if result.Failed > 0 {
				return fmt.Errorf("%d phrases failed to synthesize", result.Failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&recipePath, "recipe", "", "recipe file (YAML or JSON)")
	return cmd
}
