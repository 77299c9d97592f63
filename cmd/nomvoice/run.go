package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"nomvoice/internal/bootstrap"
	"nomvoice/internal/config"
	"nomvoice/internal/usecase"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		recipePath string
		verbose    bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the voice runtime in the terminal",
		Long: `Run the voice runtime without the desktop window.

Say the wake word ("hey nom") or press Enter to talk. Any other typed
line is spoken aloud. Ctrl-Z pauses all
audio as if the app went to the background; fg resumes. Ctrl-C quits.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			services, err := bootstrap.Build(root.configPath, consoleSink{out: cmd.OutOrStdout(), verbose: verbose})
			if err != nil {
				return err
			}
			defer services.Close()

			if recipePath != "" {
				recipe, err := loadRecipe(recipePath)
				if err != nil {
					return err
				}
				services.Controller.SetRecipe(recipe)
			}
			if len(services.Controller.Recipe().Instructions) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "warning: no recipe loaded; pass --recipe")
			}

			if err := services.Controller.Start(ctx); err != nil {
				return err
			}
			if err := config.Watch(ctx, services.Config.Path, func(cfg config.Config, err error) {
				if err == nil {
					err = services.Apply(cfg)
				}
				if err != nil {
					services.Logger.Warn().Err(err).Msg("config reload skipped")
				}
			}); err != nil {
				services.Logger.Debug().Err(err).Msg("config hot reload disabled")
			}

			go watchLifecycle(ctx, services.Controller)
			go readKeys(ctx, cmd.InOrStdin(), services.Controller)

			fmt.Fprintln(cmd.OutOrStdout(), "listening for the wake word; press Enter to talk, Ctrl-C to quit")
			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().StringVar(&recipePath, "recipe", "", "recipe file (YAML or JSON)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print every state change")
	return cmd
}

// readKeys toggles listening on an empty line and speaks any typed text.
func readKeys(ctx context.Context, in io.Reader, controller *usecase.Controller) {
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			_ = controller.ToggleListening(ctx)
			continue
		}
		go func() { _ = controller.Speak(ctx, line) }()
	}
}
