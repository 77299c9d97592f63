package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"nomvoice/internal/cooking"
	"nomvoice/internal/domain"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "nomvoice",
		Short:         "Hands-free cooking voice assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default $NOMVOICE_CONFIG or ~/.config/nomvoice/config.yaml)")

	cmd.AddCommand(
		newRunCmd(opts),
		newPrecacheCmd(opts),
		newClassifyCmd(opts),
		newCacheCmd(opts),
	)
	return cmd
}

func loadRecipe(path string) (domain.Recipe, error) {
	if path == "" {
		return domain.Recipe{}, fmt.Errorf("--recipe is required")
	}
	return cooking.LoadRecipe(path)
}

// consoleSink prints runtime events for the headless runner.
type consoleSink struct {
	out     io.Writer
	verbose bool
}

func (s consoleSink) StateChanged(state domain.VoiceState, reason domain.StateReason) {
	if !s.verbose && state != domain.VoiceStateListening && state != domain.VoiceStateError {
		return
	}
	fmt.Fprintf(s.out, "[%s] %s\n", state, reason)
}

func (s consoleSink) Transcript(text string) {
	fmt.Fprintf(s.out, "you: %s\n", text)
}

func (s consoleSink) Response(result domain.IntentResult, text string) {
	if text == "" {
		fmt.Fprintf(s.out, "(%s)\n", result.Intent)
		return
	}
	fmt.Fprintf(s.out, "nom: %s\n", text)
}

func (s consoleSink) VoiceError(code domain.ErrorCode, detail string) {
	fmt.Fprintf(s.out, "error (%s): %s\n", code, detail)
}
