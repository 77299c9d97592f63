package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"nomvoice/internal/config"
	"nomvoice/internal/cooking"
	"nomvoice/internal/domain"
	"nomvoice/internal/intent"
)

func newClassifyCmd(root *rootOptions) *cobra.Command {
	var recipePath string
	cmd := &cobra.Command{
		Use:   "classify <words...>",
		Short: "Show the intent recognized for a spoken command",
		Example: `  nomvoice classify what is next
  nomvoice classify --recipe pancakes.yaml how much flour`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(root.configPath)
			if err != nil {
				return err
			}
			subs, err := intent.LoadSubstitutions(cfg.Rules.Path, cfg.Rules.IterationLimit)
			if err != nil {
				return err
			}

			var guide *cooking.Guide
			if recipePath != "" {
				recipe, err := loadRecipe(recipePath)
				if err != nil {
					return err
				}
				guide = cooking.NewGuide(func(time.Duration) {})
				defer guide.Close()
				guide.SetRecipe(recipe)
			}

			return printClassification(cmd.OutOrStdout(), intent.NewClassifier(subs), guide, strings.Join(args, " "))
		},
	}
	cmd.Flags().StringVar(&recipePath, "recipe", "", "recipe file used to show the spoken answer")
	return cmd
}

func printClassification(out io.Writer, classifier *intent.Classifier, guide *cooking.Guide, transcript string) error {
	result := classifier.Classify(transcript)
	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(out, string(encoded))
	if guide == nil {
		return nil
	}
	if reply := guide.Respond(result); reply != "" {
		fmt.Fprintf(out, "answer: %s\n", reply)
	} else if result.Intent == domain.IntentStopSpeaking {
		fmt.Fprintln(out, "answer: (stops speech)")
	}
	return nil
}
