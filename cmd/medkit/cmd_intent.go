package main

import (
	"strings"

	"github.com/spf13/cobra"

	pui "medkit-workers/internal/workers/ai-conversation/parse-user-intent"
)

var intentCmd = &cobra.Command{
	Use:   "intent <text>",
	Short: "Classify which feature a user message asks for",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runIntent,
}

func runIntent(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	handler := pui.NewHandler(pui.NewConfig(a.cfg), a.genai, &intentLogger{a.log})
	out, err := handler.Execute(cmd.Context(), &pui.Input{Input: strings.Join(args, " ")})
	if err != nil {
		return err
	}
	return writeJSON(cmd.OutOrStdout(), out)
}
