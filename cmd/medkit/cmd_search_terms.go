package main

import (
	"strings"

	"github.com/spf13/cobra"

	sm "medkit-workers/internal/workers/medicine/search-medicines"
)

var searchTermsCmd = &cobra.Command{
	Use:   "search-terms <query>",
	Short: "Show how a free-text inventory query is turned into search keywords",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearchTerms,
}

type searchTermsResult struct {
	sm.Interpretation
	UsedFallback bool `json:"usedFallback"`
}

func runSearchTerms(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	// No database: only the interpretation step runs.
	handler := sm.NewHandler(sm.NewConfig(a.cfg), nil, a.genai, &searchLogger{a.log})
	interp, usedFallback := handler.Interpret(cmd.Context(), strings.Join(args, " "))

	return writeJSON(cmd.OutOrStdout(), searchTermsResult{Interpretation: interp, UsedFallback: usedFallback})
}
