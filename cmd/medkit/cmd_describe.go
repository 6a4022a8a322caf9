package main

import (
	"github.com/spf13/cobra"

	"medkit-workers/internal/knowledge"
)

var describeFlags struct {
	structured bool
}

var describeCmd = &cobra.Command{
	Use:   "describe <medicine name>",
	Short: "Fetch public sources for a medicine and summarize them",
	Args:  cobra.ExactArgs(1),
	RunE:  runDescribe,
}

func init() {
	describeCmd.Flags().BoolVar(&describeFlags.structured, "structured", false, "Also emit a JSON breakdown (uses, side effects, warnings, dosage)")
}

type describeResult struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Kind        knowledge.Kind         `json:"kind"`
	SourcesUsed []string               `json:"sourcesUsed"`
	Structured  map[string]interface{} `json:"structured,omitempty"`
}

func runDescribe(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd.ErrOrStderr())
	if err != nil {
		return err
	}

	// Identifiers are not cached across CLI runs.
	describer := knowledge.NewPipeline(a.cfg, a.transport, a.genai, nil, nil, a.log)

	var (
		desc       knowledge.Description
		structured map[string]interface{}
	)
	if describeFlags.structured {
		desc, structured = describer.DescribeStructured(cmd.Context(), args[0])
	} else {
		desc = describer.Describe(cmd.Context(), args[0])
	}

	sources := desc.SourcesUsed
	if sources == nil {
		sources = []string{}
	}
	return writeJSON(cmd.OutOrStdout(), describeResult{
		Name:        desc.Name,
		Description: desc.Text,
		Kind:        desc.Kind,
		SourcesUsed: sources,
		Structured:  structured,
	})
}
