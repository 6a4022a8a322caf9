package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"medkit-workers/pkg/registry"
)

var activitiesFlags struct {
	path string
	json bool
}

var activitiesCmd = &cobra.Command{
	Use:   "activities",
	Short: "List the task types the workers serve",
	Args:  cobra.NoArgs,
	RunE:  runActivities,
}

func init() {
	activitiesCmd.Flags().StringVar(&activitiesFlags.path, "registry", "", "Read the catalog from a JSON file instead of the built-in one")
	activitiesCmd.Flags().BoolVar(&activitiesFlags.json, "json", false, "Print the catalog as JSON")
}

func runActivities(cmd *cobra.Command, _ []string) error {
	var (
		reg *registry.ActivityRegistry
		err error
	)
	if activitiesFlags.path != "" {
		reg, err = registry.LoadRegistry(activitiesFlags.path)
	} else {
		reg, err = registry.Default()
	}
	if err != nil {
		return err
	}
	if err := reg.Validate(); err != nil {
		return fmt.Errorf("invalid registry: %w", err)
	}

	if activitiesFlags.json {
		return writeJSON(cmd.OutOrStdout(), reg)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TASK TYPE\tCATEGORY\tTIMEOUT\tRETRIES\tDESCRIPTION")
	for _, a := range reg.Activities {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", a.TaskType, a.Category, a.Timeout, a.Retries, a.Description)
	}
	return tw.Flush()
}
