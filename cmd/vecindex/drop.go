package main

import (
	"fmt"

	"github.com/spf13/cobra"

	json "github.com/antflydb/vecindex/jsonutil"
	"github.com/antflydb/vecindex/drop"
)

var (
	dropPlanPath string
	dropDryRun   bool
	dropActor    string
)

var dropCmd = &cobra.Command{
	Use:   "drop",
	Short: "Manage drop plans",
}

var dropApplyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a drop plan: delete matching records and mark the manifest",
	RunE:  runDropApply,
}

func init() {
	dropApplyCmd.Flags().StringVar(&dropPlanPath, "plan", "", "Path to a drop plan JSON file (required)")
	dropApplyCmd.Flags().BoolVar(&dropDryRun, "dry-run", false, "Print the resolved filters and affected partitions without mutating anything")
	dropApplyCmd.Flags().StringVar(&dropActor, "actor", "vecindex-cli", "Actor name recorded in the manifest's drop audit entry")
	_ = dropApplyCmd.MarkFlagRequired("plan")

	dropCmd.AddCommand(dropApplyCmd)
}

func runDropApply(cmd *cobra.Command, args []string) error {
	app, err := load()
	if err != nil {
		return err
	}

	plan, err := drop.Load(dropPlanPath)
	if err != nil {
		return err
	}

	m, err := app.manifest.Read()
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}
	var allPartitions []string
	for _, p := range m.Partitions {
		allPartitions = append(allPartitions, p.Name)
	}

	affected := plan.Resolve(app.resolver, app.cfg.CollectionBase, allPartitions)

	results, err := drop.Apply(cmd.Context(), app.store, app.manifest, affected, dropActor, dropPlanPath, dropDryRun)
	if err != nil {
		return fmt.Errorf("drop apply: %w", err)
	}

	b, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding drop results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(b))
	if dropDryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "(dry run: no mutation performed)")
	}
	return nil
}
