package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/antflydb/vecindex/indexer"
	"github.com/antflydb/vecindex/resume"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-partition, per-model indexing status and staleness summary",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	app, err := load()
	if err != nil {
		return err
	}

	m, err := app.manifest.Read()
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	staleByModel := map[string]int{}

	for _, p := range m.Partitions {
		collectionName := app.resolver.CollectionFor(p.Name, app.cfg.CollectionBase)
		rs := resume.New(app.cfg.OutRoot, p.Name, collectionName)
		state, _, err := rs.Read()
		if err != nil {
			return fmt.Errorf("reading resume state for %s: %w", p.Name, err)
		}

		modelNames := make([]string, 0, len(p.Models))
		for model := range p.Models {
			modelNames = append(modelNames, model)
		}
		sort.Strings(modelNames)

		for _, model := range modelNames {
			entry := p.Models[model]
			if entry.Stale && !entry.Deleted {
				staleByModel[model]++
			}
			if entry.Deleted {
				continue
			}
			st, err := indexer.Classify(app.cfg.OutRoot, p.Name, model, state[model])
			if err != nil {
				return fmt.Errorf("classifying %s/%s: %w", p.Name, model, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", p.Name, model, st)
		}
	}

	if len(staleByModel) > 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "\nstale partitions per model (not yet dropped):")
		modelNames := make([]string, 0, len(staleByModel))
		for model := range staleByModel {
			modelNames = append(modelNames, model)
		}
		sort.Strings(modelNames)
		for _, model := range modelNames {
			fmt.Fprintf(cmd.OutOrStdout(), "  %s\t%d\n", model, staleByModel[model])
		}
	}
	return nil
}
