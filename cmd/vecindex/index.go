package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/antflydb/vecindex/drop"
	"github.com/antflydb/vecindex/indexer"
	"github.com/antflydb/vecindex/orchestrator"
)

var indexPartitionNames []string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Index registered partitions into the vector store",
	RunE:  runIndex,
}

func init() {
	indexCmd.Flags().StringSliceVar(&indexPartitionNames, "partitions", nil, "Partition names to index (default: all registered partitions)")
}

func runIndex(cmd *cobra.Command, args []string) error {
	app, err := load()
	if err != nil {
		return err
	}

	if app.cfg.DeleteStale {
		if err := deleteStalePartitions(cmd, app); err != nil {
			return fmt.Errorf("delete_stale: %w", err)
		}
	}

	partitions, err := app.partitionSpecs(indexPartitionNames)
	if err != nil {
		return err
	}
	if len(partitions) == 0 {
		app.logger.Warn("index: no partitions to process")
		return nil
	}

	ix := indexer.New(app.registry, app.store, app.resolver, app.logger, indexer.Config{
		OutRoot:          app.cfg.OutRoot,
		Resume:           app.cfg.Resume,
		APITokenLimit:    app.cfg.APITokenLimit,
		DefaultStrategy:  app.cfg.TruncStrategy(),
		Batch:            app.cfg.BatchConfig(),
		UpsertRatePerSec: app.cfg.UpsertRatePerSec,
	})

	width := app.cfg.ParallelPartitions
	if app.cfg.SampleMode {
		width = 1
	}
	orch := orchestrator.New(ix, app.logger, orchestrator.Config{Width: width})

	var jobs []orchestrator.Job
	for _, p := range partitions {
		jobs = append(jobs, orchestrator.Job{Partition: p, BaseCollection: app.cfg.CollectionBase})
	}

	outcomes, err := orch.Run(cmd.Context(), jobs)
	for _, o := range outcomes {
		if o.Err != nil {
			app.logger.Error("index: partition failed", zap.String("partition", o.Partition), zap.Error(o.Err))
		}
	}
	if err != nil {
		return fmt.Errorf("index: %w", err)
	}
	return nil
}

// deleteStalePartitions drops every stale-but-undeleted (model, partition)
// pair recorded in the manifest before indexing proceeds. It builds a
// synthetic drop plan from the manifest's own staleness bookkeeping and
// runs it through the same drop.Apply path the `drop apply` subcommand
// uses, so both routes share one audit trail.
func deleteStalePartitions(cmd *cobra.Command, app *loadedApp) error {
	m, err := app.manifest.Read()
	if err != nil {
		return fmt.Errorf("reading manifest: %w", err)
	}

	stale := m.StalePartitions()
	if len(stale) == 0 {
		app.logger.Info("delete_stale: no stale partitions found")
		return nil
	}

	var allPartitions []string
	for _, p := range m.Partitions {
		allPartitions = append(allPartitions, p.Name)
	}

	plan := &drop.Plan{Models: make(map[string]drop.ModelSelector, len(stale))}
	for model, partitions := range stale {
		plan.Models[model] = drop.ModelSelector{Partitions: partitions, Reason: "stale"}
	}

	affected := plan.Resolve(app.resolver, app.cfg.CollectionBase, allPartitions)
	results, err := drop.Apply(cmd.Context(), app.store, app.manifest, affected, "delete_stale", "", false)
	if err != nil {
		return err
	}
	for _, r := range results {
		app.logger.Info("delete_stale: dropped",
			zap.String("model", r.Affected.Model),
			zap.Strings("partitions", r.Affected.Partitions),
			zap.Bool("deleted_collection", r.DeletedCollection),
		)
	}
	return nil
}
