package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	json "github.com/antflydb/vecindex/jsonutil"
	"github.com/antflydb/vecindex/queryclient"
	"github.com/antflydb/vecindex/queryconfig"
)

var (
	queryTexts     []string
	queryModels    []string
	queryNResults  int
	queryConfigOut string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Fan a similarity query out across the collections routed models map to",
	RunE:  runQuery,
}

var buildConfigCmd = &cobra.Command{
	Use:   "build-config",
	Short: "Scan resume stores and write the model/collection routing map",
	RunE:  runBuildConfig,
}

func init() {
	queryCmd.Flags().StringSliceVar(&queryTexts, "text", nil, "Query text(s)")
	queryCmd.Flags().StringSliceVar(&queryModels, "models", nil, "Restrict the fan-out to these models (default: all)")
	queryCmd.Flags().IntVar(&queryNResults, "n-results", 10, "Results to keep per query text, post-merge")

	buildConfigCmd.Flags().StringVar(&queryConfigOut, "out", "query_config.json", "Output path for the routing map")
	queryCmd.AddCommand(buildConfigCmd)
}

func loadQueryConfig(outRoot, collectionPrefix string) (*queryconfig.Config, error) {
	cfg, warnings, err := queryconfig.Build(outRoot, collectionPrefix, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		return nil, fmt.Errorf("building query config: %w", err)
	}
	for _, w := range warnings {
		fmt.Printf("query config warning: %s\n", w.String())
	}
	return cfg, nil
}

func runQuery(cmd *cobra.Command, args []string) error {
	app, err := load()
	if err != nil {
		return err
	}
	if len(queryTexts) == 0 {
		return fmt.Errorf("query: at least one --text is required")
	}

	cfg, err := loadQueryConfig(app.cfg.OutRoot, app.cfg.CollectionBase)
	if err != nil {
		return err
	}

	client := queryclient.New(app.store, cfg, app.logger)
	ctx := cmd.Context()
	if err := client.Connect(ctx); err != nil {
		return fmt.Errorf("connecting query client: %w", err)
	}
	defer client.Close()

	result, err := client.Query(ctx, queryTexts, queryNResults, queryModels, nil)
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	out, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding query result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func runBuildConfig(cmd *cobra.Command, args []string) error {
	app, err := load()
	if err != nil {
		return err
	}

	cfg, err := loadQueryConfig(app.cfg.OutRoot, app.cfg.CollectionBase)
	if err != nil {
		return err
	}

	b, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding query config: %w", err)
	}
	if err := writeFile(queryConfigOut, b); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d models, %d collections)\n", queryConfigOut, cfg.Metadata.TotalModels, cfg.Metadata.TotalCollections)
	return nil
}
