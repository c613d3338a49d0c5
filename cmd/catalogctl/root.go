package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bowerhall/partscout/internal/config"
	"github.com/bowerhall/partscout/internal/embedder"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

type app struct {
	cfg    *config.Config
	dbPath string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	rootCmd := &cobra.Command{
		Use:           "catalogctl",
		Short:         "Seed and inspect the partscout parts catalog",
		Long:          "catalogctl loads YAML fixtures into the parts catalog, probes part, model and search lookups, lists archived live-fetch bundles and reports LLM token usage.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			a.cfg = cfg
			if a.dbPath == "" {
				a.dbPath = cfg.DBPath
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVar(&a.dbPath, "db", "", "Catalog database path (default: $PARTSCOUT_DB)")

	rootCmd.AddCommand(
		newSeedCmd(a),
		newGetCmd(a),
		newSearchCmd(a),
		newModelCmd(a),
		newArchiveCmd(a),
		newUsageCmd(a),
	)

	return rootCmd
}

// openCatalog opens the catalog, attaching the configured embedder when
// embed is set so writes and searches use vectors.
func (a *app) openCatalog(embed bool) (*partsdb.Store, partsdb.Embedder, error) {
	store, err := partsdb.OpenWithOptions(a.dbPath, partsdb.Options{Dimensions: a.cfg.Embedder.Dimensions})
	if err != nil {
		return nil, nil, fmt.Errorf("open catalog %s: %w", a.dbPath, err)
	}
	if !embed {
		return store, nil, nil
	}

	emb, err := embedder.New(embedder.Config{
		Provider:   a.cfg.Embedder.Provider,
		BaseURL:    a.cfg.Embedder.BaseURL,
		Model:      a.cfg.Embedder.Model,
		Dimensions: a.cfg.Embedder.Dimensions,
	})
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	if emb == nil {
		store.Close()
		return nil, nil, fmt.Errorf("no embedder configured (set EMBEDDER_PROVIDER)")
	}
	store.SetEmbedder(emb)
	return store, emb, nil
}
