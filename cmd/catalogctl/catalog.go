package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bowerhall/partscout/internal/retrieval"
	"github.com/bowerhall/partscout/pkg/partsdb"
)

func newSeedCmd(a *app) *cobra.Command {
	var embed bool

	cmd := &cobra.Command{
		Use:   "seed <file.yaml>...",
		Short: "Load YAML fixtures into the catalog",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := a.openCatalog(embed)
			if err != nil {
				return err
			}
			defer store.Close()

			for _, path := range args {
				stats, err := store.LoadSeedFile(cmd.Context(), path)
				if err != nil {
					return fmt.Errorf("seed %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", path, stats)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&embed, "embed", false, "Compute similarity vectors with the configured embedder")

	return cmd
}

func newGetCmd(a *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "get <ps_number|manufacturer_number>",
		Short: "Show one part with its stored relations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := a.openCatalog(false)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			part, err := store.GetPart(ctx, args[0])
			if err != nil {
				part, err = store.FindByManufacturerNumber(ctx, args[0])
			}
			if err != nil {
				return fmt.Errorf("part %s: %w", args[0], err)
			}

			models, total, err := store.CompatibleModels(ctx, part.PSNumber, "", 10)
			if err != nil {
				return err
			}

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), map[string]any{
					"part":              part,
					"compatible_models": models,
					"total_models":      total,
				})
			}

			out := cmd.OutOrStdout()
			printPart(out, *part)
			if total > 0 {
				names := make([]string, 0, len(models))
				for _, m := range models {
					names = append(names, m.ModelNumber)
				}
				fmt.Fprintf(out, "  fits %d models: %s\n", total, strings.Join(names, ", "))
			}
			return printAnnotationCounts(ctx, out, store, part.PSNumber)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newSearchCmd(a *app) *cobra.Command {
	var (
		appliance string
		partType  string
		limit     int
		semantic  bool
	)

	cmd := &cobra.Command{
		Use:   "search <text>",
		Short: "Browse parts by keywords, or by similarity with --semantic",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, emb, err := a.openCatalog(semantic)
			if err != nil {
				return err
			}
			defer store.Close()

			query := strings.Join(args, " ")
			out := cmd.OutOrStdout()

			if semantic {
				hits, err := retrieval.New(store, emb).Search(cmd.Context(), retrieval.Query{
					Kind:      retrieval.KindParts,
					Text:      query,
					Threshold: retrieval.PartThreshold,
					Limit:     limit,
					Domain:    appliance,
				})
				if err != nil {
					return err
				}
				for _, h := range hits {
					fmt.Fprintf(out, "%.3f  ", h.Score)
					printPart(out, *h.Part)
				}
				return nil
			}

			parts, err := store.FilterParts(cmd.Context(), partsdb.PartFilter{
				Query:         query,
				ApplianceType: appliance,
				PartType:      partType,
				Limit:         limit,
			})
			if err != nil {
				return err
			}
			if len(parts) == 0 {
				fmt.Fprintln(out, "no parts found")
			}
			for _, p := range parts {
				printPart(out, p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&appliance, "appliance", "", "Restrict to refrigerator or dishwasher")
	cmd.Flags().StringVar(&partType, "type", "", "Restrict to a part type")
	cmd.Flags().IntVar(&limit, "limit", 10, "Maximum results")
	cmd.Flags().BoolVar(&semantic, "semantic", false, "Rank by embedding similarity")

	return cmd
}

func newModelCmd(a *app) *cobra.Command {
	var partType string

	cmd := &cobra.Command{
		Use:   "model <model_number>",
		Short: "List catalog parts recorded as fitting a model",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := a.openCatalog(false)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			exact, matches, err := store.FindModels(ctx, args[0], 5)
			if err != nil {
				return err
			}
			if !exact {
				if len(matches) == 0 {
					return fmt.Errorf("model %s: %w", args[0], partsdb.ErrNotFound)
				}
				fmt.Fprintf(out, "no exact match for %s, did you mean:\n", args[0])
				for _, m := range matches {
					fmt.Fprintf(out, "  %s\n", m.ModelNumber)
				}
				return nil
			}

			parts, err := store.CompatibleParts(ctx, args[0], partType, "", 25)
			if err != nil {
				return err
			}
			for _, p := range parts {
				printPart(out, p)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&partType, "type", "", "Restrict to a part type")

	return cmd
}

func printPart(w io.Writer, p partsdb.Part) {
	fmt.Fprintf(w, "%s  %s  $%.2f  [%s]", p.PSNumber, p.Name, p.Price, p.ApplianceType)
	if p.InstallDifficulty != "" {
		fmt.Fprintf(w, "  install: %s", p.InstallDifficulty)
		if p.InstallTime != "" {
			fmt.Fprintf(w, ", %s", p.InstallTime)
		}
	}
	fmt.Fprintln(w)
}

func printAnnotationCounts(ctx context.Context, w io.Writer, store *partsdb.Store, psNumber string) error {
	for _, kind := range []partsdb.TextKind{partsdb.KindQnA, partsdb.KindStory, partsdb.KindReview} {
		items, err := store.Annotations(ctx, psNumber, kind, 100)
		if err != nil {
			return err
		}
		if len(items) > 0 {
			fmt.Fprintf(w, "  %s: %d\n", kind, len(items))
		}
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
