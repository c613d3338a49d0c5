package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bowerhall/partscout/internal/storage"
)

func newArchiveCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Inspect live-fetch bundles archived in object storage",
	}

	cmd.AddCommand(newArchiveListCmd(a), newArchiveLatestCmd(a))

	return cmd
}

func (a *app) openArchive() (*storage.Client, error) {
	if !a.cfg.Storage.Enabled {
		return nil, fmt.Errorf("archive not configured (set MINIO_ACCESS_KEY and MINIO_SECRET_KEY)")
	}

	return storage.NewClient(storage.Config{
		Endpoint:  a.cfg.Storage.Endpoint,
		AccessKey: a.cfg.Storage.AccessKey,
		SecretKey: a.cfg.Storage.SecretKey,
		UseSSL:    a.cfg.Storage.UseSSL,
		Bucket:    a.cfg.Storage.Bucket,
	})
}

func newArchiveListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list <ps_number>",
		Short: "List archived bundles of a part, newest last",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.openArchive()
			if err != nil {
				return err
			}

			archived, err := client.List(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if len(archived) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "no bundles archived for %s\n", args[0])
				return nil
			}
			for _, a := range archived {
				fmt.Fprintf(cmd.OutOrStdout(), "%s  %8d  %s\n", a.FetchedAt.Format(time.RFC3339), a.Size, a.Key)
			}
			return nil
		},
	}
}

func newArchiveLatestCmd(a *app) *cobra.Command {
	var restore bool

	cmd := &cobra.Command{
		Use:   "latest <ps_number>",
		Short: "Print the newest archived bundle of a part",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.openArchive()
			if err != nil {
				return err
			}

			bundle, err := client.Latest(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			if restore {
				store, _, err := a.openCatalog(false)
				if err != nil {
					return err
				}
				defer store.Close()

				if err := store.SaveBundle(cmd.Context(), bundle); err != nil {
					return fmt.Errorf("restore %s: %w", bundle.Part.PSNumber, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "restored %s (%d models, %d annotations) into %s\n",
					bundle.Part.PSNumber, len(bundle.Models), len(bundle.Annotations), a.dbPath)
				return nil
			}

			return writeJSON(cmd.OutOrStdout(), bundle)
		},
	}

	cmd.Flags().BoolVar(&restore, "restore", false, "Save the bundle into the catalog instead of printing it")

	return cmd
}
