package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/erazemk/ecoleta/assets"
	"github.com/erazemk/ecoleta/internal/model"
	"github.com/erazemk/ecoleta/internal/uploads"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := initStore(cmd.Context())
		if err != nil {
			return err
		}
		defer st.Close()

		if err := st.Migrate(cmd.Context()); err != nil {
			return err
		}
		zap.L().Info("schema ready", zap.String("store", cfg.Store.Driver))
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the schema, load the default item catalog and install its icons",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		if err := prepare(ctx, st); err != nil {
			return err
		}

		storage, err := uploads.NewStorage(cfg.Uploads.Dir, cfg.Uploads.MaxBytes, cfg.Uploads.MaxDimension, cfg.Uploads.MaxPixels)
		if err != nil {
			return err
		}
		if err := assets.InstallIcons(storage); err != nil {
			return err
		}

		zap.L().Info("catalog seeded",
			zap.Int("items", len(model.DefaultItems)),
			zap.String("uploads", storage.Dir()),
		)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
}
