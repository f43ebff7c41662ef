package main

import (
	"context"
	"time"

	"debatesite/config"
	"debatesite/db"
	"debatesite/logger"

	"github.com/spf13/cobra"
)

var seedCmd = &cobra.Command{
	Use:   "seed-topics",
	Short: "Insert the default debate topics into an empty topic collection",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		log := logger.SetupDefault(cfg.Log.Level, cfg.Log.Format)

		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		store, err := db.Open(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		return db.Seed(ctx, store, log)
	},
}
