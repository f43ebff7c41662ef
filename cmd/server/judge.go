package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"debatesite/config"
	"debatesite/db"
	"debatesite/internal/debate"
	"debatesite/logger"
	"debatesite/services"

	"github.com/spf13/cobra"
)

var judgeCmd = &cobra.Command{
	Use:   "judge <session-id>",
	Short: "Ask the Gemini judge for a verdict on a stored debate",
	Long: `judge loads a persisted debate and prints the side the Gemini judge
picks. The stored outcome is left unchanged.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Gemini.APIKey == "" {
			return errors.New("gemini.api_key is not configured")
		}
		log := logger.SetupDefault(cfg.Log.Level, cfg.Log.Format)

		ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Gemini.Timeout+30*time.Second)
		defer cancel()

		store, err := db.Open(ctx, cfg, log)
		if err != nil {
			return err
		}
		defer store.Close(context.Background())

		rec, err := store.GetDebate(ctx, args[0])
		if err != nil {
			return fmt.Errorf("load debate %s: %w", args[0], err)
		}

		judge, err := services.NewGeminiJudge(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.Timeout, log)
		if err != nil {
			return err
		}
		side, err := judge.Judge(ctx, debate.Transcript{SessionID: rec.ID, Topic: rec.Topic, Log: rec.Log})
		if err != nil {
			return err
		}

		verdict := "draw"
		switch side {
		case rec.SideA:
			verdict = fmt.Sprintf("%s (%s)", rec.UserA, side)
		case rec.SideB:
			verdict = fmt.Sprintf("%s (%s)", rec.UserB, side)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Topic:   %s\nTurns:   %d\nVerdict: %s\n", rec.Topic, len(rec.Log), verdict)
		return nil
	},
}
