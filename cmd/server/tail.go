package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"debatesite/config"
	"debatesite/internal/debate"
	"debatesite/logger"

	"github.com/spf13/cobra"
)

var tailCmd = &cobra.Command{
	Use:   "tail <session-id>",
	Short: "Follow the event stream of a debate session",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if cfg.Redis.Addr == "" {
			return errors.New("redis.addr is not configured")
		}
		log := logger.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)

		connectCtx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		rdb, err := debate.NewRedisClient(connectCtx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		cancel()
		if err != nil {
			return err
		}
		defer rdb.Close()

		out := json.NewEncoder(cmd.OutOrStdout())
		stream := debate.NewRedisStream(rdb, 1, log)
		return stream.Follow(cmd.Context(), args[0], func(ev debate.Event) {
			if err := out.Encode(ev); err != nil {
				fmt.Fprintln(cmd.ErrOrStderr(), err)
			}
		})
	},
}
