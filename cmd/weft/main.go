// Package main is weft's CLI: operational scaffolding over the Context
// Engine/Eval Engine library (spec §10) — `weft graph`, `weft eval run`,
// `weft eval compare`. It is not a product surface; the web dashboard
// remains out of scope.
package main

import (
	"context"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/weftctx/weft/pkg/config"
	"github.com/weftctx/weft/pkg/logger"
)

var rootCmd = &cobra.Command{
	Use:   "weft",
	Short: "weft is a CLI for inspecting context-engine chats and running evals",
	Long:  `weft drives the branching-DAG context store and eval engine: inspect a chat's graph, or run/compare evals against a suite.`,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
		os.Exit(1)
	},
}

func main() {
	ctx := context.Background()

	cobra.OnInitialize(func() {
		config.Init()
		if err := config.BindFlags(rootCmd.PersistentFlags()); err != nil {
			logger.G(ctx).WithError(err).Warn("failed to bind flags")
		}
		if level := viper.GetString("log_level"); level != "" {
			if err := logger.SetLogLevel(level); err != nil {
				logger.G(ctx).WithError(err).WithField("log_level", level).Warn("invalid log level, using default")
			}
		}
		if format := viper.GetString("log_format"); format != "" {
			logger.SetLogFormat(format)
		}
		// sqlstore.DefaultDBPath reads WEFT_BASE_PATH directly, so the
		// --base-path flag / config file value is propagated into the
		// process environment for it to see.
		if basePath := viper.GetString("base_path"); basePath != "" {
			os.Setenv("WEFT_BASE_PATH", basePath)
		}
	})

	rootCmd.PersistentFlags().String("base-path", "", "base directory for the context/eval SQLite databases (overrides WEFT_BASE_PATH)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (panic, fatal, error, warn, info, debug, trace)")
	rootCmd.PersistentFlags().String("log-format", "fmt", "log format (json, text, fmt)")

	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(evalCmd)

	rootCmd.SetContext(ctx)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.G(ctx).WithError(err).Error("failed to execute command")
		os.Exit(1)
	}
}
