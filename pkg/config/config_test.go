package config_test

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/config"
)

func TestLoadAppliesDefaults(t *testing.T) {
	viper.Reset()
	config.Init()

	cfg := config.Load()
	require.Equal(t, 10, cfg.Eval.MaxConcurrency)
	require.Equal(t, 30, cfg.Eval.TimeoutSeconds)
	require.Equal(t, 1, cfg.Eval.Trials)
	require.Equal(t, 0.5, cfg.Eval.Threshold)
	require.Equal(t, "info", cfg.LogLevel)
	require.False(t, cfg.Tracing.Enabled)
}

func TestLoadHonorsEnvOverride(t *testing.T) {
	viper.Reset()
	t.Setenv("WEFT_EVAL_MAX_CONCURRENCY", "4")
	config.Init()

	cfg := config.Load()
	require.Equal(t, 4, cfg.Eval.MaxConcurrency)
}
