// Package config wraps viper to load weft's engine/eval/CLI settings
// from flag, env, and config file (in that precedence order), mirroring
// the teacher's own viper-based CLI config (cmd/kodelet/main.go's init).
package config

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/weftctx/weft/pkg/logger"
	"github.com/weftctx/weft/pkg/tracing"
)

// Eval bundles the Eval Engine's configurable defaults (spec §10).
type Eval struct {
	MaxConcurrency int
	TimeoutSeconds int
	Trials         int
	Threshold      float64
}

// Config is the resolved, typed view over viper's settings.
type Config struct {
	BasePath         string
	OllamaBaseURL    string
	LMStudioBaseURL  string
	LogLevel         string
	LogFormat        string
	Eval             Eval
	Tracing          tracing.Config
}

// Init registers defaults, the WEFT_ env prefix, and the
// ~/.weft/config.yaml / ./config.yaml config file search path, then reads
// whichever config file is found (a missing file is not an error).
func Init() {
	viper.SetDefault("base_path", "")
	viper.SetDefault("ollama_base_url", "")
	viper.SetDefault("lm_studio_base_url", "")

	viper.SetDefault("eval.max_concurrency", 10)
	viper.SetDefault("eval.timeout_seconds", 30)
	viper.SetDefault("eval.trials", 1)
	viper.SetDefault("eval.threshold", 0.5)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.sampler", "ratio")
	viper.SetDefault("tracing.ratio", 1.0)
	viper.SetDefault("tracing.service_name", "weft")
	viper.SetDefault("tracing.service_version", "dev")

	viper.SetDefault("log_level", "info")
	viper.SetDefault("log_format", "fmt")

	viper.SetEnvPrefix("WEFT")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("$HOME/.weft")
	viper.AddConfigPath(".")

	if err := viper.ReadInConfig(); err == nil {
		logger.G(context.Background()).WithField("config_file", viper.ConfigFileUsed()).Debug("using config file")
	}
}

// BindFlags binds a cobra command's persistent flags to their viper
// keys, so flag > env > file > default precedence holds.
func BindFlags(flags *pflag.FlagSet) error {
	for _, name := range []string{"base-path", "log-level", "log-format"} {
		if flag := flags.Lookup(name); flag != nil {
			if err := viper.BindPFlag(strings.ReplaceAll(name, "-", "_"), flag); err != nil {
				return errors.Wrapf(err, "failed to bind flag %s", name)
			}
		}
	}
	return nil
}

// Load reads the current viper state into a typed Config.
func Load() Config {
	return Config{
		BasePath:        viper.GetString("base_path"),
		OllamaBaseURL:   viper.GetString("ollama_base_url"),
		LMStudioBaseURL: viper.GetString("lm_studio_base_url"),
		LogLevel:        viper.GetString("log_level"),
		LogFormat:       viper.GetString("log_format"),
		Eval: Eval{
			MaxConcurrency: viper.GetInt("eval.max_concurrency"),
			TimeoutSeconds: viper.GetInt("eval.timeout_seconds"),
			Trials:         viper.GetInt("eval.trials"),
			Threshold:      viper.GetFloat64("eval.threshold"),
		},
		Tracing: tracing.Config{
			Enabled:        viper.GetBool("tracing.enabled"),
			ServiceName:    viper.GetString("tracing.service_name"),
			ServiceVersion: viper.GetString("tracing.service_version"),
			SamplerType:    viper.GetString("tracing.sampler"),
			SamplerRatio:   viper.GetFloat64("tracing.ratio"),
		},
	}
}
