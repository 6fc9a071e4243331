package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/weftctx/weft/pkg/eval"
	"github.com/weftctx/weft/pkg/eval/compare"
	"github.com/weftctx/weft/pkg/eval/evalstore"
	"github.com/weftctx/weft/pkg/store/sqlstore"
)

var evalCmd = &cobra.Command{
	Use:   "eval",
	Short: "Run and compare evals against a suite",
}

var evalRunCmd = &cobra.Command{
	Use:   "run <config.yaml>",
	Short: "Run an eval suite from a YAML config",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvalRun(cmd, args[0])
	},
}

var evalCompareCmd = &cobra.Command{
	Use:   "compare <baseline-run-id> <candidate-run-id>",
	Short: "Compare two eval runs' scores and outputs",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runEvalCompare(cmd, args[0], args[1])
	},
}

func init() {
	evalRunCmd.Flags().String("cases", "", "restrict the run to a subset of cases, e.g. \"1,3-4\" (1-indexed)")
	evalCmd.AddCommand(evalRunCmd)
	evalCmd.AddCommand(evalCompareCmd)
}

// fileCase is one YAML-declared dataset entry. The eval engine itself
// takes arbitrary Go TaskFunc/ScorerFunc values (spec §4.5); this CLI
// layer only knows how to drive the "echo" builtin task against a
// built-in scorer set, for smoke-testing a suite's scoring and
// persistence end to end. Model-backed tasks (an Agent driving a real
// provider) are wired by library callers through eval.Config directly —
// this CLI is operational scaffolding, not the product surface.
type fileCase struct {
	Input    any `yaml:"input"`
	Expected any `yaml:"expected"`
}

type fileConfig struct {
	Name           string     `yaml:"name"`
	Model          string     `yaml:"model"`
	Task           string     `yaml:"task"`
	Scorers        []string   `yaml:"scorers"`
	MaxConcurrency int        `yaml:"max_concurrency"`
	BatchSize      int        `yaml:"batch_size"`
	TimeoutSeconds int        `yaml:"timeout_seconds"`
	Trials         int        `yaml:"trials"`
	Threshold      float64    `yaml:"threshold"`
	Cases          []fileCase `yaml:"cases"`
}

var builtinTasks = map[string]eval.TaskFunc{
	"echo": func(_ context.Context, input any) (any, int, int, error) {
		return input, 0, 0, nil
	},
}

var builtinScorers = map[string]eval.ScorerFunc{
	"exact_match": eval.ExactMatch,
}

func loadFileConfig(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, fmt.Errorf("failed to read eval config: %w", err)
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("failed to parse eval config: %w", err)
	}
	return cfg, nil
}

func runEvalRun(cmd *cobra.Command, configPath string) error {
	ctx := cmd.Context()

	fc, err := loadFileConfig(configPath)
	if err != nil {
		return err
	}

	task, ok := builtinTasks[fc.Task]
	if !ok {
		return fmt.Errorf("unknown task %q (available: echo)", fc.Task)
	}

	scorers := make(map[string]eval.ScorerFunc, len(fc.Scorers))
	for _, name := range fc.Scorers {
		scorer, ok := builtinScorers[name]
		if !ok {
			return fmt.Errorf("unknown scorer %q (available: exact_match)", name)
		}
		scorers[name] = scorer
	}

	cases := make([]eval.CaseInput, len(fc.Cases))
	for i, c := range fc.Cases {
		cases[i] = eval.CaseInput{Index: i, Input: c.Input, Expected: c.Expected}
	}

	if selectionArg, _ := cmd.Flags().GetString("cases"); selectionArg != "" {
		selection, err := eval.ParseRecordSelection(selectionArg)
		if err != nil {
			return err
		}
		filtered := cases[:0]
		for _, c := range cases {
			if _, ok := selection.Indexes[c.Index]; ok {
				filtered = append(filtered, c)
			}
		}
		cases = filtered
	}

	dbPath, err := sqlstore.DefaultDBPath()
	if err != nil {
		return err
	}
	evalStore, err := evalstore.New(ctx, dbPath)
	if err != nil {
		return err
	}
	defer evalStore.Close()

	runnerCfg := eval.Config{
		Name:           fc.Name,
		Model:          fc.Model,
		Dataset:        eval.StaticDataset(cases),
		Task:           task,
		Scorers:        scorers,
		Store:          evalStore,
		Emitter:        eval.NoopEmitter{},
		MaxConcurrency: fc.MaxConcurrency,
		BatchSize:      fc.BatchSize,
		Timeout:        time.Duration(fc.TimeoutSeconds) * time.Second,
		Trials:         fc.Trials,
		Threshold:      fc.Threshold,
	}

	runner := eval.NewRunner()
	summary, err := runner.Run(ctx, runnerCfg)
	if err != nil {
		return err
	}

	printSummary(summary)
	return nil
}

func printSummary(summary eval.Summary) {
	bold := color.New(color.Bold)
	bold.Printf("run %s: %d/%d cases passed\n", summary.RunID, summary.PassCount, summary.TotalCases)
	for scorer, mean := range summary.MeanScores {
		fmt.Printf("  %s: %.3f\n", scorer, mean)
	}
}

func runEvalCompare(cmd *cobra.Command, baselineRunID, candidateRunID string) error {
	ctx := cmd.Context()

	dbPath, err := sqlstore.DefaultDBPath()
	if err != nil {
		return err
	}
	evalStore, err := evalstore.New(ctx, dbPath)
	if err != nil {
		return err
	}
	defer evalStore.Close()

	baselineCases, err := evalStore.ListCases(ctx, baselineRunID)
	if err != nil {
		return err
	}
	candidateCases, err := evalStore.ListCases(ctx, candidateRunID)
	if err != nil {
		return err
	}

	result := compare.CompareRuns(baselineCases, candidateCases, baselineRunID, candidateRunID, compare.Options{})
	printCompareResult(result)
	return nil
}

func printCompareResult(result compare.Result) {
	for _, c := range result.Cases {
		for _, d := range c.ScoreDeltas {
			line := fmt.Sprintf("case %d %s: %.3f -> %.3f (%+.3f)", c.Index, d.Scorer, d.Baseline, d.Candidate, d.Delta)
			switch d.Status {
			case "improved":
				color.New(color.FgGreen).Println(line)
			case "regressed":
				color.New(color.FgRed).Println(line)
			default:
				fmt.Println(line)
			}
		}
		if c.Diff != "" {
			fmt.Println(c.Diff)
		}
	}

	if len(result.Regressions) > 0 {
		color.New(color.FgRed, color.Bold).Println("regressions:")
		for _, r := range result.Regressions {
			fmt.Printf("  %s: mean delta %+.3f\n", r.Scorer, r.MeanDelta)
		}
	}

	for _, w := range result.Warnings {
		color.New(color.FgYellow).Println(w)
	}

	fmt.Printf("cost delta: latency %+.1fms, tokens_in %+.1f, tokens_out %+.1f\n",
		result.Cost.LatencyMsDelta, result.Cost.TokensInDelta, result.Cost.TokensOutDelta)
}
