package eval

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/weftctx/weft/pkg/errs"
	"github.com/weftctx/weft/pkg/logger"
	"github.com/weftctx/weft/pkg/tracing"
)

// Runner executes runEval (spec §4.5).
type Runner struct{}

// NewRunner constructs a Runner. It holds no state; every field needed
// to run one eval lives in Config.
func NewRunner() *Runner { return &Runner{} }

// Run materializes the dataset, creates a run record, runs every case
// under the configured concurrency/trial/timeout policy, and returns
// the summary (spec §4.5.1).
func (r *Runner) Run(ctx context.Context, cfg Config) (Summary, error) {
	var summary Summary
	err := tracing.WithSpan(ctx, "eval.run", func(ctx context.Context) error {
		var err error
		summary, err = r.run(ctx, cfg)
		return err
	}, attribute.String("eval.name", cfg.Name), attribute.String("eval.model", cfg.Model))
	return summary, err
}

func (r *Runner) run(ctx context.Context, cfg Config) (Summary, error) {
	cfg = cfg.withDefaults()
	emitter := cfg.Emitter
	if emitter == nil {
		emitter = NoopEmitter{}
	}

	cases, err := cfg.Dataset(ctx)
	if err != nil {
		return Summary{}, errs.Storage(err, "failed to materialize eval dataset")
	}

	suite, err := cfg.Store.EnsureSuite(ctx, cfg.Name)
	if err != nil {
		return Summary{}, err
	}
	run, err := cfg.Store.CreateRun(ctx, suite.ID, cfg.Model, len(cases))
	if err != nil {
		return Summary{}, err
	}

	emitter.Emit(Event{Kind: EventRunStart, RunID: run.ID, TotalCases: len(cases), Name: cfg.Name, Model: cfg.Model})

	results := make([]CaseResult, 0, len(cases))
	runErr := r.runBatches(ctx, cfg, run.ID, cases, emitter, &results)

	summary := computeSummary(run.ID, results, cfg.Threshold)

	status := "completed"
	if runErr != nil || ctx.Err() != nil {
		status = "failed"
	}
	if err := cfg.Store.FinishRun(ctx, run.ID, status, summary); err != nil {
		return summary, err
	}

	emitter.Emit(Event{Kind: EventRunEnd, RunID: run.ID, Summary: summary})

	if runErr != nil {
		return summary, runErr
	}
	return summary, nil
}

// runBatches partitions cases into cfg.BatchSize groups (or one group
// when unset), running batches sequentially and cases within a batch
// concurrently bounded by the semaphore (spec §4.5.1 step 4, §5 "Batches
// run sequentially so that a failed batch does not hold back run
// finalization unnecessarily").
func (r *Runner) runBatches(ctx context.Context, cfg Config, runID string, cases []CaseInput, emitter Emitter, results *[]CaseResult) error {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = len(cases)
	}
	if batchSize == 0 {
		return nil
	}

	sem := newSemaphore(cfg.MaxConcurrency)
	var firstErr error

	for start := 0; start < len(cases); start += batchSize {
		end := min(start+batchSize, len(cases))
		batch := cases[start:end]

		batchResults, err := r.runBatch(ctx, cfg, runID, batch, emitter, sem)
		*results = append(*results, batchResults...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return firstErr
}

func (r *Runner) runBatch(ctx context.Context, cfg Config, runID string, batch []CaseInput, emitter Emitter, sem *semaphore) ([]CaseResult, error) {
	results := make([]CaseResult, len(batch))
	errs := make([]error, len(batch))

	done := make(chan int, len(batch))
	for i, c := range batch {
		i, c := i, c
		go func() {
			if err := sem.acquire(ctx); err != nil {
				errs[i] = err
				results[i] = CaseResult{Index: c.Index, Input: c.Input, Error: err.Error()}
				done <- i
				return
			}
			defer sem.release()

			result := r.runCase(ctx, cfg, c)
			results[i] = result

			emitter.Emit(Event{
				Kind: EventCaseScored, RunID: runID, Index: result.Index,
				Input: result.Input, Output: result.Output, Expected: result.Expected,
				Scores: result.Scores, Error: result.Error,
				LatencyMs: result.LatencyMs, TokensIn: result.TokensIn, TokensOut: result.TokensOut,
			})
			if result.Error != "" {
				emitter.Emit(Event{Kind: EventCaseError, RunID: runID, Index: result.Index, Error: result.Error})
			}

			if err := cfg.Store.SaveCase(ctx, result, runID); err != nil {
				logger.G(ctx).WithError(err).WithField("index", c.Index).Error("failed to persist eval case")
				errs[i] = err
			}
			done <- i
		}()
	}
	for range batch {
		<-done
	}

	for _, err := range errs {
		if err != nil {
			return results, err
		}
	}
	return results, nil
}

// wrapTask races cfg.Task against cfg.Timeout (spec §4.5.1 step 5).
func wrapTask(ctx context.Context, task TaskFunc, input any, timeout time.Duration) (output any, tokensIn, tokensOut int, latencyMs int64, err error) {
	start := time.Now()
	taskCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type taskOutcome struct {
		output               any
		tokensIn, tokensOut int
		err                 error
	}
	resultCh := make(chan taskOutcome, 1)
	go func() {
		o, ti, to, e := task(taskCtx, input)
		resultCh <- taskOutcome{o, ti, to, e}
	}()

	select {
	case outcome := <-resultCh:
		return outcome.output, outcome.tokensIn, outcome.tokensOut, time.Since(start).Milliseconds(), outcome.err
	case <-taskCtx.Done():
		return "", 0, 0, time.Since(start).Milliseconds(), errs.Timeout("timeout exceeded")
	}
}

// runCase runs cfg.Trials trials of one case, averaging latency/tokens/
// scores across trials (spec §4.5.1 step 5-6).
func (r *Runner) runCase(ctx context.Context, cfg Config, c CaseInput) CaseResult {
	var totalLatency int64
	var totalTokensIn, totalTokensOut int
	scoreSums := make(map[string]float64, len(cfg.Scorers))
	var lastOutput, lastSuccessOutput any
	hadSuccess := false
	lastErr := ""

	for trial := 0; trial < cfg.Trials; trial++ {
		output, tokensIn, tokensOut, latencyMs, err := wrapTask(ctx, cfg.Task, c.Input, cfg.Timeout)
		totalLatency += latencyMs
		totalTokensIn += tokensIn
		totalTokensOut += tokensOut
		lastOutput = output

		if err != nil {
			lastErr = err.Error()
			continue // every scorer contributes 0 for a failing trial
		}

		lastErr = ""
		hadSuccess = true
		lastSuccessOutput = output

		for name, scorer := range cfg.Scorers {
			score, serr := scorer(ctx, output, c.Expected)
			if serr != nil {
				lastErr = fmt.Sprintf("Task failed: %v", serr)
				continue
			}
			scoreSums[name] += clamp01(score)
		}
	}

	trials := cfg.Trials
	meanScores := make(map[string]float64, len(cfg.Scorers))
	for name := range cfg.Scorers {
		meanScores[name] = scoreSums[name] / float64(trials)
	}

	displayOutput := lastOutput
	if hadSuccess {
		displayOutput = lastSuccessOutput
	}

	pass := len(meanScores) > 0
	for _, score := range meanScores {
		if score < cfg.Threshold {
			pass = false
			break
		}
	}
	if !hadSuccess {
		pass = false
	}

	return CaseResult{
		Index:     c.Index,
		Input:     c.Input,
		Output:    displayOutput,
		Expected:  c.Expected,
		Scores:    meanScores,
		Error:     lastErr,
		LatencyMs: round(totalLatency, trials),
		TokensIn:  int(round(int64(totalTokensIn), trials)),
		TokensOut: int(round(int64(totalTokensOut), trials)),
		Pass:      pass,
	}
}

func round(total int64, n int) int64 {
	if n == 0 {
		return 0
	}
	return int64(math.Round(float64(total) / float64(n)))
}

func clamp01(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func computeSummary(runID string, results []CaseResult, threshold float64) Summary {
	summary := Summary{RunID: runID, TotalCases: len(results), MeanScores: map[string]float64{}}
	sums := map[string]float64{}
	counts := map[string]int{}

	for _, res := range results {
		if res.Pass {
			summary.PassCount++
		}
		for name, score := range res.Scores {
			sums[name] += score
			counts[name]++
		}
	}
	summary.FailCount = summary.TotalCases - summary.PassCount

	for name, sum := range sums {
		if counts[name] == 0 {
			continue
		}
		summary.MeanScores[name] = sum / float64(counts[name])
	}
	return summary
}
