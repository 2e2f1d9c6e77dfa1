package oracle

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strconv"
	"time"

	"github.com/orchestratord/orchestratord/internal/breaker"
	"github.com/orchestratord/orchestratord/internal/obslog"
)

// Binary is the external reasoning CLI's executable name. Overridable
// for tests.
var Binary = "oracle"

// Gateway serializes subprocess invocations of the oracle CLI under a
// global concurrency semaphore (spec §4.1 "at most maxConcurrent=2").
// Modeled on the teacher's retry/circuit-breaker-gated external call
// pattern, generalized to a single bounded semaphore rather than a
// worker pool since the oracle CLI is invoked at low, bursty frequency.
type Gateway struct {
	sem      chan struct{}
	breakers *breaker.Registry
	log      *obslog.Logger
	runner   runFunc
	metrics  MetricsRecorder
}

// MetricsRecorder is the narrow hook internal/metrics.Recorder satisfies
// structurally, so this package never imports internal/metrics (avoids
// an import cycle; nil is a valid no-op recorder).
type MetricsRecorder interface {
	OracleQueryStarted()
	OracleQueryFinished(provider, outcome string, seconds float64)
}

// SetMetrics installs an optional metrics recorder. Safe to call with
// nil to disable instrumentation.
func (g *Gateway) SetMetrics(m MetricsRecorder) { g.metrics = m }

// runFunc abstracts subprocess execution for testing.
type runFunc func(ctx context.Context, args []string, stdinData []byte) (stdout []byte, err error)

// Config configures the Gateway's concurrency ceiling.
type Config struct {
	MaxConcurrent int
}

func (c Config) withDefaults() Config {
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = 2
	}
	return c
}

// NewGateway builds a Gateway backed by real subprocess execution.
func NewGateway(cfg Config, breakers *breaker.Registry, log *obslog.Logger) *Gateway {
	cfg = cfg.withDefaults()
	return &Gateway{
		sem:      make(chan struct{}, cfg.MaxConcurrent),
		breakers: breakers,
		log:      log,
		runner:   execRunner,
	}
}

// Provider is the breaker provider name used for a bare think-cycle
// decision call (no specific external tool involved).
const Provider = "oracle"

// Query invokes the oracle CLI with prompt and options, gated by the
// named provider's circuit breaker and the global semaphore (spec §4.1,
// §4.5 invariant 10: breaker check happens before acquiring a slot).
func (g *Gateway) Query(ctx context.Context, provider, prompt string, opts Options) Result {
	if g.breakers != nil {
		if err := g.breakers.Allow(provider); err != nil {
			return Result{Failure: FailureCircuitOpen, Err: err}
		}
	}

	select {
	case g.sem <- struct{}{}:
	case <-ctx.Done():
		return Result{Failure: FailureTimeout, Err: ctx.Err()}
	}
	defer func() { <-g.sem }()

	if g.metrics != nil {
		g.metrics.OracleQueryStarted()
	}
	started := time.Now()
	var res Result
	defer func() {
		if g.metrics != nil {
			outcome := "ok"
			if res.Failure != "" {
				outcome = string(res.Failure)
			}
			g.metrics.OracleQueryFinished(provider, outcome, time.Since(started).Seconds())
		}
	}()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	args, stdinData := buildArgs(prompt, opts)
	out, err := g.runner(runCtx, args, stdinData)

	res = Result{Raw: string(out)}
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		res.Failure = FailureTimeout
		res.Err = runCtx.Err()
		g.recordFailure(provider)
		return res
	case errors.Is(err, exec.ErrNotFound):
		res.Failure = FailureUnavailable
		res.Err = err
		g.recordFailure(provider)
		return res
	case err != nil:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Failure = FailureRuntime
			res.Err = err
			g.recordFailure(provider)
			return res
		}
		res.Failure = FailureUnavailable
		res.Err = err
		g.recordFailure(provider)
		return res
	}

	g.recordSuccess(provider)

	if opts.OutputFormat != FormatJSON {
		res.Text = string(out)
		return res
	}

	parsed, perr := ParseJSON(out)
	if perr != nil {
		res.Failure = FailureParse
		res.Err = perr
		if g.log != nil {
			g.log.WithError(perr).WithField("raw", res.Raw).Warn("oracle: parse-fail, all fallbacks exhausted")
		}
		return res
	}
	res.JSON = parsed
	return res
}

func (g *Gateway) recordFailure(provider string) {
	if g.breakers != nil {
		g.breakers.RecordFailure(provider)
	}
}

func (g *Gateway) recordSuccess(provider string) {
	if g.breakers != nil {
		g.breakers.RecordSuccess(provider)
	}
}

func buildArgs(prompt string, opts Options) (args []string, stdinData []byte) {
	args = []string{"-p"}
	if opts.Stdin {
		args = append(args, "-")
		stdinData = []byte(prompt)
	} else {
		args = append(args, prompt)
	}
	if opts.MaxTurns > 0 {
		args = append(args, "--max-turns", strconv.Itoa(opts.MaxTurns))
	}
	if opts.Model != "" {
		args = append(args, "--model", string(opts.Model))
	}
	if opts.OutputFormat != "" {
		args = append(args, "--output-format", string(opts.OutputFormat))
	}
	if opts.JSONSchema != "" {
		args = append(args, "--json-schema", opts.JSONSchema)
	}
	for _, t := range opts.AllowedTools {
		args = append(args, "--allowed-tool", t)
	}
	return args, stdinData
}

func execRunner(ctx context.Context, args []string, stdinData []byte) ([]byte, error) {
	cmd := exec.CommandContext(ctx, Binary, args...)
	if stdinData != nil {
		cmd.Stdin = bytes.NewReader(stdinData)
	}
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stdout
	err := cmd.Run()
	return stdout.Bytes(), err
}

// SetRunner overrides the subprocess runner, for tests.
func (g *Gateway) SetRunner(r runFunc) { g.runner = r }
