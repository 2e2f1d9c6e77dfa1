// Package oracle implements the C2 oracle gateway: the only path by
// which the daemon invokes the external reasoning CLI subprocess.
package oracle

import "time"

// Model selects the oracle's reasoning tier.
type Model string

const (
	ModelSmall   Model = "small"
	ModelDefault Model = "default"
	ModelLarge   Model = "large"
)

// OutputFormat selects how the oracle is asked to respond.
type OutputFormat string

const (
	FormatText OutputFormat = "text"
	FormatJSON OutputFormat = "json"
)

// Options configures one Query call (spec §4.1).
type Options struct {
	MaxTurns     int
	Model        Model
	OutputFormat OutputFormat
	JSONSchema   string // non-empty enables schema-constrained decoding
	AllowedTools []string
	Timeout      time.Duration
	Stdin        bool // pipe the prompt on stdin instead of argv
}

// DefaultDecisionOptions returns the options used for a think-cycle
// decision call: single turn, schema-constrained JSON, 30s timeout, no
// external tools.
func DefaultDecisionOptions(schema string) Options {
	return Options{
		MaxTurns:     1,
		Model:        ModelDefault,
		OutputFormat: FormatJSON,
		JSONSchema:   schema,
		Timeout:      30 * time.Second,
	}
}

// DefaultToolOptions returns the options used for an external-tool
// invocation: more turns, a longer timeout, and an explicit tool
// allowlist.
func DefaultToolOptions(allowedTools []string) Options {
	return Options{
		MaxTurns:     5,
		Model:        ModelDefault,
		OutputFormat: FormatText,
		AllowedTools: allowedTools,
		Timeout:      60 * time.Second,
	}
}

// FailureMode classifies why a Query did not return a usable result
// (spec §4.1 Failure modes, §8 error taxonomy OracleTimeout/
// OracleParseFail/OracleUnavailable).
type FailureMode string

const (
	FailureNone        FailureMode = ""
	FailureTimeout     FailureMode = "TIMEOUT"
	FailureUnavailable FailureMode = "UNAVAILABLE"
	FailureRuntime     FailureMode = "RUNTIME"
	FailureParse       FailureMode = "PARSE_FAIL"
	FailureCircuitOpen FailureMode = "CIRCUIT_OPEN"
)

// Result is what Query always returns: either a usable Text/JSON payload
// or a typed failure, never both. The raw subprocess output is retained
// regardless of outcome for audit (spec §4.1 "Always retain the raw
// response for audit").
type Result struct {
	Text    string
	JSON    []byte // present only on successful JSON-mode decode
	Raw     string // raw subprocess stdout, always populated when captured
	Failure FailureMode
	Err     error
}

// OK reports whether the call produced a usable result.
func (r Result) OK() bool { return r.Failure == FailureNone && r.Err == nil }
