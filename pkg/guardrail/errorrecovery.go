package guardrail

import (
	"fmt"
	"regexp"
	"strings"
)

// ErrorRecoveryGuardrail classifies `error` parts into the categories
// named in spec §4.3.4 (no tools configured, unknown tool, malformed
// JSON, parse failure) and turns each into self-correction feedback that
// lists the tools currently available to the agent.
type ErrorRecoveryGuardrail struct{}

// NewErrorRecoveryGuardrail constructs the built-in error-recovery guardrail.
func NewErrorRecoveryGuardrail() *ErrorRecoveryGuardrail { return &ErrorRecoveryGuardrail{} }

func (g *ErrorRecoveryGuardrail) ID() string   { return "error-recovery" }
func (g *ErrorRecoveryGuardrail) Name() string { return "Error Recovery" }

var unknownToolPattern = regexp.MustCompile(`attempted to call tool '([^']+)' which was not in request\.tools`)

// Handle passes through every part except KindError, which it converts
// to a Fail decision carrying human-readable correction feedback.
func (g *ErrorRecoveryGuardrail) Handle(part Part, gctx Context) Decision {
	if part.Kind != KindError {
		return Pass(part)
	}
	return Fail(g.classify(part.ErrorText, gctx.ToolNames))
}

func (g *ErrorRecoveryGuardrail) classify(errorText string, toolNames []string) string {
	available := toolList(toolNames)

	switch {
	case len(toolNames) == 0:
		return fmt.Sprintf(" I tried to use a tool but none are configured for this turn. I'll answer directly instead.")
	case unknownToolPattern.MatchString(errorText):
		m := unknownToolPattern.FindStringSubmatch(errorText)
		return fmt.Sprintf(" I tried to call %q but it doesn't exist. Available tools: %s.", m[1], available)
	case strings.Contains(errorText, "invalid") && strings.Contains(errorText, "JSON"):
		return fmt.Sprintf(" The tool arguments I produced were malformed JSON. I'll retry with valid JSON. Available tools: %s.", available)
	case strings.Contains(errorText, "parse"):
		return fmt.Sprintf(" I couldn't parse the previous response. I'll try again. Available tools: %s.", available)
	default:
		return fmt.Sprintf(" I hit an error: %s. Available tools: %s.", errorText, available)
	}
}

func toolList(names []string) string {
	return strings.Join(names, ", ")
}
