// Package guardrail implements the streaming interception chain from
// spec §4.3.2: a small fixed set of stream-part variants, guardrails that
// pattern-match on them, and a chain that runs each part through in
// order until a non-pass decision wins.
//
// Grounded on the teacher's MessageEvent/EventType pattern
// (pkg/types/llm/handler.go): a Kind-tagged struct with a small constant
// set of event types, generalized per spec §9's "tagged variant, not
// ad-hoc structural typing" guidance.
package guardrail

// Kind enumerates the fixed set of stream part variants (spec §6,
// "Streaming transport").
type Kind string

const (
	KindTextStart      Kind = "text-start"
	KindTextDelta      Kind = "text-delta"
	KindTextEnd        Kind = "text-end"
	KindReasoningDelta Kind = "reasoning-delta"
	KindError          Kind = "error"
	KindFinish         Kind = "finish"
	KindToolInvocation Kind = "tool-invocation"
)

// Part is one unit of a model's UI message stream.
type Part struct {
	Kind Kind
	ID   string

	// Delta carries text-delta/reasoning-delta content.
	Delta string

	// ErrorText carries the error message for KindError.
	ErrorText string

	// Tool invocation fields, populated for KindToolInvocation.
	ToolCallID string
	ToolName   string
	ToolInput  string
}

// TextStart, TextDelta, TextEnd, ReasoningDelta, Error, Finish, and
// ToolInvocation are constructors for the corresponding Part variant.
func TextStart(id string) Part                 { return Part{Kind: KindTextStart, ID: id} }
func TextDelta(id, delta string) Part          { return Part{Kind: KindTextDelta, ID: id, Delta: delta} }
func TextEnd(id string) Part                   { return Part{Kind: KindTextEnd, ID: id} }
func ReasoningDelta(id, delta string) Part     { return Part{Kind: KindReasoningDelta, ID: id, Delta: delta} }
func Error(errorText string) Part              { return Part{Kind: KindError, ErrorText: errorText} }
func Finish() Part                             { return Part{Kind: KindFinish} }
func ToolInvocation(callID, name, input string) Part {
	return Part{Kind: KindToolInvocation, ToolCallID: callID, ToolName: name, ToolInput: input}
}

// IsTextDelta reports whether the part contributes to accumulatedText
// (spec §4.3.3 step 1).
func (p Part) IsTextDelta() bool { return p.Kind == KindTextDelta }
