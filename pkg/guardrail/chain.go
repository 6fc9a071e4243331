package guardrail

// DecisionKind enumerates the fixed decision variants a guardrail may
// return for one part (spec §4.3.2).
type DecisionKind string

const (
	DecisionPass   DecisionKind = "pass"
	DecisionModify DecisionKind = "modify"
	DecisionFail   DecisionKind = "fail"
	DecisionStop   DecisionKind = "stop"
)

// Decision is a guardrail's verdict on one part.
type Decision struct {
	Kind     DecisionKind
	Part     Part   // populated for modify/stop
	Feedback string // populated for fail
}

// Pass forwards the part unchanged.
func Pass(part Part) Decision { return Decision{Kind: DecisionPass, Part: part} }

// Modify replaces the part before forwarding.
func Modify(newPart Part) Decision { return Decision{Kind: DecisionModify, Part: newPart} }

// Fail triggers a retry with the given self-correction feedback.
func Fail(feedback string) Decision { return Decision{Kind: DecisionFail, Feedback: feedback} }

// Stop emits the current part, then a finish sentinel, and terminates
// with no retry.
func Stop(part Part) Decision { return Decision{Kind: DecisionStop, Part: part} }

// Context carries information a guardrail's classification logic needs
// but that isn't part of the stream itself — e.g. the tool names
// currently available to the agent (spec §4.3.4).
type Context struct {
	ToolNames []string
}

// Guardrail inspects one stream part and returns a decision (spec §4.3.2).
type Guardrail interface {
	ID() string
	Name() string
	Handle(part Part, gctx Context) Decision
}

// Chain runs a part through an ordered list of guardrails; the first
// non-pass decision wins (spec §4.3.2).
type Chain struct {
	guardrails []Guardrail
}

// NewChain builds a chain from an ordered guardrail list.
func NewChain(guardrails ...Guardrail) *Chain {
	return &Chain{guardrails: guardrails}
}

// Run evaluates part against every guardrail in order, returning the
// first non-pass decision, or Pass(part) if every guardrail passes
// (or the chain is empty).
func (c *Chain) Run(part Part, gctx Context) Decision {
	for _, g := range c.guardrails {
		d := g.Handle(part, gctx)
		if d.Kind != DecisionPass {
			return d
		}
	}
	return Pass(part)
}
