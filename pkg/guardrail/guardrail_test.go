package guardrail_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftctx/weft/pkg/guardrail"
)

func TestChainFirstNonPassWins(t *testing.T) {
	always := func(kind guardrail.DecisionKind) guardrail.Guardrail {
		return fakeGuardrail{id: string(kind), decide: func(p guardrail.Part) guardrail.Decision {
			switch kind {
			case guardrail.DecisionFail:
				return guardrail.Fail("nope")
			case guardrail.DecisionStop:
				return guardrail.Stop(p)
			default:
				return guardrail.Pass(p)
			}
		}}
	}

	chain := guardrail.NewChain(always(guardrail.DecisionPass), always(guardrail.DecisionFail), always(guardrail.DecisionStop))
	d := chain.Run(guardrail.TextDelta("1", "hi"), guardrail.Context{})
	assert.Equal(t, guardrail.DecisionFail, d.Kind)
	assert.Equal(t, "nope", d.Feedback)
}

func TestChainAllPassReturnsPass(t *testing.T) {
	chain := guardrail.NewChain()
	part := guardrail.TextDelta("1", "hi")
	d := chain.Run(part, guardrail.Context{})
	assert.Equal(t, guardrail.DecisionPass, d.Kind)
	assert.Equal(t, part, d.Part)
}

func TestErrorRecoveryClassifiesUnknownTool(t *testing.T) {
	g := guardrail.NewErrorRecoveryGuardrail()
	d := g.Handle(
		guardrail.Error("attempted to call tool 'x' which was not in request.tools"),
		guardrail.Context{ToolNames: []string{"bash"}},
	)
	require.Equal(t, guardrail.DecisionFail, d.Kind)
	assert.Contains(t, d.Feedback, `I tried to call "x" but it doesn't exist. Available tools: bash.`)
}

func TestErrorRecoveryPassesNonErrorParts(t *testing.T) {
	g := guardrail.NewErrorRecoveryGuardrail()
	part := guardrail.TextDelta("1", "hi")
	d := g.Handle(part, guardrail.Context{})
	assert.Equal(t, guardrail.DecisionPass, d.Kind)
	assert.Equal(t, part, d.Part)
}

type fakeGuardrail struct {
	id     string
	decide func(guardrail.Part) guardrail.Decision
}

func (f fakeGuardrail) ID() string   { return f.id }
func (f fakeGuardrail) Name() string { return f.id }
func (f fakeGuardrail) Handle(p guardrail.Part, _ guardrail.Context) guardrail.Decision {
	return f.decide(p)
}
