package eval

// EventKind tags one eval event variant (spec §6 "Eval event stream").
type EventKind string

const (
	EventRunStart   EventKind = "run:start"
	EventCaseStart  EventKind = "case:start"
	EventCaseScored EventKind = "case:scored"
	EventCaseError  EventKind = "case:error"
	EventRunEnd     EventKind = "run:end"
)

// Event is the tagged union emitted during a run; only the fields
// relevant to Kind are populated.
type Event struct {
	Kind EventKind

	RunID      string
	TotalCases int
	Name       string
	Model      string

	Index    int
	Input    any
	Output   any
	Expected any
	Scores   map[string]float64
	Error    string

	LatencyMs int64
	TokensIn  int
	TokensOut int

	Summary Summary
}

// Emitter observes eval events as they occur. A nil Emitter is valid —
// callers that don't care about progress pass eval.NoopEmitter{}.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards every event.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// ChannelEmitter forwards every event onto a channel, for callers that
// want to observe progress without implementing Emitter themselves.
type ChannelEmitter struct {
	C chan<- Event
}

func (e ChannelEmitter) Emit(ev Event) {
	if e.C != nil {
		e.C <- ev
	}
}
