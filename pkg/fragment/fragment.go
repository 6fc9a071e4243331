// Package fragment implements the Fragment data model from spec §3: a
// typed semantic container carrying a name, a recursive data payload,
// an optional id, and an optional codec for LLM-format encode/decode.
// It is the foundation the context store and engine build on.
package fragment

import "time"

// Type distinguishes a system-prompt fragment from a persisted message fragment.
type Type string

const (
	TypeFragment Type = "fragment"
	TypeMessage  Type = "message"
)

// Codec converts a message fragment's payload to/from the storage
// representation and the LLM-SDK-shaped message. Non-message fragments
// need no codec; they are rendered directly by a textual renderer.
type Codec interface {
	// Encode produces the JSON-serializable storage representation.
	Encode() ([]byte, error)
	// Decode produces the LLM-SDK-shaped message (role, parts).
	Decode() (LLMMessage, error)
}

// LLMMessage is the decoded, provider-shaped message a codec produces.
type LLMMessage struct {
	Role  string
	Parts []Part
}

// Part is one piece of an LLM message (text, tool call, tool result, image...).
type Part struct {
	Kind    string // "text", "tool_use", "tool_result", "image", ...
	Text    string
	ToolID  string
	ToolUse map[string]any
}

// ResolveTag names how a lazy fragment should be resolved at save time
// (spec §4.2.2). "last-assistant" is the only specified tag.
type ResolveTag string

const (
	// ResolveLastAssistant resolves to the most recent assistant message's id.
	ResolveLastAssistant ResolveTag = "last-assistant"
)

// Fragment is the unit of prompt-building data described in spec §3.
// A fragment is either concrete (Data set, possibly with Codec for
// message fragments) or lazy (Lazy set, with Data and Codec but no ID;
// the engine resolves the ID just before write).
type Fragment struct {
	ID        string
	Name      string
	Type      Type
	Data      Value
	Persist   bool
	Codec     Codec
	Metadata  map[string]any
	CreatedAt time.Time

	// Lazy, when non-empty, marks this as a lazy fragment per spec §4.2.2:
	// it carries no id yet, only a resolution tag alongside its Data and Codec.
	Lazy ResolveTag
}

// IsLazy reports whether the fragment is an unresolved lazy fragment.
func (f *Fragment) IsLazy() bool { return f.Lazy != "" }

// IsMessage reports whether the fragment belongs to the pending-message
// bucket (spec §4.2, bucket 2) rather than the system-prompt bucket.
func (f *Fragment) IsMessage() bool { return f.Type == TypeMessage }

// New constructs a concrete, non-lazy fragment.
func New(name string, data Value) *Fragment {
	return &Fragment{
		Name: name,
		Type: TypeFragment,
		Data: data,
	}
}

// NewMessage constructs a concrete message fragment with an id and codec.
func NewMessage(id, name string, data Value, codec Codec) *Fragment {
	return &Fragment{
		ID:    id,
		Name:  name,
		Type:  TypeMessage,
		Data:  data,
		Codec: codec,
	}
}

// NewLazyMessage constructs a lazy message fragment resolved at save time.
func NewLazyMessage(name string, tag ResolveTag, data Value, codec Codec) *Fragment {
	return &Fragment{
		Name:  name,
		Type:  TypeMessage,
		Data:  data,
		Codec: codec,
		Lazy:  tag,
	}
}

// Equivalent reports whether two fragments have the same name and an
// equal Data tree, per spec §3 ("Two fragments with identical structure
// and name are considered equivalent for rendering purposes").
func Equivalent(a, b *Fragment) bool {
	if a.Name != b.Name {
		return false
	}
	return valueEqual(a.Data, b.Data)
}
