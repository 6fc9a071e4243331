package fragment

import "encoding/json"

// wireValue is the JSON-serializable shape of a Value tree, used for
// fragments with no codec (message fragments the caller chose not to give
// a custom codec).
type wireValue struct {
	Kind  string            `json:"kind"`
	Scalar any               `json:"scalar,omitempty"`
	Items []wireValue       `json:"items,omitempty"`
	Keys  []string          `json:"keys,omitempty"`
	Values map[string]wireValue `json:"values,omitempty"`
	Nested *wireFragment     `json:"nested,omitempty"`
}

type wireFragment struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Type Type      `json:"type"`
	Data wireValue `json:"data"`
}

func toWire(v Value) wireValue {
	switch vv := v.(type) {
	case Scalar:
		return wireValue{Kind: "scalar", Scalar: vv.V}
	case List:
		items := make([]wireValue, len(vv.Items))
		for i, it := range vv.Items {
			items[i] = toWire(it)
		}
		return wireValue{Kind: "list", Items: items}
	case Map:
		values := make(map[string]wireValue, len(vv.Values))
		for k, val := range vv.Values {
			values[k] = toWire(val)
		}
		return wireValue{Kind: "map", Keys: append([]string{}, vv.Keys...), Values: values}
	case Nested:
		if vv.Fragment == nil {
			return wireValue{Kind: "nested"}
		}
		return wireValue{Kind: "nested", Nested: &wireFragment{
			ID:   vv.Fragment.ID,
			Name: vv.Fragment.Name,
			Type: vv.Fragment.Type,
			Data: toWire(vv.Fragment.Data),
		}}
	default:
		return wireValue{Kind: "scalar"}
	}
}

func fromWire(w wireValue) Value {
	switch w.Kind {
	case "list":
		items := make([]Value, len(w.Items))
		for i, it := range w.Items {
			items[i] = fromWire(it)
		}
		return List{Items: items}
	case "map":
		values := make(map[string]Value, len(w.Values))
		for k, val := range w.Values {
			values[k] = fromWire(val)
		}
		return Map{Keys: append([]string{}, w.Keys...), Values: values}
	case "nested":
		if w.Nested == nil {
			return Nested{}
		}
		return Nested{Fragment: &Fragment{
			ID:   w.Nested.ID,
			Name: w.Nested.Name,
			Type: w.Nested.Type,
			Data: fromWire(w.Nested.Data),
		}}
	default:
		return Scalar{V: w.Scalar}
	}
}

// EncodeValue marshals a Value tree to JSON, for fragments persisted
// without a custom Codec.
func EncodeValue(v Value) ([]byte, error) {
	return json.Marshal(toWire(v))
}

// DecodeValue unmarshals JSON produced by EncodeValue back into a Value tree.
func DecodeValue(data []byte) (Value, error) {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(w), nil
}
