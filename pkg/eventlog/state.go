package eventlog

// State is the projected application state. Values are JSON-like: maps,
// slices, strings, float64, bool and nil.
type State = map[string]any

// Clone returns a deep copy of s.
func Clone(s State) State {
	if s == nil {
		return State{}
	}
	return cloneValue(s).(map[string]any)
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = cloneValue(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val)
		}
		return out
	case []map[string]any:
		out := make([]map[string]any, len(t))
		for i, val := range t {
			out[i] = cloneValue(val).(map[string]any)
		}
		return out
	default:
		return v
	}
}
