package eventlog

import "testing"

func TestClone(t *testing.T) {
	orig := State{
		"users": []any{map[string]any{"name": "a"}},
		"meta":  map[string]any{"count": 1.0},
	}
	c := Clone(orig)

	c["users"] = append(c["users"].([]any), "b")
	c["meta"].(map[string]any)["count"] = 2.0
	orig["users"].([]any)[0].(map[string]any)["name"] = "changed"

	if len(orig["users"].([]any)) != 1 {
		t.Error("append on clone leaked into original")
	}
	if orig["meta"].(map[string]any)["count"] != 1.0 {
		t.Error("nested map write on clone leaked into original")
	}
	if c["users"].([]any)[0].(map[string]any)["name"] != "a" {
		t.Error("write on original leaked into clone")
	}
}

func TestCloneNil(t *testing.T) {
	if c := Clone(nil); c == nil || len(c) != 0 {
		t.Errorf("Clone(nil) = %v, want empty state", c)
	}
}
