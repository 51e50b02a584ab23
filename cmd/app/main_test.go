package main

import (
	"encoding/json"
	"testing"
)

func TestConvertOptions(t *testing.T) {
	if got, err := convertOptions("", 0, false); err != nil || got != nil {
		t.Errorf("empty = %s, %v", got, err)
	}
	if _, err := convertOptions("{bad", 0, false); err == nil {
		t.Error("expected error for invalid JSON")
	}

	got, err := convertOptions(`{"target_keys": 7, "seed": 1}`, 99, true)
	if err != nil {
		t.Fatalf("convertOptions: %v", err)
	}
	var m map[string]any
	_ = json.Unmarshal(got, &m)
	if m["seed"] != float64(99) || m["target_keys"] != float64(7) {
		t.Errorf("merged = %s", got)
	}

	if _, err := convertOptions(`[1]`, 3, true); err == nil {
		t.Error("expected error for non-object options with seed")
	}
}
