package hotreload

import (
	"testing"

	"qconf/internal/config"
)

func TestDiff(t *testing.T) {
	oldDoc := config.Document{
		"server": map[string]interface{}{
			"port": 8080,
			"host": "localhost",
		},
		"removed": "gone",
		"typed":   1,
	}
	newDoc := config.Document{
		"server": map[string]interface{}{
			"port": 9090,
			"host": "localhost",
		},
		"added": true,
		"typed": "one",
	}

	changes := Diff(oldDoc, newDoc)

	byPath := make(map[string]Change, len(changes))
	for _, c := range changes {
		byPath[c.Path] = c
	}

	if len(changes) != 4 {
		t.Fatalf("Expected 4 changes, got %d: %v", len(changes), changes)
	}

	if c := byPath["server.port"]; c.Type != ChangeModified || c.OldValue != 8080 || c.NewValue != 9090 {
		t.Errorf("Unexpected server.port change: %+v", c)
	}
	if c := byPath["removed"]; c.Type != ChangeRemoved || c.OldValue != "gone" {
		t.Errorf("Unexpected removed change: %+v", c)
	}
	if c := byPath["added"]; c.Type != ChangeAdded || c.NewValue != true {
		t.Errorf("Unexpected added change: %+v", c)
	}
	if c := byPath["typed"]; c.Type != ChangeTypeChanged {
		t.Errorf("Expected type_changed for typed, got %+v", c)
	}

	if _, exists := byPath["server.host"]; exists {
		t.Error("Unchanged key must not appear in diff")
	}
}

func TestDiffSorted(t *testing.T) {
	changes := Diff(
		config.Document{"z": 1, "a": 1},
		config.Document{"z": 2, "a": 2},
	)
	if len(changes) != 2 || changes[0].Path != "a" || changes[1].Path != "z" {
		t.Errorf("Expected changes sorted by path, got %v", changes)
	}
}

func TestDiffIdentical(t *testing.T) {
	doc := config.Document{
		"nested": map[string]interface{}{"k": []interface{}{1, 2}},
	}
	if changes := Diff(doc, doc); len(changes) != 0 {
		t.Errorf("Expected no changes for identical documents, got %v", changes)
	}
}
