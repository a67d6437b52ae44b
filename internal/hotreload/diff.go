package hotreload

import (
	"fmt"
	"reflect"
	"sort"

	"qconf/internal/config"
)

// ChangeType describes how a single configuration key changed
type ChangeType string

const (
	ChangeAdded       ChangeType = "added"
	ChangeRemoved     ChangeType = "removed"
	ChangeModified    ChangeType = "modified"
	ChangeTypeChanged ChangeType = "type_changed"
)

// Change represents a single key-level difference between two documents
type Change struct {
	Path     string      `json:"path"`
	Type     ChangeType  `json:"type"`
	OldValue interface{} `json:"old_value,omitempty"`
	NewValue interface{} `json:"new_value,omitempty"`
}

// Diff compares two configuration documents key by key, using flattened
// dot paths. Results are sorted by path for stable output.
func Diff(oldDoc, newDoc config.Document) []Change {
	oldFlat := config.Flatten(oldDoc)
	newFlat := config.Flatten(newDoc)

	var changes []Change

	for path, oldValue := range oldFlat {
		newValue, exists := newFlat[path]
		if !exists {
			changes = append(changes, Change{
				Path: path, Type: ChangeRemoved, OldValue: oldValue,
			})
			continue
		}
		if reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		changeType := ChangeModified
		if fmt.Sprintf("%T", oldValue) != fmt.Sprintf("%T", newValue) {
			changeType = ChangeTypeChanged
		}
		changes = append(changes, Change{
			Path: path, Type: changeType, OldValue: oldValue, NewValue: newValue,
		})
	}

	for path, newValue := range newFlat {
		if _, exists := oldFlat[path]; !exists {
			changes = append(changes, Change{
				Path: path, Type: ChangeAdded, NewValue: newValue,
			})
		}
	}

	sort.Slice(changes, func(i, j int) bool {
		return changes[i].Path < changes[j].Path
	})

	return changes
}
