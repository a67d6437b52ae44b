package version

import (
	"fmt"
	"reflect"

	"qconf/internal/config"
)

// ValueChange holds the before/after values of a changed key
type ValueChange struct {
	Old interface{} `json:"old"`
	New interface{} `json:"new"`
}

// DiffResult buckets key-level differences between two version snapshots.
// Keys are "<config>.<dot.path>".
type DiffResult struct {
	Added       map[string]interface{} `json:"added"`
	Removed     map[string]interface{} `json:"removed"`
	Changed     map[string]ValueChange `json:"changed"`
	TypeChanged map[string]ValueChange `json:"type_changed"`
}

// Empty reports whether the diff contains no differences
func (d *DiffResult) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 &&
		len(d.Changed) == 0 && len(d.TypeChanged) == 0
}

// DiffSnapshots compares the configuration snapshots of two versions
func DiffSnapshots(oldConfigs, newConfigs map[string]config.Document) *DiffResult {
	result := &DiffResult{
		Added:       make(map[string]interface{}),
		Removed:     make(map[string]interface{}),
		Changed:     make(map[string]ValueChange),
		TypeChanged: make(map[string]ValueChange),
	}

	oldFlat := flattenSnapshot(oldConfigs)
	newFlat := flattenSnapshot(newConfigs)

	for key, oldValue := range oldFlat {
		newValue, exists := newFlat[key]
		if !exists {
			result.Removed[key] = oldValue
			continue
		}
		if reflect.DeepEqual(oldValue, newValue) {
			continue
		}
		change := ValueChange{Old: oldValue, New: newValue}
		if fmt.Sprintf("%T", oldValue) != fmt.Sprintf("%T", newValue) {
			result.TypeChanged[key] = change
		} else {
			result.Changed[key] = change
		}
	}

	for key, newValue := range newFlat {
		if _, exists := oldFlat[key]; !exists {
			result.Added[key] = newValue
		}
	}

	return result
}

// flattenSnapshot flattens every document, prefixing keys with the config
// name
func flattenSnapshot(configs map[string]config.Document) map[string]interface{} {
	out := make(map[string]interface{})
	for name, doc := range configs {
		for key, value := range config.Flatten(doc) {
			out[name+"."+key] = value
		}
	}
	return out
}
