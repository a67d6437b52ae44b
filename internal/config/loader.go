package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Document is a parsed configuration document
type Document = map[string]interface{}

// 匹配 ${VAR_NAME} 或 ${VAR_NAME:default}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ExpandEnv replaces ${VAR} and ${VAR:default} references in raw file
// content with environment variable values. A missing variable without a
// default substitutes an empty string.
func ExpandEnv(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		expr := match[2 : len(match)-1]
		name, def := expr, ""
		if i := strings.Index(expr, ":"); i >= 0 {
			name, def = expr[:i], expr[i+1:]
		}
		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		return def
	})
}

// Loader reads configuration documents from a base directory
type Loader struct {
	basePath    string
	environment string
}

// NewLoader creates a new document loader
func NewLoader(basePath, environment string) *Loader {
	if environment == "" {
		environment = os.Getenv("ENVIRONMENT")
	}
	if environment == "" {
		environment = "development"
	}
	return &Loader{
		basePath:    basePath,
		environment: environment,
	}
}

// BasePath returns the loader's base directory
func (l *Loader) BasePath() string {
	return l.basePath
}

// Environment returns the active environment name
func (l *Loader) Environment() string {
	return l.environment
}

// Path returns the file path for a named configuration
func (l *Loader) Path(name string) string {
	return filepath.Join(l.basePath, name+".yaml")
}

// Load loads a named configuration from the base directory
func (l *Loader) Load(name string) (Document, error) {
	return l.LoadFile(l.Path(name))
}

// LoadFile loads a configuration document from an arbitrary path. Raw
// content passes through environment variable substitution before parsing,
// and an `environments` overlay for the active environment is deep-merged
// over the base document.
func (l *Loader) LoadFile(path string) (Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	doc, err := ParseDocument(path, []byte(ExpandEnv(string(data))))
	if err != nil {
		return nil, err
	}

	return l.applyEnvironment(doc), nil
}

// applyEnvironment merges the active environment's overlay into the document
func (l *Loader) applyEnvironment(doc Document) Document {
	environments, ok := doc["environments"].(map[string]interface{})
	if !ok {
		return doc
	}

	if overlay, ok := environments[l.environment].(map[string]interface{}); ok {
		doc = DeepMerge(doc, overlay)
	}
	delete(doc, "environments")
	return doc
}

// ParseDocument parses raw config content based on the file extension
func ParseDocument(path string, content []byte) (Document, error) {
	var doc Document

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		if err := json.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config %s: %w", path, err)
		}
	case ".yaml", ".yml", "":
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", filepath.Ext(path))
	}

	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

// DeepMerge merges update into base recursively, returning a new map.
// Nested maps merge key by key; any other value in update replaces the
// base value.
func DeepMerge(base, update map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(base))
	for k, v := range base {
		result[k] = deepCopyValue(v)
	}

	for k, v := range update {
		if baseMap, ok := result[k].(map[string]interface{}); ok {
			if updateMap, ok := v.(map[string]interface{}); ok {
				result[k] = DeepMerge(baseMap, updateMap)
				continue
			}
		}
		result[k] = deepCopyValue(v)
	}

	return result
}

func deepCopyValue(v interface{}) interface{} {
	switch typed := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(typed))
		for k, val := range typed {
			out[k] = deepCopyValue(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(typed))
		for i, val := range typed {
			out[i] = deepCopyValue(val)
		}
		return out
	default:
		return v
	}
}

// GetValue retrieves a value from a document using a dot-separated key path
func GetValue(doc Document, key string) (interface{}, bool) {
	var current interface{} = map[string]interface{}(doc)

	for _, part := range strings.Split(key, ".") {
		m, ok := current.(map[string]interface{})
		if !ok {
			return nil, false
		}
		current, ok = m[part]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// SetValue sets a value in a document using a dot-separated key path,
// creating intermediate maps as needed
func SetValue(doc Document, key string, value interface{}) error {
	parts := strings.Split(key, ".")
	current := map[string]interface{}(doc)

	for _, part := range parts[:len(parts)-1] {
		next, ok := current[part]
		if !ok {
			child := make(map[string]interface{})
			current[part] = child
			current = child
			continue
		}
		childMap, ok := next.(map[string]interface{})
		if !ok {
			return fmt.Errorf("key %s: %q is not a map", key, part)
		}
		current = childMap
	}

	current[parts[len(parts)-1]] = value
	return nil
}

// Flatten converts a nested document into a flat map keyed by dot paths.
// Leaf values are anything that is not a map.
func Flatten(doc Document) map[string]interface{} {
	out := make(map[string]interface{})
	flattenInto(out, "", doc)
	return out
}

func flattenInto(out map[string]interface{}, prefix string, m map[string]interface{}) {
	for k, v := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if child, ok := v.(map[string]interface{}); ok {
			flattenInto(out, key, child)
			continue
		}
		out[key] = v
	}
}
