package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// DocumentValidator validates a named configuration document before it is
// accepted into the registry
type DocumentValidator interface {
	Validate(name string, doc Document) error
}

// Manager manages named configuration documents with concurrent access
type Manager struct {
	loader     *Loader
	docs       map[string]Document
	validators map[string][]DocumentValidator
	mu         sync.RWMutex
}

// NewManager creates a new configuration manager rooted at basePath
func NewManager(basePath, environment string) *Manager {
	return &Manager{
		loader:     NewLoader(basePath, environment),
		docs:       make(map[string]Document),
		validators: make(map[string][]DocumentValidator),
	}
}

// Loader returns the underlying document loader
func (m *Manager) Loader() *Loader {
	return m.loader
}

// RegisterValidator registers a validator for a named configuration.
// An empty name registers a validator that applies to every document.
func (m *Manager) RegisterValidator(name string, validator DocumentValidator) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.validators[name] = append(m.validators[name], validator)
}

// Load loads a named configuration file, validates it and stores it
func (m *Manager) Load(name string) (Document, error) {
	doc, err := m.loader.Load(name)
	if err != nil {
		return nil, err
	}

	if err := m.Set(name, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadDir loads every YAML configuration file under the base directory,
// recursing into subdirectories. Document names are file stems.
func (m *Manager) LoadDir() error {
	var loadErr error

	err := filepath.Walk(m.loader.BasePath(), func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}

		name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		doc, err := m.loader.LoadFile(path)
		if err != nil {
			// 记录首个错误，继续加载其余文件
			if loadErr == nil {
				loadErr = err
			}
			return nil
		}
		if err := m.Set(name, doc); err != nil {
			if loadErr == nil {
				loadErr = err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to scan config directory: %w", err)
	}

	return loadErr
}

// Get retrieves a deep copy of a configuration document by name. Callers
// may modify the returned document without affecting the served one.
func (m *Manager) Get(name string) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.docs[name]
	if !exists {
		return nil, false
	}
	return deepCopyValue(doc).(map[string]interface{}), true
}

// Set validates and stores a configuration document. The registry keeps its
// own copy, so later mutations by the caller do not leak into served state.
func (m *Manager) Set(name string, doc Document) error {
	if err := m.validate(name, doc); err != nil {
		return fmt.Errorf("config validation failed for %s: %w", name, err)
	}

	m.mu.Lock()
	m.docs[name] = deepCopyValue(doc).(map[string]interface{})
	m.mu.Unlock()
	return nil
}

// Delete removes a configuration document from the registry
func (m *Manager) Delete(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, name)
}

// Has reports whether a dot-path key exists in the named configuration
func (m *Manager) Has(name, key string) bool {
	_, err := m.GetValue(name, key)
	return err == nil
}

// GetValue retrieves a value from a named configuration using dot notation
func (m *Manager) GetValue(name, key string) (interface{}, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, exists := m.docs[name]
	if !exists {
		return nil, fmt.Errorf("configuration %s not found", name)
	}

	value, ok := GetValue(doc, key)
	if !ok {
		return nil, fmt.Errorf("key %s not found in configuration %s", key, name)
	}
	return deepCopyValue(value), nil
}

// SetValue sets a value in a named configuration using dot notation. The
// change is applied to a copy and validated; only a valid document replaces
// the served one.
func (m *Manager) SetValue(name, key string, value interface{}) error {
	m.mu.RLock()
	current, exists := m.docs[name]
	m.mu.RUnlock()

	doc := Document{}
	if exists {
		doc = deepCopyValue(current).(map[string]interface{})
	}

	if err := SetValue(doc, key, value); err != nil {
		return err
	}
	return m.Set(name, doc)
}

// List returns all loaded configuration names, sorted
func (m *Manager) List() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.docs))
	for name := range m.docs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Save writes a configuration document back to its file
func (m *Manager) Save(name string) error {
	m.mu.RLock()
	doc, exists := m.docs[name]
	m.mu.RUnlock()

	if !exists {
		return fmt.Errorf("configuration %s not found", name)
	}

	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal config %s: %w", name, err)
	}

	path := m.loader.Path(name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// Reload reloads a named configuration from disk
func (m *Manager) Reload(name string) error {
	_, err := m.Load(name)
	return err
}

// ReloadAll reloads every loaded configuration from disk
func (m *Manager) ReloadAll() error {
	for _, name := range m.List() {
		if err := m.Reload(name); err != nil {
			return fmt.Errorf("failed to reload config %s: %w", name, err)
		}
	}
	return nil
}

// ValidateDocument runs the registered validators for a document without
// storing it
func (m *Manager) ValidateDocument(name string, doc Document) error {
	return m.validate(name, doc)
}

// validate runs the registered validators for a document
func (m *Manager) validate(name string, doc Document) error {
	m.mu.RLock()
	validators := make([]DocumentValidator, 0, len(m.validators[name])+len(m.validators[""]))
	validators = append(validators, m.validators[""]...)
	validators = append(validators, m.validators[name]...)
	m.mu.RUnlock()

	for _, v := range validators {
		if err := v.Validate(name, doc); err != nil {
			return err
		}
	}
	return nil
}

// Snapshot represents a point-in-time copy of all configurations
type Snapshot struct {
	Timestamp time.Time           `json:"timestamp"`
	Docs      map[string]Document `json:"configs"`
}

// CreateSnapshot creates a deep-copied snapshot of all configurations
func (m *Manager) CreateSnapshot() *Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := &Snapshot{
		Timestamp: time.Now(),
		Docs:      make(map[string]Document, len(m.docs)),
	}
	for name, doc := range m.docs {
		snapshot.Docs[name] = deepCopyValue(doc).(map[string]interface{})
	}
	return snapshot
}

// RestoreSnapshot restores configurations from a snapshot. Every document
// must pass validation or the restore is aborted before any mutation.
func (m *Manager) RestoreSnapshot(snapshot *Snapshot) error {
	for name, doc := range snapshot.Docs {
		if err := m.validate(name, doc); err != nil {
			return fmt.Errorf("config validation failed for %s during restore: %w", name, err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for name, doc := range snapshot.Docs {
		m.docs[name] = deepCopyValue(doc).(map[string]interface{})
	}
	return nil
}
