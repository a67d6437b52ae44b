package hotreload

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"qconf/internal/config"
	"qconf/internal/logging"
	"qconf/internal/monitoring"
)

// ChangeRecord represents one applied (or rejected) configuration change
type ChangeRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	File      string    `json:"file"`
	Event     EventType `json:"event"`
	Changes   []Change  `json:"changes,omitempty"`
	Success   bool      `json:"success"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// ChangeHandler is notified after a configuration change is applied.
// Handler errors are logged, never fatal to the reload.
type ChangeHandler func(record ChangeRecord) error

// Stats summarizes reload activity since startup
type Stats struct {
	FilesMonitored    int        `json:"files_monitored"`
	ChangesDetected   int64      `json:"changes_detected"`
	SuccessfulReloads int64      `json:"successful_reloads"`
	FailedReloads     int64      `json:"failed_reloads"`
	Rollbacks         int64      `json:"rollbacks"`
	ValidationErrors  int64      `json:"validation_errors"`
	SuccessRate       float64    `json:"success_rate"`
	Uptime            string     `json:"uptime"`
	StartedAt         time.Time  `json:"started_at"`
	LastReload        *time.Time `json:"last_reload,omitempty"`
}

// Manager applies configuration file changes to a config registry: backup,
// parse, validate, diff, swap, notify. A change that fails to parse or
// validate never replaces the served configuration.
type Manager struct {
	cfg      config.HotReloadConfig
	registry *config.Manager
	watcher  *Watcher

	handlers map[string][]ChangeHandler
	history  []ChangeRecord
	paths    map[string]string // config name -> file path

	changesDetected   int64
	successfulReloads int64
	failedReloads     int64
	rollbacks         int64
	validationErrors  int64
	startedAt         time.Time
	lastReload        *time.Time

	mu      sync.RWMutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewManager creates a hot reload manager
func NewManager(cfg config.HotReloadConfig, registry *config.Manager) (*Manager, error) {
	watcher, err := NewWatcher(cfg.WatchDirs, cfg.WatchFiles, cfg.FilePatterns, cfg.CheckInterval.Duration())
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(cfg.BackupDir, 0755); err != nil {
		watcher.fsWatcher.Close()
		return nil, fmt.Errorf("failed to create backup directory: %w", err)
	}

	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 1000
	}
	if cfg.BackupCount <= 0 {
		cfg.BackupCount = 10
	}

	return &Manager{
		cfg:      cfg,
		registry: registry,
		watcher:  watcher,
		handlers: make(map[string][]ChangeHandler),
		paths:    make(map[string]string),
		done:     make(chan struct{}),
	}, nil
}

// RegisterHandler registers a change handler for a named configuration.
// An empty name registers a global handler notified on every change.
func (m *Manager) RegisterHandler(name string, handler ChangeHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[name] = append(m.handlers[name], handler)
}

// Start begins watching and applying configuration changes
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		return fmt.Errorf("hot reload manager already running")
	}
	m.running = true
	m.startedAt = time.Now()
	ctx, m.cancel = context.WithCancel(ctx)
	m.mu.Unlock()

	if err := m.watcher.Start(ctx); err != nil {
		return err
	}

	monitoring.SetWatchedFiles(float64(m.watcher.FileCount()))
	logging.WithFields(logrus.Fields{
		"dirs":  m.cfg.WatchDirs,
		"files": m.cfg.WatchFiles,
	}).Info("hot reload started")

	go m.run(ctx)
	return nil
}

// Stop stops the manager and the underlying watcher
func (m *Manager) Stop() {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return
	}
	m.running = false
	cancel := m.cancel
	m.mu.Unlock()

	cancel()
	m.watcher.Stop()
	<-m.done
	logging.Info("hot reload stopped")
}

// IsRunning reports whether the manager is active
func (m *Manager) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.done)

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-m.watcher.Events():
			if !ok {
				return
			}
			m.handleEvent(event)
			monitoring.SetWatchedFiles(float64(m.watcher.FileCount()))
		}
	}
}

// handleEvent runs the reload pipeline for a single file event
func (m *Manager) handleEvent(event FileEvent) {
	name := configName(event.Path)

	m.mu.Lock()
	m.changesDetected++
	m.paths[name] = event.Path
	m.mu.Unlock()
	monitoring.RecordChangeDetected()

	log := logging.WithFields(logrus.Fields{
		"config": name,
		"file":   event.Path,
		"event":  string(event.Type),
	})

	record := ChangeRecord{
		ID:        uuid.New().String(),
		Name:      name,
		File:      event.Path,
		Event:     event.Type,
		Timestamp: time.Now(),
	}

	if event.Type == EventDeleted {
		oldDoc, existed := m.registry.Get(name)
		if existed {
			m.registry.Delete(name)
			record.Changes = Diff(oldDoc, config.Document{})
		}
		record.Success = true
		m.finishReload(record, nil)
		log.Info("configuration removed")
		return
	}

	oldDoc, existed := m.registry.Get(name)

	// 先备份当前生效的配置，保证可回滚
	if existed {
		if err := m.backupDocument(name, oldDoc); err != nil {
			log.WithError(err).Warn("failed to write config backup")
		}
	}

	newDoc, err := m.registry.Loader().LoadFile(event.Path)
	if err != nil {
		record.Error = err.Error()
		m.finishReload(record, err)
		log.WithError(err).Error("config reload rejected: parse failed")
		return
	}

	if err := m.validateWithTimeout(name, newDoc); err != nil {
		m.mu.Lock()
		m.validationErrors++
		m.mu.Unlock()
		monitoring.RecordValidationError()

		record.Error = err.Error()
		m.finishReload(record, err)
		log.WithError(err).Error("config reload rejected: validation failed")
		return
	}

	record.Changes = Diff(oldDoc, newDoc)

	if err := m.registry.Set(name, newDoc); err != nil {
		record.Error = err.Error()
		m.finishReload(record, err)
		log.WithError(err).Error("config reload rejected")
		return
	}

	record.Success = true
	m.finishReload(record, nil)
	log.WithField("changes", len(record.Changes)).Info("configuration reloaded")
}

// finishReload updates counters, appends history and notifies handlers
func (m *Manager) finishReload(record ChangeRecord, err error) {
	now := time.Now()

	m.mu.Lock()
	if err == nil {
		m.successfulReloads++
		m.lastReload = &now
	} else {
		m.failedReloads++
	}

	m.history = append(m.history, record)
	if len(m.history) > m.cfg.HistorySize {
		m.history = m.history[len(m.history)-m.cfg.HistorySize:]
	}

	handlers := make([]ChangeHandler, 0, len(m.handlers[""])+len(m.handlers[record.Name]))
	handlers = append(handlers, m.handlers[""]...)
	handlers = append(handlers, m.handlers[record.Name]...)
	m.mu.Unlock()

	monitoring.RecordReload(err == nil)

	if err != nil {
		return
	}

	for _, handler := range handlers {
		if herr := handler(record); herr != nil {
			logging.WithError(herr).WithField("config", record.Name).
				Error("config change handler failed")
		}
	}
}

// validateWithTimeout runs registry validation bounded by the configured
// timeout
func (m *Manager) validateWithTimeout(name string, doc config.Document) error {
	timeout := m.cfg.ValidationTimeout.Duration()
	if timeout <= 0 {
		return m.registry.ValidateDocument(name, doc)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- m.registry.ValidateDocument(name, doc)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return fmt.Errorf("validation timed out after %s", timeout)
	}
}

// backupDocument writes a YAML snapshot of the currently served document to
// the backup directory and prunes old backups beyond the configured count
func (m *Manager) backupDocument(name string, doc config.Document) error {
	data, err := yaml.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal backup for %s: %w", name, err)
	}

	filename := fmt.Sprintf("%s.%s.backup", name, time.Now().Format("20060102_150405.000"))
	path := filepath.Join(m.cfg.BackupDir, filename)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write backup %s: %w", path, err)
	}

	m.pruneBackups(name)
	return nil
}

// Backup writes a backup of the currently served document for a config
func (m *Manager) Backup(name string) error {
	doc, exists := m.registry.Get(name)
	if !exists {
		return fmt.Errorf("configuration %s not found", name)
	}
	return m.backupDocument(name, doc)
}

// pruneBackups removes the oldest backups of a config beyond BackupCount
func (m *Manager) pruneBackups(name string) {
	backups, err := m.listBackups(name)
	if err != nil || len(backups) <= m.cfg.BackupCount {
		return
	}

	for _, stale := range backups[:len(backups)-m.cfg.BackupCount] {
		if err := os.Remove(stale); err != nil {
			logging.WithError(err).WithField("file", stale).Warn("failed to prune backup")
		}
	}
}

// listBackups returns the backup files for a config, oldest first
func (m *Manager) listBackups(name string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(m.cfg.BackupDir, name+".*.backup"))
	if err != nil {
		return nil, err
	}
	sort.Strings(matches)
	return matches, nil
}

// Rollback restores a configuration from its most recent backup. The
// restored document is validated, swapped into the registry and written
// back to the original file.
func (m *Manager) Rollback(name string) error {
	backups, err := m.listBackups(name)
	if err != nil {
		return err
	}
	if len(backups) == 0 {
		return fmt.Errorf("no backups available for config %s", name)
	}
	latest := backups[len(backups)-1]

	data, err := os.ReadFile(latest)
	if err != nil {
		return fmt.Errorf("failed to read backup %s: %w", latest, err)
	}

	// 备份文件统一为YAML格式
	doc := config.Document{}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to parse backup %s: %w", latest, err)
	}

	if err := m.validateWithTimeout(name, doc); err != nil {
		return fmt.Errorf("backup for %s failed validation: %w", name, err)
	}

	oldDoc, _ := m.registry.Get(name)
	if err := m.registry.Set(name, doc); err != nil {
		return err
	}

	m.mu.Lock()
	m.rollbacks++
	path, known := m.paths[name]
	m.mu.Unlock()
	monitoring.RecordRollback()

	if !known {
		path = m.registry.Loader().Path(name)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to restore config file %s: %w", path, err)
	}

	record := ChangeRecord{
		ID:        uuid.New().String(),
		Name:      name,
		File:      path,
		Event:     EventModified,
		Changes:   Diff(oldDoc, doc),
		Success:   true,
		Timestamp: time.Now(),
	}
	m.finishReload(record, nil)

	logging.WithFields(logrus.Fields{
		"config": name,
		"backup": latest,
	}).Info("configuration rolled back")
	return nil
}

// History returns the most recent change records, newest first
func (m *Manager) History(limit int) []ChangeRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if limit <= 0 || limit > len(m.history) {
		limit = len(m.history)
	}

	out := make([]ChangeRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = m.history[len(m.history)-1-i]
	}
	return out
}

// Stats returns a snapshot of reload activity
func (m *Manager) Stats() Stats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	total := m.successfulReloads + m.failedReloads
	rate := 0.0
	if total > 0 {
		rate = float64(m.successfulReloads) / float64(total)
	}

	return Stats{
		FilesMonitored:    m.watcher.FileCount(),
		ChangesDetected:   m.changesDetected,
		SuccessfulReloads: m.successfulReloads,
		FailedReloads:     m.failedReloads,
		Rollbacks:         m.rollbacks,
		ValidationErrors:  m.validationErrors,
		SuccessRate:       rate,
		Uptime:            time.Since(m.startedAt).String(),
		StartedAt:         m.startedAt,
		LastReload:        m.lastReload,
	}
}

// configName derives the registry name from a file path
func configName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
