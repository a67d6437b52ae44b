package version

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"qconf/internal/config"
	apperrors "qconf/internal/errors"
	"qconf/internal/logging"
	"qconf/internal/monitoring"
)

const historyFile = "version_history.json"

// Version is a point-in-time snapshot of every managed configuration
type Version struct {
	ID          string                     `json:"id"`
	Timestamp   time.Time                  `json:"timestamp"`
	Description string                     `json:"description"`
	Author      string                     `json:"author"`
	Configs     map[string]config.Document `json:"configs"`
}

// Meta is the history-index entry for a version
type Meta struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	ConfigCount int       `json:"config_count"`
}

// Statistics summarizes the stored versions
type Statistics struct {
	Total     int        `json:"total"`
	Oldest    *time.Time `json:"oldest,omitempty"`
	Newest    *time.Time `json:"newest,omitempty"`
	DiskBytes int64      `json:"disk_bytes"`
}

// Store persists versions outside the local filesystem. Implementations may
// be absent; the manager degrades to file-only storage.
type Store interface {
	SaveVersion(ctx context.Context, v *Version) error
	DeleteVersion(ctx context.Context, id string) error
}

// Optional store capabilities. When present the manager recovers versions
// and the history index from the store after local files are lost.
type storeLoader interface {
	LoadVersion(ctx context.Context, id string) (*Version, error)
}

type storeLister interface {
	ListVersions(ctx context.Context, limit int) ([]Meta, error)
}

// Manager creates, restores and prunes configuration versions. Versions are
// stored as JSON files in the versions directory with a history index.
type Manager struct {
	cfg      config.VersionsConfig
	registry *config.Manager
	store    Store

	history []Meta
	cron    *cron.Cron
	mu      sync.Mutex
}

// NewManager creates a version manager and loads the history index
func NewManager(cfg config.VersionsConfig, registry *config.Manager, store Store) (*Manager, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create versions directory: %w", err)
	}

	m := &Manager{
		cfg:      cfg,
		registry: registry,
		store:    store,
	}

	if err := m.loadHistory(); err != nil {
		return nil, err
	}
	return m, nil
}

// Create snapshots all managed configurations as a new version
func (m *Manager) Create(ctx context.Context, description, author string) (*Version, error) {
	snapshot := m.registry.CreateSnapshot()

	m.mu.Lock()
	defer m.mu.Unlock()

	v := &Version{
		ID:          m.newID(),
		Timestamp:   snapshot.Timestamp,
		Description: description,
		Author:      author,
		Configs:     snapshot.Docs,
	}

	if err := m.writeVersion(v); err != nil {
		return nil, err
	}

	m.history = append(m.history, Meta{
		ID:          v.ID,
		Timestamp:   v.Timestamp,
		Description: v.Description,
		Author:      v.Author,
		ConfigCount: len(v.Configs),
	})
	if err := m.writeHistory(); err != nil {
		return nil, err
	}

	monitoring.RecordVersionCreated()

	if m.store != nil {
		if err := m.store.SaveVersion(ctx, v); err != nil {
			// 数据库不可用时降级为仅文件存储
			logging.WithError(err).Warn("failed to persist version to database")
		}
	}

	logging.WithFields(logrus.Fields{
		"version": v.ID,
		"configs": len(v.Configs),
	}).Info("configuration version created")
	return v, nil
}

// List returns version metadata, newest first
func (m *Manager) List() []Meta {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]Meta, len(m.history))
	for i, meta := range m.history {
		out[len(m.history)-1-i] = meta
	}
	return out
}

// Get loads a stored version by ID. When the local file is gone the version
// is recovered from the database store, if one is configured.
func (m *Manager) Get(id string) (*Version, error) {
	data, err := os.ReadFile(m.versionPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			if v, ok := m.loadFromStore(id); ok {
				return v, nil
			}
			return nil, apperrors.NewAppError(apperrors.ErrCodeVersionNotFound,
				fmt.Sprintf("version %s not found", id), err)
		}
		return nil, fmt.Errorf("failed to read version %s: %w", id, err)
	}

	var v Version
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse version %s: %w", id, err)
	}
	return &v, nil
}

// Rollback restores the configurations of a stored version. The current
// state is captured as an automatic version first, so the rollback itself
// can be undone.
func (m *Manager) Rollback(ctx context.Context, id string) error {
	target, err := m.Get(id)
	if err != nil {
		return err
	}

	if _, err := m.Create(ctx, fmt.Sprintf("automatic snapshot before rollback to %s", id), "system"); err != nil {
		return fmt.Errorf("failed to snapshot current state: %w", err)
	}

	snapshot := &config.Snapshot{
		Timestamp: target.Timestamp,
		Docs:      target.Configs,
	}
	if err := m.registry.RestoreSnapshot(snapshot); err != nil {
		return err
	}

	// 恢复的配置写回磁盘
	var writeErr error
	for name := range target.Configs {
		if err := m.registry.Save(name); err != nil {
			logging.WithError(err).WithField("config", name).
				Warn("failed to write restored config file")
			if writeErr == nil {
				writeErr = err
			}
		}
	}

	logging.WithField("version", id).Info("configuration rolled back to version")
	return writeErr
}

// Diff compares two stored versions
func (m *Manager) Diff(oldID, newID string) (*DiffResult, error) {
	oldVersion, err := m.Get(oldID)
	if err != nil {
		return nil, err
	}
	newVersion, err := m.Get(newID)
	if err != nil {
		return nil, err
	}
	return DiffSnapshots(oldVersion.Configs, newVersion.Configs), nil
}

// Export writes a stored version to an arbitrary path as JSON
func (m *Manager) Export(id, path string) error {
	v, err := m.Get(id)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal version %s: %w", id, err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to export version %s: %w", id, err)
	}
	return nil
}

// Import loads an exported version file into the store under a new ID
func (m *Manager) Import(ctx context.Context, path string) (*Version, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read import file: %w", err)
	}

	var v Version
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to parse import file: %w", err)
	}
	if len(v.Configs) == 0 {
		return nil, fmt.Errorf("import file contains no configurations")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	imported := &Version{
		ID:          m.newID(),
		Timestamp:   time.Now(),
		Description: fmt.Sprintf("imported from %s (original %s)", filepath.Base(path), v.ID),
		Author:      v.Author,
		Configs:     v.Configs,
	}

	if err := m.writeVersion(imported); err != nil {
		return nil, err
	}

	m.history = append(m.history, Meta{
		ID:          imported.ID,
		Timestamp:   imported.Timestamp,
		Description: imported.Description,
		Author:      imported.Author,
		ConfigCount: len(imported.Configs),
	})
	if err := m.writeHistory(); err != nil {
		return nil, err
	}

	if m.store != nil {
		if err := m.store.SaveVersion(ctx, imported); err != nil {
			logging.WithError(err).Warn("failed to persist imported version to database")
		}
	}

	return imported, nil
}

// Cleanup removes the oldest versions beyond keep. keep <= 0 uses the
// configured count.
func (m *Manager) Cleanup(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		keep = m.cfg.KeepCount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.history) <= keep {
		return 0, nil
	}

	stale := m.history[:len(m.history)-keep]
	m.history = m.history[len(m.history)-keep:]

	removed := 0
	for _, meta := range stale {
		if err := os.Remove(m.versionPath(meta.ID)); err != nil && !os.IsNotExist(err) {
			logging.WithError(err).WithField("version", meta.ID).Warn("failed to remove version file")
			continue
		}
		if m.store != nil {
			if err := m.store.DeleteVersion(ctx, meta.ID); err != nil {
				logging.WithError(err).WithField("version", meta.ID).
					Warn("failed to remove version from database")
			}
		}
		removed++
	}

	if err := m.writeHistory(); err != nil {
		return removed, err
	}

	if removed > 0 {
		logging.WithField("removed", removed).Info("version cleanup completed")
	}
	return removed, nil
}

// Stats summarizes the stored versions
func (m *Manager) Stats() Statistics {
	m.mu.Lock()
	defer m.mu.Unlock()

	stats := Statistics{Total: len(m.history)}
	if len(m.history) > 0 {
		oldest := m.history[0].Timestamp
		newest := m.history[len(m.history)-1].Timestamp
		stats.Oldest = &oldest
		stats.Newest = &newest
	}

	filepath.Walk(m.cfg.Dir, func(path string, info os.FileInfo, err error) error {
		if err == nil && !info.IsDir() {
			stats.DiskBytes += info.Size()
		}
		return nil
	})

	return stats
}

// StartCleanupScheduler runs Cleanup on the configured cron schedule
func (m *Manager) StartCleanupScheduler() error {
	if m.cfg.CleanupSchedule == "" {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(m.cfg.CleanupSchedule, func() {
		if _, err := m.Cleanup(context.Background(), 0); err != nil {
			logging.WithError(err).Error("scheduled version cleanup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", m.cfg.CleanupSchedule, err)
	}

	c.Start()
	m.cron = c
	return nil
}

// StopCleanupScheduler stops the cron scheduler
func (m *Manager) StopCleanupScheduler() {
	if m.cron != nil {
		m.cron.Stop()
	}
}

// newID generates a timestamped version ID. Callers hold m.mu.
func (m *Manager) newID() string {
	id := "v_" + time.Now().Format("20060102_150405")
	for _, meta := range m.history {
		if meta.ID == id {
			// 同一秒内的多个版本追加短后缀
			return id + "_" + strings.Split(uuid.New().String(), "-")[0]
		}
	}
	return id
}

func (m *Manager) versionPath(id string) string {
	return filepath.Join(m.cfg.Dir, id+".json")
}

func (m *Manager) writeVersion(v *Version) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal version %s: %w", v.ID, err)
	}
	if err := os.WriteFile(m.versionPath(v.ID), data, 0644); err != nil {
		return fmt.Errorf("failed to write version %s: %w", v.ID, err)
	}
	return nil
}

// loadFromStore recovers a version from the database store
func (m *Manager) loadFromStore(id string) (*Version, bool) {
	loader, ok := m.store.(storeLoader)
	if !ok {
		return nil, false
	}

	v, err := loader.LoadVersion(context.Background(), id)
	if err != nil {
		return nil, false
	}

	// 恢复的版本重新落盘，后续读取不再依赖数据库
	if err := m.writeVersion(v); err != nil {
		logging.WithError(err).WithField("version", id).
			Warn("failed to rewrite recovered version file")
	}
	logging.WithField("version", id).Info("version recovered from database")
	return v, true
}

// recoverHistory rebuilds the history index from the database store when
// the local index file is missing
func (m *Manager) recoverHistory() error {
	lister, ok := m.store.(storeLister)
	if !ok {
		return nil
	}

	metas, err := lister.ListVersions(context.Background(), 0)
	if err != nil {
		logging.WithError(err).Warn("failed to recover version history from database")
		return nil
	}
	if len(metas) == 0 {
		return nil
	}

	sort.Slice(metas, func(i, j int) bool {
		return metas[i].Timestamp.Before(metas[j].Timestamp)
	})
	m.history = metas

	logging.WithField("versions", len(metas)).Info("version history recovered from database")
	return m.writeHistory()
}

func (m *Manager) loadHistory() error {
	path := filepath.Join(m.cfg.Dir, historyFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return m.recoverHistory()
		}
		return fmt.Errorf("failed to read version history: %w", err)
	}

	if err := json.Unmarshal(data, &m.history); err != nil {
		return fmt.Errorf("failed to parse version history: %w", err)
	}

	sort.Slice(m.history, func(i, j int) bool {
		return m.history[i].Timestamp.Before(m.history[j].Timestamp)
	})
	return nil
}

func (m *Manager) writeHistory() error {
	data, err := json.MarshalIndent(m.history, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal version history: %w", err)
	}

	path := filepath.Join(m.cfg.Dir, historyFile)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write version history: %w", err)
	}
	return nil
}
