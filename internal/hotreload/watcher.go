package hotreload

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"qconf/internal/logging"
)

// EventType describes the kind of file change observed
type EventType string

const (
	EventCreated  EventType = "created"
	EventModified EventType = "modified"
	EventDeleted  EventType = "deleted"
)

// FileEvent represents a detected configuration file change
type FileEvent struct {
	Path      string    `json:"path"`
	Type      EventType `json:"type"`
	Checksum  string    `json:"checksum,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Watcher watches configuration files for changes. It combines fsnotify
// events with a periodic checksum sweep so changes are caught even when the
// underlying filesystem does not deliver inotify events (network mounts,
// atomic-rename editors).
type Watcher struct {
	watchDirs  []string
	watchFiles []string
	patterns   []string
	interval   time.Duration

	fsWatcher *fsnotify.Watcher
	events    chan FileEvent
	checksums map[string]string
	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewWatcher creates a watcher for the given directories and files
func NewWatcher(watchDirs, watchFiles, patterns []string, interval time.Duration) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	if len(patterns) == 0 {
		patterns = []string{"*.yaml", "*.yml", "*.json"}
	}
	if interval <= 0 {
		interval = time.Second
	}

	w := &Watcher{
		watchDirs:  watchDirs,
		watchFiles: watchFiles,
		patterns:   patterns,
		interval:   interval,
		fsWatcher:  fsWatcher,
		events:     make(chan FileEvent, 64),
		checksums:  make(map[string]string),
		done:       make(chan struct{}),
	}

	for _, dir := range watchDirs {
		if err := fsWatcher.Add(dir); err != nil {
			fsWatcher.Close()
			return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
		}
	}
	for _, file := range watchFiles {
		if err := fsWatcher.Add(file); err != nil {
			fsWatcher.Close()
			return nil, fmt.Errorf("failed to watch file %s: %w", file, err)
		}
	}

	return w, nil
}

// Events returns the channel of detected file changes
func (w *Watcher) Events() <-chan FileEvent {
	return w.events
}

// Start begins watching. The initial scan records checksums without
// emitting events.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("watcher already running")
	}
	w.running = true
	ctx, w.cancel = context.WithCancel(ctx)
	w.mu.Unlock()

	w.scan(false)

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and closes the event channel
func (w *Watcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel := w.cancel
	w.mu.Unlock()

	cancel()
	<-w.done
	w.fsWatcher.Close()
	close(w.events)
}

// FileCount returns the number of files currently tracked
func (w *Watcher) FileCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.checksums)
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.done)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) ||
				event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename) {
				w.checkFile(event.Name)
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			logging.WithError(err).Warn("file watcher error")

		case <-ticker.C:
			// 定期校验和扫描，兜底捕获fsnotify漏掉的变更
			w.scan(true)
		}
	}
}

// checkFile recomputes the checksum of a single file and emits an event if
// it differs from the recorded state
func (w *Watcher) checkFile(path string) {
	if !w.matches(path) {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	previous, known := w.checksums[path]

	sum, err := fileChecksum(path)
	if err != nil {
		if os.IsNotExist(err) {
			if known {
				delete(w.checksums, path)
				w.emit(FileEvent{Path: path, Type: EventDeleted, Timestamp: time.Now()})
			}
			return
		}
		logging.WithError(err).WithField("file", path).Warn("failed to checksum file")
		return
	}

	if !known {
		w.checksums[path] = sum
		w.emit(FileEvent{Path: path, Type: EventCreated, Checksum: sum, Timestamp: time.Now()})
		return
	}
	if sum != previous {
		w.checksums[path] = sum
		w.emit(FileEvent{Path: path, Type: EventModified, Checksum: sum, Timestamp: time.Now()})
	}
}

// scan walks all watch targets. When emit is true, differences against the
// recorded checksums produce events; otherwise checksums are just recorded.
func (w *Watcher) scan(emit bool) {
	current := make(map[string]string)

	record := func(path string) {
		if !w.matches(path) {
			return
		}
		sum, err := fileChecksum(path)
		if err != nil {
			return
		}
		current[path] = sum
	}

	for _, dir := range w.watchDirs {
		filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			record(path)
			return nil
		})
	}
	for _, file := range w.watchFiles {
		record(file)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if emit {
		now := time.Now()
		for path, sum := range current {
			previous, known := w.checksums[path]
			if !known {
				w.emit(FileEvent{Path: path, Type: EventCreated, Checksum: sum, Timestamp: now})
			} else if sum != previous {
				w.emit(FileEvent{Path: path, Type: EventModified, Checksum: sum, Timestamp: now})
			}
		}
		for path := range w.checksums {
			if _, exists := current[path]; !exists {
				w.emit(FileEvent{Path: path, Type: EventDeleted, Timestamp: now})
			}
		}
	}

	w.checksums = current
}

// emit sends an event without blocking the watcher loop. Callers hold w.mu.
func (w *Watcher) emit(event FileEvent) {
	select {
	case w.events <- event:
	default:
		logging.WithField("file", event.Path).Warn("file event channel full, dropping event")
	}
}

func (w *Watcher) matches(path string) bool {
	base := filepath.Base(path)
	for _, pattern := range w.patterns {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
	}
	return false
}

func fileChecksum(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}
