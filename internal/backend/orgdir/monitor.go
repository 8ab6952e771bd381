package orgdir

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// ErrTerminated is returned by Start after Terminate.
var ErrTerminated = errors.New("monitor terminated")

// Monitor watches a directory of list files and signals when one is
// created, modified, removed or renamed. Signals coalesce: any number of
// events between two receives produce a single signal.
type Monitor struct {
	dir     string
	logger  *slog.Logger
	signals chan struct{}

	mu         sync.Mutex
	watcher    *fsnotify.Watcher
	done       chan struct{}
	wg         sync.WaitGroup
	running    bool
	terminated bool
}

// NewMonitor creates a monitor for dir. It must be started with Start.
func NewMonitor(dir string, logger *slog.Logger) *Monitor {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Monitor{
		dir:     dir,
		logger:  logger,
		signals: make(chan struct{}, 1),
	}
}

// Signals returns the channel that receives change signals. It is closed
// by Terminate.
func (m *Monitor) Signals() <-chan struct{} {
	return m.signals
}

// Start begins watching. Starting a running monitor is a no-op.
func (m *Monitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.terminated {
		return ErrTerminated
	}
	if m.running {
		return nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	if err := watcher.Add(m.dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", m.dir, err)
	}

	m.watcher = watcher
	m.done = make(chan struct{})
	m.running = true
	m.wg.Add(1)
	go m.processEvents(watcher, m.done)

	m.logger.Debug("monitor started", "dir", m.dir)
	return nil
}

// Pause stops watching. When it returns no further signal is delivered
// until the next Start; a pending signal is discarded.
func (m *Monitor) Pause() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopLocked()
}

// Terminate stops the monitor for good and closes the signal channel.
func (m *Monitor) Terminate() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.terminated {
		return nil
	}
	err := m.stopLocked()
	m.terminated = true
	close(m.signals)
	return err
}

// Running reports whether the monitor is watching.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

func (m *Monitor) stopLocked() error {
	if !m.running {
		return nil
	}
	m.running = false
	close(m.done)
	err := m.watcher.Close()
	m.wg.Wait()
	m.watcher = nil

	select {
	case <-m.signals:
	default:
	}

	m.logger.Debug("monitor paused", "dir", m.dir)
	if err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}

func (m *Monitor) processEvents(watcher *fsnotify.Watcher, done <-chan struct{}) {
	defer m.wg.Done()

	for {
		select {
		case <-done:
			return

		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if !relevant(event) {
				continue
			}
			m.logger.Debug("list file changed", "file", event.Name, "op", event.Op.String())
			select {
			case m.signals <- struct{}{}:
			default:
				// A signal is already pending.
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			m.logger.Warn("watch error", "dir", m.dir, "error", err)
		}
	}
}

func relevant(event fsnotify.Event) bool {
	name := filepath.Base(event.Name)
	if !strings.HasSuffix(name, Ext) || strings.HasPrefix(name, ".") {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) ||
		event.Has(fsnotify.Remove) || event.Has(fsnotify.Rename)
}
