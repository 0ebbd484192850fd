package catalog

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/solatis/varextract/internal/namespace"
	"github.com/solatis/varextract/internal/types"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize mappings watcher")

// reloadDebounce coalesces the bursts of events editors emit on save.
const reloadDebounce = 100 * time.Millisecond

// Swapper receives a freshly loaded collection. *rules.Engine satisfies it.
type Swapper interface {
	Swap(c *types.Collection) error
}

// ReloadEvent reports the outcome of one reload attempt.
type ReloadEvent struct {
	Version string
	Err     error
	At      time.Time
}

// Watcher reloads a mappings file whenever it changes and hands the result to
// a Swapper. A document that fails to load or compile is logged and ignored;
// the previous collection stays active.
type Watcher struct {
	path     string
	target   Swapper
	compiler *namespace.Compiler
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
	events   chan ReloadEvent
	stop     chan struct{}
	stopOnce sync.Once
}

// NewWatcher creates a watcher for path. Call Start to begin watching.
func NewWatcher(path string, target Swapper, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving mappings path: %w", err)
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		path:     abs,
		target:   target,
		compiler: namespace.NewCompiler(logger),
		logger:   logger,
		watcher:  fw,
		events:   make(chan ReloadEvent, 8),
		stop:     make(chan struct{}),
	}, nil
}

// Start watches the file's directory, so atomic rename-on-save is seen.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("watching %s: %w", filepath.Dir(w.path), err)
	}
	go w.run(ctx)
	w.logger.Info("watching mappings file", zap.String("path", w.path))
	return nil
}

// Stop ends watching and releases the underlying watcher. Safe to call
// concurrently and more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stop)
		_ = w.watcher.Close()
	})
}

// Events delivers reload outcomes. Sends are non-blocking; slow readers miss events.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

func (w *Watcher) run(ctx context.Context) {
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			w.Stop()
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(reloadDebounce)
			} else {
				timer.Reset(reloadDebounce)
			}
			fire = timer.C
		case <-fire:
			fire = nil
			w.reload()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("mappings watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload() {
	ev := ReloadEvent{At: time.Now()}

	c, err := LoadFile(w.path, w.compiler)
	if err == nil {
		err = w.target.Swap(c)
	}
	if err != nil {
		ev.Err = err
		w.logger.Error("mappings reload failed, keeping previous collection",
			zap.String("path", w.path), zap.Error(err))
	} else {
		ev.Version = c.Version()
		w.logger.Info("mappings reloaded",
			zap.String("path", w.path),
			zap.String("version", c.Version()),
			zap.Int("variables", c.Len()))
	}

	select {
	case w.events <- ev:
	default:
	}
}
