// 配置目录变更监听器实现。
//
// 基于 fsnotify 文件系统事件，防抖后触发 YAMLProvider 重载与回调。
package config

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// --- 文件监听器类型定义 ---

// Watcher reloads a YAMLProvider whenever its YAML files change.
type Watcher struct {
	mu sync.Mutex

	provider      *YAMLProvider
	debounceDelay time.Duration
	callbacks     []func(*YAMLProvider)

	fsw     *fsnotify.Watcher
	running bool
	done    chan struct{}

	logger *zap.Logger
}

// WatcherOption configures the Watcher
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for file events
func WithDebounceDelay(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = d
	}
}

// WithWatcherLogger sets the logger for the watcher
func WithWatcherLogger(logger *zap.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// --- 文件监听器实现 ---

// NewWatcher creates a watcher for provider's config directory.
func NewWatcher(provider *YAMLProvider, opts ...WatcherOption) *Watcher {
	w := &Watcher{
		provider:      provider,
		debounceDelay: 200 * time.Millisecond,
		logger:        zap.NewNop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.With(zap.String("component", "config_watcher"))
	return w
}

// OnReload registers a callback invoked after every successful reload.
func (w *Watcher) OnReload(cb func(*YAMLProvider)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, cb)
}

// Start begins watching until ctx is cancelled or Stop is called.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.running {
		return fmt.Errorf("watcher already running")
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create fsnotify watcher: %w", err)
	}
	if err := fsw.Add(w.provider.Dir()); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("watch %s: %w", w.provider.Dir(), err)
	}

	w.fsw = fsw
	w.running = true
	w.done = make(chan struct{})
	go w.loop(ctx, fsw, w.done)

	w.logger.Info("config watcher started", zap.String("dir", w.provider.Dir()))
	return nil
}

// Stop stops watching.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	fsw, done := w.fsw, w.done
	w.mu.Unlock()

	err := fsw.Close()
	<-done
	return err
}

// IsRunning reports whether the watcher is active.
func (w *Watcher) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher, done chan struct{}) {
	defer close(done)

	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			w.mu.Lock()
			if w.running && w.fsw == fsw {
				w.running = false
				_ = fsw.Close()
			}
			w.mu.Unlock()
			return

		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounceDelay)
			} else {
				timer.Reset(w.debounceDelay)
			}
			timerC = timer.C

		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", zap.Error(err))

		case <-timerC:
			timerC = nil
			w.reload()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	ext := strings.ToLower(filepath.Ext(ev.Name))
	return ext == ".yaml" || ext == ".yml"
}

func (w *Watcher) reload() {
	if err := w.provider.Reload(); err != nil {
		w.logger.Error("config reload failed", zap.Error(err))
		return
	}
	w.logger.Info("config reloaded", zap.Any("files", w.provider.Info()["loaded_files"]))

	w.mu.Lock()
	callbacks := make([]func(*YAMLProvider), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.Unlock()

	for _, cb := range callbacks {
		cb(w.provider)
	}
}
