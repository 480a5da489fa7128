package config

import (
	"context"
	"path/filepath"
	"reflect"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/vyrodovalexey/tokengate/internal/observability"
)

// ReloadFunc receives each configuration that loaded and validated after a
// file change.
type ReloadFunc func(*Config)

// ErrorFunc is called when a reload fails.
type ErrorFunc func(error)

// Watcher watches the configuration file and reloads it on change.
//
// Only the logging section takes effect at runtime. Changes to any other
// section are logged as requiring a restart.
type Watcher struct {
	path          string
	fsw           *fsnotify.Watcher
	onReload      ReloadFunc
	onError       ErrorFunc
	logger        observability.Logger
	debounceDelay time.Duration
	current       *Config
	mu            sync.RWMutex
	stopCh        chan struct{}
	stoppedCh     chan struct{}
	running       bool
}

// WatcherOption is a functional option for configuring the watcher.
type WatcherOption func(*Watcher)

// WithDebounceDelay sets the debounce delay for file changes.
func WithDebounceDelay(delay time.Duration) WatcherOption {
	return func(w *Watcher) {
		w.debounceDelay = delay
	}
}

// WithLogger sets the logger for the watcher.
func WithLogger(logger observability.Logger) WatcherOption {
	return func(w *Watcher) {
		w.logger = logger
	}
}

// WithErrorFunc sets the reload error callback.
func WithErrorFunc(fn ErrorFunc) WatcherOption {
	return func(w *Watcher) {
		w.onError = fn
	}
}

// NewWatcher creates a watcher for the file at path.
func NewWatcher(path string, onReload ReloadFunc, opts ...WatcherOption) (*Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	w := &Watcher{
		path:          absPath,
		fsw:           fsw,
		onReload:      onReload,
		debounceDelay: 100 * time.Millisecond,
		logger:        observability.NopLogger(),
		stopCh:        make(chan struct{}),
		stoppedCh:     make(chan struct{}),
	}

	for _, opt := range opts {
		opt(w)
	}

	return w, nil
}

// Start loads the file once and begins watching its directory. Editors
// often replace files by rename, so the directory is watched rather than
// the file itself.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.mu.Unlock()

	cfg, err := w.load()
	if err != nil {
		return err
	}

	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}

	w.mu.Lock()
	w.current = cfg
	w.running = true
	w.mu.Unlock()

	w.logger.Info("watching configuration file",
		observability.String("path", w.path),
	)

	go w.watch(ctx)

	return nil
}

// Stop stops watching and releases the fsnotify watcher.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return w.fsw.Close()
	}
	w.running = false
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh

	return w.fsw.Close()
}

// Current returns the last successfully loaded configuration.
func (w *Watcher) Current() *Config {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

func (w *Watcher) load() (*Config, error) {
	cfg, err := LoadConfig(w.path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (w *Watcher) watch(ctx context.Context) {
	defer close(w.stoppedCh)

	var debounce *time.Timer
	var debounceCh <-chan time.Time
	defer func() {
		if debounce != nil {
			debounce.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path || event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.NewTimer(w.debounceDelay)
			debounceCh = debounce.C

		case <-debounceCh:
			debounceCh = nil
			w.reload()

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.fail("config watcher error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := w.load()
	if err != nil {
		w.fail("configuration reload failed", err)
		return
	}

	w.mu.Lock()
	prev := w.current
	w.current = cfg
	w.mu.Unlock()

	if restart := RestartRequired(prev, cfg); len(restart) > 0 {
		w.logger.Warn("configuration sections changed that only apply after restart",
			observability.Strings("sections", restart),
		)
	}

	w.logger.Info("configuration reloaded",
		observability.String("path", w.path),
		observability.String("log_level", cfg.Logging.Level),
	)

	if w.onReload != nil {
		w.onReload(cfg)
	}
}

func (w *Watcher) fail(msg string, err error) {
	w.logger.Error(msg, observability.Error(err))
	if w.onError != nil {
		w.onError(err)
	}
}

// RestartRequired lists the sections that differ between prev and next and
// cannot be applied to a running gateway.
func RestartRequired(prev, next *Config) []string {
	if prev == nil || next == nil {
		return nil
	}

	var sections []string
	check := func(name string, a, b interface{}) {
		if !reflect.DeepEqual(a, b) {
			sections = append(sections, name)
		}
	}
	check("listen", prev.Listen, next.Listen)
	check("auth", prev.Auth, next.Auth)
	check("rateLimit", prev.RateLimit, next.RateLimit)
	check("backends", prev.Backends, next.Backends)
	check("health", prev.Health, next.Health)
	check("forward", prev.Forward, next.Forward)
	check("tracing", prev.Tracing, next.Tracing)
	return sections
}
