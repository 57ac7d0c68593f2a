package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DynamicConfig represents runtime-changeable limits
type DynamicConfig struct {
	Limits Limits `yaml:"limits"`
}

// Limits holds query and traversal bounds
type Limits struct {
	SearchMaxRows     int `yaml:"searchMaxRows"`
	SnippetContextLen int `yaml:"snippetContextLen"`
	TraversalMaxSteps int `yaml:"traversalMaxSteps"`
}

// DefaultDynamicConfig returns the limits used when no config file is given
func DefaultDynamicConfig() *DynamicConfig {
	return &DynamicConfig{
		Limits: Limits{
			SearchMaxRows:     500,
			SnippetContextLen: 100,
			TraversalMaxSteps: 10000,
		},
	}
}

// Watcher watches a YAML limits file for changes and notifies
// registered callbacks with the reloaded configuration.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	current  *DynamicConfig
	mu       sync.RWMutex
	onChange []func(*DynamicConfig)
	logger   *zap.Logger
	stopCh   chan struct{}
}

// NewWatcher loads the initial configuration and sets up the file watcher
func NewWatcher(configPath string, logger *zap.Logger) (*Watcher, error) {
	cfg, err := loadDynamicFromFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	if err := watcher.Add(configPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch config file: %w", err)
	}

	// Also watch the directory for atomic saves (rename operations)
	if err := watcher.Add(filepath.Dir(configPath)); err != nil {
		logger.Warn("Failed to watch config directory", zap.Error(err))
	}

	return &Watcher{
		path:     configPath,
		watcher:  watcher,
		current:  cfg,
		onChange: make([]func(*DynamicConfig), 0),
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Current returns the most recently loaded configuration
func (w *Watcher) Current() *DynamicConfig {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.current
}

// OnChange registers a callback invoked after each successful reload
func (w *Watcher) OnChange(fn func(*DynamicConfig)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.onChange = append(w.onChange, fn)
}

// Start begins watching for configuration changes
func (w *Watcher) Start() {
	go w.watchLoop()
	w.logger.Info("Configuration watcher started", zap.String("path", w.path))
}

// Stop stops watching for configuration changes
func (w *Watcher) Stop() {
	close(w.stopCh)
	w.watcher.Close()
	w.logger.Info("Configuration watcher stopped")
}

// watchLoop is the main loop that watches for file changes
func (w *Watcher) watchLoop() {
	// Debounce timer to avoid multiple reloads on editor write bursts
	var debounceTimer *time.Timer
	debounceDuration := 100 * time.Millisecond

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}

			if filepath.Base(event.Name) != filepath.Base(w.path) {
				continue
			}

			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					w.handleChange()
				})
			}

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Error("File watcher error", zap.Error(err))
		}
	}
}

// handleChange reloads the file and fans out to callbacks
func (w *Watcher) handleChange() {
	newCfg, err := loadDynamicFromFile(w.path)
	if err != nil {
		w.logger.Error("Failed to reload configuration", zap.Error(err))
		return
	}

	w.mu.Lock()
	w.current = newCfg
	callbacks := make([]func(*DynamicConfig), len(w.onChange))
	copy(callbacks, w.onChange)
	w.mu.Unlock()

	w.logger.Info("Configuration reloaded",
		zap.Int("searchMaxRows", newCfg.Limits.SearchMaxRows),
		zap.Int("traversalMaxSteps", newCfg.Limits.TraversalMaxSteps),
	)

	for _, fn := range callbacks {
		fn(newCfg)
	}
}

// loadDynamicFromFile parses a YAML limits file, filling in defaults
// for omitted fields
func loadDynamicFromFile(path string) (*DynamicConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultDynamicConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}

	if cfg.Limits.SearchMaxRows < 1 {
		cfg.Limits.SearchMaxRows = DefaultDynamicConfig().Limits.SearchMaxRows
	}
	if cfg.Limits.SnippetContextLen < 1 {
		cfg.Limits.SnippetContextLen = DefaultDynamicConfig().Limits.SnippetContextLen
	}
	if cfg.Limits.TraversalMaxSteps < 1 {
		cfg.Limits.TraversalMaxSteps = DefaultDynamicConfig().Limits.TraversalMaxSteps
	}

	return cfg, nil
}
