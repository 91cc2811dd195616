package config

import (
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Source is a configuration loader consumers can follow for updates.
type Source interface {
	Get() map[string]any
	IsLoaded() bool
	OnUpdate(fn func())
}

// notifier keeps update listeners
type notifier struct {
	mu        sync.Mutex
	listeners []func()
}

func (n *notifier) OnUpdate(fn func()) {
	n.mu.Lock()
	n.listeners = append(n.listeners, fn)
	n.mu.Unlock()
}

func (n *notifier) notify() {
	n.mu.Lock()
	listeners := append([]func(){}, n.listeners...)
	n.mu.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// FileLoader reads settings from a config file (JSON, YAML or TOML) and can
// watch it for changes.
type FileLoader struct {
	notifier

	v      *viper.Viper
	logger *logrus.Logger

	mu       sync.RWMutex
	settings map[string]any
	loaded   bool
}

// NewFileLoader creates a loader for path. Nothing is read until Load.
func NewFileLoader(path string, logger *logrus.Logger) *FileLoader {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	v := viper.New()
	v.SetConfigFile(path)
	return &FileLoader{v: v, logger: logger}
}

// Load reads the file and notifies listeners.
func (l *FileLoader) Load() error {
	if err := l.v.ReadInConfig(); err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	l.mu.Lock()
	l.settings = l.v.AllSettings()
	l.loaded = true
	l.mu.Unlock()

	l.logger.WithFields(logrus.Fields{
		"file":     l.v.ConfigFileUsed(),
		"sections": len(l.settings),
	}).Info("Configuration loaded")

	l.notify()
	return nil
}

// Watch reloads the file whenever it changes on disk.
func (l *FileLoader) Watch() {
	l.v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		l.logger.WithFields(logrus.Fields{
			"file": e.Name,
			"op":   e.Op.String(),
		}).Info("Configuration file changed")

		if err := l.Load(); err != nil {
			l.logger.WithError(err).Error("Failed to reload configuration")
		}
	})
	l.v.WatchConfig()
}

// Get returns the loaded settings. Callers must not modify the map.
func (l *FileLoader) Get() map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings
}

// IsLoaded reports whether the file has been read
func (l *FileLoader) IsLoaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}

// StaticLoader serves in-memory settings.
type StaticLoader struct {
	notifier

	mu       sync.RWMutex
	settings map[string]any
	loaded   bool
}

// NewStaticLoader creates a loader. A nil settings map leaves it unloaded.
func NewStaticLoader(settings map[string]any) *StaticLoader {
	return &StaticLoader{settings: settings, loaded: settings != nil}
}

// Update replaces the settings and notifies listeners.
func (l *StaticLoader) Update(settings map[string]any) {
	l.mu.Lock()
	l.settings = settings
	l.loaded = true
	l.mu.Unlock()

	l.notify()
}

// Get returns the current settings
func (l *StaticLoader) Get() map[string]any {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.settings
}

// IsLoaded reports whether settings are present
func (l *StaticLoader) IsLoaded() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.loaded
}
