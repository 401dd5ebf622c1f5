package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/sho7650/social-bridge/internal/logger"
)

const defaultDebounce = 100 * time.Millisecond

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// ConfigManager handles configuration loading, validation, and hot reload
type ConfigManager struct {
	currentConfig *Config
	mutex         sync.RWMutex
	watchers      map[string]chan ConfigChangeEvent
	debounce      time.Duration
	log           *slog.Logger
}

// NewConfigManager creates a new configuration manager
func NewConfigManager() *ConfigManager {
	return &ConfigManager{
		watchers: make(map[string]chan ConfigChangeEvent),
		debounce: defaultDebounce,
		log:      logger.Or(nil),
	}
}

// SetLogger replaces the logger used by the watcher
func (cm *ConfigManager) SetLogger(l *slog.Logger) {
	cm.log = logger.Or(l)
}

// LoadFromFile loads configuration from a YAML file
func (cm *ConfigManager) LoadFromFile(ctx context.Context, filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Substitute environment variables
	content := cm.substituteEnvVars(string(data))

	config := Default()
	if err := yaml.Unmarshal([]byte(content), &config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cm.ValidateConfig(ctx, &config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cm.mutex.Lock()
	cm.currentConfig = &config
	cm.mutex.Unlock()

	return &config, nil
}

// ValidateConfig validates the entire configuration
func (cm *ConfigManager) ValidateConfig(ctx context.Context, config *Config) error {
	if err := config.Global.Validate(); err != nil {
		return fmt.Errorf("global config validation failed: %w", err)
	}

	for name, platform := range config.Platforms {
		if err := platform.Validate(); err != nil {
			return fmt.Errorf("platform '%s' validation failed: %w", name, err)
		}
	}

	seen := make(map[int64]bool, len(config.ContentItems))
	for _, item := range config.ContentItems {
		if item.ID <= 0 {
			return fmt.Errorf("content item id must be positive, got: %d", item.ID)
		}
		if seen[item.ID] {
			return fmt.Errorf("duplicate content item id: %d", item.ID)
		}
		seen[item.ID] = true
	}

	return nil
}

// GetCurrentConfig returns the currently loaded configuration
func (cm *ConfigManager) GetCurrentConfig() *Config {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()
	return cm.currentConfig
}

// WatchForChanges reloads filePath whenever it changes and reports each
// attempt on changeChan. A failed reload keeps the previous configuration.
// Watching stops when ctx is cancelled.
func (cm *ConfigManager) WatchForChanges(ctx context.Context, filePath string, changeChan chan ConfigChangeEvent) error {
	absPath, err := filepath.Abs(filePath)
	if err != nil {
		return fmt.Errorf("failed to resolve config path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	// watch the directory: editors replace files by rename, which drops a file watch
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		_ = watcher.Close()
		return fmt.Errorf("failed to add watch path %s: %w", filepath.Dir(absPath), err)
	}

	cm.mutex.Lock()
	cm.watchers[filePath] = changeChan
	cm.mutex.Unlock()

	go cm.watchLoop(ctx, watcher, filePath, absPath)
	return nil
}

// watchLoop is the main event processing loop
func (cm *ConfigManager) watchLoop(ctx context.Context, watcher *fsnotify.Watcher, filePath, absPath string) {
	defer func() { _ = watcher.Close() }()

	var (
		timer   *time.Timer
		trigger = make(chan struct{}, 1)
	)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != absPath {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			// debounce bursts of writes into one reload
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(cm.debounce, func() {
				select {
				case trigger <- struct{}{}:
				default:
				}
			})
		case <-trigger:
			cm.handleConfigChange(ctx, filePath)
		case err, ok := <-watcher.Errors:
			if !ok {
				return
			}
			cm.log.Warn("config_watch_error", "path", filePath, "error", err)
		}
	}
}

// handleConfigChange processes configuration file changes
func (cm *ConfigManager) handleConfigChange(ctx context.Context, filePath string) {
	cm.mutex.RLock()
	changeChan, exists := cm.watchers[filePath]
	cm.mutex.RUnlock()

	if !exists {
		return
	}

	event := ConfigChangeEvent{Type: EventConfigUpdated, Path: filePath}
	if _, err := cm.LoadFromFile(ctx, filePath); err != nil {
		event = ConfigChangeEvent{Type: EventConfigError, Path: filePath, Error: err.Error()}
		cm.log.Error("config_reload_failed", "path", filePath, "error", err)
	} else {
		cm.log.Info("config_reloaded", "path", filePath)
	}

	select {
	case changeChan <- event:
	default:
	}
}

// substituteEnvVars replaces ${VAR} patterns with environment variables
func (cm *ConfigManager) substituteEnvVars(content string) string {
	return envVarPattern.ReplaceAllStringFunc(content, func(match string) string {
		varName := match[2 : len(match)-1]

		if value := os.Getenv(varName); value != "" {
			return value
		}

		// Return original if not found
		return match
	})
}
