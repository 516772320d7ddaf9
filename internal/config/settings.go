package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/inboxdock/inboxdock/internal/models"
)

// ErrUnknownKey is returned for key paths that do not name a setting.
var ErrUnknownKey = errors.New("unknown settings key")

// LoadSettings loads the global settings from ~/.inboxdock/settings.yaml.
// If the file doesn't exist, returns default settings.
func LoadSettings() (*models.Settings, error) {
	path, err := GlobalSettingsFile()
	if err != nil {
		return nil, err
	}
	return LoadYAMLOrDefault(path, models.NewSettings)
}

// SaveSettings saves the global settings to ~/.inboxdock/settings.yaml.
func SaveSettings(settings *models.Settings) error {
	path, err := GlobalSettingsFile()
	if err != nil {
		return err
	}
	return SaveYAML(path, settings)
}

// Store is the process-wide settings holder. Values are addressed by dotted
// key paths matching the YAML layout, e.g. "window.width".
type Store struct {
	mu        sync.RWMutex
	path      string
	settings  *models.Settings
	listeners map[int]func(models.Settings)
	nextID    int
	version   uint64

	// notifyMu serializes listener delivery. delivered is the newest
	// version handed to listeners; older snapshots are dropped.
	notifyMu  sync.Mutex
	delivered uint64
}

// OpenStore loads settings from path, falling back to defaults.
func OpenStore(path string) (*Store, error) {
	settings, err := LoadYAMLOrDefault(path, models.NewSettings)
	if err != nil {
		return nil, err
	}
	return NewStore(path, settings), nil
}

// NewStore wraps settings. An empty path keeps the store in memory.
func NewStore(path string, settings *models.Settings) *Store {
	if settings == nil {
		settings = models.NewSettings()
	}
	return &Store{
		path:      path,
		settings:  settings,
		listeners: make(map[int]func(models.Settings)),
	}
}

// Path returns the backing file, or "" for in-memory stores.
func (s *Store) Path() string {
	return s.path
}

// Settings returns a copy of the current settings.
func (s *Store) Settings() models.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return *s.settings
}

// NotificationsEnabled reports whether unread notifications are shown.
func (s *Store) NotificationsEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Notifications.Enabled
}

// AutoDownload reports whether available updates download without a prompt.
func (s *Store) AutoDownload() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.Updates.AutoDownload
}

// StartMinimized reports whether the window stays hidden at startup.
func (s *Store) StartMinimized() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings.StartMinimized
}

// SetWindowBounds persists the window geometry.
func (s *Store) SetWindowBounds(r models.Rect) error {
	return s.Update(func(settings *models.Settings) {
		settings.Window = r
	})
}

// Update applies fn to the settings and persists the result.
func (s *Store) Update(fn func(*models.Settings)) error {
	s.mu.Lock()
	next := *s.settings
	fn(&next)
	if err := s.save(&next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.settings = &next
	version := s.bump()
	s.mu.Unlock()

	s.notify(version, next)
	return nil
}

// Get returns the value at key. Sections are returned as maps.
func (s *Store) Get(key string) (any, error) {
	s.mu.RLock()
	tree, err := toTree(s.settings)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	node, ok := lookup(tree, splitKey(key))
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	return node, nil
}

// GetString returns the value at key formatted as YAML.
func (s *Store) GetString(key string) (string, error) {
	v, err := s.Get(key)
	if err != nil {
		return "", err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

// Set parses raw as a YAML scalar, stores it at key and persists the file.
func (s *Store) Set(key, raw string) error {
	var value any
	if err := yaml.Unmarshal([]byte(raw), &value); err != nil {
		return fmt.Errorf("parse value for %s: %w", key, err)
	}
	if value == nil {
		value = ""
	}
	return s.SetValue(key, value)
}

// SetValue stores value at key and persists the file.
func (s *Store) SetValue(key string, value any) error {
	parts := splitKey(key)
	if len(parts) == 0 {
		return fmt.Errorf("%w: %q", ErrUnknownKey, key)
	}

	s.mu.Lock()
	tree, err := toTree(s.settings)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	parent, ok := lookup(tree, parts[:len(parts)-1])
	section, isMap := parent.(map[string]any)
	leaf := parts[len(parts)-1]
	if !ok || !isMap {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if _, exists := section[leaf]; !exists && !optionalKey(key) {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	if _, isSection := section[leaf].(map[string]any); isSection {
		s.mu.Unlock()
		return fmt.Errorf("%s is a section, set one of its keys", key)
	}
	section[leaf] = value

	next, err := fromTree(tree)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("invalid value for %s: %w", key, err)
	}
	if err := s.save(next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.settings = next
	snapshot := *next
	version := s.bump()
	s.mu.Unlock()

	s.notify(version, snapshot)
	return nil
}

// Keys lists every leaf key path in sorted order.
func (s *Store) Keys() ([]string, error) {
	s.mu.RLock()
	tree, err := toTree(s.settings)
	s.mu.RUnlock()
	if err != nil {
		return nil, err
	}

	var keys []string
	flatten("", tree, &keys)
	sort.Strings(keys)
	return keys, nil
}

// Reload re-reads the backing file. In-memory stores are left untouched.
func (s *Store) Reload() error {
	if s.path == "" {
		return nil
	}
	settings, err := LoadYAMLOrDefault(s.path, models.NewSettings)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.settings = settings
	snapshot := *settings
	version := s.bump()
	s.mu.Unlock()

	s.notify(version, snapshot)
	return nil
}

// OnChange registers fn to run after every successful change. Listeners run
// one at a time, always see the newest settings last, and must not modify
// the store. The returned function removes the listener.
func (s *Store) OnChange(fn func(models.Settings)) func() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// bump must be called with mu held.
func (s *Store) bump() uint64 {
	s.version++
	return s.version
}

func (s *Store) notify(version uint64, settings models.Settings) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()
	if version <= s.delivered {
		return
	}
	s.delivered = version

	s.mu.RLock()
	ids := make([]int, 0, len(s.listeners))
	for id := range s.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	fns := make([]func(models.Settings), 0, len(ids))
	for _, id := range ids {
		fns = append(fns, s.listeners[id])
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn(settings)
	}
}

func (s *Store) save(settings *models.Settings) error {
	if s.path == "" {
		return nil
	}
	return SaveYAML(s.path, settings)
}

// optionalKey covers omitempty fields that are absent until first written.
func optionalKey(key string) bool {
	return key == "updates.last_checked"
}

func splitKey(key string) []string {
	key = strings.Trim(strings.TrimSpace(key), ".")
	if key == "" {
		return nil
	}
	return strings.Split(key, ".")
}

func toTree(settings *models.Settings) (map[string]any, error) {
	data, err := yaml.Marshal(settings)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settings: %w", err)
	}
	tree := make(map[string]any)
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return nil, fmt.Errorf("failed to unmarshal settings: %w", err)
	}
	return tree, nil
}

func fromTree(tree map[string]any) (*models.Settings, error) {
	data, err := yaml.Marshal(tree)
	if err != nil {
		return nil, err
	}
	var settings models.Settings
	if err := decodeStrict(data, &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func lookup(tree map[string]any, parts []string) (any, bool) {
	var node any = tree
	for _, part := range parts {
		section, ok := node.(map[string]any)
		if !ok {
			return nil, false
		}
		node, ok = section[part]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

func flatten(prefix string, node map[string]any, keys *[]string) {
	for k, v := range node {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if section, ok := v.(map[string]any); ok {
			flatten(key, section, keys)
			continue
		}
		*keys = append(*keys, key)
	}
}
