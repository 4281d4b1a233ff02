package sysparam

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Parameter keys
const (
	KeyMaxProcessCacheNum = "max_process_cache_num"
)

// Defaults
const (
	DefaultMaxProcessCacheNum = 0
)

// ErrUnknownKey is returned for keys the store does not manage
var ErrUnknownKey = errors.New("unknown system parameter")

var known = map[string]any{
	KeyMaxProcessCacheNum: DefaultMaxProcessCacheNum,
}

// Store holds persisted system parameters backed by a config file. The
// viper instance is only touched with mu held.
type Store struct {
	mu      sync.RWMutex
	v       *viper.Viper      // Protected by mu
	watcher *fsnotify.Watcher // Protected by mu

	fs     afero.Fs
	path   string
	logger *zap.Logger
}

// Open reads the parameter file at path. A missing file is not an error;
// defaults apply until Set writes one.
func Open(path string) (*Store, error) {
	return OpenFs(afero.NewOsFs(), path)
}

// OpenFs is Open on a specific filesystem
func OpenFs(fs afero.Fs, path string) (*Store, error) {
	v := viper.New()
	v.SetFs(fs)
	v.SetConfigFile(path)
	if filepath.Ext(path) == "" {
		v.SetConfigType("yaml")
	}
	for key, def := range known {
		v.SetDefault(key, def)
	}

	s := &Store{v: v, fs: fs, path: path, logger: zap.NewNop()}
	if err := s.read(); err != nil {
		return nil, err
	}
	return s, nil
}

// WithLogger sets the logger used by the file watcher
func (s *Store) WithLogger(logger *zap.Logger) *Store {
	s.logger = logger
	return s
}

// Path returns the parameter file path
func (s *Store) Path() string {
	return s.path
}

// MaxProcessCacheNum returns the warm process cache capacity
func (s *Store) MaxProcessCacheNum() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.GetInt(KeyMaxProcessCacheNum)
}

// Get returns a parameter value
func (s *Store) Get(key string) (any, error) {
	if _, ok := known[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.v.Get(key), nil
}

// All returns every managed parameter
func (s *Store) All() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]any, len(known))
	for key := range known {
		out[key] = s.v.Get(key)
	}
	return out
}

// Set changes a parameter and persists the file
func (s *Store) Set(key string, value any) error {
	if _, ok := known[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.v.Set(key, value)
	if dir := filepath.Dir(s.path); dir != "" {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create parameter dir: %w", err)
		}
	}
	if err := s.v.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("failed to persist parameters: %w", err)
	}
	return nil
}

// Reload re-reads the parameter file
func (s *Store) Reload() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

// Watch reloads the parameters and calls fn whenever the file is written
// or replaced on disk. The directory is watched so editors that rename
// over the file are seen. A file that fails to parse keeps the last good
// values and fn is not called.
func (s *Store) Watch(fn func()) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create parameter watcher: %w", err)
	}
	dir := filepath.Dir(s.path)
	if err := w.Add(dir); err != nil {
		w.Close()
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	s.mu.Lock()
	prev := s.watcher
	s.watcher = w
	s.mu.Unlock()
	if prev != nil {
		prev.Close()
	}

	go s.watch(w, fn)
	return nil
}

func (s *Store) watch(w *fsnotify.Watcher, fn func()) {
	target := filepath.Clean(s.path)
	for {
		select {
		case e, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Clean(e.Name) != target || !(e.Has(fsnotify.Write) || e.Has(fsnotify.Create)) {
				continue
			}
			if err := s.Reload(); err != nil {
				s.logger.Warn("parameter file reload failed", zap.String("path", s.path), zap.Error(err))
				continue
			}
			fn()
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.logger.Warn("parameter watcher error", zap.Error(err))
		}
	}
}

// Close stops the file watcher, if any
func (s *Store) Close() error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	s.mu.Unlock()

	if w == nil {
		return nil
	}
	return w.Close()
}

func (s *Store) read() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readLocked()
}

func (s *Store) readLocked() error {
	if err := s.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to read parameters %s: %w", s.path, err)
	}
	return nil
}
