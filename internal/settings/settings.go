// Package settings persists small key/value device settings (currently the
// advertised hostname) in a dotenv-formatted file.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"regexp"
	"sync"

	"github.com/google/renameio/v2"
	"github.com/joho/godotenv"
)

// DefaultHostname is reported until a hostname has been stored.
const DefaultHostname = "temcontrol"

// KeyHostname is the settings key for the hostname.
const KeyHostname = "HOSTNAME"

var hostnameRe = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]{0,30})$`)

// ErrInvalidHostname is returned by SetHostname for names that are not a
// single DNS label of at most 31 characters.
var ErrInvalidHostname = errors.New("invalid hostname")

// Store is a file-backed key/value map. Safe for concurrent use.
type Store struct {
	mu     sync.RWMutex
	path   string
	values map[string]string
}

// Open loads the store at path. A missing file yields an empty store.
// An empty path keeps settings in memory only.
func Open(path string) (*Store, error) {
	s := &Store{path: path, values: map[string]string{}}
	if path == "" {
		return s, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, fmt.Errorf("read settings %s: %w", path, err)
	}
	s.values = values
	return s, nil
}

// Get returns the value for key, or def if unset.
func (s *Store) Get(key, def string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if v, ok := s.values[key]; ok {
		return v
	}
	return def
}

// Set stores value under key and persists the store.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, had := s.values[key]
	s.values[key] = value
	if err := s.save(); err != nil {
		if had {
			s.values[key] = prev
		} else {
			delete(s.values, key)
		}
		return err
	}
	return nil
}

// Hostname returns the stored hostname or DefaultHostname.
func (s *Store) Hostname() string {
	return s.Get(KeyHostname, DefaultHostname)
}

// SetHostname validates and stores name.
func (s *Store) SetHostname(name string) error {
	if !hostnameRe.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidHostname, name)
	}
	return s.Set(KeyHostname, name)
}

// save writes the store atomically. Caller holds mu.
func (s *Store) save() error {
	if s.path == "" {
		return nil
	}
	content, err := godotenv.Marshal(s.values)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	if err := renameio.WriteFile(s.path, []byte(content+"\n"), 0o644); err != nil {
		return fmt.Errorf("write settings: %w", err)
	}
	return nil
}
