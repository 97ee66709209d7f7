package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tis24dev/notionsave/internal/logging"
	"github.com/tis24dev/notionsave/internal/safefs"
)

// Credential store keys.
const (
	KeyEmail     = "email"
	KeyToken     = "token"
	KeyFileToken = "file_token"
	KeySpaceID   = "space_id"
	KeyVersion   = "version"
)

const storeVersion = 1

// Store is the JSON credential file. Every Set rewrites the whole file
// atomically before returning. There is no cross-process locking; the last
// writer wins.
type Store struct {
	mu     sync.Mutex
	path   string
	data   map[string]any
	logger *logging.Logger
}

// OpenStore loads the credential file at path. A missing file is created with
// the default content; a malformed one is replaced by the default content and
// a warning is logged.
func OpenStore(path string, logger *logging.Logger) (*Store, error) {
	if logger == nil {
		logger = logging.GetDefaultLogger()
	}
	s := &Store{path: path, logger: logger}

	raw, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		logger.Debug("Credential file %s not found, creating it", path)
		s.data = defaultStoreData()
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		return s, nil
	case err != nil:
		return nil, fmt.Errorf("read credential file %s: %w", path, err)
	}

	data, perr := decodeStore(raw)
	if perr != nil {
		logger.Warning("Credential file %s is malformed (%v); recreating it with defaults", path, perr)
		s.data = defaultStoreData()
		if err := s.persistLocked(); err != nil {
			return nil, err
		}
		return s, nil
	}
	s.data = data
	return s, nil
}

func defaultStoreData() map[string]any {
	return map[string]any{KeyVersion: storeVersion}
}

func decodeStore(raw []byte) (map[string]any, error) {
	var data map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigCorrupt, err)
	}
	if data == nil {
		return nil, fmt.Errorf("%w: top-level value is not an object", ErrConfigCorrupt)
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after object", ErrConfigCorrupt)
	}
	return data, nil
}

// Path returns the file backing the store.
func (s *Store) Path() string { return s.path }

// Get returns the string stored under key. Non-string values are reported absent.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[key]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Set stores value under key and rewrites the file.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.data[key]
	s.data[key] = value
	if err := s.persistLocked(); err != nil {
		if had {
			s.data[key] = prev
		} else {
			delete(s.data, key)
		}
		return err
	}
	return nil
}

// Delete removes key and rewrites the file. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, had := s.data[key]
	if !had {
		return nil
	}
	delete(s.data, key)
	if err := s.persistLocked(); err != nil {
		s.data[key] = prev
		return err
	}
	return nil
}

// persistLocked writes sorted keys, four-space indentation and a trailing newline.
func (s *Store) persistLocked() error {
	out, err := json.MarshalIndent(s.data, "", "    ")
	if err != nil {
		return fmt.Errorf("encode credential file: %w", err)
	}
	out = append(out, '\n')
	if err := safefs.WriteBytesAtomic(s.path, out, 0o600); err != nil {
		return fmt.Errorf("write credential file %s: %w", s.path, err)
	}
	return nil
}
