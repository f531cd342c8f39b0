// Package sessioncache persists session tokens across restarts so the
// service can resume without a fresh credential exchange.
package sessioncache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/aussiebroadwan/vrcwatch/internal/monitor/domain"
)

// Cache reads and writes a session token file. The file holds secrets, so it
// is written with owner-only permissions.
type Cache struct {
	Path string
}

type cachedSession struct {
	AuthToken         string    `json:"authToken"`
	SecondFactorToken string    `json:"twoFactorToken,omitempty"`
	EstablishedAt     time.Time `json:"establishedAt"`
}

// New returns a Cache backed by the given file path.
func New(path string) *Cache {
	return &Cache{Path: path}
}

// Load returns the cached session, or (zero, false, nil) when no cache file
// exists. A corrupt file is reported as an error.
func (c *Cache) Load() (domain.Session, bool, error) {
	data, err := os.ReadFile(c.Path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, fmt.Errorf("read session cache: %w", err)
	}

	var cached cachedSession
	if err := json.Unmarshal(data, &cached); err != nil {
		return domain.Session{}, false, fmt.Errorf("decode session cache: %w", err)
	}
	if cached.AuthToken == "" {
		return domain.Session{}, false, nil
	}

	return domain.Session{
		AuthToken:         cached.AuthToken,
		SecondFactorToken: cached.SecondFactorToken,
		EstablishedAt:     cached.EstablishedAt,
	}, true, nil
}

// Save writes the session to disk, replacing any previous cache atomically.
func (c *Cache) Save(session domain.Session) error {
	data, err := json.MarshalIndent(cachedSession{
		AuthToken:         session.AuthToken,
		SecondFactorToken: session.SecondFactorToken,
		EstablishedAt:     session.EstablishedAt,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encode session cache: %w", err)
	}

	dir := filepath.Dir(c.Path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create cache directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".session-*")
	if err != nil {
		return fmt.Errorf("create temp cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := tmp.Chmod(0o600); err != nil {
		tmp.Close()
		return fmt.Errorf("set cache file mode: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write session cache: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close session cache: %w", err)
	}

	if err := os.Rename(tmp.Name(), c.Path); err != nil {
		return fmt.Errorf("replace session cache: %w", err)
	}
	return nil
}

// Clear removes the cache file. Missing files are not an error.
func (c *Cache) Clear() error {
	err := os.Remove(c.Path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove session cache: %w", err)
	}
	return nil
}
