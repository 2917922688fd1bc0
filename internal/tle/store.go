package tle

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

const cacheFile = "weather.tle"

// Store fetches and caches the bulk element set. Reads walk a tiered
// fallback chain: fresh disk cache, network fetch, stale disk cache.
// The scheduler only ever reads; refreshes happen through the explicit
// Refresh operation.
type Store struct {
	url    string
	dir    string
	maxAge time.Duration
}

// NewStore returns a store that fetches elements from the given URL and
// caches them under dir.
func NewStore(url, dir string, refreshHours int) *Store {
	return &Store{
		url:    url,
		dir:    dir,
		maxAge: time.Duration(refreshHours) * time.Hour,
	}
}

// CachePath returns the on-disk location of the cached element file.
func (s *Store) CachePath() string {
	return filepath.Join(s.dir, cacheFile)
}

// Load returns the parsed element set, preferring a fresh disk cache, then
// the network, then a stale cache.
func (s *Store) Load() (Set, error) {
	raw, err := s.loadOrFetch()
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Refresh fetches the element set from the network regardless of cache age,
// persists it, and returns the parsed result. The new text is validated
// before the cache is replaced, so a bad upstream response never clobbers a
// working cache.
func (s *Store) Refresh() (Set, error) {
	raw, err := s.fetch()
	if err != nil {
		return nil, err
	}
	set, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("refresh rejected: %w", err)
	}
	if err := s.writeCache(raw); err != nil {
		return nil, fmt.Errorf("persist element cache: %w", err)
	}
	return set, nil
}

// CacheInfo describes the state of the on-disk cache for status reporting.
type CacheInfo struct {
	Path       string `json:"path"`
	Exists     bool   `json:"exists"`
	AgeSeconds int64  `json:"age_seconds"`
	Fresh      bool   `json:"fresh"`
	SizeBytes  int64  `json:"size_bytes"`
	Satellites int    `json:"satellites"`
}

// CacheInfo stats the cache file and counts parseable records.
func (s *Store) CacheInfo() CacheInfo {
	info := CacheInfo{Path: s.CachePath()}
	st, err := os.Stat(info.Path)
	if err != nil {
		return info
	}
	info.Exists = true
	info.SizeBytes = st.Size()
	age := time.Since(st.ModTime())
	info.AgeSeconds = int64(age.Seconds())
	info.Fresh = age < s.maxAge

	if b, err := os.ReadFile(info.Path); err == nil {
		if set, err := Parse(string(b)); err == nil {
			info.Satellites = len(set)
		}
	}
	return info
}

// loadOrFetch walks the fallback chain to get raw element text:
// fresh cache -> network -> stale cache.
func (s *Store) loadOrFetch() (string, error) {
	path := s.CachePath()

	// Tier 1: fresh disk cache.
	st, err := os.Stat(path)
	if err == nil && time.Since(st.ModTime()) < s.maxAge {
		if b, readErr := os.ReadFile(path); readErr == nil && len(b) > 0 {
			return string(b), nil
		}
	}

	// Tier 2: network fetch.
	body, fetchErr := s.fetch()
	if fetchErr == nil {
		// Cache write failure is non-fatal; the data is already in memory.
		_ = s.writeCache(body)
		return body, nil
	}

	// Tier 3: stale disk cache.
	if b, readErr := os.ReadFile(path); readErr == nil && len(b) > 0 {
		return string(b), nil
	}

	return "", fmt.Errorf("all element sources exhausted: %w", fetchErr)
}

// fetch downloads the element set from CelesTrak (or whatever URL is
// configured). Times out after 30 seconds.
func (s *Store) fetch() (string, error) {
	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get(s.url)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("element fetch returned HTTP %d", resp.StatusCode)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// writeCache atomically replaces the cache via a temp file and rename so
// readers never see a half-written file.
func (s *Store) writeCache(data string) error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, "tle-*.tmp")
	if err != nil {
		return err
	}

	if _, err := tmp.WriteString(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}

	return os.Rename(tmp.Name(), s.CachePath())
}
