// Package alertcache provides day-partitioned deduplication of sent alerts so
// a restart never re-fires an alert for an event that was already delivered.
package alertcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Fingerprint identifies one alert-worthy event. Two alerts with the same
// fingerprint describe the same event and only the first may be sent.
type Fingerprint struct {
	Symbol    string
	Timeframe string
	AlertType string
	FVGTime   time.Time
}

// Key renders the fingerprint as a stable cache key.
func (f Fingerprint) Key() string {
	return fmt.Sprintf("%s|%s|%s|%s", f.Symbol, f.Timeframe, f.AlertType, f.FVGTime.UTC().Format(time.RFC3339))
}

// Cache records which alerts were already delivered.
type Cache interface {
	// Seen reports whether the fingerprint was already committed today.
	Seen(fp Fingerprint) bool
	// Commit records a delivered alert. Call only after the notification
	// channel confirmed delivery.
	Commit(fp Fingerprint) error
	Close() error
}

const filePrefix = "fvg_alerts_"

// FileCache persists fingerprints to one JSON file per broker-time day.
// Filesystem failures degrade to in-memory operation so analysis never stops
// over a disk problem.
type FileCache struct {
	dir      string
	maxBytes int64
	now      func() time.Time // broker time, not machine time
	logger   zerolog.Logger

	mu      sync.Mutex
	day     string
	entries map[string]bool
}

type dayFile struct {
	Date   string   `json:"date"`
	Alerts []string `json:"alerts"`
}

// NewFileCache opens (or creates) the cache directory and loads the current
// day's entries. now supplies broker time so day boundaries follow the
// broker's clock.
func NewFileCache(dir string, maxBytes int64, now func() time.Time, logger zerolog.Logger) (*FileCache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache dir %s: %w", dir, err)
	}

	fc := &FileCache{
		dir:      dir,
		maxBytes: maxBytes,
		now:      now,
		logger:   logger.With().Str("component", "alertcache").Logger(),
		entries:  make(map[string]bool),
	}
	fc.rollover(fc.dayKey())
	return fc, nil
}

func (fc *FileCache) dayKey() string {
	return fc.now().Format("20060102")
}

func (fc *FileCache) filePath(day string) string {
	return filepath.Join(fc.dir, filePrefix+day+".json")
}

// Seen reports whether fp was committed on the current broker day.
func (fc *FileCache) Seen(fp Fingerprint) bool {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.rollIfNeeded()
	return fc.entries[fp.Key()]
}

// Commit records fp and persists the day file. A persistence failure is
// logged and the entry kept in memory so the current process still
// deduplicates.
func (fc *FileCache) Commit(fp Fingerprint) error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	fc.rollIfNeeded()
	fc.entries[fp.Key()] = true

	if err := fc.persist(); err != nil {
		fc.logger.Warn().Err(err).Msg("Failed to persist alert cache, continuing in memory")
		return nil
	}
	fc.enforceSizeLimit()
	return nil
}

func (fc *FileCache) rollIfNeeded() {
	if day := fc.dayKey(); day != fc.day {
		fc.rollover(day)
	}
}

// rollover switches to a new day file, loading any existing entries for that
// day and dropping files from previous days.
func (fc *FileCache) rollover(day string) {
	fc.day = day
	fc.entries = make(map[string]bool)

	data, err := os.ReadFile(fc.filePath(day))
	if err == nil {
		var df dayFile
		if jsonErr := json.Unmarshal(data, &df); jsonErr != nil {
			fc.logger.Warn().Err(jsonErr).Str("day", day).Msg("Corrupt alert cache file, starting empty")
		} else {
			for _, key := range df.Alerts {
				fc.entries[key] = true
			}
		}
	} else if !os.IsNotExist(err) {
		fc.logger.Warn().Err(err).Str("day", day).Msg("Failed to read alert cache file, starting empty")
	}

	fc.deleteStaleDays(day)
	fc.logger.Debug().Str("day", day).Int("entries", len(fc.entries)).Msg("Alert cache day loaded")
}

func (fc *FileCache) deleteStaleDays(activeDay string) {
	names, err := fc.listDayFiles()
	if err != nil {
		return
	}
	active := filePrefix + activeDay + ".json"
	for _, name := range names {
		if name == active {
			continue
		}
		if err := os.Remove(filepath.Join(fc.dir, name)); err != nil {
			fc.logger.Warn().Err(err).Str("file", name).Msg("Failed to remove stale alert cache file")
		}
	}
}

func (fc *FileCache) persist() error {
	keys := make([]string, 0, len(fc.entries))
	for key := range fc.entries {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	data, err := json.MarshalIndent(dayFile{Date: fc.day, Alerts: keys}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal alert cache: %w", err)
	}

	path := fc.filePath(fc.day)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write alert cache: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("failed to replace alert cache: %w", err)
	}
	return nil
}

// enforceSizeLimit deletes oldest-modified cache files until total size fits
// under maxBytes. The active day's file is never deleted.
func (fc *FileCache) enforceSizeLimit() {
	names, err := fc.listDayFiles()
	if err != nil {
		return
	}

	type fileInfo struct {
		name    string
		size    int64
		modTime time.Time
	}
	var files []fileInfo
	var total int64
	for _, name := range names {
		info, err := os.Stat(filepath.Join(fc.dir, name))
		if err != nil {
			continue
		}
		files = append(files, fileInfo{name: name, size: info.Size(), modTime: info.ModTime()})
		total += info.Size()
	}
	if total <= fc.maxBytes {
		return
	}

	sort.Slice(files, func(i, j int) bool { return files[i].modTime.Before(files[j].modTime) })
	active := filePrefix + fc.day + ".json"
	for _, f := range files {
		if total <= fc.maxBytes {
			break
		}
		if f.name == active {
			continue
		}
		if err := os.Remove(filepath.Join(fc.dir, f.name)); err != nil {
			fc.logger.Warn().Err(err).Str("file", f.name).Msg("Failed to evict alert cache file")
			continue
		}
		total -= f.size
		fc.logger.Info().Str("file", f.name).Msg("Evicted alert cache file to stay under size limit")
	}
}

func (fc *FileCache) listDayFiles() ([]string, error) {
	entries, err := os.ReadDir(fc.dir)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if strings.HasPrefix(name, filePrefix) && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	return names, nil
}

// Close is a no-op; every Commit already persisted.
func (fc *FileCache) Close() error { return nil }
