package cache

import (
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// ClearDir removes the cache directory and all contents, recreating it so an
// empty but valid cache location remains.
func ClearDir(dir string) error {
	if strings.TrimSpace(dir) == "" {
		return errors.New("empty dir")
	}
	if err := os.RemoveAll(dir); err != nil {
		return err
	}
	return os.MkdirAll(dir, 0o755)
}

// PurgeByAge removes fetch-cache records older than maxAge, judged by the
// fetched_at timestamp in each meta file. Both files of a pair are removed;
// unreadable or malformed metas are skipped.
func PurgeByAge(dir string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}
	now := time.Now()
	removed := 0
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var m Meta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		if now.Sub(time.Unix(m.FetchedAtEpoch, 0)) <= maxAge {
			return nil
		}
		removed++
		_ = os.Remove(path)
		_ = os.Remove(strings.TrimSuffix(path, ".json") + ".bin")
		return nil
	})
	return removed, err
}

// EnforceLimits evicts least-recently-fetched records until the cache fits
// maxBytes and maxCount. Non-positive limits disable that dimension. Returns
// the number of records removed.
func EnforceLimits(dir string, maxBytes int64, maxCount int) (int, error) {
	if maxBytes <= 0 && maxCount <= 0 {
		return 0, nil
	}
	type entry struct {
		metaPath  string
		bodyPath  string
		size      int64
		fetchedAt int64
	}
	var entries []entry
	var total int64
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".json") || strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var m Meta
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil
		}
		bodyPath := strings.TrimSuffix(path, ".json") + ".bin"
		var size int64
		if info, err := os.Stat(bodyPath); err == nil {
			size = info.Size()
		}
		entries = append(entries, entry{metaPath: path, bodyPath: bodyPath, size: size, fetchedAt: m.FetchedAtEpoch})
		total += size
		return nil
	})
	if err != nil {
		return 0, err
	}
	// Oldest first.
	sort.Slice(entries, func(i, j int) bool { return entries[i].fetchedAt < entries[j].fetchedAt })
	removed := 0
	count := len(entries)
	for _, e := range entries {
		over := (maxBytes > 0 && total > maxBytes) || (maxCount > 0 && count > maxCount)
		if !over {
			break
		}
		_ = os.Remove(e.metaPath)
		_ = os.Remove(e.bodyPath)
		total -= e.size
		count--
		removed++
	}
	return removed, nil
}
