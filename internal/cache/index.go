package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"artcache/internal/artifact"
)

// indexFileName is the descriptor file holding the serialized index. It is
// the only durable record of what the cache directory legitimately contains.
const indexFileName = "index.json"

type indexData struct {
	Entries []artifact.Entry `json:"entries"`
}

// loadIndex reads the descriptor file into a key-to-entry map. A missing
// file surfaces as os.ErrNotExist so callers can distinguish a fresh
// directory from a corrupted one.
func loadIndex(dir string) (map[string]artifact.Entry, error) {
	data, err := os.ReadFile(filepath.Join(dir, indexFileName))
	if err != nil {
		return nil, err
	}

	var idx indexData
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, fmt.Errorf("corrupt cache descriptor: %w", err)
	}

	state := make(map[string]artifact.Entry, len(idx.Entries))
	for _, entry := range idx.Entries {
		state[entry.CacheKey] = entry
	}
	return state, nil
}

// writeIndex persists the full index snapshot atomically: the descriptor is
// written to a temp file in the same directory and renamed into place, so a
// reader never observes a half-written descriptor.
func writeIndex(dir string, state map[string]artifact.Entry) error {
	idx := indexData{Entries: make([]artifact.Entry, 0, len(state))}
	for _, entry := range state {
		idx.Entries = append(idx.Entries, entry)
	}
	sort.Slice(idx.Entries, func(i, j int) bool {
		return idx.Entries[i].CacheKey < idx.Entries[j].CacheKey
	})

	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return err
	}

	dest := filepath.Join(dir, indexFileName)
	tmp, err := os.CreateTemp(dir, indexFileName+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil || closeErr != nil {
		os.Remove(tmpName)
		if writeErr != nil {
			return writeErr
		}
		return closeErr
	}

	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// listCacheFiles returns the names of all regular files directly under dir,
// excluding the descriptor itself.
func listCacheFiles(dir string) (map[string]struct{}, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make(map[string]struct{})
	for _, entry := range entries {
		if entry.IsDir() || entry.Name() == indexFileName {
			continue
		}
		files[entry.Name()] = struct{}{}
	}
	return files, nil
}

// reconcile removes index entries whose backing file is missing from disk
// and returns the removed keys.
func reconcile(state map[string]artifact.Entry, files map[string]struct{}) []string {
	var removed []string
	for key, entry := range state {
		if _, ok := files[entry.FileName]; !ok {
			delete(state, key)
			removed = append(removed, key)
		}
	}
	sort.Strings(removed)
	return removed
}
