package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/bringyour/kvbroker/internal/document"
)

// FileTree persists one JSON file per (collection, key) under a data
// directory, named "<collection>_<key>.json". Writes go
// through a temp-file-then-rename to avoid partial files on crash, the same
// discipline as deehdev-teste/server_unified/storage.go's saveJSONFile
// (there applied to whole-collection snapshots; here per key, so Delete can
// unlink exactly one file).
type FileTree struct {
	mutex   sync.Mutex
	dataDir string
}

func NewFileTree(dataDir string) (*FileTree, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("filetree: create data dir: %w", err)
	}
	return &FileTree{dataDir: dataDir}, nil
}

func (self *FileTree) pathFor(collection, key string) string {
	name := fmt.Sprintf("%s_%s.json", collection, key)
	return filepath.Join(self.dataDir, name)
}

func (self *FileTree) Get(ctx context.Context, collection, key string, opts Options) (document.Value, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	data, err := os.ReadFile(self.pathFor(collection, key))
	if os.IsNotExist(err) {
		return document.Null, nil
	}
	if err != nil {
		return document.Null, err
	}
	var v document.Value
	if err := json.Unmarshal(data, &v); err != nil {
		return document.Null, fmt.Errorf("filetree: decode %s/%s: %w", collection, key, err)
	}
	return v, nil
}

func (self *FileTree) Set(ctx context.Context, collection, key string, value document.Value, opts Options) (SetResult, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	path := self.pathFor(collection, key)
	raw, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return SetResult{}, err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o644); err != nil {
		return SetResult{}, err
	}
	if err := os.Rename(tmp, path); err != nil {
		return SetResult{}, err
	}
	return SetResult{Success: true, Key: key, Timestamp: time.Now().UnixMilli()}, nil
}

func (self *FileTree) Delete(ctx context.Context, collection, key string, opts Options) (DeleteResult, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	err := os.Remove(self.pathFor(collection, key))
	if err != nil && !os.IsNotExist(err) {
		return DeleteResult{}, err
	}
	return DeleteResult{Deleted: key}, nil
}

func (self *FileTree) Query(ctx context.Context, collection string, predicate map[string]document.Value, opts Options) ([]Row, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	entries, err := os.ReadDir(self.dataDir)
	if err != nil {
		return nil, err
	}
	prefix := collection + "_"
	var names []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.HasPrefix(e.Name(), prefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	// directory enumeration order is unspecified by the OS; sort by name so
	// the adapter's declared order is at least stable across calls.
	sort.Strings(names)

	rows := make([]Row, 0, len(names))
	for _, name := range names {
		key := strings.TrimSuffix(strings.TrimPrefix(name, prefix), ".json")
		data, err := os.ReadFile(filepath.Join(self.dataDir, name))
		if err != nil {
			continue
		}
		var v document.Value
		if err := json.Unmarshal(data, &v); err != nil {
			continue
		}
		fields := fieldsOf(v)
		if matches(fields, predicate) {
			rows = append(rows, Row{Key: key, Fields: fields})
		}
	}
	return rows, nil
}

func (self *FileTree) Close() error {
	return nil
}
