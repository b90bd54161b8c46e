package storage

import (
	"context"
	"sync"
	"time"

	"github.com/bringyour/kvbroker/internal/document"
)

// Memory is the authoritative reference adapter: everything lives in a
// process-local map guarded by a mutex, following the copy-on-write
// discipline of bringyour-connect's CallbackList[T] in connect/util.go —
// reads take a snapshot under the lock, mutations replace the map entry
// under the same lock, so callers never observe a torn read.
type Memory struct {
	mutex       sync.RWMutex
	collections map[string]map[string]document.Value
	// insertion order per collection, so Query has a stable order per
	// insertion order matters for QUERY's result ordering.
	order map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		collections: map[string]map[string]document.Value{},
		order:       map[string][]string{},
	}
}

func (self *Memory) Get(ctx context.Context, collection, key string, opts Options) (document.Value, error) {
	self.mutex.RLock()
	defer self.mutex.RUnlock()
	coll, ok := self.collections[collection]
	if !ok {
		return document.Null, nil
	}
	v, ok := coll[key]
	if !ok {
		return document.Null, nil
	}
	return v, nil
}

func (self *Memory) Set(ctx context.Context, collection, key string, value document.Value, opts Options) (SetResult, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	coll, ok := self.collections[collection]
	if !ok {
		coll = map[string]document.Value{}
		self.collections[collection] = coll
	}
	if _, exists := coll[key]; !exists {
		self.order[collection] = append(self.order[collection], key)
	}
	coll[key] = value
	return SetResult{Success: true, Key: key, Timestamp: time.Now().UnixMilli()}, nil
}

func (self *Memory) Delete(ctx context.Context, collection, key string, opts Options) (DeleteResult, error) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	if coll, ok := self.collections[collection]; ok {
		delete(coll, key)
	}
	self.removeFromOrder(collection, key)
	return DeleteResult{Deleted: key}, nil
}

func (self *Memory) removeFromOrder(collection, key string) {
	keys := self.order[collection]
	for i, k := range keys {
		if k == key {
			self.order[collection] = append(keys[:i], keys[i+1:]...)
			return
		}
	}
}

func (self *Memory) Query(ctx context.Context, collection string, predicate map[string]document.Value, opts Options) ([]Row, error) {
	self.mutex.RLock()
	defer self.mutex.RUnlock()
	coll := self.collections[collection]
	rows := make([]Row, 0, len(coll))
	for _, key := range self.order[collection] {
		v, ok := coll[key]
		if !ok {
			continue
		}
		fields := fieldsOf(v)
		if matches(fields, predicate) {
			rows = append(rows, Row{Key: key, Fields: fields})
		}
	}
	return rows, nil
}

func (self *Memory) Close() error {
	return nil
}
