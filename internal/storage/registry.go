package storage

import (
	"fmt"
	"sync"

	"github.com/bringyour/kvbroker/internal/platform"
)

// Registry resolves the adapter for a session's platform, mirroring the
// capability table: browser sessions get the in-memory
// adapter (standing in for the browser-native stores this broker doesn't
// implement), react-native sessions get the embedded sqlite adapter,
// nodejs sessions get the file-tree adapter, and any other platform falls
// back to memory.
type Registry struct {
	mutex    sync.RWMutex
	adapters map[platform.Platform]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: map[platform.Platform]Adapter{}}
}

// Bind associates an adapter with a platform's kind, ignoring any raw hint
// on p (see platform.Platform.Canonical) — every "other" client shares one
// slot regardless of which unrecognized x-platform value it sent. Broker
// startup calls this once per platform; tests may rebind to inject fakes.
func (self *Registry) Bind(p platform.Platform, adapter Adapter) {
	self.mutex.Lock()
	defer self.mutex.Unlock()
	self.adapters[p.Canonical()] = adapter
}

// Resolve returns the adapter for a platform's kind, or an error if none
// has been bound — the dispatcher turns this into a protocol-level ERROR
// envelope.
func (self *Registry) Resolve(p platform.Platform) (Adapter, error) {
	self.mutex.RLock()
	defer self.mutex.RUnlock()
	adapter, ok := self.adapters[p.Canonical()]
	if !ok {
		return nil, fmt.Errorf("storage: no adapter bound for platform %q", p)
	}
	return adapter, nil
}

// CloseAll releases every bound adapter's resources, deterministically, on
// broker shutdown.
func (self *Registry) CloseAll() error {
	self.mutex.RLock()
	defer self.mutex.RUnlock()
	var firstErr error
	closed := map[Adapter]bool{}
	for _, adapter := range self.adapters {
		if closed[adapter] {
			continue // several platforms may share one adapter instance
		}
		closed[adapter] = true
		if err := adapter.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
