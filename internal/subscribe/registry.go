// Package subscribe implements the subscription registry and mutation
// fan-out: a bidirectional index between (collection, pattern)
// subjects and the sessions holding them, updated atomically under one
// critical section, and best-effort fan-out delivery that never blocks
// the mutator.
package subscribe

import (
	"sync"

	"github.com/golang/glog"

	"github.com/bringyour/kvbroker/internal/document"
	"github.com/bringyour/kvbroker/internal/session"
	"github.com/bringyour/kvbroker/internal/wire"
)

const wildcard = "*"

// Registry is the global (collection, pattern) -> {sessions} index.
// Sessions also keep their own subscription set (session.Session), and the
// two are always mutated together under Registry's lock, in one critical
// section.
type Registry struct {
	mutex sync.RWMutex
	bySubject map[session.Subject]map[*session.Session]struct{}
}

func NewRegistry() *Registry {
	return &Registry{bySubject: map[session.Subject]map[*session.Session]struct{}{}}
}

// SubscribeResult reports whether a subscribe request added a new entry:
// a duplicate subscribe is a no-op success (Added=false), never an error.
type SubscribeResult struct {
	Added bool
}

// Subscribe adds subject to both the session's own set and the global
// index. Never fails; a duplicate is reported via Added=false.
func (self *Registry) Subscribe(sess *session.Session, subject session.Subject) SubscribeResult {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	added := sess.Subscribe(subject)
	if !added {
		return SubscribeResult{Added: false}
	}
	set, ok := self.bySubject[subject]
	if !ok {
		set = map[*session.Session]struct{}{}
		self.bySubject[subject] = set
	}
	set[sess] = struct{}{}
	return SubscribeResult{Added: true}
}

// Unsubscribe removes subject from both sets. Returns an error if the
// session was not subscribed.
func (self *Registry) Unsubscribe(sess *session.Session, subject session.Subject) error {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	if !sess.Unsubscribe(subject) {
		return errNotSubscribed{subject}
	}
	if set, ok := self.bySubject[subject]; ok {
		delete(set, sess)
		if len(set) == 0 {
			delete(self.bySubject, subject)
		}
	}
	return nil
}

// RemoveSession purges every subject the session held, on transport close
// or liveness expiration.
func (self *Registry) RemoveSession(sess *session.Session) {
	self.mutex.Lock()
	defer self.mutex.Unlock()

	for _, subject := range sess.Subjects() {
		if set, ok := self.bySubject[subject]; ok {
			delete(set, sess)
			if len(set) == 0 {
				delete(self.bySubject, subject)
			}
		}
	}
}

// Notify computes the matching session set for a mutation on
// (collection, key) — the union of the exact-key and wildcard subjects,
// minus the originator — and pushes a SUBSCRIPTION_UPDATE to each,
// fire-and-forget. It never blocks the caller:
// delivery is a non-blocking push onto each session's own outbound queue,
// and a full queue is logged and dropped rather than propagated.
func (self *Registry) Notify(collection, key, operation string, value document.Value, originator *session.Session, now int64) {
	self.mutex.RLock()
	matched := map[*session.Session]struct{}{}
	for sess := range self.bySubject[session.Subject{Collection: collection, Pattern: key}] {
		matched[sess] = struct{}{}
	}
	for sess := range self.bySubject[session.Subject{Collection: collection, Pattern: wildcard}] {
		matched[sess] = struct{}{}
	}
	self.mutex.RUnlock()

	delete(matched, originator)
	if len(matched) == 0 {
		return
	}

	env, err := wire.NewSubscriptionUpdate(collection, key, operation, value, now)
	if err != nil {
		glog.Errorf("subscribe: encode update for %s/%s: %v", collection, key, err)
		return
	}
	frame, err := wire.Encode(env)
	if err != nil {
		glog.Errorf("subscribe: encode frame for %s/%s: %v", collection, key, err)
		return
	}

	// Sent synchronously and in a fixed order (not one goroutine per
	// recipient) so that two mutations on the same subject observed by the
	// same subscriber arrive in the order they were committed. Send itself never blocks: it is a non-blocking push
	// onto the session's own outbound queue (session.Session.Send), so a
	// slow subscriber still cannot stall the mutator.
	for sess := range matched {
		if err := sess.Send(frame); err != nil {
			glog.V(1).Infof("subscribe: drop update to %s: %v", sess.ID, err)
		}
	}
}

type errNotSubscribed struct {
	subject session.Subject
}

func (e errNotSubscribed) Error() string {
	return "subscribe: not subscribed to " + e.subject.Collection + "/" + e.subject.Pattern
}
