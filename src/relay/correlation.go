package relay

import (
	"sync"

	"signal-relay/src/interfaces"
)

// -----------------------------------------------------------------------------

// CorrelationMap remembers which local producer session is waiting for the
// response to a given client_msg_id. Entries live from the moment a message
// is forwarded until its response arrives or the owning session closes,
// whichever comes first.
type CorrelationMap struct {
	mu      sync.Mutex
	entries map[string]interfaces.ISession
}

// -----------------------------------------------------------------------------

func NewCorrelationMap() *CorrelationMap {
	return &CorrelationMap{
		entries: make(map[string]interfaces.ISession),
	}
}

// -----------------------------------------------------------------------------

// Register binds id to sess. A duplicate id overwrites the previous owner,
// keeping at most one live entry per id.
func (cm *CorrelationMap) Register(id string, sess interfaces.ISession) {
	cm.mu.Lock()
	cm.entries[id] = sess
	cm.mu.Unlock()
}

// -----------------------------------------------------------------------------

// Take removes and returns the session waiting on id.
func (cm *CorrelationMap) Take(id string) (interfaces.ISession, bool) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	sess, ok := cm.entries[id]
	if ok {
		delete(cm.entries, id)
	}
	return sess, ok
}

// -----------------------------------------------------------------------------

// PurgeSession drops every entry owned by sess and reports how many were
// removed. Called when a producer connection closes so late responses for it
// are simply dropped instead of written to a dead connection.
func (cm *CorrelationMap) PurgeSession(sess interfaces.ISession) int {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	removed := 0
	for id, owner := range cm.entries {
		if owner == sess {
			delete(cm.entries, id)
			removed++
		}
	}
	return removed
}

// -----------------------------------------------------------------------------

func (cm *CorrelationMap) Len() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.entries)
}
