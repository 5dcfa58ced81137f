package daemon

import (
	"sync"

	"github.com/codelatch/codelatch/internal/protocol"
)

// waiterTable maps in-flight permission request ids to the connection
// goroutine waiting for a decision. Channels are buffered so a
// completer never blocks on a waiter that already gave up.
type waiterTable struct {
	mu      sync.Mutex
	waiters map[string]chan protocol.HookResponseEnvelope
}

func newWaiterTable() *waiterTable {
	return &waiterTable{waiters: make(map[string]chan protocol.HookResponseEnvelope)}
}

// Create registers a waiter for requestID and returns its channel.
func (t *waiterTable) Create(requestID string) chan protocol.HookResponseEnvelope {
	ch := make(chan protocol.HookResponseEnvelope, 1)
	t.mu.Lock()
	t.waiters[requestID] = ch
	t.mu.Unlock()
	return ch
}

// Complete delivers a response to the waiter, if one is still
// registered, and removes it. Reports whether a waiter was found.
func (t *waiterTable) Complete(requestID string, response protocol.HookResponseEnvelope) bool {
	t.mu.Lock()
	ch, ok := t.waiters[requestID]
	if ok {
		delete(t.waiters, requestID)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	ch <- response
	return true
}

// Remove drops a waiter without delivering anything.
func (t *waiterTable) Remove(requestID string) {
	t.mu.Lock()
	delete(t.waiters, requestID)
	t.mu.Unlock()
}
