package rpc

import (
	"sync"

	"appserver-client/internal/domain"
)

type callResult struct {
	value domain.JSONValue
	err   error
}

// pendingTable correlates outstanding calls with their responses for one
// connection. Every entry is resolved at most once: whoever removes it from
// the map owns the single send on its slot.
type pendingTable struct {
	mu       sync.Mutex
	nextID   int64
	slots    map[domain.RequestID]chan callResult
	closeErr error
}

func newPendingTable() *pendingTable {
	return &pendingTable{slots: make(map[domain.RequestID]chan callResult)}
}

// register allocates the next id (1, 2, 3, ...) and its result slot.
// After failAll it returns the teardown error instead.
func (t *pendingTable) register() (domain.RequestID, <-chan callResult, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closeErr != nil {
		return domain.RequestID{}, nil, t.closeErr
	}
	t.nextID++
	id := domain.IntID(t.nextID)
	slot := make(chan callResult, 1)
	t.slots[id] = slot
	return id, slot, nil
}

// resolve delivers r to the caller waiting on id. It reports false when no
// such call is outstanding, which covers late and duplicate responses.
func (t *pendingTable) resolve(id domain.RequestID, r callResult) bool {
	t.mu.Lock()
	slot, ok := t.slots[id]
	delete(t.slots, id)
	t.mu.Unlock()
	if !ok {
		return false
	}
	slot <- r
	return true
}

// remove drops id without resolving it.
func (t *pendingTable) remove(id domain.RequestID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.slots[id]
	delete(t.slots, id)
	return ok
}

// failAll fails every outstanding call with err, empties the table and
// refuses further registrations. It returns the number of calls failed.
func (t *pendingTable) failAll(err error) int {
	t.mu.Lock()
	slots := t.slots
	t.slots = make(map[domain.RequestID]chan callResult)
	if t.closeErr == nil {
		t.closeErr = err
	}
	t.mu.Unlock()

	for _, slot := range slots {
		slot <- callResult{err: err}
	}
	return len(slots)
}

func (t *pendingTable) len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.slots)
}
