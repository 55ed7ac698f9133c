// Package track keeps the in-memory half of application state: the latest
// computed diff per application and the registry of in-flight sync
// operations. Everything here is rebuilt by the next reconcile pass after a
// restart; durable state lives in the Application status.
package track

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"k8s.io/apimachinery/pkg/types"

	"github.com/gitopslab/sync-controller/internal/diff"
)

// ErrOperationInFlight is returned by Begin when the application already has
// a running sync operation. Per-application operations never overlap.
//
//nolint:gochecknoglobals // sentinel error
var ErrOperationInFlight = errors.New("sync operation already in flight")

// Operation describes an in-flight sync operation.
type Operation struct {
	ID        string
	StartedAt time.Time

	cancel context.CancelFunc
}

type appState struct {
	revision string
	entries  []diff.Entry
	inflight *Operation
}

// Tracker is safe for concurrent use from multiple reconcile workers.
type Tracker struct {
	mu   sync.RWMutex
	apps map[types.NamespacedName]*appState
}

// NewTracker creates an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{apps: make(map[types.NamespacedName]*appState)}
}

// SetDiff records the latest comparison for an application. Stored entries
// are treated as immutable snapshots by all readers.
func (t *Tracker) SetDiff(key types.NamespacedName, revision string, entries []diff.Entry) {
	snapshot := make([]diff.Entry, len(entries))
	copy(snapshot, entries)

	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(key)
	state.revision = revision
	state.entries = snapshot
}

// LastDiff returns the latest recorded comparison. The returned slice is a
// copy; mutating it does not affect the tracker.
func (t *Tracker) LastDiff(key types.NamespacedName) (string, []diff.Entry, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.apps[key]
	if !ok || state.entries == nil {
		return "", nil, false
	}

	entries := make([]diff.Entry, len(state.entries))
	copy(entries, state.entries)

	return state.revision, entries, true
}

// Begin registers a sync operation. It fails with ErrOperationInFlight when
// another operation is still registered for the same application.
func (t *Tracker) Begin(key types.NamespacedName, id string, startedAt time.Time, cancel context.CancelFunc) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	state := t.state(key)
	if state.inflight != nil {
		return errors.Wrapf(ErrOperationInFlight, "operation %s", state.inflight.ID)
	}

	state.inflight = &Operation{ID: id, StartedAt: startedAt, cancel: cancel}

	return nil
}

// End unregisters a sync operation. Ending an operation that is no longer
// registered is a no-op, so End is safe to defer.
func (t *Tracker) End(key types.NamespacedName, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.apps[key]
	if !ok || state.inflight == nil || state.inflight.ID != id {
		return
	}

	state.inflight = nil
}

// Running returns the in-flight operation, if any.
func (t *Tracker) Running(key types.NamespacedName) (Operation, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	state, ok := t.apps[key]
	if !ok || state.inflight == nil {
		return Operation{}, false
	}

	return *state.inflight, true
}

// Abort cancels the in-flight operation's context. It reports whether an
// operation was running. The operation stays registered until End is called
// by its owner, so a second operation still cannot start mid-abort.
func (t *Tracker) Abort(key types.NamespacedName) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.apps[key]
	if !ok || state.inflight == nil {
		return false
	}

	if state.inflight.cancel != nil {
		state.inflight.cancel()
	}

	return true
}

// Forget drops all in-memory state for an application, cancelling any
// in-flight operation first. Called when the Application is deleted.
func (t *Tracker) Forget(key types.NamespacedName) {
	t.mu.Lock()
	defer t.mu.Unlock()

	state, ok := t.apps[key]
	if !ok {
		return
	}

	if state.inflight != nil && state.inflight.cancel != nil {
		state.inflight.cancel()
	}

	delete(t.apps, key)
}

// state returns the entry for key, creating it if needed. Callers must hold
// the write lock.
func (t *Tracker) state(key types.NamespacedName) *appState {
	state, ok := t.apps[key]
	if !ok {
		state = &appState{}
		t.apps[key] = state
	}

	return state
}
