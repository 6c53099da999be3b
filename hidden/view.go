package hidden

import "errors"

// ErrDesync reports a replayed reveal whose id does not match what the
// server recorded. The client's derived state can no longer be trusted.
var ErrDesync = errors.New("hidden: replay out of sync with server reveals")

// View is the client-side mirror of a hidden-object container: just the
// id → value slice this observer is allowed to see.
type View[T any] struct {
	objects map[int]T
}

// NewView returns an empty view.
func NewView[T any]() *View[T] {
	return &View[T]{objects: make(map[int]T)}
}

// ApplyState replaces the view with a full state fetched from the server.
func (v *View[T]) ApplyState(state map[int]Wrapper[T]) {
	v.objects = make(map[int]T, len(state))
	for id, w := range state {
		v.objects[id] = w.Object
	}
}

// ApplyDelta folds a broadcast delta into the view. Tombstones delete.
func (v *View[T]) ApplyDelta(delta Delta[T]) {
	for id, w := range delta {
		if w == nil {
			delete(v.objects, id)
		} else {
			v.objects[id] = w.Object
		}
	}
}

// Get returns the object with the given id, if this observer can see it.
func (v *View[T]) Get(id int) (T, bool) {
	obj, ok := v.objects[id]
	return obj, ok
}

// Objects returns the visible objects keyed by id.
func (v *View[T]) Objects() map[int]T {
	return v.objects
}

// Replay is the hidden-object accessor handed to a reducer during client
// replay. Reveals are served from the responses the server recorded, in
// order; everything else is a no-op, since visibility is decided
// authoritatively and arrives as a delta.
type Replay[T any] struct {
	responses []Response[T]
}

// NewReplay wraps the responses from an action broadcast.
func NewReplay[T any](responses []Response[T]) *Replay[T] {
	return &Replay[T]{responses: responses}
}

func (r *Replay[T]) GetVisible(id int) (T, error) {
	var zero T
	if len(r.responses) == 0 {
		return zero, ErrDesync
	}
	resp := r.responses[0]
	r.responses = r.responses[1:]
	if resp.ID != id {
		return zero, ErrDesync
	}
	return resp.Object, nil
}

func (r *Replay[T]) Add(_ int, _ T)                     {}
func (r *Replay[T]) SetVisibleOnlyFor(_, _ int) error   { return nil }
func (r *Replay[T]) SetVisibleForAll(_ int) error       { return nil }
func (r *Replay[T]) ShuffleAndHide(_ []int, _ int) error { return nil }
func (r *Replay[T]) Clear()                             {}
