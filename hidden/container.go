// Package hidden implements the partial-visibility object store: the
// server-authoritative container with per-seat visibility and queued deltas,
// and the client-side view that reconstructs only the slice an observer is
// entitled to see.
package hidden

import (
	"errors"
	"math/rand"
	"time"

	"github.com/gosuda/boardsync/board"
)

// ErrObjectNotFound reports a reducer touching an id that was never added.
var ErrObjectNotFound = errors.New("hidden: object not found")

// Wrapper pairs an object with its visibility marker. A nil VisibleOnlyTo
// means the object is visible to all observers.
type Wrapper[T any] struct {
	Object        T    `json:"object"`
	VisibleOnlyTo *int `json:"visibleOnlyTo,omitempty"`
}

// Delta maps queued ids to their new wrapper, or to nil, an explicit
// tombstone telling the observer the object is now hidden from them.
type Delta[T any] map[int]*Wrapper[T]

// Response is an explicit reveal recorded by GetVisible. Observers entitled
// to a value must be told it outright; a diff-based delta alone could leak
// hidden state when a revealed value happens not to change.
type Response[T any] struct {
	ID     int `json:"id"`
	Object T   `json:"object"`
}

// Info is the hidden-object part of an action broadcast, computed per
// observer.
type Info[T any] struct {
	Delta     Delta[T]      `json:"delta"`
	Responses []Response[T] `json:"responses"`
}

// Container is the server-side store for one component instance. Mutations
// made while a reducer runs land in a queued layer; the container's owner
// commits the queue with Flush after a successful action or discards it with
// Revert after a failed one, giving the hidden state the same all-or-nothing
// semantics as the component state itself.
//
// Not safe for concurrent use; the component container serializes actions
// per room.
type Container[T any] struct {
	base      map[int]Wrapper[T]
	queued    map[int]Wrapper[T]
	responses []Response[T]
	shuffle   *rand.Rand
}

// NewContainer returns an empty container.
func NewContainer[T any]() *Container[T] {
	return &Container[T]{
		base:    make(map[int]Wrapper[T]),
		queued:  make(map[int]Wrapper[T]),
		shuffle: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Add queues an object with no visibility restriction.
func (c *Container[T]) Add(id int, obj T) {
	c.queued[id] = Wrapper[T]{Object: obj}
}

// GetVisible returns an object's value for reducer logic that is about to
// act on it. The read queues a reveal-to-all and records an explicit
// response for the broadcast.
func (c *Container[T]) GetVisible(id int) (T, error) {
	w, err := c.find(id)
	if err != nil {
		var zero T
		return zero, err
	}
	c.queued[id] = Wrapper[T]{Object: w.Object}
	c.responses = append(c.responses, Response[T]{ID: id, Object: w.Object})
	return w.Object, nil
}

// SetVisibleOnlyFor restricts an object to the given seat.
func (c *Container[T]) SetVisibleOnlyFor(id, seat int) error {
	w, err := c.find(id)
	if err != nil {
		return err
	}
	marker := seat
	c.queued[id] = Wrapper[T]{Object: w.Object, VisibleOnlyTo: &marker}
	return nil
}

// SetVisibleForAll lifts an object's visibility restriction.
func (c *Container[T]) SetVisibleForAll(id int) error {
	w, err := c.find(id)
	if err != nil {
		return err
	}
	c.queued[id] = Wrapper[T]{Object: w.Object}
	return nil
}

// ShuffleAndHide redistributes the values among the given ids in random
// order and hides all of them from everyone except visibleTo. An observer
// who saw an id's previous value must not be able to correlate it to its new
// slot, which is why re-hiding alone is never enough.
//
// The permutation comes from the container's own rand, not the action RNG:
// clients never replay it, they only receive tombstones.
func (c *Container[T]) ShuffleAndHide(ids []int, visibleTo int) error {
	objects := make([]T, len(ids))
	for i, id := range ids {
		w, err := c.find(id)
		if err != nil {
			return err
		}
		objects[i] = w.Object
	}

	c.shuffle.Shuffle(len(objects), func(i, j int) {
		objects[i], objects[j] = objects[j], objects[i]
	})

	for i, id := range ids {
		marker := visibleTo
		c.queued[id] = Wrapper[T]{Object: objects[i], VisibleOnlyTo: &marker}
	}
	return nil
}

// Clear empties the container, committed and queued layers both.
func (c *Container[T]) Clear() {
	c.base = make(map[int]Wrapper[T])
	c.queued = make(map[int]Wrapper[T])
	c.responses = nil
}

// State returns the committed entries visible to the given observer.
func (c *Container[T]) State(v board.Validation) map[int]Wrapper[T] {
	state := make(map[int]Wrapper[T])
	for id, w := range c.base {
		if visible(w, v) {
			state[id] = w
		}
	}
	return state
}

// StateDelta returns the queued entries as seen by the given observer:
// the wrapper when visible, an explicit nil tombstone when not.
func (c *Container[T]) StateDelta(v board.Validation) Delta[T] {
	delta := make(Delta[T], len(c.queued))
	for id, w := range c.queued {
		if visible(w, v) {
			entry := w
			delta[id] = &entry
		} else {
			delta[id] = nil
		}
	}
	return delta
}

// Responses returns the reveals recorded since the last Flush or Revert.
func (c *Container[T]) Responses() []Response[T] {
	return c.responses
}

// Flush commits the queued layer into the committed one. Called after the
// deltas for an accepted action have been broadcast.
func (c *Container[T]) Flush() {
	for id, w := range c.queued {
		c.base[id] = w
	}
	c.queued = make(map[int]Wrapper[T])
	c.responses = nil
}

// Revert discards the queued layer, leaving the committed state untouched.
// Called when the reducer fails.
func (c *Container[T]) Revert() {
	c.queued = make(map[int]Wrapper[T])
	c.responses = nil
}

func (c *Container[T]) find(id int) (Wrapper[T], error) {
	if w, ok := c.queued[id]; ok {
		return w, nil
	}
	if w, ok := c.base[id]; ok {
		return w, nil
	}
	var zero Wrapper[T]
	return zero, ErrObjectNotFound
}

func visible[T any](w Wrapper[T], v board.Validation) bool {
	return w.VisibleOnlyTo == nil || v.CanMoveAsPlayer(*w.VisibleOnlyTo)
}

var _ board.Objects[int] = (*Container[int])(nil)
