package board

import "github.com/gosuda/boardsync/random"

// Objects is the hidden-object accessor a reducer sees. On the server it is
// backed by the authoritative container; on the client by a replay view that
// only serves recorded reveals. Components without hidden state get a nil
// accessor.
type Objects[T any] interface {
	// Add inserts an object with no visibility restriction.
	Add(id int, obj T)
	// GetVisible reads an object's value and records the reveal, so that
	// observers entitled to the value receive it explicitly.
	GetVisible(id int) (T, error)
	// SetVisibleOnlyFor restricts an object to the given seat.
	SetVisibleOnlyFor(id, seat int) error
	// SetVisibleForAll lifts an object's visibility restriction.
	SetVisibleForAll(id int) error
	// ShuffleAndHide redistributes the values among ids in random order and
	// hides all of them from everyone but visibleTo. Required whenever a
	// previously seen value must become unguessable again.
	ShuffleAndHide(ids []int, visibleTo int) error
	// Clear empties the collection.
	Clear()
}

// Context bundles everything a reducer may consult besides its own state.
type Context[H any] struct {
	Validation Validation
	Random     random.Source
	Objects    Objects[H]
}

// Reducer computes the next component state from the current one and an
// action. It must be pure apart from draws on ctx.Random and mutations of
// ctx.Objects, and must return an error (never silently ignore) when the
// action is structurally invalid, unauthorized, or logically premature. An
// error aborts the whole action.
type Reducer[S, H any] func(ctx Context[H], state S, action Action) (S, error)
