package project

import (
	"context"
	"slices"

	"github.com/kazz187/provisioner/pkg/panicerr"
)

// UndoFunc reverses one recorded side effect.
type UndoFunc func(ctx context.Context) error

type ledgerEntry struct {
	resource Resource
	undoStep Step
	undo     UndoFunc
}

// Ledger is the compensation record of one saga run: every resource the
// run created, in creation order, with the action that removes it. Only
// acknowledged remote successes are recorded. A Ledger is not safe for
// concurrent use; each saga run owns its own.
type Ledger struct {
	entries []ledgerEntry
}

// Record appends a created resource and its undo action.
func (l *Ledger) Record(resource Resource, undoStep Step, undo UndoFunc) {
	resource.State = ResourceCreated
	l.entries = append(l.entries, ledgerEntry{resource: resource, undoStep: undoStep, undo: undo})
}

// RecordExisting appends a resource the run relies on but did not create.
// Compensation leaves it untouched.
func (l *Ledger) RecordExisting(resource Resource) {
	resource.PreExisting = true
	resource.State = ResourceExisting
	l.entries = append(l.entries, ledgerEntry{resource: resource})
}

func (l *Ledger) Len() int {
	return len(l.entries)
}

func (l *Ledger) Resources() []Resource {
	out := make([]Resource, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.resource
	}
	return out
}

// Kinds returns the distinct resource kinds recorded, in first-seen order.
func (l *Ledger) Kinds() []ResourceKind {
	var kinds []ResourceKind
	for _, e := range l.entries {
		if !slices.Contains(kinds, e.resource.Kind) {
			kinds = append(kinds, e.resource.Kind)
		}
	}
	return kinds
}

// Compensate runs every undo action in reverse creation order. A failing
// or panicking undo is recorded and the walk continues. The returned
// resources are in creation order with their final state.
func (l *Ledger) Compensate(ctx context.Context) ([]Resource, []*CompensationError) {
	resources := l.Resources()
	var errs []*CompensationError
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if e.undo == nil {
			continue
		}
		err := panicerr.SafeContext(e.undo)(ctx)
		if err != nil {
			resources[i].State = ResourceRemaining
			errs = append(errs, &CompensationError{Step: e.undoStep, Resource: e.resource, Err: err})
			continue
		}
		resources[i].State = ResourceRolledBack
	}
	return resources, errs
}
