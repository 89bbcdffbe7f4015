// Package diff implements the generic aggregate reconciliation engine
// (C7): given existing persisted children and a desired child list, it
// computes add/update/delete sets by stable identity. It does not
// touch sequence numbers; callers renumber rows before reconciling.
package diff

import "github.com/google/uuid"

// Identifiable is implemented by any child entity the engine can
// reconcile: it reports its own id, and whether that id is already
// assigned (a zero-value id means "not yet persisted", i.e. an add).
type Identifiable interface {
	Identity() (id uuid.UUID, hasID bool)
}

// Plan is the result of reconciling desired children against existing
// ones: which to insert, which to update in place, and which to
// delete because they no longer appear in the desired list.
type Plan[T Identifiable] struct {
	Adds    []T
	Updates []T
	Deletes []T
}

// Reconcile computes a Plan for one parent's children. equal reports
// whether an existing and desired row (matched by id) are
// deep-equal, so an unchanged row produces no update. newID mints an
// id for rows in desired that don't have one yet.
//
// Reconcile does not renumber rows: any Seq field is compared as the
// caller set it (Store.SaveJob assigns each step its position in the
// desired slice before calling Reconcile).
func Reconcile[T Identifiable](existing []T, desired []T, equal func(a, b T) bool, newID func() uuid.UUID, withID func(t T, id uuid.UUID) T) Plan[T] {
	existingByID := make(map[uuid.UUID]T, len(existing))
	for _, row := range existing {
		if id, hasID := row.Identity(); hasID {
			existingByID[id] = row
		}
	}

	matched := make(map[uuid.UUID]bool, len(existing))
	plan := Plan[T]{}

	for _, row := range desired {
		id, hasID := row.Identity()
		if !hasID {
			plan.Adds = append(plan.Adds, withID(row, newID()))
			continue
		}

		existingRow, found := existingByID[id]
		if !found {
			// Desired supplied an id the parent doesn't currently own;
			// treat it as a new row under that id rather than silently
			// dropping it.
			plan.Adds = append(plan.Adds, row)
			continue
		}

		matched[id] = true
		if !equal(existingRow, row) {
			plan.Updates = append(plan.Updates, row)
		}
	}

	for id, row := range existingByID {
		if !matched[id] {
			plan.Deletes = append(plan.Deletes, row)
		}
	}

	return plan
}
