package diff

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type row struct {
	id   uuid.UUID
	seq  int
	name string
}

func (r row) Identity() (uuid.UUID, bool) {
	return r.id, r.id != uuid.Nil
}

// diffOpts lets cmp reach into row's unexported fields for structural
// comparison, since row is a package-local test fixture rather than a
// type with a public API to compare through.
var diffOpts = cmp.AllowUnexported(row{})

func TestReconcile_AddUpdateDelete(t *testing.T) {
	keep := uuid.New()
	remove := uuid.New()
	minted := uuid.New()

	existing := []row{
		{id: keep, seq: 0, name: "unchanged"},
		{id: remove, seq: 1, name: "gone"},
	}
	desired := []row{
		{id: keep, seq: 0, name: "unchanged"},
		{seq: 1, name: "brand new"}, // no id: should become an Add
	}

	equal := func(a, b row) bool { return a.name == b.name }
	newID := func() uuid.UUID { return minted }
	withID := func(r row, id uuid.UUID) row {
		r.id = id
		return r
	}

	plan := Reconcile(existing, desired, equal, newID, withID)

	require.Len(t, plan.Adds, 1)
	assert.True(t, cmp.Equal(row{id: minted, seq: 1, name: "brand new"}, plan.Adds[0], diffOpts),
		"diff: %s", cmp.Diff(row{id: minted, seq: 1, name: "brand new"}, plan.Adds[0], diffOpts))

	assert.Empty(t, plan.Updates, "unchanged row must not produce an update")

	require.Len(t, plan.Deletes, 1)
	assert.Equal(t, remove, plan.Deletes[0].id)
}

func TestReconcile_DetectsUpdate(t *testing.T) {
	id := uuid.New()
	existing := []row{{id: id, name: "old"}}
	desired := []row{{id: id, name: "new"}}

	equal := func(a, b row) bool { return a.name == b.name }
	plan := Reconcile(existing, desired, equal, uuid.New, func(r row, id uuid.UUID) row { r.id = id; return r })

	require.Len(t, plan.Updates, 1)
	assert.Equal(t, "new", plan.Updates[0].name)
	assert.Empty(t, plan.Adds)
	assert.Empty(t, plan.Deletes)
}

func TestReconcile_UnknownIDTreatedAsAdd(t *testing.T) {
	foreignID := uuid.New()
	desired := []row{{id: foreignID, name: "externally assigned id"}}

	plan := Reconcile[row](nil, desired, func(a, b row) bool { return true }, uuid.New, func(r row, id uuid.UUID) row { return r })

	require.Len(t, plan.Adds, 1)
	assert.Equal(t, foreignID, plan.Adds[0].id)
}

func TestReconcile_EmptyDesiredDeletesAll(t *testing.T) {
	existing := []row{{id: uuid.New()}, {id: uuid.New()}}
	plan := Reconcile[row](existing, nil, func(a, b row) bool { return true }, uuid.New, func(r row, id uuid.UUID) row { return r })

	assert.Len(t, plan.Deletes, len(existing))
	assert.Empty(t, plan.Adds)
	assert.Empty(t, plan.Updates)
}

// TestReconcile_IdenticalInputsAreNoOp pins the spec's invariant directly:
// reconciling identical existing and desired slices must produce empty
// adds, updates, and deletes.
func TestReconcile_IdenticalInputsAreNoOp(t *testing.T) {
	rows := []row{
		{id: uuid.New(), seq: 0, name: "a"},
		{id: uuid.New(), seq: 1, name: "b"},
	}
	desired := append([]row(nil), rows...)

	plan := Reconcile(rows, desired, func(a, b row) bool { return cmp.Equal(a, b, diffOpts) }, uuid.New,
		func(r row, id uuid.UUID) row { r.id = id; return r })

	assert.Empty(t, plan.Adds)
	assert.Empty(t, plan.Updates)
	assert.Empty(t, plan.Deletes)
}
