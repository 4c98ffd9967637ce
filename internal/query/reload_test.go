package query

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// The reload policy is part of the wire contract between instances:
// this table pins every variant's answer so a change here is a
// deliberate decision, not an accident.
func TestNeedsReloadPolicy(t *testing.T) {
	tests := []struct {
		tag  string
		want bool
	}{
		{"track_table", true},
		{"untrack_table", true},
		{"track_function", true},
		{"untrack_function", true},
		{"create_object_relationship", true},
		{"create_array_relationship", true},
		{"drop_relationship", true},
		{"set_relationship_comment", false},
		{"rename_relationship", true},
		{"create_insert_permission", true},
		{"create_select_permission", true},
		{"create_update_permission", true},
		{"create_delete_permission", true},
		{"drop_insert_permission", true},
		{"drop_select_permission", true},
		{"drop_update_permission", true},
		{"drop_delete_permission", true},
		{"set_permission_comment", false},
		{"insert", false},
		{"select", false},
		{"update", false},
		{"delete", false},
		{"count", false},
		{"add_remote_schema", true},
		{"remove_remote_schema", true},
		{"create_event_trigger", true},
		{"delete_event_trigger", true},
		{"deliver_event", false},
		{"create_query_template", true},
		{"drop_query_template", true},
		{"execute_query_template", false},
		{"set_query_template_comment", false},
		{"run_sql", true},
		{"replace_metadata", true},
		{"export_metadata", false},
		{"clear_metadata", true},
		{"reload_metadata", true},
		{"dump_internal_state", false},
	}

	covered := make(map[string]bool)
	for _, tt := range tests {
		t.Run(tt.tag, func(t *testing.T) {
			mk, ok := decoders[tt.tag]
			require.True(t, ok, "unknown tag %q", tt.tag)
			assert.Equal(t, tt.want, NeedsReload(mk()))
		})
		covered[tt.tag] = true
	}

	// The table above must stay total over the non-bulk taxonomy.
	for tag := range decoders {
		assert.True(t, covered[tag], "reload policy missing for %q", tag)
	}
}

func TestNeedsReloadBulk(t *testing.T) {
	tests := []struct {
		name string
		bulk *Bulk
		want bool
	}{
		{
			name: "empty bulk",
			bulk: &Bulk{},
			want: false,
		},
		{
			name: "data operations only",
			bulk: &Bulk{Commands: []Command{&Select{}, &Count{}, &Insert{}}},
			want: false,
		},
		{
			name: "one catalog change flips the whole batch",
			bulk: &Bulk{Commands: []Command{&Select{}, &TrackTable{}, &Count{}}},
			want: true,
		},
		{
			name: "nested bulk propagates upward",
			bulk: &Bulk{Commands: []Command{
				&Select{},
				&Bulk{Commands: []Command{
					&Bulk{Commands: []Command{&DropRelationship{}}},
				}},
			}},
			want: true,
		},
		{
			name: "deeply nested without catalog changes",
			bulk: &Bulk{Commands: []Command{
				&Bulk{Commands: []Command{
					&Bulk{Commands: []Command{&DumpInternalState{}, &ExportMetadata{}}},
				}},
			}},
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsReload(tt.bulk))
		})
	}
}

// randomBulk builds a random command tree and reports whether any leaf
// in it requires a reload, so the OR-recursion can be checked against
// trees no fixed table would think of.
func randomBulk(rng *rand.Rand, depth int) (*Bulk, bool) {
	leaves := []struct {
		mk   func() Command
		want bool
	}{
		{func() Command { return &Select{} }, false},
		{func() Command { return &Count{} }, false},
		{func() Command { return &ExportMetadata{} }, false},
		{func() Command { return &TrackTable{} }, true},
		{func() Command { return &DropRelationship{} }, true},
		{func() Command { return &RunSQL{} }, true},
	}

	b := &Bulk{}
	want := false
	for i := 0; i < rng.Intn(4); i++ {
		if depth > 0 && rng.Intn(3) == 0 {
			child, childWant := randomBulk(rng, depth-1)
			b.Commands = append(b.Commands, child)
			want = want || childWant
			continue
		}
		leaf := leaves[rng.Intn(len(leaves))]
		b.Commands = append(b.Commands, leaf.mk())
		want = want || leaf.want
	}
	return b, want
}

func TestNeedsReloadBulkRandomTrees(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for i := 0; i < 500; i++ {
		b, want := randomBulk(rng, 3)
		assert.Equal(t, want, NeedsReload(b))
	}
}
