package trace

import "strings"

// FieldPath is an ordered chain of field names rooted at a non-field-read
// operation, rendered dot-joined ("a.b.c"). It identifies a leaf value
// inside a composite input.
type FieldPath string

// PathOf builds a FieldPath from its components.
func PathOf(names ...string) FieldPath {
	return FieldPath(strings.Join(names, "."))
}

// Names splits the path back into its components.
func (p FieldPath) Names() []string {
	if p == "" {
		return nil
	}
	return strings.Split(string(p), ".")
}

// BuildFieldIndex reconstructs, for every composite-valued root, the
// mapping from field-access chain to the terminal operation representing
// that field's value. It scans the trace in reverse recording order; for
// each field-read call it follows first arguments through further field
// reads, collecting names, until a non-field-read root is reached.
//
// When the same (root, path) pair was recorded more than once, the
// mapping recorded latest wins: the reverse scan sees it first and later
// scan iterations never overwrite an existing entry. Repeated field
// reads therefore resolve to the freshest recorded operation.
func (t *Trace) BuildFieldIndex() {
	idx := make(map[ID]map[FieldPath]ID)

	for i := len(t.ops) - 1; i >= 0; i-- {
		op := &t.ops[i]
		if !op.IsFieldRead() {
			continue
		}

		// Follow the access chain to its root, innermost name last.
		names := []string{op.Field}
		cur := &t.ops[op.Args[0]]
		for cur.IsFieldRead() {
			names = append(names, cur.Field)
			cur = &t.ops[cur.Args[0]]
		}
		for l, r := 0, len(names)-1; l < r; l, r = l+1, r-1 {
			names[l], names[r] = names[r], names[l]
		}

		paths := idx[cur.ID]
		if paths == nil {
			paths = make(map[FieldPath]ID)
			idx[cur.ID] = paths
		}
		path := PathOf(names...)
		if _, seen := paths[path]; !seen {
			paths[path] = op.ID
		}
	}

	t.fieldIdx = idx
}

// FieldIndex returns the index built by BuildFieldIndex, keyed by root
// operation id. Nil until BuildFieldIndex has run.
func (t *Trace) FieldIndex() map[ID]map[FieldPath]ID {
	return t.fieldIdx
}
