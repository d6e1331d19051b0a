package pipeline

import (
	"errors"
	"fmt"
	"regexp"
)

// dotSuffixRe matches a trailing ".<digits>" fragment, the shape the CRM's
// export produces when a column alias repeats (e.g. "vendedor_nombre.1").
var dotSuffixRe = regexp.MustCompile(`\.(\d+)$`)

// ErrNoColumns is returned when a batch header has zero columns. This is the
// only hard failure in column normalization; everything else degrades.
var ErrNoColumns = errors.New("pipeline: header has no columns")

// NormalizeColumns resolves the raw header of a CRM export into a unique,
// canonical column-name set.
//
// Two passes, in order:
//  1. Exact duplicates: the first occurrence keeps its name, each later one
//     gets "_1", "_2", ... appended in left-to-right order.
//  2. Dot-numeric suffixes: "<name>.<digits>" is rewritten to "<name>_<digits>".
//
// Finally the export's near-duplicate salesperson surname column is folded
// into the canonical name: "vendedor_apellidos" becomes
// "vendedor_apellido_1". The "vendedor_apellidos_1" form left behind by
// pass 2 is folded too, but only when the bare form is absent; when both
// appear in one header they must stay distinct names. The output set is
// always unique.
func NormalizeColumns(raw []string) ([]string, error) {
	if len(raw) == 0 {
		return nil, ErrNoColumns
	}

	out := uniquify(raw)

	for i, c := range out {
		out[i] = dotSuffixRe.ReplaceAllString(c, "_$1")
	}

	bare := false
	for _, c := range out {
		if c == "vendedor_apellidos" {
			bare = true
			break
		}
	}
	for i, c := range out {
		switch {
		case c == "vendedor_apellidos":
			out[i] = "vendedor_apellido_1"
		case c == "vendedor_apellidos_1" && !bare:
			out[i] = "vendedor_apellido_1"
		}
	}

	// The rename can collide with a column the export already carried under
	// the canonical name; a second pass restores uniqueness.
	return uniquify(out), nil
}

// uniquify suffixes repeated names "_1", "_2", ... in first-seen order.
// First occurrences keep their original name.
func uniquify(cols []string) []string {
	out := make([]string, len(cols))
	seen := make(map[string]int, len(cols))
	for i, c := range cols {
		if n, dup := seen[c]; dup {
			seen[c] = n + 1
			out[i] = fmt.Sprintf("%s_%d", c, n+1)
		} else {
			seen[c] = 0
			out[i] = c
		}
	}
	return out
}
