package store

import (
	"fmt"

	"github.com/syssam/relgraph"
)

func isNotFound(err error) bool { return relgraph.IsNotFound(err) }

// NotFound returns the error reported for a missing instance.
func NotFound(id string) error {
	return relgraph.NewNotFoundErrorWithID("entity", id)
}

// DuplicateEdge returns the error reported for an edge that already exists.
func DuplicateEdge(m fmt.Stringer, from, to string) error {
	return relgraph.NewConstraintError(fmt.Sprintf("%s: duplicate edge %s -> %s", m, from, to), nil)
}
