// Package relgraph holds the error types shared by the relgraph packages.
//
// A relgraph store keeps entity instances and the edges of their relation
// members. The schema package describes entity types and relations, the
// dao package validates and applies mutations against a store, and the
// cascade, graph, ranges and order packages implement delete closures,
// graph reads, relation ranges and ordered listing.
//
// Every failure reported by those packages can be classified with the
// Is* helpers of this package:
//
//	if relgraph.IsCascadeConflict(err) {
//		var e *relgraph.CascadeConflictError
//		errors.As(err, &e)
//		for _, c := range e.Conflicts {
//			log.Println(c)
//		}
//	}
package relgraph
