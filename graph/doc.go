// Package graph collects the instance graph around a set of root instances.
//
// # Expansion
//
// Roots and their containment descendants are expanded: the collector
// reads their containments, their outgoing references (association and
// aggregation members, including the ends of two-way relations) and their
// back-references (incoming association and aggregation edges). Instances
// reached only through a reference or back-reference are shallow nodes:
// their identifier, type and attributes are known but their edges are not
// read.
//
// # Representation
//
// The graph is an arena of nodes indexed by instance identifier. Edges are
// links holding the relation member and the index of the target node, so
// cycles and diamonds of references need no special handling and every
// instance is materialized exactly once:
//
//	g, err := graph.NewCollector(s).Collect(ctx, tx, s.MustType("Car"), carID)
//	if err != nil {
//		return err
//	}
//	for _, root := range g.Roots() {
//		for _, l := range root.Containments {
//			fmt.Println(l.Member.Name, g.Target(l).ID)
//		}
//	}
//
// Back-references carry the member that holds the edge, which is owned by
// the type of the link target. For a two-way relation the same edge shows
// up as a reference on one side and as a back-reference on the other.
package graph
