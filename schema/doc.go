// Package schema provides the read-only entity/relation model consumed by
// the engine.
//
// A Schema is compiled once per version by a Builder and is immutable
// afterwards, so it can be shared by concurrent transactions.
//
// # Defining a Schema
//
//	s, err := schema.NewBuilder(1).
//		Entity("Car",
//			schema.Fields(field.String("name")),
//			schema.Edges(
//				edge.Contains("wheels", "Wheel").Bounds(0, 5),
//				edge.To("spare_wheel", "Wheel").Unique().RangeSelf(expr.SelfRelated("wheels")),
//			),
//		).
//		Entity("Wheel", schema.Fields(field.Int("position"))).
//		Build()
//
// # Generalization
//
// Entity types may extend one or more supertypes with Extends. Attributes
// and members are inherited; the generalization graph must be acyclic.
//
// # Two-Way Relations
//
// Members naming each other with edge.Builder.Ref are joined into a
// RelationPair. Partner is derived from the pair, so m.Partner().Partner()
// is always m. Edges of a pair are stored once, under the canonical end
// (see RelationMember.Storage).
//
// # Validation
//
// Build reports unknown types, duplicate names, generalization cycles,
// invalid bounds and partner mismatches as relgraph.ValidationError values.
package schema
