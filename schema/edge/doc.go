// Package edge provides fluent builders for defining relation members.
//
// # Relation Kinds
//
// There are three kinds of relation members:
//
//   - edge.Contains: an owning relation. The target is part of the owner's
//     lifecycle and is deleted with it.
//   - edge.To: an association between independently-lifecycled instances.
//   - edge.Aggregates: an aggregation, a non-owning "has" relation.
//
// # Cardinality
//
// Every member carries [lower, upper] bounds. The default is 0..* (upper
// Unbounded). Shortcuts exist for the common cases:
//
//	edge.To("owner", "Person").Required().Unique() // 1..1
//	edge.Contains("wheels", "Wheel").Bounds(0, 5)  // 0..5
//
// # Two-Way Relations
//
// A two-way relation is declared by both ends naming each other with Ref:
//
//	// Car
//	edge.To("driver", "Person").Unique().Ref("cars")
//	// Person
//	edge.To("cars", "Car").Ref("driver")
//
// The schema builder joins the two ends into one relation pair, so an edge
// added through either end is visible from the other one.
//
// # Reverse Cascade Delete
//
// ReverseCascadeDelete marks that deleting the target of this member also
// deletes the owner of this member:
//
//	// Deleting the Car deletes its Registration.
//	edge.To("car", "Car").Required().Unique().Ref("registration").ReverseCascadeDelete()
//
// # Ranges
//
// Range restricts the instances that can be assigned to the member. A range
// may depend on the owner, including data supplied in the same create call:
//
//	edge.To("spare_wheel", "Wheel").Unique().RangeSelf(expr.SelfRelated("wheels"))
package edge
