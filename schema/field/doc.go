// Package field provides fluent builders for defining entity attributes.
//
// # Attribute Types
//
// The package supports the scalar types the engine can store and order:
//
//	field.String("name")
//	field.Int("doors")
//	field.Float("weight")
//	field.Bool("active")
//	field.Time("registered_at")
//
// Values are coerced to a canonical Go representation when written:
// string, int64, float64, bool and time.Time.
//
// # Optional Attributes
//
// Stored attributes are required on create unless marked Optional. A missing
// optional attribute is read back as null and ordered accordingly.
//
//	field.Time("retired_at").Optional()
//
// # Derived Attributes
//
// A derived attribute is computed by a compiled expression over the owning
// instance and is never stored. It can be used as an ordering key:
//
//	field.Derived("full_name", field.TypeString, fullNameExpr)
package field
