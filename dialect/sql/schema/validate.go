package schema

import (
	"fmt"
	"slices"
	"strings"
)

// ValidationError describes a problem found in a layout or a diff.
type ValidationError struct {
	Table   string
	Column  string
	Message string
	// Breaking is set for changes that lose data.
	Breaking bool
}

func (e *ValidationError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("%s.%s: %s", e.Table, e.Column, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Table, e.Message)
}

// ValidationResult holds the results of a validation.
type ValidationResult struct {
	Errors   []*ValidationError
	Warnings []*ValidationError
}

// HasErrors returns true if there are any validation errors.
func (r *ValidationResult) HasErrors() bool {
	return len(r.Errors) > 0
}

// HasWarnings returns true if there are any validation warnings.
func (r *ValidationResult) HasWarnings() bool {
	return len(r.Warnings) > 0
}

// HasBreakingChanges returns true if any reported change is breaking.
func (r *ValidationResult) HasBreakingChanges() bool {
	return slices.ContainsFunc(r.Errors, isBreaking) || slices.ContainsFunc(r.Warnings, isBreaking)
}

func isBreaking(e *ValidationError) bool { return e.Breaking }

// String returns a human-readable summary of the validation result.
func (r *ValidationResult) String() string {
	var sb strings.Builder
	write := func(title string, errs []*ValidationError) {
		if len(errs) == 0 {
			return
		}
		sb.WriteString(title)
		sb.WriteString(":\n")
		for _, e := range errs {
			sb.WriteString("  - ")
			sb.WriteString(e.Error())
			if e.Breaking {
				sb.WriteString(" [BREAKING]")
			}
			sb.WriteString("\n")
		}
	}
	write("Errors", r.Errors)
	write("Warnings", r.Warnings)
	if !r.HasErrors() && !r.HasWarnings() {
		sb.WriteString("No issues found")
	}
	return sb.String()
}

// report adds e as a warning if allowed, as an error otherwise.
func (r *ValidationResult) report(e *ValidationError, allowed bool) {
	if allowed {
		r.Warnings = append(r.Warnings, e)
	} else {
		r.Errors = append(r.Errors, e)
	}
}

// ValidateOption configures diff validation.
type ValidateOption func(*validateConfig)

type validateConfig struct {
	allowDropColumn bool
	allowDropTable  bool
	allowDropIndex  bool
	ignore          func(table string) bool
}

// AllowDropColumn allows dropping columns without error.
func AllowDropColumn() ValidateOption {
	return func(c *validateConfig) { c.allowDropColumn = true }
}

// AllowDropTable allows dropping tables without error. Tables of entity
// types removed from the schema are dropped together with their instances.
func AllowDropTable() ValidateOption {
	return func(c *validateConfig) { c.allowDropTable = true }
}

// AllowDropIndex allows dropping indexes without error.
func AllowDropIndex() ValidateOption {
	return func(c *validateConfig) { c.allowDropIndex = true }
}

// IgnoreTables excludes existing tables that match fn from the diff
// validation, e.g. tables owned by other applications.
func IgnoreTables(fn func(table string) bool) ValidateOption {
	return func(c *validateConfig) { c.ignore = fn }
}

// String returns the column type name.
func (t ColumnType) String() string {
	switch t {
	case TypeString:
		return "string"
	case TypeBytes:
		return "bytes"
	case TypeInt:
		return "int"
	default:
		return "unknown"
	}
}

// ValidateDiff validates the difference between the current and the
// desired layout. Data losing changes are errors unless allowed.
func ValidateDiff(current, desired []*Table, opts ...ValidateOption) *ValidationResult {
	cfg := &validateConfig{}
	for _, opt := range opts {
		opt(cfg)
	}
	result := &ValidationResult{}
	want := make(map[string]*Table, len(desired))
	for _, t := range desired {
		want[t.Name] = t
	}
	for _, cur := range current {
		if cfg.ignore != nil && cfg.ignore(cur.Name) {
			continue
		}
		next, ok := want[cur.Name]
		if !ok {
			result.report(&ValidationError{Table: cur.Name, Message: "table will be dropped", Breaking: true}, cfg.allowDropTable)
			continue
		}
		validateTableDiff(cur, next, cfg, result)
	}
	return result
}

func validateTableDiff(current, desired *Table, cfg *validateConfig, result *ValidationResult) {
	for _, c := range current.Columns {
		if _, ok := desired.Column(c.Name); !ok {
			result.report(&ValidationError{Table: current.Name, Column: c.Name, Message: "column will be dropped", Breaking: true}, cfg.allowDropColumn)
		}
	}
	for _, want := range desired.Columns {
		have, ok := current.Column(want.Name)
		if !ok {
			if !want.Nullable && want.Default == nil {
				result.Warnings = append(result.Warnings, &ValidationError{
					Table:   current.Name,
					Column:  want.Name,
					Message: "new NOT NULL column without default value may fail if table has data",
				})
			}
			continue
		}
		if have.Type != 0 && have.Type != want.Type {
			result.Errors = append(result.Errors, &ValidationError{
				Table:    current.Name,
				Column:   want.Name,
				Message:  fmt.Sprintf("column type changing from %s to %s", have.Type, want.Type),
				Breaking: true,
			})
		}
		if have.Nullable && !want.Nullable {
			result.Errors = append(result.Errors, &ValidationError{
				Table:    current.Name,
				Column:   want.Name,
				Message:  "column changing from NULL to NOT NULL may fail if column has NULL values",
				Breaking: true,
			})
		}
		if have.Size > 0 && want.Size > 0 && want.Size < have.Size {
			result.Warnings = append(result.Warnings, &ValidationError{
				Table:   current.Name,
				Column:  want.Name,
				Message: fmt.Sprintf("column size reducing from %d to %d may truncate data", have.Size, want.Size),
			})
		}
	}
	for _, idx := range current.Indexes {
		if !slices.ContainsFunc(desired.Indexes, func(i *Index) bool { return i.Name == idx.Name }) {
			result.report(&ValidationError{Table: current.Name, Message: fmt.Sprintf("index %q will be dropped", idx.Name)}, cfg.allowDropIndex)
		}
	}
}

// ValidateTable validates a single table definition.
func ValidateTable(t *Table) *ValidationResult {
	result := &ValidationResult{}
	if len(t.PrimaryKey) == 0 {
		result.Warnings = append(result.Warnings, &ValidationError{Table: t.Name, Message: "table has no primary key"})
	}
	cols := make(map[string]bool)
	for _, c := range t.Columns {
		if cols[c.Name] {
			result.Errors = append(result.Errors, &ValidationError{Table: t.Name, Column: c.Name, Message: "duplicate column name"})
		}
		cols[c.Name] = true
	}
	idxs := make(map[string]bool)
	for _, idx := range t.Indexes {
		if idxs[idx.Name] {
			result.Errors = append(result.Errors, &ValidationError{Table: t.Name, Message: fmt.Sprintf("duplicate index name: %s", idx.Name)})
		}
		idxs[idx.Name] = true
		for _, c := range idx.Columns {
			if c != nil && !cols[c.Name] {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Message: fmt.Sprintf("index %q references non-existent column %q", idx.Name, c.Name),
				})
			}
		}
	}
	for _, fk := range t.ForeignKeys {
		for _, c := range fk.Columns {
			if !cols[c.Name] {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Message: fmt.Sprintf("foreign key references non-existent column %q", c.Name),
				})
			}
		}
	}
	return result
}

// ValidateSchema validates a whole layout. Entity and edge tables share
// one namespace, so name clashes between them are reported here.
func ValidateSchema(tables []*Table) *ValidationResult {
	result := &ValidationResult{}
	names := make(map[string]bool)
	for _, t := range tables {
		if names[t.Name] {
			result.Errors = append(result.Errors, &ValidationError{Table: t.Name, Message: "duplicate table name"})
		}
		names[t.Name] = true
		r := ValidateTable(t)
		result.Errors = append(result.Errors, r.Errors...)
		result.Warnings = append(result.Warnings, r.Warnings...)
	}
	for _, t := range tables {
		for _, fk := range t.ForeignKeys {
			if !names[fk.RefTable.Name] {
				result.Errors = append(result.Errors, &ValidationError{
					Table:   t.Name,
					Message: fmt.Sprintf("foreign key references non-existent table %q", fk.RefTable.Name),
				})
			}
		}
	}
	return result
}
