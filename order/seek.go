package order

import "slices"

// Page is a window of ordered rows.
type Page struct {
	Rows []Row
	// HasMore is set when rows follow the page in the requested direction.
	HasMore bool
}

// Seek returns at most limit rows that follow after in the requested
// order; a nil after starts at the beginning. With reverse set, rows are
// walked from the end of the order and returned in that reversed order.
// A non-positive limit returns every remaining row. rows is not modified.
func (c *Comparer) Seek(rows []Row, after *Row, limit int, reverse bool) Page {
	sorted := slices.Clone(rows)
	c.Sort(sorted)
	if reverse {
		slices.Reverse(sorted)
	}
	start := 0
	if after != nil {
		start = len(sorted)
		for i, r := range sorted {
			d := c.Compare(r, *after)
			if reverse {
				d = -d
			}
			if d > 0 {
				start = i
				break
			}
		}
	}
	rest := sorted[start:]
	if limit <= 0 || limit >= len(rest) {
		return Page{Rows: rest}
	}
	return Page{Rows: rest[:limit:limit], HasMore: true}
}

// Seek is like Comparer.Seek with a comparer for spec.
func Seek(rows []Row, spec Spec, after *Row, limit int, reverse bool) Page {
	return New(spec).Seek(rows, after, limit, reverse)
}

// Heads returns the first n rows in order. Rows that tie on every key keep
// their input order, so among equal rows the earliest one wins; the
// identifier is not used.
func (c *Comparer) Heads(rows []Row, n int) []Row {
	if n <= 0 || len(rows) == 0 {
		return nil
	}
	sorted := slices.Clone(rows)
	slices.SortStableFunc(sorted, c.compareKeys)
	if n > len(sorted) {
		n = len(sorted)
	}
	return sorted[:n:n]
}

// Head returns the first row in order. See Heads for ties.
func (c *Comparer) Head(rows []Row) (Row, bool) {
	h := c.Heads(rows, 1)
	if len(h) == 0 {
		return Row{}, false
	}
	return h[0], true
}

// Heads is like Comparer.Heads with a comparer for spec.
func Heads(rows []Row, spec Spec, n int) []Row {
	return New(spec).Heads(rows, n)
}

// Head is like Comparer.Head with a comparer for spec.
func Head(rows []Row, spec Spec) (Row, bool) {
	return New(spec).Head(rows)
}
