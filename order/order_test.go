package order_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/syssam/relgraph/order"
)

func row(id string, kv ...any) order.Row {
	r := order.Row{ID: id, Values: make(map[string]any)}
	for i := 0; i < len(kv); i += 2 {
		r.Values[kv[i].(string)] = kv[i+1]
	}
	return r
}

func ids(rows []order.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.ID
	}
	return out
}

func TestNullPlacement(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tests := []struct {
		name string
		rows []order.Row
		asc  []string
		desc []string
	}{
		{
			name: "bool",
			rows: []order.Row{row("a", "v", nil), row("b", "v", true), row("c", "v", false), row("d")},
			asc:  []string{"c", "b", "a", "d"},
			desc: []string{"a", "d", "b", "c"},
		},
		{
			name: "time",
			rows: []order.Row{row("a", "v", t0.Add(time.Hour)), row("b", "v", nil), row("c", "v", t0)},
			asc:  []string{"c", "a", "b"},
			desc: []string{"b", "a", "c"},
		},
		{
			name: "nil pointer",
			rows: []order.Row{row("a", "v", (*int)(nil)), row("b", "v", 3), row("c", "v", 1.5)},
			asc:  []string{"c", "b", "a"},
			desc: []string{"a", "b", "c"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows := append([]order.Row(nil), tt.rows...)
			order.Sort(rows, order.Spec{order.Asc("v")})
			assert.Equal(t, tt.asc, ids(rows))
			order.Sort(rows, order.Spec{order.Desc("v")})
			assert.Equal(t, tt.desc, ids(rows))
		})
	}
}

func TestCompareValues(t *testing.T) {
	spec := order.Spec{order.Asc("v")}
	x := 7
	tests := []struct {
		a, b any
		want int
	}{
		{a: int64(2), b: 10, want: -1},
		{a: uint8(3), b: 2.5, want: 1},
		{a: int64(1) << 62, b: int64(1)<<62 + 1, want: -1},
		{a: &x, b: 7, want: -1}, // Equal values fall back to the identifier.
		{a: "b", b: "a", want: 1},
		{a: true, b: 0, want: -1},
		{a: 1, b: "1", want: -1},
		{a: "z", b: time.Time{}, want: -1},
	}
	for i, tt := range tests {
		t.Run(fmt.Sprint(i), func(t *testing.T) {
			got := order.Compare(row("1", "v", tt.a), row("2", "v", tt.b), spec)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, -tt.want, order.Compare(row("2", "v", tt.b), row("1", "v", tt.a), spec))
		})
	}
	assert.Zero(t, order.Compare(row("1", "v", 1), row("1", "v", 1), spec))
}

func TestCompositeKeys(t *testing.T) {
	rows := []order.Row{
		row("1", "make", "vw", "model", "polo"),
		row("2", "make", "audi", "model", "a4"),
		row("3", "make", "vw", "model", "golf"),
		row("4", "make", "audi", "model", "a3"),
	}
	byParts := append([]order.Row(nil), rows...)
	order.Sort(byParts, order.Spec{order.Asc("make"), order.Asc("model")})
	byLabel := append([]order.Row(nil), rows...)
	for i, r := range byLabel {
		byLabel[i] = row(r.ID, "label", fmt.Sprintf("%s/%s", r.Values["make"], r.Values["model"]))
	}
	order.Sort(byLabel, order.Spec{order.Asc("label")})
	assert.Equal(t, ids(byParts), ids(byLabel))
	assert.Equal(t, []string{"4", "2", "3", "1"}, ids(byParts))

	order.Sort(byParts, order.Spec{order.Desc("make"), order.Asc("model")})
	assert.Equal(t, []string{"3", "1", "4", "2"}, ids(byParts))
}

func TestSeekExhaustive(t *testing.T) {
	rows := []order.Row{row("d", "v", nil), row("c", "v", true), row("b", "v", false), row("a", "v", nil)}
	spec := order.Spec{order.Asc("v")}
	want := []string{"b", "c", "a", "d"}

	first := order.Seek(rows, spec, nil, 2, false)
	require.True(t, first.HasMore)
	assert.Equal(t, want[:2], ids(first.Rows))
	last := first.Rows[len(first.Rows)-1]
	second := order.Seek(rows, spec, &last, 2, false)
	assert.False(t, second.HasMore)
	assert.Equal(t, want[2:], ids(second.Rows))
	last = second.Rows[len(second.Rows)-1]
	assert.Empty(t, order.Seek(rows, spec, &last, 2, false).Rows)

	t.Run("Reverse", func(t *testing.T) {
		var got []string
		var after *order.Row
		for {
			p := order.Seek(rows, spec, after, 1, true)
			got = append(got, ids(p.Rows)...)
			if !p.HasMore {
				break
			}
			after = &p.Rows[len(p.Rows)-1]
		}
		assert.Equal(t, []string{"d", "a", "c", "b"}, got)
	})
}

func TestSeekDuplicates(t *testing.T) {
	var rows []order.Row
	for i := range 25 {
		rows = append(rows, row(fmt.Sprintf("r%02d", i), "v", i%3))
	}
	spec := order.Spec{order.Desc("v")}
	all := order.Seek(rows, spec, nil, 0, false).Rows
	require.Len(t, all, 25)

	for _, limit := range []int{1, 2, 4, 7, 25} {
		var got []order.Row
		var after *order.Row
		for {
			p := order.Seek(rows, spec, after, limit, false)
			assert.LessOrEqual(t, len(p.Rows), limit)
			got = append(got, p.Rows...)
			if !p.HasMore {
				break
			}
			after = &p.Rows[len(p.Rows)-1]
		}
		assert.Equal(t, ids(all), ids(got), "limit %d", limit)
	}
}

func TestSeekAfterRemovedRow(t *testing.T) {
	rows := []order.Row{row("a", "n", 1), row("c", "n", 3), row("d", "n", 4)}
	gone := row("b", "n", 2)
	p := order.Seek(rows, order.Spec{order.Asc("n")}, &gone, 10, false)
	assert.Equal(t, []string{"c", "d"}, ids(p.Rows))
}

func TestHeads(t *testing.T) {
	rows := []order.Row{row("z", "score", 3), row("a", "score", 9), row("m", "score", 9), row("b", "score", 1)}
	spec := order.Spec{order.Desc("score")}
	h, ok := order.Head(rows, spec)
	require.True(t, ok)
	assert.Equal(t, "a", h.ID)

	// Ties keep input order, not identifier order.
	rows[1], rows[2] = rows[2], rows[1]
	h, _ = order.Head(rows, spec)
	assert.Equal(t, "m", h.ID)
	assert.Equal(t, []string{"m", "a", "z"}, ids(order.Heads(rows, spec, 3)))
	assert.Len(t, order.Heads(rows, spec, 10), 4)
	assert.Nil(t, order.Heads(rows, spec, 0))
	_, ok = order.Head(nil, spec)
	assert.False(t, ok)
}

func TestCollation(t *testing.T) {
	rows := []order.Row{row("1", "name", "Zoë"), row("2", "name", "zebra"), row("3", "name", "Émile"), row("4", "name", "eve")}
	spec := order.Spec{order.Asc("name")}
	plain := append([]order.Row(nil), rows...)
	order.Sort(plain, spec)
	assert.Equal(t, []string{"1", "4", "2", "3"}, ids(plain))

	collated := append([]order.Row(nil), rows...)
	order.Sort(collated, spec, order.WithCollation(language.English))
	assert.Equal(t, []string{"3", "4", "2", "1"}, ids(collated))
}

func TestParseKey(t *testing.T) {
	k, err := order.ParseKey("-built")
	require.NoError(t, err)
	assert.Equal(t, order.Desc("built"), k)
	k, err = order.ParseKey("+name")
	require.NoError(t, err)
	assert.Equal(t, order.Asc("name"), k)
	assert.Equal(t, "-built", order.Desc("built").String())
	_, err = order.ParseKey("-")
	assert.Error(t, err)
}
