package field_test

import (
	"testing"
	"time"

	"github.com/syssam/relgraph/expr"
	"github.com/syssam/relgraph/schema/field"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuilders(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		build    func() *field.Descriptor
		validate func(t *testing.T, desc *field.Descriptor)
	}{
		{
			name:  "string",
			build: func() *field.Descriptor { return field.String("name").Descriptor() },
			validate: func(t *testing.T, desc *field.Descriptor) {
				assert.Equal(t, "name", desc.Name)
				assert.Equal(t, field.TypeString, desc.Type)
				assert.False(t, desc.Optional)
				assert.NoError(t, desc.Err)
			},
		},
		{
			name:  "optional_time",
			build: func() *field.Descriptor { return field.Time("retired_at").Optional().Descriptor() },
			validate: func(t *testing.T, desc *field.Descriptor) {
				assert.Equal(t, field.TypeTime, desc.Type)
				assert.True(t, desc.Optional)
			},
		},
		{
			name: "derived",
			build: func() *field.Descriptor {
				return field.Derived("label", field.TypeString, func(expr.Context) (any, error) { return "x", nil }).Descriptor()
			},
			validate: func(t *testing.T, desc *field.Descriptor) {
				assert.NotNil(t, desc.Derived)
				assert.True(t, desc.Optional)
				assert.NoError(t, desc.Err)
			},
		},
		{
			name:  "derived_without_expression",
			build: func() *field.Descriptor { return field.Derived("label", field.TypeString, nil).Descriptor() },
			validate: func(t *testing.T, desc *field.Descriptor) {
				assert.Error(t, desc.Err)
			},
		},
		{
			name:  "missing_name",
			build: func() *field.Descriptor { return field.Int("").Descriptor() },
			validate: func(t *testing.T, desc *field.Descriptor) {
				assert.Error(t, desc.Err)
			},
		},
		{
			name:  "invalid_type",
			build: func() *field.Descriptor { return field.New("x", field.TypeInvalid).Descriptor() },
			validate: func(t *testing.T, desc *field.Descriptor) {
				assert.Error(t, desc.Err)
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			tt.validate(t, tt.build())
		})
	}
}

func TestParseType(t *testing.T) {
	t.Parallel()
	for _, typ := range []field.Type{field.TypeString, field.TypeInt, field.TypeFloat, field.TypeBool, field.TypeTime} {
		got, err := field.ParseType(typ.String())
		require.NoError(t, err)
		assert.Equal(t, typ, got)
	}
	_, err := field.ParseType("decimal")
	assert.Error(t, err)
	_, err = field.ParseType("invalid")
	assert.Error(t, err)
}

func TestCoerce(t *testing.T) {
	t.Parallel()
	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.FixedZone("x", 3600))

	tests := []struct {
		typ     field.Type
		in      any
		want    any
		wantErr bool
	}{
		{typ: field.TypeString, in: "a", want: "a"},
		{typ: field.TypeString, in: []byte("b"), want: "b"},
		{typ: field.TypeString, in: 1, wantErr: true},
		{typ: field.TypeInt, in: 3, want: int64(3)},
		{typ: field.TypeInt, in: int8(-3), want: int64(-3)},
		{typ: field.TypeInt, in: uint64(7), want: int64(7)},
		{typ: field.TypeInt, in: 2.0, want: int64(2)},
		{typ: field.TypeInt, in: 2.5, wantErr: true},
		{typ: field.TypeFloat, in: 2, want: 2.0},
		{typ: field.TypeFloat, in: float32(1.5), want: 1.5},
		{typ: field.TypeBool, in: true, want: true},
		{typ: field.TypeBool, in: "true", wantErr: true},
		{typ: field.TypeTime, in: ts, want: ts.UTC()},
		{typ: field.TypeTime, in: "2024-03-01T11:00:00Z", want: ts.UTC()},
		{typ: field.TypeTime, in: "yesterday", wantErr: true},
		{typ: field.TypeInt, in: nil, want: nil},
	}
	for _, tt := range tests {
		got, err := tt.typ.Coerce(tt.in)
		if tt.wantErr {
			assert.Error(t, err, "%s(%v)", tt.typ, tt.in)
			continue
		}
		require.NoError(t, err, "%s(%v)", tt.typ, tt.in)
		assert.Equal(t, tt.want, got)
	}
}
