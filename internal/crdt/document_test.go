package crdt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy(name string) Policy {
	if name == "r" {
		return PolicyMax
	}
	return PolicyLWW
}

type fieldSpec struct {
	key, name, value string
	seqno            int64
}

func buildDoc(fields ...fieldSpec) *Document {
	d := NewDocument()
	for _, f := range fields {
		d.Set(f.key, f.name, []byte(f.value), f.seqno)
	}
	return d
}

func TestField_Wins(t *testing.T) {
	tests := []struct {
		name   string
		a, b   Field
		policy Policy
		want   bool
	}{
		{
			name:   "lww higher seqno wins",
			a:      Field{Seqno: 2, Value: []byte("a")},
			b:      Field{Seqno: 1, Value: []byte("z")},
			policy: PolicyLWW,
			want:   true,
		},
		{
			name:   "lww tie broken by bytes",
			a:      Field{Seqno: 1, Value: []byte("b")},
			b:      Field{Seqno: 1, Value: []byte("a")},
			policy: PolicyLWW,
			want:   true,
		},
		{
			name:   "lww equal does not win",
			a:      Field{Seqno: 1, Value: []byte("a")},
			b:      Field{Seqno: 1, Value: []byte("a")},
			policy: PolicyLWW,
			want:   false,
		},
		{
			name:   "max ignores seqno",
			a:      Field{Seqno: 1, Value: []byte{0, 9}},
			b:      Field{Seqno: 5, Value: []byte{0, 3}},
			policy: PolicyMax,
			want:   true,
		},
		{
			name:   "max tie broken by seqno",
			a:      Field{Seqno: 2, Value: []byte{1}},
			b:      Field{Seqno: 1, Value: []byte{1}},
			policy: PolicyMax,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Wins(tt.b, tt.policy))
			if tt.want {
				assert.False(t, tt.b.Wins(tt.a, tt.policy), "Wins should be antisymmetric")
			}
		})
	}
}

func TestDocument_Set(t *testing.T) {
	d := NewDocument()

	assert.True(t, d.Set("k", "n", []byte("Alice"), 1))
	assert.False(t, d.Set("k", "n", []byte("Alice"), 2), "Same value should not be rewritten")

	f, ok := d.Field("k", "n")
	require.True(t, ok)
	assert.Equal(t, int64(1), f.Seqno)

	assert.True(t, d.Set("k", "n", []byte("Bob"), 2))
	f, _ = d.Field("k", "n")
	assert.Equal(t, "Bob", string(f.Value))
	assert.Equal(t, 1, d.Len())
}

func TestDocument_Merge_Commutative(t *testing.T) {
	a := buildDoc(
		fieldSpec{"c1", "n", "Alice", 1},
		fieldSpec{"c1", "a", "\x01", 1},
		fieldSpec{"c2", "n", "Carol", 3},
		fieldSpec{"v", "r", "\x00\x05", 1},
	)
	b := buildDoc(
		fieldSpec{"c1", "n", "Alicia", 1},
		fieldSpec{"c1", "b", "\x01", 2},
		fieldSpec{"c3", "n", "Dave", 2},
		fieldSpec{"v", "r", "\x00\x09", 1},
	)
	a.SetUnknown([]byte("x"))
	b.SetUnknown([]byte("y"))

	ab := a.Clone()
	ab.Merge(b, testPolicy)
	ba := b.Clone()
	ba.Merge(a, testPolicy)

	assert.True(t, ab.Equal(ba), "Merge should be commutative")
	assert.Equal(t, []string{"c1", "c2", "c3", "v"}, ab.Keys())

	f, _ := ab.Field("c1", "n")
	assert.Equal(t, "Alicia", string(f.Value), "Tie should be resolved by bytes")
	f, _ = ab.Field("v", "r")
	assert.Equal(t, []byte{0, 9}, f.Value)
	assert.Equal(t, []byte("y"), ab.Unknown())
}

func TestDocument_Merge_AssociativeIdempotent(t *testing.T) {
	a := buildDoc(fieldSpec{"k", "n", "one", 1}, fieldSpec{"k", "+", "\x01", 4})
	b := buildDoc(fieldSpec{"k", "n", "two", 2})
	c := buildDoc(fieldSpec{"k", "n", "three", 2}, fieldSpec{"j", "n", "x", 1})

	left := a.Clone()
	left.Merge(b, nil)
	left.Merge(c, nil)

	bc := b.Clone()
	bc.Merge(c, nil)
	right := a.Clone()
	right.Merge(bc, nil)

	assert.True(t, left.Equal(right), "Merge should be associative")

	again := left.Clone()
	changed := again.Merge(left, nil)
	assert.Empty(t, changed, "Merging with itself should not change anything")
	assert.True(t, again.Equal(left))

	changed = again.Merge(b, nil)
	assert.Empty(t, changed, "Merging an already merged input should not change anything")
}

func TestDocument_Merge_ChangedKeys(t *testing.T) {
	local := buildDoc(fieldSpec{"a", "n", "x", 5}, fieldSpec{"b", "n", "y", 1})
	remote := buildDoc(fieldSpec{"a", "n", "old", 2}, fieldSpec{"b", "n", "z", 2}, fieldSpec{"c", "n", "w", 1})

	changed := local.Merge(remote, nil)
	assert.Equal(t, []string{"b", "c"}, changed)
}

func TestDocument_Contributes(t *testing.T) {
	local := buildDoc(fieldSpec{"a", "n", "x", 5})
	stale := buildDoc(fieldSpec{"a", "n", "old", 2})
	fresh := buildDoc(fieldSpec{"b", "n", "y", 1})

	local.Merge(stale, nil)
	local.Merge(fresh, nil)

	assert.False(t, local.Contributes(stale))
	assert.True(t, local.Contributes(fresh))
}

func TestDocument_CloneIsDeep(t *testing.T) {
	d := buildDoc(fieldSpec{"a", "n", "x", 1})
	clone := d.Clone()
	clone.Set("a", "n", []byte("y"), 2)
	clone.Delete("a")

	f, ok := d.Field("a", "n")
	require.True(t, ok)
	assert.Equal(t, "x", string(f.Value))
	assert.False(t, d.Equal(clone))
}
