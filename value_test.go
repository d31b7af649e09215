package croc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValueFalsy(t *testing.T) {
	assert.True(t, Null.IsFalsy())
	assert.True(t, False.IsFalsy())
	assert.True(t, Int(0).IsFalsy())
	assert.True(t, Float(0).IsFalsy())
	assert.True(t, Float(0).IsFalsy()) // +0.0
	assert.True(t, Value{Type: TypeFloat, num: 1 << 63}.IsFalsy()) // -0.0

	assert.True(t, True.IsTruthy())
	assert.True(t, Int(1).IsTruthy())
	assert.True(t, Int(-1).IsTruthy())
	assert.True(t, Float(0.5).IsTruthy())
}

func TestValueEqualsByTypeAndPayload(t *testing.T) {
	assert.True(t, Int(5).Equals(Int(5)))
	assert.False(t, Int(5).Equals(Float(5)))
	assert.False(t, Int(5).Equals(Int(6)))
	assert.True(t, Null.Equals(Null))
	assert.True(t, True.Equals(True))
	assert.False(t, True.Equals(False))
}

func TestInternedStringEquality(t *testing.T) {
	vm := NewVM(Options{})
	a := vm.InternString("hello")
	b := vm.InternString("hello")
	c := vm.InternString("world")

	require.Same(t, a.refObject(), b.refObject())
	assert.True(t, a.Equals(b))
	assert.False(t, a.Equals(c))
}

func TestHashStableForEqualValues(t *testing.T) {
	vm := NewVM(Options{})
	a := vm.InternString("key")
	b := vm.InternString("key")
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Equal(t, Int(42).Hash(), Int(42).Hash())
}
