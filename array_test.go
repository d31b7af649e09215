package croc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArrayGetSetNegativeIndex(t *testing.T) {
	vm := NewVM(Options{})
	arr := vm.NewArray(3)

	require.NoError(t, arr.Set(0, Int(10)))
	require.NoError(t, arr.Set(-1, Int(30)))

	v, err := arr.Get(-1)
	require.NoError(t, err)
	assert.Equal(t, Int(30), v)

	v, err = arr.Get(2)
	require.NoError(t, err)
	assert.Equal(t, Int(30), v)
}

func TestArrayOutOfBounds(t *testing.T) {
	vm := NewVM(Options{})
	arr := vm.NewArray(2)

	_, err := arr.Get(5)
	assert.ErrorIs(t, err, ErrArrayBounds)

	err = arr.Set(-10, Int(1))
	assert.ErrorIs(t, err, ErrArrayBounds)
}

func TestArrayAppendGrows(t *testing.T) {
	vm := NewVM(Options{})
	arr := vm.NewArray(0)
	arr.Append(Int(1))
	arr.Append(Int(2))
	assert.Equal(t, 2, arr.Len())
	v, _ := arr.Get(1)
	assert.Equal(t, Int(2), v)
}

func TestArraySlice(t *testing.T) {
	vm := NewVM(Options{})
	arr := vm.NewArray(5)
	for i := int64(0); i < 5; i++ {
		require.NoError(t, arr.Set(i, Int(i)))
	}
	sliced, err := arr.Slice(1, 4)
	require.NoError(t, err)
	assert.Equal(t, 3, sliced.Len())
	v, _ := sliced.Get(0)
	assert.Equal(t, Int(1), v)
}
