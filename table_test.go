package croc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableSetGetRemove(t *testing.T) {
	vm := NewVM(Options{})
	tbl := vm.NewTable()

	key := vm.InternString("name")
	val := vm.InternString("croc")

	require.NoError(t, tbl.Set(key, val))
	assert.Equal(t, val, tbl.Get(key))
	assert.Equal(t, 1, tbl.Len())

	tbl.Remove(key)
	assert.Equal(t, Null, tbl.Get(key))
	assert.Equal(t, 0, tbl.Len())
}

func TestTableMissingKeyReturnsNull(t *testing.T) {
	vm := NewVM(Options{})
	tbl := vm.NewTable()
	assert.Equal(t, Null, tbl.Get(Int(999)))
}

func TestTableRejectsNullAndNaNKeys(t *testing.T) {
	vm := NewVM(Options{})
	tbl := vm.NewTable()

	err := tbl.Set(Null, Int(1))
	assert.ErrorIs(t, err, ErrNullKey)

	err = tbl.Set(Float(nanValue()), Int(1))
	assert.ErrorIs(t, err, ErrNaNKey)
}

func TestTableSettingNullDeletesKey(t *testing.T) {
	vm := NewVM(Options{})
	tbl := vm.NewTable()
	key := Int(1)

	require.NoError(t, tbl.Set(key, Int(2)))
	require.NoError(t, tbl.Set(key, Null))
	assert.Equal(t, 0, tbl.Len())
}

func nanValue() float64 {
	var zero float64
	return zero / zero
}
