package croc

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNamespaceLookupWalksParentChain(t *testing.T) {
	vm := NewVM(Options{})
	root := vm.NewNamespace("root", nil)
	child := vm.NewNamespace("child", root)

	root.SetLocal("x", Int(1))
	child.SetLocal("y", Int(2))

	v, ok := child.Lookup("x")
	assert.True(t, ok)
	assert.Equal(t, Int(1), v)

	v, ok = child.Lookup("y")
	assert.True(t, ok)
	assert.Equal(t, Int(2), v)

	_, ok = root.Lookup("y")
	assert.False(t, ok)
}

func TestNamespaceGetLocalIgnoresParent(t *testing.T) {
	vm := NewVM(Options{})
	root := vm.NewNamespace("root", nil)
	child := vm.NewNamespace("child", root)
	root.SetLocal("x", Int(1))

	_, ok := child.GetLocal("x")
	assert.False(t, ok)
}
