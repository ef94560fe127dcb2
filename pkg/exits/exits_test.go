package exits_test

import (
	"testing"

	"github.com/brickingsoft/iocp/pkg/exits"
	"github.com/stretchr/testify/assert"
)

func TestRegistry_Run(t *testing.T) {
	r := exits.Registry{}
	var order []int
	r.Register(func() { order = append(order, 1) })
	id := r.Register(func() { order = append(order, 2) })
	r.Register(func() { order = append(order, 3) })
	assert.True(t, r.Unregister(id))
	assert.False(t, r.Unregister(id))

	r.Run()
	r.Run()
	assert.Equal(t, []int{3, 1}, order)
	assert.True(t, r.Ran())

	late := false
	r.Register(func() { late = true })
	assert.True(t, late, "handlers registered after Run execute immediately")
}
