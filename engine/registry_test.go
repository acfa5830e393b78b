package engine

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/rigado/rfcomm"
	"github.com/rigado/rfcomm/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	accept := func(session.Request) (session.Acceptance, bool) { return session.Acceptance{}, false }
	r := NewRegistry()

	for _, ch := range []uint8{0, 31, 0xff} {
		err := r.Register(ch, accept)
		assert.Equal(t, rfcomm.ErrInvalidChannel, errors.Cause(err), "channel %d", ch)
	}
	assert.Error(t, r.Register(5, nil))

	require.NoError(t, r.Register(30, accept))
	require.NoError(t, r.Register(1, accept))
	require.NoError(t, r.Register(5, accept))
	assert.Equal(t, rfcomm.ErrChannelInUse, errors.Cause(r.Register(5, accept)))
	assert.Equal(t, []uint8{1, 5, 30}, r.Channels())

	_, ok := r.Lookup(5)
	assert.True(t, ok)
	assert.True(t, r.Unregister(5))
	assert.False(t, r.Unregister(5))
	_, ok = r.Lookup(5)
	assert.False(t, ok)

	// The channel is free again.
	assert.NoError(t, r.Register(5, accept))
}
