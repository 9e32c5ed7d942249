package valkeychannel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-garage-sync/realtime"
)

func TestNewDefaults(t *testing.T) {
	c := New(nil, Options{})
	assert.Equal(t, DefaultChannel, c.opts.Channel)
	assert.Equal(t, DefaultReconnectDelay, c.opts.ReconnectDelay)
	assert.NotNil(t, c.opts.Clock)
	assert.NoError(t, c.Close(), "closing a channel that never started is a no-op")
}

func TestDeliverFansOutToSubscribers(t *testing.T) {
	c := New(nil, Options{})

	var got []realtime.Event
	tok, err := c.Subscribe(realtime.EventBookingUpdated, func(e realtime.Event) { got = append(got, e) })
	require.NoError(t, err)

	c.deliver([]byte(`{"event":"booking:updated","payload":{"affectedEntityId":"b1","actor":"u-9"}}`))
	c.deliver([]byte(`{"event":"booking:created"}`))
	c.deliver([]byte(`garbage`))

	require.Len(t, got, 1)
	assert.Equal(t, "b1", got[0].Payload.EntityID)
	assert.Equal(t, "u-9", got[0].Payload.Actor)

	require.NoError(t, c.Unsubscribe(tok))
	c.deliver([]byte(`{"event":"booking:updated"}`))
	assert.Len(t, got, 1)
}
