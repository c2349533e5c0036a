package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RegistersCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.Connections.Inc()
	m.Notification(ChannelPush, OutcomeGone)
	m.Notification(ChannelPush, OutcomeGone)
	m.EventsBroadcast.WithLabelValues("message-created").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(m.Connections))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.Notifications.WithLabelValues(ChannelPush, OutcomeGone)))

	families, err := reg.Gather()
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range families {
		names[f.GetName()] = true
	}
	assert.True(t, names["realtime_connections"])
	assert.True(t, names["realtime_notifications_total"])
	assert.True(t, names["realtime_events_broadcast_total"])
}

func TestNew_NilRegistry(t *testing.T) {
	m := New(nil)
	m.Rooms.Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.Rooms))
}
