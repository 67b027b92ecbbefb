package events_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clickweave/clickweave/models"
	"github.com/clickweave/clickweave/services/events"
)

func TestKindsAreDistinct(t *testing.T) {
	all := []events.Event{
		events.Started{}, events.Stopped{}, events.Paused{}, events.Resumed{},
		events.Click{}, events.StepExecuted{}, events.PixelMatched{},
		events.ProfileTriggered{}, events.ScheduleError{},
	}
	seen := map[events.Kind]bool{}
	for _, e := range all {
		assert.False(t, seen[e.Kind()], "duplicate kind %s", e.Kind())
		seen[e.Kind()] = true
	}
}

func TestDispatchRecoversListenerPanic(t *testing.T) {
	var got []events.Kind
	bad := events.ListenerFunc(func(events.Event) { panic("boom") })
	good := events.ListenerFunc(func(e events.Event) { got = append(got, e.Kind()) })

	assert.NotPanics(t, func() { events.Dispatch(bad, events.Paused{}) })
	events.Dispatch(good, events.Paused{})
	events.Dispatch(nil, events.Paused{})
	assert.Equal(t, []events.Kind{events.KindPaused}, got)
}

func TestHubFanOutAndDrop(t *testing.T) {
	hub := events.NewHub()
	fast, cancelFast := hub.Subscribe(4)
	defer cancelFast()
	slow, cancelSlow := hub.Subscribe(1)

	hub.OnEvent(events.Click{Point: models.Point{X: 1, Y: 2}, Count: 1})
	hub.OnEvent(events.Click{Count: 2})

	require.Len(t, fast, 2)
	require.Len(t, slow, 1)
	assert.Equal(t, uint64(1), hub.Dropped())

	first := <-fast
	assert.Equal(t, 1, first.(events.Click).Count)

	cancelSlow()
	cancelSlow()
	assert.Equal(t, 1, hub.Subscribers())
	_, open := <-slow
	assert.True(t, open, "buffered event still readable after cancel")
	_, open = <-slow
	assert.False(t, open)
}

func TestClickEncodesClickType(t *testing.T) {
	e := events.Click{Point: models.Point{X: 4, Y: 5}, ClickType: models.ClickDouble, Count: 3}
	assert.Equal(t, events.KindClick, e.Kind())

	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.JSONEq(t, `{"coordinates":{"x":4,"y":5},"click_type":"double","click_count":3}`, string(data))
}

func TestOfferOnClosedChannel(t *testing.T) {
	ch := make(chan int, 1)
	close(ch)
	assert.False(t, events.Offer(ch, 1))

	live := make(chan time.Time)
	assert.False(t, events.Offer(live, time.Now()), "unbuffered without receiver")
}
