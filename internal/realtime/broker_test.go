package realtime

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, sub *Subscription) Message {
	t.Helper()
	select {
	case data := <-sub.C:
		var m Message
		require.NoError(t, json.Unmarshal(data, &m))
		return m
	default:
		require.FailNow(t, "expected a message")
		return Message{}
	}
}

func assertEmpty(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case data := <-sub.C:
		assert.Failf(t, "unexpected message", "%s", data)
	default:
	}
}

func TestBroker_SeveralTabsPerUser(t *testing.T) {
	b := NewBroker()
	tab1 := b.Subscribe(1)
	tab2 := b.Subscribe(1)
	other := b.Subscribe(2)

	assert.NotEqual(t, tab1.ID, tab2.ID)
	assert.Equal(t, 2, b.Connections(1))

	b.NotifyUser(1, Message{Type: TypeLeaderboardUpdated, Payload: RacePayload{RaceID: 5}})

	assert.Equal(t, TypeLeaderboardUpdated, receive(t, tab1).Type)
	assert.Equal(t, TypeLeaderboardUpdated, receive(t, tab2).Type)
	assertEmpty(t, other)

	b.Unsubscribe(tab1)
	_, open := <-tab1.C
	assert.False(t, open)
	assert.Equal(t, 1, b.Connections(1))

	b.NotifyUser(1, Message{Type: TypeRaceFinished})
	assert.Equal(t, TypeRaceFinished, receive(t, tab2).Type)

	// a second unsubscribe is a no-op
	b.Unsubscribe(tab1)
}

func TestBroker_NotifyUsersDeduplicates(t *testing.T) {
	b := NewBroker()
	a := b.Subscribe(1)
	c := b.Subscribe(3)

	b.NotifyUsers([]int64{1, 1, 2, 3}, Message{Type: TypeRaceFinished, Payload: RacePayload{RaceID: 9, RaceName: "Hills"}})

	m := receive(t, a)
	assert.Equal(t, TypeRaceFinished, m.Type)
	payload, ok := m.Payload.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(9), payload["raceId"])
	assertEmpty(t, a)
	receive(t, c)
}

func TestBroker_DropsWhenFull(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(1)

	for i := 0; i < clientBuffer+5; i++ {
		b.NotifyUser(1, Message{Type: TypeLeaderboardUpdated})
	}

	assert.Len(t, sub.C, clientBuffer)
}

func TestBroker_Close(t *testing.T) {
	b := NewBroker()
	sub := b.Subscribe(1)

	b.Close()
	_, open := <-sub.C
	assert.False(t, open)
	assert.Zero(t, b.Connections(1))

	late := b.Subscribe(1)
	_, open = <-late.C
	assert.False(t, open)

	// unsubscribing after close must not panic
	b.Unsubscribe(sub)
}
