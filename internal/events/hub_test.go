package events_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tyield/engine/internal/events"
	"github.com/tyield/engine/internal/model"
)

func dialHub(t *testing.T, hub *events.Hub, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + query
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	// Registration runs through the hub loop; wait for it to land.
	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		require.True(t, time.Now().Before(deadline), "client never registered")
		time.Sleep(5 * time.Millisecond)
	}
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) model.Event {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev model.Event
	require.NoError(t, json.Unmarshal(data, &ev))
	return ev
}

func TestHub_BroadcastEnvelope(t *testing.T) {
	hub := events.NewHub()
	go hub.Run()

	conn := dialHub(t, hub, "")

	hub.Broadcast(model.EventTradeOpened, model.TradeOpenedEvent{
		TradeID: "t-1",
		Pair:    "SOL/USDC",
	})

	ev := readEvent(t, conn)
	assert.Equal(t, model.EventTradeOpened, ev.Kind)
	assert.False(t, ev.Timestamp.IsZero())
}

func TestHub_KindFilter(t *testing.T) {
	hub := events.NewHub()
	go hub.Run()

	conn := dialHub(t, hub, "?kinds=trade_closed")

	// The subscriber filtered this kind out; the next matching broadcast
	// must be the first message delivered.
	hub.Broadcast(model.EventTradeOpened, model.TradeOpenedEvent{TradeID: "t-1"})
	hub.Broadcast(model.EventTradeClosed, model.TradeClosedEvent{TradeID: "t-1", Result: "success"})

	ev := readEvent(t, conn)
	assert.Equal(t, model.EventTradeClosed, ev.Kind)
}

func TestHub_UnfilteredReceivesAllKinds(t *testing.T) {
	hub := events.NewHub()
	go hub.Run()

	conn := dialHub(t, hub, "")

	hub.Broadcast(model.EventPriceUpdated, model.PriceUpdatedEvent{})
	hub.Broadcast(model.EventYieldUpdated, model.YieldUpdatedEvent{})

	assert.Equal(t, model.EventPriceUpdated, readEvent(t, conn).Kind)
	assert.Equal(t, model.EventYieldUpdated, readEvent(t, conn).Kind)
}
