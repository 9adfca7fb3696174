package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/planning"
)

func dialFeed(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return conn
}

func TestHub_DebouncesIntoOneBatch(t *testing.T) {
	// GIVEN: A connected client and a 50ms debounce
	// WHEN: Three events are published back to back
	// THEN: The client receives one message carrying all three in order

	hub := NewHub(50*time.Millisecond, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	conn := dialFeed(t, hub)

	for _, kind := range []planning.EventKind{planning.EventAmendmentSaved, planning.EventAmendmentApproved, planning.EventWeekSubmitted} {
		hub.Publish(planning.ChangeEvent{Kind: kind, WeekReference: testWeek, StoreID: "s1"})
	}

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg FeedMessage
	require.NoError(t, json.Unmarshal(data, &msg))
	require.Len(t, msg.Events, 3)
	assert.Equal(t, planning.EventAmendmentSaved, msg.Events[0].Kind)
	assert.Equal(t, planning.EventWeekSubmitted, msg.Events[2].Kind)
	assert.Equal(t, testWeek, msg.Events[1].WeekReference)
}

func TestHub_ShutdownDisconnectsClients(t *testing.T) {
	hub := NewHub(10*time.Millisecond, nil, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	conn := dialFeed(t, hub)
	cancel()
	<-done

	assert.Equal(t, 0, hub.Clients())
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestHub_RejectsForeignOrigin(t *testing.T) {
	hub := NewHub(0, []string{"https://backoffice.example.com"}, zerolog.Nop())
	assert.Equal(t, DefaultDebounce, hub.Debounce)

	srv := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example.com"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, 0, hub.Clients())
}

func TestHub_PublishNeverBlocks(t *testing.T) {
	// GIVEN: A hub nobody is draining
	// WHEN: More events are published than the buffer holds
	// THEN: Publish returns and the overflow is dropped

	hub := NewHub(time.Second, nil, zerolog.Nop())
	done := make(chan struct{})
	go func() {
		for i := 0; i < inboundBuffer+10; i++ {
			hub.Publish(planning.ChangeEvent{Kind: planning.EventUploadCompleted})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked")
	}
	assert.Len(t, hub.in, inboundBuffer)

	var nilHub *Hub
	assert.NotPanics(t, func() { nilHub.Publish(planning.ChangeEvent{}) })
}
