package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/a2abus/agent/bus"
	"github.com/BaSui01/a2abus/testutil"
)

type fakeSource struct {
	mu        sync.Mutex
	observers map[int]bus.Observer
	next      int
}

func newFakeSource() *fakeSource {
	return &fakeSource{observers: make(map[int]bus.Observer)}
}

func (f *fakeSource) Subscribe(obs bus.Observer) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.observers[id] = obs
	return func() {
		f.mu.Lock()
		delete(f.observers, id)
		f.mu.Unlock()
	}
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.observers)
}

func (f *fakeSource) publish(ev bus.Event) {
	f.mu.Lock()
	obs := make([]bus.Observer, 0, len(f.observers))
	for _, o := range f.observers {
		obs = append(obs, o)
	}
	f.mu.Unlock()
	for _, o := range obs {
		o(ev)
	}
}

func dialStream(t *testing.T, h *StreamHandler, query string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(h.HandleStream))
	t.Cleanup(srv.Close)

	ctx := testutil.TestContextWithTimeout(t, 5*time.Second)
	conn, _, err := websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http")+"/ws/bus"+query, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func TestStreamHandler_ForwardsEvents(t *testing.T) {
	src := newFakeSource()
	h := NewStreamHandler(src, DefaultStreamConfig(), nil)
	conn := dialStream(t, h, "")

	testutil.AssertEventuallyTrue(t, func() bool { return src.count() == 1 }, 2*time.Second)
	assert.EqualValues(t, 1, h.Active())

	src.publish(bus.Event{Kind: bus.EventDelivered, MessageID: "m1", From: "orchestrator", To: "flight"})
	src.publish(bus.Event{Kind: bus.EventFailed, MessageID: "m2", From: "orchestrator", To: "hotel", Reason: "timeout"})

	ctx := testutil.TestContextWithTimeout(t, 2*time.Second)
	var first, second bus.Event
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	require.NoError(t, wsjson.Read(ctx, conn, &second))

	assert.Equal(t, "m1", first.MessageID)
	assert.Equal(t, bus.EventDelivered, first.Kind)
	assert.Equal(t, "m2", second.MessageID)
	assert.Equal(t, "timeout", second.Reason)
}

func TestStreamHandler_AgentFilter(t *testing.T) {
	src := newFakeSource()
	h := NewStreamHandler(src, DefaultStreamConfig(), nil)
	conn := dialStream(t, h, "?agent=hotel")

	testutil.AssertEventuallyTrue(t, func() bool { return src.count() == 1 }, 2*time.Second)

	src.publish(bus.Event{MessageID: "to-flight", From: "orchestrator", To: "flight"})
	src.publish(bus.Event{MessageID: "to-hotel", From: "orchestrator", To: "hotel"})

	ctx := testutil.TestContextWithTimeout(t, 2*time.Second)
	var ev bus.Event
	require.NoError(t, wsjson.Read(ctx, conn, &ev))
	assert.Equal(t, "to-hotel", ev.MessageID)
}

func TestStreamHandler_UnsubscribesOnClose(t *testing.T) {
	src := newFakeSource()
	h := NewStreamHandler(src, DefaultStreamConfig(), nil)
	conn := dialStream(t, h, "")

	testutil.AssertEventuallyTrue(t, func() bool { return src.count() == 1 }, 2*time.Second)
	_ = conn.Close(websocket.StatusNormalClosure, "bye")

	testutil.AssertEventuallyTrue(t, func() bool { return src.count() == 0 }, 2*time.Second)
	testutil.AssertEventuallyTrue(t, func() bool { return h.Active() == 0 }, 2*time.Second)
}

func TestStreamHandler_SlowClientDropsInsteadOfBlocking(t *testing.T) {
	src := newFakeSource()
	h := NewStreamHandler(src, StreamConfig{BufferSize: 1, WriteTimeout: time.Second}, nil)
	_ = dialStream(t, h, "")

	testutil.AssertEventuallyTrue(t, func() bool { return src.count() == 1 }, 2*time.Second)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 1000; i++ {
			src.publish(bus.Event{MessageID: "m"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publishing blocked on a slow client")
	}
}

func TestStreamHandler_RejectsPlainHTTP(t *testing.T) {
	h := NewStreamHandler(newFakeSource(), DefaultStreamConfig(), nil)

	rec := httptest.NewRecorder()
	h.HandleStream(rec, httptest.NewRequest(http.MethodGet, "/ws/bus", nil))
	assert.GreaterOrEqual(t, rec.Code, http.StatusBadRequest)
	assert.Zero(t, h.Active())
}
