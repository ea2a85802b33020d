package transport

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencav/shmbridge/internal/dispatcher"
	"github.com/opencav/shmbridge/pkg/streaming"
)

// recorder implements Dispatcher and forwards every event to a channel.
type recorder struct {
	events chan dispatcher.Event
	result any
	err    error
}

func newRecorder() *recorder {
	return &recorder{events: make(chan dispatcher.Event, 32)}
}

func (r *recorder) Dispatch(e dispatcher.Event) (any, error) {
	r.events <- e
	return r.result, r.err
}

func (r *recorder) next(t *testing.T) dispatcher.Event {
	t.Helper()
	select {
	case e := <-r.events:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for dispatched event")
		return dispatcher.Event{}
	}
}

func testServer(t *testing.T, cfg Config) (*Server, *httptest.Server, *recorder) {
	t.Helper()
	rec := newRecorder()
	s := NewServer(cfg, rec, nil)
	srv := httptest.NewServer(s)
	t.Cleanup(func() {
		_ = s.Close()
		srv.Close()
	})
	return s, srv, rec
}

func wsURL(srv *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/socket.io/?" + query
}

func dial(t *testing.T, srv *httptest.Server, query string) *ws.Conn {
	t.Helper()
	c, _, err := ws.DefaultDialer.Dial(wsURL(srv, query), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func readFrame(t *testing.T, c *ws.Conn) string {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := c.ReadMessage()
	require.NoError(t, err)
	return string(msg)
}

func writeFrame(t *testing.T, c *ws.Conn, frame string) {
	t.Helper()
	require.NoError(t, c.WriteMessage(ws.TextMessage, []byte(frame)))
}

// handshakeV4 reads the open packet, joins the default namespace and returns the sid.
func handshakeV4(t *testing.T, c *ws.Conn) string {
	t.Helper()
	open := readFrame(t, c)
	require.True(t, strings.HasPrefix(open, "0"), "got %q", open)

	var payload streaming.OpenPayload
	require.NoError(t, json.Unmarshal([]byte(open[1:]), &payload))
	require.NotEmpty(t, payload.SID)

	writeFrame(t, c, "40")
	assert.Equal(t, `40{"sid":"`+payload.SID+`"}`, readFrame(t, c))
	return payload.SID
}

func TestServer_V4HandshakeAndEvents(t *testing.T) {
	_, srv, rec := testServer(t, DefaultConfig())
	c := dial(t, srv, "EIO=4&transport=websocket")

	sid := handshakeV4(t, c)

	connect := rec.next(t)
	assert.Equal(t, streaming.EventConnect, connect.Name)
	assert.Equal(t, sid, connect.Peer)

	writeFrame(t, c, `42["Bridge",{"V1 Position":"0 0 0","V1 Collisions":"0"}]`)
	ev := rec.next(t)
	assert.Equal(t, "Bridge", ev.Name)
	assert.Equal(t, sid, ev.Peer)
	assert.JSONEq(t, `{"V1 Position":"0 0 0","V1 Collisions":"0"}`, string(ev.Data))
	assert.False(t, ev.Timestamp.IsZero())
}

func TestServer_OpenPayload(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxPayload = 4096
	_, srv, _ := testServer(t, cfg)
	c := dial(t, srv, "EIO=4&transport=websocket")

	open := readFrame(t, c)
	var payload streaming.OpenPayload
	require.NoError(t, json.Unmarshal([]byte(open[1:]), &payload))
	assert.Equal(t, int64(25000), payload.PingInterval)
	assert.Equal(t, int64(20000), payload.PingTimeout)
	assert.Equal(t, int64(4096), payload.MaxPayload)
	assert.Empty(t, payload.Upgrades)
}

func TestServer_EmitBroadcasts(t *testing.T) {
	s, srv, rec := testServer(t, DefaultConfig())

	a := dial(t, srv, "EIO=4&transport=websocket")
	handshakeV4(t, a)
	rec.next(t)
	b := dial(t, srv, "EIO=4&transport=websocket")
	handshakeV4(t, b)
	rec.next(t)

	require.NoError(t, s.Emit("Bridge", map[string]string{"V1 Throttle": "0.5"}))

	want := `42["Bridge",{"V1 Throttle":"0.5"}]`
	assert.Equal(t, want, readFrame(t, a))
	assert.Equal(t, want, readFrame(t, b))
}

func TestServer_EmitSkipsPeersOutsideNamespace(t *testing.T) {
	s, srv, _ := testServer(t, DefaultConfig())

	c := dial(t, srv, "EIO=4&transport=websocket")
	readFrame(t, c) // open, but never joins

	require.NoError(t, s.Emit("Bridge", map[string]string{}))

	require.NoError(t, c.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := c.ReadMessage()
	assert.Error(t, err, "peer outside the namespace must not receive events")
}

func TestServer_EmitWithoutPeers(t *testing.T) {
	s, _, _ := testServer(t, DefaultConfig())
	assert.NoError(t, s.Emit("Bridge", map[string]string{"Time": "560"}))
}

func TestServer_EmitUnencodable(t *testing.T) {
	s, _, _ := testServer(t, DefaultConfig())
	assert.Error(t, s.Emit("Bridge", make(chan int)))
}

func TestServer_V4Ping(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PingInterval = 50 * time.Millisecond
	cfg.PingTimeout = time.Second
	s, srv, rec := testServer(t, cfg)

	c := dial(t, srv, "EIO=4&transport=websocket")
	readFrame(t, c)
	writeFrame(t, c, "40")
	rec.next(t)

	// The connect reply and the first ping may arrive in either order.
	pings := 0
	for pings < 2 {
		frame := readFrame(t, c)
		if frame == "2" {
			pings++
			writeFrame(t, c, "3")
		}
	}
	assert.Equal(t, 1, s.PeerCount())
}

func TestServer_V4PingTimeoutDisconnects(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PingInterval = 30 * time.Millisecond
	cfg.PingTimeout = 30 * time.Millisecond
	s, srv, rec := testServer(t, cfg)

	c := dial(t, srv, "EIO=4&transport=websocket")
	readFrame(t, c)
	writeFrame(t, c, "40")
	assert.Equal(t, streaming.EventConnect, rec.next(t).Name)

	// Never answer pings.
	assert.Equal(t, streaming.EventDisconnect, rec.next(t).Name)
	assert.Eventually(t, func() bool { return s.PeerCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestServer_V3(t *testing.T) {
	_, srv, rec := testServer(t, DefaultConfig())
	c := dial(t, srv, "EIO=3&transport=websocket")

	open := readFrame(t, c)
	require.True(t, strings.HasPrefix(open, "0"))
	assert.Equal(t, "40", readFrame(t, c))
	assert.Equal(t, streaming.EventConnect, rec.next(t).Name)

	writeFrame(t, c, "2")
	assert.Equal(t, "3", readFrame(t, c))

	writeFrame(t, c, `42["Bridge",{}]`)
	assert.Equal(t, "Bridge", rec.next(t).Name)
}

func TestServer_InvalidNamespace(t *testing.T) {
	_, srv, _ := testServer(t, DefaultConfig())
	c := dial(t, srv, "EIO=4&transport=websocket")
	readFrame(t, c)

	writeFrame(t, c, "40/admin,")
	assert.Equal(t, `44/admin,{"message":"Invalid namespace"}`, readFrame(t, c))
}

func TestServer_EventBeforeConnectIgnored(t *testing.T) {
	_, srv, rec := testServer(t, DefaultConfig())
	c := dial(t, srv, "EIO=4&transport=websocket")
	readFrame(t, c)

	writeFrame(t, c, `42["Bridge",{}]`)
	writeFrame(t, c, "40")
	readFrame(t, c)

	assert.Equal(t, streaming.EventConnect, rec.next(t).Name)
	select {
	case e := <-rec.events:
		t.Fatalf("unexpected event %q", e.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServer_AckedEvent(t *testing.T) {
	_, srv, rec := testServer(t, DefaultConfig())
	c := dial(t, srv, "EIO=4&transport=websocket")
	handshakeV4(t, c)
	rec.next(t)

	writeFrame(t, c, `421["Bridge",{}]`)
	assert.Equal(t, "Bridge", rec.next(t).Name)
	assert.Equal(t, `431[]`, readFrame(t, c))
}

func TestServer_AckCarriesHandlerResult(t *testing.T) {
	tests := []struct {
		name   string
		result any
		err    error
		want   string
	}{
		{"queued", "queued", nil, `432["queued"]`},
		{"object", map[string]string{"Time Scale": "60"}, nil, `432[{"Time Scale":"60"}]`},
		{"handler error", "queued", errors.New("queue full"), `432[]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, srv, rec := testServer(t, DefaultConfig())
			rec.result, rec.err = tt.result, tt.err
			c := dial(t, srv, "EIO=4&transport=websocket")
			handshakeV4(t, c)
			rec.next(t)

			writeFrame(t, c, `422["Bridge",{}]`)
			rec.next(t)
			assert.Equal(t, tt.want, readFrame(t, c))
		})
	}
}

func TestServer_ClientDisconnect(t *testing.T) {
	s, srv, rec := testServer(t, DefaultConfig())

	var counts atomic.Int32
	s.OnPeerCountChange(func(n int) { counts.Store(int32(n)) })

	c := dial(t, srv, "EIO=4&transport=websocket")
	sid := handshakeV4(t, c)
	rec.next(t)
	assert.Equal(t, 1, s.PeerCount())
	assert.Equal(t, int32(1), counts.Load())

	writeFrame(t, c, "41")
	ev := rec.next(t)
	assert.Equal(t, streaming.EventDisconnect, ev.Name)
	assert.Equal(t, sid, ev.Peer)

	_ = c.Close()
	assert.Eventually(t, func() bool { return s.PeerCount() == 0 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, int32(0), counts.Load())

	// Disconnect is raised only once per join.
	select {
	case e := <-rec.events:
		t.Fatalf("unexpected event %q", e.Name)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestServer_CloseDisconnectsPeers(t *testing.T) {
	s, srv, rec := testServer(t, DefaultConfig())
	c := dial(t, srv, "EIO=4&transport=websocket")
	handshakeV4(t, c)
	rec.next(t)

	require.NoError(t, s.Close())
	assert.Equal(t, streaming.EventDisconnect, rec.next(t).Name)
	assert.Equal(t, 0, s.PeerCount())

	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	assert.Error(t, err)

	_, _, err = ws.DefaultDialer.Dial(wsURL(srv, "EIO=4&transport=websocket"), nil)
	assert.Error(t, err)
}

func TestServer_HandshakeErrors(t *testing.T) {
	_, srv, _ := testServer(t, DefaultConfig())

	tests := []struct {
		name  string
		query string
		code  int
	}{
		{"polling", "EIO=4&transport=polling", streaming.ErrorTransportUnknown},
		{"missing transport", "EIO=4", streaming.ErrorTransportUnknown},
		{"unsupported version", "EIO=2&transport=websocket", streaming.ErrorUnsupportedVersion},
		{"upgrade of unknown session", "EIO=4&transport=websocket&sid=abc", streaming.ErrorUnknownSID},
		{"plain get", "EIO=4&transport=websocket", streaming.ErrorBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Get(srv.URL + "/socket.io/?" + tt.query)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			var got streaming.ErrorBody
			require.NoError(t, json.Unmarshal(body, &got))
			assert.Equal(t, streaming.HandshakeError(tt.code), got)
		})
	}
}

func TestConfigDefaults(t *testing.T) {
	got := Config{SendBuffer: 8}.withDefaults()
	assert.Equal(t, 8, got.SendBuffer)
	assert.Equal(t, 25*time.Second, got.PingInterval)
	assert.Equal(t, 20*time.Second, got.PingTimeout)
	assert.Equal(t, int64(1_000_000), got.MaxPayload)
	assert.Equal(t, 10*time.Second, got.WriteWait)
}
