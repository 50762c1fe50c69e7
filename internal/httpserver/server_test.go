package httpserver

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/innovatoryuvarajan/gemma-crisis-Ai-response/internal/events"
)

func testServer(t *testing.T, hub *events.Hub) *httptest.Server {
	t.Helper()
	status := func() Status {
		return Status{State: "listening", FAQEntries: 3, RAGDocs: 10, RAGEnabled: true, OllamaModel: "gemma3n:latest"}
	}
	e := New(status, hub, logrus.New())
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestHealthz(t *testing.T) {
	srv := testServer(t, events.NewHub())
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestStatus(t *testing.T) {
	srv := testServer(t, events.NewHub())
	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	var st Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Equal(t, "listening", st.State)
	assert.Equal(t, 3, st.FAQEntries)
	assert.True(t, st.RAGEnabled)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := testServer(t, events.NewHub())
	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestEventsWebsocket(t *testing.T) {
	hub := events.NewHub()
	srv := testServer(t, hub)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/events"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Let the server register the subscription before publishing.
	require.Eventually(t, func() bool {
		hub.Publish(events.New(events.KindTranscript, "hello", nil))
		_ = conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		var ev events.Event
		return conn.ReadJSON(&ev) == nil && ev.Text == "hello"
	}, 2*time.Second, 10*time.Millisecond)
}
