// ABOUTME: Tests for the HTTP gateway
// ABOUTME: Exercises the message endpoint, health check and metrics exposure

package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bellhop-chat/bellhop/internal/dedupe"
	"github.com/bellhop-chat/bellhop/internal/engine"
	"github.com/bellhop-chat/bellhop/internal/flow"
	"github.com/bellhop-chat/bellhop/internal/metrics"
	"github.com/bellhop-chat/bellhop/internal/router"
	"github.com/bellhop-chat/bellhop/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, prometheus.Gatherer) {
	t.Helper()

	reg, err := flow.Defaults(10)
	require.NoError(t, err)

	st := store.NewMemoryStore()
	t.Cleanup(func() { _ = st.Close() })

	cache := dedupe.New(time.Minute, 1024)
	t.Cleanup(cache.Close)

	promReg := prometheus.NewRegistry()
	rt := router.New(reg, st, nil, nil)
	eng := engine.New(reg, st, rt, nil, cache, metrics.New(promReg), engine.Config{}, nil)

	srv := httptest.NewServer(NewServer(eng, promReg, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, promReg
}

func postMessage(t *testing.T, srv *httptest.Server, body map[string]any) (*http.Response, map[string]any) {
	t.Helper()

	raw, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(srv.URL+"/v1/messages", "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp, decoded
}

func TestHandleMessage_Greeting(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := postMessage(t, srv, map[string]any{
		"channel":          "whatsapp",
		"external_user_id": "+15550001111",
		"text":             "I'd like to book a table",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "booking", body["vertical"])
	require.NotEmpty(t, body["messages"])
}

func TestHandleMessage_FullBookingFlow(t *testing.T) {
	srv, _ := newTestServer(t)

	send := func(text string) map[string]any {
		resp, body := postMessage(t, srv, map[string]any{
			"channel":          "whatsapp",
			"external_user_id": "u-42",
			"text":             text,
		})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return body
	}

	send("I'd like to book a table")
	send("2")
	send("25/12/2099")
	send("19:00")
	final := send("4")

	artifact, ok := final["artifact"].(map[string]any)
	require.True(t, ok, "terminal reply should carry an artifact")
	assert.Equal(t, "booking", artifact["artifact_type"])
	fields, ok := artifact["fields"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "4", fields["party_size"])
}

func TestHandleMessage_MissingIdentity(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, body := postMessage(t, srv, map[string]any{"text": "hello"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Contains(t, body["error"], "required")
}

func TestHandleMessage_InvalidJSON(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/v1/messages", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestHandleMessage_DuplicateDelivery(t *testing.T) {
	srv, _ := newTestServer(t)

	msg := map[string]any{
		"channel":          "telegram",
		"external_user_id": "u-7",
		"text":             "hi",
		"message_id":       "gw-msg-1",
	}
	_, first := postMessage(t, srv, msg)
	assert.Nil(t, first["duplicate"])

	_, second := postMessage(t, srv, msg)
	assert.Equal(t, true, second["duplicate"])
}

func TestHandleMessage_ConcurrentSameIdentity(t *testing.T) {
	srv, _ := newTestServer(t)

	_, body := postMessage(t, srv, map[string]any{
		"channel":          "whatsapp",
		"external_user_id": "u-race",
		"text":             "I'd like to book a table",
	})
	require.Equal(t, "booking", body["vertical"])

	var wg sync.WaitGroup
	for _, text := range []string{"2", "banana"} {
		wg.Add(1)
		go func(text string) {
			defer wg.Done()
			resp, _ := postMessage(t, srv, map[string]any{
				"channel":          "whatsapp",
				"external_user_id": "u-race",
				"text":             text,
			})
			assert.Equal(t, http.StatusOK, resp.StatusCode)
		}(text)
	}
	wg.Wait()

	// Whichever order the two landed in, the menu choice advanced the flow
	// exactly once.
	_, after := postMessage(t, srv, map[string]any{
		"channel":          "whatsapp",
		"external_user_id": "u-race",
		"text":             "25/12/2099",
	})
	msgs, ok := after["messages"].([]any)
	require.True(t, ok)
	require.NotEmpty(t, msgs)
	first, ok := msgs[0].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, first["text"], "time")
}

func TestLockIdentity_EntriesDrainAfterUse(t *testing.T) {
	s := &Server{}

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unlock := s.lockIdentity(fmt.Sprintf("whatsapp/u-%d", i%7))
			unlock()
		}(i)
	}
	wg.Wait()

	// Every holder released; no per-identity entries may linger
	entries := 0
	s.inflight.Range(func(_, _ any) bool {
		entries++
		return true
	})
	assert.Zero(t, entries)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	postMessage(t, srv, map[string]any{
		"channel":          "whatsapp",
		"external_user_id": "u-9",
		"text":             "hello",
	})

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "bellhop_inbound_messages_total")
}
