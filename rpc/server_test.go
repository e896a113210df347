// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/33cn/flipd/common/db"
	"github.com/33cn/flipd/journal"
	"github.com/33cn/flipd/metrics"
	"github.com/33cn/flipd/push"
	"github.com/33cn/flipd/queue"
	"github.com/33cn/flipd/types"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockEngine struct {
	mock.Mock
}

func (m *mockEngine) Status() types.EngineStatus {
	return m.Called().Get(0).(types.EngineStatus)
}

func (m *mockEngine) Running() bool {
	return m.Called().Bool(0)
}

func (m *mockEngine) AuthorizeForce(roundID uint64) error {
	return m.Called(roundID).Error(0)
}

type fakeReader struct {
	global *types.GlobalConfig
	rounds map[uint64]*types.Round
}

func (f *fakeReader) ReadGlobalConfig(ctx context.Context) (*types.GlobalConfig, error) {
	return f.global, nil
}

func (f *fakeReader) ReadRound(ctx context.Context, roundID uint64) (*types.Round, error) {
	r, ok := f.rounds[roundID]
	if !ok {
		return nil, types.ErrNotFound
	}
	return r, nil
}

type harness struct {
	s   *Server
	eng *mockEngine
	q   *queue.Queue
	srv *httptest.Server
}

func newHarness(t *testing.T, cfg *types.RPC) *harness {
	eng := &mockEngine{}
	q := queue.New("rpc-test", &types.Broadcast{Buffer: 16, MaxSubscribers: 8})
	if cfg.Heartbeat == 0 {
		cfg.Heartbeat = time.Hour
	}
	s := New(cfg, eng, q)
	s.SetRegistry(metrics.NewRegistry())
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(func() {
		_ = s.Shutdown(context.Background())
		srv.Close()
		q.Close()
	})
	return &harness{s: s, eng: eng, q: q, srv: srv}
}

func (h *harness) get(t *testing.T, path string) (int, []byte) {
	resp, err := http.Get(h.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func (h *harness) post(t *testing.T, path string, v interface{}, user, pass string) (int, []byte) {
	data, err := json.Marshal(v)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, h.srv.URL+path, bytes.NewReader(data))
	require.NoError(t, err)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func TestHealth(t *testing.T) {
	h := newHarness(t, &types.RPC{})
	h.eng.On("Status").Return(types.EngineStatus{Running: true})
	h.eng.On("Running").Return(true).Once()
	code, body := h.get(t, "/health")
	assert.Equal(t, http.StatusOK, code)
	var health Health
	require.NoError(t, json.Unmarshal(body, &health))
	assert.Equal(t, "ok", health.Status)
	assert.True(t, health.Running)

	h.eng.On("Running").Return(false)
	code, body = h.get(t, "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	require.NoError(t, json.Unmarshal(body, &health))
	assert.False(t, health.Running)
}

func TestStatusEndpoints(t *testing.T) {
	h := newHarness(t, &types.RPC{})
	h.eng.On("Status").Return(types.EngineStatus{
		Running:             true,
		Phase:               types.PhaseOpen,
		LastObservedRoundID: 12,
	})
	for _, path := range []string{"/api/status", "/api/cron-status"} {
		code, body := h.get(t, path)
		assert.Equal(t, http.StatusOK, code)
		var st types.EngineStatus
		require.NoError(t, json.Unmarshal(body, &st))
		assert.Equal(t, uint64(12), st.LastObservedRoundID)
		assert.True(t, st.Running)
		assert.Contains(t, string(body), `"isRunning":true`)
	}
}

func TestRound(t *testing.T) {
	h := newHarness(t, &types.RPC{})
	code, _ := h.get(t, "/api/round")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	h.s.SetReader(&fakeReader{
		global: &types.GlobalConfig{CurrentRound: 3},
		rounds: map[uint64]*types.Round{3: {RoundID: 3, HeadsTotal: 1500000000, TailsTotal: 500000000}},
	})
	code, body := h.get(t, "/api/round")
	assert.Equal(t, http.StatusOK, code)
	var view RoundView
	require.NoError(t, json.Unmarshal(body, &view))
	assert.Equal(t, uint64(3), view.Global.CurrentRound)
	require.NotNil(t, view.Current)
	assert.Equal(t, "2", view.PotSOL)
}

func TestJournal(t *testing.T) {
	h := newHarness(t, &types.RPC{})
	store, err := db.NewGoMemDB()
	require.NoError(t, err)
	defer store.Close()
	j, err := journal.New(store)
	require.NoError(t, err)
	h.s.SetJournal(j)
	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, j.Record(&types.Submission{Kind: types.TransitionStart, RoundID: i, Result: "confirmed"}))
	}
	code, body := h.get(t, "/api/journal?count=2")
	assert.Equal(t, http.StatusOK, code)
	var list []*types.Submission
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 2)
	assert.Equal(t, uint64(3), list[0].RoundID)

	code, _ = h.get(t, "/api/journal?count=abc")
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = h.get(t, "/api/journal?count=0")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPushEndpoints(t *testing.T) {
	h := newHarness(t, &types.RPC{})
	code, _ := h.get(t, "/api/push/list")
	assert.Equal(t, http.StatusNotImplemented, code)

	store, err := db.NewGoMemDB()
	require.NoError(t, err)
	defer store.Close()
	p := push.New(store, h.q, &types.Push{Enable: true})
	defer p.Close()
	h.s.SetPush(p)

	code, _ = h.post(t, "/api/push/subscribe", &push.Subscribe{Name: "a", URL: "http://127.0.0.1:1/hook"}, "", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = h.post(t, "/api/push/subscribe", &push.Subscribe{Name: "a", URL: "http://127.0.0.1:2/hook"}, "", "")
	assert.Equal(t, http.StatusConflict, code)
	code, _ = h.post(t, "/api/push/subscribe", &push.Subscribe{Name: "", URL: "http://127.0.0.1:2/hook"}, "", "")
	assert.Equal(t, http.StatusBadRequest, code)

	code, body := h.get(t, "/api/push/list")
	assert.Equal(t, http.StatusOK, code)
	var list []*push.WithStatus
	require.NoError(t, json.Unmarshal(body, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "a", list[0].Push.Name)
	assert.True(t, list[0].Active())
}

func TestForceRequiresAuth(t *testing.T) {
	h := newHarness(t, &types.RPC{UserName: "admin", UserPasswd: "secret"})
	h.eng.On("AuthorizeForce", uint64(9)).Return(nil)
	h.eng.On("AuthorizeForce", uint64(0)).Return(types.ErrInvalidParam)

	code, _ := h.post(t, "/api/admin/force", &ForceRequest{RoundID: 9}, "", "")
	assert.Equal(t, http.StatusUnauthorized, code)
	code, _ = h.post(t, "/api/admin/force", &ForceRequest{RoundID: 9}, "admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, code)
	h.eng.AssertNotCalled(t, "AuthorizeForce", uint64(9))

	code, body := h.post(t, "/api/admin/force", &ForceRequest{RoundID: 9}, "admin", "secret")
	assert.Equal(t, http.StatusOK, code)
	var res ForceResponse
	require.NoError(t, json.Unmarshal(body, &res))
	assert.Equal(t, uint64(9), res.RoundID)
	h.eng.AssertCalled(t, "AuthorizeForce", uint64(9))

	code, _ = h.post(t, "/api/admin/force", &ForceRequest{}, "admin", "secret")
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = h.get(t, "/api/admin/force")
	assert.Equal(t, http.StatusUnauthorized, code)

	req, err := http.NewRequest(http.MethodGet, h.srv.URL+"/api/admin/force", nil)
	require.NoError(t, err)
	req.SetBasicAuth("admin", "secret")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestCheckIPWhitelist(t *testing.T) {
	s := New(&types.RPC{Whitelist: []string{"10.0.0.1"}}, &mockEngine{}, nil)
	assert.True(t, s.checkIPWhitelist("127.0.0.1"))
	assert.True(t, s.checkIPWhitelist("::1"))
	assert.True(t, s.checkIPWhitelist("10.0.0.1"))
	assert.True(t, s.checkIPWhitelist("::ffff:10.0.0.1"))
	assert.False(t, s.checkIPWhitelist("10.0.0.2"))
	assert.False(t, s.checkIPWhitelist("not-an-ip"))

	s = New(&types.RPC{Whitelist: []string{"*"}}, &mockEngine{}, nil)
	assert.True(t, s.checkIPWhitelist("8.8.8.8"))

	s = New(&types.RPC{}, &mockEngine{}, nil)
	assert.False(t, s.checkIPWhitelist("8.8.8.8"))
}

func TestFeedThrottle(t *testing.T) {
	s := New(&types.RPC{MaxFeedPerIP: 0.001}, &mockEngine{}, nil)
	r := httptest.NewRequest(http.MethodGet, "/api/feed/stream", nil)
	r.RemoteAddr = "10.0.0.9:4000"
	allowed := 0
	for i := 0; i < feedBurst+5; i++ {
		if s.allowFeed(r) {
			allowed++
		}
	}
	assert.Equal(t, feedBurst, allowed)

	other := httptest.NewRequest(http.MethodGet, "/api/feed/stream", nil)
	other.RemoteAddr = "10.0.0.10:4000"
	assert.True(t, s.allowFeed(other))
}

func TestFeedStream(t *testing.T) {
	h := newHarness(t, &types.RPC{Heartbeat: 20 * time.Millisecond})
	resp, err := http.Get(h.srv.URL + "/api/feed/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Eventually(t, func() bool { return h.q.Count() == 1 }, time.Second, time.Millisecond)

	h.q.Publish(&types.LifecycleEvent{ID: "ev-1", Type: types.EventRoundStarted, RoundID: 5})
	reader := bufio.NewReader(resp.Body)
	var data string
	var heartbeat bool
	deadline := time.Now().Add(3 * time.Second)
	for (data == "" || !heartbeat) && time.Now().Before(deadline) {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == ": heartbeat":
			heartbeat = true
		}
	}
	var ev types.LifecycleEvent
	require.NoError(t, json.Unmarshal([]byte(data), &ev))
	assert.Equal(t, uint64(5), ev.RoundID)
	assert.True(t, heartbeat)
}

func TestFeedWebsocket(t *testing.T) {
	h := newHarness(t, &types.RPC{})
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/api/feed/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return h.q.Count() == 1 }, time.Second, time.Millisecond)

	h.q.Publish(&types.LifecycleEvent{Type: types.EventRoundSettled, RoundID: 4})
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	var ev types.LifecycleEvent
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, types.EventRoundSettled, ev.Type)
	assert.Equal(t, uint64(4), ev.RoundID)

	conn.Close()
	require.Eventually(t, func() bool { return h.q.Count() == 0 }, time.Second, time.Millisecond)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, &types.RPC{})
	code, body := h.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "flipd_info")
}

func TestListenAndShutdown(t *testing.T) {
	eng := &mockEngine{}
	eng.On("Status").Return(types.EngineStatus{Running: true})
	eng.On("Running").Return(true)
	s := New(&types.RPC{BindAddr: "127.0.0.1:0"}, eng, queue.New("rpc", &types.Broadcast{Buffer: 1, MaxSubscribers: 1}))
	port, err := s.Listen()
	require.NoError(t, err)
	assert.NotZero(t, port)
	errc := make(chan error, 1)
	go func() { errc <- s.Serve() }()

	resp, err := http.Get("http://" + s.l.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, s.Shutdown(context.Background()))
	assert.NoError(t, <-errc)
}
