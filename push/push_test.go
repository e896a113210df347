// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package push_test

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/33cn/flipd/common/db"
	"github.com/33cn/flipd/push"
	"github.com/33cn/flipd/push/mocks"
	"github.com/33cn/flipd/queue"
	"github.com/33cn/flipd/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type received struct {
	mu     sync.Mutex
	events []*types.LifecycleEvent
	fail   bool
}

func (r *received) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		assert.Equal(t, "gzip", req.Header.Get("Content-Encoding"))
		gz, err := gzip.NewReader(req.Body)
		if !assert.NoError(t, err) {
			return
		}
		body, err := io.ReadAll(gz)
		assert.NoError(t, err)
		var ev types.LifecycleEvent
		assert.NoError(t, json.Unmarshal(body, &ev))
		r.mu.Lock()
		defer r.mu.Unlock()
		if r.fail {
			_, _ = w.Write([]byte("fail"))
			return
		}
		r.events = append(r.events, &ev)
		_, _ = w.Write([]byte("ok"))
	}
}

func (r *received) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func newStore(t *testing.T) db.DB {
	store, err := db.NewGoMemDB()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func newQueue() *queue.Queue {
	return queue.New("push-test", &types.Broadcast{Buffer: 16, MaxSubscribers: 8})
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	require.Eventually(t, cond, 3*time.Second, 5*time.Millisecond)
}

func TestPushDeliversFilteredEvents(t *testing.T) {
	r := &received{}
	srv := httptest.NewServer(r.handler(t))
	defer srv.Close()

	q := newQueue()
	p := push.New(newStore(t), q, &types.Push{Enable: true})
	defer p.Close()

	err := p.AddSubscriber(&push.Subscribe{Name: "settled", URL: srv.URL, Types: []types.EventType{types.EventRoundSettled}})
	require.NoError(t, err)

	q.Publish(&types.LifecycleEvent{Type: types.EventRoundStarted, RoundID: 7})
	q.Publish(&types.LifecycleEvent{Type: types.EventRoundSettled, RoundID: 6})
	waitFor(t, func() bool { return r.count() == 1 })

	r.mu.Lock()
	assert.Equal(t, types.EventRoundSettled, r.events[0].Type)
	assert.Equal(t, uint64(6), r.events[0].RoundID)
	r.mu.Unlock()
}

func TestAddSubscriberValidation(t *testing.T) {
	p := push.New(newStore(t), newQueue(), &types.Push{Enable: true})
	defer p.Close()

	long := make([]byte, 129)
	for i := range long {
		long[i] = 'a'
	}
	cases := []*push.Subscribe{
		nil,
		{Name: "", URL: "http://localhost"},
		{Name: string(long), URL: "http://localhost"},
		{Name: "a", URL: ""},
		{Name: "a", URL: "ftp://localhost"},
		{Name: "a", URL: "http://localhost", Types: []types.EventType{"bogus"}},
	}
	for _, c := range cases {
		assert.ErrorIs(t, p.AddSubscriber(c), types.ErrInvalidParam)
	}
}

func TestNotAllowModifyPush(t *testing.T) {
	ps := &mocks.PostService{}
	p := push.NewWithService(newStore(t), newQueue(), &types.Push{Enable: true}, ps, time.Millisecond)
	defer p.Close()

	require.NoError(t, p.AddSubscriber(&push.Subscribe{Name: "a", URL: "http://localhost:1"}))
	assert.Equal(t, types.ErrNotAllowModifyPush, p.AddSubscriber(&push.Subscribe{Name: "a", URL: "http://localhost:2"}))
	// 同名同 url 不报错
	assert.NoError(t, p.AddSubscriber(&push.Subscribe{Name: "a", URL: "http://localhost:1"}))

	list, err := p.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].Active())
}

func TestTooManySubscriber(t *testing.T) {
	ps := &mocks.PostService{}
	p := push.NewWithService(newStore(t), newQueue(), &types.Push{Enable: true, MaxSubscribers: 2}, ps, time.Millisecond)
	defer p.Close()

	require.NoError(t, p.AddSubscriber(&push.Subscribe{Name: "a", URL: "http://localhost"}))
	require.NoError(t, p.AddSubscriber(&push.Subscribe{Name: "b", URL: "http://localhost"}))
	assert.Equal(t, types.ErrTooManySubscriber, p.AddSubscriber(&push.Subscribe{Name: "c", URL: "http://localhost"}))
}

func TestPostFailDeactivatesAndResume(t *testing.T) {
	var calls int32
	count := func(mock.Arguments) { atomic.AddInt32(&calls, 1) }
	ps := &mocks.PostService{}
	ps.On("PostData", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("timeout")).Run(count).Times(3)
	ps.On("PostData", mock.Anything, mock.Anything, mock.Anything).Return(nil).Run(count)

	q := newQueue()
	p := push.NewWithService(newStore(t), q, &types.Push{Enable: true}, ps, time.Millisecond)
	defer p.Close()

	sub := &push.Subscribe{Name: "flaky", URL: "http://localhost"}
	require.NoError(t, p.AddSubscriber(sub))
	assert.Equal(t, 1, q.Count())

	q.Publish(&types.LifecycleEvent{Type: types.EventRoundStarted, RoundID: 1})
	waitFor(t, func() bool {
		list, err := p.List()
		return err == nil && len(list) == 1 && !list[0].Active()
	})
	waitFor(t, func() bool { return q.Count() == 0 })
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	// 重新订阅恢复推送
	require.NoError(t, p.AddSubscriber(sub))
	list, err := p.List()
	require.NoError(t, err)
	assert.True(t, list[0].Active())
	q.Publish(&types.LifecycleEvent{Type: types.EventRoundStarted, RoundID: 2})
	waitFor(t, func() bool { return atomic.LoadInt32(&calls) == 4 })
}

func TestRestoreActiveSubscribers(t *testing.T) {
	r := &received{}
	srv := httptest.NewServer(r.handler(t))
	defer srv.Close()

	store := newStore(t)
	q := newQueue()
	p := push.New(store, q, &types.Push{Enable: true})
	require.NoError(t, p.AddSubscriber(&push.Subscribe{Name: "a", URL: srv.URL}))
	p.Close()
	assert.Equal(t, 0, q.Count())

	p = push.New(store, q, &types.Push{Enable: true})
	defer p.Close()
	assert.Equal(t, 1, q.Count())
	q.Publish(&types.LifecycleEvent{Type: types.EventJackpotTriggered, RoundID: 3})
	waitFor(t, func() bool { return r.count() == 1 })
}

func TestClientRejectsNonOK(t *testing.T) {
	r := &received{fail: true}
	srv := httptest.NewServer(r.handler(t))
	defer srv.Close()

	c := push.NewClient()
	err := c.PostData(&push.Subscribe{Name: "a", URL: srv.URL}, []byte(`{"type":"round_started"}`), 1)
	assert.Equal(t, types.ErrPushPostData, err)
}
