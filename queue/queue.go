// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package queue 生命周期事件的一对多分发.
//
// 每个订阅者有自己的有界 channel, Publish 永远不阻塞:
// channel 满了就丢弃这条事件并计数.
//
//	client, err := q.Subscribe("sse")
//	for ev := range client.Recv() {
//	    process(ev)
//	}
package queue

import (
	"sync"
	"sync/atomic"

	"github.com/33cn/flipd/common/log"
	"github.com/33cn/flipd/types"
	"github.com/pkg/errors"
)

var qlog = log.New("module", "queue")

// default limits
const (
	DefaultChanBuffer     = 64
	DefaultMaxSubscribers = 1024
)

// Queue event broadcaster
type Queue struct {
	name    string
	buffer  int
	max     int
	mu      sync.RWMutex
	clients map[int64]*client
	closed  bool
	gid     int64
	dropped int64
	sent    int64
}

// New 创建 broadcaster, cfg 为 nil 时使用默认值
func New(name string, cfg *types.Broadcast) *Queue {
	q := &Queue{
		name:    name,
		buffer:  DefaultChanBuffer,
		max:     DefaultMaxSubscribers,
		clients: make(map[int64]*client),
	}
	if cfg != nil {
		if cfg.Buffer > 0 {
			q.buffer = cfg.Buffer
		}
		if cfg.MaxSubscribers > 0 {
			q.max = cfg.MaxSubscribers
		}
	}
	return q
}

// Name queue name
func (q *Queue) Name() string {
	return q.name
}

// Publish 按订阅顺序投递, 不等待任何订阅者
func (q *Queue) Publish(ev *types.LifecycleEvent) {
	if ev == nil {
		return
	}
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	for _, c := range q.clients {
		select {
		case c.recv <- ev:
			atomic.AddInt64(&q.sent, 1)
		default:
			n := atomic.AddInt64(&c.dropped, 1)
			atomic.AddInt64(&q.dropped, 1)
			qlog.Warn("Publish drop", "client", c.name, "id", c.id, "type", ev.Type, "round", ev.RoundID, "dropped", n)
		}
	}
}

// Subscribe 新建订阅者, 超过上限返回 types.ErrTooManySubscriber
func (q *Queue) Subscribe(name string) (Client, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return nil, types.ErrEngineStopped
	}
	if len(q.clients) >= q.max {
		qlog.Error("Subscribe", "name", name, "count", len(q.clients), "err", types.ErrTooManySubscriber)
		return nil, errors.Wrapf(types.ErrTooManySubscriber, "max %d", q.max)
	}
	q.gid++
	c := &client{
		q:    q,
		id:   q.gid,
		name: name,
		recv: make(chan *types.LifecycleEvent, q.buffer),
	}
	q.clients[c.id] = c
	count := len(q.clients)
	if count&(count-1) == 0 || count == q.max {
		qlog.Info("Subscribe", "name", name, "id", c.id, "count", count)
	} else {
		qlog.Debug("Subscribe", "name", name, "id", c.id, "count", count)
	}
	return c, nil
}

// Unsubscribe 关闭订阅者的 channel, 可以重复调用
func (q *Queue) Unsubscribe(c Client) {
	if c == nil {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	cli, ok := q.clients[c.ID()]
	if !ok {
		return
	}
	delete(q.clients, cli.id)
	close(cli.recv)
	qlog.Debug("Unsubscribe", "name", cli.name, "id", cli.id, "dropped", atomic.LoadInt64(&cli.dropped))
}

// AddListener 回调形式的订阅, 回调在独立的 goroutine 中按顺序执行
func (q *Queue) AddListener(name string, fn func(*types.LifecycleEvent)) (cancel func(), err error) {
	if fn == nil {
		return nil, errors.Wrap(types.ErrInvalidParam, "nil listener")
	}
	c, err := q.Subscribe(name)
	if err != nil {
		return nil, err
	}
	go func() {
		for ev := range c.Recv() {
			callListener(name, fn, ev)
		}
	}()
	return c.Close, nil
}

func callListener(name string, fn func(*types.LifecycleEvent), ev *types.LifecycleEvent) {
	defer func() {
		if r := recover(); r != nil {
			qlog.Error("listener panic", "name", name, "type", ev.Type, "err", r)
		}
	}()
	fn(ev)
}

// Count 当前订阅者个数
func (q *Queue) Count() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.clients)
}

// Dropped 所有订阅者累计丢弃的事件数
func (q *Queue) Dropped() int64 {
	return atomic.LoadInt64(&q.dropped)
}

// Sent 成功放入订阅者 channel 的事件数
func (q *Queue) Sent() int64 {
	return atomic.LoadInt64(&q.sent)
}

// Close 关闭所有订阅者, 之后的 Publish 被忽略
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	for id, c := range q.clients {
		delete(q.clients, id)
		close(c.recv)
	}
	qlog.Info("queue closed", "name", q.name)
}
