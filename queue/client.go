// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package queue

import (
	"sync/atomic"

	"github.com/33cn/flipd/types"
)

// Client 一个订阅者, Recv 在 Close 之后被关闭
type Client interface {
	ID() int64
	Name() string
	Recv() <-chan *types.LifecycleEvent
	// Dropped 因为 channel 满而丢弃的事件数
	Dropped() int64
	Close()
}

type client struct {
	q       *Queue
	id      int64
	name    string
	recv    chan *types.LifecycleEvent
	dropped int64
}

func (c *client) ID() int64 {
	return c.id
}

func (c *client) Name() string {
	return c.name
}

func (c *client) Recv() <-chan *types.LifecycleEvent {
	return c.recv
}

func (c *client) Dropped() int64 {
	return atomic.LoadInt64(&c.dropped)
}

func (c *client) Close() {
	c.q.Unsubscribe(c)
}
