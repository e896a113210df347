// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const wsWriteWait = 10 * time.Second

// handleFeedStream server-sent events, 空闲时发送注释行作为心跳
func (s *Server) handleFeedStream(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		respond(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	if !s.allowFeed(r) {
		respond(w, http.StatusTooManyRequests, nil)
		return
	}
	client, err := s.queue.Subscribe("sse:" + remoteIP(r))
	if err != nil {
		respond(w, http.StatusServiceUnavailable, err)
		return
	}
	defer client.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, ok := <-client.Recv():
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				rlog.Error("feed marshal", "err", err)
				continue
			}
			if _, err := fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// handleFeedWS 每个事件一条 json 文本消息, 心跳用 ping
func (s *Server) handleFeedWS(w http.ResponseWriter, r *http.Request) {
	if !s.allowFeed(r) {
		respond(w, http.StatusTooManyRequests, nil)
		return
	}
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		rlog.Debug("ws upgrade", "err", err)
		return
	}
	defer conn.Close()
	client, err := s.queue.Subscribe("ws:" + remoteIP(r))
	if err != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseTryAgainLater, err.Error()), time.Now().Add(wsWriteWait))
		return
	}
	defer client.Close()

	// 读协程只用来发现对端关闭
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-closed:
			return
		case <-s.done:
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutdown"), time.Now().Add(wsWriteWait))
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(wsWriteWait)); err != nil {
				return
			}
		case ev, ok := <-client.Recv():
			if !ok {
				return
			}
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteJSON(ev); err != nil {
				rlog.Debug("ws write", "err", err)
				return
			}
		}
	}
}
