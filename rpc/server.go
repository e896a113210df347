// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rpc flipd 的 http 接口: 状态, 轮次, 事件 feed, 推送订阅和运维操作
package rpc

import (
	"context"
	"encoding/base64"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/33cn/flipd/common/log"
	"github.com/33cn/flipd/push"
	"github.com/33cn/flipd/queue"
	"github.com/33cn/flipd/types"
	"github.com/gorilla/websocket"
	"github.com/kevinms/leakybucket-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

var rlog = log.New("module", "rpc")

const (
	maxBodyBytes = 1 << 16
	feedBurst    = 10
)

// Engine 只读状态和运维接口
type Engine interface {
	Status() types.EngineStatus
	Running() bool
	AuthorizeForce(roundID uint64) error
}

// ChainReader /api/round 使用
type ChainReader interface {
	ReadGlobalConfig(ctx context.Context) (*types.GlobalConfig, error)
	ReadRound(ctx context.Context, roundID uint64) (*types.Round, error)
}

// Journal 提交记录
type Journal interface {
	List(count int) ([]*types.Submission, error)
}

// PushManager webhook 订阅管理
type PushManager interface {
	AddSubscriber(s *push.Subscribe) error
	List() ([]*push.WithStatus, error)
}

// Server http server
type Server struct {
	cfg         *types.RPC
	engine      Engine
	queue       *queue.Queue
	reader      ChainReader
	journal     Journal
	push        PushManager
	registry    *prometheus.Registry
	whitelist   map[string]bool
	feedLimiter *leakybucket.Collector
	upgrader    websocket.Upgrader
	heartbeat   time.Duration
	srv         *http.Server
	l           net.Listener
	done        chan struct{}
}

// New 其余的依赖通过 SetXXX 注入, 未注入的接口返回错误
func New(cfg *types.RPC, eng Engine, q *queue.Queue) *Server {
	s := &Server{
		cfg:       cfg,
		engine:    eng,
		queue:     q,
		whitelist: initIPWhitelist(cfg.Whitelist),
		done:      make(chan struct{}),
	}
	rate := cfg.MaxFeedPerIP
	if rate <= 0 {
		rate = 5
	}
	s.feedLimiter = leakybucket.NewCollector(rate, feedBurst, true)
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	s.heartbeat = cfg.Heartbeat
	if s.heartbeat <= 0 {
		s.heartbeat = 30 * time.Second
	}
	return s
}

// SetReader chain reader
func (s *Server) SetReader(r ChainReader) {
	s.reader = r
}

// SetJournal submission journal
func (s *Server) SetJournal(j Journal) {
	s.journal = j
}

// SetPush push 关闭时不设置
func (s *Server) SetPush(p PushManager) {
	s.push = p
}

// SetRegistry prometheus registry for /metrics
func (s *Server) SetRegistry(r *prometheus.Registry) {
	s.registry = r
}

// initIPWhitelist 为空时只允许本机, "*" 允许所有
func initIPWhitelist(list []string) map[string]bool {
	whitelist := make(map[string]bool)
	if len(list) == 0 {
		whitelist["127.0.0.1"] = true
		return whitelist
	}
	if len(list) == 1 && list[0] == "*" {
		whitelist["0.0.0.0"] = true
		return whitelist
	}
	for _, addr := range list {
		whitelist[addr] = true
	}
	return whitelist
}

func (s *Server) checkBasicAuth(r *http.Request) bool {
	if s.cfg.UserName == "" && s.cfg.UserPasswd == "" {
		return true
	}
	auth := strings.SplitN(r.Header.Get("Authorization"), " ", 2)
	if len(auth) != 2 || auth[0] != "Basic" {
		return false
	}
	b, err := base64.StdEncoding.DecodeString(auth[1])
	if err != nil {
		return false
	}
	pair := strings.SplitN(string(b), ":", 2)
	if len(pair) != 2 {
		return false
	}
	return pair[0] == s.cfg.UserName && pair[1] == s.cfg.UserPasswd
}

func (s *Server) checkIPWhitelist(addr string) bool {
	//回环网络直接允许
	ip := net.ParseIP(addr)
	if ip == nil {
		return false
	}
	if ip.IsLoopback() {
		return true
	}
	if ipv4 := ip.To4(); ipv4 != nil {
		addr = ipv4.String()
	}
	if _, ok := s.whitelist["0.0.0.0"]; ok {
		return true
	}
	return s.whitelist[addr]
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || len(s.cfg.CORSOrigins) == 0 {
		return true
	}
	for _, o := range s.cfg.CORSOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// admin 运维接口需要 ip 白名单和 basic auth
func (s *Server) admin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ip := remoteIP(r)
		if !s.checkIPWhitelist(ip) {
			rlog.Error("admin", "reject ip", ip, "path", r.URL.Path)
			respond(w, http.StatusForbidden, "reject by whitelist")
			return
		}
		if !s.checkBasicAuth(r) {
			w.Header().Set("WWW-Authenticate", `Basic realm="flipd"`)
			respond(w, http.StatusUnauthorized, nil)
			return
		}
		next(w, r)
	}
}

// allowFeed 每个 ip 建立 feed 连接的速率限制
func (s *Server) allowFeed(r *http.Request) bool {
	ip := remoteIP(r)
	if s.feedLimiter.Remaining(ip) <= 0 {
		rlog.Warn("feed throttled", "ip", ip)
		return false
	}
	s.feedLimiter.Add(ip, 1)
	return true
}

// Handler 所有路由, 外层是 cors
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/cron-status", s.handleStatus)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/round", s.handleRound)
	mux.HandleFunc("/api/journal", s.handleJournal)
	mux.HandleFunc("/api/feed/stream", s.handleFeedStream)
	mux.HandleFunc("/api/feed/ws", s.handleFeedWS)
	mux.HandleFunc("/api/push/list", s.handlePushList)
	mux.HandleFunc("/api/push/subscribe", s.admin(s.handlePushSubscribe))
	mux.HandleFunc("/api/admin/force", s.admin(s.handleForce))
	if s.registry != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
	c := cors.New(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})
	return c.Handler(NewMaxBodyBytesHandler(maxBodyBytes)(mux))
}

// Listen 返回实际监听的端口, bindAddr 端口为 0 时由系统分配
func (s *Server) Listen() (int, error) {
	l, err := net.Listen("tcp", s.cfg.BindAddr)
	if err != nil {
		return 0, err
	}
	s.l = l
	s.srv = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	port := l.Addr().(*net.TCPAddr).Port
	rlog.Info("rpc Listen", "addr", l.Addr().String())
	return port, nil
}

// Serve 阻塞直到 Shutdown
func (s *Server) Serve() error {
	if s.srv == nil {
		return types.ErrEngineStopped
	}
	err := s.srv.Serve(s.l)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown 先结束 feed 连接, 再关闭 server
func (s *Server) Shutdown(ctx context.Context) error {
	select {
	case <-s.done:
	default:
		close(s.done)
	}
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
