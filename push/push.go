// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package push 把生命周期事件以 webhook 的方式推送给订阅者
package push

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/33cn/flipd/common/db"
	"github.com/33cn/flipd/common/log"
	"github.com/33cn/flipd/queue"
	"github.com/33cn/flipd/types"
	"github.com/pkg/errors"
)

var plog = log.New("module", "push")

const (
	notRunning               = int32(1)
	running                  = int32(2)
	maxPushSubscriber        = 100
	subscribeStatusActive    = int32(1)
	subscribeStatusNotActive = int32(2)
	maxContinueFail          = 3
	postFailSleep            = 60 * time.Second
	maxNameLen               = 128
	maxURLLen                = 1024
)

var pushPrefix = []byte("push-")

func calcPushKey(name string) []byte {
	return append(append([]byte{}, pushPrefix...), name...)
}

// Subscribe 订阅请求, Types 为空表示订阅所有事件
type Subscribe struct {
	Name  string            `json:"name"`
	URL   string            `json:"url"`
	Types []types.EventType `json:"types,omitempty"`
}

func (s *Subscribe) wants(ty types.EventType) bool {
	if len(s.Types) == 0 {
		return true
	}
	for _, t := range s.Types {
		if t == ty {
			return true
		}
	}
	return false
}

// WithStatus 持久化的订阅和状态
type WithStatus struct {
	Push   *Subscribe `json:"push"`
	Status int32      `json:"status"`
}

// Active 是否在推送
func (w *WithStatus) Active() bool {
	return w.Status == subscribeStatusActive
}

// PostService 发送数据
type PostService interface {
	PostData(subscribe *Subscribe, postdata []byte, roundID uint64) (err error)
}

// Client http post, body gzip 压缩, 对方返回 ok 表示成功
type Client struct {
	client *http.Client
}

// NewClient webhook http client
func NewClient() *Client {
	return &Client{
		client: &http.Client{Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: 10 * time.Second,
			ExpectContinueTimeout: 1 * time.Second,
		}},
	}
}

// PostData post one event
func (c *Client) PostData(subscribe *Subscribe, postdata []byte, roundID uint64) (err error) {
	//post data in body
	plog.Debug("postData begin", "round", roundID, "subscribe name", subscribe.Name)
	var buf bytes.Buffer
	g := gzip.NewWriter(&buf)
	if _, err = g.Write(postdata); err != nil {
		return err
	}
	if err = g.Close(); err != nil {
		return err
	}

	req, err := http.NewRequest("POST", subscribe.URL, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Content-Encoding", "gzip")
	resp, err := c.client.Do(req)
	if err != nil {
		plog.Info("postData", "Do err", err)
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return err
	}
	if string(body) != "ok" && string(body) != "OK" {
		plog.Error("postData fail", "name:", subscribe.Name, "URL", subscribe.URL, "status", resp.StatusCode, "body", string(body))
		return types.ErrPushPostData
	}
	plog.Debug("postData success", "name", subscribe.Name, "URL", subscribe.URL, "round", roundID)
	return nil
}

// pushNotify 每个订阅者一个任务
type pushNotify struct {
	subscribe *Subscribe
	client    queue.Client
	status    int32
}

// Push 订阅管理
type Push struct {
	store         db.DB
	queue         *queue.Queue
	tasks         map[string]*pushNotify
	mu            sync.Mutex
	postService   PostService
	max           int
	postFailSleep time.Duration
	done          chan struct{}
	wg            sync.WaitGroup
	closeOnce     sync.Once
}

// New 从数据库恢复处于 active 状态的订阅
func New(store db.DB, q *queue.Queue, cfg *types.Push) *Push {
	return NewWithService(store, q, cfg, NewClient(), postFailSleep)
}

// NewWithService 指定发送方式和失败后的等待时间
func NewWithService(store db.DB, q *queue.Queue, cfg *types.Push, svc PostService, failSleep time.Duration) *Push {
	max := maxPushSubscriber
	if cfg != nil && cfg.MaxSubscribers > 0 {
		max = cfg.MaxSubscribers
	}
	p := &Push{
		store:         store,
		queue:         q,
		tasks:         make(map[string]*pushNotify),
		postService:   svc,
		max:           max,
		postFailSleep: failSleep,
		done:          make(chan struct{}),
	}
	p.init()
	return p
}

//初始化: 从数据库读出订阅
func (p *Push) init() {
	values, err := p.store.List(pushPrefix)
	if err != nil {
		plog.Error("Push init", "err", err)
		return
	}
	for _, value := range values {
		var ws WithStatus
		if err := json.Unmarshal(value, &ws); err != nil {
			plog.Error("Push init", "Failed to decode subscribe due to err:", err)
			continue
		}
		if ws.Active() {
			if err := p.addTask(ws.Push); err != nil {
				plog.Error("Push init", "name", ws.Push.Name, "err", err)
			}
		}
	}
}

// AddSubscriber 新增订阅; 同名同 URL 视为恢复推送
func (p *Push) AddSubscriber(subscribe *Subscribe) error {
	if subscribe == nil {
		plog.Error("addSubscriber input para is null")
		return types.ErrInvalidParam
	}
	if err := checkSubscribe(subscribe); err != nil {
		return err
	}
	//如果该用户已经注册了订阅请求，则只是确认是否需用重新启动
	if exist, inDB := p.hasSubscriberExist(subscribe.Name); exist {
		if inDB.URL != subscribe.URL {
			return types.ErrNotAllowModifyPush
		}
		//使用保存在数据库中的push配置
		return p.check2ResumePush(inDB)
	}
	if p.subscriberCount() >= int64(p.max) {
		plog.Error("addSubscriber too many push subscriber", "max", p.max)
		return types.ErrTooManySubscriber
	}
	return p.persisAndStart(subscribe)
}

func checkSubscribe(s *Subscribe) error {
	if len(s.Name) == 0 || len(s.Name) > maxNameLen || len(s.URL) == 0 || len(s.URL) > maxURLLen {
		plog.Error("Invalid para due to wrong length", "len(Name)", len(s.Name), "len(URL)", len(s.URL))
		return types.ErrInvalidParam
	}
	u, err := url.Parse(s.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.Wrapf(types.ErrInvalidParam, "url %q", s.URL)
	}
	for _, ty := range s.Types {
		switch ty {
		case types.EventRoundStarted, types.EventRoundSettled, types.EventJackpotTriggered:
		default:
			return errors.Wrapf(types.ErrInvalidParam, "event type %q", ty)
		}
	}
	return nil
}

func (p *Push) hasSubscriberExist(name string) (bool, *Subscribe) {
	value, err := p.store.Get(calcPushKey(name))
	if err != nil {
		return false, nil
	}
	var ws WithStatus
	if err := json.Unmarshal(value, &ws); err != nil || ws.Push == nil {
		return false, nil
	}
	return true, ws.Push
}

func (p *Push) subscriberCount() int64 {
	return p.store.PrefixCount(pushPrefix)
}

func (p *Push) setStatus(subscribe *Subscribe, status int32) error {
	data, err := json.Marshal(&WithStatus{Push: subscribe, Status: status})
	if err != nil {
		return err
	}
	return p.store.SetSync(calcPushKey(subscribe.Name), data)
}

//向数据库添加订阅信息
func (p *Push) persisAndStart(subscribe *Subscribe) error {
	plog.Info("persisAndStart", "name", subscribe.Name, "url", subscribe.URL)
	if err := p.setStatus(subscribe, subscribeStatusActive); err != nil {
		return err
	}
	return p.addTask(subscribe)
}

func (p *Push) check2ResumePush(subscribe *Subscribe) error {
	p.mu.Lock()
	notify := p.tasks[subscribe.Name]
	p.mu.Unlock()
	if notify != nil && atomic.LoadInt32(&notify.status) == running {
		plog.Info("Is already in state:running", "name", subscribe.Name)
		return nil
	}
	plog.Info("check2ResumePush", "name", subscribe.Name)
	//有可能因为连续发送失败已经导致将其从推送任务中删除了
	if err := p.setStatus(subscribe, subscribeStatusActive); err != nil {
		return err
	}
	return p.addTask(subscribe)
}

// addTask 每个 name 一个 task
func (p *Push) addTask(subscribe *Subscribe) error {
	client, err := p.queue.Subscribe("push:" + subscribe.Name)
	if err != nil {
		return err
	}
	notify := &pushNotify{subscribe: subscribe, client: client, status: running}
	p.mu.Lock()
	if old := p.tasks[subscribe.Name]; old != nil {
		old.client.Close()
	}
	p.tasks[subscribe.Name] = notify
	p.mu.Unlock()
	p.wg.Add(1)
	go p.runTask(notify)
	return nil
}

func (p *Push) runTask(in *pushNotify) {
	defer p.wg.Done()
	subscribe := in.subscribe
	continueFailCount := 0
	for {
		select {
		case <-p.done:
			return
		case ev, ok := <-in.client.Recv():
			if !ok {
				return
			}
			if !subscribe.wants(ev.Type) {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				plog.Error("runTask marshal", "err", err)
				continue
			}
			for {
				err = p.postService.PostData(subscribe, data, ev.RoundID)
				if err == nil {
					continueFailCount = 0
					break
				}
				continueFailCount++
				plog.Error("postdata failed", "err", err, "round", ev.RoundID, "Name", subscribe.Name, "continueFailCount", continueFailCount)
				if continueFailCount >= maxContinueFail {
					p.deactivate(in)
					return
				}
				select {
				case <-p.done:
					return
				case <-time.After(p.postFailSleep):
				}
			}
		}
	}
}

func (p *Push) deactivate(in *pushNotify) {
	atomic.StoreInt32(&in.status, notRunning)
	plog.Error("postdata failed exceed 3 times", "Name", in.subscribe.Name)
	p.mu.Lock()
	if p.tasks[in.subscribe.Name] == in {
		delete(p.tasks, in.subscribe.Name)
	}
	p.mu.Unlock()
	in.client.Close()
	if err := p.setStatus(in.subscribe, subscribeStatusNotActive); err != nil {
		plog.Error("deactivate", "name", in.subscribe.Name, "err", err)
	}
}

// List 列出所有已经设置的推送订阅
func (p *Push) List() ([]*WithStatus, error) {
	values, err := p.store.List(pushPrefix)
	if err != nil {
		return nil, err
	}
	list := make([]*WithStatus, 0, len(values))
	for _, value := range values {
		var ws WithStatus
		if err := json.Unmarshal(value, &ws); err != nil {
			return nil, err
		}
		list = append(list, &ws)
	}
	return list, nil
}

// Close 停止所有推送任务
func (p *Push) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.mu.Lock()
		for _, t := range p.tasks {
			t.client.Close()
		}
		p.mu.Unlock()
		p.wg.Wait()
	})
}
