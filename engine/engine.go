// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package engine 轮次生命周期编排: 读链, 决策, 提交, 广播.
//
// 只有 loop goroutine 会写编排状态, 单个进程内读-决策-提交从不重叠.
// 同一个合约只应该运行一个 engine, 这一点没有做租约保证.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/33cn/flipd/common/log"
	"github.com/33cn/flipd/queue"
	"github.com/33cn/flipd/submitter"
	"github.com/33cn/flipd/types"
	pkgerr "github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var elog = log.New("module", "engine")

// ChainReader 链上状态读取
type ChainReader interface {
	ReadGlobalConfig(ctx context.Context) (*types.GlobalConfig, error)
	ReadRound(ctx context.Context, roundID uint64) (*types.Round, error)
	ReadJackpot(ctx context.Context) (uint64, error)
	ClusterTime(ctx context.Context) (time.Time, error)
}

// TxSubmitter 交易提交
type TxSubmitter interface {
	Submit(ctx context.Context, kind types.TransitionKind, params *types.TransitionParams) (*types.Confirmation, error)
}

// Journal 提交记录
type Journal interface {
	Record(sub *types.Submission) error
}

// Engine round lifecycle orchestrator
type Engine struct {
	cfg       types.Engine
	reader    ChainReader
	submitter TxSubmitter
	queue     *queue.Queue
	journal   Journal
	machine   *Machine
	metrics   *Metrics
	tracer    trace.Tracer

	mu     sync.RWMutex
	status types.EngineStatus

	runMu  sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
	wake   chan struct{}
	ticks  int64
}

// New engine, submitter 的退避参数同时用于卡住轮次的结算节奏
func New(cfg *types.Engine, sub *types.Submitter, reader ChainReader, txs TxSubmitter, q *queue.Queue) *Engine {
	mcfg := MachineConfig{
		RoundDuration:      cfg.RoundDuration,
		StuckThreshold:     cfg.StuckThreshold,
		StuckPolicy:        cfg.StuckPolicy,
		ResubmitAfter:      cfg.ResubmitAfter,
		AdvanceEmptyRounds: cfg.AdvanceEmptyRounds,
	}
	if sub != nil {
		mcfg.BackoffBase = sub.BackoffBase
		mcfg.BackoffMax = sub.BackoffMax
	}
	return &Engine{
		cfg:       *cfg,
		reader:    reader,
		submitter: txs,
		queue:     q,
		machine:   NewMachine(mcfg),
		metrics:   NewMetrics(),
		tracer:    otel.Tracer("github.com/33cn/flipd/engine"),
		wake:      make(chan struct{}, 1),
		status:    types.EngineStatus{Phase: types.PhaseUnknown},
	}
}

// SetJournal 可选的提交记录
func (e *Engine) SetJournal(j Journal) {
	e.journal = j
}

// Metrics prometheus collectors
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// Start 启动 loop, 重复调用无副作用
func (e *Engine) Start(ctx context.Context) error {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel != nil {
		select {
		case <-e.done:
			// 上一次的 loop 已经随 ctx 退出
			e.cancel()
			e.cancel = nil
		default:
			return nil
		}
	}
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	e.done = make(chan struct{})
	e.updateStatus(func(s *types.EngineStatus) {
		s.Running = true
		s.LastActivity = types.Now()
	})
	e.syncClock(ctx)
	elog.Info("engine start", "poll", e.cfg.PollInterval, "roundDuration", e.cfg.RoundDuration,
		"stuckThreshold", e.cfg.StuckThreshold, "stuckPolicy", e.cfg.StuckPolicy)
	go e.loop(ctx, e.done)
	return nil
}

// Stop 停止调度并等待当前迭代结束, 正在进行的提交不会被打断
func (e *Engine) Stop() {
	e.runMu.Lock()
	defer e.runMu.Unlock()
	if e.cancel == nil {
		return
	}
	e.cancel()
	<-e.done
	e.cancel = nil
	e.updateStatus(func(s *types.EngineStatus) {
		s.Running = false
	})
	elog.Info("engine stopped")
}

// AddListener 订阅生命周期事件
func (e *Engine) AddListener(name string, fn func(*types.LifecycleEvent)) (func(), error) {
	return e.queue.AddListener(name, fn)
}

// AuthorizeForce 运维授权: 允许越过卡住的 roundID 直接开始下一轮, 只生效一次
func (e *Engine) AuthorizeForce(roundID uint64) error {
	if roundID == 0 {
		return pkgerr.Wrap(types.ErrInvalidParam, "round id")
	}
	e.machine.AuthorizeForce(roundID)
	e.updateStatus(func(s *types.EngineStatus) {
		s.ForceAuthorizedRound = roundID
	})
	elog.Warn("force advance authorized", "round", roundID, "policy", e.cfg.StuckPolicy)
	e.wakeUp()
	return nil
}

func (e *Engine) wakeUp() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine) loop(ctx context.Context, done chan struct{}) {
	defer func() {
		// ctx 可能在外部被取消, 不经过 Stop
		e.updateStatus(func(s *types.EngineStatus) {
			s.Running = false
		})
		close(done)
	}()
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()
	e.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.wake:
		}
		if ctx.Err() != nil {
			return
		}
		e.tick(ctx)
	}
}

func (e *Engine) syncClock(ctx context.Context) {
	cctx, cancel := context.WithTimeout(ctx, e.cfg.PollInterval)
	defer cancel()
	t, err := e.reader.ClusterTime(cctx)
	if err != nil {
		elog.Warn("syncClock", "err", err)
		return
	}
	types.SetTimeDelta(time.Until(t))
	elog.Debug("syncClock", "delta", types.TimeDelta())
}

func (e *Engine) tick(ctx context.Context) {
	ctx, span := e.tracer.Start(ctx, "engine.tick")
	defer span.End()
	begin := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err := pkgerr.Wrapf(types.ErrPanic, "%v", r)
			elog.Error("tick panic", "err", err, "stack", string(debug.Stack()))
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			e.fail(err)
		}
		cost := time.Since(begin)
		e.metrics.Ticks.Inc()
		e.metrics.TickSeconds.Observe(cost.Seconds())
		e.metrics.tickTimer.Update(cost)
	}()
	e.ticks++
	if e.cfg.ClockSyncEvery > 0 && e.ticks%int64(e.cfg.ClockSyncEvery) == 0 {
		e.syncClock(ctx)
	}
	if err := e.iterate(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.fail(err)
	}
}

// iterate 读链 -> 决策 -> 至多一次提交
func (e *Engine) iterate(ctx context.Context) error {
	global, err := e.reader.ReadGlobalConfig(ctx)
	if err != nil {
		return pkgerr.Wrap(err, "read global")
	}
	n := global.CurrentRound
	obs := Observation{Global: global}
	if n > 0 {
		cur, err := e.reader.ReadRound(ctx, n)
		if err != nil && !errors.Is(err, types.ErrNotFound) {
			return pkgerr.Wrapf(err, "read round %d", n)
		}
		obs.Current = cur
		if n > 1 && (cur == nil || e.machine.NeedsPrevious(n)) {
			prev, err := e.reader.ReadRound(ctx, n-1)
			if err != nil && !errors.Is(err, types.ErrNotFound) {
				return pkgerr.Wrapf(err, "read round %d", n-1)
			}
			obs.Previous = prev
		}
	}
	obs.Now = types.Now()
	d := e.machine.Evaluate(obs)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.Int64("round", int64(n)),
		attribute.String("phase", string(d.Phase)),
	)
	e.observe(obs, &d)
	for _, s := range d.Settled {
		e.publishSettled(s.Round, s.Signature)
	}
	if d.Action == nil {
		return nil
	}
	if ctx.Err() != nil {
		// 已经停止, 不再开始新的提交
		return nil
	}
	return e.perform(ctx, d.Action)
}

func (e *Engine) observe(obs Observation, d *Decision) {
	n := obs.Global.CurrentRound
	e.metrics.CurrentRound.Set(float64(n))
	e.metrics.StuckRound.Set(float64(d.StuckRoundID))
	if d.Stuck {
		e.metrics.StuckEvents.Inc()
		elog.Error("stuck round", "round", n, "polls", d.StuckCount, "policy", e.cfg.StuckPolicy,
			"pot", obs.Current.Pot(), "endsAt", obs.Current.EndsAt)
	} else if d.Reason != "" {
		elog.Warn("iterate", "round", n, "phase", d.Phase, "reason", d.Reason)
	}
	e.updateStatus(func(s *types.EngineStatus) {
		s.Phase = d.Phase
		s.LastObservedRoundID = n
		s.LastCheck = obs.Now
		s.Stuck = d.StuckRoundID != 0
		s.StuckRoundID = d.StuckRoundID
		if d.Stuck {
			s.ConsecutiveFailureCount++
			s.LastError = pkgerr.Wrapf(types.ErrStuckRound, "round %d", n).Error()
			s.PushError(obs.Now, s.LastError)
		}
		if d.Phase == types.PhaseOpen {
			s.ConsecutiveFailureCount = 0
		}
		if s.ForceAuthorizedRound != 0 && !e.machine.ForceAuthorized(s.ForceAuthorizedRound) {
			s.ForceAuthorizedRound = 0
		}
	})
}

func (e *Engine) perform(ctx context.Context, a *Action) error {
	// 提交不受 Stop 影响, 只受 SubmitTimeout 约束
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.SubmitTimeout)
	defer cancel()
	sctx, span := e.tracer.Start(sctx, "engine.submit", trace.WithAttributes(
		attribute.String("kind", a.Kind.String()),
		attribute.Int64("round", int64(a.RoundID)),
	))
	defer span.End()

	var jackpotBefore uint64
	haveJackpot := false
	if a.Kind == types.TransitionSettle {
		if v, err := e.reader.ReadJackpot(sctx); err == nil {
			jackpotBefore, haveJackpot = v, true
		}
	}
	params := &types.TransitionParams{RoundID: a.RoundID, Duration: e.cfg.RoundDuration}
	elog.Info("perform", "kind", a.Kind, "round", a.RoundID)
	conf, err := e.submitter.Submit(sctx, a.Kind, params)
	if conf == nil {
		conf = &types.Confirmation{}
	}
	sig := ""
	if !conf.Signature.IsZero() {
		sig = conf.Signature.String()
	}
	at := types.Now()
	outcome := outcomeOf(err)
	e.machine.Record(a.Kind, a.RoundID, outcome, sig, at)
	e.record(a, conf, sig, err, at)

	switch {
	case err == nil:
		e.updateStatus(func(s *types.EngineStatus) {
			s.LastTransitionAt = at
			s.LastActivity = at
			s.ConsecutiveFailureCount = 0
			if a.Kind == types.TransitionSettle {
				s.RoundsClosed++
				s.Phase = types.PhaseSettled
			} else {
				s.RoundsStarted++
			}
		})
		if a.Kind == types.TransitionSettle {
			e.afterSettle(sctx, a.RoundID, sig, jackpotBefore, haveJackpot)
		} else {
			e.afterStart(sctx, a, sig)
		}
		e.wakeUp()
		return nil
	case errors.Is(err, types.ErrStaleState):
		span.AddEvent("stale")
		elog.Warn("perform stale", "kind", a.Kind, "round", a.RoundID, "err", err)
		e.reconcile(sctx, a.RoundID)
		e.wakeUp()
		return nil
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return pkgerr.Wrapf(err, "%s round %d", a.Kind, a.RoundID)
}

func outcomeOf(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeConfirmed
	case errors.Is(err, types.ErrConfirmTimeout):
		return OutcomeUnconfirmed
	case errors.Is(err, types.ErrStaleState):
		return OutcomeStale
	}
	return OutcomeFailed
}

func (e *Engine) record(a *Action, conf *types.Confirmation, sig string, err error, at time.Time) {
	result := submitter.ResultOf(err)
	e.metrics.Transitions.WithLabelValues(a.Kind.String(), result).Inc()
	e.updateStatus(func(s *types.EngineStatus) {
		s.Submissions++
		s.LastActivity = at
	})
	if e.journal == nil {
		return
	}
	sub := &types.Submission{
		Kind:      a.Kind,
		RoundID:   a.RoundID,
		Signature: sig,
		Result:    result,
		Attempts:  conf.Attempts,
		Latency:   conf.Latency,
		At:        at,
	}
	if err != nil {
		sub.Error = err.Error()
	}
	if jerr := e.journal.Record(sub); jerr != nil {
		elog.Error("journal record", "kind", a.Kind, "round", a.RoundID, "err", jerr)
	}
}

func (e *Engine) afterStart(ctx context.Context, a *Action, sig string) {
	round, err := e.reader.ReadRound(ctx, a.RoundID)
	if err != nil {
		elog.Warn("afterStart read", "round", a.RoundID, "err", err)
		round = &types.Round{
			RoundID:     a.RoundID,
			EndsAt:      types.Now().Add(e.cfg.RoundDuration).Unix(),
			WinningSide: types.SideUnset,
		}
	}
	ev := types.NewLifecycleEvent(types.EventRoundStarted, round)
	ev.Signature = sig
	ev.Forced = a.Kind == types.TransitionForceStart
	e.publish(ev)
}

func (e *Engine) afterSettle(ctx context.Context, roundID uint64, sig string, jackpotBefore uint64, haveJackpot bool) {
	round, err := e.reader.ReadRound(ctx, roundID)
	if err != nil {
		// 下一次轮询会看到结算结果
		elog.Warn("afterSettle read", "round", roundID, "err", err)
		return
	}
	if round.Settled {
		if s, ok := e.machine.Announce(round); ok {
			if s == "" {
				s = sig
			}
			e.publishSettled(round, s)
		}
	}
	if !haveJackpot {
		return
	}
	after, err := e.reader.ReadJackpot(ctx)
	if err != nil || after >= jackpotBefore {
		return
	}
	ev := types.NewLifecycleEvent(types.EventJackpotTriggered, round)
	ev.JackpotAmount = jackpotBefore - after
	ev.Signature = sig
	e.publish(ev)
}

// reconcile 链拒绝了交易, 重新读取并以链为准
func (e *Engine) reconcile(ctx context.Context, roundID uint64) {
	round, err := e.reader.ReadRound(ctx, roundID)
	if err != nil {
		elog.Warn("reconcile read", "round", roundID, "err", err)
		return
	}
	if s, ok := e.machine.Announce(round); ok {
		e.publishSettled(round, s)
	}
}

func (e *Engine) publishSettled(round *types.Round, sig string) {
	ev := types.NewLifecycleEvent(types.EventRoundSettled, round)
	ev.Signature = sig
	e.publish(ev)
}

func (e *Engine) publish(ev *types.LifecycleEvent) {
	elog.Info("publish", "type", ev.Type, "round", ev.RoundID, "pot", ev.PotSOL, "id", ev.ID)
	e.metrics.Events.WithLabelValues(string(ev.Type)).Inc()
	e.metrics.eventMeter.Mark(1)
	e.queue.Publish(ev)
}

func (e *Engine) fail(err error) {
	e.metrics.TickErrors.Inc()
	now := types.Now()
	elog.Error("iterate", "err", err)
	e.updateStatus(func(s *types.EngineStatus) {
		s.ConsecutiveFailureCount++
		s.LastError = err.Error()
		s.PushError(now, fmt.Sprint(err))
	})
}
