// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"sync"
	"time"

	"github.com/33cn/flipd/types"
	"github.com/cenkalti/backoff/v4"
)

// Outcome 一次提交的结果, 反馈给 Machine
type Outcome int

// outcomes
const (
	OutcomeConfirmed Outcome = iota
	// OutcomeUnconfirmed 已发送但没有等到确认
	OutcomeUnconfirmed
	OutcomeFailed
	// OutcomeStale 链拒绝了交易, 说明本地视图落后
	OutcomeStale
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeUnconfirmed:
		return "unconfirmed"
	case OutcomeStale:
		return "stale"
	}
	return "failed"
}

// Observation 一次轮询读到的链上状态
type Observation struct {
	Now    time.Time
	Global *types.GlobalConfig
	// Current 为 nil 表示 Global.CurrentRound 对应的账户不存在
	Current *types.Round
	// Previous CurrentRound-1, 只有在需要时才读取
	Previous *types.Round
}

// Action 需要提交的迁移
type Action struct {
	Kind    types.TransitionKind
	RoundID uint64
}

// SettledRound 需要广播 round_settled 的轮次
type SettledRound struct {
	Round     *types.Round
	Signature string
}

// Decision Evaluate 的结果, 最多一个 Action
type Decision struct {
	Phase  types.Phase
	Action *Action
	// Stuck 只在过期轮询次数恰好等于阈值的那一次为 true
	Stuck bool
	// StuckRoundID 超过阈值仍未结算的轮次, 0 表示没有
	StuckRoundID uint64
	StuckCount   int
	Settled      []SettledRound
	Reason       string
}

// MachineConfig 状态机参数
type MachineConfig struct {
	RoundDuration      time.Duration
	StuckThreshold     int
	StuckPolicy        string
	ResubmitAfter      time.Duration
	AdvanceEmptyRounds bool
	BackoffBase        time.Duration
	BackoffMax         time.Duration
}

type attemptKey struct {
	kind    types.TransitionKind
	roundID uint64
}

type attempt struct {
	outcome   Outcome
	at        time.Time
	signature string
}

// 超过这个距离的轮次不再需要记忆
const memoryWindow = 4

// Machine 根据观察和本地记忆决定下一步迁移.
// 链上状态永远优先, 本地记忆只用来避免重复提交和重复广播.
type Machine struct {
	cfg MachineConfig

	mu            sync.Mutex
	attempts      map[attemptKey]*attempt
	stuckCount    map[uint64]int
	seenUnsettled map[uint64]bool
	announced     map[uint64]bool
	suspect       map[uint64]bool
	overrides     map[uint64]bool
	settleBackoff map[uint64]*backoff.ExponentialBackOff
	nextSettleAt  map[uint64]time.Time
}

// NewMachine machine
func NewMachine(cfg MachineConfig) *Machine {
	if cfg.StuckThreshold < 1 {
		cfg.StuckThreshold = 1
	}
	return &Machine{
		cfg:           cfg,
		attempts:      make(map[attemptKey]*attempt),
		stuckCount:    make(map[uint64]int),
		seenUnsettled: make(map[uint64]bool),
		announced:     make(map[uint64]bool),
		suspect:       make(map[uint64]bool),
		overrides:     make(map[uint64]bool),
		settleBackoff: make(map[uint64]*backoff.ExponentialBackOff),
		nextSettleAt:  make(map[uint64]time.Time),
	}
}

// ForceStart 和 Start 是同一条指令, 共用一份提交记录
func normalize(kind types.TransitionKind) types.TransitionKind {
	if kind == types.TransitionForceStart {
		return types.TransitionStart
	}
	return kind
}

// Record 记录提交结果
func (m *Machine) Record(kind types.TransitionKind, roundID uint64, outcome Outcome, signature string, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[attemptKey{normalize(kind), roundID}] = &attempt{outcome: outcome, at: at, signature: signature}
	if kind == types.TransitionForceStart && outcome == OutcomeConfirmed && roundID > 1 {
		// 越过了 roundID-1, 之后还要关注它是否被结算
		delete(m.overrides, roundID-1)
		m.suspect[roundID] = true
	}
}

// AuthorizeForce 一次性授权越过卡住的轮次
func (m *Machine) AuthorizeForce(roundID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.overrides[roundID] = true
}

// ForceAuthorized 是否存在未消费的授权
func (m *Machine) ForceAuthorized(roundID uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.overrides[roundID]
}

// NeedsPrevious loop 是否需要同时读取 roundID-1
func (m *Machine) NeedsPrevious(roundID uint64) bool {
	if roundID <= 1 {
		return false
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	prev := roundID - 1
	if m.suspect[roundID] && !m.announced[prev] {
		return true
	}
	return m.seenUnsettled[prev] && !m.announced[prev]
}

// Announce 决定一个已结算的轮次是否需要广播, 每个轮次最多一次
func (m *Machine) Announce(round *types.Round) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.announce(round)
}

func (m *Machine) announce(round *types.Round) (string, bool) {
	if round == nil || !round.Settled || m.announced[round.RoundID] {
		return "", false
	}
	a, submitted := m.attempts[attemptKey{types.TransitionSettle, round.RoundID}]
	if !m.seenUnsettled[round.RoundID] && !submitted {
		return "", false
	}
	m.announced[round.RoundID] = true
	delete(m.suspect, round.RoundID+1)
	// 只有确认过的交易才能作为结算签名
	if submitted && a.outcome == OutcomeConfirmed {
		return a.signature, true
	}
	return "", true
}

func (m *Machine) note(round *types.Round, d *Decision) {
	if round == nil {
		return
	}
	if !round.Settled {
		m.seenUnsettled[round.RoundID] = true
		return
	}
	if sig, ok := m.announce(round); ok {
		d.Settled = append(d.Settled, SettledRound{Round: round, Signature: sig})
	}
}

func (m *Machine) due(kind types.TransitionKind, roundID uint64, now time.Time) bool {
	a, ok := m.attempts[attemptKey{normalize(kind), roundID}]
	if !ok || a.outcome == OutcomeFailed {
		return true
	}
	return now.Sub(a.at) >= m.cfg.ResubmitAfter
}

func (m *Machine) propose(d *Decision, kind types.TransitionKind, roundID uint64, now time.Time) {
	if m.due(kind, roundID, now) {
		d.Action = &Action{Kind: kind, RoundID: roundID}
	}
}

func (m *Machine) prune(current uint64) {
	if current <= memoryWindow {
		return
	}
	floor := current - memoryWindow
	for k := range m.attempts {
		if k.roundID < floor {
			delete(m.attempts, k)
		}
	}
	for _, set := range []map[uint64]bool{m.seenUnsettled, m.announced, m.suspect, m.overrides} {
		for id := range set {
			if id < floor {
				delete(set, id)
			}
		}
	}
	for id := range m.stuckCount {
		if id < floor {
			delete(m.stuckCount, id)
			delete(m.settleBackoff, id)
			delete(m.nextSettleAt, id)
		}
	}
}

// settle 卡住以后按指数退避提交结算
func (m *Machine) settleAllowed(roundID uint64, count int, now time.Time) bool {
	if count < m.cfg.StuckThreshold {
		return true
	}
	next, ok := m.nextSettleAt[roundID]
	if ok && now.Before(next) {
		return false
	}
	b, ok := m.settleBackoff[roundID]
	if !ok {
		b = backoff.NewExponentialBackOff()
		b.InitialInterval = m.cfg.BackoffBase
		b.MaxInterval = m.cfg.BackoffMax
		b.RandomizationFactor = 0
		b.MaxElapsedTime = 0
		b.Reset()
		m.settleBackoff[roundID] = b
	}
	m.nextSettleAt[roundID] = now.Add(b.NextBackOff())
	return true
}

// Evaluate 给定观察, 返回阶段和至多一个动作
func (m *Machine) Evaluate(obs Observation) Decision {
	m.mu.Lock()
	defer m.mu.Unlock()

	var d Decision
	if obs.Global == nil {
		d.Phase = types.PhaseUnknown
		d.Reason = "global state not observed"
		return d
	}
	n := obs.Global.CurrentRound
	m.prune(n)
	if obs.Previous != nil {
		m.note(obs.Previous, &d)
	}
	if n == 0 {
		d.Phase = types.PhaseAwaitingStart
		m.propose(&d, types.TransitionStart, 1, obs.Now)
		return d
	}
	cur := obs.Current
	if cur == nil {
		if obs.Previous != nil && obs.Previous.Settled {
			d.Phase = types.PhaseAwaitingStart
			if len(d.Settled) > 0 {
				d.Phase = types.PhaseSettled
			}
			m.propose(&d, types.TransitionStart, n, obs.Now)
			return d
		}
		d.Phase = types.PhaseUnknown
		d.Reason = "current round account missing"
		return d
	}
	announced := len(d.Settled)
	m.note(cur, &d)
	if cur.Settled {
		d.Phase = types.PhaseAwaitingStart
		if len(d.Settled) > announced {
			d.Phase = types.PhaseSettled
		}
		m.propose(&d, types.TransitionStart, n+1, obs.Now)
		return d
	}
	if !cur.Expired(obs.Now) {
		d.Phase = types.PhaseOpen
		return d
	}

	m.stuckCount[n]++
	count := m.stuckCount[n]
	d.StuckCount = count
	d.Stuck = count == m.cfg.StuckThreshold
	if count >= m.cfg.StuckThreshold {
		d.StuckRoundID = n
	}
	d.Phase = types.PhaseExpired
	if a, ok := m.attempts[attemptKey{types.TransitionSettle, n}]; ok && a.outcome != OutcomeFailed {
		d.Phase = types.PhaseSettling
	}

	if cur.Pot() == 0 {
		// 空奖池不能结算, 只能在授权后直接开下一轮
		if m.cfg.AdvanceEmptyRounds || m.overrides[n] {
			m.propose(&d, types.TransitionForceStart, n+1, obs.Now)
		} else {
			d.Reason = "expired round has no bets"
		}
		return d
	}
	if m.cfg.StuckPolicy == types.StuckPolicyForce && m.overrides[n] && count >= m.cfg.StuckThreshold {
		m.propose(&d, types.TransitionForceStart, n+1, obs.Now)
		return d
	}
	if m.due(types.TransitionSettle, n, obs.Now) && m.settleAllowed(n, count, obs.Now) {
		d.Action = &Action{Kind: types.TransitionSettle, RoundID: n}
	}
	return d
}
