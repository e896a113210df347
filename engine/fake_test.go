// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/33cn/flipd/types"
	"github.com/gagliardetto/solana-go"
)

// fakeChain 内存里的合约状态
type fakeChain struct {
	mu       sync.Mutex
	global   types.GlobalConfig
	rounds   map[uint64]*types.Round
	jackpot  uint64
	panicked bool
	// bumpOnSettle 结算时递增计数器的账本模型
	bumpOnSettle bool
	clock        func() time.Time
}

func newFakeChain(current uint64) *fakeChain {
	return &fakeChain{
		global: types.GlobalConfig{CurrentRound: current},
		rounds: make(map[uint64]*types.Round),
	}
}

func (c *fakeChain) put(r *types.Round) {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *r
	c.rounds[r.RoundID] = &cp
}

func (c *fakeChain) settle(id uint64, side types.Side) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := c.rounds[id]
	r.Settled = true
	r.WinningSide = side
}

func (c *fakeChain) ReadGlobalConfig(ctx context.Context) (*types.GlobalConfig, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.panicked {
		panic("decoder bug")
	}
	g := c.global
	return &g, nil
}

func (c *fakeChain) ReadRound(ctx context.Context, id uint64) (*types.Round, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.rounds[id]
	if !ok {
		return nil, types.ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (c *fakeChain) ReadJackpot(ctx context.Context) (uint64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.jackpot, nil
}

func (c *fakeChain) ClusterTime(ctx context.Context) (time.Time, error) {
	c.mu.Lock()
	clock := c.clock
	c.mu.Unlock()
	if clock == nil {
		return time.Time{}, errors.New("no cluster clock")
	}
	return clock(), nil
}

type call struct {
	kind    types.TransitionKind
	roundID uint64
}

// fakeSubmitter 默认把迁移直接作用到 fakeChain 上
type fakeSubmitter struct {
	mu    sync.Mutex
	chain *fakeChain
	calls []call
	// hook 返回非 nil 错误时不修改链
	hook func(kind types.TransitionKind, roundID uint64) error
	// errSig hook 返回错误时仍然带上的签名
	errSig solana.Signature
	ctxErr error
}

func (s *fakeSubmitter) Submit(ctx context.Context, kind types.TransitionKind, params *types.TransitionParams) (*types.Confirmation, error) {
	s.mu.Lock()
	s.calls = append(s.calls, call{kind, params.RoundID})
	hook := s.hook
	s.mu.Unlock()
	if hook != nil {
		err := hook(kind, params.RoundID)
		s.mu.Lock()
		s.ctxErr = ctx.Err()
		s.mu.Unlock()
		if err != nil {
			return &types.Confirmation{Signature: s.errSig, Attempts: 1}, err
		}
	}
	c := s.chain
	c.mu.Lock()
	defer c.mu.Unlock()
	switch kind {
	case types.TransitionSettle:
		r := c.rounds[params.RoundID]
		r.Settled = true
		r.WinningSide = types.SideHeads
		if c.bumpOnSettle {
			c.global.CurrentRound = params.RoundID + 1
		}
	default:
		c.global.CurrentRound = params.RoundID
		c.rounds[params.RoundID] = &types.Round{
			RoundID:     params.RoundID,
			EndsAt:      types.Now().Add(params.Duration).Unix(),
			WinningSide: types.SideUnset,
		}
	}
	return &types.Confirmation{Signature: solana.Signature{byte(params.RoundID)}, Slot: 1, Attempts: 1}, nil
}

func (s *fakeSubmitter) Calls() []call {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]call(nil), s.calls...)
}

type memJournal struct {
	mu   sync.Mutex
	subs []*types.Submission
}

func (j *memJournal) Record(sub *types.Submission) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.subs = append(j.subs, sub)
	return nil
}
