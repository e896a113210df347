// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventType lifecycle event tag
type EventType string

// lifecycle events
const (
	EventRoundStarted     EventType = "round_started"
	EventRoundSettled     EventType = "round_settled"
	EventJackpotTriggered EventType = "jackpot_triggered"
)

// LamportsPerSOL 1 SOL
const LamportsPerSOL = 1000000000

// LifecycleEvent 推送给订阅者的轮次事件, 字段按类型选择性填充
type LifecycleEvent struct {
	ID            string    `json:"id"`
	Type          EventType `json:"type"`
	RoundID       uint64    `json:"roundId"`
	HeadsTotal    uint64    `json:"headsTotal"`
	TailsTotal    uint64    `json:"tailsTotal"`
	Pot           uint64    `json:"pot"`
	PotSOL        string    `json:"potSol"`
	WinningSide   *Side     `json:"winningSide,omitempty"`
	EndsAt        int64     `json:"endsAt,omitempty"`
	JackpotAmount uint64    `json:"jackpotAmount,omitempty"`
	Signature     string    `json:"signature,omitempty"`
	Forced        bool      `json:"forced,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// NewLifecycleEvent event with id and timestamp filled in
func NewLifecycleEvent(ty EventType, round *Round) *LifecycleEvent {
	ev := &LifecycleEvent{
		ID:        uuid.New().String(),
		Type:      ty,
		Timestamp: Now(),
	}
	if round != nil {
		ev.RoundID = round.RoundID
		ev.HeadsTotal = round.HeadsTotal
		ev.TailsTotal = round.TailsTotal
		ev.Pot = round.Pot()
		ev.PotSOL = LamportsToSOL(ev.Pot)
		ev.EndsAt = round.EndsAt
		if round.Settled {
			side := round.WinningSide
			ev.WinningSide = &side
		}
	}
	return ev
}

// LamportsToSOL 格式化为 SOL 金额
func LamportsToSOL(lamports uint64) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(lamports), -9).String()
}
