// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// Side 下注方向
type Side uint8

// 链上 winning_side 的取值
const (
	SideHeads Side = 0
	SideTails Side = 1
	SideUnset Side = 2
)

func (s Side) String() string {
	switch s {
	case SideHeads:
		return "heads"
	case SideTails:
		return "tails"
	}
	return "unset"
}

// MarshalText json 中使用字符串表示
func (s Side) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText parse side name
func (s *Side) UnmarshalText(text []byte) error {
	switch string(text) {
	case "heads":
		*s = SideHeads
	case "tails":
		*s = SideTails
	default:
		*s = SideUnset
	}
	return nil
}

// GlobalConfig global_state 账户
type GlobalConfig struct {
	Authority    solana.PublicKey `json:"authority"`
	CurrentRound uint64           `json:"currentRound"`
	RakeBps      uint16           `json:"rakeBps"`
	JackpotBps   uint16           `json:"jackpotBps"`
}

// Round 一轮游戏在链上的状态
type Round struct {
	RoundID     uint64 `json:"roundId"`
	HeadsTotal  uint64 `json:"headsTotal"`
	TailsTotal  uint64 `json:"tailsTotal"`
	EndsAt      int64  `json:"endsAt"`
	Settled     bool   `json:"settled"`
	WinningSide Side   `json:"winningSide"`
}

// Pot total lamports wagered on both sides
func (r *Round) Pot() uint64 {
	return r.HeadsTotal + r.TailsTotal
}

// Expired round is closed for bets once the cluster clock reaches EndsAt
func (r *Round) Expired(now time.Time) bool {
	return now.Unix() >= r.EndsAt
}

// EndTime EndsAt as time
func (r *Round) EndTime() time.Time {
	return time.Unix(r.EndsAt, 0)
}

// Account raw account fetched from the ledger
type Account struct {
	Address  solana.PublicKey
	Lamports uint64
	Data     []byte
}

// Phase engine 对当前轮次的判断
type Phase string

// round phases
const (
	PhaseAwaitingStart Phase = "awaiting_start"
	PhaseOpen          Phase = "open"
	PhaseExpired       Phase = "expired"
	PhaseSettling      Phase = "settling"
	PhaseSettled       Phase = "settled"
	PhaseUnknown       Phase = "unknown"
)
