// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"time"

	"github.com/gagliardetto/solana-go"
)

// TransitionKind 引擎可以提交的状态迁移
type TransitionKind int32

// transitions
const (
	TransitionNone TransitionKind = iota
	TransitionStart
	TransitionSettle
	TransitionForceStart
)

func (k TransitionKind) String() string {
	switch k {
	case TransitionStart:
		return "start"
	case TransitionSettle:
		return "settle"
	case TransitionForceStart:
		return "force_start"
	}
	return "none"
}

// MarshalText json name
func (k TransitionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText json name
func (k *TransitionKind) UnmarshalText(text []byte) error {
	switch string(text) {
	case "start":
		*k = TransitionStart
	case "settle":
		*k = TransitionSettle
	case "force_start":
		*k = TransitionForceStart
	default:
		*k = TransitionNone
	}
	return nil
}

// TransitionParams parameters of a transition instruction
type TransitionParams struct {
	RoundID  uint64
	Duration time.Duration
}

// Confirmation 已上链确认的交易
type Confirmation struct {
	Signature solana.Signature
	Slot      uint64
	Attempts  int
	Latency   time.Duration
}

// TxState signature status
type TxState int32

// tx states
const (
	TxPending TxState = iota
	TxConfirmed
	TxFailed
)

// TxStatus 交易状态查询结果
type TxStatus struct {
	State TxState
	Slot  uint64
	// Err 链上返回的错误, 只有 TxFailed 时有值
	Err string
}

// Submission result names
const (
	ResultConfirmed = "confirmed"
	ResultTimeout   = "timeout"
	ResultStale     = "stale"
	ResultRejected  = "rejected"
	ResultTransport = "transport"
	ResultError     = "error"
)

// Submission one submission attempt as written to the journal
type Submission struct {
	Seq       int64          `json:"seq"`
	Kind      TransitionKind `json:"kind"`
	RoundID   uint64         `json:"roundId"`
	Signature string         `json:"signature,omitempty"`
	Result    string         `json:"result"`
	Error     string         `json:"error,omitempty"`
	Attempts  int            `json:"attempts"`
	Latency   time.Duration  `json:"latency"`
	At        time.Time      `json:"at"`
}
