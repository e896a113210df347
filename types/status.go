// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import "time"

// MaxRecentErrors status 中保留的最近错误条数
const MaxRecentErrors = 10

// ErrorRecord one recorded loop failure
type ErrorRecord struct {
	Time    time.Time `json:"time"`
	Message string    `json:"message"`
}

// EngineStatus engine 状态快照, 只由 engine 的循环写入
type EngineStatus struct {
	Running                 bool          `json:"isRunning"`
	Phase                   Phase         `json:"phase"`
	LastObservedRoundID     uint64        `json:"lastObservedRoundId"`
	LastTransitionAt        time.Time     `json:"lastTransitionAt"`
	LastActivity            time.Time     `json:"lastActivity"`
	LastCheck               time.Time     `json:"lastCheck"`
	ConsecutiveFailureCount int64         `json:"consecutiveFailureCount"`
	LastError               string        `json:"lastError,omitempty"`
	Stuck                   bool          `json:"stuck"`
	StuckRoundID            uint64        `json:"stuckRoundId,omitempty"`
	ForceAuthorizedRound    uint64        `json:"forceAuthorizedRound,omitempty"`
	RoundsStarted           int64         `json:"roundsStarted"`
	RoundsClosed            int64         `json:"roundsClosed"`
	Submissions             int64         `json:"submissions"`
	RecentErrors            []ErrorRecord `json:"errors"`
}

// Clone deep copy
func (s *EngineStatus) Clone() EngineStatus {
	c := *s
	c.RecentErrors = make([]ErrorRecord, len(s.RecentErrors))
	copy(c.RecentErrors, s.RecentErrors)
	return c
}

// PushError 追加一条错误, 只保留最近 MaxRecentErrors 条
func (s *EngineStatus) PushError(t time.Time, msg string) {
	s.RecentErrors = append(s.RecentErrors, ErrorRecord{Time: t, Message: msg})
	if n := len(s.RecentErrors); n > MaxRecentErrors {
		s.RecentErrors = append([]ErrorRecord(nil), s.RecentErrors[n-MaxRecentErrors:]...)
	}
}
