// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package engine

import "github.com/33cn/flipd/types"

// Status 状态快照, 可以和 loop 并发调用
func (e *Engine) Status() types.EngineStatus {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status.Clone()
}

// Running loop 是否在运行
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.status.Running
}

func (e *Engine) updateStatus(fn func(s *types.EngineStatus)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.status)
}
