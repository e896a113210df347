// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import (
	"sync/atomic"
	"time"
)

var deltaTime int64

// MaxTimeDelta 超过这个范围的偏差不做修正
const MaxTimeDelta = 60 * time.Second

//SetTimeDelta cluster time - local time
//为了系统的安全，我们只做小范围时间错误的修复
func SetTimeDelta(dt time.Duration) {
	if dt > MaxTimeDelta || dt < -MaxTimeDelta {
		dt = 0
	}
	atomic.StoreInt64(&deltaTime, int64(dt))
}

// TimeDelta current correction
func TimeDelta() time.Duration {
	return time.Duration(atomic.LoadInt64(&deltaTime))
}

// Now local clock corrected towards the cluster clock
func Now() time.Time {
	dt := time.Duration(atomic.LoadInt64(&deltaTime))
	return time.Now().Add(dt)
}
