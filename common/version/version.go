// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package version flipd 版本号
package version

// GitCommit set by build flags
var GitCommit = ""

const version = "1.0.0"

// GetVersion 获取版本号
func GetVersion() string {
	if GitCommit != "" {
		return version + "-" + GitCommit
	}
	return version
}
