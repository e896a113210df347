// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package db 本地持久化存储
package db

import (
	"errors"

	"github.com/33cn/flipd/common/log"
)

var dlog = log.New("module", "db")

// ErrNotFoundInDb key 不存在
var ErrNotFoundInDb = errors.New("ErrNotFoundInDb")

// DB kv store used by journal and push
type DB interface {
	Get(key []byte) ([]byte, error)
	Set(key, value []byte) error
	SetSync(key, value []byte) error
	Delete(key []byte) error
	// List 返回前缀下所有的 value, 按 key 升序
	List(prefix []byte) ([][]byte, error)
	// ListLast 从前缀的最后一个 key 开始逆序取 count 个
	ListLast(prefix []byte, count int) ([][]byte, error)
	PrefixCount(prefix []byte) int64
	Close() error
}

// backend names
const (
	GoLevelDBBackendStr = "goleveldb"
	MemDBBackendStr     = "memdb"
)

// NewDB 根据 backend 创建数据库
func NewDB(name, backend, dir string, cache int) (DB, error) {
	switch backend {
	case MemDBBackendStr:
		return NewGoMemDB()
	case GoLevelDBBackendStr, "":
		return NewGoLevelDB(name, dir, cache)
	}
	dlog.Error("NewDB", "unknown backend", backend)
	return nil, errors.New("ErrUnknownDBBackend")
}
