// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package journal 保存每一次交易提交的结果, 用于事后审计
package journal

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/33cn/flipd/common/db"
	"github.com/33cn/flipd/common/log"
	"github.com/33cn/flipd/types"
	"github.com/pkg/errors"
)

var jlog = log.New("module", "journal")

var submissionPrefix = []byte("submission-")

// MaxListCount List 一次最多返回的条数
const MaxListCount = 1000

func calcSubmissionKey(seq int64) []byte {
	return []byte(fmt.Sprintf("%s%020d", submissionPrefix, seq))
}

// Journal submission log over leveldb
type Journal struct {
	db  db.DB
	mu  sync.Mutex
	seq int64
}

// New 读取最后一条记录恢复序号
func New(store db.DB) (*Journal, error) {
	j := &Journal{db: store}
	last, err := store.ListLast(submissionPrefix, 1)
	if err != nil {
		return nil, err
	}
	if len(last) == 1 {
		var sub types.Submission
		if err := json.Unmarshal(last[0], &sub); err != nil {
			return nil, errors.Wrap(err, "decode last submission")
		}
		j.seq = sub.Seq
	}
	jlog.Info("journal opened", "seq", j.seq)
	return j, nil
}

// Record 分配序号并写入
func (j *Journal) Record(sub *types.Submission) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.seq++
	sub.Seq = j.seq
	data, err := json.Marshal(sub)
	if err != nil {
		return err
	}
	if err := j.db.Set(calcSubmissionKey(sub.Seq), data); err != nil {
		jlog.Error("Record", "seq", sub.Seq, "err", err)
		return err
	}
	return nil
}

// List 最新的 count 条, 新的在前
func (j *Journal) List(count int) ([]*types.Submission, error) {
	if count <= 0 || count > MaxListCount {
		return nil, errors.Wrapf(types.ErrInvalidParam, "count %d", count)
	}
	values, err := j.db.ListLast(submissionPrefix, count)
	if err != nil {
		return nil, err
	}
	subs := make([]*types.Submission, 0, len(values))
	for _, v := range values {
		var sub types.Submission
		if err := json.Unmarshal(v, &sub); err != nil {
			jlog.Error("List", "err", err)
			continue
		}
		subs = append(subs, &sub)
	}
	return subs, nil
}

// Last 某类迁移最近的一条记录, 没有返回 types.ErrNotFound
func (j *Journal) Last(kind types.TransitionKind) (*types.Submission, error) {
	values, err := j.db.ListLast(submissionPrefix, MaxListCount)
	if err != nil {
		return nil, err
	}
	for _, v := range values {
		var sub types.Submission
		if err := json.Unmarshal(v, &sub); err != nil {
			continue
		}
		if sub.Kind == kind {
			return &sub, nil
		}
	}
	return nil, types.ErrNotFound
}

// Count 记录总数
func (j *Journal) Count() int64 {
	return j.db.PrefixCount(submissionPrefix)
}
