// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"time"

	"github.com/33cn/flipd/common/address"
	"github.com/33cn/flipd/types"
	"github.com/pkg/errors"
)

// Reader 读取 global/round/jackpot, 不做跨调用缓存
type Reader struct {
	ledger Ledger
	addrs  *address.Deriver
}

// NewReader reader over ledger
func NewReader(ledger Ledger, addrs *address.Deriver) *Reader {
	return &Reader{ledger: ledger, addrs: addrs}
}

// ReadGlobalConfig global_state 必须存在, 不存在说明合约没有初始化
func (r *Reader) ReadGlobalConfig(ctx context.Context) (*types.GlobalConfig, error) {
	addr, err := r.addrs.GlobalState()
	if err != nil {
		return nil, err
	}
	acc, err := r.ledger.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	g, err := DecodeGlobalConfig(acc.Data)
	if err != nil {
		clog.Error("ReadGlobalConfig", "addr", addr, "err", err)
		return nil, err
	}
	return g, nil
}

// ReadRound 账户不存在返回 types.ErrNotFound
func (r *Reader) ReadRound(ctx context.Context, roundID uint64) (*types.Round, error) {
	addr, err := r.addrs.Round(roundID)
	if err != nil {
		return nil, err
	}
	acc, err := r.ledger.GetAccount(ctx, addr)
	if err != nil {
		return nil, err
	}
	round, err := DecodeRound(acc.Data)
	if err != nil {
		clog.Error("ReadRound", "round", roundID, "addr", addr, "err", err)
		return nil, err
	}
	if round.RoundID != roundID {
		clog.Error("ReadRound", "round", roundID, "decoded", round.RoundID)
		return nil, errors.Wrapf(types.ErrMalformedAccount, "round account %s holds round %d", addr, round.RoundID)
	}
	return round, nil
}

// ReadJackpot jackpot 账户的 lamports
func (r *Reader) ReadJackpot(ctx context.Context) (uint64, error) {
	addr, err := r.addrs.Jackpot()
	if err != nil {
		return 0, err
	}
	acc, err := r.ledger.GetAccount(ctx, addr)
	if err != nil {
		return 0, err
	}
	return acc.Lamports, nil
}

// ClusterTime 集群时间, 用来校准本地时钟
func (r *Reader) ClusterTime(ctx context.Context) (time.Time, error) {
	return r.ledger.ClusterTime(ctx)
}
