// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package chain 读取并解析链上账户
package chain

import (
	"context"
	"time"

	"github.com/33cn/flipd/common/log"
	"github.com/33cn/flipd/types"
	"github.com/gagliardetto/solana-go"
)

var clog = log.New("module", "chain")

// Ledger 链的 rpc 能力, 可能很慢, 也可能失败
type Ledger interface {
	// GetAccount 账户不存在时返回 types.ErrNotFound
	GetAccount(ctx context.Context, addr solana.PublicKey) (*types.Account, error)
	LatestBlockhash(ctx context.Context) (solana.Hash, error)
	SendTransaction(ctx context.Context, raw []byte) (solana.Signature, error)
	GetTransactionStatus(ctx context.Context, sig solana.Signature) (*types.TxStatus, error)
	// ClusterTime 最新 confirmed slot 的出块时间
	ClusterTime(ctx context.Context) (time.Time, error)
}
