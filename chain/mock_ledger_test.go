// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"time"

	"github.com/33cn/flipd/types"
	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/mock"
)

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) GetAccount(ctx context.Context, addr solana.PublicKey) (*types.Account, error) {
	args := m.Called(ctx, addr)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.Account), args.Error(1)
}

func (m *mockLedger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	args := m.Called(ctx)
	return args.Get(0).(solana.Hash), args.Error(1)
}

func (m *mockLedger) SendTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	args := m.Called(ctx, raw)
	return args.Get(0).(solana.Signature), args.Error(1)
}

func (m *mockLedger) GetTransactionStatus(ctx context.Context, sig solana.Signature) (*types.TxStatus, error) {
	args := m.Called(ctx, sig)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*types.TxStatus), args.Error(1)
}

func (m *mockLedger) ClusterTime(ctx context.Context) (time.Time, error) {
	args := m.Called(ctx)
	return args.Get(0).(time.Time), args.Error(1)
}
