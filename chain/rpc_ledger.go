// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/33cn/flipd/types"
	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	pkgerr "github.com/pkg/errors"
	"golang.org/x/time/rate"
)

// RPCLedger Ledger over the solana json rpc
type RPCLedger struct {
	client     *rpc.Client
	limiter    *rate.Limiter
	commitment rpc.CommitmentType
}

// NewRPCLedger rps <= 0 不限速
func NewRPCLedger(cfg *types.Chain) *RPCLedger {
	limit := rate.Inf
	burst := cfg.Burst
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &RPCLedger{
		client:     rpc.New(cfg.RPCURL),
		limiter:    rate.NewLimiter(limit, burst),
		commitment: rpc.CommitmentConfirmed,
	}
}

func (l *RPCLedger) wait(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		return pkgerr.Wrapf(types.ErrTransport, "rate limit: %v", err)
	}
	return nil
}

// GetAccount getAccountInfo
func (l *RPCLedger) GetAccount(ctx context.Context, addr solana.PublicKey) (*types.Account, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	res, err := l.client.GetAccountInfoWithOpts(ctx, addr, &rpc.GetAccountInfoOpts{
		Encoding:   solana.EncodingBase64,
		Commitment: l.commitment,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return nil, types.ErrNotFound
		}
		return nil, transportError("getAccountInfo", err)
	}
	if res == nil || res.Value == nil {
		return nil, types.ErrNotFound
	}
	acc := &types.Account{Address: addr, Lamports: res.Value.Lamports}
	if res.Value.Data != nil {
		acc.Data = res.Value.Data.GetBinary()
	}
	return acc, nil
}

// LatestBlockhash getLatestBlockhash
func (l *RPCLedger) LatestBlockhash(ctx context.Context) (solana.Hash, error) {
	if err := l.wait(ctx); err != nil {
		return solana.Hash{}, err
	}
	res, err := l.client.GetLatestBlockhash(ctx, l.commitment)
	if err != nil {
		return solana.Hash{}, transportError("getLatestBlockhash", err)
	}
	if res == nil || res.Value == nil {
		return solana.Hash{}, pkgerr.Wrap(types.ErrTransport, "getLatestBlockhash: empty result")
	}
	return res.Value.Blockhash, nil
}

// SendTransaction sendTransaction with preflight; rpc errors 原样返回, 由 submitter 分类
func (l *RPCLedger) SendTransaction(ctx context.Context, raw []byte) (solana.Signature, error) {
	if err := l.wait(ctx); err != nil {
		return solana.Signature{}, err
	}
	sig, err := l.client.SendRawTransactionWithOpts(ctx, raw, rpc.TransactionOpts{
		PreflightCommitment: l.commitment,
	})
	if err != nil {
		var rpcErr *jsonrpc.RPCError
		if errors.As(err, &rpcErr) {
			return solana.Signature{}, &SendError{Code: rpcErr.Code, Message: rpcErr.Message, Data: rpcErr.Data}
		}
		return solana.Signature{}, transportError("sendTransaction", err)
	}
	return sig, nil
}

// GetTransactionStatus getSignatureStatuses
func (l *RPCLedger) GetTransactionStatus(ctx context.Context, sig solana.Signature) (*types.TxStatus, error) {
	if err := l.wait(ctx); err != nil {
		return nil, err
	}
	res, err := l.client.GetSignatureStatuses(ctx, true, sig)
	if err != nil {
		return nil, transportError("getSignatureStatuses", err)
	}
	if res == nil || len(res.Value) == 0 || res.Value[0] == nil {
		return &types.TxStatus{State: types.TxPending}, nil
	}
	st := res.Value[0]
	if st.Err != nil {
		return &types.TxStatus{State: types.TxFailed, Slot: st.Slot, Err: errString(st.Err)}, nil
	}
	switch st.ConfirmationStatus {
	case rpc.ConfirmationStatusConfirmed, rpc.ConfirmationStatusFinalized:
		return &types.TxStatus{State: types.TxConfirmed, Slot: st.Slot}, nil
	}
	return &types.TxStatus{State: types.TxPending, Slot: st.Slot}, nil
}

// ClusterTime confirmed slot 的出块时间 (getSlot + getBlockTime)
func (l *RPCLedger) ClusterTime(ctx context.Context) (time.Time, error) {
	if err := l.wait(ctx); err != nil {
		return time.Time{}, err
	}
	slot, err := l.client.GetSlot(ctx, rpc.CommitmentConfirmed)
	if err != nil {
		return time.Time{}, transportError("getSlot", err)
	}
	if err := l.wait(ctx); err != nil {
		return time.Time{}, err
	}
	bt, err := l.client.GetBlockTime(ctx, slot)
	if err != nil {
		return time.Time{}, transportError("getBlockTime", err)
	}
	if bt == nil {
		return time.Time{}, pkgerr.Wrapf(types.ErrNotFound, "block time of slot %d", slot)
	}
	return bt.Time(), nil
}

// SendError json rpc error returned by sendTransaction (usually a failed preflight)
type SendError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *SendError) Error() string {
	if e.Data == nil {
		return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("rpc error %d: %s: %s", e.Code, e.Message, errString(e.Data))
}

func transportError(method string, err error) error {
	return pkgerr.Wrapf(types.ErrTransport, "%s: %v", method, err)
}

func errString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(data)
}
