// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package submitter 构造, 签名, 发送并确认状态迁移交易
package submitter

import (
	"context"
	"errors"
	"time"

	"github.com/33cn/flipd/chain"
	"github.com/33cn/flipd/common/address"
	"github.com/33cn/flipd/common/log"
	"github.com/33cn/flipd/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/gagliardetto/solana-go"
	pkgerr "github.com/pkg/errors"
)

var slog = log.New("module", "submitter")

// Submitter 持有 authority 私钥, 私钥不会出现在日志里
type Submitter struct {
	ledger  chain.Ledger
	addrs   *address.Deriver
	key     solana.PrivateKey
	pub     solana.PublicKey
	cfg     types.Submitter
	metrics *Metrics
}

// New submitter
func New(ledger chain.Ledger, addrs *address.Deriver, key solana.PrivateKey, cfg *types.Submitter) *Submitter {
	return &Submitter{
		ledger:  ledger,
		addrs:   addrs,
		key:     key,
		pub:     key.PublicKey(),
		cfg:     *cfg,
		metrics: NewMetrics(),
	}
}

// Authority 签名账户
func (s *Submitter) Authority() solana.PublicKey {
	return s.pub
}

// Metrics prometheus collectors
func (s *Submitter) Metrics() *Metrics {
	return s.metrics
}

func (s *Submitter) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.BackoffBase
	b.MaxInterval = s.cfg.BackoffMax
	b.MaxElapsedTime = 0
	retries := uint64(0)
	if s.cfg.MaxAttempts > 1 {
		retries = s.cfg.MaxAttempts - 1
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, retries), ctx)
}

// Submit 提交一次状态迁移并等待确认.
// 返回的 Confirmation 在出错时也不为 nil, 带上已知的签名和尝试次数.
func (s *Submitter) Submit(ctx context.Context, kind types.TransitionKind, params *types.TransitionParams) (*types.Confirmation, error) {
	conf := &types.Confirmation{}
	ix, err := BuildInstruction(s.addrs, s.pub, kind, params)
	if err != nil {
		return conf, err
	}
	begin := time.Now()
	var lastErr error
	op := func() error {
		conf.Attempts++
		s.metrics.Attempts.WithLabelValues(kind.String()).Inc()
		sig, err := s.send(ctx, ix)
		if err != nil {
			lastErr = Classify(err)
			if errors.Is(lastErr, types.ErrTransport) {
				return lastErr
			}
			return backoff.Permanent(lastErr)
		}
		conf.Signature = sig
		slog.Info("Submit sent", "kind", kind, "round", params.RoundID, "sig", sig, "attempt", conf.Attempts)
		st, err := s.confirm(ctx, sig)
		if err != nil {
			lastErr = err
			return backoff.Permanent(err)
		}
		conf.Slot = st.Slot
		return nil
	}
	notify := func(err error, next time.Duration) {
		slog.Warn("Submit retry", "kind", kind, "round", params.RoundID, "attempt", conf.Attempts, "next", next, "err", err)
	}
	err = backoff.RetryNotify(op, s.newBackOff(ctx), notify)
	conf.Latency = time.Since(begin)
	if err != nil {
		if ctx.Err() != nil && lastErr != nil && errors.Is(err, ctx.Err()) {
			err = lastErr
		}
		if !isClassified(err) {
			err = pkgerr.Wrapf(types.ErrTransport, "%v", err)
		}
		s.metrics.observe(kind.String(), ResultOf(err), conf.Latency)
		slog.Error("Submit", "kind", kind, "round", params.RoundID, "attempts", conf.Attempts, "sig", conf.Signature, "err", err)
		return conf, err
	}
	s.metrics.observe(kind.String(), types.ResultConfirmed, conf.Latency)
	slog.Info("Submit confirmed", "kind", kind, "round", params.RoundID, "sig", conf.Signature, "slot", conf.Slot, "cost", conf.Latency)
	return conf, nil
}

func (s *Submitter) send(ctx context.Context, ix solana.Instruction) (solana.Signature, error) {
	hash, err := s.ledger.LatestBlockhash(ctx)
	if err != nil {
		return solana.Signature{}, err
	}
	tx, err := solana.NewTransaction([]solana.Instruction{ix}, hash, solana.TransactionPayer(s.pub))
	if err != nil {
		return solana.Signature{}, pkgerr.Wrapf(types.ErrInvalidParam, "new transaction: %v", err)
	}
	_, err = tx.Sign(func(key solana.PublicKey) *solana.PrivateKey {
		if key.Equals(s.pub) {
			return &s.key
		}
		return nil
	})
	if err != nil {
		return solana.Signature{}, pkgerr.Wrapf(types.ErrInvalidParam, "sign: %v", err)
	}
	raw, err := tx.MarshalBinary()
	if err != nil {
		return solana.Signature{}, pkgerr.Wrapf(types.ErrInvalidParam, "marshal: %v", err)
	}
	return s.ledger.SendTransaction(ctx, raw)
}

// confirm 轮询签名状态直到确认, 失败或超时
func (s *Submitter) confirm(ctx context.Context, sig solana.Signature) (*types.TxStatus, error) {
	timeout := time.NewTimer(s.cfg.ConfirmTimeout)
	defer timeout.Stop()
	ticker := time.NewTicker(s.cfg.ConfirmPollInterval)
	defer ticker.Stop()
	for {
		st, err := s.ledger.GetTransactionStatus(ctx, sig)
		if err != nil {
			slog.Debug("confirm", "sig", sig, "err", err)
		} else {
			switch st.State {
			case types.TxConfirmed:
				return st, nil
			case types.TxFailed:
				return st, ClassifyExecution(st.Err)
			}
		}
		select {
		case <-ctx.Done():
			return nil, pkgerr.Wrapf(types.ErrConfirmTimeout, "sig %s: %v", sig, ctx.Err())
		case <-timeout.C:
			return nil, pkgerr.Wrapf(types.ErrConfirmTimeout, "sig %s after %v", sig, s.cfg.ConfirmTimeout)
		case <-ticker.C:
		}
	}
}

func isClassified(err error) bool {
	return errors.Is(err, types.ErrTransport) || errors.Is(err, types.ErrStaleState) ||
		errors.Is(err, types.ErrRejected) || errors.Is(err, types.ErrConfirmTimeout) ||
		errors.Is(err, types.ErrInvalidParam)
}

// ResultOf journal/metrics 使用的结果名
func ResultOf(err error) string {
	switch {
	case err == nil:
		return types.ResultConfirmed
	case errors.Is(err, types.ErrConfirmTimeout):
		return types.ResultTimeout
	case errors.Is(err, types.ErrStaleState):
		return types.ResultStale
	case errors.Is(err, types.ErrRejected):
		return types.ResultRejected
	case errors.Is(err, types.ErrTransport):
		return types.ResultTransport
	}
	return types.ResultError
}
