// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package submitter

import (
	"crypto/sha256"
	"encoding/binary"
	"time"

	"github.com/33cn/flipd/common/address"
	"github.com/33cn/flipd/types"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// anchor instruction names
const (
	StartRoundName = "start_round"
	CloseRoundName = "close_round"
)

// Discriminator anchor 指令前缀, sha256("global:<name>") 的前 8 字节
func Discriminator(name string) [8]byte {
	var d [8]byte
	sum := sha256.Sum256([]byte("global:" + name))
	copy(d[:], sum[:8])
	return d
}

var (
	startRoundDisc = Discriminator(StartRoundName)
	closeRoundDisc = Discriminator(CloseRoundName)
)

// BuildInstruction 按迁移类型构造合约指令, ForceStart 与 Start 使用同一条 start_round
func BuildInstruction(addrs *address.Deriver, authority solana.PublicKey, kind types.TransitionKind, params *types.TransitionParams) (solana.Instruction, error) {
	if params == nil || params.RoundID == 0 {
		return nil, errors.Wrap(types.ErrInvalidParam, "round id")
	}
	global, err := addrs.GlobalState()
	if err != nil {
		return nil, err
	}
	round, err := addrs.Round(params.RoundID)
	if err != nil {
		return nil, err
	}
	switch kind {
	case types.TransitionStart, types.TransitionForceStart:
		secs := int64(params.Duration / time.Second)
		if secs <= 0 || params.Duration > types.MaxRoundDuration {
			return nil, errors.Wrapf(types.ErrInvalidParam, "duration %v", params.Duration)
		}
		data := make([]byte, 16)
		copy(data, startRoundDisc[:])
		binary.LittleEndian.PutUint64(data[8:], uint64(secs))
		accounts := solana.AccountMetaSlice{
			solana.NewAccountMeta(global, true, false),
			solana.NewAccountMeta(round, true, false),
			solana.NewAccountMeta(authority, true, true),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		}
		return solana.NewInstruction(addrs.Program(), accounts, data), nil
	case types.TransitionSettle:
		treasury, err := addrs.Treasury()
		if err != nil {
			return nil, err
		}
		data := make([]byte, 8)
		copy(data, closeRoundDisc[:])
		accounts := solana.AccountMetaSlice{
			solana.NewAccountMeta(global, false, false),
			solana.NewAccountMeta(round, true, false),
			solana.NewAccountMeta(treasury, true, false),
			solana.NewAccountMeta(authority, false, true),
			solana.NewAccountMeta(solana.SystemProgramID, false, false),
		}
		return solana.NewInstruction(addrs.Program(), accounts, data), nil
	}
	return nil, errors.Wrapf(types.ErrInvalidParam, "transition %s", kind)
}
