// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package chain

import (
	"encoding/binary"

	"github.com/33cn/flipd/types"
	"github.com/gagliardetto/solana-go"
	"github.com/pkg/errors"
)

// 账户布局, 前 8 字节为 anchor discriminator, 整数均为小端
const (
	globalAuthorityOffset = 8
	globalRoundOffset     = 40
	globalRakeOffset      = 48
	globalJackpotOffset   = 50
	// GlobalMinLen 最短的 global_state 数据长度
	GlobalMinLen = 52

	roundIDOffset      = 8
	roundHeadsOffset   = 16
	roundTailsOffset   = 24
	roundEndsAtOffset  = 32
	roundSettledOffset = 40
	roundSideOffset    = 41
	// RoundMinLen 最短的 round_state 数据长度
	RoundMinLen = 42
)

// DecodeGlobalConfig global_state 账户数据
func DecodeGlobalConfig(data []byte) (*types.GlobalConfig, error) {
	if len(data) < GlobalMinLen {
		return nil, errors.Wrapf(types.ErrMalformedAccount, "global_state length %d < %d", len(data), GlobalMinLen)
	}
	g := &types.GlobalConfig{
		CurrentRound: binary.LittleEndian.Uint64(data[globalRoundOffset:]),
		RakeBps:      binary.LittleEndian.Uint16(data[globalRakeOffset:]),
		JackpotBps:   binary.LittleEndian.Uint16(data[globalJackpotOffset:]),
	}
	g.Authority = solana.PublicKeyFromBytes(data[globalAuthorityOffset:globalRoundOffset])
	return g, nil
}

// DecodeRound round_state 账户数据
func DecodeRound(data []byte) (*types.Round, error) {
	if len(data) < RoundMinLen {
		return nil, errors.Wrapf(types.ErrMalformedAccount, "round_state length %d < %d", len(data), RoundMinLen)
	}
	r := &types.Round{
		RoundID:    binary.LittleEndian.Uint64(data[roundIDOffset:]),
		HeadsTotal: binary.LittleEndian.Uint64(data[roundHeadsOffset:]),
		TailsTotal: binary.LittleEndian.Uint64(data[roundTailsOffset:]),
		EndsAt:     int64(binary.LittleEndian.Uint64(data[roundEndsAtOffset:])),
	}
	switch data[roundSettledOffset] {
	case 0:
	case 1:
		r.Settled = true
	default:
		return nil, errors.Wrapf(types.ErrMalformedAccount, "round_state settled flag %d", data[roundSettledOffset])
	}
	side := types.Side(data[roundSideOffset])
	if side > types.SideUnset {
		return nil, errors.Wrapf(types.ErrMalformedAccount, "round_state winning side %d", side)
	}
	r.WinningSide = side
	if r.Settled && side == types.SideUnset {
		return nil, errors.Wrap(types.ErrMalformedAccount, "round_state settled without winning side")
	}
	return r, nil
}

// EncodeGlobalConfig inverse of DecodeGlobalConfig, used to fabricate accounts in tests and tools
func EncodeGlobalConfig(g *types.GlobalConfig) []byte {
	data := make([]byte, GlobalMinLen)
	copy(data[globalAuthorityOffset:globalRoundOffset], g.Authority[:])
	binary.LittleEndian.PutUint64(data[globalRoundOffset:], g.CurrentRound)
	binary.LittleEndian.PutUint16(data[globalRakeOffset:], g.RakeBps)
	binary.LittleEndian.PutUint16(data[globalJackpotOffset:], g.JackpotBps)
	return data
}

// EncodeRound inverse of DecodeRound
func EncodeRound(r *types.Round) []byte {
	data := make([]byte, RoundMinLen+1)
	binary.LittleEndian.PutUint64(data[roundIDOffset:], r.RoundID)
	binary.LittleEndian.PutUint64(data[roundHeadsOffset:], r.HeadsTotal)
	binary.LittleEndian.PutUint64(data[roundTailsOffset:], r.TailsTotal)
	binary.LittleEndian.PutUint64(data[roundEndsAtOffset:], uint64(r.EndsAt))
	if r.Settled {
		data[roundSettledOffset] = 1
	}
	data[roundSideOffset] = byte(r.WinningSide)
	return data
}
