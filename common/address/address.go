// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package address 计算合约派生地址(PDA)
package address

import (
	"encoding/binary"

	"github.com/gagliardetto/solana-go"
	lru "github.com/hashicorp/golang-lru"
)

// 合约中使用的 seed
var (
	GlobalSeed   = []byte("global_state")
	RoundSeed    = []byte("round")
	TreasurySeed = []byte("treasury")
	JackpotSeed  = []byte("jackpot")
)

type cacheKey struct {
	program solana.PublicKey
	seed    string
}

// Deriver PDA 计算量有点大，做一次cache
type Deriver struct {
	program solana.PublicKey
	cache   *lru.Cache
}

// NewDeriver addresses owned by program
func NewDeriver(program solana.PublicKey, size int) *Deriver {
	if size <= 0 {
		size = 1024
	}
	cache, _ := lru.New(size)
	return &Deriver{program: program, cache: cache}
}

// Program owner program id
func (d *Deriver) Program() solana.PublicKey {
	return d.program
}

// GlobalState global_state PDA
func (d *Deriver) GlobalState() (solana.PublicKey, error) {
	return d.derive(GlobalSeed)
}

// Treasury treasury PDA
func (d *Deriver) Treasury() (solana.PublicKey, error) {
	return d.derive(TreasurySeed)
}

// Jackpot jackpot PDA
func (d *Deriver) Jackpot() (solana.PublicKey, error) {
	return d.derive(JackpotSeed)
}

// Round round PDA, seed 是 u64 小端
func (d *Deriver) Round(roundID uint64) (solana.PublicKey, error) {
	return d.derive(RoundSeed, RoundIDBytes(roundID))
}

// RoundIDBytes u64 little endian
func RoundIDBytes(roundID uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], roundID)
	return b[:]
}

func (d *Deriver) derive(seeds ...[]byte) (solana.PublicKey, error) {
	var key string
	for _, s := range seeds {
		key += string(s) + "/"
	}
	ck := cacheKey{program: d.program, seed: key}
	if value, ok := d.cache.Get(ck); ok {
		return value.(solana.PublicKey), nil
	}
	addr, _, err := solana.FindProgramAddress(seeds, d.program)
	if err != nil {
		return solana.PublicKey{}, err
	}
	d.cache.Add(ck, addr)
	return addr, nil
}
