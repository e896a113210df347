// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package crypto 加载 authority 签名私钥
package crypto

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"os"
	"strings"

	"github.com/33cn/flipd/types"
	"github.com/gagliardetto/solana-go"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
)

// PrivKeyLength ed25519 seed + public key
const PrivKeyLength = ed25519.PrivateKeySize

// LoadAuthority 按 privateKey, keyFile 的顺序加载私钥; 私钥内容不会出现在错误信息中
func LoadAuthority(cfg *types.Authority) (solana.PrivateKey, error) {
	if cfg.PrivateKey != "" {
		return PrivKeyFromString(cfg.PrivateKey)
	}
	if cfg.KeyFile != "" {
		data, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, errors.Wrapf(types.ErrConfig, "read key file %s: %v", cfg.KeyFile, err)
		}
		return PrivKeyFromString(string(data))
	}
	return nil, errors.Wrap(types.ErrConfig, "authority key missing")
}

// PrivKeyFromString JSON byte array (solana-keygen 格式) 或 base58
func PrivKeyFromString(s string) (solana.PrivateKey, error) {
	s = strings.TrimSpace(s)
	var raw []byte
	if strings.HasPrefix(s, "[") {
		var ints []int
		if err := json.Unmarshal([]byte(s), &ints); err != nil {
			return nil, errors.Wrap(types.ErrConfig, "authority key is not a JSON byte array")
		}
		raw = make([]byte, len(ints))
		for i, v := range ints {
			if v < 0 || v > 255 {
				return nil, errors.Wrapf(types.ErrConfig, "authority key byte %d out of range", i)
			}
			raw[i] = byte(v)
		}
	} else {
		var err error
		raw, err = base58.Decode(s)
		if err != nil {
			return nil, errors.Wrap(types.ErrConfig, "authority key is not base58")
		}
	}
	return PrivKeyFromBytes(raw)
}

// PrivKeyFromBytes 校验长度以及公钥部分
func PrivKeyFromBytes(raw []byte) (solana.PrivateKey, error) {
	if len(raw) != PrivKeyLength {
		return nil, errors.Wrapf(types.ErrConfig, "authority key length %d, want %d", len(raw), PrivKeyLength)
	}
	derived := ed25519.NewKeyFromSeed(raw[:ed25519.SeedSize])
	if !bytes.Equal(derived[ed25519.SeedSize:], raw[ed25519.SeedSize:]) {
		return nil, errors.Wrap(types.ErrConfig, "authority key public half does not match seed")
	}
	return solana.PrivateKey(raw), nil
}
