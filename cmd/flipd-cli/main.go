// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"os"

	"github.com/33cn/flipd/cli"
)

func main() {
	addr := os.Getenv("FLIPD_RPC_LADDR")
	if addr == "" {
		addr = cli.DefaultRPCAddr
	}
	cli.Run(addr)
}
