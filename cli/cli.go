// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package cli flipd-cli 的根命令
package cli

import (
	"fmt"
	"os"

	"github.com/33cn/flipd/cli/commands"
	"github.com/33cn/flipd/common/log"
	"github.com/spf13/cobra"
)

// DefaultRPCAddr flipd 默认的 http 地址
const DefaultRPCAddr = "http://localhost:8801"

// NewRootCmd 所有子命令共享 rpc_laddr, rpc_user, rpc_passwd
func NewRootCmd(rpcAddr string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "flipd-cli",
		Short:         "flipd client tools",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().String("rpc_laddr", rpcAddr, "http url")
	rootCmd.PersistentFlags().String("rpc_user", os.Getenv("FLIPD_RPC_USER"), "basic auth user for admin commands")
	rootCmd.PersistentFlags().String("rpc_passwd", os.Getenv("FLIPD_RPC_PASSWD"), "basic auth password for admin commands")
	rootCmd.AddCommand(
		commands.StatusCmd(),
		commands.RoundCmd(),
		commands.JournalCmd(),
		commands.EngineCmd(),
		commands.PushCmd(),
		commands.VersionCmd(),
	)
	return rootCmd
}

//Run :
func Run(rpcAddr string) {
	log.SetLogLevel("error")
	if rpcAddr == "" {
		rpcAddr = DefaultRPCAddr
	}
	if err := NewRootCmd(rpcAddr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
