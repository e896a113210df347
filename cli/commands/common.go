// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package commands flipd-cli 子命令
package commands

import (
	"fmt"
	"time"

	"github.com/33cn/flipd/rpc/jsonclient"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

func newRPCCtx(cmd *cobra.Command, method string, params, res interface{}) *jsonclient.RPCCtx {
	rpcLaddr, _ := cmd.Flags().GetString("rpc_laddr")
	ctx := jsonclient.NewRPCCtx(rpcLaddr, method, params, res)
	ctx.User, _ = cmd.Flags().GetString("rpc_user")
	ctx.Password, _ = cmd.Flags().GetString("rpc_passwd")
	ctx.Out = cmd.OutOrStdout()
	return ctx
}

func call(cmd *cobra.Command, method string, params, res interface{}) error {
	_, err := newRPCCtx(cmd, method, params, res).RunResult()
	return err
}

func renderTable(cmd *cobra.Command, data pterm.TableData) error {
	s, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), s)
	return nil
}

func fmtTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func shortSig(sig string) string {
	if len(sig) <= 16 {
		return sig
	}
	return sig[:8] + ".." + sig[len(sig)-8:]
}
