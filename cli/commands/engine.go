// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"fmt"

	"github.com/33cn/flipd/rpc"
	"github.com/spf13/cobra"
)

// EngineCmd engine 运维命令
func EngineCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "engine",
		Short: "Engine operator commands",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.AddCommand(
		ForceCmd(),
	)
	return cmd
}

// ForceCmd 授权一次强制推进
func ForceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "force",
		Short: "Authorize a one-shot force advance past a stuck round",
		RunE:  forceRound,
	}
	addForceFlags(cmd)
	return cmd
}

func addForceFlags(cmd *cobra.Command) {
	cmd.Flags().Uint64P("round", "r", 0, "stuck round id")
	_ = cmd.MarkFlagRequired("round")
}

func forceRound(cmd *cobra.Command, args []string) error {
	round, _ := cmd.Flags().GetUint64("round")
	var res rpc.ForceResponse
	_, err := newRPCCtx(cmd, "POST /api/admin/force", &rpc.ForceRequest{RoundID: round}, &res).RunResult()
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "round %d: %s\n", res.RoundID, res.Status)
	return nil
}
