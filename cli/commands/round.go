// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"strconv"
	"time"

	"github.com/33cn/flipd/rpc"
	"github.com/33cn/flipd/types"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// RoundCmd 链上当前轮次
func RoundCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "round",
		Short: "Show the current on-chain round",
		RunE:  currentRound,
	}
	cmd.Flags().Bool("json", false, "print raw json")
	return cmd
}

func currentRound(cmd *cobra.Command, args []string) error {
	var view rpc.RoundView
	if raw, _ := cmd.Flags().GetBool("json"); raw {
		newRPCCtx(cmd, "GET /api/round", nil, &view).Run()
		return nil
	}
	if err := call(cmd, "GET /api/round", nil, &view); err != nil {
		return err
	}
	data := pterm.TableData{
		{"Field", "Value"},
		{"authority", view.Global.Authority.String()},
		{"current round", strconv.FormatUint(view.Global.CurrentRound, 10)},
		{"rake bps", strconv.FormatUint(uint64(view.Global.RakeBps), 10)},
		{"jackpot bps", strconv.FormatUint(uint64(view.Global.JackpotBps), 10)},
	}
	if r := view.Current; r != nil {
		data = append(data,
			[]string{"heads", types.LamportsToSOL(r.HeadsTotal)},
			[]string{"tails", types.LamportsToSOL(r.TailsTotal)},
			[]string{"pot", view.PotSOL},
			[]string{"ends at", fmtTime(time.Unix(r.EndsAt, 0))},
			[]string{"settled", strconv.FormatBool(r.Settled)},
		)
		if r.Settled {
			data = append(data, []string{"winner", r.WinningSide.String()})
		}
	}
	return renderTable(cmd, data)
}
