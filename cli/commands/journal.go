// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"fmt"
	"strconv"
	"time"

	"github.com/33cn/flipd/types"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// JournalCmd 最近的交易提交记录
func JournalCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "journal",
		Short: "List recent transaction submissions",
		RunE:  listJournal,
	}
	cmd.Flags().IntP("count", "c", 20, "number of submissions, newest first")
	return cmd
}

func listJournal(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetInt("count")
	var list []*types.Submission
	if err := call(cmd, fmt.Sprintf("GET /api/journal?count=%d", count), nil, &list); err != nil {
		return err
	}
	data := pterm.TableData{{"Seq", "Kind", "Round", "Result", "Attempts", "Latency", "Signature", "At"}}
	for _, s := range list {
		data = append(data, []string{
			strconv.FormatInt(s.Seq, 10),
			s.Kind.String(),
			strconv.FormatUint(s.RoundID, 10),
			s.Result,
			strconv.Itoa(s.Attempts),
			s.Latency.Round(time.Millisecond).String(),
			shortSig(s.Signature),
			fmtTime(s.At),
		})
	}
	return renderTable(cmd, data)
}
