// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"strings"

	"github.com/33cn/flipd/push"
	"github.com/33cn/flipd/types"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// PushCmd webhook 订阅
func PushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "push",
		Short: "Webhook subscribers",
		Args:  cobra.MinimumNArgs(1),
	}
	cmd.AddCommand(
		AddPushCmd(),
		ListPushCmd(),
	)
	return cmd
}

// AddPushCmd 新增或恢复订阅
func AddPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add or resume a webhook subscriber",
		Run:   addPush,
	}
	addPushFlags(cmd)
	return cmd
}

func addPushFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("name", "n", "", "subscriber name")
	_ = cmd.MarkFlagRequired("name")
	cmd.Flags().StringP("url", "u", "", "webhook url, must answer ok")
	_ = cmd.MarkFlagRequired("url")
	cmd.Flags().StringSliceP("types", "t", nil, "event types: round_started,round_settled,jackpot_triggered (default all)")
}

func addPush(cmd *cobra.Command, args []string) {
	name, _ := cmd.Flags().GetString("name")
	url, _ := cmd.Flags().GetString("url")
	tys, _ := cmd.Flags().GetStringSlice("types")
	req := &push.Subscribe{Name: name, URL: url}
	for _, ty := range tys {
		req.Types = append(req.Types, types.EventType(strings.TrimSpace(ty)))
	}
	var res push.Subscribe
	newRPCCtx(cmd, "POST /api/push/subscribe", req, &res).Run()
}

// ListPushCmd 列出订阅
func ListPushCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List webhook subscribers",
		RunE:  listPush,
	}
	return cmd
}

func listPush(cmd *cobra.Command, args []string) error {
	var list []*push.WithStatus
	if err := call(cmd, "GET /api/push/list", nil, &list); err != nil {
		return err
	}
	data := pterm.TableData{{"Name", "URL", "Types", "Status"}}
	for _, p := range list {
		tys := "all"
		if len(p.Push.Types) > 0 {
			names := make([]string, 0, len(p.Push.Types))
			for _, ty := range p.Push.Types {
				names = append(names, string(ty))
			}
			tys = strings.Join(names, ",")
		}
		status := "active"
		if !p.Active() {
			status = "not active"
		}
		data = append(data, []string{p.Push.Name, p.Push.URL, tys, status})
	}
	return renderTable(cmd, data)
}
