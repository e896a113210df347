// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"strconv"

	"github.com/33cn/flipd/types"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

// StatusCmd engine status
func StatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show engine status",
		RunE:  engineStatus,
	}
	return cmd
}

func engineStatus(cmd *cobra.Command, args []string) error {
	var st types.EngineStatus
	if err := call(cmd, "GET /api/status", nil, &st); err != nil {
		return err
	}
	stuck := "no"
	if st.Stuck {
		stuck = "round " + strconv.FormatUint(st.StuckRoundID, 10)
	}
	data := pterm.TableData{
		{"Field", "Value"},
		{"running", strconv.FormatBool(st.Running)},
		{"phase", string(st.Phase)},
		{"round", strconv.FormatUint(st.LastObservedRoundID, 10)},
		{"stuck", stuck},
		{"failures", strconv.FormatInt(st.ConsecutiveFailureCount, 10)},
		{"started", strconv.FormatInt(st.RoundsStarted, 10)},
		{"closed", strconv.FormatInt(st.RoundsClosed, 10)},
		{"submissions", strconv.FormatInt(st.Submissions, 10)},
		{"last transition", fmtTime(st.LastTransitionAt)},
		{"last check", fmtTime(st.LastCheck)},
	}
	if st.ForceAuthorizedRound > 0 {
		data = append(data, []string{"force authorized", strconv.FormatUint(st.ForceAuthorizedRound, 10)})
	}
	if st.LastError != "" {
		data = append(data, []string{"last error", st.LastError})
	}
	if err := renderTable(cmd, data); err != nil {
		return err
	}
	if len(st.RecentErrors) == 0 {
		return nil
	}
	errs := pterm.TableData{{"Time", "Error"}}
	for _, e := range st.RecentErrors {
		errs = append(errs, []string{fmtTime(e.Time), e.Message})
	}
	return renderTable(cmd, errs)
}
