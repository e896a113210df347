// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package commands

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/33cn/flipd/push"
	"github.com/33cn/flipd/rpc"
	"github.com/33cn/flipd/types"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRoot(addr string) *cobra.Command {
	root := &cobra.Command{Use: "flipd-cli", SilenceUsage: true, SilenceErrors: true}
	root.PersistentFlags().String("rpc_laddr", addr, "")
	root.PersistentFlags().String("rpc_user", "admin", "")
	root.PersistentFlags().String("rpc_passwd", "secret", "")
	root.AddCommand(StatusCmd(), RoundCmd(), JournalCmd(), EngineCmd(), PushCmd(), VersionCmd())
	return root
}

func run(t *testing.T, addr string, args ...string) (string, error) {
	pterm.DisableStyling()
	root := newRoot(addr)
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func newServer(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, &types.EngineStatus{
			Running:             true,
			Phase:               types.PhaseOpen,
			LastObservedRoundID: 42,
			RecentErrors:        []types.ErrorRecord{{Time: time.Now(), Message: "ErrTransport: node is behind"}},
		})
	})
	mux.HandleFunc("/api/round", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, &rpc.RoundView{
			Global:  &types.GlobalConfig{CurrentRound: 42, RakeBps: 300, JackpotBps: 100},
			Current: &types.Round{RoundID: 42, HeadsTotal: 2500000000, EndsAt: time.Now().Unix()},
			PotSOL:  "2.5",
		})
	})
	mux.HandleFunc("/api/journal", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "5", r.URL.Query().Get("count"))
		writeJSON(w, []*types.Submission{{Seq: 3, Kind: types.TransitionSettle, RoundID: 41, Result: types.ResultConfirmed, Attempts: 1}})
	})
	mux.HandleFunc("/api/admin/force", func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		var req rpc.ForceRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeJSON(w, &rpc.ForceResponse{RoundID: req.RoundID, Status: "authorized"})
	})
	mux.HandleFunc("/api/push/list", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, []*push.WithStatus{
			{Push: &push.Subscribe{Name: "hook", URL: "http://example.com/hook"}, Status: 1},
			{Push: &push.Subscribe{Name: "settles", URL: "http://example.com/s", Types: []types.EventType{types.EventRoundSettled}}, Status: 2},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestStatusCmd(t *testing.T) {
	srv := newServer(t)
	out, err := run(t, srv.URL, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "open")
	assert.Contains(t, out, "42")
	assert.Contains(t, out, "node is behind")
}

func TestRoundCmd(t *testing.T) {
	srv := newServer(t)
	out, err := run(t, srv.URL, "round")
	require.NoError(t, err)
	assert.Contains(t, out, "2.5")
	assert.Contains(t, out, "300")
}

func TestJournalCmd(t *testing.T) {
	srv := newServer(t)
	out, err := run(t, srv.URL, "journal", "-c", "5")
	require.NoError(t, err)
	assert.Contains(t, out, "settle")
	assert.Contains(t, out, "confirmed")
}

func TestForceCmd(t *testing.T) {
	srv := newServer(t)
	out, err := run(t, srv.URL, "engine", "force", "--round", "9")
	require.NoError(t, err)
	assert.Contains(t, out, "round 9: authorized")

	_, err = run(t, srv.URL, "engine", "force")
	assert.Error(t, err)
}

func TestPushListCmd(t *testing.T) {
	srv := newServer(t)
	out, err := run(t, srv.URL, "push", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "hook")
	assert.Contains(t, out, "round_settled")
	assert.Contains(t, out, "not active")
}

func TestStatusCmdServerDown(t *testing.T) {
	_, err := run(t, "http://127.0.0.1:1", "status")
	assert.Error(t, err)
}
