// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/33cn/flipd/push"
	"github.com/33cn/flipd/types"
	"github.com/pkg/errors"
)

// Health /health 的响应
type Health struct {
	Status  string `json:"status"`
	Running bool   `json:"running"`
	Stuck   bool   `json:"stuck"`
}

// RoundView /api/round 的响应
type RoundView struct {
	Global  *types.GlobalConfig `json:"global"`
	Current *types.Round        `json:"current,omitempty"`
	PotSOL  string              `json:"potSol,omitempty"`
}

// ForceRequest /api/admin/force 的请求
type ForceRequest struct {
	RoundID uint64 `json:"roundId"`
}

// ForceResponse /api/admin/force 的响应
type ForceResponse struct {
	RoundID uint64 `json:"roundId"`
	Status  string `json:"status"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.engine.Status()
	h := &Health{Status: "ok", Running: s.engine.Running(), Stuck: st.Stuck}
	code := http.StatusOK
	if !h.Running {
		h.Status = "stopped"
		code = http.StatusServiceUnavailable
	} else if h.Stuck {
		h.Status = "stuck"
	}
	respond(w, code, h)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	st := s.engine.Status()
	ok(w, &st)
}

func (s *Server) handleRound(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.reader == nil {
		respond(w, http.StatusServiceUnavailable, "chain reader not configured")
		return
	}
	ctx := r.Context()
	global, err := s.reader.ReadGlobalConfig(ctx)
	if err != nil {
		rlog.Error("handleRound", "err", err)
		respond(w, http.StatusBadGateway, err)
		return
	}
	view := &RoundView{Global: global}
	if global.CurrentRound > 0 {
		round, err := s.reader.ReadRound(ctx, global.CurrentRound)
		switch {
		case err == nil:
			view.Current = round
			view.PotSOL = types.LamportsToSOL(round.Pot())
		case errors.Is(err, types.ErrNotFound):
		default:
			rlog.Error("handleRound", "round", global.CurrentRound, "err", err)
			respond(w, http.StatusBadGateway, err)
			return
		}
	}
	ok(w, view)
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.journal == nil {
		respond(w, http.StatusServiceUnavailable, "journal not configured")
		return
	}
	count := 20
	if v := r.URL.Query().Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			badRequest(w, types.ErrInvalidParam)
			return
		}
		count = n
	}
	list, err := s.journal.List(count)
	if err != nil {
		if errors.Is(err, types.ErrInvalidParam) {
			badRequest(w, err)
			return
		}
		respond(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*types.Submission{}
	}
	ok(w, list)
}

func (s *Server) handlePushList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	if s.push == nil {
		respond(w, http.StatusNotImplemented, types.ErrPushNotSupport)
		return
	}
	list, err := s.push.List()
	if err != nil {
		respond(w, http.StatusInternalServerError, err)
		return
	}
	if list == nil {
		list = []*push.WithStatus{}
	}
	ok(w, list)
}

func (s *Server) handlePushSubscribe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	if s.push == nil {
		respond(w, http.StatusNotImplemented, types.ErrPushNotSupport)
		return
	}
	var req push.Subscribe
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	err := s.push.AddSubscriber(&req)
	switch {
	case err == nil:
		ok(w, &req)
	case errors.Is(err, types.ErrInvalidParam):
		badRequest(w, err)
	case errors.Is(err, types.ErrNotAllowModifyPush):
		respond(w, http.StatusConflict, err)
	case errors.Is(err, types.ErrTooManySubscriber):
		respond(w, http.StatusTooManyRequests, err)
	default:
		respond(w, http.StatusInternalServerError, err)
	}
}

func (s *Server) handleForce(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}
	var req ForceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		badRequest(w, err)
		return
	}
	if err := s.engine.AuthorizeForce(req.RoundID); err != nil {
		if errors.Is(err, types.ErrInvalidParam) {
			badRequest(w, err)
			return
		}
		respond(w, http.StatusInternalServerError, err)
		return
	}
	rlog.Info("force authorized", "round", req.RoundID, "ip", remoteIP(r))
	ok(w, &ForceResponse{RoundID: req.RoundID, Status: "authorized"})
}
