// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
)

// DefaultContentTypeHeader json 响应的 Content-Type
var DefaultContentTypeHeader = "application/json; charset=utf-8"

// StatusResponse 出错时的响应体
type StatusResponse struct {
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// NewMaxBodyBytesHandler 限制请求体大小
func NewMaxBodyBytesHandler(limit int64) func(http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > limit {
				respond(w, http.StatusRequestEntityTooLarge, nil)
				return
			}
			r.Body = http.MaxBytesReader(w, r.Body, limit)
			h.ServeHTTP(w, r)
		})
	}
}

func ok(w http.ResponseWriter, response interface{}) {
	respond(w, http.StatusOK, response)
}

func badRequest(w http.ResponseWriter, response interface{}) {
	respond(w, http.StatusBadRequest, response)
}

func methodNotAllowed(w http.ResponseWriter) {
	respond(w, http.StatusMethodNotAllowed, nil)
}

// respond writes a JSON-encoded body, string 和 error 包装为 StatusResponse
func respond(w http.ResponseWriter, statusCode int, response interface{}) {
	if statusCode == 0 {
		statusCode = http.StatusOK
	}
	if response == nil {
		response = &StatusResponse{
			Message: http.StatusText(statusCode),
			Code:    statusCode,
		}
	} else {
		switch message := response.(type) {
		case string:
			response = &StatusResponse{Message: message, Code: statusCode}
		case error:
			response = &StatusResponse{Message: message.Error(), Code: statusCode}
		}
	}
	var b bytes.Buffer
	enc := json.NewEncoder(&b)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(response); err != nil {
		rlog.Error("respond encode", "err", err)
		statusCode = http.StatusInternalServerError
		b.Reset()
		fmt.Fprintf(&b, `{"message":%q,"code":%d}`, err.Error(), statusCode)
	}
	w.Header().Set("Content-Type", DefaultContentTypeHeader)
	w.WriteHeader(statusCode)
	_, _ = w.Write(b.Bytes())
}
