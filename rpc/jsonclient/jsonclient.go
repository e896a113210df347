// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package jsonclient flipd http 接口的客户端
package jsonclient

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// JSONClient a object of jsonclient
type JSONClient struct {
	url      string
	user     string
	password string
	client   *http.Client
}

// APIError 服务端返回的非 2xx 响应
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("http %d: %s", e.Code, e.Message)
}

// NewJSONClient laddr 可以不带 http://
func NewJSONClient(laddr string) (*JSONClient, error) {
	if laddr == "" {
		return nil, fmt.Errorf("empty rpc address")
	}
	if !strings.HasPrefix(laddr, "http://") && !strings.HasPrefix(laddr, "https://") {
		laddr = "http://" + laddr
	}
	return &JSONClient{
		url:    strings.TrimRight(laddr, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// SetBasicAuth 运维接口使用
func (c *JSONClient) SetBasicAuth(user, password string) {
	c.user = user
	c.password = password
}

// Call method 形如 "GET /api/status", params 为 nil 时不发送 body
func (c *JSONClient) Call(method string, params, resp interface{}) error {
	verb, path := http.MethodGet, method
	if parts := strings.SplitN(method, " ", 2); len(parts) == 2 {
		verb, path = parts[0], parts[1]
	}
	var body io.Reader
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequest(verb, c.url+path, body)
	if err != nil {
		return err
	}
	if params != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.user != "" || c.password != "" {
		req.SetBasicAuth(c.user, c.password)
	}
	res, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		apiErr := &APIError{Code: res.StatusCode}
		if json.Unmarshal(data, apiErr) != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		apiErr.Code = res.StatusCode
		return apiErr
	}
	if resp == nil {
		return nil
	}
	return json.Unmarshal(data, resp)
}
