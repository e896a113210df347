// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package submitter

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/33cn/flipd/chain"
	"github.com/33cn/flipd/types"
	pkgerr "github.com/pkg/errors"
)

// 合约错误码 = 6000 + ErrorCode 下标
const (
	CodeInvalidSide     = 6000
	CodeRoundExpired    = 6001
	CodeRoundSettled    = 6002
	CodeAlreadyBet      = 6003
	CodeRoundNotExpired = 6004
	CodeAlreadySettled  = 6005
	CodeNoBets          = 6006
	CodeUnauthorized    = 6011
	CodeInvalidDuration = 6012
)

var programErrorNames = map[int]string{
	CodeInvalidSide:     "InvalidSide",
	CodeRoundExpired:    "RoundExpired",
	CodeRoundSettled:    "RoundSettled",
	CodeAlreadyBet:      "AlreadyBet",
	CodeRoundNotExpired: "RoundNotExpired",
	CodeAlreadySettled:  "AlreadySettled",
	CodeNoBets:          "NoBets",
	6007:                "RoundNotSettled",
	6008:                "AlreadyClaimed",
	6009:                "NotWinner",
	6010:                "NoWinners",
	CodeUnauthorized:    "Unauthorized",
	CodeInvalidDuration: "InvalidDuration",
}

// 这些错误说明本地视图落后于链, 不应重发
var staleCodes = map[int]bool{
	CodeRoundSettled:    true,
	CodeRoundNotExpired: true,
	CodeAlreadySettled:  true,
}

var (
	hexCodeRe    = regexp.MustCompile(`custom program error: 0x([0-9a-fA-F]+)`)
	customCodeRe = regexp.MustCompile(`"Custom"\s*:\s*(\d+)`)
)

var transportHints = []string{
	"blockhash not found",
	"node is unhealthy",
	"node is behind",
	"too many requests",
	"status code: 429",
	"status code: 5",
	"connection refused",
	"connection reset",
	"i/o timeout",
	"unexpected eof",
}

// ProgramErrorName 合约错误码的名字
func ProgramErrorName(code int) string {
	if name, ok := programErrorNames[code]; ok {
		return name
	}
	return "Custom(" + strconv.Itoa(code) + ")"
}

// ProgramErrorCode 从 rpc 错误文本中提取合约错误码
func ProgramErrorCode(text string) (int, bool) {
	if m := hexCodeRe.FindStringSubmatch(text); m != nil {
		code, err := strconv.ParseInt(m[1], 16, 32)
		if err == nil {
			return int(code), true
		}
	}
	if m := customCodeRe.FindStringSubmatch(text); m != nil {
		code, err := strconv.Atoi(m[1])
		if err == nil {
			return code, true
		}
	}
	return 0, false
}

// Classify 把发送或执行失败归类为 ErrTransport / ErrStaleState / ErrRejected
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, types.ErrTransport) || errors.Is(err, types.ErrStaleState) ||
		errors.Is(err, types.ErrRejected) || errors.Is(err, types.ErrConfirmTimeout) ||
		errors.Is(err, types.ErrInvalidParam) {
		return err
	}
	return classifyText(err.Error(), isSendError(err))
}

// ClassifyExecution 交易已上链但执行失败
func ClassifyExecution(text string) error {
	return classifyText(text, true)
}

func isSendError(err error) bool {
	var se *chain.SendError
	return errors.As(err, &se)
}

func classifyText(text string, fromNode bool) error {
	if code, ok := ProgramErrorCode(text); ok {
		name := ProgramErrorName(code)
		if staleCodes[code] {
			return pkgerr.Wrapf(types.ErrStaleState, "program error %d %s", code, name)
		}
		return pkgerr.Wrapf(types.ErrRejected, "program error %d %s", code, name)
	}
	lower := strings.ToLower(text)
	if strings.Contains(lower, "already in use") {
		return pkgerr.Wrapf(types.ErrStaleState, "%s", text)
	}
	for _, hint := range transportHints {
		if strings.Contains(lower, hint) {
			return pkgerr.Wrapf(types.ErrTransport, "%s", text)
		}
	}
	if fromNode {
		return pkgerr.Wrapf(types.ErrRejected, "%s", text)
	}
	return pkgerr.Wrapf(types.ErrTransport, "%s", text)
}
