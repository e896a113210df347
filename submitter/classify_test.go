// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package submitter

import (
	"errors"
	"testing"

	"github.com/33cn/flipd/chain"
	"github.com/33cn/flipd/types"
	pkgerr "github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestProgramErrorCode(t *testing.T) {
	code, ok := ProgramErrorCode("Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1772")
	assert.True(t, ok)
	assert.Equal(t, CodeRoundSettled, code)

	code, ok = ProgramErrorCode(`{"InstructionError":[0,{"Custom":6006}]}`)
	assert.True(t, ok)
	assert.Equal(t, CodeNoBets, code)

	_, ok = ProgramErrorCode("Blockhash not found")
	assert.False(t, ok)
	assert.Equal(t, "NoBets", ProgramErrorName(6006))
	assert.Equal(t, "Custom(7000)", ProgramErrorName(7000))
}

func TestClassify(t *testing.T) {
	cases := []struct {
		err  error
		want error
	}{
		{&chain.SendError{Code: -32002, Message: "Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1772"}, types.ErrStaleState},
		{&chain.SendError{Code: -32002, Message: "custom program error: 0x1774"}, types.ErrStaleState},
		{&chain.SendError{Code: -32002, Message: "custom program error: 0x1775"}, types.ErrStaleState},
		{&chain.SendError{Code: -32002, Message: "custom program error: 0x1776"}, types.ErrRejected},
		{&chain.SendError{Code: -32002, Message: "custom program error: 0x177b"}, types.ErrRejected},
		{&chain.SendError{Code: -32002, Message: "Transaction simulation failed", Data: map[string]interface{}{
			"logs": []string{"Allocate: account Address { address: 9x.., base: None } already in use"},
		}}, types.ErrStaleState},
		{&chain.SendError{Code: -32005, Message: "Node is unhealthy"}, types.ErrTransport},
		{&chain.SendError{Code: -32002, Message: "Transaction simulation failed: Blockhash not found"}, types.ErrTransport},
		{&chain.SendError{Code: -32602, Message: "invalid transaction"}, types.ErrRejected},
		{pkgerr.Wrap(types.ErrTransport, "dial tcp"), types.ErrTransport},
		{errors.New("rpc call sendTransaction() status code: 503"), types.ErrTransport},
		{errors.New("something odd"), types.ErrTransport},
		{pkgerr.Wrap(types.ErrInvalidParam, "sign: signer key not found"), types.ErrInvalidParam},
	}
	for i, c := range cases {
		got := Classify(c.err)
		assert.True(t, errors.Is(got, c.want), "case %d: %v", i, got)
	}
	assert.False(t, errors.Is(Classify(pkgerr.Wrap(types.ErrInvalidParam, "marshal")), types.ErrTransport))
	assert.Nil(t, Classify(nil))
	assert.True(t, errors.Is(ClassifyExecution(`{"InstructionError":[0,{"Custom":6011}]}`), types.ErrRejected))
}

func TestResultOf(t *testing.T) {
	assert.Equal(t, types.ResultConfirmed, ResultOf(nil))
	assert.Equal(t, types.ResultTimeout, ResultOf(pkgerr.Wrap(types.ErrConfirmTimeout, "x")))
	assert.Equal(t, types.ResultStale, ResultOf(types.ErrStaleState))
	assert.Equal(t, types.ResultRejected, ResultOf(types.ErrRejected))
	assert.Equal(t, types.ResultTransport, ResultOf(types.ErrTransport))
	assert.Equal(t, types.ResultError, ResultOf(types.ErrInvalidParam))
}
