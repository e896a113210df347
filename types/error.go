// Copyright Fuzamei Corp. 2018 All Rights Reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package types

import "errors"

// engine errors
var (
	ErrNotFound           = errors.New("ErrNotFound")
	ErrMalformedAccount   = errors.New("ErrMalformedAccount")
	ErrTransport          = errors.New("ErrTransport")
	ErrStaleState         = errors.New("ErrStaleState")
	ErrRejected           = errors.New("ErrRejected")
	ErrConfirmTimeout     = errors.New("ErrConfirmTimeout")
	ErrStuckRound         = errors.New("ErrStuckRound")
	ErrConfig             = errors.New("ErrConfig")
	ErrInvalidParam       = errors.New("ErrInvalidParam")
	ErrEngineStopped      = errors.New("ErrEngineStopped")
	ErrTooManySubscriber  = errors.New("ErrTooManySubscriber")
	ErrPushPostData       = errors.New("ErrPushPostData")
	ErrNotAllowModifyPush = errors.New("ErrNotAllowModifyPush")
	ErrPushNotSupport     = errors.New("ErrPushNotSupport")
	ErrPanic              = errors.New("ErrPanic")
)
