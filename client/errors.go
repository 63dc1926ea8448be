// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package client

import (
	"fmt"
)

const (
	ErrSessionClosed            = clientError("session closed")
	ErrReconnectBudgetExhausted = clientError("reconnect attempts exhausted")
	ErrHeartbeatTimeout         = clientError("no heart-beat from server")
	ErrTransportClosed          = clientError("transport closed")
	ErrClientDisconnected       = clientError("client disconnected")
	ErrStreamClosed             = clientError("stream closed")
	ErrDuplicateSubscription    = clientError("subscription id already in use")
)

type clientError string

func (e clientError) Error() string {
	return string(e)
}

// ConnectionError is the terminal error of a SessionStream that ran out of
// reconnect attempts. It matches ErrReconnectBudgetExhausted with errors.Is
// and errors.Cause, and unwraps to the failure of the last attempt.
type ConnectionError struct {
	Attempts int
	Err      error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("%s after %d attempts: %v", ErrReconnectBudgetExhausted, e.Attempts, e.Err)
}

func (e *ConnectionError) Is(target error) bool {
	return target == ErrReconnectBudgetExhausted
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Cause is used by github.com/pkg/errors.
func (e *ConnectionError) Cause() error {
	return ErrReconnectBudgetExhausted
}
