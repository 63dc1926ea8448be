// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package protocol

const (
	ErrUnsupportedOperation = protocolError("operation not supported by the negotiated STOMP version")
	ErrUnsupportedVersion   = protocolError("unsupported STOMP version")
	ErrNotNegotiated        = protocolError("STOMP version not negotiated")
	ErrMissingHeader        = protocolError("missing required header")
)

type protocolError string

func (e protocolError) Error() string {
	return string(e)
}
