// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package protocol

import (
	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/vmware/stompclient-go/codec"
)

// V11 implements STOMP 1.1.
type V11 struct {
	*V10
}

func NewV11() *V11 {
	return &V11{V10: NewV10()}
}

func (p *V11) Version() stomp.Version {
	return stomp.V11
}

func (p *V11) Nack(messageId, subscriptionId string, header *frame.Header) (*frame.Frame, error) {
	return p.acknowledge(frame.NACK, messageId, subscriptionId, header)
}

func (p *V11) Unsubscribe(id, destination string, header *frame.Header) (*frame.Frame, error) {
	if id == "" {
		return nil, missing(frame.UNSUBSCRIBE, frame.Id)
	}
	return build(frame.UNSUBSCRIBE, header, frame.Id, id), nil
}

func (p *V11) HeartbeatMarker() []byte {
	return codec.HeartbeatMarker
}

func (p *V11) SupportsHeartbeat() bool {
	return true
}
