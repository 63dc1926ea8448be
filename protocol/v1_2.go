// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package protocol

import (
	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
)

// V12 implements STOMP 1.2. Acknowledgements carry the "id" header taken
// from the MESSAGE frame's "ack" header, plus the subscription when known.
type V12 struct {
	*V11
}

func NewV12() *V12 {
	return &V12{V11: NewV11()}
}

func (p *V12) Version() stomp.Version {
	return stomp.V12
}

func (p *V12) Ack(messageId, subscriptionId string, header *frame.Header) (*frame.Frame, error) {
	return p.ackById(frame.ACK, messageId, subscriptionId, header)
}

func (p *V12) Nack(messageId, subscriptionId string, header *frame.Header) (*frame.Frame, error) {
	return p.ackById(frame.NACK, messageId, subscriptionId, header)
}

func (p *V12) ackById(command, messageId, subscriptionId string, header *frame.Header) (*frame.Frame, error) {
	if messageId == "" {
		return nil, missing(command, frame.Id)
	}
	mandatory := []string{frame.Id, messageId}
	if subscriptionId != "" {
		mandatory = append(mandatory, frame.Subscription, subscriptionId)
	}
	return build(command, header, mandatory...), nil
}

func (p *V12) MessageId(f *frame.Frame) string {
	if ack, ok := f.Header.Contains(frame.Ack); ok && ack != "" {
		return ack
	}
	return f.Header.Get(frame.MessageId)
}
