// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package protocol

import (
	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
)

// unnegotiated is in effect between opening the transport and CONNECTED.
type unnegotiated struct {
	v10 *V10
}

func newUnnegotiated() *unnegotiated {
	return &unnegotiated{v10: NewV10()}
}

func (p *unnegotiated) Version() stomp.Version {
	return ""
}

func (p *unnegotiated) Connect(header *frame.Header) *frame.Frame {
	return p.v10.Connect(header)
}

func (p *unnegotiated) Disconnect(header *frame.Header) *frame.Frame {
	return p.v10.Disconnect(header)
}

func (p *unnegotiated) Send(string, []byte, *frame.Header) (*frame.Frame, error) {
	return nil, ErrNotNegotiated
}

func (p *unnegotiated) Begin(string, *frame.Header) (*frame.Frame, error) {
	return nil, ErrNotNegotiated
}

func (p *unnegotiated) Commit(string, *frame.Header) (*frame.Frame, error) {
	return nil, ErrNotNegotiated
}

func (p *unnegotiated) Abort(string, *frame.Header) (*frame.Frame, error) {
	return nil, ErrNotNegotiated
}

func (p *unnegotiated) Ack(string, string, *frame.Header) (*frame.Frame, error) {
	return nil, ErrNotNegotiated
}

func (p *unnegotiated) Nack(string, string, *frame.Header) (*frame.Frame, error) {
	return nil, ErrNotNegotiated
}

func (p *unnegotiated) Subscribe(string, string, stomp.AckMode, *frame.Header) (*frame.Frame, error) {
	return nil, ErrNotNegotiated
}

func (p *unnegotiated) Unsubscribe(string, string, *frame.Header) (*frame.Frame, error) {
	return nil, ErrNotNegotiated
}

func (p *unnegotiated) MessageId(f *frame.Frame) string {
	return p.v10.MessageId(f)
}

func (p *unnegotiated) SubscriptionId(f *frame.Frame) string {
	return p.v10.SubscriptionId(f)
}

func (p *unnegotiated) HeartbeatMarker() []byte {
	return nil
}

func (p *unnegotiated) SupportsHeartbeat() bool {
	return false
}
