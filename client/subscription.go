// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package client

import (
	"github.com/go-stomp/stomp/v3"
)

// Subscription delivers the messages of one destination on C, in the order
// the broker sent them. Unsubscribe sends UNSUBSCRIBE unless the
// subscription is a broadcast still shared by other consumers.
type Subscription struct {
	*Listener[*Message]
	Id          string
	Destination string
	AckMode     stomp.AckMode
}

type subscribeOptions struct {
	id      string
	ack     stomp.AckMode
	headers []string
	buffer  int
}

type SubscribeOption func(*subscribeOptions)

// WithId replaces the generated "sub-<n>" subscription id.
func WithId(id string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.id = id
	}
}

func WithAck(mode stomp.AckMode) SubscribeOption {
	return func(o *subscribeOptions) {
		o.ack = mode
	}
}

// WithHeaders adds key, value pairs to the SUBSCRIBE frame.
func WithHeaders(headers ...string) SubscribeOption {
	return func(o *subscribeOptions) {
		o.headers = append(o.headers, headers...)
	}
}

// WithBuffer sets the capacity of the subscription channel.
func WithBuffer(size int) SubscribeOption {
	return func(o *subscribeOptions) {
		o.buffer = size
	}
}

// route is the session side of a wire subscription. Its mailbox keeps a
// slow consumer from holding up the other subscriptions.
type route struct {
	id          string
	destination string
	feed        *mailbox[*Message]
}

// broadcast shares one wire subscription between several consumers.
type broadcast struct {
	destination string
	feed        *feed[*Message]
	upstream    *Subscription
}

// pump forwards upstream messages to the consumers until upstream ends.
func (b *broadcast) pump() {
	for m := range b.upstream.C {
		b.feed.publish(m)
	}
	b.feed.close(b.upstream.Err())
}
