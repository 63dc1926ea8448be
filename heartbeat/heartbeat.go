// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package heartbeat negotiates STOMP heart-beat intervals and runs the
// outgoing pinger and the incoming watchdog.
package heartbeat

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-stomp/stomp/v3/frame"
	"github.com/pkg/errors"
)

// Settings holds the two heart-beat intervals of one peer. A zero interval
// means the peer cannot, or does not want to, use that direction.
type Settings struct {
	// Outgoing is how often the peer can send heart-beats.
	Outgoing time.Duration
	// Incoming is how often the peer wants to receive them.
	Incoming time.Duration
}

// Disabled turns heart-beats off in both directions.
var Disabled = Settings{}

// Enabled reports whether either direction is requested.
func (s Settings) Enabled() bool {
	return s.Outgoing > 0 || s.Incoming > 0
}

// String formats the settings as a heart-beat header value.
func (s Settings) String() string {
	return fmt.Sprintf("%d,%d", s.Outgoing.Milliseconds(), s.Incoming.Milliseconds())
}

// ParseServerSettings reads the heart-beat header of a CONNECTED frame. An
// absent header means the server does not do heart-beats.
func ParseServerSettings(value string) (Settings, error) {
	value = strings.Join(strings.Fields(value), "")
	if value == "" {
		return Disabled, nil
	}
	out, in, err := frame.ParseHeartBeat(value)
	if err != nil {
		return Disabled, errors.Wrapf(err, "heart-beat '%s'", value)
	}
	return Settings{Outgoing: out, Incoming: in}, nil
}

// Negotiate combines the client and server settings. ping is the interval at
// which the client sends heart-beats, watchdog the interval at which it
// expects to hear from the server. Either is zero when disabled.
func Negotiate(client, server Settings) (ping, watchdog time.Duration) {
	if client.Outgoing > 0 && server.Incoming > 0 {
		ping = maxDuration(client.Outgoing, server.Incoming)
	}
	if client.Incoming > 0 && server.Outgoing > 0 {
		watchdog = maxDuration(client.Incoming, server.Outgoing)
	}
	return ping, watchdog
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
