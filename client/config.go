// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package client

import (
	"time"

	"github.com/sirupsen/logrus"
	"github.com/vmware/stompclient-go/heartbeat"
	"github.com/vmware/stompclient-go/log"
	"github.com/vmware/stompclient-go/metrics"
	"github.com/vmware/stompclient-go/monitor"
)

const (
	DefaultMaxConnectAttempt     = 10
	DefaultTTLConnectAttempt     = time.Second
	DefaultHeartbeatInterval     = 10 * time.Second
	DefaultMaxTransportFrameSize = 16 * 1024
	DefaultSubscriptionBuffer    = 64

	// UnlimitedAttempts keeps reconnecting forever.
	UnlimitedAttempts = -1
)

// Config of a Client. Zero values are replaced by the defaults.
type Config struct {
	// MaxConnectAttempt is the number of consecutive failed connections
	// after which the stream fails for good. UnlimitedAttempts disables the
	// limit.
	MaxConnectAttempt int
	// TTLConnectAttempt is the base of the linear reconnect backoff: the
	// n-th consecutive failure waits n times TTLConnectAttempt.
	TTLConnectAttempt time.Duration

	Heartbeat        heartbeat.Settings
	DisableHeartbeat bool

	// Binary sends frames as binary transport messages.
	Binary bool
	// SkipContentLength leaves content-length out of SEND frames.
	SkipContentLength bool
	// MaxTransportFrameSize splits larger outbound frames into several
	// transport writes. A negative value never splits.
	MaxTransportFrameSize int
	// SubscriptionBuffer is the default channel capacity of subscriptions
	// and frame listeners.
	SubscriptionBuffer int

	Logger  *logrus.Entry
	Metrics *metrics.Collector
	Monitor *monitor.MonitorStream
}

func DefaultConfig() Config {
	return Config{
		MaxConnectAttempt: DefaultMaxConnectAttempt,
		TTLConnectAttempt: DefaultTTLConnectAttempt,
		Heartbeat: heartbeat.Settings{
			Outgoing: DefaultHeartbeatInterval,
			Incoming: DefaultHeartbeatInterval,
		},
		MaxTransportFrameSize: DefaultMaxTransportFrameSize,
		SubscriptionBuffer:    DefaultSubscriptionBuffer,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxConnectAttempt == 0 || c.MaxConnectAttempt < UnlimitedAttempts {
		c.MaxConnectAttempt = DefaultMaxConnectAttempt
	}
	if c.TTLConnectAttempt <= 0 {
		c.TTLConnectAttempt = DefaultTTLConnectAttempt
	}
	if c.DisableHeartbeat {
		c.Heartbeat = heartbeat.Disabled
	} else if !c.Heartbeat.Enabled() {
		c.Heartbeat = DefaultConfig().Heartbeat
	}
	if c.MaxTransportFrameSize == 0 {
		c.MaxTransportFrameSize = DefaultMaxTransportFrameSize
	}
	if c.SubscriptionBuffer <= 0 {
		c.SubscriptionBuffer = DefaultSubscriptionBuffer
	}
	c.Logger = log.OrDiscard(c.Logger)
	return c
}
