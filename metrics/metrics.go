// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package metrics exposes client activity as Prometheus metrics. A nil
// *Collector is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	FramesSent          = "frames_sent_total"
	FramesReceived      = "frames_received_total"
	ReconnectAttempts   = "reconnect_attempts_total"
	HeartbeatTimeouts   = "heartbeat_timeouts_total"
	Connected           = "connected"
	ActiveSubscriptions = "active_subscriptions"
)

type Collector struct {
	framesSent          *prometheus.CounterVec
	framesReceived      *prometheus.CounterVec
	reconnectAttempts   prometheus.Counter
	heartbeatTimeouts   prometheus.Counter
	connected           prometheus.Gauge
	activeSubscriptions prometheus.Gauge
}

// New creates the collectors under the given namespace. They still have to be
// registered with Register.
func New(namespace string) *Collector {
	return &Collector{
		framesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      FramesSent,
			Help:      "Number of STOMP frames written to the transport, by command",
		}, []string{"command"}),
		framesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      FramesReceived,
			Help:      "Number of STOMP frames decoded from the transport, by command",
		}, []string{"command"}),
		reconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      ReconnectAttempts,
			Help:      "Number of reconnects scheduled after a lost connection",
		}),
		heartbeatTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      HeartbeatTimeouts,
			Help:      "Number of connections dropped because the server went silent",
		}),
		connected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      Connected,
			Help:      "1 while a STOMP session is established",
		}),
		activeSubscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      ActiveSubscriptions,
			Help:      "Number of wire subscriptions currently open",
		}),
	}
}

// Register adds every collector to reg.
func (c *Collector) Register(reg prometheus.Registerer) error {
	for _, col := range []prometheus.Collector{
		c.framesSent,
		c.framesReceived,
		c.reconnectAttempts,
		c.heartbeatTimeouts,
		c.connected,
		c.activeSubscriptions,
	} {
		if err := reg.Register(col); err != nil {
			return err
		}
	}
	return nil
}

func (c *Collector) FrameSent(command string) {
	if c == nil {
		return
	}
	c.framesSent.WithLabelValues(command).Inc()
}

func (c *Collector) FrameReceived(command string) {
	if c == nil {
		return
	}
	c.framesReceived.WithLabelValues(command).Inc()
}

func (c *Collector) ReconnectAttempt() {
	if c == nil {
		return
	}
	c.reconnectAttempts.Inc()
}

func (c *Collector) HeartbeatTimeout() {
	if c == nil {
		return
	}
	c.heartbeatTimeouts.Inc()
}

func (c *Collector) SetConnected(connected bool) {
	if c == nil {
		return
	}
	if connected {
		c.connected.Set(1)
	} else {
		c.connected.Set(0)
	}
}

func (c *Collector) SubscriptionOpened() {
	if c == nil {
		return
	}
	c.activeSubscriptions.Inc()
}

func (c *Collector) SubscriptionClosed() {
	if c == nil {
		return
	}
	c.activeSubscriptions.Dec()
}
