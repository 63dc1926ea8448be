// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package heartbeat

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/relistan/go-director"
	"github.com/sirupsen/logrus"
	"github.com/vmware/stompclient-go/log"
)

// Negotiator runs the heart-beat timers of one connection.
//
// The callbacks passed to Start are invoked from timer goroutines while an
// internal lock is held, so they must not block on anything that may call
// Stop.
type Negotiator struct {
	settings Settings
	log      *logrus.Entry

	mu         sync.Mutex
	generation uint64
	pinger     director.Looper
	watchdog   director.Looper

	lastActivity int64
}

// NewNegotiator returns a Negotiator advertising settings.
func NewNegotiator(settings Settings, logger *logrus.Entry) *Negotiator {
	return &Negotiator{
		settings: settings,
		log:      log.OrDiscard(logger),
	}
}

// Settings returns the client side settings.
func (n *Negotiator) Settings() Settings {
	return n.settings
}

// Start negotiates against the server settings and launches the pinger and
// the watchdog. sendPing is called every ping interval. onTimeout is called
// once when nothing was received for more than twice the watchdog interval.
// Calling Start again replaces the running timers.
func (n *Negotiator) Start(server Settings, sendPing func(), onTimeout func()) (ping, watchdog time.Duration) {
	ping, watchdog = Negotiate(n.settings, server)

	n.mu.Lock()
	defer n.mu.Unlock()

	n.stopLocked()
	n.Activity()
	generation := n.generation

	if ping > 0 {
		n.log.WithField("interval", ping).Debug("starting heart-beat pinger")
		n.pinger = director.NewTimedLooper(director.FOREVER, ping, make(chan error, 1))
		go n.pinger.Loop(func() error {
			n.mu.Lock()
			defer n.mu.Unlock()
			if n.generation != generation {
				return nil
			}
			n.log.Trace(">>> PING")
			sendPing()
			return nil
		})
	}

	if watchdog > 0 {
		n.log.WithField("interval", watchdog).Debug("starting heart-beat watchdog")
		limit := 2 * watchdog
		fired := false
		n.watchdog = director.NewTimedLooper(director.FOREVER, watchdog, make(chan error, 1))
		go n.watchdog.Loop(func() error {
			n.mu.Lock()
			defer n.mu.Unlock()
			if n.generation != generation || fired {
				return nil
			}
			idle := time.Since(time.Unix(0, atomic.LoadInt64(&n.lastActivity)))
			if idle > limit {
				fired = true
				n.log.WithField("idle", idle).Warn("no data from server within heart-beat window")
				onTimeout()
			}
			return nil
		})
	}
	return ping, watchdog
}

// Activity records that data was received from the server.
func (n *Negotiator) Activity() {
	atomic.StoreInt64(&n.lastActivity, time.Now().UnixNano())
}

// Stop cancels the timers. No callback runs once Stop has returned.
func (n *Negotiator) Stop() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.stopLocked()
}

func (n *Negotiator) stopLocked() {
	n.generation++
	if n.pinger != nil {
		n.pinger.Quit()
		n.pinger = nil
	}
	if n.watchdog != nil {
		n.watchdog.Quit()
		n.watchdog = nil
	}
}
