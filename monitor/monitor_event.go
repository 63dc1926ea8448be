// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package monitor

import "time"

type EventType int

const (
	ConnectingEvt EventType = iota
	ConnectedEvt
	DisconnectedEvt
	ReconnectScheduledEvt
	ConnectionFailedEvt
	HeartbeatTimeoutEvt
	SubscribedEvt
	UnsubscribedEvt
	ErrorFrameEvt
)

var eventNames = map[EventType]string{
	ConnectingEvt:         "connecting",
	ConnectedEvt:          "connected",
	DisconnectedEvt:       "disconnected",
	ReconnectScheduledEvt: "reconnect-scheduled",
	ConnectionFailedEvt:   "connection-failed",
	HeartbeatTimeoutEvt:   "heartbeat-timeout",
	SubscribedEvt:         "subscribed",
	UnsubscribedEvt:       "unsubscribed",
	ErrorFrameEvt:         "error-frame",
}

func (t EventType) String() string {
	if name, ok := eventNames[t]; ok {
		return name
	}
	return "unknown"
}

type MonitorEvent struct {
	EventType   EventType
	Destination string
	Attempt     int
	Err         error
	Time        time.Time
}

// Create a new monitor event
func NewMonitorEvent(evtType EventType, destination string) *MonitorEvent {
	return &MonitorEvent{EventType: evtType, Destination: destination, Time: time.Now()}
}
