// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package protocol builds client frames for a negotiated STOMP version.
//
// The 1.1 strategy is the 1.0 strategy plus heart-beats and NACK, the 1.2
// strategy is the 1.1 strategy with the "id" acknowledgement header. Every
// operation accepts an optional header bag whose entries are copied after the
// mandatory ones; a mandatory header always wins over a caller's entry of the
// same name.
package protocol

import (
	"github.com/go-stomp/stomp/v3"
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/pkg/errors"
)

// AcceptVersions is advertised on every CONNECT frame.
const AcceptVersions = "1.2,1.1,1.0"

// Protocol produces outbound frames and reads version dependent inbound
// headers.
type Protocol interface {
	// Version returns the negotiated version, empty before CONNECTED.
	Version() stomp.Version

	Connect(header *frame.Header) *frame.Frame
	Disconnect(header *frame.Header) *frame.Frame
	Send(destination string, body []byte, header *frame.Header) (*frame.Frame, error)

	// Begin starts a transaction. An empty id allocates "tx-<n>"; the id
	// used is carried by the frame's transaction header.
	Begin(transaction string, header *frame.Header) (*frame.Frame, error)
	Commit(transaction string, header *frame.Header) (*frame.Frame, error)
	Abort(transaction string, header *frame.Header) (*frame.Frame, error)

	Ack(messageId, subscriptionId string, header *frame.Header) (*frame.Frame, error)
	Nack(messageId, subscriptionId string, header *frame.Header) (*frame.Frame, error)

	Subscribe(destination, id string, ack stomp.AckMode, header *frame.Header) (*frame.Frame, error)
	Unsubscribe(id, destination string, header *frame.Header) (*frame.Frame, error)

	// MessageId returns the identifier to acknowledge a MESSAGE frame with.
	MessageId(f *frame.Frame) string
	SubscriptionId(f *frame.Frame) string

	// HeartbeatMarker is nil for versions without heart-beats.
	HeartbeatMarker() []byte
	SupportsHeartbeat() bool
}

// New returns the strategy for a version announced by the broker. The empty
// version gives the pre-handshake strategy which only knows CONNECT and
// DISCONNECT.
func New(version string) (Protocol, error) {
	switch stomp.Version(version) {
	case "":
		return newUnnegotiated(), nil
	case stomp.V10:
		return NewV10(), nil
	case stomp.V11:
		return NewV11(), nil
	case stomp.V12:
		return NewV12(), nil
	}
	return nil, errors.Wrapf(ErrUnsupportedVersion, "version '%s'", version)
}

// build creates a frame holding the mandatory entries followed by the caller's
// entries that do not clash with them.
func build(command string, header *frame.Header, mandatory ...string) *frame.Frame {
	f := frame.New(command, mandatory...)
	if header == nil {
		return f
	}
	for i := 0; i < header.Len(); i++ {
		key, value := header.GetAt(i)
		if _, ok := f.Header.Contains(key); ok {
			continue
		}
		f.Header.Add(key, value)
	}
	return f
}

func missing(command, name string) error {
	return errors.Wrapf(ErrMissingHeader, "%s: %s", command, name)
}
