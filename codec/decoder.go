// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package codec

import (
	"github.com/go-stomp/stomp/v3/frame"
	"github.com/sirupsen/logrus"
	"github.com/vmware/stompclient-go/log"
)

// Decoder reassembles frames from transport messages. It keeps the tail of
// an incomplete frame until the following messages complete it.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	partial []byte
	log     *logrus.Entry
}

// NewDecoder returns a Decoder logging dropped frames to logger (may be nil).
func NewDecoder(logger *logrus.Entry) *Decoder {
	return &Decoder{log: log.OrDiscard(logger)}
}

// IsHeartbeat reports whether data holds nothing but EOLs.
func IsHeartbeat(data []byte) bool {
	return len(data) > 0 && skipEOL(data) == len(data)
}

// Decode appends data to the pending bytes and returns the frames it
// completes, in wire order.
func (d *Decoder) Decode(data []byte) []*frame.Frame {
	if len(d.partial) == 0 && IsHeartbeat(data) {
		d.log.Trace("<<< PONG")
		return nil
	}

	buf := data
	if len(d.partial) > 0 {
		buf = append(d.partial, data...)
	}
	frames, rest := unmarshall(buf, func(chunk []byte) {
		d.log.WithField("bytes", len(chunk)).Warn("dropping malformed frame")
	})
	d.partial = rest
	return frames
}

// Pending returns the number of buffered bytes awaiting completion.
func (d *Decoder) Pending() int {
	return len(d.partial)
}

// Reset drops any buffered partial frame.
func (d *Decoder) Reset() {
	d.partial = nil
}
