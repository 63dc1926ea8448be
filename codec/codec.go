// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

// Package codec converts STOMP frames to and from their wire representation.
// Inbound data may arrive split across any number of transport messages, or
// several frames may be packed into one message; Unmarshall and Decoder cope
// with both.
package codec

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/go-stomp/stomp/v3/frame"
)

// HeartbeatMarker is the payload sent on the wire as a heart-beat.
var HeartbeatMarker = []byte{'\n'}

type marshallOptions struct {
	skipContentLength bool
}

// MarshallOption changes how a frame is written.
type MarshallOption func(*marshallOptions)

// SkipContentLength omits the content-length header, even when the caller
// supplied one. The receiver then reads the body up to the first NUL.
func SkipContentLength() MarshallOption {
	return func(o *marshallOptions) {
		o.skipContentLength = true
	}
}

// Marshall writes a frame: the command line, each header in order, a
// computed content-length for non-empty bodies, a blank line, the body and
// the NUL terminator. Header values are written as given.
func Marshall(command string, header *frame.Header, body []byte, opts ...MarshallOption) []byte {
	o := marshallOptions{}
	for _, opt := range opts {
		opt(&o)
	}

	withLength := len(body) > 0 && !o.skipContentLength

	var buf bytes.Buffer
	buf.Grow(len(command) + len(body) + 64)
	buf.WriteString(command)
	buf.WriteByte('\n')
	if header != nil {
		for i := 0; i < header.Len(); i++ {
			key, value := header.GetAt(i)
			if key == frame.ContentLength && (withLength || o.skipContentLength) {
				continue
			}
			buf.WriteString(key)
			buf.WriteByte(':')
			buf.WriteString(value)
			buf.WriteByte('\n')
		}
	}
	if withLength {
		buf.WriteString(frame.ContentLength)
		buf.WriteByte(':')
		buf.WriteString(strconv.Itoa(len(body)))
		buf.WriteByte('\n')
	}
	buf.WriteByte('\n')
	buf.Write(body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// MarshallFrame is Marshall for an existing frame.
func MarshallFrame(f *frame.Frame, opts ...MarshallOption) []byte {
	return Marshall(f.Command, f.Header, f.Body, opts...)
}

// Unmarshall extracts every complete frame from data. EOLs between frames are
// heart-beats and are skipped. The trailing bytes of a frame that is not yet
// complete are returned as remainder, to be prefixed to the next read.
// Malformed frames are dropped.
func Unmarshall(data []byte) (frames []*frame.Frame, remainder []byte) {
	return unmarshall(data, nil)
}

func unmarshall(data []byte, onMalformed func(chunk []byte)) (frames []*frame.Frame, remainder []byte) {
	pos := 0
	for {
		pos += skipEOL(data[pos:])
		if pos >= len(data) {
			return frames, nil
		}
		f, n, err := readFrame(data[pos:])
		if err == errIncompleteFrame {
			return frames, append([]byte(nil), data[pos:]...)
		}
		if err != nil {
			if onMalformed != nil {
				onMalformed(data[pos : pos+n])
			}
			pos += n
			continue
		}
		frames = append(frames, f)
		pos += n
	}
}

// UnmarshallSingle parses a chunk holding exactly one frame, with or without
// its NUL terminator. A chunk made only of EOLs yields ErrHeartbeat.
func UnmarshallSingle(chunk []byte) (*frame.Frame, error) {
	data := chunk[skipEOL(chunk):]
	if len(data) == 0 {
		return nil, ErrHeartbeat
	}

	head, bodyStart, closed := splitHead(data)
	if bodyStart < 0 {
		head, bodyStart, closed = data, len(data), true
	}
	command, header, err := parseHead(head)
	if err != nil {
		return nil, err
	}

	f := &frame.Frame{Command: command, Header: header}
	if closed {
		return f, nil
	}
	rest := data[bodyStart:]
	if n, ok := contentLength(header); ok {
		if n > len(rest) {
			n = len(rest)
		}
		f.Body = copyBody(rest[:n])
		return f, nil
	}
	if nul := bytes.IndexByte(rest, 0); nul >= 0 {
		rest = rest[:nul]
	}
	f.Body = copyBody(rest)
	return f, nil
}

// readFrame parses the frame at the start of data and reports how many bytes
// it used, terminator included.
func readFrame(data []byte) (*frame.Frame, int, error) {
	head, bodyStart, closed := splitHead(data)
	if bodyStart < 0 {
		return nil, 0, errIncompleteFrame
	}

	command, header, err := parseHead(head)
	if err != nil {
		if closed {
			return nil, bodyStart + 1, err
		}
		nul := bytes.IndexByte(data[bodyStart:], 0)
		if nul < 0 {
			return nil, 0, errIncompleteFrame
		}
		return nil, bodyStart + nul + 1, err
	}

	f := &frame.Frame{Command: command, Header: header}
	if closed {
		return f, bodyStart + 1, nil
	}

	if n, ok := contentLength(header); ok {
		end := bodyStart + n
		if end >= len(data) {
			return nil, 0, errIncompleteFrame
		}
		if data[end] == 0 {
			f.Body = copyBody(data[bodyStart:end])
			return f, end + 1, nil
		}
		// content-length disagrees with the body, fall back to the NUL
	}

	nul := bytes.IndexByte(data[bodyStart:], 0)
	if nul < 0 {
		return nil, 0, errIncompleteFrame
	}
	f.Body = copyBody(data[bodyStart : bodyStart+nul])
	return f, bodyStart + nul + 1, nil
}

// splitHead finds the blank line closing the command and header lines.
// bodyStart is -1 while the head is not terminated. When a NUL shows up
// before the blank line the frame has no body: closed is set and bodyStart
// points at the NUL.
func splitHead(data []byte) (head []byte, bodyStart int, closed bool) {
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case 0:
			return data[:i], i, true
		case '\n':
			if i+1 < len(data) && data[i+1] == '\n' {
				return data[:i], i + 2, false
			}
			if i+2 < len(data) && data[i+1] == '\r' && data[i+2] == '\n' {
				return data[:i], i + 3, false
			}
		}
	}
	return nil, -1, false
}

func parseHead(head []byte) (string, *frame.Header, error) {
	lines := strings.Split(string(head), "\n")
	command := strings.TrimSpace(lines[0])
	if command == "" {
		return "", nil, ErrMalformedFrame
	}

	header := frame.NewHeader()
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		name, value := line, ""
		if idx := strings.IndexByte(line, ':'); idx >= 0 {
			name, value = line[:idx], line[idx+1:]
		}
		name = strings.TrimSpace(name)
		value = strings.TrimSpace(value)
		if _, ok := header.Contains(name); ok {
			continue
		}
		header.Add(name, value)
	}
	return command, header, nil
}

func contentLength(header *frame.Header) (int, bool) {
	n, ok, err := header.ContentLength()
	if !ok || err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func skipEOL(data []byte) int {
	i := 0
	for i < len(data) && (data[i] == '\n' || data[i] == '\r') {
		i++
	}
	return i
}

func copyBody(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	return append([]byte(nil), b...)
}
