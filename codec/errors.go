// Copyright 2019-2021 VMware, Inc.
// SPDX-License-Identifier: BSD-2-Clause

package codec

const (
	// ErrHeartbeat is returned when a chunk carries nothing but heart-beat EOLs.
	ErrHeartbeat = codecError("heart-beat, no frame")
	// ErrMalformedFrame is returned for a chunk that has no command line.
	ErrMalformedFrame = codecError("malformed frame")

	errIncompleteFrame = codecError("incomplete frame")
)

type codecError string

func (e codecError) Error() string {
	return string(e)
}
