// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

package cyphalcan

import "errors"

// ErrInvalidArgument is returned when a caller-supplied argument violates
// a documented precondition: a port-ID or priority out of range, a remote
// node-ID that does not fit the transfer kind, an anonymous service
// transfer or multi-frame message, an unknown transfer kind, or a CAN-ID
// wider than 29 bits. Nil pointers and subscription extents are not
// checked.
//
// The numeric value 2 is preserved from the reference implementation,
// which deliberately skips 1 to avoid colliding with the bare -1 many C
// callers use as an ad hoc failure sentinel.
var ErrInvalidArgument = errors.New("cyphalcan: invalid argument")

// ErrOutOfMemory is returned when a MemoryResource's Allocate callback
// fails, and when a TxQueue has no capacity left for a transfer's frames.
// The numeric value 3 is preserved from the reference
// implementation for the same reason as ErrInvalidArgument.
var ErrOutOfMemory = errors.New("cyphalcan: out of memory")

const (
	errCodeInvalidArgument = 2
	errCodeOutOfMemory     = 3
)
