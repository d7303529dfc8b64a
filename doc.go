// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

// Package cyphalcan implements the Cyphal/CAN v1 transport layer: the
// fragmentation of transfers into CAN 2.0B/FD frames on transmission, and
// their reassembly into transfers on reception.
//
// The package is single-threaded: an Instance and a TxQueue are not safe
// for concurrent use and expect the caller to serialize access, matching
// the deterministic, allocation-bounded design of the protocol this
// package implements. It performs no frame I/O, no DSDL field
// (de)serialization, and no hardware bit-timing configuration; those are
// the caller's responsibility.
package cyphalcan
