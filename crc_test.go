// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

package cyphalcan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCRCKnownVector(t *testing.T) {
	// "123456789" is the standard CRC-16/CCITT-FALSE test vector; the
	// expected check value is 0x29B1.
	got := crcAdd(crcInitial, []byte("123456789"))
	require.Equal(t, uint16(0x29B1), got)
}

func TestCRCTableMatchesBitwise(t *testing.T) {
	data := []byte{0x00, 0x01, 0x7F, 0x80, 0xFF, 0xAA, 0x55, 0x10, 0x20, 0x30}
	UseCRCTable = true
	withTable := crcAdd(crcInitial, data)
	UseCRCTable = false
	withBitwise := crcAdd(crcInitial, data)
	UseCRCTable = true
	require.Equal(t, withTable, withBitwise)
}

func TestCRCEmptyPayloadIsInitial(t *testing.T) {
	require.Equal(t, crcInitial, crcAdd(crcInitial, nil))
}

func TestCRCResidueOfPayloadPlusItsOwnCRC(t *testing.T) {
	payload := []byte("hello world")
	crc := crcAdd(crcInitial, payload)
	withCRC := append(append([]byte{}, payload...), byte(crc>>8), byte(crc&0xFF))
	require.Equal(t, crcResidue, crcAdd(crcInitial, withCRC))
}
