// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

package cyphalcan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDLCRoundTripTables(t *testing.T) {
	require.Equal(t, uint8(0), DLCToLength[0])
	require.Equal(t, uint8(8), DLCToLength[8])
	require.Equal(t, uint8(64), DLCToLength[15])

	require.Equal(t, uint8(0), LengthToDLC[0])
	require.Equal(t, uint8(8), LengthToDLC[8])
	require.Equal(t, uint8(9), LengthToDLC[9])
	require.Equal(t, uint8(15), LengthToDLC[64])
}

func TestAdjustPresentationLayerMTU(t *testing.T) {
	require.Equal(t, MTUCANClassic-1, adjustPresentationLayerMTU(4))
	require.Equal(t, MTUCANClassic-1, adjustPresentationLayerMTU(8))
	require.Equal(t, 64-1, adjustPresentationLayerMTU(64))
	require.Equal(t, 64-1, adjustPresentationLayerMTU(1000))
}

func TestTxMakeTailByteStartImpliesToggle(t *testing.T) {
	b := txMakeTailByte(true, true, true, 5)
	require.Equal(t, tailStartOfTransfer|tailEndOfTransfer|tailToggle|5, b)
}

func TestTxMakeCANIDMessage(t *testing.T) {
	tr := &TransferMetadata{
		Priority:     PriorityNominal,
		TransferKind: TransferKindMessage,
		PortID:       100,
		RemoteNodeID: NodeIDUnset,
	}
	id, err := txMakeCANID(tr, []byte{1, 2, 3}, 42, 7)
	require.NoError(t, err)
	require.Equal(t, uint8(42), uint8(id&NodeIDMax))
	require.Equal(t, uint32(0), id&flagServiceNotMessage)
}

func TestTxMakeCANIDAnonymousMultiFrameRejected(t *testing.T) {
	tr := &TransferMetadata{
		Priority:     PriorityNominal,
		TransferKind: TransferKindMessage,
		PortID:       100,
		RemoteNodeID: NodeIDUnset,
	}
	_, err := txMakeCANID(tr, make([]byte, 100), NodeIDUnset, 7)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTxMakeCANIDServiceRequiresLocalNodeID(t *testing.T) {
	tr := &TransferMetadata{
		Priority:     PriorityNominal,
		TransferKind: TransferKindRequest,
		PortID:       10,
		RemoteNodeID: 5,
	}
	_, err := txMakeCANID(tr, nil, NodeIDUnset, 7)
	require.ErrorIs(t, err, ErrInvalidArgument)
}

func TestTxMakeCANIDInvalidPriority(t *testing.T) {
	tr := &TransferMetadata{
		Priority:     9,
		TransferKind: TransferKindMessage,
		PortID:       1,
		RemoteNodeID: NodeIDUnset,
	}
	_, err := txMakeCANID(tr, nil, 1, 7)
	require.ErrorIs(t, err, ErrInvalidArgument)
}
