// SPDX-FileCopyrightText: © 2026 cyphalgo contributors
// SPDX-License-Identifier: MIT

package cyphalcan

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilterForSubjectAcceptsOnlyThatSubject(t *testing.T) {
	f := FilterForSubject(42)
	md := &TransferMetadata{TransferKind: TransferKindMessage, PortID: 42, RemoteNodeID: NodeIDUnset, Priority: PriorityNominal}
	canID, err := txMakeCANID(md, nil, 7, MTUCANClassic-1)
	require.NoError(t, err)
	require.Equal(t, f.ExtendedCANID, canID&f.Mask)

	other := &TransferMetadata{TransferKind: TransferKindMessage, PortID: 43, RemoteNodeID: NodeIDUnset, Priority: PriorityNominal}
	otherID, err := txMakeCANID(other, nil, 7, MTUCANClassic-1)
	require.NoError(t, err)
	require.NotEqual(t, f.ExtendedCANID, otherID&f.Mask)
}

func TestConsolidateFiltersAcceptsUnion(t *testing.T) {
	a := FilterForSubject(10)
	b := FilterForSubject(20)
	c := ConsolidateFilters(a, b)

	mdA := &TransferMetadata{TransferKind: TransferKindMessage, PortID: 10, RemoteNodeID: NodeIDUnset, Priority: PriorityNominal}
	idA, err := txMakeCANID(mdA, nil, 1, MTUCANClassic-1)
	require.NoError(t, err)
	require.Equal(t, c.ExtendedCANID, idA&c.Mask)

	mdB := &TransferMetadata{TransferKind: TransferKindMessage, PortID: 20, RemoteNodeID: NodeIDUnset, Priority: PriorityNominal}
	idB, err := txMakeCANID(mdB, nil, 1, MTUCANClassic-1)
	require.NoError(t, err)
	require.Equal(t, c.ExtendedCANID, idB&c.Mask)
}

func TestFilterForServiceScopesToLocalNodeID(t *testing.T) {
	f := FilterForService(5, 9)
	md := &TransferMetadata{TransferKind: TransferKindRequest, PortID: 5, RemoteNodeID: 9, Priority: PriorityNominal}
	canID, err := txMakeCANID(md, nil, 3, MTUCANClassic-1)
	require.NoError(t, err)
	require.Equal(t, f.ExtendedCANID, canID&f.Mask)
}
